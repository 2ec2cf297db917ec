package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/config"
	"github.com/stellarlinkco/taskpulse/internal/logger"
)

const (
	telegramChannelName = "telegram"

	// Telegram rejects messages longer than 4096 characters.
	maxMessageLen = 4000
	// Callback answers are shown as a toast and capped at 200 characters.
	maxCallbackTextLen = 200
)

// TelegramBot is the subset of the Bot API the channel uses.
type TelegramBot interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return w.bot.GetUpdates(config)
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return w.bot.Request(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel is the notification gateway for the Telegram Bot API:
// outbound messages with inline keyboards, the long-poll update feed and
// callback acknowledgements.
type TelegramChannel struct {
	BaseChannel
	token           string
	proxy           string
	apiEndpoint     string
	longPollTimeout int
	requestTimeout  time.Duration
	botFactory      BotFactory
	breaker         *gobreaker.CircuitBreaker

	mu  sync.Mutex
	bot TelegramBot
}

func NewTelegramChannel(cfg config.TelegramConfig) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	longPoll := cfg.LongPollTimeout
	if longPoll <= 0 {
		longPoll = config.DefaultLongPollTimeout
	}
	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= longPoll {
		reqTimeout = longPoll + 5
	}

	ch := &TelegramChannel{
		BaseChannel:     NewBaseChannel(telegramChannelName, cfg.AllowFrom),
		token:           cfg.Token,
		proxy:           cfg.Proxy,
		apiEndpoint:     endpoint,
		longPollTimeout: longPoll,
		requestTimeout:  time.Duration(reqTimeout) * time.Second,
		botFactory:      factory,
	}
	ch.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        telegramChannelName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "component", "channel.telegram", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: isSuccessfulCall,
	})
	return ch, nil
}

// isSuccessfulCall keeps request-level rejections (bad chat id, bot blocked
// by the user) from tripping the breaker. Only transport failures and
// server errors count.
func isSuccessfulCall(err error) bool {
	if err == nil {
		return true
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code < 500
	}
	return false
}

func (t *TelegramChannel) httpClient() (*http.Client, error) {
	client := &http.Client{Timeout: t.requestTimeout}
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return client, nil
}

// Connect authorizes the bot. Other methods call it on first use.
func (t *TelegramChannel) Connect(ctx context.Context) error {
	_, err := t.getBot(ctx)
	return err
}

func (t *TelegramChannel) getBot(ctx context.Context) (TelegramBot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}

	client, err := t.httpClient()
	if err != nil {
		return nil, err
	}
	bot, err := t.botFactory(t.token, t.apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	slog.InfoContext(ctx, "telegram authorized", "component", "channel.telegram", "bot", bot.GetSelf().UserName)
	return bot, nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
}

// Send delivers msg as HTML. When Telegram cannot parse the markup the text
// is resent without a parse mode. Long texts are split and the keyboard is
// attached to the last part.
func (t *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.getBot(ctx)
	if err != nil {
		return err
	}

	chunks := splitMessage(msg.Text, maxMessageLen)
	for i, chunk := range chunks {
		tgMsg := tgbotapi.NewMessage(msg.ChatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if i == len(chunks)-1 && len(msg.Keyboard) > 0 {
			tgMsg.ReplyMarkup = inlineKeyboard(msg.Keyboard)
		}

		_, err := t.breaker.Execute(func() (interface{}, error) {
			sent, err := bot.Send(tgMsg)
			if err != nil && isParseError(err) {
				tgMsg.ParseMode = ""
				sent, err = bot.Send(tgMsg)
			}
			return sent, err
		})
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// FetchUpdates long-polls for updates with ID >= offset. Updates that are
// neither button presses nor text messages, and events from senders outside
// the allow-list, come back with no payload so the caller's cursor still
// moves past them.
func (t *TelegramChannel) FetchUpdates(ctx context.Context, offset int) ([]bus.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bot, err := t.getBot(ctx)
	if err != nil {
		return nil, err
	}

	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = t.longPollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	raw, err := bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("get telegram updates: %w", err)
	}

	updates := make([]bus.Update, 0, len(raw))
	for _, u := range raw {
		update := toUpdate(u)
		if sender, ok := senderOf(update); ok && !t.IsAllowed(strconv.FormatInt(sender, 10)) {
			uctx := logger.WithLogFields(ctx, logger.LogFields{Component: "channel.telegram", UpdateID: logger.Ptr(update.ID)})
			slog.InfoContext(uctx, "rejected update from sender outside allow-list", "sender_id", sender)
			if update.Callback != nil {
				if err := t.AnswerCallback(ctx, update.Callback.ID, ""); err != nil {
					slog.WarnContext(uctx, "acknowledge rejected callback failed", "error", err)
				}
			}
			update = bus.Update{ID: update.ID}
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// AnswerCallback clears the pending state of a pressed inline button,
// optionally showing text as a toast.
func (t *TelegramChannel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	bot, err := t.getBot(ctx)
	if err != nil {
		return err
	}

	if runes := []rune(text); len(runes) > maxCallbackTextLen {
		text = string(runes[:maxCallbackTextLen])
	}
	_, err = t.breaker.Execute(func() (interface{}, error) {
		return bot.Request(tgbotapi.NewCallback(callbackID, text))
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func toUpdate(u tgbotapi.Update) bus.Update {
	out := bus.Update{ID: u.UpdateID}

	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ev := &bus.CallbackEvent{ID: cq.ID, Data: cq.Data}
		if cq.From != nil {
			ev.SenderID = cq.From.ID
			ev.ChatID = cq.From.ID
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		out.Callback = ev

	case u.Message != nil && u.Message.Chat != nil:
		msg := u.Message
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		if text == "" {
			return out
		}
		ev := &bus.TextEvent{
			ChatID:    msg.Chat.ID,
			Text:      text,
			Timestamp: msg.Time(),
		}
		if msg.From != nil {
			ev.SenderID = msg.From.ID
		}
		out.Message = ev
	}
	return out
}

func senderOf(u bus.Update) (int64, bool) {
	switch {
	case u.Callback != nil:
		return u.Callback.SenderID, true
	case u.Message != nil:
		return u.Message.SenderID, true
	}
	return 0, false
}

func inlineKeyboard(rows [][]bus.Button) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kbRows = append(kbRows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

func isParseError(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return strings.Contains(tgErr.Message, "can't parse entities")
	}
	return false
}

// splitMessage cuts s into parts of at most maxLen bytes, preferring line
// breaks and never splitting a UTF-8 sequence.
func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}

	var parts []string
	for len(s) > maxLen {
		cut := strings.LastIndex(s[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		parts = append(parts, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
