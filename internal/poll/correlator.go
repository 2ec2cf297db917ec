package poll

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/logger"
)

type CorrelatorConfig struct {
	// RetryInitial and RetryMax bound the pause after a failed fetch.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Correlator consumes the inbound update feed and turns button presses and
// free-text replies into recorded poll responses.
type Correlator struct {
	gateway   Gateway
	responder *Responder
	pending   PendingStore
	cfg       CorrelatorConfig

	cursor int
}

func NewCorrelator(gateway Gateway, responder *Responder, pending PendingStore, cfg CorrelatorConfig) *Correlator {
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = time.Second
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	if pending == nil {
		pending = NewMemoryPendingStore()
	}
	return &Correlator{
		gateway:   gateway,
		responder: responder,
		pending:   pending,
		cfg:       cfg,
	}
}

// Cursor is the highest update ID processed so far.
func (c *Correlator) Cursor() int {
	return c.cursor
}

// Run polls for updates until ctx is cancelled. Fetch failures pause with
// exponential backoff; nothing short of cancellation ends the loop.
func (c *Correlator) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "poll.correlator"})
	slog.InfoContext(ctx, "correlator started")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitial
	bo.MaxInterval = c.cfg.RetryMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "correlator stopped")
			return nil
		}

		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := bo.NextBackOff()
			slog.WarnContext(ctx, "fetch updates failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

// Poll runs one fetch cycle: request updates after the cursor, handle each
// one in order and advance the cursor to the highest ID seen.
func (c *Correlator) Poll(ctx context.Context) error {
	offset := 0
	if c.cursor > 0 {
		offset = c.cursor + 1
	}

	updates, err := c.gateway.FetchUpdates(ctx, offset)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.ID > c.cursor {
			c.cursor = u.ID
		}
		c.Handle(ctx, u)
	}
	return nil
}

// Handle processes one update. Errors are reported to the user or logged;
// they never escape.
func (c *Correlator) Handle(ctx context.Context, u bus.Update) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{UpdateID: logger.Ptr(u.ID)})
	switch {
	case u.Callback != nil:
		c.handleCallback(ctx, u.Callback)
	case u.Message != nil:
		c.handleText(ctx, u.Message)
	}
}

func (c *Correlator) handleCallback(ctx context.Context, ev *bus.CallbackEvent) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChatID: logger.Ptr(ev.ChatID)})

	cb, err := ParseCallback(ev.Data)
	if err != nil {
		slog.InfoContext(ctx, "malformed callback", "data", ev.Data)
		c.answer(ctx, ev.ID, textErrorToast)
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(cb.TaskID)})

	switch {
	case !cb.Reply:
		c.answer(ctx, ev.ID, "")
		msg, err := ChoiceMessage(ev.ChatID, cb.TaskID)
		if err != nil {
			slog.ErrorContext(ctx, "build choice keyboard failed", "error", err)
			return
		}
		c.send(ctx, msg)

	case cb.Custom():
		c.answer(ctx, ev.ID, "")
		if err := c.pending.Set(ctx, ev.ChatID, PendingReply{TaskID: cb.TaskID, SenderID: ev.SenderID}); err != nil {
			slog.ErrorContext(ctx, "store pending reply failed", "error", err)
			return
		}
		c.send(ctx, bus.OutboundMessage{ChatID: ev.ChatID, Text: textCustomPrompt})

	default:
		out, err := c.responder.SubmitFromTelegram(ctx, ev.SenderID, cb.TaskID, cb.Label)
		if err != nil && !errors.Is(err, ErrUnknownSender) {
			slog.ErrorContext(ctx, "record canned response failed", "error", err)
		}
		if err != nil || !out.Recorded {
			c.answer(ctx, ev.ID, textAlreadyToast)
			return
		}
		c.answer(ctx, ev.ID, textSavedToast)
		c.send(ctx, bus.OutboundMessage{ChatID: ev.ChatID, Text: textSaved})
	}
}

func (c *Correlator) handleText(ctx context.Context, ev *bus.TextEvent) {
	chatID := ev.SessionKey()
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChatID: logger.Ptr(chatID)})

	p, ok, err := c.pending.Get(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "load pending reply failed", "error", err)
		return
	}
	if !ok {
		return
	}
	if ev.SenderID != p.SenderID {
		slog.InfoContext(ctx, "ignoring reply from another sender", "sender_id", ev.SenderID)
		return
	}
	if err := c.pending.Delete(ctx, chatID); err != nil {
		slog.ErrorContext(ctx, "clear pending reply failed", "error", err)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		c.send(ctx, bus.OutboundMessage{ChatID: chatID, Text: textEmptyRejected})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(p.TaskID)})
	out, err := c.responder.SubmitFromTelegram(ctx, p.SenderID, p.TaskID, text)
	if err != nil && !errors.Is(err, ErrUnknownSender) {
		slog.ErrorContext(ctx, "record free-text response failed", "error", err)
	}
	if err != nil || !out.Recorded {
		c.send(ctx, bus.OutboundMessage{ChatID: chatID, Text: textSaveFailed})
		return
	}
	c.send(ctx, bus.OutboundMessage{ChatID: chatID, Text: textSaved})
}

func (c *Correlator) answer(ctx context.Context, callbackID, text string) {
	if err := c.gateway.AnswerCallback(ctx, callbackID, text); err != nil {
		slog.WarnContext(ctx, "acknowledge callback failed", "error", err)
	}
}

func (c *Correlator) send(ctx context.Context, msg bus.OutboundMessage) {
	if err := c.gateway.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "send reply failed", "error", err)
	}
}
