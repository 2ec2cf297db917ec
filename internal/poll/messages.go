package poll

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

const (
	actionPoll  = "poll"
	actionReply = "pollr"

	// ChoiceCustom is the reply label that asks for a free-text answer.
	ChoiceCustom = "custom"

	maxCallbackData = 64
)

var (
	ErrCallbackTooLong   = errors.New("callback payload exceeds 64 bytes")
	ErrMalformedCallback = errors.New("malformed callback payload")
)

// Canned reply labels, in keyboard order. The label itself is stored as the
// response text.
const (
	ChoiceInProgress = "В работе"
	ChoiceReview     = "На проверке"
	ChoiceDone       = "Готово"
)

// User-facing texts.
const (
	textReplyButton   = "📝 Ответить"
	textCustomButton  = "Напишу текст"
	textChoosePrompt  = "Как продвигается задача? Выберите или нажмите «Напишу текст»:"
	textCustomPrompt  = "Напишите ваш ответ одним сообщением:"
	textSaved         = "✅ Ответ сохранён. Админ увидит его в таймлайне задачи."
	textSavedToast    = "Спасибо, ответ сохранён!"
	textAlreadyToast  = "Ответ уже был сохранён"
	textEmptyRejected = "Пустой ответ не сохранён."
	textSaveFailed    = "Не удалось сохранить (возможно, ответ уже был отправлен)."
	textErrorToast    = "Ошибка"
)

// Callback is a decoded inline-button payload.
type Callback struct {
	Reply  bool
	TaskID int64
	Label  string
}

// Custom reports whether the press asks for a free-text reply.
func (c Callback) Custom() bool {
	return c.Reply && c.Label == ChoiceCustom
}

// EncodePollCallback builds the payload of the reminder's reply button.
func EncodePollCallback(taskID int64) (string, error) {
	return checkCallback(actionPoll + ":" + strconv.FormatInt(taskID, 10))
}

// EncodeReplyCallback builds the payload of one choice on the reply keyboard.
func EncodeReplyCallback(taskID int64, label string) (string, error) {
	return checkCallback(actionReply + ":" + strconv.FormatInt(taskID, 10) + ":" + label)
}

func checkCallback(data string) (string, error) {
	if len(data) > maxCallbackData {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackTooLong, len(data))
	}
	return data, nil
}

// ParseCallback decodes "poll:<task>" and "pollr:<task>:<label>".
func ParseCallback(data string) (Callback, error) {
	data = strings.TrimSpace(data)
	action, rest, ok := strings.Cut(data, ":")
	if !ok {
		return Callback{}, fmt.Errorf("%w: %q", ErrMalformedCallback, data)
	}

	switch action {
	case actionPoll:
		taskID, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrMalformedCallback, data)
		}
		return Callback{TaskID: taskID}, nil

	case actionReply:
		idPart, label, ok := strings.Cut(rest, ":")
		if !ok || label == "" {
			return Callback{}, fmt.Errorf("%w: %q", ErrMalformedCallback, data)
		}
		taskID, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrMalformedCallback, data)
		}
		return Callback{Reply: true, TaskID: taskID, Label: label}, nil
	}
	return Callback{}, fmt.Errorf("%w: unknown action %q", ErrMalformedCallback, action)
}

// ReminderMessage is the poll sent to an assignee.
func ReminderMessage(chatID int64, t *task.Task) (bus.OutboundMessage, error) {
	data, err := EncodePollCallback(t.ID)
	if err != nil {
		return bus.OutboundMessage{}, err
	}
	text := "📋 <b>Напоминание о задаче</b>\n\n" +
		"<b>" + html.EscapeString(t.Title) + "</b>\n\n" +
		"Как продвигается выполнение? Нажмите кнопку ниже или обновите статус в веб-интерфейсе."
	return bus.OutboundMessage{
		ChatID:   chatID,
		Text:     text,
		Keyboard: [][]bus.Button{{{Text: textReplyButton, Data: data}}},
	}, nil
}

// ChoiceMessage offers the canned replies and the free-text option.
func ChoiceMessage(chatID, taskID int64) (bus.OutboundMessage, error) {
	labels := [][]struct{ text, label string }{
		{{ChoiceInProgress, ChoiceInProgress}, {ChoiceReview, ChoiceReview}},
		{{ChoiceDone, ChoiceDone}, {textCustomButton, ChoiceCustom}},
	}

	keyboard := make([][]bus.Button, 0, len(labels))
	for _, row := range labels {
		buttons := make([]bus.Button, 0, len(row))
		for _, b := range row {
			data, err := EncodeReplyCallback(taskID, b.label)
			if err != nil {
				return bus.OutboundMessage{}, err
			}
			buttons = append(buttons, bus.Button{Text: b.text, Data: data})
		}
		keyboard = append(keyboard, buttons)
	}
	return bus.OutboundMessage{ChatID: chatID, Text: textChoosePrompt, Keyboard: keyboard}, nil
}
