package bus

import "time"

// Update is one entry of the inbound update feed. Exactly one of Callback
// and Message is set; updates of other shapes are delivered with both nil
// so the cursor still advances past them.
type Update struct {
	ID       int
	Callback *CallbackEvent
	Message  *TextEvent
}

// CallbackEvent is an inline button press.
type CallbackEvent struct {
	ID       string
	ChatID   int64
	SenderID int64
	Data     string
}

// TextEvent is a plain text message.
type TextEvent struct {
	ChatID    int64
	SenderID  int64
	Text      string
	Timestamp time.Time
}

// SessionKey identifies the conversation the event belongs to.
func (m *TextEvent) SessionKey() int64 {
	return m.ChatID
}

type Button struct {
	Text string
	Data string
}

// OutboundMessage is sent to a chat. Keyboard rows become an inline keyboard.
type OutboundMessage struct {
	ChatID   int64
	Text     string
	Keyboard [][]Button
}
