// Package poll sends progress reminders for tasks and turns the replies into
// recorded responses and status advancement.
package poll

import (
	"context"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

// Sender delivers outbound messages through the messaging provider.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// UpdateSource is the provider's inbound long-poll feed.
type UpdateSource interface {
	FetchUpdates(ctx context.Context, offset int) ([]bus.Update, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Gateway is the full notification gateway the correlator talks to.
type Gateway interface {
	Sender
	UpdateSource
}

type TaskStore interface {
	ListOpenTasks(ctx context.Context, limit int) ([]task.Task, error)
	GetTask(ctx context.Context, taskID int64) (*task.Task, error)
	UpdateLastPolled(ctx context.Context, taskID int64, at time.Time) error
}

type PollStore interface {
	CreatePollRecord(ctx context.Context, r *task.PollRecord) error
	RecordPollResponse(ctx context.Context, taskID, userID int64, text string, at time.Time) (task.ResponseOutcome, error)
}

type UserStore interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*task.User, error)
}

// Store is everything the poll package reads and writes.
type Store interface {
	TaskStore
	PollStore
	UserStore
}
