package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/logger"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

// Dispatcher sends one reminder per messageable assignee and opens a poll
// record for each delivery. It is shared by the scheduler and manual nudges.
type Dispatcher struct {
	sender Sender
	polls  PollStore
}

func NewDispatcher(sender Sender, polls PollStore) *Dispatcher {
	return &Dispatcher{sender: sender, polls: polls}
}

// Dispatch returns the number of reminders delivered. Failures for one
// assignee are logged and do not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, t *task.Task, at time.Time) int {
	sent := 0
	for _, u := range t.Assignees {
		if u.TelegramID == nil {
			continue
		}
		uctx := logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(t.ID), UserID: logger.Ptr(u.ID)})

		msg, err := ReminderMessage(*u.TelegramID, t)
		if err != nil {
			slog.ErrorContext(uctx, "build reminder failed", "error", err)
			continue
		}
		if err := d.sender.Send(uctx, msg); err != nil {
			slog.WarnContext(uctx, "send reminder failed", "error", err)
			continue
		}

		rec := &task.PollRecord{
			TaskID:       t.ID,
			UserID:       u.ID,
			PolledAt:     at,
			StatusAtPoll: t.Status,
		}
		if err := d.polls.CreatePollRecord(uctx, rec); err != nil {
			slog.ErrorContext(uctx, "create poll record failed", "error", err)
			continue
		}
		sent++
	}
	return sent
}
