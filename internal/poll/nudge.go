package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/logger"
)

// NudgeResult reports a manual reminder. OK is false only when the task
// has nobody assigned.
type NudgeResult struct {
	OK      bool
	Sent    int
	Message string
}

// Nudger sends a reminder on demand, ignoring the task's poll schedule.
type Nudger struct {
	tasks      TaskStore
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewNudger(tasks TaskStore, dispatcher *Dispatcher) *Nudger {
	return &Nudger{tasks: tasks, dispatcher: dispatcher, now: time.Now}
}

// Nudge dispatches to every assignee with a messaging identity and stamps
// last-polled-at. A missing task returns the store's not-found error.
func (n *Nudger) Nudge(ctx context.Context, taskID int64) (NudgeResult, error) {
	t, err := n.tasks.GetTask(ctx, taskID)
	if err != nil {
		return NudgeResult{}, err
	}
	if len(t.Assignees) == 0 {
		return NudgeResult{Message: "Нет исполнителей у задачи"}, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "poll.nudge", TaskID: logger.Ptr(taskID)})
	now := n.now().UTC()
	sent := n.dispatcher.Dispatch(ctx, t, now)
	if err := n.tasks.UpdateLastPolled(ctx, taskID, now); err != nil {
		return NudgeResult{OK: true, Sent: sent}, fmt.Errorf("stamp last polled: %w", err)
	}
	slog.InfoContext(ctx, "task nudged", "sent", sent)

	if sent == 0 {
		return NudgeResult{OK: true, Message: "Нет исполнителей с Telegram"}, nil
	}
	return NudgeResult{OK: true, Sent: sent, Message: fmt.Sprintf("Напоминание отправлено %d чел.", sent)}, nil
}
