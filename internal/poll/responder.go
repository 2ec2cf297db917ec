package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/logger"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

var (
	ErrEmptyResponse = errors.New("response text is empty")
	ErrUnknownSender = errors.New("sender is not a known user")
)

// Responder is the single path through which poll responses are recorded,
// whether they come from the messaging provider or the REST API.
type Responder struct {
	store Store
	now   func() time.Time
}

func NewResponder(s Store) *Responder {
	return &Responder{store: s, now: time.Now}
}

// Submit records text against the newest open poll of (taskID, userID) and
// advances the task status. The outcome is not recorded when there is no
// open poll left.
func (r *Responder) Submit(ctx context.Context, taskID, userID int64, text string) (task.ResponseOutcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return task.ResponseOutcome{}, ErrEmptyResponse
	}

	out, err := r.store.RecordPollResponse(ctx, taskID, userID, text, r.now().UTC())
	if err != nil {
		return task.ResponseOutcome{}, fmt.Errorf("record poll response: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(taskID), UserID: logger.Ptr(userID)})
	switch {
	case !out.Recorded:
		slog.InfoContext(ctx, "no open poll for response")
	case out.Advanced:
		slog.InfoContext(ctx, "poll response recorded", "poll_id", out.PollID, "from", out.Previous, "to", out.Status)
	default:
		slog.InfoContext(ctx, "poll response recorded", "poll_id", out.PollID, "status", out.Status)
	}
	return out, nil
}

// SubmitFromTelegram resolves the sender's messaging identity to a user and
// submits. An unknown sender yields ErrUnknownSender.
func (r *Responder) SubmitFromTelegram(ctx context.Context, telegramID, taskID int64, text string) (task.ResponseOutcome, error) {
	u, err := r.store.GetUserByTelegramID(ctx, telegramID)
	if errors.Is(err, store.ErrNotFound) {
		return task.ResponseOutcome{}, ErrUnknownSender
	}
	if err != nil {
		return task.ResponseOutcome{}, fmt.Errorf("lookup sender: %w", err)
	}
	return r.Submit(ctx, taskID, u.ID, text)
}
