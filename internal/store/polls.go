package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/id"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

const pollColumns = `id, task_id, user_id, polled_at, response_text, responded_at, status_at_poll`

// AdvanceComment is the status history comment for a change caused by a poll
// response.
const AdvanceComment = "Автоматически по ответу на опрос"

func scanPoll(row rowScanner) (task.PollRecord, error) {
	var (
		r         task.PollRecord
		polled    int64
		response  sql.NullString
		responded sql.NullInt64
		status    string
	)
	if err := row.Scan(&r.ID, &r.TaskID, &r.UserID, &polled, &response, &responded, &status); err != nil {
		return task.PollRecord{}, err
	}
	r.PolledAt = fromMillis(polled)
	if response.Valid {
		v := response.String
		r.ResponseText = &v
	}
	r.RespondedAt = timeFromNull(responded)
	r.StatusAtPoll = task.Status(status)
	return r, nil
}

// CreatePollRecord inserts an open record. ID is assigned when unset.
func (s *Store) CreatePollRecord(ctx context.Context, r *task.PollRecord) error {
	if r.ID == 0 {
		r.ID = id.New()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO task_poll_responses (`+pollColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.UserID, toMillis(r.PolledAt), nullText(r.ResponseText),
		nullMillis(r.RespondedAt), string(r.StatusAtPoll),
	)
	if err != nil {
		return fmt.Errorf("create poll record: %w", err)
	}
	return nil
}

// FindOpenPollRecord returns the most recently polled record for the pair
// that has no response yet.
func (s *Store) FindOpenPollRecord(ctx context.Context, taskID, userID int64) (*task.PollRecord, error) {
	r, err := scanPoll(s.q.QueryRowContext(ctx, `
		SELECT `+pollColumns+` FROM task_poll_responses
		WHERE task_id = ? AND user_id = ? AND response_text IS NULL
		ORDER BY polled_at DESC, id DESC
		LIMIT 1`, taskID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open poll record: %w", err)
	}
	return &r, nil
}

func (s *Store) ListPollRecords(ctx context.Context, taskID int64) ([]task.PollRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+pollColumns+` FROM task_poll_responses
		WHERE task_id = ?
		ORDER BY polled_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list poll records: %w", err)
	}
	defer rows.Close()

	var records []task.PollRecord
	for rows.Next() {
		r, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordPollResponse claims the newest open record for (taskID, userID),
// stores text on it and advances the task status one step. The whole
// sequence runs in one transaction; when no open record is left the outcome
// is not recorded and nothing changes.
func (s *Store) RecordPollResponse(ctx context.Context, taskID, userID int64, text string, at time.Time) (task.ResponseOutcome, error) {
	var out task.ResponseOutcome
	err := s.WithTx(ctx, func(tx *Store) error {
		rec, err := tx.FindOpenPollRecord(ctx, taskID, userID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.q.ExecContext(ctx, `
			UPDATE task_poll_responses SET response_text = ?, responded_at = ?
			WHERE id = ? AND response_text IS NULL`,
			text, toMillis(at), rec.ID,
		)
		if err != nil {
			return fmt.Errorf("set poll response: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			// Claimed by a concurrent reply.
			return nil
		}
		out.Recorded = true
		out.PollID = rec.ID

		var status string
		err = tx.q.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read task status: %w", err)
		}
		out.Previous = task.Status(status)
		out.Status = out.Previous

		next, ok := out.Previous.Next()
		if !ok {
			return nil
		}
		var completed sql.NullInt64
		if next == task.StatusDone {
			completed = sql.NullInt64{Int64: toMillis(at), Valid: true}
		}
		if _, err := tx.q.ExecContext(ctx, `
			UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = ?
			WHERE id = ?`,
			string(next), completed, toMillis(at), taskID,
		); err != nil {
			return fmt.Errorf("advance task status: %w", err)
		}
		if err := tx.appendStatus(ctx, taskID, next, AdvanceComment, at); err != nil {
			return err
		}
		out.Status = next
		out.Advanced = true
		return nil
	})
	if err != nil {
		return task.ResponseOutcome{}, err
	}
	return out, nil
}

func (s *Store) appendStatus(ctx context.Context, taskID int64, status task.Status, comment string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO task_status_history (id, task_id, status, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.New(), taskID, string(status), comment, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (s *Store) ListStatusHistory(ctx context.Context, taskID int64) ([]task.StatusChange, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, task_id, status, comment, created_at FROM task_status_history
		WHERE task_id = ?
		ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var history []task.StatusChange
	for rows.Next() {
		var (
			c       task.StatusChange
			status  string
			created int64
		)
		if err := rows.Scan(&c.ID, &c.TaskID, &status, &c.Comment, &created); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.Status = task.Status(status)
		c.CreatedAt = fromMillis(created)
		history = append(history, c)
	}
	return history, rows.Err()
}

func nullText(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
