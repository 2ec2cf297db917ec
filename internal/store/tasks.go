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

const taskColumns = `id, title, description, status, poll_interval_days, poll_time, last_polled_at, completed_at, created_at, updated_at`

func scanTask(row rowScanner) (task.Task, error) {
	var (
		t          task.Task
		status     string
		interval   sql.NullInt64
		pollTime   sql.NullString
		lastPolled sql.NullInt64
		completed  sql.NullInt64
		created    int64
		updated    int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &interval, &pollTime, &lastPolled, &completed, &created, &updated); err != nil {
		return task.Task{}, err
	}
	t.Status = task.Status(status)
	if interval.Valid {
		v := int(interval.Int64)
		t.PollIntervalDays = &v
	}
	if pollTime.Valid {
		v := pollTime.String
		t.PollTime = &v
	}
	t.LastPolledAt = timeFromNull(lastPolled)
	t.CompletedAt = timeFromNull(completed)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func nullInterval(v *int) sql.NullInt64 {
	if v == nil || *v <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullPollTime(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// CreateTask inserts t with the given assignees and records its initial
// status. ID, status and CreatedAt are filled in when unset.
func (s *Store) CreateTask(ctx context.Context, t *task.Task, assigneeIDs []int64) error {
	if t.ID == 0 {
		t.ID = id.New()
	}
	if t.Status == "" {
		t.Status = task.StatusNew
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == task.StatusDone && t.CompletedAt == nil {
		t.CompletedAt = &now
	}

	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, string(t.Status),
			nullInterval(t.PollIntervalDays), nullPollTime(t.PollTime),
			nullMillis(t.LastPolledAt), nullMillis(t.CompletedAt),
			toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if err := tx.replaceAssignees(ctx, t.ID, assigneeIDs); err != nil {
			return err
		}
		if err := tx.appendStatus(ctx, t.ID, t.Status, "Задача создана", t.CreatedAt); err != nil {
			return err
		}
		assignees, err := tx.loadAssignees(ctx, []int64{t.ID})
		if err != nil {
			return err
		}
		t.Assignees = assignees[t.ID]
		return nil
	})
}

func (s *Store) GetTask(ctx context.Context, taskID int64) (*task.Task, error) {
	t, err := scanTask(s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	assignees, err := s.loadAssignees(ctx, []int64{t.ID})
	if err != nil {
		return nil, err
	}
	t.Assignees = assignees[t.ID]
	return &t, nil
}

// ListOpenTasks returns up to limit non-terminal tasks, oldest first, with
// their assignees. Tasks beyond limit are not returned.
func (s *Store) ListOpenTasks(ctx context.Context, limit int) ([]task.Task, error) {
	return s.listTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE status NOT IN ('done', 'cancelled')
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
}

func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]task.Task, error) {
	return s.listTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
}

func (s *Store) listTasks(ctx context.Context, query string, args ...any) ([]task.Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var (
		tasks []task.Task
		ids   []int64
	)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	rows.Close()

	assignees, err := s.loadAssignees(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Assignees = assignees[tasks[i].ID]
	}
	return tasks, nil
}

// UpdateTask applies upd and returns the updated task. A status change is
// appended to the status history.
func (s *Store) UpdateTask(ctx context.Context, taskID int64, upd task.Update) (*task.Task, error) {
	var updated *task.Task
	err := s.WithTx(ctx, func(tx *Store) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if upd.Title != nil {
			t.Title = *upd.Title
		}
		if upd.Description != nil {
			t.Description = *upd.Description
		}
		if upd.PollIntervalDays != nil {
			t.PollIntervalDays = upd.PollIntervalDays
		}
		if upd.PollTime != nil {
			t.PollTime = upd.PollTime
		}
		statusChanged := upd.Status != nil && *upd.Status != t.Status
		if statusChanged {
			t.Status = *upd.Status
			if t.Status == task.StatusDone {
				t.CompletedAt = &now
			}
		}
		t.UpdatedAt = now

		_, err = tx.q.ExecContext(ctx, `
			UPDATE tasks SET title = ?, description = ?, status = ?, poll_interval_days = ?,
				poll_time = ?, completed_at = ?, updated_at = ?
			WHERE id = ?`,
			t.Title, t.Description, string(t.Status), nullInterval(t.PollIntervalDays),
			nullPollTime(t.PollTime), nullMillis(t.CompletedAt), toMillis(now), taskID,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		if statusChanged {
			if err := tx.appendStatus(ctx, taskID, t.Status, "Статус изменён", now); err != nil {
				return err
			}
		}
		if upd.SetAssignees {
			if err := tx.replaceAssignees(ctx, taskID, upd.AssigneeIDs); err != nil {
				return err
			}
		}

		updated, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) UpdateLastPolled(ctx context.Context, taskID int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE tasks SET last_polled_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(time.Now().UTC()), taskID,
	)
	if err != nil {
		return fmt.Errorf("update last polled: %w", err)
	}
	return expectRow(res)
}

// DeleteTask removes the task. Assignments, poll records and status history
// go with it.
func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) replaceAssignees(ctx context.Context, taskID int64, userIDs []int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	seen := make(map[int64]bool, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO task_assignees (task_id, user_id) VALUES (?, ?)`, taskID, userID,
		); err != nil {
			if cerr := constraintErr(err); cerr != nil {
				return fmt.Errorf("assign user %d: %w", userID, cerr)
			}
			return fmt.Errorf("assign user %d: %w", userID, err)
		}
	}
	return nil
}

func (s *Store) loadAssignees(ctx context.Context, taskIDs []int64) (map[int64][]task.User, error) {
	out := make(map[int64][]task.User, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT ta.task_id, u.id, u.username, u.full_name, u.role, u.telegram_id, u.created_at, u.updated_at
		FROM task_assignees ta
		JOIN users u ON u.id = ta.user_id
		WHERE ta.task_id IN (`+placeholders(len(taskIDs))+`)
		ORDER BY u.username`, int64Args(taskIDs)...)
	if err != nil {
		return nil, fmt.Errorf("load assignees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			taskID     int64
			u          task.User
			role       string
			telegramID sql.NullInt64
			created    int64
			updated    int64
		)
		if err := rows.Scan(&taskID, &u.ID, &u.Username, &u.FullName, &role, &telegramID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		u.Role = task.Role(role)
		if telegramID.Valid {
			v := telegramID.Int64
			u.TelegramID = &v
		}
		u.CreatedAt = fromMillis(created)
		u.UpdatedAt = fromMillis(updated)
		out[taskID] = append(out[taskID], u)
	}
	return out, rows.Err()
}
