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

const userColumns = `id, username, full_name, role, telegram_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (task.User, error) {
	var (
		u          task.User
		role       string
		telegramID sql.NullInt64
		created    int64
		updated    int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &role, &telegramID, &created, &updated); err != nil {
		return task.User{}, err
	}
	u.Role = task.Role(role)
	if telegramID.Valid {
		v := telegramID.Int64
		u.TelegramID = &v
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

// CreateUser assigns an ID and timestamps when they are unset.
func (s *Store) CreateUser(ctx context.Context, u *task.User) error {
	if u.ID == 0 {
		u.ID = id.New()
	}
	if u.Role == "" {
		u.Role = task.RoleWorker
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	var telegramID sql.NullInt64
	if u.TelegramID != nil {
		telegramID = sql.NullInt64{Int64: *u.TelegramID, Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FullName, string(u.Role), telegramID, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if cerr := constraintErr(err); cerr != nil {
		return fmt.Errorf("create user %q: %w", u.Username, cerr)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*task.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*task.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*task.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*task.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]task.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []task.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
