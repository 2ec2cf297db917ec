// Package seed loads users and tasks from a YAML file into the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSeed = errors.New("invalid seed file")

type File struct {
	Users []User `yaml:"users"`
	Tasks []Task `yaml:"tasks"`
}

// User is keyed so tasks can reference it. Key defaults to the username.
type User struct {
	Key        string `yaml:"key"`
	Username   string `yaml:"username"`
	FullName   string `yaml:"fullName"`
	Role       string `yaml:"role"`
	TelegramID *int64 `yaml:"telegramId"`
}

type Task struct {
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description"`
	Status           string   `yaml:"status"`
	PollIntervalDays *int     `yaml:"pollIntervalDays"`
	PollTime         string   `yaml:"pollTime"`
	Assignees        []string `yaml:"assignees"`
}

type Result struct {
	UsersCreated  int
	UsersExisting int
	TasksCreated  int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse seed %q: %w", path, err)
	}
	return f, nil
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	keys := make(map[string]bool, len(f.Users))
	for i := range f.Users {
		u := &f.Users[i]
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" {
			return fmt.Errorf("%w: user %d has no username", ErrInvalidSeed, i+1)
		}
		u.Key = strings.TrimSpace(u.Key)
		if u.Key == "" {
			u.Key = u.Username
		}
		if keys[u.Key] {
			return fmt.Errorf("%w: duplicate user key %q", ErrInvalidSeed, u.Key)
		}
		keys[u.Key] = true
		if u.Role != "" && !task.Role(u.Role).Valid() {
			return fmt.Errorf("%w: user %q has unknown role %q", ErrInvalidSeed, u.Key, u.Role)
		}
	}

	for i, t := range f.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("%w: task %d has no title", ErrInvalidSeed, i+1)
		}
		if t.Status != "" {
			if _, err := task.ParseStatus(t.Status); err != nil {
				return fmt.Errorf("%w: task %q: %v", ErrInvalidSeed, t.Title, err)
			}
		}
		if t.PollTime != "" {
			if _, err := task.ParsePollTime(t.PollTime); err != nil {
				return fmt.Errorf("%w: task %q: %v", ErrInvalidSeed, t.Title, err)
			}
		}
		for _, key := range t.Assignees {
			if !keys[key] {
				return fmt.Errorf("%w: task %q references unknown user %q", ErrInvalidSeed, t.Title, key)
			}
		}
	}
	return nil
}

// Apply writes f in one transaction. Users that already exist (matched by
// username) are reused, so a seed can be re-applied after adding users.
// Tasks are created on every run.
func Apply(ctx context.Context, s *store.Store, f *File) (Result, error) {
	var res Result
	err := s.WithTx(ctx, func(tx *store.Store) error {
		res = Result{}
		ids := make(map[string]int64, len(f.Users))

		for _, su := range f.Users {
			existing, err := tx.GetUserByUsername(ctx, su.Username)
			if err == nil {
				ids[su.Key] = existing.ID
				res.UsersExisting++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			u := &task.User{
				Username:   su.Username,
				FullName:   strings.TrimSpace(su.FullName),
				Role:       task.Role(su.Role),
				TelegramID: su.TelegramID,
			}
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
			ids[su.Key] = u.ID
			res.UsersCreated++
		}

		for _, st := range f.Tasks {
			t := &task.Task{
				Title:            strings.TrimSpace(st.Title),
				Description:      st.Description,
				PollIntervalDays: st.PollIntervalDays,
			}
			if st.Status != "" {
				t.Status, _ = task.ParseStatus(st.Status)
			}
			if st.PollTime != "" {
				pt, _ := task.ParsePollTime(st.PollTime)
				v := pt.String()
				t.PollTime = &v
			}
			assignees := make([]int64, 0, len(st.Assignees))
			for _, key := range st.Assignees {
				assignees = append(assignees, ids[key])
			}
			if err := tx.CreateTask(ctx, t, assignees); err != nil {
				return fmt.Errorf("seed task %q: %w", st.Title, err)
			}
			res.TasksCreated++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "seed applied",
		"users_created", res.UsersCreated,
		"users_existing", res.UsersExisting,
		"tasks_created", res.TasksCreated,
	)
	return res, nil
}
