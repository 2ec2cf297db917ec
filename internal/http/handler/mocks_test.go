package handler_test

import (
	"context"

	"github.com/stellarlinkco/taskpulse/internal/poll"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

type mockUserService struct {
	createFn func(ctx context.Context, u *task.User) error
	getFn    func(ctx context.Context, userID int64) (*task.User, error)
	listFn   func(ctx context.Context) ([]task.User, error)
}

func (m *mockUserService) CreateUser(ctx context.Context, u *task.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	return nil
}

func (m *mockUserService) GetUser(ctx context.Context, userID int64) (*task.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockUserService) ListUsers(ctx context.Context) ([]task.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockTaskService struct {
	createFn  func(ctx context.Context, t *task.Task, assigneeIDs []int64) error
	getFn     func(ctx context.Context, taskID int64) (*task.Task, error)
	listFn    func(ctx context.Context, limit, offset int) ([]task.Task, error)
	updateFn  func(ctx context.Context, taskID int64, upd task.Update) (*task.Task, error)
	deleteFn  func(ctx context.Context, taskID int64) error
	pollsFn   func(ctx context.Context, taskID int64) ([]task.PollRecord, error)
	historyFn func(ctx context.Context, taskID int64) ([]task.StatusChange, error)
}

func (m *mockTaskService) CreateTask(ctx context.Context, t *task.Task, assigneeIDs []int64) error {
	if m.createFn != nil {
		return m.createFn(ctx, t, assigneeIDs)
	}
	return nil
}

func (m *mockTaskService) GetTask(ctx context.Context, taskID int64) (*task.Task, error) {
	if m.getFn != nil {
		return m.getFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) ListTasks(ctx context.Context, limit, offset int) ([]task.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockTaskService) UpdateTask(ctx context.Context, taskID int64, upd task.Update) (*task.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, taskID, upd)
	}
	return nil, nil
}

func (m *mockTaskService) DeleteTask(ctx context.Context, taskID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, taskID)
	}
	return nil
}

func (m *mockTaskService) ListPollRecords(ctx context.Context, taskID int64) ([]task.PollRecord, error) {
	if m.pollsFn != nil {
		return m.pollsFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) ListStatusHistory(ctx context.Context, taskID int64) ([]task.StatusChange, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, taskID)
	}
	return nil, nil
}

type mockNudger struct {
	nudgeFn func(ctx context.Context, taskID int64) (poll.NudgeResult, error)
}

func (m *mockNudger) Nudge(ctx context.Context, taskID int64) (poll.NudgeResult, error) {
	if m.nudgeFn != nil {
		return m.nudgeFn(ctx, taskID)
	}
	return poll.NudgeResult{}, nil
}

type mockResponder struct {
	submitFn func(ctx context.Context, taskID, userID int64, text string) (task.ResponseOutcome, error)
}

func (m *mockResponder) Submit(ctx context.Context, taskID, userID int64, text string) (task.ResponseOutcome, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, taskID, userID, text)
	}
	return task.ResponseOutcome{}, nil
}
