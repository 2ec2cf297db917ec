package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/taskpulse/internal/http/dto"
	"github.com/stellarlinkco/taskpulse/internal/poll"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

type UserService interface {
	CreateUser(ctx context.Context, u *task.User) error
	GetUser(ctx context.Context, userID int64) (*task.User, error)
	ListUsers(ctx context.Context) ([]task.User, error)
}

type TaskService interface {
	CreateTask(ctx context.Context, t *task.Task, assigneeIDs []int64) error
	GetTask(ctx context.Context, taskID int64) (*task.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]task.Task, error)
	UpdateTask(ctx context.Context, taskID int64, upd task.Update) (*task.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
	ListPollRecords(ctx context.Context, taskID int64) ([]task.PollRecord, error)
	ListStatusHistory(ctx context.Context, taskID int64) ([]task.StatusChange, error)
}

type Nudger interface {
	Nudge(ctx context.Context, taskID int64) (poll.NudgeResult, error)
}

type Responder interface {
	Submit(ctx context.Context, taskID, userID int64, text string) (task.ResponseOutcome, error)
}

// pathID reads the :id parameter and writes a 400 when it is not a valid ID.
func pathID(c *gin.Context) (int64, bool) {
	id, err := dto.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// isBadInput reports errors caused by the request rather than the server.
func isBadInput(err error) bool {
	return errors.Is(err, task.ErrInvalidStatus) ||
		errors.Is(err, task.ErrInvalidPollTime) ||
		errors.Is(err, dto.ErrInvalidID) ||
		errors.Is(err, store.ErrUnknownReference)
}

func writeStoreError(c *gin.Context, err error, what string) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": what + " already exists"})
	case isBadInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(ctx, "request failed", "what", what, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
