package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/taskpulse/internal/http/dto"
	"github.com/stellarlinkco/taskpulse/internal/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type TaskHandler struct {
	tasks TaskService
}

func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	t, assignees, err := req.ToTask()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tasks.CreateTask(ctx, t, assignees); err != nil {
		writeStoreError(c, err, "task")
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(t.ID)})
	slog.InfoContext(ctx, "task created", "assignees", len(t.Assignees))
	c.JSON(http.StatusCreated, dto.ToTaskResponse(t))
}

func (h *TaskHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), limit, offset)
	if err != nil {
		writeStoreError(c, err, "tasks")
		return
	}
	resp := dto.ListTasksResponse{
		Tasks:  make([]dto.TaskResponse, len(tasks)),
		Limit:  limit,
		Offset: offset,
	}
	for i := range tasks {
		resp.Tasks[i] = dto.ToTaskResponse(&tasks[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns the task with its poll records and status history.
func (h *TaskHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	t, err := h.tasks.GetTask(ctx, taskID)
	if err != nil {
		writeStoreError(c, err, "task")
		return
	}
	polls, err := h.tasks.ListPollRecords(ctx, taskID)
	if err != nil {
		writeStoreError(c, err, "poll responses")
		return
	}
	history, err := h.tasks.ListStatusHistory(ctx, taskID)
	if err != nil {
		writeStoreError(c, err, "status history")
		return
	}
	c.JSON(http.StatusOK, dto.ToTaskDetailResponse(t, polls, history))
}

func (h *TaskHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	taskID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	upd, err := req.ToUpdate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.tasks.UpdateTask(ctx, taskID, upd)
	if err != nil {
		writeStoreError(c, err, "task")
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(taskID)})
	slog.InfoContext(ctx, "task updated", "status", t.Status)
	c.JSON(http.StatusOK, dto.ToTaskResponse(t))
}

func (h *TaskHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(ctx, taskID); err != nil {
		writeStoreError(c, err, "task")
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(taskID)})
	slog.InfoContext(ctx, "task deleted")
	c.Status(http.StatusNoContent)
}
