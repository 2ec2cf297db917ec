package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/taskpulse/internal/http/dto"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	u := &task.User{
		Username:   strings.TrimSpace(req.Username),
		FullName:   strings.TrimSpace(req.FullName),
		Role:       task.Role(req.Role),
		TelegramID: req.TelegramID,
	}
	if err := h.users.CreateUser(ctx, u); err != nil {
		writeStoreError(c, err, "user")
		return
	}

	slog.InfoContext(ctx, "user created", "user_id", u.ID, "username", u.Username)
	c.JSON(http.StatusCreated, dto.ToUserResponse(u))
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeStoreError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, dto.ToUserResponse(u))
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		writeStoreError(c, err, "users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": dto.ToUserResponses(users)})
}
