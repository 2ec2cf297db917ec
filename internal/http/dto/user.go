package dto

import (
	"time"

	"github.com/stellarlinkco/taskpulse/internal/task"
)

type CreateUserRequest struct {
	Username   string `json:"username" binding:"required,min=1,max=64"`
	FullName   string `json:"full_name" binding:"max=255"`
	Role       string `json:"role" binding:"omitempty,oneof=project_manager main_organizer responsible worker"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

type UserResponse struct {
	ID         int64     `json:"id,string"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	TelegramID *int64    `json:"telegram_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func ToUserResponse(u *task.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		Role:       string(u.Role),
		TelegramID: u.TelegramID,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func ToUserResponses(users []task.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = ToUserResponse(&users[i])
	}
	return out
}
