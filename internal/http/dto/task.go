package dto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/task"
)

var ErrInvalidID = errors.New("invalid id")

// Task IDs are snowflakes and travel as strings so JavaScript clients do not
// lose precision.

type CreateTaskRequest struct {
	Title            string   `json:"title" binding:"required,min=1,max=255"`
	Description      string   `json:"description" binding:"max=10000"`
	Status           string   `json:"status"`
	PollIntervalDays *int     `json:"poll_interval_days" binding:"omitempty,min=0,max=365"`
	PollTime         *string  `json:"poll_time"`
	AssigneeIDs      []string `json:"assignee_ids"`
}

// ToTask validates the request and returns the task with its assignee IDs.
func (r *CreateTaskRequest) ToTask() (*task.Task, []int64, error) {
	t := &task.Task{
		Title:            strings.TrimSpace(r.Title),
		Description:      r.Description,
		PollIntervalDays: r.PollIntervalDays,
		PollTime:         r.PollTime,
	}
	if t.Title == "" {
		return nil, nil, errors.New("title is required")
	}
	if r.Status != "" {
		s, err := task.ParseStatus(r.Status)
		if err != nil {
			return nil, nil, err
		}
		t.Status = s
	}
	if err := normalizePollTime(t.PollTime); err != nil {
		return nil, nil, err
	}
	ids, err := ParseIDs(r.AssigneeIDs)
	if err != nil {
		return nil, nil, err
	}
	return t, ids, nil
}

type UpdateTaskRequest struct {
	Title            *string   `json:"title" binding:"omitempty,min=1,max=255"`
	Description      *string   `json:"description" binding:"omitempty,max=10000"`
	Status           *string   `json:"status"`
	PollIntervalDays *int      `json:"poll_interval_days" binding:"omitempty,min=0,max=365"`
	PollTime         *string   `json:"poll_time"`
	AssigneeIDs      *[]string `json:"assignee_ids"`
}

// ToUpdate validates the request. An empty poll_time or a zero interval
// turns polling off.
func (r *UpdateTaskRequest) ToUpdate() (task.Update, error) {
	upd := task.Update{
		Title:            r.Title,
		Description:      r.Description,
		PollIntervalDays: r.PollIntervalDays,
		PollTime:         r.PollTime,
	}
	if r.Status != nil {
		s, err := task.ParseStatus(*r.Status)
		if err != nil {
			return task.Update{}, err
		}
		upd.Status = &s
	}
	if err := normalizePollTime(upd.PollTime); err != nil {
		return task.Update{}, err
	}
	if r.AssigneeIDs != nil {
		ids, err := ParseIDs(*r.AssigneeIDs)
		if err != nil {
			return task.Update{}, err
		}
		upd.AssigneeIDs = ids
		upd.SetAssignees = true
	}
	return upd, nil
}

// normalizePollTime rewrites a valid time to HH:MM in place. Empty is
// allowed and means "no poll time".
func normalizePollTime(v *string) error {
	if v == nil || strings.TrimSpace(*v) == "" {
		if v != nil {
			*v = ""
		}
		return nil
	}
	pt, err := task.ParsePollTime(*v)
	if err != nil {
		return err
	}
	*v = pt.String()
	return nil
}

func ParseID(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return v, nil
}

func ParseIDs(in []string) ([]int64, error) {
	out := make([]int64, 0, len(in))
	for _, s := range in {
		v, err := ParseID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type TaskResponse struct {
	ID               int64          `json:"id,string"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Status           string         `json:"status"`
	PollIntervalDays *int           `json:"poll_interval_days"`
	PollTime         *string        `json:"poll_time"`
	LastPolledAt     *time.Time     `json:"last_polled_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Assignees        []UserResponse `json:"assignees"`
}

func ToTaskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           string(t.Status),
		PollIntervalDays: t.PollIntervalDays,
		PollTime:         t.PollTime,
		LastPolledAt:     t.LastPolledAt,
		CompletedAt:      t.CompletedAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		Assignees:        ToUserResponses(t.Assignees),
	}
}

type TaskDetailResponse struct {
	TaskResponse
	PollResponses []PollRecordResponse   `json:"poll_responses"`
	StatusHistory []StatusChangeResponse `json:"status_history"`
}

type PollRecordResponse struct {
	ID           int64      `json:"id,string"`
	UserID       int64      `json:"user_id,string"`
	PolledAt     time.Time  `json:"polled_at"`
	ResponseText *string    `json:"response_text"`
	RespondedAt  *time.Time `json:"responded_at"`
	StatusAtPoll string     `json:"status_at_poll"`
}

type StatusChangeResponse struct {
	Status    string    `json:"status"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func ToTaskDetailResponse(t *task.Task, polls []task.PollRecord, history []task.StatusChange) TaskDetailResponse {
	resp := TaskDetailResponse{
		TaskResponse:  ToTaskResponse(t),
		PollResponses: make([]PollRecordResponse, len(polls)),
		StatusHistory: make([]StatusChangeResponse, len(history)),
	}
	for i, p := range polls {
		resp.PollResponses[i] = PollRecordResponse{
			ID:           p.ID,
			UserID:       p.UserID,
			PolledAt:     p.PolledAt,
			ResponseText: p.ResponseText,
			RespondedAt:  p.RespondedAt,
			StatusAtPoll: string(p.StatusAtPoll),
		}
	}
	for i, h := range history {
		resp.StatusHistory[i] = StatusChangeResponse{
			Status:    string(h.Status),
			Comment:   h.Comment,
			CreatedAt: h.CreatedAt,
		}
	}
	return resp
}

type ListTasksResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
