package task

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid task status")

// Statuses lists every status in progression order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusReview, StatusDone, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusReview, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is absorbing: no poll is sent for it and no
// poll response moves it.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Next returns the status a task moves to once a poll response has been
// recorded against it. The bool is false when there is no transition.
func (s Status) Next() (Status, bool) {
	if s.Terminal() {
		return s, false
	}
	switch s {
	case StatusNew:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusReview, true
	case StatusReview:
		return StatusDone, true
	}
	return s, false
}

// Label is the human-readable name shown to assignees.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "Новая"
	case StatusInProgress:
		return "В работе"
	case StatusReview:
		return "На проверке"
	case StatusDone:
		return "Выполнена"
	case StatusCancelled:
		return "Отменена"
	}
	return string(s)
}

func (s Status) String() string {
	return string(s)
}
