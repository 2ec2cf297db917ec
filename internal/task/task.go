package task

import (
	"time"
)

type Role string

const (
	RoleProjectManager Role = "project_manager"
	RoleMainOrganizer  Role = "main_organizer"
	RoleResponsible    Role = "responsible"
	RoleWorker         Role = "worker"
)

func (r Role) Valid() bool {
	switch r {
	case RoleProjectManager, RoleMainOrganizer, RoleResponsible, RoleWorker:
		return true
	}
	return false
}

// User is a person who can be assigned tasks. TelegramID is the messaging
// identity; users without one are never polled.
type User struct {
	ID         int64
	Username   string
	FullName   string
	Role       Role
	TelegramID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Task struct {
	ID               int64
	Title            string
	Description      string
	Status           Status
	PollIntervalDays *int
	PollTime         *string
	LastPolledAt     *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Assignees        []User
}

// Schedule returns the parsed poll configuration. ok is false when polling
// is disabled: interval missing or zero, time missing or malformed.
func (t *Task) Schedule() (interval time.Duration, at PollTime, ok bool) {
	if t.PollIntervalDays == nil || *t.PollIntervalDays <= 0 || t.PollTime == nil {
		return 0, PollTime{}, false
	}
	at, err := ParsePollTime(*t.PollTime)
	if err != nil {
		return 0, PollTime{}, false
	}
	return time.Duration(*t.PollIntervalDays) * 24 * time.Hour, at, true
}

// PollingActive reports whether the scheduler considers this task at all.
func (t *Task) PollingActive() bool {
	_, _, ok := t.Schedule()
	return ok && !t.Status.Terminal()
}

// DueAt reports whether a poll should go out at now. now must already be in
// the location the poll time is expressed in. The time-of-day check is an
// exact minute match: a tick missed at that minute skips the day.
func (t *Task) DueAt(now time.Time) bool {
	if t.Status.Terminal() {
		return false
	}
	interval, at, ok := t.Schedule()
	if !ok {
		return false
	}
	if !at.Matches(now) {
		return false
	}
	ref := t.CreatedAt
	if t.LastPolledAt != nil {
		ref = *t.LastPolledAt
	}
	return now.Sub(ref) >= interval
}

// PollRecord is one reminder sent to one assignee. ResponseText is nil while
// the record is open.
type PollRecord struct {
	ID           int64
	TaskID       int64
	UserID       int64
	PolledAt     time.Time
	ResponseText *string
	RespondedAt  *time.Time
	StatusAtPoll Status
}

func (r PollRecord) Open() bool {
	return r.ResponseText == nil
}

type StatusChange struct {
	ID        int64
	TaskID    int64
	Status    Status
	Comment   string
	CreatedAt time.Time
}

// Update carries the fields an external task-update request may change.
// Nil means leave unchanged. A zero interval or empty poll time clears it.
type Update struct {
	Title            *string
	Description      *string
	Status           *Status
	PollIntervalDays *int
	PollTime         *string
	AssigneeIDs      []int64
	SetAssignees     bool
}

// ResponseOutcome describes what recording a poll response did.
type ResponseOutcome struct {
	Recorded bool
	PollID   int64
	Previous Status
	Status   Status
	Advanced bool
}
