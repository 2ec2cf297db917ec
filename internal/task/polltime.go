package task

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPollTime = errors.New("poll time must be HH:MM (for example 09:00)")

var pollTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// PollTime is a time of day at minute granularity.
type PollTime struct {
	Hour   int
	Minute int
}

// ParsePollTime accepts "H:MM" or "HH:MM" with hour 0-23 and minute 00-59.
func ParsePollTime(s string) (PollTime, error) {
	m := pollTimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return PollTime{}, fmt.Errorf("%w: %q", ErrInvalidPollTime, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return PollTime{Hour: hour, Minute: minute}, nil
}

// Matches reports whether t falls inside this minute of the day.
func (p PollTime) Matches(t time.Time) bool {
	return t.Hour() == p.Hour && t.Minute() == p.Minute
}

func (p PollTime) String() string {
	return fmt.Sprintf("%02d:%02d", p.Hour, p.Minute)
}
