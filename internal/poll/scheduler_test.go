package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/task"
)

func newTestScheduler(s Store, gw *fakeGateway, loc *time.Location) *Scheduler {
	return NewScheduler(s, NewDispatcher(gw, s), SchedulerConfig{PageSize: 500, Location: loc})
}

func TestScheduler_TickCreatesOneRecordPerMessageableAssignee(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 20, 0, time.UTC)
	alice := mustUser(t, s, "alice", 1001)
	bob := mustUser(t, s, "bob", 1002)
	carol := mustUser(t, s, "carol", 0)
	tk := mustTask(t, s, &task.Task{
		Title:            "Report",
		PollIntervalDays: intPtr(1),
		PollTime:         strPtr("09:00"),
		CreatedAt:        now.Add(-25 * time.Hour),
	}, alice.ID, bob.ID, carol.ID)

	res := sched.Tick(ctx, now)
	if res.Due != 1 || res.Sent != 2 {
		t.Fatalf("tick = %+v, want 1 due, 2 sent", res)
	}
	records := openRecords(t, s, tk.ID)
	if len(records) != 2 {
		t.Fatalf("open records = %d, want 2", len(records))
	}
	for _, r := range records {
		if r.StatusAtPoll != task.StatusNew {
			t.Errorf("status at poll = %s", r.StatusAtPoll)
		}
		if !r.PolledAt.Equal(now.Truncate(time.Minute)) {
			t.Errorf("polled at = %v", r.PolledAt)
		}
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if got.LastPolledAt == nil || !got.LastPolledAt.Equal(now.Truncate(time.Minute)) {
		t.Errorf("last polled = %v", got.LastPolledAt)
	}

	if res := sched.Tick(ctx, now.Add(10*time.Second)); res.Sent != 0 {
		t.Errorf("second tick in the same minute sent %d", res.Sent)
	}
	if n := len(openRecords(t, s, tk.ID)); n != 2 {
		t.Errorf("open records after second tick = %d", n)
	}
}

func TestScheduler_DisabledPollingNeverPolls(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()
	u := mustUser(t, s, "alice", 1001)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	disabled := []*task.Task{
		{Title: "no interval", PollTime: strPtr("09:00")},
		{Title: "zero interval", PollIntervalDays: intPtr(0), PollTime: strPtr("09:00")},
		{Title: "no time", PollIntervalDays: intPtr(1)},
		{Title: "bad time", PollIntervalDays: intPtr(1), PollTime: strPtr("9h")},
		{Title: "done", Status: task.StatusDone, PollIntervalDays: intPtr(1), PollTime: strPtr("09:00")},
		{Title: "cancelled", Status: task.StatusCancelled, PollIntervalDays: intPtr(1), PollTime: strPtr("09:00")},
	}
	for _, tk := range disabled {
		tk.CreatedAt = created
		mustTask(t, s, tk, u.ID)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		for _, hm := range []time.Duration{9 * time.Hour, 9*time.Hour + time.Minute, 21 * time.Hour} {
			sched.Tick(ctx, start.Add(time.Duration(day)*24*time.Hour+hm))
		}
	}
	for _, tk := range disabled {
		if n := len(openRecords(t, s, tk.ID)); n != 0 {
			t.Errorf("%s: %d poll records", tk.Title, n)
		}
	}
	if len(gw.sent) != 0 {
		t.Errorf("sent %d reminders", len(gw.sent))
	}
}

func TestScheduler_IntervalRespectedAcrossTicks(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()
	u := mustUser(t, s, "alice", 1001)

	first := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tk := mustTask(t, s, &task.Task{
		Title:            "every 3 days",
		PollIntervalDays: intPtr(3),
		PollTime:         strPtr("09:00"),
		CreatedAt:        first.Add(-72 * time.Hour),
	}, u.ID)

	var polledDays []int
	for day := 0; day < 7; day++ {
		if res := sched.Tick(ctx, first.Add(time.Duration(day)*24*time.Hour)); res.Sent > 0 {
			polledDays = append(polledDays, day)
		}
	}
	if len(polledDays) != 3 || polledDays[0] != 0 || polledDays[1] != 3 || polledDays[2] != 6 {
		t.Errorf("polled on days %v, want [0 3 6]", polledDays)
	}
	if n := len(openRecords(t, s, tk.ID)); n != 3 {
		t.Errorf("records = %d, want 3", n)
	}
}

func TestScheduler_ExactMinuteOnly(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()
	u := mustUser(t, s, "alice", 1001)

	target := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mustTask(t, s, &task.Task{
		Title:            "daily",
		PollIntervalDays: intPtr(1),
		PollTime:         strPtr("09:00"),
		CreatedAt:        target.Add(-48 * time.Hour),
	}, u.ID)

	for _, at := range []time.Time{target.Add(-time.Minute), target.Add(time.Minute), target.Add(time.Hour)} {
		if res := sched.Tick(ctx, at); res.Due != 0 {
			t.Errorf("tick at %s was due", at.Format("15:04"))
		}
	}
}

func TestScheduler_SendFailureDoesNotStopOthers(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	gw.failFor[1001] = true
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := mustUser(t, s, "alice", 1001)
	bob := mustUser(t, s, "bob", 1002)
	tk := mustTask(t, s, &task.Task{
		Title:            "x",
		PollIntervalDays: intPtr(1),
		PollTime:         strPtr("09:00"),
		CreatedAt:        now.Add(-24 * time.Hour),
	}, alice.ID, bob.ID)

	res := sched.Tick(ctx, now)
	if res.Sent != 1 {
		t.Errorf("sent = %d, want 1", res.Sent)
	}
	records := openRecords(t, s, tk.ID)
	if len(records) != 1 || records[0].UserID != bob.ID {
		t.Errorf("records = %+v, want one for bob", records)
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if got.LastPolledAt == nil {
		t.Error("last polled should be stamped despite the failure")
	}
}

func TestScheduler_NoMessageableAssigneeStillStamps(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, time.UTC)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	u := mustUser(t, s, "offline", 0)
	tk := mustTask(t, s, &task.Task{
		Title:            "x",
		PollIntervalDays: intPtr(1),
		PollTime:         strPtr("09:00"),
		CreatedAt:        now.Add(-24 * time.Hour),
	}, u.ID)

	if res := sched.Tick(ctx, now); res.Due != 1 || res.Sent != 0 {
		t.Errorf("tick = %+v", res)
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if got.LastPolledAt == nil {
		t.Error("last polled should be stamped")
	}
}

func TestScheduler_MatchesInConfiguredTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := newTestScheduler(s, gw, loc)
	ctx := context.Background()
	u := mustUser(t, s, "alice", 1001)

	// 09:00 in Moscow is 06:00 UTC.
	nowUTC := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	mustTask(t, s, &task.Task{
		Title:            "x",
		PollIntervalDays: intPtr(1),
		PollTime:         strPtr("09:00"),
		CreatedAt:        nowUTC.Add(-48 * time.Hour),
	}, u.ID)

	if res := sched.Tick(ctx, nowUTC.Add(3*time.Hour)); res.Due != 0 {
		t.Error("09:00 UTC should not match a Moscow poll time")
	}
	if res := sched.Tick(ctx, nowUTC); res.Due != 1 {
		t.Error("06:00 UTC should match 09:00 Moscow")
	}
}

type failingTaskStore struct {
	TaskStore
}

func (failingTaskStore) ListOpenTasks(context.Context, int) ([]task.Task, error) {
	return nil, errors.New("database is locked")
}

func TestScheduler_StoreFailureIsSurvived(t *testing.T) {
	gw := newFakeGateway()
	sched := NewScheduler(failingTaskStore{}, NewDispatcher(gw, nil), SchedulerConfig{})
	res := sched.Tick(context.Background(), time.Now())
	if res != (TickResult{}) {
		t.Errorf("tick = %+v, want zero result", res)
	}
}

func TestScheduler_PageSizeCapsCandidates(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := NewScheduler(s, NewDispatcher(gw, s), SchedulerConfig{PageSize: 2})
	for i := 0; i < 3; i++ {
		mustTask(t, s, &task.Task{Title: "t"})
	}
	if res := sched.Tick(context.Background(), time.Now()); res.Candidates != 2 {
		t.Errorf("candidates = %d, want 2", res.Candidates)
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	gw := newFakeGateway()
	sched := NewScheduler(s, NewDispatcher(gw, s), SchedulerConfig{TickSpec: "* * * * * *"})

	ticked := make(chan struct{}, 1)
	sched.now = func() time.Time {
		select {
		case ticked <- struct{}{}:
		default:
		}
		return time.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-ticked:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler never ticked")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run error: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_RunRejectsBadSpec(t *testing.T) {
	sched := NewScheduler(failingTaskStore{}, nil, SchedulerConfig{TickSpec: "not a spec"})
	if err := sched.Run(context.Background()); err == nil {
		t.Error("expected error for invalid spec")
	}
}
