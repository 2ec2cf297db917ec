package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/stellarlinkco/taskpulse/internal/logger"
)

const (
	DefaultTickSpec = "0 * * * * *"
	DefaultPageSize = 500

	stopWait = 5 * time.Second
)

type SchedulerConfig struct {
	// TickSpec is a cron expression with a seconds field.
	TickSpec string
	// PageSize caps how many open tasks one tick looks at.
	PageSize int
	// Location is the zone poll times of day are matched in.
	Location *time.Location
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Candidates int
	Due        int
	Sent       int
}

// Scheduler sends reminders for tasks whose poll time has come.
type Scheduler struct {
	tasks      TaskStore
	dispatcher *Dispatcher
	cfg        SchedulerConfig
	now        func() time.Time
}

func NewScheduler(tasks TaskStore, dispatcher *Dispatcher, cfg SchedulerConfig) *Scheduler {
	if cfg.TickSpec == "" {
		cfg.TickSpec = DefaultTickSpec
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		tasks:      tasks,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run ticks on the configured schedule until ctx is cancelled. Ticks never
// overlap; a tick still running when the next one fires is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "poll.scheduler"})
	cl := cronLogger{ctx: ctx}

	c := rcron.New(
		rcron.WithSeconds(),
		rcron.WithLocation(s.cfg.Location),
		rcron.WithLogger(cl),
		rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.TickSpec, func() {
		s.Tick(ctx, s.now())
	}); err != nil {
		return fmt.Errorf("register poll tick %q: %w", s.cfg.TickSpec, err)
	}

	c.Start()
	slog.InfoContext(ctx, "scheduler started", "spec", s.cfg.TickSpec, "page_size", s.cfg.PageSize, "timezone", s.cfg.Location.String())

	<-ctx.Done()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopWait):
		slog.WarnContext(ctx, "scheduler stop timeout, abandoning running tick")
	}
	slog.InfoContext(ctx, "scheduler stopped")
	return nil
}

// Tick runs one pass at now. now is truncated to the minute in the
// configured location so the interval clock is stamped on minute
// boundaries. Failures are logged; Tick never aborts halfway because of
// one task or one assignee.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickResult {
	now = now.In(s.cfg.Location).Truncate(time.Minute)

	var res TickResult
	tasks, err := s.tasks.ListOpenTasks(ctx, s.cfg.PageSize)
	if err != nil {
		slog.ErrorContext(ctx, "list open tasks failed", "error", err)
		return res
	}
	res.Candidates = len(tasks)
	if len(tasks) >= s.cfg.PageSize {
		slog.WarnContext(ctx, "open task page is full, later tasks are skipped this tick", "page_size", s.cfg.PageSize)
	}

	for i := range tasks {
		t := &tasks[i]
		if !t.DueAt(now) {
			continue
		}
		res.Due++

		tctx := logger.WithLogFields(ctx, logger.LogFields{TaskID: logger.Ptr(t.ID)})
		sent := s.dispatcher.Dispatch(tctx, t, now)
		res.Sent += sent

		if err := s.tasks.UpdateLastPolled(tctx, t.ID, now); err != nil {
			slog.ErrorContext(tctx, "stamp last polled failed", "error", err)
			continue
		}
		slog.InfoContext(tctx, "task polled", "assignees", len(t.Assignees), "sent", sent)
	}
	return res
}

// cronLogger routes robfig/cron's own logging to slog.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.DebugContext(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"error", err}, keysAndValues...)
	slog.ErrorContext(l.ctx, "cron: "+msg, args...)
}
