package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/channel"
	"github.com/stellarlinkco/taskpulse/internal/config"
	"github.com/stellarlinkco/taskpulse/internal/http/router"
	"github.com/stellarlinkco/taskpulse/internal/id"
	"github.com/stellarlinkco/taskpulse/internal/logger"
	"github.com/stellarlinkco/taskpulse/internal/poll"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var errTelegramDisabled = errors.New("telegram channel is disabled")

// Options for creating a Gateway
type Options struct {
	BotFactory channel.BotFactory
	SignalChan chan os.Signal // for testing signal handling
}

// Gateway wires the store, the Telegram channel, the poll loops and the
// REST API into one process.
type Gateway struct {
	cfg        *config.Config
	store      *store.Store
	redis      *redis.Client
	telegram   *channel.TelegramChannel
	scheduler  *poll.Scheduler
	correlator *poll.Correlator
	responder  *poll.Responder
	nudger     *poll.Nudger
	server     *http.Server
	signalChan chan os.Signal
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{Component: "gateway"})
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	if err := id.Init(cfg.NodeID); err != nil {
		return nil, fmt.Errorf("init id generator: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	var sender poll.Sender = disabledSender{}
	if cfg.Telegram.Enabled {
		factory := opts.BotFactory
		var tg *channel.TelegramChannel
		if factory == nil {
			tg, err = channel.NewTelegramChannel(cfg.Telegram)
		} else {
			tg, err = channel.NewTelegramChannelWithFactory(cfg.Telegram, factory)
		}
		if err != nil {
			_ = g.Shutdown()
			return nil, fmt.Errorf("create telegram channel: %w", err)
		}
		g.telegram = tg
		sender = tg
	} else {
		slog.WarnContext(ctx, "telegram disabled, reminders will not be delivered")
	}

	pending, err := g.pendingStore(ctx)
	if err != nil {
		_ = g.Shutdown()
		return nil, err
	}

	dispatcher := poll.NewDispatcher(sender, st)
	g.responder = poll.NewResponder(st)
	g.nudger = poll.NewNudger(st, dispatcher)
	g.scheduler = poll.NewScheduler(st, dispatcher, poll.SchedulerConfig{
		TickSpec: cfg.Poll.TickSpec,
		PageSize: cfg.Poll.PageSize,
		Location: loc,
	})
	if g.telegram != nil {
		initial, maxDelay := cfg.Poll.RetryBounds()
		g.correlator = poll.NewCorrelator(g.telegram, g.responder, pending, poll.CorrelatorConfig{
			RetryInitial: initial,
			RetryMax:     maxDelay,
		})
	}

	if cfg.Server.Enabled {
		engine := router.New(router.Services{
			Users:     st,
			Tasks:     st,
			Nudger:    g.nudger,
			Responder: g.responder,
			Health:    st.Ping,
		}, router.RouterConfig{
			APIKey:      cfg.Server.APIKey,
			CORSOrigins: cfg.Server.CORSOrigins,
		})
		g.server = &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if cfg.Server.APIKey == "" {
			slog.WarnContext(ctx, "api key not set, /api is unauthenticated")
		}
	}

	return g, nil
}

// pendingStore picks Redis when a URL is configured so awaiting-reply state
// survives restarts.
func (g *Gateway) pendingStore(ctx context.Context) (poll.PendingStore, error) {
	if g.cfg.Pending.RedisURL == "" {
		return poll.NewMemoryPendingStore(), nil
	}
	opt, err := redis.ParseURL(g.cfg.Pending.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	g.redis = redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := g.redis.Ping(pingCtx).Err(); err != nil {
		slog.WarnContext(ctx, "redis unreachable at startup, pending replies may fail", "error", err)
	}
	return poll.NewRedisPendingStore(g.redis, g.cfg.Pending.TTLDuration()), nil
}

func (g *Gateway) Store() *store.Store {
	return g.store
}

func (g *Gateway) Nudger() *poll.Nudger {
	return g.nudger
}

// Handler is the REST API, or nil when the server is disabled.
func (g *Gateway) Handler() http.Handler {
	if g.server == nil {
		return nil
	}
	return g.server.Handler
}

// Run starts the scheduler, the update correlator and the HTTP server and
// blocks until a signal arrives, ctx is cancelled or a component fails.
// Loops still busy shutdownTimeout after the stop are abandoned.
func (g *Gateway) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "gateway"})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	if g.telegram != nil {
		if err := g.telegram.Connect(ctx); err != nil {
			slog.WarnContext(ctx, "telegram connect failed, will retry on first use", "error", err)
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case sig := <-sigCh:
			slog.InfoContext(ctx, "signal received, shutting down", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	grp.Go(func() error {
		return g.scheduler.Run(gctx)
	})
	if g.correlator != nil {
		grp.Go(func() error {
			return g.correlator.Run(gctx)
		})
	}
	if g.server != nil {
		grp.Go(func() error {
			slog.InfoContext(ctx, "http server listening", "addr", g.server.Addr)
			if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		grp.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := g.server.Shutdown(shutdownCtx); err != nil {
				slog.WarnContext(ctx, "http server shutdown", "error", err)
			}
			return nil
		})
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- grp.Wait() }()

	var runErr error
	select {
	case runErr = <-waitCh:
	case <-gctx.Done():
		select {
		case runErr = <-waitCh:
		case <-time.After(shutdownTimeout):
			slog.WarnContext(ctx, "shutdown timeout, abandoning running loops")
		}
	}

	if err := g.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown releases the store and the Redis client.
func (g *Gateway) Shutdown() error {
	var errs []error
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	slog.Info("shutdown complete", "component", "gateway")
	return errors.Join(errs...)
}

// disabledSender stands in for the channel when no bot token is configured.
type disabledSender struct{}

func (disabledSender) Send(context.Context, bus.OutboundMessage) error {
	return errTelegramDisabled
}
