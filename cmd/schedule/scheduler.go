package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/costwatch/costwatch/internal/types"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron"
)

type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds a fresh runner for every tick so per-invocation state
// (exchange rate caches) never leaks across runs.
type RunnerFactory func() (Runner, error)

type Scheduler struct {
	schedule  string
	timeout   time.Duration
	listen    string

	factory RunnerFactory

	// runLock is held for the whole of one tick; an overlapping tick is
	// skipped instead of queued.
	runLock sync.Mutex

	mu      sync.Mutex
	lastRun *types.RunStatus
}

type SchedulerOpts struct {
	// Schedule is a cron expression with seconds, e.g. "0 0 1 * * ?".
	Schedule string
	// Timeout bounds one invocation.
	Timeout time.Duration
	// Listen enables the status endpoint when non-empty, e.g. ":8080".
	Listen string
}

func NewScheduler(factory RunnerFactory, opts SchedulerOpts) *Scheduler {
	return &Scheduler{
		factory:  factory,
		schedule: opts.Schedule,
		timeout:  opts.Timeout,
		listen:   opts.Listen,
	}
}

// Start runs the cron loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if err := c.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %v", s.schedule, err)
	}

	if s.listen != "" {
		go s.startStatusServer()
	}

	c.Start()
	slog.Info("⏰ scheduler started", "schedule", s.schedule)

	<-ctx.Done()

	c.Stop()
	slog.Info("🛑 scheduler stopped")

	return nil
}

func (s *Scheduler) tick() {
	if !s.runLock.TryLock() {
		slog.Warn("⏭️ previous run still in progress, skipping tick")
		return
	}
	defer s.runLock.Unlock()

	status := types.RunStatus{StartedAt: time.Now().UTC()}

	err := s.runOnce()

	status.FinishedAt = time.Now().UTC()
	status.DurationMS = status.FinishedAt.Sub(status.StartedAt).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		slog.Error("❌ scheduled run failed", "error", err)
	} else {
		status.Success = true
	}

	s.mu.Lock()
	s.lastRun = &status
	s.mu.Unlock()
}

func (s *Scheduler) runOnce() error {
	runner, err := s.factory()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return runner.Run(ctx)
}

func (s *Scheduler) startStatusServer() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "costwatch",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	e.GET("/runs/latest", s.handleLatestRun)

	slog.Info("🌐 status endpoint listening", "addr", s.listen)
	if err := e.Start(s.listen); err != nil && err != http.ErrServerClosed {
		slog.Warn("status endpoint terminated", "error", err)
	}
}

func (s *Scheduler) handleLatestRun(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no run has completed yet"})
	}

	return c.JSON(http.StatusOK, s.lastRun)
}
