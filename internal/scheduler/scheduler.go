// Package scheduler runs the daily digest loop. One cooperative timer
// serves all active sessions: each wake sweeps overdue invoices, then
// feeds the notification generator one digest scan per session. The
// per-user last-digest-date marker keeps wakes idempotent per calendar
// day, so the startup run and the timed run never double up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/service"
)

// Scheduler owns the digest timer and the set of active sessions.
type Scheduler struct {
	scheduler gocron.Scheduler
	invoices  service.InvoiceService
	digest    *service.DigestService
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]domain.Actor
}

// Config wires the scheduler's collaborators.
type Config struct {
	Invoices service.InvoiceService
	Digest   *service.DigestService

	// DigestHour is the local hour of the daily wake. Defaults to 9.
	DigestHour int

	// Location resolves the local 09:00 boundary. Defaults to time.Local.
	Location *time.Location

	Logger *slog.Logger // Optional: defaults to slog.Default()
}

// New creates the scheduler and registers the daily digest job.
// Call Start to arm the timer.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Invoices == nil {
		return nil, fmt.Errorf("invoice service is required")
	}
	if cfg.Digest == nil {
		return nil, fmt.Errorf("digest service is required")
	}

	hour := cfg.DigestHour
	if hour == 0 {
		hour = 9
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gs, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: gs,
		invoices:  cfg.Invoices,
		digest:    cfg.Digest,
		logger:    logger,
		sessions:  make(map[string]domain.Actor),
	}

	_, err = gs.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(s.runDigests),
		gocron.WithName("daily-digest"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register digest job: %w", err)
	}

	return s, nil
}

// Start arms the timer. The next wake is the coming local digest hour;
// if that is already past today, it rolls to tomorrow.
func (s *Scheduler) Start() {
	s.logger.Info("starting digest scheduler")
	s.scheduler.Start()
}

// Stop shuts the timer down, waiting for a running wake to finish.
func (s *Scheduler) Stop() error {
	s.logger.Info("stopping digest scheduler")
	return s.scheduler.Shutdown()
}

// StartSession registers a logged-in user and runs their digest
// immediately. The date marker makes the immediate run a no-op when
// today's digest already happened in another session.
func (s *Scheduler) StartSession(ctx context.Context, actor domain.Actor) {
	s.mu.Lock()
	s.sessions[actor.UserID] = actor
	s.mu.Unlock()

	if err := s.digest.Run(ctx, actor); err != nil {
		s.logger.Error("startup digest run failed",
			"user_id", actor.UserID,
			"error", err,
		)
	}
}

// StopSession deregisters a user on logout.
func (s *Scheduler) StopSession(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// runDigests is the timed wake: sweep overdue invoices first so the
// scan classifies against fresh statuses, then run one digest per
// active session.
func (s *Scheduler) runDigests() {
	ctx := context.Background()

	moved, err := s.invoices.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", "error", err)
	} else if moved > 0 {
		s.logger.Info("overdue sweep completed", "moved", moved)
	}

	s.mu.RLock()
	actors := make([]domain.Actor, 0, len(s.sessions))
	for _, actor := range s.sessions {
		actors = append(actors, actor)
	}
	s.mu.RUnlock()

	for _, actor := range actors {
		if err := s.digest.Run(ctx, actor); err != nil {
			s.logger.Error("digest run failed",
				"user_id", actor.UserID,
				"error", err,
			)
		}
	}
}
