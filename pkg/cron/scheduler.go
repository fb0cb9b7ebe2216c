// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskEvictor drops finished task records past their retention window.
type TaskEvictor interface {
	Evict(now time.Time) int
}

// SessionSweeper drops sessions idle for longer than their TTL.
type SessionSweeper interface {
	Sweep(now time.Time) int
}

// Schedules holds the cron expressions for each job.
type Schedules struct {
	TaskEviction string
	SessionSweep string
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	tasks     TaskEvictor
	sessions  SessionSweeper
	schedules Schedules
	now       func() time.Time
	logger    *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(tasks TaskEvictor, sessions SessionSweeper, schedules Schedules, logger *slog.Logger) *Scheduler {
	// Standard 5-field format, no seconds.
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		tasks:     tasks,
		sessions:  sessions,
		schedules: schedules,
		now:       time.Now,
		logger:    logger,
	}
}

// Start registers the jobs and begins running them.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedules.TaskEviction, s.evictTasks); err != nil {
		return fmt.Errorf("task eviction schedule %q: %w", s.schedules.TaskEviction, err)
	}
	if _, err := s.cron.AddFunc(s.schedules.SessionSweep, s.sweepSessions); err != nil {
		return fmt.Errorf("session sweep schedule %q: %w", s.schedules.SessionSweep, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs every job once, synchronously.
func (s *Scheduler) RunNow() {
	s.evictTasks()
	s.sweepSessions()
}

func (s *Scheduler) evictTasks() {
	n := s.tasks.Evict(s.now())
	if n > 0 {
		s.logger.Info("evicted finished tasks", slog.Int("count", n))
	}
}

func (s *Scheduler) sweepSessions() {
	n := s.sessions.Sweep(s.now())
	if n > 0 {
		s.logger.Info("swept idle sessions", slog.Int("count", n))
	}
}
