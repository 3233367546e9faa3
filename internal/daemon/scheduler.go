package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// Scheduler wraps gocron scheduler for managing the recurring sync trigger.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// ScheduleCron registers a named cron job. Overlapping executions are
// rescheduled rather than stacked: a sync run mutates the working tree and
// must never race a second run.
// Returns the job ID for later management.
func (s *Scheduler) ScheduleCron(name, expr string, task func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create cron job %q: %w", expr, err)
	}
	slog.Info("Scheduled recurring sync",
		logfields.ScheduleName(name),
		slog.String("cron", expr))
	return job.ID().String(), nil
}

// Clear removes all scheduled jobs (used on config reload).
func (s *Scheduler) Clear() error {
	for _, job := range s.scheduler.Jobs() {
		if err := s.scheduler.RemoveJob(job.ID()); err != nil {
			return err
		}
	}
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
