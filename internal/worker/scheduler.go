package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applog "fintrack/internal/log"
)

// Scheduler runs a job on a six-field cron schedule (seconds first).
type Scheduler struct {
	cron   *cron.Cron
	logger *applog.Logger
}

// NewScheduler registers job under spec, evaluated in loc.
func NewScheduler(spec string, loc *time.Location, logger *applog.Logger, job func(context.Context) error) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		logger: logger.WithComponent(applog.ComponentScheduler),
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := job(ctx); err != nil {
			s.logger.Error("Scheduled job failed", applog.FieldError, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Next returns the next activation time, zero when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(time.Now())
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("Scheduler started", "next_run", s.Next().Format(time.RFC3339))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("Scheduler stopped")
	return nil
}
