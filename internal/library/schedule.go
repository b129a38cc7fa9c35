package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string // cron expression
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules. A job never overlaps itself;
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	jobs []Job
	now  func() time.Time
}

// NewScheduler validates every expression up front. Jobs with an empty
// schedule are dropped.
func NewScheduler(jobs ...Job) (*Scheduler, error) {
	g := gronx.New()
	s := &Scheduler{now: time.Now}
	for _, j := range jobs {
		if j.Schedule == "" {
			continue
		}
		if !g.IsValid(j.Schedule) {
			return nil, fmt.Errorf("job %s: invalid cron expression %q", j.Name, j.Schedule)
		}
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// Len reports how many jobs are scheduled.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.jobs))
	for _, j := range s.jobs {
		go func(j Job) {
			defer func() { done <- struct{}{} }()
			s.loop(ctx, j)
		}(j)
	}
	for range s.jobs {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	for {
		next, err := gronx.NextTickAfter(j.Schedule, s.now(), false)
		if err != nil {
			slog.Error("scheduler: next tick", "job", j.Name, "error", err)
			return
		}
		slog.Debug("scheduler: waiting", "job", j.Name, "next", next)

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		start := time.Now()
		if err := j.Run(ctx); err != nil {
			slog.Error("scheduled job failed", "job", j.Name, "error", err, "duration", time.Since(start))
			continue
		}
		slog.Info("scheduled job complete", "job", j.Name, "duration", time.Since(start))
	}
}

// FamilyJob refreshes every member's profile and library.
func (s *Service) FamilyJob(schedule string) Job {
	return Job{
		Name:     "sync_family",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			profiles, games, err := s.SyncFamily(ctx)
			if err != nil {
				return err
			}
			slog.Info("family sync", "profiles", profiles, "games", games)
			return nil
		},
	}
}

// CatalogJob imports the Steam app list.
func (s *Service) CatalogJob(schedule string) Job {
	return Job{
		Name:     "sync_catalog",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			inserted, err := s.SyncCatalog(ctx)
			if err != nil {
				return err
			}
			slog.Info("catalog sync", "inserted", inserted)
			return nil
		},
	}
}
