package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single run of a scheduled job
const DefaultJobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron       *cron.Cron
	jobs       map[string]cron.EntryID
	timezone   *time.Location
	jobTimeout time.Duration
	log        zerolog.Logger

	mu   sync.Mutex
	base context.Context
}

// New creates a new scheduler with the given timezone
func New(timezone string, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	// Skip a tick rather than overlap a scrape still running
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:       c,
		jobs:       make(map[string]cron.EntryID),
		timezone:   loc,
		jobTimeout: DefaultJobTimeout,
		log:        log.With().Str("component", "scheduler").Logger(),
		base:       context.Background(),
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 7 * * *" (at 7:00 AM daily) or "@every 2h"
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.RemoveJob(name)

	entryID, err := s.cron.AddFunc(schedule, s.wrap(name, job))
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("added job")

	return nil
}

// AddScrapeJob adds the scraping job, run every intervalHours
func (s *Scheduler) AddScrapeJob(intervalHours int, job Job) error {
	return s.AddJob("scrape", ScrapeSchedule(intervalHours), job)
}

// ScrapeSchedule returns the cron schedule for a job run every intervalHours
func ScrapeSchedule(intervalHours int) string {
	if intervalHours >= 24 {
		return fmt.Sprintf("@every %dh", intervalHours)
	}
	return fmt.Sprintf("0 */%d * * *", intervalHours)
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.log.Info().Str("job", name).Msg("removed job")
	}
}

// Start begins running scheduled jobs. Runs in progress are canceled with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.log.Info().Str("timezone", s.timezone.String()).Msg("starting scheduler")
	s.cron.Start()

	for _, job := range s.ListJobs() {
		s.log.Info().Str("job", job.Name).Time("next_run", job.NextRun).Msg("job scheduled")
	}
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info().Msg("stopping scheduler")
	return s.cron.Stop()
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		s.mu.Lock()
		base := s.base
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, s.jobTimeout)
		defer cancel()

		log := s.log.With().Str("job", name).Logger()
		log.Info().Msg("starting job")
		start := time.Now()

		if err := job(ctx); err != nil {
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		} else {
			log.Info().Dur("duration", time.Since(start)).Msg("job completed")
		}
	}
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
