// Package scheduler runs the update pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Scheduler fires Job on a standard five-field cron spec (or a descriptor
// such as "@every 6h"). A run that is still going when the next one is due
// is skipped, so runs never overlap.
type Scheduler struct {
	spec       string
	job        Job
	loc        *time.Location
	runOnStart bool
	logger     zerolog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// New validates spec and returns a Scheduler that has not started yet.
func New(spec string, loc *time.Location, runOnStart bool, job Job, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{spec: spec, job: job, loc: loc, runOnStart: runOnStart, logger: logger}, nil
}

// Runs is the number of job executions that have finished.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Failures is the number of finished runs that returned an error.
func (s *Scheduler) Failures() int64 { return s.failures.Load() }

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	s.logger.Info().Msg("scheduled run started")
	err := s.job(ctx)
	s.runs.Add(1)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error().Err(err).Dur("took", time.Since(start)).Msg("scheduled run failed")
		return
	}
	s.logger.Info().Dur("took", time.Since(start)).Msg("scheduled run finished")
}

// Run blocks until ctx is cancelled, then waits for an in-flight job to
// return before it does.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(s.spec, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("add job: %w", err)
	}

	c.Start()
	next := c.Entry(id).Next
	s.logger.Info().Str("schedule", s.spec).Time("next", next).Msg("scheduler started")

	var first sync.WaitGroup
	if s.runOnStart {
		// Through the wrapped job so the first tick skips while it runs.
		first.Add(1)
		go func() {
			defer first.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	s.logger.Info().Msg("stopping scheduler")
	stopped := c.Stop()
	<-stopped.Done()
	first.Wait()
	s.logger.Info().Int64("runs", s.Runs()).Int64("failed", s.Failures()).Msg("scheduler stopped")
	return nil
}
