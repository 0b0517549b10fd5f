// Package scheduler runs the bot's periodic jobs (inactivity sweep, purge of
// remembered provider event ids) on a robfig/cron runner.
//
// Jobs are registered by name so the HTTP layer can trigger one out of band.
// A job never overlaps itself: a tick that arrives while the previous run is
// still going is skipped, and a panicking job is recovered and logged.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is the unit of periodic work. It receives a context carrying the
// scheduler's logger, annotated with the job name.
type Job func(ctx context.Context) error

// cronParser accepts standard 5-field expressions and descriptors such as
// "@every 1m" or "@hourly".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidSpec reports whether spec parses as a schedule.
func ValidSpec(spec string) error {
	_, err := cronParser.Parse(spec)
	return err
}

type entry struct {
	name string
	spec string
	id   cron.EntryID
	job  Job
	mu   sync.Mutex
}

// Scheduler owns a cron runner and the named jobs registered on it.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*entry
}

// New returns a stopped Scheduler that logs through lg.
func New(lg zerolog.Logger) *Scheduler {
	cl := cronLogger{lg: lg.With().Str("component", "scheduler").Logger()}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{cron: c, log: cl.lg, jobs: map[string]*entry{}}
}

// Add registers job under name on spec. Names are unique.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	e := &entry{name: name, spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() { _ = s.invoke(context.Background(), e, "schedule") })
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	e.id = id
	s.jobs[name] = e
	return nil
}

// Jobs returns the registered job names and their specs.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for n, e := range s.jobs {
		out[n] = e.spec
	}
	return out
}

// Next returns the next scheduled run of name, or the zero time when the
// scheduler is not running.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the named job synchronously on the caller's context. It waits
// for a scheduled run of the same job to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.invoke(ctx, e, "manual")
}

func (s *Scheduler) invoke(ctx context.Context, e *entry, trigger string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lg := s.log.With().Str("job", e.name).Str("trigger", trigger).Logger()
	ctx = lg.WithContext(ctx)

	start := time.Now()
	err := e.job(ctx)
	ev := lg.Debug()
	if err != nil {
		ev = lg.Error().Err(err)
	}
	ev.Dur("took", time.Since(start)).Msg("job finished")
	return err
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	lg zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.lg.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
