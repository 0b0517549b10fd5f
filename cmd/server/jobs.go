package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/config"
	"github.com/tbourn/go-consent-bot/internal/repo"
	"github.com/tbourn/go-consent-bot/internal/scheduler"
	"github.com/tbourn/go-consent-bot/internal/services"
)

// Job names.
const (
	sweepJob = "sweep"
	purgeJob = "purge_events"
)

type sweepReportKey struct{}

// sweepFunc runs one inactivity sweep. A manual trigger passes a
// *SweepReport in the context to receive the tick report.
func sweepFunc(sweeper *services.Sweeper) scheduler.Job {
	return func(ctx context.Context) error {
		rep, err := sweeper.Sweep(ctx)
		if out, ok := ctx.Value(sweepReportKey{}).(*services.SweepReport); ok {
			*out = rep
		}
		return err
	}
}

// scheduledSweep serves the manual sweep endpoint through the scheduler, so
// a manual run waits for a running cron tick and logs as the "sweep" job.
type scheduledSweep struct {
	sched   *scheduler.Scheduler
	sweeper *services.Sweeper
}

// Sweep implements handlers.Sweeper.
func (s scheduledSweep) Sweep(ctx context.Context) (services.SweepReport, error) {
	var rep services.SweepReport
	err := s.sched.RunNow(context.WithValue(ctx, sweepReportKey{}, &rep), sweepJob)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		// SWEEP_ENABLED=false registers no job; manual sweeps still run.
		return s.sweeper.Sweep(ctx)
	}
	return rep, err
}

func newScheduler(cfg config.SchedulerConfig, db *gorm.DB, sweeper *services.Sweeper) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log.Logger)

	if cfg.SweepEnabled {
		if err := sched.Add(sweepJob, cfg.SweepSchedule, sweepFunc(sweeper)); err != nil {
			return nil, err
		}
	}

	err := sched.Add(purgeJob, cfg.EventPurgeSchedule, func(ctx context.Context) error {
		n, err := repo.PurgeExpiredEvents(ctx, db, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			zerolog.Ctx(ctx).Info().Int64("purged", n).Msg("expired processed events removed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}
