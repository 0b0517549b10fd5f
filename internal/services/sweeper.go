// Package services – Sweeper
//
// The inactivity sweeper scans active sessions and escalates quiet ones in
// two phases: a one-time warning after WarnAfter of silence, then, if the
// user stays silent through GraceAfterWarning, a forced move into the
// survey invitation (esperando_calificacion) with the abandoned flag set.
//
// Every effect is gated by a persisted fact re-read inside the session's own
// transaction (warning marker, abandoned flag) and written with a version
// compare-and-swap, so redundant or concurrent ticks act at most once and a
// user reply racing the sweep always wins.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/repo"
)

// Default escalation timings.
const (
	DefaultWarnAfter         = 10 * time.Minute
	DefaultGraceAfterWarning = 3 * time.Minute
)

type sweepAction string

const (
	actionNone    sweepAction = "none"
	actionSkip    sweepAction = "skipped"
	actionWarn    sweepAction = "warned"
	actionRevive  sweepAction = "revived"
	actionAbandon sweepAction = "abandoned"
	actionStale   sweepAction = "stale"
	actionFailed  sweepAction = "failed"
)

// SweepReport summarizes one tick.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Warned    int `json:"warned"`
	Revived   int `json:"revived"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Sweeper warns and abandons inactive sessions.
type Sweeper struct {
	DB     *gorm.DB
	Sender channel.Sender

	WarnAfter         time.Duration
	GraceAfterWarning time.Duration

	Now func() time.Time
}

// NewSweeper returns a Sweeper with the default 10m/3m timings.
func NewSweeper(db *gorm.DB, sender channel.Sender) *Sweeper {
	return &Sweeper{
		DB:                db,
		Sender:            sender,
		WarnAfter:         DefaultWarnAfter,
		GraceAfterWarning: DefaultGraceAfterWarning,
		Now:               time.Now,
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Sweep runs one tick over every active session. A failure on one session is
// counted and does not stop the others; the returned error is reserved for
// the initial scan and context cancellation.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	tr := otel.Tracer("services/Sweeper")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var rep SweepReport
	ids, err := repo.ListActiveSessionIDs(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		return rep, err
	}

	lg := loggerFrom(ctx)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++

		action, err := s.sweepOne(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrStaleSession) {
				action = actionStale
			} else {
				action = actionFailed
				lg.Error().Ctx(ctx).Err(err).Str("session_id", id).Msg("sweep session failed")
			}
		}

		switch action {
		case actionWarn:
			rep.Warned++
		case actionRevive:
			rep.Revived++
		case actionAbandon:
			rep.Abandoned++
		case actionSkip, actionStale:
			rep.Skipped++
		case actionFailed:
			rep.Failed++
		}
		if action != actionNone {
			sweeperActions.WithLabelValues(string(action)).Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.scanned", rep.Scanned),
		attribute.Int("sweep.warned", rep.Warned),
		attribute.Int("sweep.abandoned", rep.Abandoned),
	)
	if rep.Warned+rep.Revived+rep.Abandoned+rep.Failed > 0 {
		lg.Info().
			Int("scanned", rep.Scanned).
			Int("warned", rep.Warned).
			Int("revived", rep.Revived).
			Int("abandoned", rep.Abandoned).
			Int("skipped", rep.Skipped).
			Int("failed", rep.Failed).
			Msg("inactivity sweep")
	}
	return rep, nil
}

// sweepOne evaluates a single session on a fresh read inside its own
// transaction.
func (s *Sweeper) sweepOne(ctx context.Context, id string) (sweepAction, error) {
	now := s.now()
	action := actionNone
	var d *delivery

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if !sess.Active || sess.LastActivityAt == nil || sess.Abandoned {
			action = actionSkip
			return nil
		}

		last := sess.LastActivityAt.UTC()
		idle := now.Sub(last)
		d = newDelivery(tx, sess, now)

		if sess.WarningSentAt == nil {
			if idle <= s.WarnAfter {
				return nil
			}
			if err := d.text(ctx, warningText(s.GraceAfterWarning), false); err != nil {
				return err
			}
			warned := now
			sess.WarningSentAt = &warned
			action = actionWarn
			return repo.SaveSession(ctx, tx, sess)
		}

		warned := sess.WarningSentAt.UTC()
		if last.After(warned) {
			// The user replied after the warning; the marker is stale.
			sess.WarningSentAt = nil
			action = actionRevive
			return repo.SaveSession(ctx, tx, sess)
		}

		if idle > s.WarnAfter+s.GraceAfterWarning && now.Sub(warned) >= s.GraceAfterWarning {
			sess.Abandoned = true
			sess.CurrentState = domain.StateAwaitingRating
			sess.WarningSentAt = nil
			if err := d.text(ctx, textTimeoutClose, false); err != nil {
				return err
			}
			action = actionAbandon
			return repo.SaveSession(ctx, tx, sess)
		}
		return nil
	})
	if err != nil {
		return actionNone, err
	}
	if action == actionWarn || action == actionRevive || action == actionAbandon {
		d.flush(ctx, s.Sender)
	}
	return action, nil
}
