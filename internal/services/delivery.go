package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/repo"
)

// delivery collects the outbound side of one transaction. Each payload is
// logged to the message table inside the transaction and queued; the queue
// is only handed to the channel after commit, so a rolled-back event never
// reaches the user.
type delivery struct {
	tx      *gorm.DB
	session *domain.Session
	now     time.Time
	seq     int

	queue []channel.Payload

	from, to domain.State
	closed   *domain.CloseReason
}

func newDelivery(tx *gorm.DB, s *domain.Session, now time.Time) *delivery {
	return &delivery{tx: tx, session: s, now: now, from: s.CurrentState}
}

// stamp returns now plus one microsecond per entry already written, so the
// log entries of one event keep their emission order.
func (d *delivery) stamp() time.Time {
	t := d.now.Add(time.Duration(d.seq) * time.Microsecond)
	d.seq++
	return t
}

// inbound logs the user's message and marks the session as active now.
func (d *delivery) inbound(ctx context.Context, body string) error {
	if _, err := repo.CreateMessage(ctx, d.tx, d.session.ID, domain.DirectionIn, body, domain.MessageTypeText, d.stamp()); err != nil {
		return err
	}
	d.touch()
	return nil
}

func (d *delivery) text(ctx context.Context, body string, refresh bool) error {
	return d.push(ctx, channel.TextMessage(d.session.User.Phone, body), refresh)
}

func (d *delivery) buttons(ctx context.Context, body string, refresh bool, options ...channel.Reply) error {
	return d.push(ctx, channel.ButtonMessage(d.session.User.Phone, body, options...), refresh)
}

func (d *delivery) document(ctx context.Context, link, caption string, refresh bool) error {
	return d.push(ctx, channel.DocumentMessage(d.session.User.Phone, link, caption), refresh)
}

// push logs p as outbound and queues it. refresh=false is for automated
// messages (sweeper) that must not count as conversation activity.
func (d *delivery) push(ctx context.Context, p channel.Payload, refresh bool) error {
	if _, err := repo.CreateMessage(ctx, d.tx, d.session.ID, domain.DirectionOut, p.Summary(), p.Type, d.stamp()); err != nil {
		return err
	}
	if refresh {
		d.touch()
	}
	d.queue = append(d.queue, p)
	return nil
}

func (d *delivery) touch() {
	t := d.now
	d.session.LastActivityAt = &t
}

// close ends the session. Closing an inactive session is a no-op.
func (d *delivery) close(reason domain.CloseReason) bool {
	s := d.session
	if !s.Active {
		return false
	}
	now := d.now
	s.Active = false
	s.EndedAt = &now
	s.CurrentState = domain.StateClosed
	s.LastActivityAt = &now
	r := reason
	if r != "" {
		s.CloseReason = &r
	}
	d.closed = &r
	return true
}

// flush runs after commit. Send failures are logged and counted; the
// committed state stands.
func (d *delivery) flush(ctx context.Context, sender channel.Sender) {
	if d == nil {
		return
	}
	d.to = d.session.CurrentState
	if d.to != d.from {
		transitionsTotal.WithLabelValues(string(d.from), string(d.to)).Inc()
	}
	if d.closed != nil {
		reason := string(*d.closed)
		if reason == "" {
			reason = "none"
		}
		sessionsClosed.WithLabelValues(reason).Inc()
	}

	lg := loggerFrom(ctx)
	for _, p := range d.queue {
		if sender == nil {
			outboundFailures.WithLabelValues(p.Type).Inc()
			lg.Error().Ctx(ctx).Str("session_id", d.session.ID).Str("type", p.Type).Msg("no channel configured; outbound message dropped")
			continue
		}
		if err := sender.Send(ctx, p); err != nil {
			outboundFailures.WithLabelValues(p.Type).Inc()
			lg.Error().Ctx(ctx).Err(err).
				Str("session_id", d.session.ID).
				Str("type", p.Type).
				Msg("outbound send failed")
			continue
		}
		outboundSent.WithLabelValues(p.Type).Inc()
	}
}

// loggerFrom returns the logger carried by ctx (attached by the HTTP layer or
// the scheduler) or the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
