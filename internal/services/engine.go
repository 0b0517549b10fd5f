// Package services – Engine
//
// This file implements the conversation engine: the per-user state machine
// that walks a contact through welcome → policy consent → human handoff →
// satisfaction survey → closed.
//
// Each inbound event is handled in one database transaction (dedupe, user
// and session resolution, message log, transition, session write). Session
// writes are compare-and-swap on the version column; when another writer
// (the sweeper, or a concurrent webhook for the same user) wins, the whole
// event is retried on fresh state. Outbound messages are sent after commit.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/repo"
)

// InboundEvent is one user message delivered by a provider webhook.
// EventID is the provider message id; when set, redeliveries are dropped.
// Kind is the provider message type ("image", "audio", ...); it only matters
// when Text is empty.
type InboundEvent struct {
	Provider string
	EventID  string
	From     string
	Name     string
	Kind     string
	Text     string
}

// Engine advances conversations in response to inbound messages.
type Engine struct {
	DB     *gorm.DB
	Sender channel.Sender

	// PolicyDocuments are links sent after the consent prompt.
	PolicyDocuments []string
	DocumentCaption string

	// EventTTL bounds how long a provider message id is remembered.
	EventTTL time.Duration
	// MaxAttempts caps transaction attempts on concurrent updates.
	MaxAttempts int

	Now func() time.Time
}

// NewEngine constructs an Engine with default caption, TTL and retry budget.
func NewEngine(db *gorm.DB, sender channel.Sender, documents []string) *Engine {
	return &Engine{
		DB:              db,
		Sender:          sender,
		PolicyDocuments: documents,
		DocumentCaption: DefaultDocumentCaption,
		EventTTL:        24 * time.Hour,
		MaxAttempts:     3,
		Now:             time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleIncoming processes one text from address without provider dedupe.
func (e *Engine) HandleIncoming(ctx context.Context, address, text string) error {
	return e.HandleEvent(ctx, InboundEvent{From: address, Text: text})
}

// HandleEvent processes one inbound event end to end.
func (e *Engine) HandleEvent(ctx context.Context, ev InboundEvent) error {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "HandleEvent",
		trace.WithAttributes(
			attribute.String("event.provider", ev.Provider),
			attribute.String("event.id", ev.EventID),
		),
	)
	defer span.End()

	address := strings.TrimSpace(ev.From)
	if address == "" {
		return ErrEmptyAddress
	}

	err := e.run(ctx, func(tx *gorm.DB, now time.Time) (*delivery, error) {
		return e.handle(ctx, tx, now, address, ev)
	})
	switch {
	case errors.Is(err, ErrDuplicateEvent):
		duplicateEvents.Inc()
		span.SetAttributes(attribute.Bool("event.duplicate", true))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) handle(ctx context.Context, tx *gorm.DB, now time.Time, address string, ev InboundEvent) (*delivery, error) {
	if ev.EventID != "" {
		provider := ev.Provider
		if provider == "" {
			provider = channel.ProviderCloud
		}
		if _, err := repo.MarkEventProcessed(ctx, tx, provider, ev.EventID, e.EventTTL, now); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return nil, ErrDuplicateEvent
			}
			return nil, fmt.Errorf("mark event: %w", err)
		}
	}

	user, _, err := repo.GetOrCreateUser(ctx, tx, address)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if name := strings.TrimSpace(ev.Name); name != "" && user.Name == nil {
		if err := repo.SetUserName(ctx, tx, user.ID, name); err != nil {
			return nil, fmt.Errorf("set user name: %w", err)
		}
		user.Name = &name
	}

	if strings.TrimSpace(ev.Text) == "" {
		return e.keepAlive(ctx, tx, now, user, ev.Kind)
	}

	sess, err := repo.GetActiveSession(ctx, tx, user.ID)
	if errors.Is(err, repo.ErrNotFound) {
		sess, err = repo.CreateSession(ctx, tx, user.ID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	sess.User = *user

	d := newDelivery(tx, sess, now)
	if err := d.inbound(ctx, ev.Text); err != nil {
		return nil, fmt.Errorf("log inbound: %w", err)
	}
	// A reply is proof of life: any pending inactivity warning is void.
	sess.WarningSentAt = nil

	if err := e.transition(ctx, d, normalizeReply(ev.Text)); err != nil {
		return nil, err
	}
	if err := repo.SaveSession(ctx, tx, sess); err != nil {
		return nil, err
	}
	return d, nil
}

// keepAlive handles a message without text (image, audio, sticker, ...).
// It is logged and counts as activity in an open session, which voids a
// pending inactivity warning, but it never opens a session or moves the
// state machine.
func (e *Engine) keepAlive(ctx context.Context, tx *gorm.DB, now time.Time, user *domain.User, kind string) (*delivery, error) {
	sess, err := repo.GetActiveSession(ctx, tx, user.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	sess.User = *user

	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "unsupported"
	}
	d := newDelivery(tx, sess, now)
	if err := d.inbound(ctx, "["+kind+"]"); err != nil {
		return nil, fmt.Errorf("log inbound: %w", err)
	}
	sess.WarningSentAt = nil
	if err := repo.SaveSession(ctx, tx, sess); err != nil {
		return nil, err
	}
	return d, nil
}

// transition applies the state table to the session held by d.
func (e *Engine) transition(ctx context.Context, d *delivery, text string) error {
	s := d.session
	state, known := domain.ParseState(string(s.CurrentState))
	if state == "" {
		state, known = domain.StateStart, true
	}
	if !known {
		loggerFrom(ctx).Warn().
			Str("session_id", s.ID).
			Str("state", string(s.CurrentState)).
			Msg("unknown session state; message logged only")
		return nil
	}

	switch state {
	case domain.StateStart:
		if err := d.buttons(ctx, textWelcome, true, consentOptions...); err != nil {
			return err
		}
		for _, link := range e.PolicyDocuments {
			if err := d.document(ctx, link, e.DocumentCaption, true); err != nil {
				return err
			}
		}
		s.CurrentState = domain.StateAwaitingConsent

	case domain.StateAwaitingConsent:
		switch {
		case isRejection(text):
			if _, err := repo.CreatePolicyConsent(ctx, d.tx, s.UserID, s.ID, false, d.now); err != nil {
				return fmt.Errorf("record consent: %w", err)
			}
			s.CurrentState = domain.StateRejected
			if err := d.text(ctx, textRejected, true); err != nil {
				return err
			}
			d.close(domain.CloseRejectedPolicy)
		case isAcceptance(text):
			if _, err := repo.CreatePolicyConsent(ctx, d.tx, s.UserID, s.ID, true, d.now); err != nil {
				return fmt.Errorf("record consent: %w", err)
			}
			s.CurrentState = domain.StateAccepted
			return d.text(ctx, textAccepted, true)
		default:
			return d.text(ctx, textConsentReprompt, true)
		}

	case domain.StateAwaitingRating:
		switch {
		case isAffirmative(text):
			s.CurrentState = domain.StateSurvey
			return d.text(ctx, textSurveyQuestion, true)
		case isNegative(text):
			if err := d.text(ctx, textSurveyDeclined, true); err != nil {
				return err
			}
			d.close(domain.CloseDeclinedSurvey)
		default:
			return d.text(ctx, textYesNoReprompt, true)
		}

	case domain.StateSurvey:
		switch {
		case isAffirmative(text):
			answer := domain.Satisfied
			s.Satisfaction = &answer
			if err := d.text(ctx, textThanksSatisfied, true); err != nil {
				return err
			}
			d.close(domain.CloseSurveySatisfied)
		case isNegative(text):
			answer := domain.Unsatisfied
			s.Satisfaction = &answer
			if err := d.text(ctx, textThanksUnhappy, true); err != nil {
				return err
			}
			d.close(domain.CloseSurveyUnsatisfied)
		default:
			return d.text(ctx, textYesNoReprompt, true)
		}

	default:
		// aceptado, rechazado, finalizado: the message is on record, nothing else.
		loggerFrom(ctx).Debug().
			Str("session_id", s.ID).
			Str("state", string(state)).
			Msg("message in passive state")
	}
	return nil
}

// CloseSession ends a session. Closing an already-closed session succeeds
// without changes. reason may be empty.
func (e *Engine) CloseSession(ctx context.Context, sessionID string, reason domain.CloseReason) error {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "CloseSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	return e.run(ctx, func(tx *gorm.DB, now time.Time) (*delivery, error) {
		sess, err := e.load(ctx, tx, sessionID)
		if err != nil {
			return nil, err
		}
		d := newDelivery(tx, sess, now)
		if !d.close(reason) {
			return nil, nil
		}
		if err := repo.SaveSession(ctx, tx, sess); err != nil {
			return nil, err
		}
		return d, nil
	})
}

// RequestSurvey ends the human-handoff phase of an active session: it moves
// to esperando_calificacion and the user is invited to rate the service.
func (e *Engine) RequestSurvey(ctx context.Context, sessionID string) error {
	tr := otel.Tracer("services/Engine")
	ctx, span := tr.Start(ctx, "RequestSurvey",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	return e.run(ctx, func(tx *gorm.DB, now time.Time) (*delivery, error) {
		sess, err := e.load(ctx, tx, sessionID)
		if err != nil {
			return nil, err
		}
		if !sess.Active {
			return nil, ErrSessionClosed
		}
		d := newDelivery(tx, sess, now)
		sess.CurrentState = domain.StateAwaitingRating
		sess.WarningSentAt = nil
		if err := d.text(ctx, textSurveyInvitation, true); err != nil {
			return nil, err
		}
		if err := repo.SaveSession(ctx, tx, sess); err != nil {
			return nil, err
		}
		return d, nil
	})
}

func (e *Engine) load(ctx context.Context, tx *gorm.DB, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// run executes fn in a transaction, retrying on lost compare-and-swap or a
// lost active-session insert race, and flushes the delivery after commit.
func (e *Engine) run(ctx context.Context, fn func(tx *gorm.DB, now time.Time) (*delivery, error)) error {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var d *delivery
		err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			d, err = fn(tx, e.now())
			return err
		})
		if err == nil {
			d.flush(ctx, e.Sender)
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		loggerFrom(ctx).Debug().Err(err).Int("attempt", attempt).Msg("session changed concurrently; retrying")
	}
	return fmt.Errorf("%w: %v", ErrConcurrentUpdate, lastErr)
}

func retryable(err error) bool {
	return errors.Is(err, repo.ErrStaleSession) || errors.Is(err, repo.ErrDuplicate)
}
