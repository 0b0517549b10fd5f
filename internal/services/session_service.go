// Package services – SessionService
//
// Read-side queries over sessions and their transcripts for the operational
// API: paginated active-session listing, paginated message log, and the
// aggregate stats the HTTP layer turns into weak ETags.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/repo"
	"github.com/tbourn/go-consent-bot/internal/utils"
)

// SessionService serves paginated session and transcript reads.
type SessionService struct {
	DB *gorm.DB
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{DB: db}
}

// ListActivePage returns a page of active sessions (owner preloaded, newest
// first) and the total number of active sessions.
func (s *SessionService) ListActivePage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListActivePage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	offset, limit := utils.Paginate(page, pageSize)
	total, err := repo.CountActiveSessions(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := repo.ListActiveSessionsPage(ctx, s.DB, offset, limit)
	return items, total, err
}

// ListMessagesPage returns a page of the session's message log in
// chronological order, and the total number of entries.
func (s *SessionService) ListMessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListMessagesPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if _, err := repo.GetSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, err
	}

	offset, limit := utils.Paginate(page, pageSize)
	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, offset, limit)
	return items, total, err
}

// ActiveStats returns the active-session count and their latest write time.
func (s *SessionService) ActiveStats(ctx context.Context) (int64, *time.Time, error) {
	return repo.ActiveSessionsStats(ctx, s.DB)
}

// MessageStats returns the transcript length and its newest entry time.
func (s *SessionService) MessageStats(ctx context.Context, sessionID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, sessionID)
}
