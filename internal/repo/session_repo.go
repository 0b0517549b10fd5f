// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateSession returns ErrDuplicate when the user already owns an
//     active session (partial unique index ux_sessions_active_user).
//   - SaveSession returns ErrStaleSession when the stored version moved on
//     since the caller's read.
//   - On other DB errors the raw gorm error is propagated.
//
// Usage:
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//	    s, err := repo.GetActiveSession(ctx, tx, userID)
//	    if errors.Is(err, repo.ErrNotFound) {
//	        s, err = repo.CreateSession(ctx, tx, userID, now)
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    s.CurrentState = domain.StateAwaitingConsent
//	    return repo.SaveSession(ctx, tx, s)
//	})
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/domain"
)

// CreateSession opens a new active session for userID in state inicio with
// LastActivityAt = now.
func CreateSession(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Session, error) {
	now = now.UTC()
	s := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Active:         true,
		StartedAt:      now,
		CurrentState:   domain.StateStart,
		LastActivityAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// GetActiveSession returns the user's single active session, or ErrNotFound.
func GetActiveSession(ctx context.Context, db *gorm.DB, userID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches a session by ID with its owner preloaded.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Preload("User").
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveSessionIDs returns the IDs of every active session, oldest
// activity first. The sweeper re-reads each one inside its own transaction.
func ListActiveSessionIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("active = ?", true).
		Order("last_activity_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountActiveSessions returns the number of active sessions.
func CountActiveSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("active = ?", true).
		Count(&total).Error
	return total, err
}

// ListActiveSessionsPage returns a page of active sessions with their owners,
// newest first.
func ListActiveSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Preload("User").
		Where("active = ?", true).
		Order("started_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SaveSession persists every mutable column of s, guarded by its Version.
// On success s.Version is advanced. If another writer updated the row since s
// was read, nothing is written and ErrStaleSession is returned.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	now := time.Now().UTC()
	next := s.Version + 1
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]any{
			"active":           s.Active,
			"ended_at":         s.EndedAt,
			"current_state":    s.CurrentState,
			"last_activity_at": s.LastActivityAt,
			"close_reason":     s.CloseReason,
			"satisfaction":     s.Satisfaction,
			"warning_sent_at":  s.WarningSentAt,
			"abandoned":        s.Abandoned,
			"version":          next,
			"updated_at":       now,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleSession
	}
	s.Version = next
	s.UpdatedAt = now
	return nil
}
