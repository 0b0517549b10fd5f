// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PolicyConsent audit trail.
//
// Consents are append-only: a user who answers twice across sessions gets
// two rows. Nothing here enforces "one decision per session"; the state
// machine only records a decision when leaving esperando_aceptacion.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/domain"
)

// CreatePolicyConsent records an accept/reject decision.
func CreatePolicyConsent(ctx context.Context, db *gorm.DB, userID, sessionID string, accepted bool, at time.Time) (*domain.PolicyConsent, error) {
	pc := &domain.PolicyConsent{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Accepted:  accepted,
		CreatedAt: at.UTC(),
	}
	if err := db.WithContext(ctx).Create(pc).Error; err != nil {
		return nil, err
	}
	return pc, nil
}

// ListPolicyConsents returns the decisions recorded for a user, oldest first.
func ListPolicyConsents(ctx context.Context, db *gorm.DB, userID string) ([]domain.PolicyConsent, error) {
	var out []domain.PolicyConsent
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
