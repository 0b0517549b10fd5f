// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the processed-event ledger used to
// drop provider redeliveries of the same inbound message.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-consent-bot/internal/domain"
)

// MarkEventProcessed records (provider, eventID) and returns ErrDuplicate if
// it was already recorded. ON CONFLICT DO NOTHING keeps an enclosing
// transaction usable on PostgreSQL. Empty event IDs are never recorded.
func MarkEventProcessed(ctx context.Context, db *gorm.DB, provider, eventID string, ttl time.Duration, now time.Time) (*domain.ProcessedEvent, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, nil
	}
	now = now.UTC()
	rec := &domain.ProcessedEvent{
		ID:        uuid.NewString(),
		Provider:  provider,
		EventID:   eventID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return nil, ErrDuplicate
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return rec, nil
}

// PurgeExpiredEvents deletes ledger rows whose ExpiresAt is not after now.
func PurgeExpiredEvents(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
