// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// ProcessedEvent records a provider message id that has already been fed to
// the conversation engine. Messaging providers deliver webhooks at least
// once; a second delivery of the same (provider, event_id) is dropped.
// Rows expire after ExpiresAt and are purged periodically.
type ProcessedEvent struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Provider  string    `gorm:"type:varchar(16);not null;uniqueIndex:ux_provider_event,priority:1"`
	EventID   string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_event,priority:2"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedEvent) TableName() string { return "processed_events" }
