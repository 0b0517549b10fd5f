// Package domain defines the persistence models for users, conversation
// sessions, the message log and policy consents. These types are mapped with
// GORM and form the core data layer of the consent bot.
package domain

import (
	"time"
)

// User is a messaging contact identified by its phone number. A user is
// created on first contact and owns zero or more sessions.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Phone: unique channel address (E.164 digits as delivered by the provider).
//   - Name: optional display name; the only field that changes after creation.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Phone     string    `json:"phone"      gorm:"type:varchar(32);not null;uniqueIndex:ux_users_phone"`
	Name      *string   `json:"name,omitempty" gorm:"type:varchar(100)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Session is one bounded conversation with a user, governed by the state
// machine. Sessions are never deleted; closing sets Active=false and stamps
// EndedAt.
//
// The per-session facts (close reason, survey answer, inactivity warning
// marker, abandoned flag) are explicit optional columns.
//
// At most one active session per user is enforced by the partial unique
// index ux_sessions_active_user. Version is bumped by every write and used
// as a compare-and-swap guard (see repo.SaveSession).
type Session struct {
	ID             string        `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID         string        `json:"user_id"          gorm:"type:char(36);not null;index:idx_sessions_user;uniqueIndex:ux_sessions_active_user,where:active = true"`
	Active         bool          `json:"active"           gorm:"not null;index:idx_sessions_active"`
	StartedAt      time.Time     `json:"started_at"       gorm:"not null"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	CurrentState   State         `json:"current_state"    gorm:"type:varchar(50);not null"`
	LastActivityAt *time.Time    `json:"last_activity_at,omitempty"`
	CloseReason    *CloseReason  `json:"close_reason,omitempty"  gorm:"type:varchar(64)"`
	Satisfaction   *Satisfaction `json:"satisfaction,omitempty"  gorm:"type:varchar(32)"`
	WarningSentAt  *time.Time    `json:"warning_sent_at,omitempty"`
	Abandoned      bool          `json:"abandoned"        gorm:"not null"`
	Version        int64         `json:"version"          gorm:"not null"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// User is the session owner.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message types.
const (
	MessageTypeText        = "text"
	MessageTypeInteractive = "interactive"
	MessageTypeDocument    = "document"
)

// Message is an immutable log record of one inbound or outbound exchange.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Direction string    `json:"direction"  gorm:"type:varchar(3);not null;check:direction IN ('in','out')"`
	Body      string    `json:"body"       gorm:"type:text;not null"`
	Type      string    `json:"type"       gorm:"type:varchar(16);not null;check:type IN ('text','interactive','document')"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// PolicyConsent is an append-only audit record of a user's explicit
// accept/reject decision on the data policy, taken within a session.
type PolicyConsent struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index"`
	Accepted  bool      `json:"accepted"   gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`

	User    User    `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for PolicyConsent.
func (PolicyConsent) TableName() string { return "policy_consents" }
