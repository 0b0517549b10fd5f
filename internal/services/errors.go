// Package services holds the conversation engine, the inactivity sweeper and
// the read-side session queries. This file centralizes service-level error
// values so handlers can map them to HTTP results consistently.
package services

import "errors"

var (
	// ErrSessionNotFound indicates that no session has the requested id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when an operation needs an active session
	// and the session has already ended.
	ErrSessionClosed = errors.New("session already closed")

	// ErrDuplicateEvent means the provider message id was already processed;
	// the event was dropped without side effects.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrEmptyAddress is returned for inbound events without a sender.
	ErrEmptyAddress = errors.New("sender address is empty")

	// ErrConcurrentUpdate is returned when a session kept changing under us
	// and the retry budget ran out.
	ErrConcurrentUpdate = errors.New("session updated concurrently")
)
