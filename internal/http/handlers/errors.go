// Package handlers defines the HTTP-layer error codes returned in the
// standard error envelope.
//
// Clients branch on these codes; the message is for humans. Generic codes
// mirror HTTP status semantics, the rest name a failed operation.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "session_closed",
//	  "message": "session is already closed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSessionClosed = "session_closed"
	ErrCodeEventFailed   = "event_failed"
	ErrCodeListFailed    = "list_failed"
	ErrCodeCloseFailed   = "close_failed"
	ErrCodeSweepFailed   = "sweep_failed"
)
