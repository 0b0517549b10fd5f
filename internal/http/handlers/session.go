// Operational session endpoints (mounted under API_BASE_PATH):
//
//   - GET  /sessions/active           active sessions, paginated, weak ETag
//   - GET  /sessions/{id}/messages    a session's transcript, paginated, weak ETag
//   - POST /sessions/{id}/close       end the handoff and send the survey invitation
//   - POST /sweep                     run one inactivity sweep now
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/services"
)

// SessionView is the public shape of an active session.
type SessionView struct {
	ID               string     `json:"id"                example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	UserPhone        string     `json:"user_phone"        example:"573001112233"`
	UserName         string     `json:"user_name,omitempty" example:"Ana"`
	State            string     `json:"state"             example:"aceptado"`
	StateDescription string     `json:"state_description" example:"Términos aceptados, pasa a asesor humano"`
	StartedAt        time.Time  `json:"started_at"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	WarningSentAt    *time.Time `json:"warning_sent_at,omitempty"`
	Abandoned        bool       `json:"abandoned"`
}

func toSessionView(s domain.Session) SessionView {
	v := SessionView{
		ID:               s.ID,
		UserPhone:        s.User.Phone,
		State:            string(s.CurrentState),
		StateDescription: s.CurrentState.Description(),
		StartedAt:        s.StartedAt,
		LastActivityAt:   s.LastActivityAt,
		WarningSentAt:    s.WarningSentAt,
		Abandoned:        s.Abandoned,
	}
	if s.User.Name != nil {
		v.UserName = *s.User.Name
	}
	return v
}

// ListSessionsResponse wraps a page of active sessions.
type ListSessionsResponse struct {
	Sessions   []SessionView `json:"sessions"`
	Pagination Pagination    `json:"pagination"`
}

// ListMessagesResponse wraps a page of a session transcript.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// CloseSessionResponse acknowledges a survey invitation.
type CloseSessionResponse struct {
	SessionID string `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	State     string `json:"state"      example:"esperando_calificacion"`
	Message   string `json:"message"    example:"Sesión marcada para calificación"`
}

// weakETag sets a weak ETag built from count and newest timestamp, and
// reports whether If-None-Match already matches it.
func weakETag(c *gin.Context, scope string, count int64, newest *time.Time) bool {
	var ts int64
	if newest != nil {
		ts = newest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, count, ts)
	c.Header("ETag", etag)
	return c.GetHeader("If-None-Match") == etag
}

// ListActiveSessions godoc
// @ID          listActiveSessions
// @Summary     List active sessions (paginated)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"sessions:active:3:1727791200000000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/active [get]
func (h *Handlers) ListActiveSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if count, newest, err := h.sessions.ActiveStats(ctx); err == nil {
		if weakETag(c, fmt.Sprintf("sessions:active:p%d:s%d", page, pageSize), count, newest) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.sessions.ListActivePage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	views := make([]SessionView, 0, len(items))
	for _, s := range items {
		views = append(views, toSessionView(s))
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   views,
		Pagination: newPagination(page, pageSize, total),
	})
}

// ListSessionMessages godoc
// @ID          listSessionMessages
// @Summary     List a session's messages (paginated)
// @Description Chronological transcript, inbound and outbound. Supports weak ETag.
// @Tags        Sessions
// @Produce     json
//
// @Param       id             path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}
	page, pageSize := clampPagination(c)

	if count, newest, err := h.sessions.MessageStats(ctx, id); err == nil && count > 0 {
		if weakETag(c, fmt.Sprintf("messages:%s:p%d:s%d", id, page, pageSize), count, newest) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.sessions.ListMessagesPage(ctx, id, page, pageSize)
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// CloseSession godoc
// @ID          closeSession
// @Summary     End the handoff and invite the user to rate it
// @Description Moves an active session to esperando_calificacion and sends the survey invitation.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.CloseSessionResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     409  {object} handlers.ErrorResponse "Session already closed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions/{id}/close [post]
func (h *Handlers) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	err := h.conv.RequestSurvey(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	case errors.Is(err, services.ErrSessionClosed):
		fail(c, http.StatusConflict, ErrCodeSessionClosed, "session is already closed")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeCloseFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CloseSessionResponse{
		SessionID: id,
		State:     string(domain.StateAwaitingRating),
		Message:   "Sesión marcada para calificación",
	})
}

// RunSweep godoc
// @ID          runSweep
// @Summary     Run one inactivity sweep now
// @Description Warns and abandons idle sessions exactly as the scheduled tick does, and returns the tick report.
// @Tags        Maintenance
// @Produce     json
//
// @Success     200  {object} services.SweepReport
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sweep [post]
func (h *Handlers) RunSweep(c *gin.Context) {
	rep, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}
