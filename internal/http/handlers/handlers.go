package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/services"
	"github.com/tbourn/go-consent-bot/internal/utils"
)

//
// Service contracts (context-aware)
//

// Conversations drives the consent flow. Implemented by *services.Engine.
type Conversations interface {
	// HandleEvent processes one inbound provider message.
	HandleEvent(ctx context.Context, ev services.InboundEvent) error
	// RequestSurvey ends the handoff phase and invites the user to rate it.
	RequestSurvey(ctx context.Context, sessionID string) error
}

// Sessions serves read-side queries. Implemented by *services.SessionService.
type Sessions interface {
	ListActivePage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error)
	ListMessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	ActiveStats(ctx context.Context) (int64, *time.Time, error)
	MessageStats(ctx context.Context, sessionID string) (int64, *time.Time, error)
}

// Sweeper runs one inactivity sweep. Implemented by *services.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepReport, error)
}

//
// Handler wiring
//

// Handlers groups the webhook and operational endpoints.
type Handlers struct {
	conv     Conversations
	sessions Sessions
	sweeper  Sweeper

	// verifyToken answers the Cloud API subscription handshake. Empty
	// rejects every handshake.
	verifyToken string
}

// New constructs Handlers bound to the given services.
func New(conv Conversations, sessions Sessions, sweeper Sweeper, verifyToken string) *Handlers {
	return &Handlers{conv: conv, sessions: sessions, sweeper: sweeper, verifyToken: verifyToken}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// clampPagination reads page and page_size, applying defaults and the
// maximum page size.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > utils.MaxPageSize {
		pageSize = utils.MaxPageSize
	}
	return page, pageSize
}
