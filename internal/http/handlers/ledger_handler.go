// Ledger HTTP handlers.
//
// This file exposes the REST surface of the core engine:
//   - POST /apps/{app_id}/players/{player_id}/items/{item_id}/grant
//   - POST /apps/{app_id}/players/{player_id}/items/{item_id}/consume
//   - GET  /apps/{app_id}/players/{player_id}/items
//
// Handlers are transport-thin: they assemble validated identifiers (the
// merchant id arrives pre-authenticated in X-Merchant-ID), call the engine,
// and translate service errors into HTTP responses. Authentication and
// merchant/app administration live upstream.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-item-ledger/internal/domain"
	"github.com/tbourn/go-item-ledger/internal/partition"
	"github.com/tbourn/go-item-ledger/internal/services"
	"github.com/tbourn/go-item-ledger/internal/utils"
)

// HeaderIdempotencyKey carries the caller-supplied token guaranteeing
// at-most-once effect for retried mutations.
const HeaderIdempotencyKey = "Idempotency-Key"

//
// Service contracts (context-aware)
//

// LedgerService defines the mutating engine operations consumed by the HTTP
// layer. Implementations must honor the provided context.
type LedgerService interface {
	Grant(ctx context.Context, owner domain.Owner, playerID, itemID string, amount int64, remark, idempotencyKey string) (*services.GrantResult, error)
	Consume(ctx context.Context, owner domain.Owner, playerID, itemID string, amount int64, entryID, remark, idempotencyKey string) (*services.ConsumeResult, error)
}

// QueryService defines the read-side aggregation consumed by the HTTP layer.
type QueryService interface {
	GetPlayerItems(ctx context.Context, owner domain.Owner, playerID string, window *partition.Window, itemID string) ([]domain.PlayerItem, error)
}

// Handlers groups the ledger HTTP endpoints.
type Handlers struct {
	ledger LedgerService
	query  QueryService
}

// New constructs a Handlers instance bound to the given services.
func New(ledger LedgerService, query QueryService) *Handlers {
	return &Handlers{ledger: ledger, query: query}
}

//
// DTOs
//

// GrantRequest is the JSON payload for granting items.
type GrantRequest struct {
	// Amount of units to grant; must be positive.
	Amount int64 `json:"amount" binding:"required"`
	// Remark is optional free text stored on the ledger record.
	Remark string `json:"remark"`
}

// ConsumeRequest is the JSON payload for consuming items.
type ConsumeRequest struct {
	// Amount of units to consume; must be positive.
	Amount int64 `json:"amount" binding:"required"`
	// EntryID optionally targets one inventory entry; FIFO when empty.
	EntryID string `json:"entry_id"`
	// Remark is optional free text stored on the ledger record.
	Remark string `json:"remark"`
}

// GrantResponse reports a grant outcome.
type GrantResponse struct {
	Replayed     bool   `json:"replayed"`
	EntryID      string `json:"entry_id,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	BalanceAfter int64  `json:"balance_after"`
}

// ConsumeResponse reports a consume outcome.
type ConsumeResponse struct {
	Replayed     bool   `json:"replayed"`
	EntryID      string `json:"entry_id"`
	BalanceAfter int64  `json:"balance_after"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListItemsResponse wraps a page of player items and pagination information.
type ListItemsResponse struct {
	Items      []domain.PlayerItem `json:"items"`
	Pagination Pagination          `json:"pagination"`
}

//
// Helpers
//

// owner assembles the tenant identity from the authenticated merchant header
// and the app id path segment.
func owner(c *gin.Context) domain.Owner {
	return domain.Owner{
		MerchantID: strings.TrimSpace(c.GetHeader("X-Merchant-ID")),
		AppID:      strings.TrimSpace(c.Param("app_id")),
	}
}

// window parses the optional start/end query params (unix seconds or
// milliseconds) into a partition window. Returns nil when neither is set;
// an open end defaults to now and an open start to the epoch.
func window(c *gin.Context) *partition.Window {
	start := utils.Int64Default(c.Query("start"), 0)
	end := utils.Int64Default(c.Query("end"), 0)
	if start == 0 && end == 0 {
		return nil
	}
	w := &partition.Window{
		Start: partition.NormalizeUnix(start),
		End:   partition.NormalizeUnix(end),
	}
	if end == 0 {
		w.End = time.Now().UTC()
	}
	return w
}

// clampPagination parses and bounds the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failFromService translates a service error into the HTTP envelope.
func failFromService(c *gin.Context, err error) {
	var quota *services.QuotaExceededError
	var balance *services.InsufficientBalanceError
	switch {
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case services.IsNotFound(err):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &quota):
		fail(c, http.StatusConflict, ErrCodeQuotaExceeded, err.Error())
	case errors.As(err, &balance):
		fail(c, http.StatusConflict, ErrCodeInsufficientBalance, err.Error())
	case errors.Is(err, services.ErrAppDisabled):
		fail(c, http.StatusConflict, ErrCodeAppDisabled, err.Error())
	case errors.Is(err, services.ErrTemplateExpired), errors.Is(err, services.ErrEntryExpired):
		fail(c, http.StatusConflict, ErrCodeExpired, err.Error())
	case services.IsConflict(err):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

//
// Handlers
//

// Grant handles POST .../items/{item_id}/grant.
func (h *Handlers) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))

	res, err := h.ledger.Grant(c.Request.Context(), owner(c),
		c.Param("player_id"), c.Param("item_id"), req.Amount, req.Remark, key)
	if err != nil {
		failFromService(c, err)
		return
	}

	resp := GrantResponse{Replayed: res.Replayed}
	if res.Record != nil {
		resp.BalanceAfter = res.Record.BalanceAfter
	}
	if res.Entry != nil {
		resp.EntryID = res.Entry.ID
		resp.Amount = res.Entry.Amount
		ok(c, http.StatusCreated, resp)
		return
	}
	ok(c, http.StatusOK, resp)
}

// Consume handles POST .../items/{item_id}/consume.
func (h *Handlers) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))

	res, err := h.ledger.Consume(c.Request.Context(), owner(c),
		c.Param("player_id"), c.Param("item_id"), req.Amount, req.EntryID, req.Remark, key)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, ConsumeResponse{
		Replayed:     res.Replayed,
		EntryID:      res.EntryID,
		BalanceAfter: res.BalanceAfter,
	})
}

// ListItems handles GET .../players/{player_id}/items.
func (h *Handlers) ListItems(c *gin.Context) {
	items, err := h.query.GetPlayerItems(c.Request.Context(), owner(c),
		c.Param("player_id"), window(c), c.Query("item_id"))
	if err != nil {
		failFromService(c, err)
		return
	}

	page, pageSize := clampPagination(c)
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	totalPages := (total + pageSize - 1) / pageSize

	ok(c, http.StatusOK, ListItemsResponse{
		Items: items[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    end < total,
		},
	})
}
