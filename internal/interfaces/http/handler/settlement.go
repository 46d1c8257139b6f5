package handler

import (
	"context"
	"strings"
	"time"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SettlementQueries is the read side of the settlement service
type SettlementQueries interface {
	Summaries(ctx context.Context, filter appsettlement.Filter) (*appsettlement.SummaryResult, error)
	PartyDetail(ctx context.Context, party settlement.PartyID, filter appsettlement.Filter) (*appsettlement.PartyDetail, error)
}

// SettlementHandler serves party summaries and ledgers
type SettlementHandler struct {
	BaseHandler
	service SettlementQueries
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(service SettlementQueries) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// ListParties returns one summary per party over the requested window.
// A PARTIAL status in the body means at least one source could not be read
// completely; the response is still 200.
//
// GET /settlement/parties?from=&to=&search=
func (h *SettlementHandler) ListParties(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	result, err := h.service.Summaries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetPartyLedger returns the batches and settlement ledger of one party.
// The path id is a canonical party id ("id:<x>", "name:<x>", "unknown") or a
// raw upstream id.
//
// GET /settlement/parties/:id/ledger?from=&to=
func (h *SettlementHandler) GetPartyLedger(c *gin.Context) {
	var path dto.PartyPathRequest
	if err := c.ShouldBindUri(&path); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "Invalid party id")
		return
	}
	party := settlement.ParsePartyID(strings.TrimSpace(path.ID))

	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	ctx := logger.WithPartyID(c.Request.Context(), party.String())
	detail, err := h.service.PartyDetail(ctx, party, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// bindFilter parses the shared query parameters; it writes the 400 response
// itself and reports false on bad input
func (h *SettlementHandler) bindFilter(c *gin.Context) (appsettlement.Filter, bool) {
	var q dto.SettlementQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "Invalid query parameters")
		return appsettlement.Filter{}, false
	}

	filter := appsettlement.Filter{Search: strings.TrimSpace(q.Search)}

	from, err := parseDateParam(q.From, false)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeValidationFormat, "from must be YYYY-MM-DD or RFC3339")
		return appsettlement.Filter{}, false
	}
	to, err := parseDateParam(q.To, true)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeValidationFormat, "to must be YYYY-MM-DD or RFC3339")
		return appsettlement.Filter{}, false
	}
	if from != nil && to != nil && to.Before(*from) {
		h.BadRequest(c, dto.ErrCodeValidationRange, "to must not be before from")
		return appsettlement.Filter{}, false
	}
	filter.From, filter.To = from, to
	return filter, true
}

// parseDateParam accepts a calendar date or an RFC3339 instant. A bare date
// used as an upper bound covers the whole day.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
