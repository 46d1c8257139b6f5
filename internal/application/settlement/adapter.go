package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Paging defaults
const (
	DefaultPageSize    = 100
	DefaultMaxPages    = 20
	DefaultPageTimeout = 10 * time.Second
)

// FetchStatus tells whether a fetch returned everything the source holds
type FetchStatus string

const (
	FetchStatusComplete FetchStatus = "COMPLETE"
	FetchStatusPartial  FetchStatus = "PARTIAL"
)

// FetchResult is everything read from one source
type FetchResult[T any] struct {
	Kind   settlement.SourceKind `json:"kind"`
	Items  []T                   `json:"-"`
	Status FetchStatus           `json:"status"`
	State  CursorState           `json:"state"`
	Pages  int                   `json:"pages"`
	Issues settlement.Issues     `json:"issues,omitempty"`
}

// Failed returns true when the source stopped on an error
func (r FetchResult[T]) Failed() bool {
	return r.State == CursorSourceError
}

// AdapterOption configures a SourceAdapter
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	pageSize    int
	maxPages    int
	pageTimeout time.Duration
	logger      *zap.Logger
	metrics     *telemetry.SettlementMetrics
}

// WithPageSize sets the page size. Non-positive values keep the default.
func WithPageSize(n int) AdapterOption {
	return func(c *adapterConfig) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages sets the page cap. Non-positive values keep the default.
func WithMaxPages(n int) AdapterOption {
	return func(c *adapterConfig) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithPageTimeout sets the per-page timeout. Non-positive values keep the default.
func WithPageTimeout(d time.Duration) AdapterOption {
	return func(c *adapterConfig) {
		if d > 0 {
			c.pageTimeout = d
		}
	}
}

// WithAdapterLogger sets the logger used for fetch outcomes
func WithAdapterLogger(l *zap.Logger) AdapterOption {
	return func(c *adapterConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAdapterMetrics records pages and fetch outcomes
func WithAdapterMetrics(m *telemetry.SettlementMetrics) AdapterOption {
	return func(c *adapterConfig) {
		c.metrics = m
	}
}

// SourceAdapter reads a whole paginated source into memory
type SourceAdapter[T any] struct {
	kind     settlement.SourceKind
	provider PageProvider[T]
	config   adapterConfig
}

// NewSourceAdapter creates an adapter for one source kind
func NewSourceAdapter[T any](kind settlement.SourceKind, provider PageProvider[T], opts ...AdapterOption) *SourceAdapter[T] {
	cfg := adapterConfig{
		pageSize:    DefaultPageSize,
		maxPages:    DefaultMaxPages,
		pageTimeout: DefaultPageTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SourceAdapter[T]{kind: kind, provider: provider, config: cfg}
}

// Kind returns the source kind this adapter reads
func (a *SourceAdapter[T]) Kind() settlement.SourceKind {
	return a.kind
}

// Cursor returns a fresh page cursor over the source
func (a *SourceAdapter[T]) Cursor(filter Filter) *Cursor[T] {
	return &Cursor[T]{
		kind:        a.kind,
		provider:    a.provider,
		filter:      filter,
		pageSize:    a.config.pageSize,
		maxPages:    a.config.maxPages,
		pageTimeout: a.config.pageTimeout,
		metrics:     a.config.metrics,
		state:       CursorFetching,
	}
}

// FetchAll drains the source. A page failure mid-stream keeps the pages
// already read and marks the result PARTIAL with a SOURCE_UNAVAILABLE issue.
// Cancellation of ctx itself is returned as an error and the partial data is
// discarded.
func (a *SourceAdapter[T]) FetchAll(ctx context.Context, filter Filter) (FetchResult[T], error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement_source", "fetch_all",
		telemetry.WithAttribute(telemetry.SpanAttrSourceKind, string(a.kind)),
	)
	defer span.End()

	result := FetchResult[T]{
		Kind:   a.kind,
		Items:  make([]T, 0),
		Status: FetchStatusComplete,
	}

	cur := a.Cursor(filter)
	for cur.Next(ctx) {
		result.Items = append(result.Items, cur.Items()...)
	}
	result.State = cur.State()
	result.Pages = cur.Pages()

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return FetchResult[T]{}, err
	}

	log := logger.WithLogger(ctx, a.config.logger).With(
		zap.String("source", string(a.kind)),
		zap.Int("pages", result.Pages),
		zap.Int("items", len(result.Items)),
	)

	switch result.State {
	case CursorSourceError:
		err := cur.Err()
		result.Status = FetchStatusPartial
		result.Issues = settlement.Issues{settlement.NewIssue(settlement.IssueSourceUnavailable, a.kind, "", describePageError(err))}
		log.Warn("Source fetch partial", zap.Error(err))
		telemetry.RecordError(span, err)
	case CursorCapReached:
		log.Warn("Source fetch stopped at page cap", zap.Int("max_pages", a.config.maxPages))
		telemetry.SetOK(span)
	default:
		log.Debug("Source fetch complete")
		telemetry.SetOK(span)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCursorState, string(result.State),
		telemetry.SpanAttrItems, len(result.Items),
		telemetry.SpanAttrStatus, string(result.Status),
	)
	a.config.metrics.RecordFetch(ctx, string(a.kind), string(result.State), string(result.Status), time.Since(start))
	return result, nil
}

func describePageError(err error) string {
	var pe *PageError
	if errors.As(err, &pe) && errors.Is(pe.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s page %d timed out", pe.Source, pe.Page)
	}
	return err.Error()
}
