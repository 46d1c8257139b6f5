package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
)

// CursorState is the state of a page loop
type CursorState string

const (
	CursorFetching        CursorState = "fetching"
	CursorLastPageReached CursorState = "lastPageReached"
	CursorCapReached      CursorState = "capReached"
	CursorSourceError     CursorState = "sourceError"
)

// IsTerminal returns true once the cursor will not fetch again
func (s CursorState) IsTerminal() bool {
	return s != CursorFetching
}

// ErrPageUnsuccessful is reported when a source answers with success=false
var ErrPageUnsuccessful = errors.New("source reported no success")

// PageError describes the page that stopped a cursor
type PageError struct {
	Source settlement.SourceKind
	Page   int
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s page %d: %v", e.Source, e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Cursor walks a PageProvider one page at a time:
//
//	for cur.Next(ctx) {
//		items = append(items, cur.Items()...)
//	}
//	if err := cur.Err(); err != nil { ... }
//
// Pages are requested sequentially starting at 1. The loop stops when the
// source reports no success, when a page holds fewer items than the page size
// and carries no pagination metadata, when page >= pagination.pages, or when
// the page cap is reached. Each request runs under its own timeout derived
// from the caller's context.
type Cursor[T any] struct {
	kind        settlement.SourceKind
	provider    PageProvider[T]
	filter      Filter
	pageSize    int
	maxPages    int
	pageTimeout time.Duration
	metrics     *telemetry.SettlementMetrics

	page  int
	items []T
	state CursorState
	err   error
}

// Next fetches the next page. It returns false once the cursor is terminal;
// the page that made it terminal is still returned with true when it
// succeeded.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	c.items = nil
	if c.state.IsTerminal() {
		return false
	}
	if c.page >= c.maxPages {
		c.state = CursorCapReached
		return false
	}
	if err := ctx.Err(); err != nil {
		c.fail(err)
		return false
	}

	c.page++
	page, err := c.fetch(ctx)
	if err != nil {
		c.fail(err)
		return false
	}
	if !page.Success {
		c.fail(ErrPageUnsuccessful)
		return false
	}

	c.items = page.Items
	switch {
	case page.Pagination != nil && c.page >= page.Pagination.Pages:
		c.state = CursorLastPageReached
	case page.Pagination == nil && len(page.Items) < c.pageSize:
		// No metadata: a short page is taken to be the last one.
		c.state = CursorLastPageReached
	case c.page >= c.maxPages:
		c.state = CursorCapReached
	}
	return true
}

func (c *Cursor[T]) fetch(ctx context.Context) (Page[T], error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.fetch_page",
		telemetry.WithAttribute(telemetry.SpanAttrSourceKind, string(c.kind)),
		telemetry.WithAttribute(telemetry.SpanAttrPage, c.page),
		telemetry.WithAttribute(telemetry.SpanAttrPageSize, c.pageSize),
	)
	defer span.End()

	pageCtx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	page, err := c.provider.FetchPage(pageCtx, PageRequest{
		Page:     c.page,
		PageSize: c.pageSize,
		Filter:   c.filter,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return page, err
	}
	c.metrics.RecordPage(ctx, string(c.kind), len(page.Items))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrItems, len(page.Items),
		telemetry.SpanAttrStatus, page.Success,
	)
	return page, nil
}

func (c *Cursor[T]) fail(err error) {
	c.state = CursorSourceError
	c.err = &PageError{Source: c.kind, Page: c.page, Err: err}
}

// Items returns the records of the page fetched by the last successful Next
func (c *Cursor[T]) Items() []T {
	return c.items
}

// State returns the current loop state
func (c *Cursor[T]) State() CursorState {
	return c.state
}

// Err returns the error that moved the cursor to CursorSourceError
func (c *Cursor[T]) Err() error {
	return c.err
}

// Pages returns how many pages have been requested
func (c *Cursor[T]) Pages() int {
	return c.page
}
