package settlement

import (
	"context"
	"time"
)

// Filter narrows what the sources return. All fields are optional. The date
// range and party id are passed through to every source; Search is only
// matched against computed summaries.
type Filter struct {
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
	PartyID string     `json:"party_id,omitempty"`
	Search  string     `json:"search,omitempty"`
}

// Contains reports whether t lies inside the filter's date range.
// Both bounds are inclusive; a nil bound is open.
func (f Filter) Contains(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && t.After(*f.To) {
		return false
	}
	return true
}

// PageRequest asks a source for one page. Page is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
	Filter   Filter
}

// Pagination is the optional paging metadata a source may return
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

// Page is one page of records as returned by a source
type Page[T any] struct {
	Success    bool        `json:"success"`
	Items      []T         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// PageProvider is a paginated transaction source.
// An error and a page with Success=false are both treated as "no success".
type PageProvider[T any] interface {
	FetchPage(ctx context.Context, req PageRequest) (Page[T], error)
}

// PageProviderFunc adapts a function to PageProvider
type PageProviderFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], error)

// FetchPage implements PageProvider
func (f PageProviderFunc[T]) FetchPage(ctx context.Context, req PageRequest) (Page[T], error) {
	return f(ctx, req)
}
