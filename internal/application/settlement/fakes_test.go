package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var errSourceDown = errors.New("connection refused")

// fakeSource serves fixed pages and can be told to misbehave on one page
type fakeSource[T any] struct {
	mu       sync.Mutex
	pages    [][]T
	metadata bool
	endless  []T // served for every page past len(pages) when set

	failAt      int
	unsuccessAt int
	blockAt     int
	onPage      func(page int)

	requests []PageRequest
}

func (f *fakeSource[T]) FetchPage(ctx context.Context, req PageRequest) (Page[T], error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.onPage != nil {
		f.onPage(req.Page)
	}
	switch req.Page {
	case f.blockAt:
		<-ctx.Done()
		return Page[T]{}, ctx.Err()
	case f.failAt:
		return Page[T]{}, errSourceDown
	case f.unsuccessAt:
		return Page[T]{Success: false}, nil
	}
	if err := ctx.Err(); err != nil {
		return Page[T]{}, err
	}

	items := f.endless
	if req.Page-1 < len(f.pages) {
		items = f.pages[req.Page-1]
	}
	page := Page[T]{Success: true, Items: items}
	if f.metadata {
		total := 0
		for _, p := range f.pages {
			total += len(p)
		}
		page.Pagination = &Pagination{Page: req.Page, Pages: len(f.pages), Total: total}
	}
	return page, nil
}

func (f *fakeSource[T]) calls() []PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PageRequest(nil), f.requests...)
}

// numberedPages builds pages of consecutive ints with the given sizes
func numberedPages(sizes ...int) [][]int {
	pages := make([][]int, len(sizes))
	n := 0
	for i, size := range sizes {
		pages[i] = make([]int, size)
		for j := range pages[i] {
			n++
			pages[i][j] = n
		}
	}
	return pages
}

func singlePage[T any](items ...T) *fakeSource[T] {
	return &fakeSource[T]{pages: [][]T{items}}
}

func qty(n int64) *int64 {
	return &n
}

func receipt(id, partyID, partyName string, quantity int64, price, ts string) settlement.Movement {
	return settlement.Movement{
		ID:          id,
		Kind:        settlement.MovementKindReceipt,
		ProductName: "Flour",
		Quantity:    qty(quantity),
		UnitPrice:   decimal.RequireFromString(price),
		PartyID:     partyID,
		PartyName:   partyName,
		Timestamp:   ts,
	}
}

func writeOff(id, partyID, partyName string, quantity int64, price, ts string) settlement.Movement {
	m := receipt(id, partyID, partyName, quantity, price, ts)
	m.Kind = settlement.MovementKindWriteOff
	return m
}

func payment(id, partyID, partyName, amount, ts string) settlement.Payment {
	return settlement.Payment{
		ID:        id,
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		PartyID:   partyID,
		PartyName: partyName,
		Timestamp: ts,
	}
}

// MockDirectoryProvider is a mock implementation of DirectoryProvider
type MockDirectoryProvider struct {
	mock.Mock
}

func (m *MockDirectoryProvider) PartyNames(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// MockOpeningBalanceProvider is a mock implementation of OpeningBalanceProvider
type MockOpeningBalanceProvider struct {
	mock.Mock
}

func (m *MockOpeningBalanceProvider) OpeningBalances(ctx context.Context, parties []settlement.PartyID) (map[settlement.PartyID]decimal.Decimal, error) {
	args := m.Called(ctx, parties)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[settlement.PartyID]decimal.Decimal), args.Error(1)
}
