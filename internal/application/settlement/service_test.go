package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(receipts, writeOffs *fakeSource[settlement.Movement], payments *fakeSource[settlement.Payment]) *Service {
	if receipts == nil {
		receipts = singlePage[settlement.Movement]()
	}
	if writeOffs == nil {
		writeOffs = singlePage[settlement.Movement]()
	}
	if payments == nil {
		payments = singlePage[settlement.Payment]()
	}
	return NewService(Sources{
		Receipts:  receipts,
		WriteOffs: writeOffs,
		Payments:  payments,
	}, ServiceConfig{PageSize: 10, MaxPages: 5, PageTimeout: time.Second}, nil)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSummaries_AggregatesAndSorts(t *testing.T) {
	svc := newTestService(
		singlePage(
			receipt("r1", "p2", "Zeta Foods", 10, "5", "2024-03-01T10:00:00Z"),
			receipt("r2", "p1", "Acme", 4, "25", "2024-03-02T10:00:00Z"),
			receipt("r3", "", "", 1, "7", "2024-03-03T10:00:00Z"),
		),
		singlePage(
			writeOff("w1", "p1", "Acme", 1, "25", "2024-03-04T10:00:00Z"),
		),
		singlePage(
			payment("pay1", "p1", "Acme", "30", "2024-03-05T10:00:00Z"),
			payment("pay2", "p2", "", "50", "2024-03-06T10:00:00Z"),
		),
	)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Equal(t, FetchStatusComplete, result.Status)
	require.Len(t, result.Parties, 3)

	assert.Equal(t, settlement.IDParty("p1"), result.Parties[0].Party)
	assert.Equal(t, "Acme", result.Parties[0].DisplayName)
	assert.Equal(t, settlement.IDParty("p2"), result.Parties[1].Party)
	assert.Equal(t, settlement.UnknownParty, result.Parties[2].Party)

	acme := result.Parties[0]
	assert.True(t, acme.OutgoingTotal.Equal(dec("100")))
	assert.True(t, acme.IncomingTotal.Equal(dec("55")))
	assert.True(t, acme.Debt.Equal(dec("45")))
	assert.True(t, acme.ClosingBalance.Equal(dec("-45")))
	assert.Equal(t, 3, acme.TransactionCount)

	assert.True(t, result.Totals.OutgoingTotal.Equal(dec("157")))
	assert.True(t, result.Totals.IncomingTotal.Equal(dec("105")))
	assert.True(t, result.Totals.ClosingBalance.Equal(dec("-52")))
	assert.Equal(t, 6, result.Totals.TransactionCount)

	assert.Equal(t, 1, result.Issues.Count(settlement.IssueAmbiguousParty))
	require.Len(t, result.Sources, 3)
	assert.Equal(t, settlement.SourceKindReceipts, result.Sources[0].Kind)
	assert.Equal(t, 3, result.Sources[0].Items)
}

// A name-only record and an id record for a same-named party stay apart
// when no directory is configured.
func TestSummaries_NamesAndIdsDoNotMergeWithoutDirectory(t *testing.T) {
	svc := newTestService(
		singlePage(
			receipt("r1", "p1", "Acme Ltd", 1, "10", "2024-03-01T10:00:00Z"),
			receipt("r2", "", "Acme Ltd", 1, "10", "2024-03-02T10:00:00Z"),
		),
		nil, nil,
	)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	require.Len(t, result.Parties, 2)
	assert.Equal(t, settlement.IDParty("p1"), result.Parties[0].Party)
	assert.Equal(t, settlement.NameParty("Acme Ltd"), result.Parties[1].Party)
}

func TestSummaries_DirectoryMergesNames(t *testing.T) {
	svc := newTestService(
		singlePage(
			receipt("r1", "p1", "Acme Ltd", 1, "10", "2024-03-01T10:00:00Z"),
			receipt("r2", "", "Acme Ltd", 1, "10", "2024-03-02T10:00:00Z"),
		),
		nil, nil,
	)
	dir := new(MockDirectoryProvider)
	dir.On("PartyNames", mock.Anything).Return(map[string]string{"p1": "Acme Ltd"}, nil)
	svc.SetDirectoryProvider(dir)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	require.Len(t, result.Parties, 1)
	assert.Equal(t, settlement.IDParty("p1"), result.Parties[0].Party)
	assert.True(t, result.Parties[0].OutgoingTotal.Equal(dec("20")))
	dir.AssertExpectations(t)
}

func TestSummaries_DirectoryFailureFallsBackToNoMerge(t *testing.T) {
	svc := newTestService(
		singlePage(
			receipt("r1", "p1", "Acme Ltd", 1, "10", "2024-03-01T10:00:00Z"),
			receipt("r2", "", "Acme Ltd", 1, "10", "2024-03-02T10:00:00Z"),
		),
		nil, nil,
	)
	dir := new(MockDirectoryProvider)
	dir.On("PartyNames", mock.Anything).Return(nil, errors.New("redis down"))
	svc.SetDirectoryProvider(dir)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Len(t, result.Parties, 2)
	assert.Equal(t, FetchStatusComplete, result.Status)
}

func TestSummaries_OpeningBalances(t *testing.T) {
	svc := newTestService(
		singlePage(receipt("r1", "p1", "Acme", 10, "50000", "2024-03-01T10:00:00Z")),
		nil,
		singlePage(payment("pay1", "p1", "Acme", "300000", "2024-03-02T10:00:00Z")),
	)
	balances := new(MockOpeningBalanceProvider)
	balances.On("OpeningBalances", mock.Anything, []settlement.PartyID{settlement.IDParty("p1")}).
		Return(map[settlement.PartyID]decimal.Decimal{settlement.IDParty("p1"): dec("1000000")}, nil)
	svc.SetOpeningBalanceProvider(balances)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	require.Len(t, result.Parties, 1)
	assert.True(t, result.Parties[0].OpeningBalance.Equal(dec("1000000")))
	assert.True(t, result.Parties[0].ClosingBalance.Equal(dec("800000")))
	assert.True(t, result.Totals.ClosingBalance.Equal(dec("800000")))
	balances.AssertExpectations(t)
}

func TestSummaries_OpeningBalanceFailureIsPartial(t *testing.T) {
	svc := newTestService(
		singlePage(receipt("r1", "p1", "Acme", 1, "10", "2024-03-01T10:00:00Z")),
		nil, nil,
	)
	balances := new(MockOpeningBalanceProvider)
	balances.On("OpeningBalances", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	svc.SetOpeningBalanceProvider(balances)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Equal(t, FetchStatusPartial, result.Status)
	require.Len(t, result.Parties, 1)
	assert.True(t, result.Parties[0].OpeningBalance.IsZero())

	require.True(t, result.Issues.HasKind(settlement.IssueSourceUnavailable))
	assert.Equal(t, settlement.SourceKindOpeningBalances, result.Issues[0].Source)
}

// Payments fail at page 2 of 5: page 1 payments and every receipt are still
// aggregated, the result is partial and names the payments source.
func TestSummaries_PartialSource(t *testing.T) {
	paymentPages := make([][]settlement.Payment, 5)
	for i := range paymentPages {
		paymentPages[i] = make([]settlement.Payment, 10)
		for j := range paymentPages[i] {
			paymentPages[i][j] = payment("pay", "p1", "Acme", "1", "2024-03-02T10:00:00Z")
		}
	}
	payments := &fakeSource[settlement.Payment]{pages: paymentPages, metadata: true, failAt: 2}
	svc := newTestService(
		singlePage(receipt("r1", "p1", "Acme", 1, "100", "2024-03-01T10:00:00Z")),
		nil,
		payments,
	)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Equal(t, FetchStatusPartial, result.Status)
	require.Len(t, result.Parties, 1)
	assert.True(t, result.Parties[0].IncomingTotal.Equal(dec("10")))
	assert.True(t, result.Parties[0].OutgoingTotal.Equal(dec("100")))

	require.Equal(t, 1, result.Issues.Count(settlement.IssueSourceUnavailable))
	assert.Equal(t, settlement.SourceKindPayments, result.Issues[0].Source)
	assert.Equal(t, FetchStatusPartial, result.Sources[2].Status)
	assert.Equal(t, CursorSourceError, result.Sources[2].State)
}

func TestSummaries_AllSourcesFailing(t *testing.T) {
	svc := newTestService(
		&fakeSource[settlement.Movement]{failAt: 1},
		&fakeSource[settlement.Movement]{unsuccessAt: 1},
		&fakeSource[settlement.Payment]{failAt: 1},
	)

	result, err := svc.Summaries(context.Background(), Filter{})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSummaries_OneHealthyEmptySourceIsNotAnError(t *testing.T) {
	svc := newTestService(
		&fakeSource[settlement.Movement]{failAt: 1},
		nil,
		&fakeSource[settlement.Payment]{failAt: 1},
	)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	assert.Equal(t, FetchStatusPartial, result.Status)
	assert.Empty(t, result.Parties)
	assert.Equal(t, 2, result.Issues.Count(settlement.IssueSourceUnavailable))
}

func TestSummaries_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestService(nil, nil, nil).Summaries(ctx, Filter{})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummaries_Filters(t *testing.T) {
	receipts := singlePage(
		receipt("r1", "p1", "Acme", 1, "10", "2024-01-15T10:00:00Z"),
		receipt("r2", "p1", "Acme", 1, "20", "2024-02-15T10:00:00Z"),
		receipt("r3", "p2", "Borealis", 1, "30", "2024-02-16T10:00:00Z"),
	)
	svc := newTestService(receipts, nil, nil)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.Summaries(context.Background(), Filter{From: &from, Search: "acm"})

	require.NoError(t, err)
	require.Len(t, result.Parties, 1)
	assert.Equal(t, settlement.IDParty("p1"), result.Parties[0].Party)
	assert.True(t, result.Parties[0].OutgoingTotal.Equal(dec("20")))

	calls := receipts.calls()
	require.NotEmpty(t, calls)
	assert.Empty(t, calls[0].Filter.Search, "search is matched after resolution, never by a source")
	require.NotNil(t, calls[0].Filter.From)
	assert.True(t, from.Equal(*calls[0].Filter.From))
}

func TestSummaries_SourceReportsCountFetchedItems(t *testing.T) {
	receipts := &fakeSource[settlement.Movement]{
		pages: [][]settlement.Movement{
			{
				receipt("r1", "p1", "Acme", 1, "10", "2024-01-15T10:00:00Z"),
				receipt("r2", "p1", "Acme", 1, "20", "2024-02-15T10:00:00Z"),
			},
			{receipt("r3", "p2", "Borealis", 1, "30", "2024-01-16T10:00:00Z")},
		},
		metadata: true,
	}
	svc := newTestService(receipts, nil, nil)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.Summaries(context.Background(), Filter{From: &from})

	require.NoError(t, err)
	require.Len(t, result.Parties, 1)
	assert.Equal(t, 1, result.Totals.TransactionCount)

	require.Len(t, result.Sources, 3)
	assert.Equal(t, 2, result.Sources[0].Pages)
	assert.Equal(t, 3, result.Sources[0].Items)
	assert.Zero(t, result.Sources[2].Items)
}

func TestSummaries_StampsMissingKinds(t *testing.T) {
	m := receipt("w1", "p1", "Acme", 2, "10", "2024-03-01T10:00:00Z")
	m.Kind = ""
	svc := newTestService(nil, singlePage(m), nil)

	result, err := svc.Summaries(context.Background(), Filter{})

	require.NoError(t, err)
	require.Len(t, result.Parties, 1)
	assert.True(t, result.Parties[0].WriteOffValue.Equal(dec("20")))
	assert.Equal(t, int64(2), result.Parties[0].WrittenOffUnits)
}

func TestSummaries_Idempotent(t *testing.T) {
	svc := newTestService(
		singlePage(
			receipt("r1", "p1", "Acme", 3, "10", "2024-03-01T10:00:00Z"),
			receipt("r2", "", "Borealis", 1, "5", "2024-03-02T10:00:00Z"),
		),
		singlePage(writeOff("w1", "p1", "Acme", 1, "10", "2024-03-03T10:00:00Z")),
		singlePage(payment("pay1", "p1", "Acme", "7", "2024-03-04T10:00:00Z")),
	)

	first, err := svc.Summaries(context.Background(), Filter{})
	require.NoError(t, err)
	second, err := svc.Summaries(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, first.Parties, second.Parties)
	assert.Equal(t, first.Totals, second.Totals)
}

func TestPartyDetail_Ledger(t *testing.T) {
	receipts := singlePage(
		receipt("r1", "p1", "Acme", 10, "50000", "2024-03-01T10:00:00Z"),
		receipt("r9", "p2", "Other", 1, "1", "2024-03-01T11:00:00Z"),
	)
	svc := newTestService(
		receipts,
		nil,
		singlePage(payment("pay1", "p1", "Acme", "300000", "2024-03-02T10:00:00Z")),
	)
	balances := new(MockOpeningBalanceProvider)
	balances.On("OpeningBalances", mock.Anything, []settlement.PartyID{settlement.IDParty("p1")}).
		Return(map[settlement.PartyID]decimal.Decimal{settlement.IDParty("p1"): dec("1000000")}, nil)
	svc.SetOpeningBalanceProvider(balances)

	detail, err := svc.PartyDetail(context.Background(), settlement.IDParty("p1"), Filter{})

	require.NoError(t, err)
	assert.Equal(t, FetchStatusComplete, detail.Status)

	ledger := detail.Ledger
	require.Len(t, ledger.Lines, 2)
	assert.Equal(t, settlement.LineTypePaymentIn, ledger.Lines[0].Type)
	assert.Equal(t, settlement.LineTypeMovementOut, ledger.Lines[1].Type)
	assert.True(t, ledger.OpeningBalance.Equal(dec("1000000")))
	assert.True(t, ledger.ClosingBalance.Equal(dec("800000")))
	assert.True(t, ledger.IsBalanced())

	assert.True(t, detail.Summary.ClosingBalance.Equal(dec("800000")))
	assert.Equal(t, 2, detail.Summary.TransactionCount)

	// Without a directory the id is pushed down to the sources.
	assert.Equal(t, "p1", receipts.calls()[0].Filter.PartyID)
}

func TestPartyDetail_Batches(t *testing.T) {
	first := receipt("r1", "p1", "Acme", 3, "10", "2024-03-01T10:00:00Z")
	first.BatchID = "B100"
	first.LocationTo = "Main"
	second := receipt("r2", "p1", "Acme", 7, "10", "2024-03-01T10:05:00Z")
	second.BatchID = "B100"
	second.LocationTo = "Annex"
	wo := writeOff("w1", "p1", "Acme", 2, "10", "2024-03-05T10:00:00Z")

	svc := newTestService(singlePage(first, second), singlePage(wo), nil)

	detail, err := svc.PartyDetail(context.Background(), settlement.IDParty("p1"), Filter{})

	require.NoError(t, err)
	require.Len(t, detail.ReceiptBatches, 1)
	assert.Equal(t, "B100", detail.ReceiptBatches[0].Key)
	assert.Equal(t, int64(10), detail.ReceiptBatches[0].TotalQuantity)
	assert.Equal(t, "Main", detail.ReceiptBatches[0].LocationTo)
	require.Len(t, detail.WriteOffBatches, 1)
	assert.Equal(t, int64(2), detail.WriteOffBatches[0].TotalQuantity)

	// Receipts-only ledger by default
	assert.Len(t, detail.Ledger.Lines, 2)
	assert.True(t, detail.Ledger.ClosingBalance.Equal(dec("-100")))
	assert.True(t, detail.Summary.ClosingBalance.Equal(dec("-80")))
}

func TestPartyDetail_LedgerOptions(t *testing.T) {
	first := receipt("r1", "p1", "Acme", 3, "10", "2024-03-01T10:00:00Z")
	first.BatchID = "B100"
	second := receipt("r2", "p1", "Acme", 7, "10", "2024-03-01T10:05:00Z")
	second.BatchID = "B100"
	wo := writeOff("w1", "p1", "Acme", 2, "10", "2024-03-05T10:00:00Z")

	svc := NewService(Sources{
		Receipts:  singlePage(first, second),
		WriteOffs: singlePage(wo),
		Payments:  singlePage[settlement.Payment](),
	}, ServiceConfig{IncludeWriteOffs: true, BatchMovements: true}, nil)

	detail, err := svc.PartyDetail(context.Background(), settlement.IDParty("p1"), Filter{})

	require.NoError(t, err)
	require.Len(t, detail.Ledger.Lines, 2)
	assert.Equal(t, settlement.LineTypeWriteOffIn, detail.Ledger.Lines[0].Type)
	assert.Equal(t, "B100", detail.Ledger.Lines[1].DocumentNumber)
	assert.True(t, detail.Ledger.ClosingBalance.Equal(detail.Summary.ClosingBalance))
}

func TestPartyDetail_NameParty(t *testing.T) {
	receipts := singlePage(
		receipt("r1", "", "Acme Ltd", 1, "10", "2024-03-01T10:00:00Z"),
		receipt("r2", "p1", "Acme Ltd", 1, "99", "2024-03-01T10:00:00Z"),
	)
	svc := newTestService(receipts, nil, nil)

	detail, err := svc.PartyDetail(context.Background(), settlement.NameParty("Acme Ltd"), Filter{})

	require.NoError(t, err)
	require.Len(t, detail.Ledger.Lines, 1)
	assert.Equal(t, "r1", detail.Ledger.Lines[0].RecordID)
	assert.Empty(t, receipts.calls()[0].Filter.PartyID)
}

func TestPartyDetail_DataQualityIssuesAreReportedOnce(t *testing.T) {
	bad := receipt("r1", "p1", "Acme", 1, "10", "2024-03-01T10:00:00Z")
	bad.Quantity = qty(-4)
	noTime := receipt("r2", "p1", "Acme", 1, "10", "yesterday")

	svc := newTestService(singlePage(bad, noTime), nil, nil)

	detail, err := svc.PartyDetail(context.Background(), settlement.IDParty("p1"), Filter{})

	require.NoError(t, err)
	assert.Equal(t, 1, detail.Issues.Count(settlement.IssueNegativeQuantity))
	assert.Equal(t, 1, detail.Issues.Count(settlement.IssueInvalidTimestamp))
	assert.Empty(t, detail.Ledger.Lines)
	assert.Empty(t, detail.ReceiptBatches)

	// summary and ledger exclude the same records
	assert.True(t, detail.Summary.ClosingBalance.Equal(detail.Ledger.ClosingBalance))
	assert.Zero(t, detail.Summary.TransactionCount)
}

func TestPartyDetail_AllSourcesFailing(t *testing.T) {
	svc := newTestService(
		&fakeSource[settlement.Movement]{failAt: 1},
		&fakeSource[settlement.Movement]{failAt: 1},
		&fakeSource[settlement.Payment]{failAt: 1},
	)

	_, err := svc.PartyDetail(context.Background(), settlement.IDParty("p1"), Filter{})

	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestMergeIssues(t *testing.T) {
	a := settlement.NewIssue(settlement.IssueMalformedRecord, settlement.SourceKindReceipts, "r1", "quantity missing")
	b := settlement.NewIssue(settlement.IssueAmbiguousParty, settlement.SourceKindPayments, "p1", "no party")

	merged := mergeIssues(settlement.Issues{a, b}, settlement.Issues{a}, nil)

	assert.Equal(t, settlement.Issues{a, b}, merged)
}
