package settlement

import (
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// PartySummary is one row of the party list
type PartySummary struct {
	Party            settlement.PartyID `json:"party_id"`
	DisplayName      string             `json:"display_name"`
	OpeningBalance   decimal.Decimal    `json:"opening_balance"`
	IncomingTotal    decimal.Decimal    `json:"incoming_total"`
	OutgoingTotal    decimal.Decimal    `json:"outgoing_total"`
	Debt             decimal.Decimal    `json:"debt"`
	ClosingBalance   decimal.Decimal    `json:"closing_balance"`
	ReceiptValue     decimal.Decimal    `json:"receipt_value"`
	WriteOffValue    decimal.Decimal    `json:"write_off_value"`
	PaymentTotal     decimal.Decimal    `json:"payment_total"`
	ReceivedUnits    int64              `json:"received_units"`
	WrittenOffUnits  int64              `json:"written_off_units"`
	TransactionCount int                `json:"transaction_count"`
	LastActivity     *time.Time         `json:"last_activity,omitempty"`
}

// ToPartySummary converts an accumulator and its opening balance
func ToPartySummary(acc settlement.Accumulator, opening decimal.Decimal) PartySummary {
	return PartySummary{
		Party:            acc.Party,
		DisplayName:      displayName(acc),
		OpeningBalance:   opening,
		IncomingTotal:    acc.IncomingTotal,
		OutgoingTotal:    acc.OutgoingTotal,
		Debt:             acc.Debt(),
		ClosingBalance:   acc.ClosingBalance(opening),
		ReceiptValue:     acc.ReceiptValue,
		WriteOffValue:    acc.WriteOffValue,
		PaymentTotal:     acc.PaymentTotal,
		ReceivedUnits:    acc.ReceivedUnits,
		WrittenOffUnits:  acc.WrittenOffUnits,
		TransactionCount: acc.TransactionCount(),
		LastActivity:     acc.LastActivity,
	}
}

func displayName(acc settlement.Accumulator) string {
	if acc.DisplayName != "" {
		return acc.DisplayName
	}
	if acc.Party.IsUnknown() {
		return ""
	}
	return acc.Party.Value
}

// SummaryTotals are the grand totals over every listed party
type SummaryTotals struct {
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	IncomingTotal    decimal.Decimal `json:"incoming_total"`
	OutgoingTotal    decimal.Decimal `json:"outgoing_total"`
	Debt             decimal.Decimal `json:"debt"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`
	TransactionCount int             `json:"transaction_count"`
}

func (t *SummaryTotals) add(s PartySummary) {
	t.OpeningBalance = t.OpeningBalance.Add(s.OpeningBalance)
	t.IncomingTotal = t.IncomingTotal.Add(s.IncomingTotal)
	t.OutgoingTotal = t.OutgoingTotal.Add(s.OutgoingTotal)
	t.Debt = t.Debt.Add(s.Debt)
	t.ClosingBalance = t.ClosingBalance.Add(s.ClosingBalance)
	t.TransactionCount += s.TransactionCount
}

// SourceReport describes how one source fetch ended. Items counts what the
// fetched pages returned, before the local date filter.
type SourceReport struct {
	Kind   settlement.SourceKind `json:"kind"`
	Status FetchStatus           `json:"status"`
	State  CursorState           `json:"state"`
	Pages  int                   `json:"pages"`
	Items  int                   `json:"items"`
}

func reportOf[T any](r FetchResult[T]) SourceReport {
	return SourceReport{Kind: r.Kind, Status: r.Status, State: r.State, Pages: r.Pages, Items: len(r.Items)}
}

// SummaryResult is the party list with grand totals
type SummaryResult struct {
	Parties []PartySummary    `json:"parties"`
	Totals  SummaryTotals     `json:"totals"`
	Status  FetchStatus       `json:"status"`
	Sources []SourceReport    `json:"sources"`
	Issues  settlement.Issues `json:"issues"`
}

// PartyDetail is everything shown for one party
type PartyDetail struct {
	Party           settlement.PartyID          `json:"party_id"`
	Summary         PartySummary                `json:"summary"`
	ReceiptBatches  []settlement.Batch          `json:"receipt_batches"`
	WriteOffBatches []settlement.Batch          `json:"write_off_batches"`
	Ledger          settlement.SettlementLedger `json:"ledger"`
	Status          FetchStatus                 `json:"status"`
	Sources         []SourceReport              `json:"sources"`
	Issues          settlement.Issues           `json:"issues"`
}
