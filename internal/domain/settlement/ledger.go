package settlement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineType represents the kind of a ledger line
type LineType string

const (
	// LineTypePaymentIn is a payment, booked as a credit
	LineTypePaymentIn LineType = "paymentIn"
	// LineTypeMovementOut is a receipt owed to the party, booked as a debit
	LineTypeMovementOut LineType = "movementOut"
	// LineTypeWriteOffIn is a write-off, booked as a credit (opt-in)
	LineTypeWriteOffIn LineType = "writeOffIn"
)

// LedgerLine is one chronological entry of a settlement ledger.
// Exactly one of Credit and Debit is set.
type LedgerLine struct {
	Type           LineType         `json:"type"`
	RecordID       string           `json:"record_id"`
	DocumentNumber string           `json:"document_number"`
	Timestamp      time.Time        `json:"timestamp"`
	Credit         *decimal.Decimal `json:"credit,omitempty"`
	Debit          *decimal.Decimal `json:"debit,omitempty"`
	Comment        string           `json:"comment"`
	Status         string           `json:"status"`
	RunningBalance decimal.Decimal  `json:"running_balance"`
}

// SettlementLedger is a party's lines, newest first, with totals.
// ClosingBalance = OpeningBalance + TotalCredit - TotalDebit.
type SettlementLedger struct {
	Party          PartyID         `json:"party"`
	Lines          []LedgerLine    `json:"lines"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Issues         Issues          `json:"issues"`
}

// LedgerOption configures BuildLedger
type LedgerOption func(*ledgerConfig)

type ledgerConfig struct {
	includeWriteOffs bool
	batchMovements   bool
}

// WithWriteOffs books write-offs as credit lines, so the ledger closes at the
// same balance as the aggregator for the same records
func WithWriteOffs() LedgerOption {
	return func(c *ledgerConfig) {
		c.includeWriteOffs = true
	}
}

// WithBatchedMovements collapses movements sharing a batch key into one line
func WithBatchedMovements() LedgerOption {
	return func(c *ledgerConfig) {
		c.batchMovements = true
	}
}

// BuildLedger merges one party's payments and movements into a settlement
// ledger. Records failing validation, an unparseable timestamp included, are
// left out and reported in the ledger's Issues. Receipts always qualify;
// write-offs only with WithWriteOffs.
func BuildLedger(
	party PartyID,
	payments []Payment,
	movements []Movement,
	openingBalance decimal.Decimal,
	opts ...LedgerOption,
) SettlementLedger {
	cfg := &ledgerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ledger := SettlementLedger{
		Party:          party,
		Lines:          make([]LedgerLine, 0, len(payments)+len(movements)),
		OpeningBalance: openingBalance,
		TotalCredit:    decimal.Zero,
		TotalDebit:     decimal.Zero,
		Issues:         make(Issues, 0),
	}

	for _, p := range payments {
		if issue := CheckPayment(p); issue != nil {
			ledger.Issues = append(ledger.Issues, *issue)
			continue
		}
		ts, _ := p.Time()
		amount := p.Amt()
		ledger.Lines = append(ledger.Lines, LedgerLine{
			Type:           LineTypePaymentIn,
			RecordID:       p.ID,
			DocumentNumber: firstNonEmpty(p.DocumentNumber, p.ID),
			Timestamp:      ts,
			Credit:         &amount,
			Comment:        paymentComment(p),
			Status:         lineStatus(p.Status),
		})
	}

	qualifying := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if m.Kind == MovementKindWriteOff && !cfg.includeWriteOffs {
			continue
		}
		if issue := CheckMovement(m, SourceForKind(m.Kind)); issue != nil {
			ledger.Issues = append(ledger.Issues, *issue)
			continue
		}
		qualifying = append(qualifying, m)
	}

	if cfg.batchMovements {
		batches, issues := GroupBatches(qualifying)
		ledger.Issues = append(ledger.Issues, issues...)
		for _, b := range batches {
			ledger.Lines = append(ledger.Lines, batchLine(b))
		}
	} else {
		for _, m := range qualifying {
			ledger.Lines = append(ledger.Lines, movementLine(m))
		}
	}

	sort.SliceStable(ledger.Lines, func(i, j int) bool {
		return ledger.Lines[i].Timestamp.After(ledger.Lines[j].Timestamp)
	})

	// Running balances accumulate oldest first; lines are presented newest first.
	balance := openingBalance
	for i := len(ledger.Lines) - 1; i >= 0; i-- {
		line := &ledger.Lines[i]
		if line.Credit != nil {
			ledger.TotalCredit = ledger.TotalCredit.Add(*line.Credit)
			balance = balance.Add(*line.Credit)
		}
		if line.Debit != nil {
			ledger.TotalDebit = ledger.TotalDebit.Add(*line.Debit)
			balance = balance.Sub(*line.Debit)
		}
		line.RunningBalance = balance
	}

	ledger.ClosingBalance = openingBalance.Add(ledger.TotalCredit).Sub(ledger.TotalDebit)
	return ledger
}

// IsBalanced verifies ClosingBalance = OpeningBalance + TotalCredit - TotalDebit
// and that the oldest-to-newest running balance ends at the closing balance
func (l SettlementLedger) IsBalanced() bool {
	expected := l.OpeningBalance.Add(l.TotalCredit).Sub(l.TotalDebit)
	if !l.ClosingBalance.Equal(expected) {
		return false
	}
	if len(l.Lines) == 0 {
		return true
	}
	return l.Lines[0].RunningBalance.Equal(l.ClosingBalance)
}

func movementLine(m Movement) LedgerLine {
	value := m.Value()
	line := LedgerLine{
		RecordID:       m.ID,
		DocumentNumber: m.GroupKey(),
		Comment:        movementComment(m.Note, m.ProductDisplay(), m.Qty()),
		Status:         lineStatus(m.Status),
	}
	line.Timestamp, _ = m.Time()
	if m.Kind == MovementKindWriteOff {
		line.Type = LineTypeWriteOffIn
		line.Credit = &value
	} else {
		line.Type = LineTypeMovementOut
		line.Debit = &value
	}
	return line
}

func batchLine(b Batch) LedgerLine {
	value := b.TotalValue
	line := LedgerLine{
		RecordID:       b.Members[0].ID,
		DocumentNumber: b.Key,
		Comment:        movementComment(b.Note, b.ProductDisplay, b.TotalQuantity),
		Status:         b.Status,
	}
	line.Timestamp, _ = ParseTimestamp(b.Timestamp)
	if b.Kind == MovementKindWriteOff {
		line.Type = LineTypeWriteOffIn
		line.Credit = &value
	} else {
		line.Type = LineTypeMovementOut
		line.Debit = &value
	}
	return line
}

func movementComment(note, product string, qty int64) string {
	if strings.TrimSpace(note) != "" {
		return note
	}
	if product == "" {
		return fmt.Sprintf("%d units", qty)
	}
	return fmt.Sprintf("%s x %d", product, qty)
}

func paymentComment(p Payment) string {
	if strings.TrimSpace(p.Note) != "" {
		return p.Note
	}
	return p.Method
}

func lineStatus(status string) string {
	if strings.TrimSpace(status) == "" {
		return DefaultLineStatus
	}
	return status
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
