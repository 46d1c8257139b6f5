package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind represents the kind of a stock movement
type MovementKind string

const (
	// MovementKindReceipt is stock received from a party (operator owes more)
	MovementKindReceipt MovementKind = "receipt"
	// MovementKindWriteOff is stock leaving the operator's consigned stock
	MovementKindWriteOff MovementKind = "writeoff"
)

// String returns the string representation of MovementKind
func (k MovementKind) String() string {
	return string(k)
}

// IsValid returns true if the movement kind is valid
func (k MovementKind) IsValid() bool {
	return k == MovementKindReceipt || k == MovementKindWriteOff
}

// SourceKind identifies one of the independent transaction streams
type SourceKind string

const (
	SourceKindReceipts  SourceKind = "receipts"
	SourceKindWriteOffs SourceKind = "writeoffs"
	SourceKindPayments  SourceKind = "payments"

	// SourceKindOpeningBalances is not a transaction stream; it names the
	// opening balance lookup in availability issues
	SourceKindOpeningBalances SourceKind = "opening_balances"
)

// String returns the string representation of SourceKind
func (k SourceKind) String() string {
	return string(k)
}

// DefaultLineStatus is used when a source record carries no status of its own
const DefaultLineStatus = "confirmed"

// Movement is a read-only snapshot of a stock receipt or write-off.
// Quantity is a pointer so that a record with no quantity at all can be told
// apart from a zero quantity and reported as malformed.
type Movement struct {
	ID           string          `json:"id" validate:"required"`
	MovementID   string          `json:"movementId,omitempty"`
	BatchID      string          `json:"batchId,omitempty"`
	Kind         MovementKind    `json:"kind" validate:"required,oneof=receipt writeoff"`
	ProductRef   PartyRef        `json:"product"`
	ProductName  string          `json:"productName,omitempty"`
	Quantity     *int64          `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	PartyID      string          `json:"partyId,omitempty"`
	PartyName    string          `json:"partyName,omitempty"`
	Party        PartyRef        `json:"party"`
	Timestamp    string          `json:"timestamp" validate:"required"`
	LocationFrom string          `json:"locationFrom,omitempty"`
	LocationTo   string          `json:"locationTo,omitempty"`
	Note         string          `json:"note,omitempty"`
	Status       string          `json:"status,omitempty"`
}

// Qty returns the movement quantity, zero when absent
func (m Movement) Qty() int64 {
	if m.Quantity == nil {
		return 0
	}
	return *m.Quantity
}

// Value returns unitPrice * quantity
func (m Movement) Value() decimal.Decimal {
	return m.UnitPrice.Mul(decimal.NewFromInt(m.Qty()))
}

// GroupKey returns the batch grouping key: batchId, then movementId, then id
func (m Movement) GroupKey() string {
	switch {
	case m.BatchID != "":
		return m.BatchID
	case m.MovementID != "":
		return m.MovementID
	default:
		return m.ID
	}
}

// ProductDisplay returns the best available product label
func (m Movement) ProductDisplay() string {
	if m.ProductName != "" {
		return m.ProductName
	}
	if name := m.ProductRef.Name(); name != "" {
		return name
	}
	return m.ProductRef.ID()
}

// Time parses the movement timestamp
func (m Movement) Time() (time.Time, error) {
	return ParseTimestamp(m.Timestamp)
}

// Payment is a read-only snapshot of a cash movement between the operator and a party.
// A positive amount settles what the operator owes the party; a negative amount
// is a refund and re-opens it. Amount is nullable for the same reason as
// Movement.Quantity.
type Payment struct {
	ID             string              `json:"id" validate:"required"`
	DocumentNumber string              `json:"documentNumber,omitempty"`
	Amount         decimal.NullDecimal `json:"amount"`
	PartyID        string              `json:"partyId,omitempty"`
	PartyName      string              `json:"partyName,omitempty"`
	Party          PartyRef            `json:"party"`
	Timestamp      string              `json:"timestamp" validate:"required"`
	Method         string              `json:"method,omitempty"`
	Note           string              `json:"note,omitempty"`
	Status         string              `json:"status,omitempty"`
}

// Amt returns the payment amount, zero when absent
func (p Payment) Amt() decimal.Decimal {
	if !p.Amount.Valid {
		return decimal.Zero
	}
	return p.Amount.Decimal
}

// Time parses the payment timestamp
func (p Payment) Time() (time.Time, error) {
	return ParseTimestamp(p.Timestamp)
}

// partyFields is the view of a record the resolver needs
type partyFields struct {
	explicitID   string
	embedded     PartyRef
	explicitName string
}

func (m Movement) partyFields() partyFields {
	return partyFields{explicitID: m.PartyID, embedded: m.Party, explicitName: m.PartyName}
}

func (p Payment) partyFields() partyFields {
	return partyFields{explicitID: p.PartyID, embedded: p.Party, explicitName: p.PartyName}
}
