package models

import (
	"time"

	"github.com/erp/reconciler/internal/domain/settlement"
	"github.com/shopspring/decimal"
)

// StockMovementModel mirrors one row of the ERP's stock movement table.
// Receipts and write-offs share the table and differ by Kind.
type StockMovementModel struct {
	ID           string          `gorm:"type:varchar(64);primaryKey"`
	MovementID   string          `gorm:"type:varchar(64);index"`
	BatchID      string          `gorm:"type:varchar(64);index"`
	Kind         string          `gorm:"type:varchar(20);not null;index"`
	ProductID    string          `gorm:"type:varchar(64)"`
	ProductName  string          `gorm:"type:varchar(200)"`
	Quantity     *int64
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PartyID      string          `gorm:"type:varchar(64);index"`
	PartyName    string          `gorm:"type:varchar(200)"`
	OccurredAt   time.Time       `gorm:"not null;index"`
	LocationFrom string          `gorm:"type:varchar(100)"`
	LocationTo   string          `gorm:"type:varchar(100)"`
	Note         string          `gorm:"type:text"`
	Status       string          `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the row to a movement snapshot
func (m *StockMovementModel) ToDomain() settlement.Movement {
	return settlement.Movement{
		ID:           m.ID,
		MovementID:   m.MovementID,
		BatchID:      m.BatchID,
		Kind:         settlement.MovementKind(m.Kind),
		ProductRef:   settlement.NewObjectRef(m.ProductID, m.ProductName),
		ProductName:  m.ProductName,
		Quantity:     m.Quantity,
		UnitPrice:    m.UnitPrice,
		PartyID:      m.PartyID,
		PartyName:    m.PartyName,
		Timestamp:    m.OccurredAt.UTC().Format(time.RFC3339Nano),
		LocationFrom: m.LocationFrom,
		LocationTo:   m.LocationTo,
		Note:         m.Note,
		Status:       m.Status,
	}
}

// PaymentModel mirrors one row of the ERP's supplier payment table
type PaymentModel struct {
	ID             string          `gorm:"type:varchar(64);primaryKey"`
	DocumentNumber string          `gorm:"type:varchar(64)"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PartyID        string          `gorm:"type:varchar(64);index"`
	PartyName      string          `gorm:"type:varchar(200)"`
	PaidAt         time.Time       `gorm:"not null;index"`
	Method         string          `gorm:"type:varchar(30)"`
	Note           string          `gorm:"type:text"`
	Status         string          `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "supplier_payments"
}

// ToDomain converts the row to a payment snapshot
func (m *PaymentModel) ToDomain() settlement.Payment {
	return settlement.Payment{
		ID:             m.ID,
		DocumentNumber: m.DocumentNumber,
		Amount:         decimal.NewNullDecimal(m.Amount),
		PartyID:        m.PartyID,
		PartyName:      m.PartyName,
		Timestamp:      m.PaidAt.UTC().Format(time.RFC3339Nano),
		Method:         m.Method,
		Note:           m.Note,
		Status:         m.Status,
	}
}

// PartyModel mirrors the ERP's party register
type PartyModel struct {
	ID             string          `gorm:"type:varchar(64);primaryKey"`
	Name           string          `gorm:"type:varchar(200);not null;index"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM
func (PartyModel) TableName() string {
	return "parties"
}
