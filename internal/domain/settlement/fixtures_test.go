package settlement

import "github.com/shopspring/decimal"

func qty(n int64) *int64 {
	return &n
}

func receipt(id, partyID string, quantity int64, price string, ts string) Movement {
	return Movement{
		ID:        id,
		Kind:      MovementKindReceipt,
		Quantity:  qty(quantity),
		UnitPrice: decimal.RequireFromString(price),
		PartyID:   partyID,
		Timestamp: ts,
	}
}

func writeOff(id, partyID string, quantity int64, price string, ts string) Movement {
	m := receipt(id, partyID, quantity, price, ts)
	m.Kind = MovementKindWriteOff
	return m
}

func payment(id, partyID string, amount string, ts string) Payment {
	return Payment{
		ID:        id,
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		PartyID:   partyID,
		Timestamp: ts,
	}
}
