package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLedger_OpeningReceiptAndPayment(t *testing.T) {
	party := IDParty("P")
	movements := []Movement{receipt("r1", "P", 10, "50000", "2024-03-01T10:00:00Z")}
	payments := []Payment{payment("p1", "P", "300000", "2024-03-05T10:00:00Z")}

	ledger := BuildLedger(party, payments, movements, decimal.NewFromInt(1000000))

	require.Len(t, ledger.Lines, 2)
	assert.Empty(t, ledger.Issues)
	assert.True(t, ledger.TotalDebit.Equal(decimal.NewFromInt(500000)))
	assert.True(t, ledger.TotalCredit.Equal(decimal.NewFromInt(300000)))
	assert.True(t, ledger.ClosingBalance.Equal(decimal.NewFromInt(800000)))
	assert.True(t, ledger.IsBalanced())

	newest, oldest := ledger.Lines[0], ledger.Lines[1]
	assert.Equal(t, LineTypePaymentIn, newest.Type)
	require.NotNil(t, newest.Credit)
	assert.Nil(t, newest.Debit)
	assert.True(t, newest.RunningBalance.Equal(decimal.NewFromInt(800000)))

	assert.Equal(t, LineTypeMovementOut, oldest.Type)
	require.NotNil(t, oldest.Debit)
	assert.Nil(t, oldest.Credit)
	assert.True(t, oldest.Debit.Equal(decimal.NewFromInt(500000)))
	assert.True(t, oldest.RunningBalance.Equal(decimal.NewFromInt(500000)))
}

func TestBuildLedger_NoLines(t *testing.T) {
	ledger := BuildLedger(IDParty("P"), nil, nil, decimal.NewFromInt(42))
	assert.Empty(t, ledger.Lines)
	assert.True(t, ledger.TotalCredit.IsZero())
	assert.True(t, ledger.TotalDebit.IsZero())
	assert.True(t, ledger.ClosingBalance.Equal(decimal.NewFromInt(42)))
	assert.True(t, ledger.IsBalanced())
}

func TestBuildLedger_Ordering(t *testing.T) {
	payments := []Payment{
		payment("p1", "P", "1", "2024-01-02T00:00:00Z"),
		payment("p2", "P", "2", "2024-01-03T00:00:00Z"),
		payment("p3", "P", "3", "2024-01-02T00:00:00Z"),
	}
	movements := []Movement{receipt("r1", "P", 1, "4", "2024-01-02T00:00:00Z")}

	ledger := BuildLedger(IDParty("P"), payments, movements, decimal.Zero)

	ids := make([]string, len(ledger.Lines))
	for i, line := range ledger.Lines {
		ids[i] = line.RecordID
	}
	// ties keep arrival order: payments first, then movements
	assert.Equal(t, []string{"p2", "p1", "p3", "r1"}, ids)

	for i := 1; i < len(ledger.Lines); i++ {
		assert.False(t, ledger.Lines[i].Timestamp.After(ledger.Lines[i-1].Timestamp))
	}
}

func TestBuildLedger_LineFields(t *testing.T) {
	p := payment("p1", "P", "10", "2024-01-01")
	p.DocumentNumber = "PAY-001"
	p.Method = "bank transfer"
	p.Status = "pending"
	m := receipt("r1", "P", 2, "3", "2024-01-02")
	m.MovementID = "DOC-9"
	m.ProductName = "Widget"

	ledger := BuildLedger(IDParty("P"), []Payment{p}, []Movement{m}, decimal.Zero)
	require.Len(t, ledger.Lines, 2)

	assert.Equal(t, "DOC-9", ledger.Lines[0].DocumentNumber)
	assert.Equal(t, "Widget x 2", ledger.Lines[0].Comment)
	assert.Equal(t, DefaultLineStatus, ledger.Lines[0].Status)

	assert.Equal(t, "PAY-001", ledger.Lines[1].DocumentNumber)
	assert.Equal(t, "bank transfer", ledger.Lines[1].Comment)
	assert.Equal(t, "pending", ledger.Lines[1].Status)
}

func TestBuildLedger_DataQuality(t *testing.T) {
	payments := []Payment{
		payment("p1", "P", "100", "not a date"),
		payment("p2", "P", "50", "2024-01-01"),
	}
	movements := []Movement{
		receipt("r1", "P", -1, "10", "2024-01-01"),
		receipt("r2", "P", 1, "10", "01/02/2024"),
	}

	ledger := BuildLedger(IDParty("P"), payments, movements, decimal.Zero)

	require.Len(t, ledger.Lines, 1)
	assert.Equal(t, "p2", ledger.Lines[0].RecordID)
	assert.Equal(t, 2, ledger.Issues.Count(IssueInvalidTimestamp))
	assert.Equal(t, 1, ledger.Issues.Count(IssueNegativeQuantity))
	assert.True(t, ledger.ClosingBalance.Equal(decimal.NewFromInt(50)))
}

func TestBuildLedger_WriteOffs(t *testing.T) {
	movements := []Movement{
		receipt("r1", "P", 10, "5", "2024-01-01"),
		writeOff("w1", "P", 4, "5", "2024-01-02"),
	}
	payments := []Payment{payment("p1", "P", "10", "2024-01-03")}

	t.Run("receipts only by default", func(t *testing.T) {
		ledger := BuildLedger(IDParty("P"), payments, movements, decimal.Zero)
		assert.Len(t, ledger.Lines, 2)
		assert.True(t, ledger.ClosingBalance.Equal(decimal.NewFromInt(-40)))
	})

	t.Run("WithWriteOffs agrees with the aggregator", func(t *testing.T) {
		ledger := BuildLedger(IDParty("P"), payments, movements, decimal.Zero, WithWriteOffs())
		require.Len(t, ledger.Lines, 3)
		assert.Equal(t, LineTypeWriteOffIn, ledger.Lines[1].Type)
		require.NotNil(t, ledger.Lines[1].Credit)

		acc, ok := Aggregate(nil, movements, payments).Get(IDParty("P"))
		require.True(t, ok)
		assert.True(t, ledger.ClosingBalance.Equal(acc.ClosingBalance(decimal.Zero)))
	})
}

func TestBuildLedger_BatchedMovements(t *testing.T) {
	a := receipt("r1", "P", 3, "10", "2024-01-01T10:00:00Z")
	a.BatchID = "B100"
	b := receipt("r2", "P", 7, "10", "2024-01-01T10:01:00Z")
	b.BatchID = "B100"

	ledger := BuildLedger(IDParty("P"), nil, []Movement{a, b}, decimal.Zero, WithBatchedMovements())
	require.Len(t, ledger.Lines, 1)
	line := ledger.Lines[0]
	assert.Equal(t, "B100", line.DocumentNumber)
	require.NotNil(t, line.Debit)
	assert.True(t, line.Debit.Equal(decimal.NewFromInt(100)))
	assert.True(t, ledger.IsBalanced())
}

func TestSettlementLedger_BalanceInvariant(t *testing.T) {
	payments := []Payment{
		payment("p1", "P", "123.45", "2024-01-01"),
		payment("p2", "P", "-20.05", "2024-01-04"),
	}
	movements := []Movement{
		receipt("r1", "P", 3, "19.99", "2024-01-02"),
		receipt("r2", "P", 1, "0.01", "2024-01-03"),
	}
	opening := decimal.RequireFromString("1000.50")

	ledger := BuildLedger(IDParty("P"), payments, movements, opening)
	assert.True(t, ledger.IsBalanced())
	expected := opening.Add(ledger.TotalCredit).Sub(ledger.TotalDebit)
	assert.Equal(t, expected.String(), ledger.ClosingBalance.String())

	ledger.ClosingBalance = ledger.ClosingBalance.Add(decimal.NewFromInt(1))
	assert.False(t, ledger.IsBalanced())
}
