package settlement

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckMovement(t *testing.T) {
	t.Run("valid record passes", func(t *testing.T) {
		assert.Nil(t, CheckMovement(receipt("r1", "P", 0, "0", "2024-01-01"), SourceKindReceipts))
	})

	t.Run("reports the missing field", func(t *testing.T) {
		m := receipt("", "P", 1, "1", "2024-01-01")
		issue := CheckMovement(m, SourceKindReceipts)
		require.NotNil(t, issue)
		assert.Equal(t, IssueMalformedRecord, issue.Kind)
		assert.Contains(t, issue.Reason, "missing ID")
		assert.Equal(t, "WARNING", issue.Severity)
	})

	t.Run("reports an unknown kind", func(t *testing.T) {
		m := receipt("r1", "P", 1, "1", "2024-01-01")
		m.Kind = "transfer"
		issue := CheckMovement(m, SourceKindReceipts)
		require.NotNil(t, issue)
		assert.Contains(t, issue.Reason, "Kind must be one of")
	})

	t.Run("negative price is malformed", func(t *testing.T) {
		m := receipt("r1", "P", 1, "1", "2024-01-01")
		m.UnitPrice = decimal.NewFromInt(-1)
		issue := CheckMovement(m, SourceKindReceipts)
		require.NotNil(t, issue)
		assert.Equal(t, IssueMalformedRecord, issue.Kind)
	})

	t.Run("negative quantity is critical", func(t *testing.T) {
		issue := CheckMovement(receipt("r1", "P", -2, "1", "2024-01-01"), SourceKindReceipts)
		require.NotNil(t, issue)
		assert.Equal(t, IssueNegativeQuantity, issue.Kind)
		assert.Equal(t, "CRITICAL", issue.Severity)
		assert.True(t, issue.Kind.Excludes())
	})

	t.Run("unparseable timestamp is reported", func(t *testing.T) {
		issue := CheckMovement(receipt("r1", "P", 1, "1", "yesterday"), SourceKindReceipts)
		require.NotNil(t, issue)
		assert.Equal(t, IssueInvalidTimestamp, issue.Kind)
		assert.Equal(t, "r1", issue.RecordID)
		assert.Contains(t, issue.Reason, "yesterday")
		assert.True(t, issue.Kind.Excludes())
	})
}

func TestCheckPayment(t *testing.T) {
	t.Run("refund passes", func(t *testing.T) {
		assert.Nil(t, CheckPayment(payment("p1", "P", "-10", "2024-01-01")))
	})

	t.Run("zero amount passes", func(t *testing.T) {
		assert.Nil(t, CheckPayment(payment("p1", "P", "0", "2024-01-01")))
	})

	t.Run("reports the missing field", func(t *testing.T) {
		issue := CheckPayment(Payment{ID: "p1"})
		require.NotNil(t, issue)
		assert.Equal(t, SourceKindPayments, issue.Source)
		assert.Contains(t, issue.Reason, "missing Timestamp")
	})

	t.Run("missing amount is malformed, not zero", func(t *testing.T) {
		p := payment("p1", "P", "10", "2024-01-01")
		p.Amount = decimal.NullDecimal{}
		issue := CheckPayment(p)
		require.NotNil(t, issue)
		assert.Equal(t, IssueMalformedRecord, issue.Kind)
		assert.Equal(t, "missing Amount", issue.Reason)
		assert.True(t, p.Amt().IsZero())
	})

	t.Run("amount absent from the wire is malformed", func(t *testing.T) {
		var p Payment
		require.NoError(t, json.Unmarshal([]byte(`{"id": "p1", "partyId": "P", "timestamp": "2024-01-01"}`), &p))
		issue := CheckPayment(p)
		require.NotNil(t, issue)
		assert.Equal(t, IssueMalformedRecord, issue.Kind)

		require.NoError(t, json.Unmarshal([]byte(`{"id": "p2", "amount": null, "partyId": "P", "timestamp": "2024-01-01"}`), &p))
		assert.NotNil(t, CheckPayment(p))
	})

	t.Run("unparseable timestamp is reported", func(t *testing.T) {
		issue := CheckPayment(payment("p1", "P", "10", "01/03/2024"))
		require.NotNil(t, issue)
		assert.Equal(t, IssueInvalidTimestamp, issue.Kind)
		assert.Equal(t, SourceKindPayments, issue.Source)
	})
}

func TestParseTimestamp(t *testing.T) {
	valid := []string{
		"2024-03-01T10:00:00.123456Z",
		"2024-03-01T10:00:00+03:00",
		"2024-03-01T10:00:00",
		"2024-03-01 10:00:00",
		" 2024-03-01 ",
	}
	for _, s := range valid {
		_, err := ParseTimestamp(s)
		assert.NoError(t, err, s)
	}

	for _, s := range []string{"", "yesterday", "01/03/2024"} {
		_, err := ParseTimestamp(s)
		assert.Error(t, err, s)
	}
}

func TestIssues(t *testing.T) {
	issues := Issues{
		NewIssue(IssueAmbiguousParty, SourceKindPayments, "p1", "no party"),
		NewIssue(IssueAmbiguousParty, SourceKindReceipts, "r1", "no party"),
		NewIssue(IssueSourceUnavailable, SourceKindWriteOffs, "", "page 2 failed"),
	}
	assert.Equal(t, 2, issues.Count(IssueAmbiguousParty))
	assert.True(t, issues.HasKind(IssueSourceUnavailable))
	assert.False(t, issues.HasKind(IssueMalformedRecord))
	assert.Equal(t, map[IssueKind]int{IssueAmbiguousParty: 2, IssueSourceUnavailable: 1}, issues.CountByKind())
	assert.Equal(t, "SOURCE_UNAVAILABLE [writeoffs]: page 2 failed", issues[2].Error())
	assert.Equal(t, "AMBIGUOUS_PARTY [payments/p1]: no party", issues[0].Error())
}
