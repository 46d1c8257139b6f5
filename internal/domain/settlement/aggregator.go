package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Accumulator holds the running sums for one party.
//
// Sign convention (operator's view of a supplier-style party):
//   - receipt:   OutgoingTotal += unitPrice*qty (debit, operator owes more)
//   - write-off: IncomingTotal += unitPrice*qty (credit, debt reduced)
//   - payment:   IncomingTotal += amount (credit; a negative refund lowers it)
//
// Debt = OutgoingTotal - IncomingTotal and
// ClosingBalance = opening + IncomingTotal - OutgoingTotal.
type Accumulator struct {
	Party           PartyID         `json:"party"`
	DisplayName     string          `json:"display_name"`
	IncomingTotal   decimal.Decimal `json:"incoming_total"`
	OutgoingTotal   decimal.Decimal `json:"outgoing_total"`
	ReceiptValue    decimal.Decimal `json:"receipt_value"`
	WriteOffValue   decimal.Decimal `json:"write_off_value"`
	PaymentTotal    decimal.Decimal `json:"payment_total"`
	ReceivedUnits   int64           `json:"received_units"`
	WrittenOffUnits int64           `json:"written_off_units"`
	MovementCount   int             `json:"movement_count"`
	PaymentCount    int             `json:"payment_count"`
	LastActivity    *time.Time      `json:"last_activity,omitempty"`
}

func newAccumulator(party PartyID) Accumulator {
	return Accumulator{
		Party:         party,
		IncomingTotal: decimal.Zero,
		OutgoingTotal: decimal.Zero,
		ReceiptValue:  decimal.Zero,
		WriteOffValue: decimal.Zero,
		PaymentTotal:  decimal.Zero,
	}
}

// TransactionCount returns the number of records folded into the accumulator
func (a Accumulator) TransactionCount() int {
	return a.MovementCount + a.PaymentCount
}

// Debt returns what the operator still owes the party
func (a Accumulator) Debt() decimal.Decimal {
	return a.OutgoingTotal.Sub(a.IncomingTotal)
}

// ClosingBalance returns opening + incoming - outgoing
func (a Accumulator) ClosingBalance(opening decimal.Decimal) decimal.Decimal {
	return opening.Add(a.IncomingTotal).Sub(a.OutgoingTotal)
}

func (a *Accumulator) touch(res Resolution, timestamp string) {
	if a.DisplayName == "" && res.DisplayName != "" {
		a.DisplayName = res.DisplayName
	}
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return
	}
	if a.LastActivity == nil || t.After(*a.LastActivity) {
		a.LastActivity = &t
	}
}

func (a *Accumulator) addMovement(m Movement) {
	value := m.Value()
	switch m.Kind {
	case MovementKindReceipt:
		a.OutgoingTotal = a.OutgoingTotal.Add(value)
		a.ReceiptValue = a.ReceiptValue.Add(value)
		a.ReceivedUnits += m.Qty()
	case MovementKindWriteOff:
		a.IncomingTotal = a.IncomingTotal.Add(value)
		a.WriteOffValue = a.WriteOffValue.Add(value)
		a.WrittenOffUnits += m.Qty()
	}
	a.MovementCount++
}

func (a *Accumulator) addPayment(p Payment) {
	a.IncomingTotal = a.IncomingTotal.Add(p.Amt())
	a.PaymentTotal = a.PaymentTotal.Add(p.Amt())
	a.PaymentCount++
}

// AggregateResult is the best-effort aggregate plus everything that was
// skipped or flagged on the way
type AggregateResult struct {
	Accumulators map[PartyID]Accumulator
	Order        []PartyID // first-seen order
	Issues       Issues
	Accepted     int
	Rejected     int
}

// Get returns the accumulator of a party
func (r AggregateResult) Get(party PartyID) (Accumulator, bool) {
	acc, ok := r.Accumulators[party]
	return acc, ok
}

// Totals sums all accumulators into one, keyed by UnknownParty
func (r AggregateResult) Totals() Accumulator {
	total := newAccumulator(UnknownParty)
	for _, party := range r.Order {
		acc := r.Accumulators[party]
		total.IncomingTotal = total.IncomingTotal.Add(acc.IncomingTotal)
		total.OutgoingTotal = total.OutgoingTotal.Add(acc.OutgoingTotal)
		total.ReceiptValue = total.ReceiptValue.Add(acc.ReceiptValue)
		total.WriteOffValue = total.WriteOffValue.Add(acc.WriteOffValue)
		total.PaymentTotal = total.PaymentTotal.Add(acc.PaymentTotal)
		total.ReceivedUnits += acc.ReceivedUnits
		total.WrittenOffUnits += acc.WrittenOffUnits
		total.MovementCount += acc.MovementCount
		total.PaymentCount += acc.PaymentCount
		if acc.LastActivity != nil && (total.LastActivity == nil || acc.LastActivity.After(*total.LastActivity)) {
			t := *acc.LastActivity
			total.LastActivity = &t
		}
	}
	return total
}

// Aggregate folds movements and payments into per-party accumulators.
// It is a pure function of its input: no state survives the call and the
// same input always yields the same result. Movements are folded before
// payments, each in input order.
func Aggregate(resolver *Resolver, movements []Movement, payments []Payment) AggregateResult {
	if resolver == nil {
		resolver = NewResolver()
	}

	result := AggregateResult{
		Accumulators: make(map[PartyID]Accumulator),
		Order:        make([]PartyID, 0),
		Issues:       make(Issues, 0),
	}

	bucket := func(res Resolution) Accumulator {
		acc, ok := result.Accumulators[res.Party]
		if !ok {
			acc = newAccumulator(res.Party)
			result.Order = append(result.Order, res.Party)
		}
		return acc
	}

	for _, m := range movements {
		source := SourceForKind(m.Kind)
		if issue := CheckMovement(m, source); issue != nil {
			result.Issues = append(result.Issues, *issue)
			result.Rejected++
			continue
		}
		res := resolver.ResolveMovement(m)
		if res.Party.IsUnknown() {
			result.Issues = append(result.Issues, NewIssue(IssueAmbiguousParty, source, m.ID,
				"no party id or name; routed to unknown"))
		}
		acc := bucket(res)
		acc.addMovement(m)
		acc.touch(res, m.Timestamp)
		result.Accumulators[res.Party] = acc
		result.Accepted++
	}

	for _, p := range payments {
		if issue := CheckPayment(p); issue != nil {
			result.Issues = append(result.Issues, *issue)
			result.Rejected++
			continue
		}
		res := resolver.ResolvePayment(p)
		if res.Party.IsUnknown() {
			result.Issues = append(result.Issues, NewIssue(IssueAmbiguousParty, SourceKindPayments, p.ID,
				"no party id or name; routed to unknown"))
		}
		acc := bucket(res)
		acc.addPayment(p)
		acc.touch(res, p.Timestamp)
		result.Accumulators[res.Party] = acc
		result.Accepted++
	}

	return result
}

// SourceForKind maps a movement kind to the stream it is read from
func SourceForKind(kind MovementKind) SourceKind {
	switch kind {
	case MovementKindReceipt:
		return SourceKindReceipts
	case MovementKindWriteOff:
		return SourceKindWriteOffs
	default:
		return ""
	}
}
