package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Batch is a set of movements sharing one document/batch key, shown as one row.
// Representative fields come from the first movement added, by arrival order.
type Batch struct {
	Key            string          `json:"key"`
	Kind           MovementKind    `json:"kind"`
	ProductDisplay string          `json:"product"`
	Timestamp      string          `json:"timestamp"`
	LocationFrom   string          `json:"location_from,omitempty"`
	LocationTo     string          `json:"location_to,omitempty"`
	Note           string          `json:"note,omitempty"`
	Status         string          `json:"status"`
	TotalQuantity  int64           `json:"total_quantity"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Members        []Movement      `json:"-"`
}

// Size returns the number of movements in the batch
func (b Batch) Size() int {
	return len(b.Members)
}

// MemberIDs returns the record ids of all members in arrival order
func (b Batch) MemberIDs() []string {
	ids := make([]string, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.ID
	}
	return ids
}

func newBatch(key string, first Movement) *Batch {
	status := first.Status
	if status == "" {
		status = DefaultLineStatus
	}
	return &Batch{
		Key:            key,
		Kind:           first.Kind,
		ProductDisplay: first.ProductDisplay(),
		Timestamp:      first.Timestamp,
		LocationFrom:   first.LocationFrom,
		LocationTo:     first.LocationTo,
		Note:           first.Note,
		Status:         status,
		TotalValue:     decimal.Zero,
		Members:        make([]Movement, 0, 1),
	}
}

func (b *Batch) add(m Movement) {
	b.TotalQuantity += m.Qty()
	b.TotalValue = b.TotalValue.Add(m.Value())
	b.Members = append(b.Members, m)
}

// GroupBatches clusters movements by batchId, then movementId, then id.
// The map is built in one streaming pass, so batches come back in first-seen
// order and each batch's display fields are those of its first member.
// A movement whose kind differs from its batch's kind is placed in a separate
// batch keyed "<key>#<kind>" and reported, keeping every batch single-kind.
func GroupBatches(movements []Movement) ([]Batch, Issues) {
	index := make(map[string]*Batch)
	order := make([]string, 0)
	issues := make(Issues, 0)

	for _, m := range movements {
		key := m.GroupKey()
		if b, ok := index[key]; ok && b.Kind != m.Kind {
			issues = append(issues, NewIssue(IssueBatchKindMismatch, SourceForKind(m.Kind), m.ID,
				fmt.Sprintf("batch %s holds %s movements, %s split off", key, b.Kind, m.Kind)))
			key = key + "#" + string(m.Kind)
		}

		b, ok := index[key]
		if !ok {
			b = newBatch(key, m)
			index[key] = b
			order = append(order, key)
		}
		b.add(m)
	}

	batches := make([]Batch, 0, len(order))
	for _, key := range order {
		batches = append(batches, *index[key])
	}
	return batches, issues
}
