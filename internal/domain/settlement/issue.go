package settlement

import "fmt"

// IssueKind classifies a data-quality or availability problem
type IssueKind string

const (
	// IssueSourceUnavailable: a page fetch failed or timed out, data is partial
	IssueSourceUnavailable IssueKind = "SOURCE_UNAVAILABLE"
	// IssueMalformedRecord: a required field is missing or invalid, record skipped
	IssueMalformedRecord IssueKind = "MALFORMED_RECORD"
	// IssueAmbiguousParty: no resolvable identifier, record routed to unknown
	IssueAmbiguousParty IssueKind = "AMBIGUOUS_PARTY"
	// IssueNegativeQuantity: quantity below zero, record excluded
	IssueNegativeQuantity IssueKind = "NEGATIVE_QUANTITY"
	// IssueInvalidTimestamp: timestamp could not be parsed, record excluded
	IssueInvalidTimestamp IssueKind = "INVALID_TIMESTAMP"
	// IssueBatchKindMismatch: a batch key was shared by receipts and write-offs
	IssueBatchKindMismatch IssueKind = "BATCH_KIND_MISMATCH"
)

// Severity returns how a caller should treat the issue
func (k IssueKind) Severity() string {
	switch k {
	case IssueSourceUnavailable, IssueNegativeQuantity:
		return "CRITICAL"
	case IssueAmbiguousParty:
		return "INFO"
	default:
		return "WARNING"
	}
}

// Excludes reports whether records with this issue are left out of totals
func (k IssueKind) Excludes() bool {
	switch k {
	case IssueMalformedRecord, IssueNegativeQuantity, IssueInvalidTimestamp:
		return true
	}
	return false
}

// Issue is one skipped or flagged record (or source) with a reason
type Issue struct {
	Kind     IssueKind  `json:"kind"`
	Source   SourceKind `json:"source,omitempty"`
	RecordID string     `json:"record_id,omitempty"`
	Reason   string     `json:"reason"`
	Severity string     `json:"severity"`
}

// NewIssue creates an issue with severity derived from its kind
func NewIssue(kind IssueKind, source SourceKind, recordID, reason string) Issue {
	return Issue{
		Kind:     kind,
		Source:   source,
		RecordID: recordID,
		Reason:   reason,
		Severity: kind.Severity(),
	}
}

// Error lets an issue be logged or wrapped like an error
func (i Issue) Error() string {
	if i.RecordID == "" {
		return fmt.Sprintf("%s [%s]: %s", i.Kind, i.Source, i.Reason)
	}
	return fmt.Sprintf("%s [%s/%s]: %s", i.Kind, i.Source, i.RecordID, i.Reason)
}

// Issues is an ordered list of issues
type Issues []Issue

// Count returns the number of issues of the given kind
func (is Issues) Count(kind IssueKind) int {
	n := 0
	for _, i := range is {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// CountByKind returns a histogram of issue kinds
func (is Issues) CountByKind() map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, i := range is {
		counts[i.Kind]++
	}
	return counts
}

// HasKind returns true if at least one issue of the kind is present
func (is Issues) HasKind(kind IssueKind) bool {
	return is.Count(kind) > 0
}
