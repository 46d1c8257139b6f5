package settlement

import (
	"strings"
)

// PartyIDKind distinguishes id-based, name-based and unknown party identifiers
type PartyIDKind string

const (
	PartyIDKindID      PartyIDKind = "id"
	PartyIDKindName    PartyIDKind = "name"
	PartyIDKindUnknown PartyIDKind = "unknown"
)

// UnknownParty is the sentinel bucket for records with no usable identifier
var UnknownParty = PartyID{Kind: PartyIDKindUnknown}

// PartyID is the canonical party identifier produced by the resolver.
// An id-based and a name-based identifier never compare equal, even when the
// value text matches.
type PartyID struct {
	Kind  PartyIDKind
	Value string
}

// IDParty creates an id-based identifier
func IDParty(id string) PartyID {
	id = strings.TrimSpace(id)
	if id == "" {
		return UnknownParty
	}
	return PartyID{Kind: PartyIDKindID, Value: id}
}

// NameParty creates a name-based identifier (trimmed, case preserved)
func NameParty(name string) PartyID {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownParty
	}
	return PartyID{Kind: PartyIDKindName, Value: name}
}

// IsUnknown returns true for the sentinel bucket
func (p PartyID) IsUnknown() bool {
	return p.Kind == PartyIDKindUnknown || p.Kind == ""
}

// String renders the identifier as "id:<v>", "name:<v>" or "unknown"
func (p PartyID) String() string {
	if p.IsUnknown() {
		return string(PartyIDKindUnknown)
	}
	return string(p.Kind) + ":" + p.Value
}

// ParsePartyID parses the String form. A value without a known prefix is
// treated as a raw id.
func ParsePartyID(s string) PartyID {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == string(PartyIDKindUnknown):
		return UnknownParty
	case strings.HasPrefix(s, string(PartyIDKindID)+":"):
		return IDParty(strings.TrimPrefix(s, string(PartyIDKindID)+":"))
	case strings.HasPrefix(s, string(PartyIDKindName)+":"):
		return NameParty(strings.TrimPrefix(s, string(PartyIDKindName)+":"))
	default:
		return IDParty(s)
	}
}

// MarshalText implements encoding.TextMarshaler so PartyID can key JSON maps
func (p PartyID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PartyID) UnmarshalText(text []byte) error {
	*p = ParsePartyID(string(text))
	return nil
}
