package settlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartyRefKind tags the shape a foreign key arrived in
type PartyRefKind int

const (
	// PartyRefEmpty means no reference was supplied
	PartyRefEmpty PartyRefKind = iota
	// PartyRefStringID is a plain string identifier
	PartyRefStringID
	// PartyRefObject is an embedded object carrying id/_id and/or name
	PartyRefObject
	// PartyRefBareName carries only a display name
	PartyRefBareName
)

// String returns the string representation of PartyRefKind
func (k PartyRefKind) String() string {
	switch k {
	case PartyRefStringID:
		return "string_id"
	case PartyRefObject:
		return "object"
	case PartyRefBareName:
		return "bare_name"
	default:
		return "empty"
	}
}

// PartyRef is a polymorphic reference to a party (or product) as delivered by
// upstream sources. It is immutable; use the constructors.
type PartyRef struct {
	kind PartyRefKind
	id   string
	name string
}

// NewStringIDRef creates a reference from a plain string id
func NewStringIDRef(id string) PartyRef {
	id = strings.TrimSpace(id)
	if id == "" {
		return PartyRef{}
	}
	return PartyRef{kind: PartyRefStringID, id: id}
}

// NewObjectRef creates a reference from an embedded object
func NewObjectRef(id, name string) PartyRef {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" && name == "" {
		return PartyRef{}
	}
	return PartyRef{kind: PartyRefObject, id: id, name: name}
}

// NewBareNameRef creates a reference carrying only a display name
func NewBareNameRef(name string) PartyRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return PartyRef{}
	}
	return PartyRef{kind: PartyRefBareName, name: name}
}

// Kind returns the shape tag
func (r PartyRef) Kind() PartyRefKind {
	return r.kind
}

// ID returns the identifier carried by the reference, if any
func (r PartyRef) ID() string {
	return r.id
}

// Name returns the display name carried by the reference, if any
func (r PartyRef) Name() string {
	return r.name
}

// IsEmpty returns true if nothing usable was supplied
func (r PartyRef) IsEmpty() bool {
	return r.kind == PartyRefEmpty
}

// refObject is the wire shape of an embedded reference object
type refObject struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	Name      string          `json:"name"`
	PartyName string          `json:"partyName"`
}

// UnmarshalJSON accepts a string id, a number id, an object with id/_id/name, or null
func (r *PartyRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = PartyRef{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid party reference: %w", err)
		}
		*r = NewStringIDRef(s)
		return nil
	case '{':
		var obj refObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("invalid party reference: %w", err)
		}
		id := scalarString(obj.ID)
		if id == "" {
			id = scalarString(obj.MongoID)
		}
		name := obj.Name
		if strings.TrimSpace(name) == "" {
			name = obj.PartyName
		}
		*r = NewObjectRef(id, name)
		return nil
	default:
		if id := scalarString(data); id != "" {
			*r = NewStringIDRef(id)
			return nil
		}
		return fmt.Errorf("invalid party reference: unsupported JSON %s", string(data))
	}
}

// MarshalJSON writes the reference back in its original shape
func (r PartyRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case PartyRefStringID:
		return json.Marshal(r.id)
	case PartyRefObject:
		return json.Marshal(struct {
			ID   string `json:"id,omitempty"`
			Name string `json:"name,omitempty"`
		}{ID: r.id, Name: r.name})
	case PartyRefBareName:
		return json.Marshal(struct {
			Name string `json:"name"`
		}{Name: r.name})
	default:
		return []byte("null"), nil
	}
}

// scalarString renders a JSON string or number as a trimmed string
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}
