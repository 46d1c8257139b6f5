package settlement

import "strings"

// Directory maps a party display name to its canonical id.
// Implementations must be safe for concurrent reads.
type Directory interface {
	LookupName(name string) (id string, ok bool)
}

// StaticDirectory is an in-memory Directory keyed by trimmed display name
type StaticDirectory map[string]string

// NewStaticDirectory builds a directory from id -> name pairs.
// Names shared by more than one id are dropped so they never merge.
func NewStaticDirectory(namesByID map[string]string) StaticDirectory {
	dir := make(StaticDirectory, len(namesByID))
	ambiguous := make(map[string]bool)
	for id, name := range namesByID {
		name = strings.TrimSpace(name)
		id = strings.TrimSpace(id)
		if name == "" || id == "" || ambiguous[name] {
			continue
		}
		if existing, ok := dir[name]; ok && existing != id {
			delete(dir, name)
			ambiguous[name] = true
			continue
		}
		dir[name] = id
	}
	return dir
}

// LookupName implements Directory
func (d StaticDirectory) LookupName(name string) (string, bool) {
	id, ok := d[strings.TrimSpace(name)]
	return id, ok
}

// ResolutionSource records which rule produced a party identifier
type ResolutionSource string

const (
	ResolvedByExplicitID ResolutionSource = "explicit_id"
	ResolvedByEmbeddedID ResolutionSource = "embedded_id"
	ResolvedByName       ResolutionSource = "name"
	ResolvedByDirectory  ResolutionSource = "directory"
	ResolvedAsUnknown    ResolutionSource = "unknown"
)

// Resolution is the outcome of resolving one record
type Resolution struct {
	Party       PartyID
	Source      ResolutionSource
	DisplayName string
}

// Resolver determines the owning party of a transaction.
// Rules, first match wins: explicit party id, embedded object id/_id,
// display name (name-based identifier), unknown. Name-based identifiers are
// upgraded to id-based ones only through a Directory.
type Resolver struct {
	directory Directory
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithDirectory enables name -> id merging through the given directory
func WithDirectory(dir Directory) ResolverOption {
	return func(r *Resolver) {
		r.directory = dir
	}
}

// NewResolver creates a resolver. Without WithDirectory, ids and names stay
// in distinct buckets.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasDirectory reports whether name -> id merging is enabled
func (r *Resolver) HasDirectory() bool {
	return r.directory != nil
}

// ResolveMovement resolves the owning party of a movement
func (r *Resolver) ResolveMovement(m Movement) Resolution {
	return r.resolve(m.partyFields())
}

// ResolvePayment resolves the owning party of a payment
func (r *Resolver) ResolvePayment(p Payment) Resolution {
	return r.resolve(p.partyFields())
}

// resolve reads party fields only. A movement's product reference carries the
// product's own id, so it never identifies the owning party.
func (r *Resolver) resolve(f partyFields) Resolution {
	name := strings.TrimSpace(f.embedded.Name())
	if name == "" {
		name = strings.TrimSpace(f.explicitName)
	}

	if id := strings.TrimSpace(f.explicitID); id != "" {
		return Resolution{Party: IDParty(id), Source: ResolvedByExplicitID, DisplayName: name}
	}
	if id := f.embedded.ID(); id != "" {
		return Resolution{Party: IDParty(id), Source: ResolvedByEmbeddedID, DisplayName: name}
	}
	if name != "" {
		if r.directory != nil {
			if id, ok := r.directory.LookupName(name); ok && strings.TrimSpace(id) != "" {
				return Resolution{Party: IDParty(id), Source: ResolvedByDirectory, DisplayName: name}
			}
		}
		return Resolution{Party: NameParty(name), Source: ResolvedByName, DisplayName: name}
	}
	return Resolution{Party: UnknownParty, Source: ResolvedAsUnknown}
}
