package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Rules(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name       string
		movement   Movement
		wantParty  PartyID
		wantSource ResolutionSource
	}{
		{
			name:       "explicit id wins over embedded object",
			movement:   Movement{PartyID: "sup-1", Party: NewObjectRef("sup-2", "Beta")},
			wantParty:  IDParty("sup-1"),
			wantSource: ResolvedByExplicitID,
		},
		{
			name:       "embedded object id",
			movement:   Movement{Party: NewObjectRef("sup-2", "Beta")},
			wantParty:  IDParty("sup-2"),
			wantSource: ResolvedByEmbeddedID,
		},
		{
			name:       "string id reference",
			movement:   Movement{Party: NewStringIDRef("sup-3")},
			wantParty:  IDParty("sup-3"),
			wantSource: ResolvedByEmbeddedID,
		},
		{
			name:       "embedded name is trimmed with case preserved",
			movement:   Movement{Party: NewObjectRef("", "  ACME Ltd ")},
			wantParty:  NameParty("ACME Ltd"),
			wantSource: ResolvedByName,
		},
		{
			name:       "transaction-level name",
			movement:   Movement{PartyName: "Gamma"},
			wantParty:  NameParty("Gamma"),
			wantSource: ResolvedByName,
		},
		{
			name:       "nothing usable",
			movement:   Movement{PartyName: "   "},
			wantParty:  UnknownParty,
			wantSource: ResolvedAsUnknown,
		},
		{
			name:       "product reference never names the party",
			movement:   Movement{ProductRef: NewObjectRef("prod-7", "Bolt"), ProductName: "Bolt"},
			wantParty:  UnknownParty,
			wantSource: ResolvedAsUnknown,
		},
		{
			name:       "product reference does not outrank a party name",
			movement:   Movement{ProductRef: NewObjectRef("prod-7", "Bolt"), PartyName: "Gamma"},
			wantParty:  NameParty("Gamma"),
			wantSource: ResolvedByName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.ResolveMovement(tt.movement)
			assert.Equal(t, tt.wantParty, res.Party)
			assert.Equal(t, tt.wantSource, res.Source)
		})
	}
}

func TestResolver_Payment(t *testing.T) {
	res := NewResolver().ResolvePayment(Payment{Party: NewBareNameRef("Acme")})
	assert.Equal(t, NameParty("Acme"), res.Party)
	assert.Equal(t, "Acme", res.DisplayName)
}

func TestResolver_Directory(t *testing.T) {
	byID := Movement{Party: NewObjectRef("sup-1", "Acme")}
	byName := Movement{PartyName: "Acme"}

	t.Run("without directory ids and names stay apart", func(t *testing.T) {
		r := NewResolver()
		assert.False(t, r.HasDirectory())
		assert.NotEqual(t, r.ResolveMovement(byID).Party, r.ResolveMovement(byName).Party)
	})

	t.Run("directory merges names into ids", func(t *testing.T) {
		r := NewResolver(WithDirectory(NewStaticDirectory(map[string]string{"sup-1": "Acme"})))
		assert.True(t, r.HasDirectory())
		res := r.ResolveMovement(byName)
		assert.Equal(t, IDParty("sup-1"), res.Party)
		assert.Equal(t, ResolvedByDirectory, res.Source)
	})

	t.Run("unknown names stay name-based", func(t *testing.T) {
		r := NewResolver(WithDirectory(NewStaticDirectory(map[string]string{"sup-1": "Acme"})))
		assert.Equal(t, NameParty("Other"), r.ResolveMovement(Movement{PartyName: "Other"}).Party)
	})
}

func TestNewStaticDirectory(t *testing.T) {
	dir := NewStaticDirectory(map[string]string{
		"sup-1": "Acme",
		"sup-2": "Beta",
		"sup-3": "Beta",
		"sup-4": " ",
	})

	id, ok := dir.LookupName(" Acme ")
	assert.True(t, ok)
	assert.Equal(t, "sup-1", id)

	_, ok = dir.LookupName("Beta")
	assert.False(t, ok, "shared names must not merge")
	assert.Len(t, dir, 1)
}
