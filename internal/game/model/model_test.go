package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basic(name string, hp int) *CardDefinition {
	return &CardDefinition{SetCode: "TST", Number: name, Name: name, Category: CategoryPokemon, HP: hp, Stage: StageBasic}
}

func cards(owner string, n int) []*CardInstance {
	def := basic("Pichu", 60)
	out := make([]*CardInstance, n)
	for i := range out {
		out[i] = NewCardInstance(fmt.Sprintf("%s-%02d", owner, i), "", def)
	}
	return out
}

func TestNewDeckRequiresSixtyCards(t *testing.T) {
	for _, n := range []int{0, 59, 61} {
		_, err := NewDeck("alice", cards("alice", n))
		require.Error(t, err, "size %d", n)
		assert.True(t, IsKind(err, FailureValidation))
	}

	deck, err := NewDeck("alice", cards("alice", DeckSize))
	require.NoError(t, err)
	assert.Len(t, deck.Cards, DeckSize)
	for _, c := range deck.Cards {
		assert.Equal(t, "alice", c.OwnerID)
	}
	assert.True(t, deck.HasBasicPokemon())
}

func TestNewDeckRejectsDuplicateIDs(t *testing.T) {
	list := cards("alice", DeckSize)
	list[10].UID = list[3].UID

	_, err := NewDeck("alice", list)
	require.Error(t, err)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureValidation, f.Kind)
	assert.Contains(t, f.Message, "duplicate")
}

func TestZoneParseAliases(t *testing.T) {
	cases := map[string]Zone{
		"deck":      ZoneDeck,
		"Lost Zone": ZoneLostZone,
		"lost_zone": ZoneLostZone,
		"prizes":    ZonePrize,
		"stadium":   ZoneStadium,
	}
	for in, want := range cases {
		got, err := ParseZone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseZone("graveyard")
	assert.Error(t, err)
}

func TestUsageTrackerResetTurn(t *testing.T) {
	u := NewUsageTracker()
	turnKey := UsageKey{EntityID: EntityPlayer, Kind: UsageEnergyAttach, Scope: ScopeTurn}
	gameKey := UsageKey{EntityID: "c1", Kind: UsageAbility, Scope: ScopeGame}

	assert.Equal(t, 1, u.Track(turnKey))
	assert.Equal(t, 2, u.Track(turnKey))
	u.Track(gameKey)

	u.ResetTurn()
	assert.Equal(t, 0, u.Count(turnKey))
	assert.Equal(t, 1, u.Count(gameKey))

	parsed, err := ParseUsageKey(gameKey.String())
	require.NoError(t, err)
	assert.Equal(t, gameKey, parsed)
}

func TestZoneExclusivity(t *testing.T) {
	g, err := NewGameState("m1", "alice", "bob")
	require.NoError(t, err)

	alice := g.Players["alice"]
	alice.SetZone(ZoneDeck, cards("alice", 5))
	active := NewCardInstance("alice-active", "alice", basic("Pikachu", 70))
	energy := NewCardInstance("alice-energy", "alice", &CardDefinition{Name: "Lightning Energy", Category: CategoryEnergy})
	active.AttachedEnergy = []string{energy.UID}
	alice.SetZone(ZoneActive, []*CardInstance{active})
	alice.Attached[energy.UID] = energy

	require.NoError(t, g.CheckZoneExclusivity())

	card, loc, ok := g.Locate("alice-energy")
	require.True(t, ok)
	assert.Same(t, energy, card)
	assert.True(t, loc.Attached)
	assert.Equal(t, "alice-active", loc.HostUID)
	assert.Equal(t, ZoneActive, loc.Zone)

	// same uid in two zones
	g.Players["bob"].SetZone(ZoneHand, []*CardInstance{NewCardInstance("alice-00", "bob", basic("Eevee", 60))})
	assert.Error(t, g.CheckZoneExclusivity())
	g.Players["bob"].SetZone(ZoneHand, nil)

	// dangling attachment reference
	active.AttachedEnergy = append(active.AttachedEnergy, "ghost")
	assert.Error(t, g.CheckZoneExclusivity())
}

func TestGameStateCloneIsDeep(t *testing.T) {
	g, err := NewGameState("m1", "alice", "bob")
	require.NoError(t, err)
	g.Players["alice"].SetZone(ZoneHand, cards("alice", 2))

	bookmark := g.Clone()
	g.Players["alice"].Zones[ZoneHand][0].Damage = 50
	g.Players["alice"].RemoveFromZone(ZoneHand, "alice-01")
	g.Players["alice"].Usage.Track(UsageKey{EntityID: EntityPlayer, Kind: UsageSupporter, Scope: ScopeTurn})

	assert.Len(t, bookmark.Players["alice"].Zone(ZoneHand), 2)
	assert.Zero(t, bookmark.Players["alice"].Zone(ZoneHand)[0].Damage)

	g.Restore(bookmark)
	assert.Len(t, g.Players["alice"].Zone(ZoneHand), 2)
	assert.Empty(t, g.Players["alice"].Usage.Counts)
}

func TestRestoreKeepsCardPointers(t *testing.T) {
	g, err := NewGameState("m1", "alice", "bob")
	require.NoError(t, err)
	alice := g.Players["alice"]
	alice.SetZone(ZoneHand, cards("alice", 2))
	held := alice.Zone(ZoneHand)[0]

	bookmark := g.Clone()
	held.Damage = 30
	g.Restore(bookmark)

	assert.Same(t, alice, g.Players["alice"])
	assert.Same(t, held, g.Players["alice"].Zone(ZoneHand)[0])
	assert.Zero(t, held.Damage)

	// a caller's pointer still sees later mutations of the live state
	g.Players["alice"].Zone(ZoneHand)[0].Damage = 20
	assert.Equal(t, 20, held.Damage)
}

func TestNewGameStateSeats(t *testing.T) {
	_, err := NewGameState("m1", "alice")
	assert.Error(t, err)
	_, err = NewGameState("m1", "alice", "alice")
	assert.Error(t, err)

	g, err := NewGameState("m1", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", g.OpponentID("alice"))
	_, err = g.Player("carol")
	assert.True(t, IsKind(err, FailureNotFound))
}

func TestAttackBaseDamage(t *testing.T) {
	cases := map[string]int{"30": 30, "120+": 120, "20×": 20, "": 0, "50x": 50}
	for dmg, want := range cases {
		assert.Equal(t, want, Attack{Damage: dmg}.BaseDamage(), dmg)
	}
}

func TestAuditPayloadConversions(t *testing.T) {
	e := AuditEntry{Payload: map[string]any{
		"count": float64(3),
		"big":   int64(7),
		"ids":   []any{"a", "b"},
		"flag":  true,
	}}
	assert.Equal(t, 3, e.PayloadInt("count"))
	assert.Equal(t, 7, e.PayloadInt("big"))
	assert.Equal(t, []string{"a", "b"}, e.PayloadStrings("ids"))
	assert.True(t, e.PayloadBool("flag"))
	assert.Equal(t, 0, e.PayloadInt("missing"))
}
