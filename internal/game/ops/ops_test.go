package ops

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

var (
	pikachu = &model.CardDefinition{SetCode: "TST", Number: "1", Name: "Pikachu", Category: model.CategoryPokemon, Stage: model.StageBasic, HP: 70, EnergyType: "Lightning"}
	raichu  = &model.CardDefinition{SetCode: "TST", Number: "2", Name: "Raichu", Category: model.CategoryPokemon, Stage: model.StageOne, EvolvesFrom: "Pikachu", HP: 120, EnergyType: "Lightning"}
	energy  = &model.CardDefinition{SetCode: "TST", Number: "3", Name: "Lightning Energy", Category: model.CategoryEnergy, Subtypes: []string{"Basic"}, EnergyType: "Lightning"}
)

// testState seats alice and bob with 20-card decks. Every fourth card is an energy.
func testState(t *testing.T) *model.GameState {
	t.Helper()
	g, err := model.NewGameState("m-1", "alice", "bob")
	require.NoError(t, err)
	for _, seat := range g.Seats {
		p := g.Players[seat]
		for i := 0; i < 20; i++ {
			def := pikachu
			if i%4 == 3 {
				def = energy
			}
			p.Zones[model.ZoneDeck] = append(p.Zones[model.ZoneDeck], model.NewCardInstance(fmt.Sprintf("%s-%02d", seat, i), seat, def))
		}
	}
	return g
}

func fixedSeeds() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("seed-%d", n)
	}
}

func zoneUIDs(p *model.PlayerState, z model.Zone) []string {
	return uids(p.Zones[z])
}

func TestRNGIsDeterministicPerSeed(t *testing.T) {
	a := RNG("abc").Perm(20)
	b := RNG("abc").Perm(20)
	c := RNG("abd").Perm(20)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestShuffleRecordsSeed(t *testing.T) {
	g1, g2 := testState(t), testState(t)
	o1 := New(g1, zaptest.NewLogger(t), WithSeedSource(fixedSeeds()))
	o2 := New(g2, zaptest.NewLogger(t), WithSeedSource(fixedSeeds()))

	seed, err := o1.Shuffle("alice", model.ZoneDeck)
	require.NoError(t, err)
	_, err = o2.Shuffle("alice", model.ZoneDeck)
	require.NoError(t, err)

	assert.Equal(t, "seed-1", seed)
	assert.Equal(t, zoneUIDs(g1.Players["alice"], model.ZoneDeck), zoneUIDs(g2.Players["alice"], model.ZoneDeck))

	entry := o1.Log()[0]
	assert.Equal(t, "shuffle", entry.Action)
	assert.Equal(t, "seed-1", entry.RandomSeed)
	assert.Equal(t, 1, entry.Seq)
}

func TestDrawStopsAtEmptyDeck(t *testing.T) {
	g := testState(t)
	o := New(g, nil)

	drawn, err := o.Draw("alice", 25)
	require.NoError(t, err)
	assert.Len(t, drawn, 20)
	assert.Empty(t, g.Players["alice"].Zones[model.ZoneDeck])
	assert.Len(t, g.Players["alice"].Zones[model.ZoneHand], 20)
}

func TestFailedOperationLeavesStateUnchanged(t *testing.T) {
	g := testState(t)
	o := New(g, nil)

	err := o.MoveCard("alice", model.ZoneHand, model.ZoneBench, "alice-00", -1)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.FailureNotFound))
	assert.Equal(t, 0, o.Len())
	assert.Len(t, g.Players["alice"].Zones[model.ZoneDeck], 20)

	err = o.Discard("alice", []string{"alice-01", "bob-01"}, "test")
	require.Error(t, err)
	assert.Len(t, g.Players["alice"].Zones[model.ZoneDeck], 20)
}

func TestKnockoutAwardsPrizeAndDiscardsAttachments(t *testing.T) {
	g := testState(t)
	o := New(g, zaptest.NewLogger(t))
	require.NoError(t, o.DealPrizes("alice", model.StartingPrizes))
	require.NoError(t, o.MoveCard("bob", model.ZoneDeck, model.ZoneActive, "bob-00", -1))
	require.NoError(t, o.AttachEnergy("bob", "bob-00", "bob-03", model.ZoneDeck))

	_, err := o.UpdateDamage("bob-00", 60)
	require.NoError(t, err)
	before := o.Len()
	ko, err := o.CheckKO("bob-00")
	require.NoError(t, err)
	assert.False(t, ko)
	assert.Equal(t, before, o.Len())

	_, err = o.UpdateDamage("bob-00", 10)
	require.NoError(t, err)
	ko, err = o.CheckKO("bob-00")
	require.NoError(t, err)
	require.True(t, ko)

	alice, bob := g.Players["alice"], g.Players["bob"]
	assert.Equal(t, 5, alice.PrizesRemaining)
	assert.Len(t, alice.Zones[model.ZoneHand], 1)
	assert.Nil(t, bob.Active())
	assert.ElementsMatch(t, []string{"bob-00", "bob-03"}, zoneUIDs(bob, model.ZoneDiscard))
	assert.Empty(t, bob.Attached)
	require.NoError(t, g.CheckZoneExclusivity())

	discarded, _, _ := bob.FindIn(model.ZoneDiscard, "bob-00")
	assert.Zero(t, discarded.Damage)

	log := o.Log()
	assert.Equal(t, "take_prize", log[len(log)-2].Action)
	assert.Equal(t, "knockout", log[len(log)-1].Action)
}

func TestEvolveTransfersDamageEnergyAndConditions(t *testing.T) {
	g := testState(t)
	alice := g.Players["alice"]
	alice.Zones[model.ZoneHand] = append(alice.Zones[model.ZoneHand], model.NewCardInstance("alice-raichu", "alice", raichu))
	o := New(g, zaptest.NewLogger(t))

	require.NoError(t, o.MoveCard("alice", model.ZoneDeck, model.ZoneActive, "alice-00", -1))
	require.NoError(t, o.AttachEnergy("alice", "alice-00", "alice-03", model.ZoneDeck))
	_, err := o.UpdateDamage("alice-00", 30)
	require.NoError(t, err)
	require.NoError(t, o.SetCondition("alice-00", model.ConditionPoisoned))
	require.NoError(t, o.SetTurn("alice", 3, rules.PhaseMain))

	require.NoError(t, o.Evolve("alice", "alice-00", "alice-raichu"))

	active := alice.Active()
	require.NotNil(t, active)
	assert.Equal(t, "alice-raichu", active.UID)
	assert.Equal(t, 30, active.Damage)
	assert.Equal(t, []string{"alice-03"}, active.AttachedEnergy)
	assert.True(t, active.HasCondition(model.ConditionPoisoned))
	assert.Equal(t, 3, active.EnteredTurn)
	assert.Equal(t, []string{"alice-00"}, active.EvolvedFrom)

	base, _, ok := alice.FindIn(model.ZoneDiscard, "alice-00")
	require.True(t, ok)
	assert.Zero(t, base.Damage)
	assert.Empty(t, base.AttachedEnergy)
	require.NoError(t, g.CheckZoneExclusivity())

	prev, err := o.Devolve("alice", "alice-raichu")
	require.NoError(t, err)
	assert.Equal(t, "alice-00", prev)
	active = alice.Active()
	assert.Equal(t, "alice-00", active.UID)
	assert.Equal(t, 30, active.Damage)
	assert.Equal(t, []string{"alice-03"}, active.AttachedEnergy)
	_, _, ok = alice.FindIn(model.ZoneHand, "alice-raichu")
	assert.True(t, ok)
	require.NoError(t, g.CheckZoneExclusivity())
}

func TestRotationConditionsReplaceEachOther(t *testing.T) {
	g := testState(t)
	o := New(g, nil)
	require.NoError(t, o.MoveCard("bob", model.ZoneDeck, model.ZoneActive, "bob-00", -1))

	require.NoError(t, o.SetCondition("bob-00", model.ConditionPoisoned))
	require.NoError(t, o.SetCondition("bob-00", model.ConditionAsleep))
	require.NoError(t, o.SetCondition("bob-00", model.ConditionParalyzed))

	active := g.Players["bob"].Active()
	assert.ElementsMatch(t, []model.SpecialCondition{model.ConditionPoisoned, model.ConditionParalyzed}, active.Conditions)

	require.NoError(t, o.RemoveCondition("bob-00", model.ConditionPoisoned))
	assert.Equal(t, []model.SpecialCondition{model.ConditionParalyzed}, active.Conditions)
}

func TestPlayStadiumReplacesOpponentStadium(t *testing.T) {
	stadium := &model.CardDefinition{SetCode: "TST", Number: "9", Name: "Town", Category: model.CategoryTrainer, Subtypes: []string{model.SubtypeStadium}}
	g := testState(t)
	g.Players["alice"].Zones[model.ZoneHand] = []*model.CardInstance{model.NewCardInstance("alice-town", "alice", stadium)}
	g.Players["bob"].Zones[model.ZoneHand] = []*model.CardInstance{model.NewCardInstance("bob-town", "bob", stadium)}
	o := New(g, nil)

	require.NoError(t, o.PlayStadium("alice", "alice-town"))
	require.NoError(t, o.PlayStadium("bob", "bob-town"))

	current, owner, ok := g.StadiumInPlay()
	require.True(t, ok)
	assert.Equal(t, "bob-town", current.UID)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, []string{"alice-town"}, zoneUIDs(g.Players["alice"], model.ZoneDiscard))
	assert.Equal(t, "alice-town", o.Log()[1].PayloadString("replaced"))
}

func TestApplyReplaysLogToSameState(t *testing.T) {
	initial := testState(t)
	live := initial.Clone()
	o := New(live, zaptest.NewLogger(t), WithSeedSource(fixedSeeds()))

	for _, seat := range live.Seats {
		_, err := o.Shuffle(seat, model.ZoneDeck)
		require.NoError(t, err)
		require.NoError(t, o.DealPrizes(seat, model.StartingPrizes))
		_, err = o.Draw(seat, model.OpeningHand)
		require.NoError(t, err)
	}
	heads := o.CoinFlip("first player")
	first := "alice"
	if !heads {
		first = "bob"
	}
	require.NoError(t, o.SetFirstPlayer(first))
	require.NoError(t, o.SetTurn(first, 1, rules.PhaseMain))

	alice := live.Players["alice"]
	benchUID := alice.Zones[model.ZoneHand][0].UID
	require.NoError(t, o.MoveCard("alice", model.ZoneHand, model.ZoneActive, benchUID, -1))
	_, err := o.RandomDiscard("alice", 2)
	require.NoError(t, err)
	require.NoError(t, o.ShuffleHandToBottom("bob"))
	_, err = o.TakePrize("bob", 2)
	require.NoError(t, err)
	_, err = o.TrackUsage("alice", model.UsageKey{EntityID: model.EntityPlayer, Kind: model.UsageEnergyAttach, Scope: model.ScopeTurn})
	require.NoError(t, err)
	require.NoError(t, o.DeclareWinner("bob", "test"))

	replayed := initial.Clone()
	r := New(replayed, zaptest.NewLogger(t))
	for _, entry := range o.Log() {
		require.NoError(t, r.Apply(entry))
	}

	assert.Equal(t, live, replayed)
	assert.Equal(t, o.Len(), r.Len())
}

func TestApplyRejectsUnknownAction(t *testing.T) {
	o := New(testState(t), nil)
	err := o.Apply(model.AuditEntry{Seq: 1, Action: "teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
	assert.Zero(t, o.Len())
}
