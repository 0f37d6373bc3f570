package referee

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/game/testutil"
	"github.com/ptcgai/referee-server-go/internal/rulebook"
)

// newMatch sets up alice vs bob with alice going first and both actives
// chosen automatically.
func newMatch(t *testing.T, opts ...Option) *Referee {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithOpsOptions(ops.WithSeedSource(testutil.FixedSeeds())),
	}
	r, err := New("m-1", testutil.Decks(t, "alice", "bob"), append(base, opts...)...)
	require.NoError(t, err)
	_, err = r.Setup(context.Background(), SetupOptions{FirstPlayer: "alice", AutoActive: true})
	require.NoError(t, err)
	return r
}

func do(t *testing.T, r *Referee, actor, action string, payload map[string]any) *Result {
	t.Helper()
	return r.Handle(context.Background(), Request{ActorID: actor, Action: action, Payload: payload})
}

func mustDo(t *testing.T, r *Referee, actor, action string, payload map[string]any) *Result {
	t.Helper()
	res := do(t, r, actor, action, payload)
	require.True(t, res.Success, "%s %s failed: %s", actor, action, res.Message)
	return res
}

// passTurn starts and ends the current player's turn.
func passTurn(t *testing.T, r *Referee, actor string) {
	t.Helper()
	mustDo(t, r, actor, "start_turn", nil)
	mustDo(t, r, actor, "end_turn", nil)
}

func TestSetupDealsHandsAndPrizes(t *testing.T) {
	r := newMatch(t)
	g := r.State()

	assert.Equal(t, rules.PhaseSetup, g.Turn.Phase)
	assert.Equal(t, "alice", g.FirstPlayer)
	for _, seat := range g.Seats {
		p := g.Players[seat]
		assert.Len(t, p.Zone(model.ZonePrize), model.StartingPrizes)
		assert.Equal(t, model.StartingPrizes, p.PrizesRemaining)
		require.NotNil(t, p.Active())
		assert.True(t, p.Active().Definition.IsBasicPokemon())
		assert.Equal(t, model.DeckSize, p.CardCount())
	}
	assert.NoError(t, g.CheckZoneExclusivity())
}

func TestStartTurnDrawsAndEntersMain(t *testing.T) {
	r := newMatch(t)
	before := len(r.State().Players["alice"].Zone(model.ZoneHand))

	res := do(t, r, "bob", "start_turn", nil)
	assert.False(t, res.Success)
	assert.Equal(t, string(model.FailureTurnViolation), res.Data["kind"])

	res = mustDo(t, r, "alice", "start_turn", nil)
	assert.Len(t, res.Data["drawn"], 1)
	assert.Equal(t, rules.TurnState{Player: "alice", Number: 1, Phase: rules.PhaseMain}, r.State().Turn)
	assert.Len(t, r.State().Players["alice"].Zone(model.ZoneHand), before+1)
}

func TestAttachEnergyOncePerTurn(t *testing.T) {
	r := newMatch(t)
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(r.State(), "alice", "alice-e1", testutil.Lightning)
	testutil.Give(r.State(), "alice", "alice-e2", testutil.Lightning)
	active := r.State().Players["alice"].Active()

	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e1"})
	assert.Equal(t, []string{"alice-e1"}, active.AttachedEnergy)

	logLen := len(r.Log())
	hand := testutil.ZoneUIDs(r.State(), "alice", model.ZoneHand)

	res := do(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e2", "target_id": active.UID})
	assert.False(t, res.Success)
	assert.Equal(t, string(model.FailureValidation), res.Data["kind"])
	assert.Contains(t, res.Message, "already attached")

	assert.Len(t, r.Log(), logLen)
	assert.Equal(t, hand, testutil.ZoneUIDs(r.State(), "alice", model.ZoneHand))
	assert.Equal(t, []string{"alice-e1"}, active.AttachedEnergy)
}

func TestAttackKnocksOutAndPassesTurn(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	var knockouts []string
	r.Events().SubscribeTyped(rules.EventKnockedOut, func(e rules.Event) {
		knockouts = append(knockouts, e.TargetID)
	})

	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-e1", testutil.Lightning)
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e1"})
	res := do(t, r, "alice", "use_attack", map[string]any{"attack_name": "Gnaw"})
	assert.False(t, res.Success, "first player cannot attack on turn 1")
	mustDo(t, r, "alice", "end_turn", nil)

	mustDo(t, r, "bob", "start_turn", nil)
	testutil.Give(g, "bob", "bob-spare", testutil.Zapper)
	mustDo(t, r, "bob", "move_to_bench", map[string]any{"card_id": "bob-spare"})
	mustDo(t, r, "bob", "end_turn", nil)

	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-e2", testutil.Lightning)
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e2"})
	victim := g.Players["bob"].Active().UID

	res = mustDo(t, r, "alice", "use_attack", map[string]any{"attack_name": "Zap"})
	assert.Equal(t, 60, res.Data["damage"])
	assert.Equal(t, []string{victim}, res.Data["knocked_out"])
	assert.Equal(t, []string{victim}, knockouts)
	assert.Equal(t, 5, g.Players["alice"].PrizesRemaining)
	assert.Len(t, g.Players["alice"].Zone(model.ZonePrize), 5)
	assert.Nil(t, g.Players["bob"].Active())
	assert.Contains(t, testutil.ZoneUIDs(g, "bob", model.ZoneDiscard), victim)
	assert.False(t, g.IsOver())

	// The attack ended alice's turn.
	assert.Equal(t, rules.TurnState{Player: "bob", Number: 4, Phase: rules.PhaseDraw}, g.Turn)

	res = do(t, r, "bob", "start_turn", nil)
	assert.False(t, res.Success)
	mustDo(t, r, "bob", "set_active", map[string]any{"card_id": "bob-spare"})
	mustDo(t, r, "bob", "start_turn", nil)
	assert.NoError(t, g.CheckZoneExclusivity())
}

func TestEvolveTransfersDamageAndEnergy(t *testing.T) {
	r := newMatch(t)
	g := r.State()

	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-evo", testutil.Voltwing)
	base := g.Players["alice"].Active()
	res := do(t, r, "alice", "evolve_pokemon", map[string]any{"base_card_id": base.UID, "evolution_card_id": "alice-evo"})
	assert.False(t, res.Success, "no evolution on the first turn")
	assert.Contains(t, res.Message, "first turn")
	assert.Same(t, base, g.Players["alice"].Active(), "a rejected request keeps card pointers valid")
	testutil.Give(g, "alice", "alice-e1", testutil.Lightning)
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e1"})
	mustDo(t, r, "alice", "end_turn", nil)
	passTurn(t, r, "bob")

	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-e2", testutil.Lightning)
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e2"})
	base.Damage = 20

	mustDo(t, r, "alice", "evolve", map[string]any{"base_card_id": base.UID, "evolution_card_id": "alice-evo"})
	evo := g.Players["alice"].Active()
	require.NotNil(t, evo)
	assert.Equal(t, "alice-evo", evo.UID)
	assert.Equal(t, 20, evo.Damage)
	assert.Equal(t, []string{"alice-e1", "alice-e2"}, evo.AttachedEnergy)
	assert.Equal(t, []string{base.UID}, evo.EvolvedFrom)
	_, _, inPlay := g.Players["alice"].FindInPlay(base.UID)
	assert.False(t, inPlay)
	assert.NoError(t, g.CheckZoneExclusivity())
}

func TestSelectionSuspendsAndResumes(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-nest", testutil.NestBall)

	res := mustDo(t, r, "alice", "play_trainer", map[string]any{"card_id": "alice-nest"})
	require.True(t, res.RequiresSelection)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "alice", res.SelectionContext["chooser"])
	assert.NotEmpty(t, res.SelectionContext["token"])
	chooser, pending := r.Pending()
	assert.True(t, pending)
	assert.Equal(t, "alice", chooser)
	assert.Contains(t, testutil.ZoneUIDs(g, "alice", model.ZoneHand), "alice-nest")

	blocked := do(t, r, "alice", "end_turn", nil)
	assert.False(t, blocked.Success)
	assert.Contains(t, blocked.Message, "pending")

	wrong := do(t, r, "bob", "select", map[string]any{"selected_ids": []any{res.Candidates[0].UID}})
	assert.False(t, wrong.Success)
	assert.Equal(t, string(model.FailureTurnViolation), wrong.Data["kind"])

	pick := res.Candidates[0].UID
	done := mustDo(t, r, "alice", "select", map[string]any{
		"selected_ids": []any{pick},
		"token":        res.SelectionContext["token"],
	})
	assert.False(t, done.RequiresSelection)
	_, pending = r.Pending()
	assert.False(t, pending)
	assert.Equal(t, []string{pick}, testutil.ZoneUIDs(g, "alice", model.ZoneBench))
	assert.Contains(t, testutil.ZoneUIDs(g, "alice", model.ZoneDiscard), "alice-nest")
	assert.NoError(t, g.CheckZoneExclusivity())
}

func TestSupporterOncePerTurn(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-m1", testutil.Mentor)
	res := do(t, r, "alice", "play_trainer", map[string]any{"card_id": "alice-m1"})
	assert.False(t, res.Success, "first player cannot play a Supporter on turn 1")
	mustDo(t, r, "alice", "end_turn", nil)

	mustDo(t, r, "bob", "start_turn", nil)
	testutil.Give(g, "bob", "bob-m1", testutil.Mentor)
	testutil.Give(g, "bob", "bob-m2", testutil.Mentor)
	hand := len(g.Players["bob"].Zone(model.ZoneHand))

	res = mustDo(t, r, "bob", "play_trainer", map[string]any{"card_id": "bob-m1"})
	assert.Len(t, res.Data["drawn"], 3)
	assert.Len(t, g.Players["bob"].Zone(model.ZoneHand), hand-1+3)

	res = do(t, r, "bob", "play_trainer", map[string]any{"card_id": "bob-m2"})
	assert.False(t, res.Success)
	assert.Contains(t, testutil.ZoneUIDs(g, "bob", model.ZoneHand), "bob-m2")
}

func TestRetreatPaysCostOncePerTurn(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-b1", testutil.Zapper)
	testutil.Give(g, "alice", "alice-e1", testutil.Lightning)
	mustDo(t, r, "alice", "move_to_bench", map[string]any{"card_id": "alice-b1"})
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e1"})
	old := g.Players["alice"].Active().UID

	mustDo(t, r, "alice", "retreat", map[string]any{"bench_card_id": "alice-b1"})
	assert.Equal(t, "alice-b1", g.Players["alice"].Active().UID)
	assert.Equal(t, []string{old}, testutil.ZoneUIDs(g, "alice", model.ZoneBench))
	assert.Contains(t, testutil.ZoneUIDs(g, "alice", model.ZoneDiscard), "alice-e1")

	res := do(t, r, "alice", "retreat", map[string]any{"bench_card_id": old})
	assert.False(t, res.Success)
}

func TestRetreatRejectsRepeatedEnergy(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-b1", testutil.Zapper)
	testutil.Give(g, "alice", "alice-e1", testutil.Lightning)
	mustDo(t, r, "alice", "move_to_bench", map[string]any{"card_id": "alice-b1"})
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e1"})
	mustDo(t, r, "alice", "end_turn", nil)
	passTurn(t, r, "bob")
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-e2", testutil.Lightning)
	mustDo(t, r, "alice", "attach_energy", map[string]any{"card_id": "alice-e2"})

	active := g.Players["alice"].Active()
	heavy := *active.Definition
	heavy.RetreatCost = 2
	active.Definition = &heavy

	res := do(t, r, "alice", "retreat", map[string]any{
		"bench_card_id": "alice-b1",
		"energy_ids":    []any{"alice-e1", "alice-e1"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "more than once")
	assert.Equal(t, active.UID, g.Players["alice"].Active().UID)
	assert.Equal(t, []string{"alice-e1", "alice-e2"}, g.Players["alice"].Active().AttachedEnergy)

	mustDo(t, r, "alice", "retreat", map[string]any{
		"bench_card_id": "alice-b1",
		"energy_ids":    []any{"alice-e1", "alice-e2"},
	})
	discard := testutil.ZoneUIDs(g, "alice", model.ZoneDiscard)
	assert.Contains(t, discard, "alice-e1")
	assert.Contains(t, discard, "alice-e2")
	assert.NoError(t, g.CheckZoneExclusivity())
}

func TestDiscardRejectsRepeatedCards(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	mustDo(t, r, "alice", "start_turn", nil)
	testutil.Give(g, "alice", "alice-x", testutil.LuckyDraw)
	before := len(g.Players["alice"].Zone(model.ZoneDiscard))

	res := do(t, r, "alice", "discard", map[string]any{"card_ids": []any{"alice-x", "alice-x"}})
	assert.False(t, res.Success)
	assert.Contains(t, testutil.ZoneUIDs(g, "alice", model.ZoneHand), "alice-x")
	assert.Len(t, g.Players["alice"].Zone(model.ZoneDiscard), before)

	res = mustDo(t, r, "alice", "discard", map[string]any{"card_ids": []any{"alice-x"}})
	assert.Equal(t, "discarded 1 card(s)", res.Message)
	assert.Len(t, g.Players["alice"].Zone(model.ZoneDiscard), before+1)
}

func TestUnknownActionIsRejected(t *testing.T) {
	r := newMatch(t)
	res := do(t, r, "alice", "cast_spell", nil)
	assert.False(t, res.Success)
	assert.Equal(t, string(model.FailureValidation), res.Data["kind"])
	assert.Equal(t, "cast_spell", res.Data["action"])
}

func TestPoisonKnockoutAtCheckupEndsMatch(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	var over []string
	r.Events().SubscribeTyped(rules.EventGameOver, func(e rules.Event) {
		over = append(over, e.PlayerID+":"+e.Data)
	})
	mustDo(t, r, "alice", "start_turn", nil)
	bobActive := g.Players["bob"].Active()
	bobActive.Damage = 50
	bobActive.Conditions = []model.SpecialCondition{model.ConditionPoisoned}

	res := mustDo(t, r, "alice", "end_turn", nil)
	assert.True(t, g.IsOver())
	assert.Equal(t, "alice", res.Data["winner"])
	assert.Equal(t, WinNoPokemon, res.Data["win_reason"])
	assert.Equal(t, []string{"alice:" + WinNoPokemon}, over)
	assert.Equal(t, 5, g.Players["alice"].PrizesRemaining)
	assert.Contains(t, testutil.ZoneUIDs(g, "bob", model.ZoneDiscard), bobActive.UID)

	res = do(t, r, "bob", "start_turn", nil)
	assert.False(t, res.Success)
	assert.Equal(t, string(model.FailureTurnViolation), res.Data["kind"])
}

func TestDeckOutLosesAtTurnStart(t *testing.T) {
	r := newMatch(t)
	g := r.State()
	passTurn(t, r, "alice")
	g.Players["bob"].SetZone(model.ZoneDeck, nil)

	res := mustDo(t, r, "bob", "start_turn", nil)
	assert.Equal(t, "alice", res.Data["winner"])
	assert.Equal(t, WinDeckOut, g.WinReason)
}

func TestFailureAfterMutationRestoresState(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	empty := interpreter.New(interpreter.Chain{}, zap.New(core))
	r := newMatch(t, WithInterpreter(empty), WithLogger(zap.New(core)))
	g := r.State()

	// Energy attachment needs a plan too, so load the attacker directly.
	mustDo(t, r, "alice", "start_turn", nil)
	mustDo(t, r, "alice", "end_turn", nil)
	mustDo(t, r, "bob", "start_turn", nil)
	active := g.Players["bob"].Active()
	active.AttachedEnergy = []string{"bob-x1"}
	g.Players["bob"].Attached["bob-x1"] = model.NewCardInstance("bob-x1", "bob", testutil.Lightning)
	logLen := len(r.Log())

	res := do(t, r, "bob", "use_attack", map[string]any{"attack_name": "Gnaw"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "action failed and state restored")
	assert.Equal(t, string(model.FailureNotFound), res.Data["kind"])
	assert.Equal(t, rules.PhaseMain, g.Turn.Phase)
	assert.Len(t, r.Log(), logLen)
	assert.Equal(t, 1, logs.FilterMessage("auto-restored match state after error").Len())
}

func TestQueries(t *testing.T) {
	book := rulebook.New([]rulebook.Entry{
		{Section: "1", Text: "Each player has 6 Prize cards."},
		{Section: "2.1", Text: "You may retreat your Active Pokémon once per turn."},
	})
	r := newMatch(t, WithRuleBook(book))
	logLen := len(r.Log())

	res := mustDo(t, r, "bob", "query_rule", map[string]any{"query": "retreat"})
	sections := res.Data["rules"].([]map[string]any)
	require.Len(t, sections, 1)
	assert.Equal(t, "2.1", sections[0]["section"])

	res = mustDo(t, r, "bob", "query_state", nil)
	view := res.Data["state"].(MatchView)
	require.Len(t, view.Players, 2)
	for _, pv := range view.Players {
		if pv.PlayerID == "bob" {
			assert.Len(t, pv.Hand, pv.HandSize)
		} else {
			assert.Empty(t, pv.Hand, "opponent hand is hidden")
			assert.Positive(t, pv.HandSize)
		}
	}
	assert.Len(t, r.Log(), logLen, "queries are not logged")

	noBook := newMatch(t)
	res = do(t, noBook, "bob", "query_rule", map[string]any{"query": "retreat"})
	assert.Equal(t, string(model.FailureNotFound), res.Data["kind"])
}

func TestParseAction(t *testing.T) {
	for name, want := range map[string]ActionKind{
		"attach_energy": ActionAttachEnergy,
		"EVOLVE":        ActionEvolvePokemon,
		"switch":        ActionSwitchPokemon,
		"query_state":   ActionQueryState,
	} {
		got, err := ParseAction(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseAction("fly")
	assert.Error(t, err)
	assert.False(t, ActionQueryRule.Mutates())
	assert.True(t, ActionSelect.Mutates())
}
