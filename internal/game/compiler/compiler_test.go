package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

func trainer(name, subtype, text string) *model.CardDefinition {
	return &model.CardDefinition{
		SetCode:   "SVI",
		Number:    name,
		Name:      name,
		Category:  model.CategoryTrainer,
		Subtypes:  []string{subtype},
		RulesText: text,
	}
}

func compileOne(t *testing.T, def *model.CardDefinition) *plan.ExecutionPlan {
	t.Helper()
	plans := New(zaptest.NewLogger(t)).CompileCard(def)
	require.Len(t, plans, 1)
	require.NoError(t, plans[0].Validate())
	return plans[0]
}

func actions(p *plan.ExecutionPlan) []plan.Action {
	out := make([]plan.Action, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Action
	}
	return out
}

func TestCompileUltraBall(t *testing.T) {
	p := compileOne(t, trainer("Ultra Ball", "Item",
		"You can use this card only if you discard 2 other cards from your hand.\n\nSearch your deck for a Pokémon, reveal it, and put it into your hand. Then, shuffle your deck."))

	assert.Equal(t, []plan.Action{
		plan.ActionWaitForSelection,
		plan.ActionMoveCards,
		plan.ActionQueryDeckCandidates,
		plan.ActionWaitForSelection,
		plan.ActionMoveCards,
		plan.ActionShuffleDeck,
		plan.ActionDiscardTrainer,
	}, actions(p))

	discard := p.Steps[0].Params
	assert.Equal(t, "hand", discard.Source)
	assert.Equal(t, 2, discard.MinCount)
	assert.Equal(t, 2, discard.MaxCount)
	assert.Equal(t, "discard", p.Steps[1].Params.Target)
	assert.Equal(t, []int{0}, p.Steps[1].DependsOn)

	assert.Equal(t, "Pokemon", p.Steps[2].Params.Criteria.CardType)
	assert.Equal(t, []int{2}, p.Steps[3].DependsOn)
	assert.Equal(t, "hand", p.Steps[4].Params.Target)

	require.True(t, p.HasRule(plan.RuleHandSize))
	for _, r := range p.ValidationRules {
		if r.Kind == plan.RuleHandSize {
			assert.Equal(t, 2, r.Params.MinOtherCards)
		}
	}
	assert.True(t, p.RequiresSelection)
	assert.Equal(t, "deck", p.SelectionSource)
	assert.Equal(t, 1, p.MaxSelection)
	assert.Empty(t, p.Unsupported)
}

func TestCompileNestBallTargetsBench(t *testing.T) {
	p := compileOne(t, trainer("Nest Ball", "Item",
		"Search your deck for a Basic Pokémon and put it onto your Bench. Then, shuffle your deck."))

	assert.Equal(t, []plan.Action{
		plan.ActionQueryDeckCandidates,
		plan.ActionWaitForSelection,
		plan.ActionMoveCards,
		plan.ActionShuffleDeck,
		plan.ActionDiscardTrainer,
	}, actions(p))
	assert.Equal(t, "Basic", p.Steps[0].Params.Criteria.Stage)
	assert.Equal(t, "bench", p.Steps[2].Params.Target)
	assert.True(t, p.HasRule(plan.RuleBenchSpace))
	assert.Equal(t, "bench", p.SelectionTarget)
}

func TestCompileSuperRodKeepsShuffle(t *testing.T) {
	p := compileOne(t, trainer("Super Rod", "Item",
		"Shuffle up to 3 in any combination of Pokémon and Basic Energy cards from your discard pile into your deck."))

	assert.Equal(t, []plan.Action{
		plan.ActionQueryDiscardCandidates,
		plan.ActionWaitForSelection,
		plan.ActionMoveCardsFromDiscardDeck,
		plan.ActionShuffleDeck,
		plan.ActionDiscardTrainer,
	}, actions(p))
	crit := p.Steps[0].Params.Criteria
	require.NotNil(t, crit)
	assert.True(t, crit.AllowCombination)
	assert.Len(t, crit.CardTypes, 2)
	assert.Equal(t, 3, p.Steps[1].Params.MaxCount)
	assert.True(t, p.HasRule(plan.RuleDiscardHasCards))
}

func TestCompileIono(t *testing.T) {
	p := compileOne(t, trainer("Iono", "Supporter",
		"Each player shuffles their hand and puts it on the bottom of their deck. If either player put any cards on the bottom of their deck in this way, each player draws a card for each of their remaining Prize cards."))

	assert.Equal(t, []plan.Action{
		plan.ActionShuffleHandToBottom,
		plan.ActionQueryPrizeCounts,
		plan.ActionDrawCardsByPrizes,
		plan.ActionDiscardTrainer,
	}, actions(p))
	assert.Equal(t, "bottom", p.Steps[0].Params.Method)
	assert.True(t, p.Steps[0].Params.BothPlayers)
	assert.True(t, p.Steps[2].Params.BothPlayers)
	assert.Equal(t, "Supporter", p.EffectSubtype)
	assert.True(t, p.HasRule(plan.RuleSupporterUsed))
	assert.True(t, p.HasRule(plan.RuleFirstTurnRestriction))
	assert.Empty(t, p.Unsupported)
}

func TestCompileBossOrders(t *testing.T) {
	p := compileOne(t, trainer("Boss's Orders", "Supporter",
		"Switch in 1 of your opponent's Benched Pokémon to the Active Spot."))

	assert.Equal(t, []plan.Action{
		plan.ActionQueryOpponentBench,
		plan.ActionWaitForSelection,
		plan.ActionSwitchOpponentPokemon,
		plan.ActionDiscardTrainer,
	}, actions(p))
	for _, r := range p.ValidationRules {
		if r.Kind == plan.RuleBenchHasPokemon {
			assert.Equal(t, "opponent", r.Params.Condition)
		}
	}
	assert.True(t, p.HasRule(plan.RuleBenchHasPokemon))
}

func TestCompileSwitch(t *testing.T) {
	p := compileOne(t, trainer("Switch", "Item", "Switch your Active Pokémon with 1 of your Benched Pokémon."))
	assert.Equal(t, []plan.Action{
		plan.ActionQueryBench,
		plan.ActionWaitForSelection,
		plan.ActionSwitchPokemon,
		plan.ActionDiscardTrainer,
	}, actions(p))
}

func TestCompileRareCandy(t *testing.T) {
	p := compileOne(t, trainer("Rare Candy", "Item",
		"Choose 1 of your Basic Pokémon in play. If you have a Stage 2 card in your hand that evolves from that Pokémon, put that card onto the Basic Pokémon to evolve it, skipping the Stage 1. You can't use this card during your first turn or on a Basic Pokémon that was put into play this turn."))

	assert.Equal(t, []plan.Action{
		plan.ActionWaitForSelection,
		plan.ActionWaitForSelection,
		plan.ActionEvolveWithRareCandy,
		plan.ActionDiscardTrainer,
	}, actions(p))
	assert.Equal(t, []int{0, 1}, p.Steps[2].DependsOn)
	assert.Equal(t, model.StageTwo, p.Steps[1].Params.Criteria.Stage)
	assert.Empty(t, p.Unsupported)
	require.Len(t, p.Restrictions, 1)
	assert.Equal(t, "first_turn", p.Restrictions[0].Condition)
	assert.True(t, p.Restrictions[0].CannotUse)
}

func TestCompileToolWithoutEffectAttaches(t *testing.T) {
	p := compileOne(t, trainer("Bravery Charm", "Pokémon Tool", ""))
	assert.Equal(t, []plan.Action{
		plan.ActionQueryPokemonInPlay,
		plan.ActionWaitForSelection,
		plan.ActionAttachTool,
	}, actions(p))
	assert.True(t, p.Steps[0].Params.ExcludeToolAttached)
	assert.True(t, p.HasRule(plan.RuleToolAttached))
}

func TestCompileStadiumStaysInPlay(t *testing.T) {
	p := compileOne(t, trainer("Artazon", "Stadium", "Once during each player's turn, that player may search their deck for a Basic Pokémon and put it onto their Bench."))
	assert.Equal(t, plan.ActionPlayStadium, p.Steps[len(p.Steps)-1].Action)
	assert.Equal(t, -1, p.IndexOf(plan.ActionDiscardTrainer))
	assert.True(t, p.HasRule(plan.RuleStadiumDuplicate))
}

func TestCompileConditionalClause(t *testing.T) {
	p := compileOne(t, trainer("Town Crier", "Item", "You may discard a Stadium in play. If you do, draw 3 cards."))

	assert.Equal(t, []plan.Action{
		plan.ActionCheckStadiumInPlay,
		plan.ActionDiscardStadium,
		plan.ActionDrawCards,
		plan.ActionDiscardTrainer,
	}, actions(p))
	assert.Equal(t, plan.SkipNoStadium, p.Steps[1].SkipIf)
	draw := p.Steps[2]
	assert.True(t, draw.Conditional)
	assert.Equal(t, plan.SkipConditionFailed, draw.SkipIf)
	assert.Equal(t, []int{1}, draw.DependsOn)
	assert.True(t, p.HasRule(plan.RuleStadiumOrToolInPlay))
}

func TestCompileBasicEnergy(t *testing.T) {
	def := &model.CardDefinition{SetCode: "SVE", Number: "4", Name: "Lightning Energy", Category: model.CategoryEnergy, Subtypes: []string{"Basic"}, EnergyType: "Lightning"}
	p := compileOne(t, def)

	assert.Equal(t, "Basic Energy", p.EffectSubtype)
	assert.Equal(t, []plan.Action{plan.ActionAttachEnergy}, actions(p))
	assert.True(t, p.HasRule(plan.RuleInHand))
	assert.True(t, p.HasRule(plan.RuleEnergyAttachmentLimit))
}

func TestCompilePokemonAbilitiesAndAttacks(t *testing.T) {
	def := &model.CardDefinition{
		SetCode: "PAL", Number: "7", Name: "Bibarel", Category: model.CategoryPokemon, Stage: model.StageOne, HP: 120,
		Abilities: []model.Ability{
			{Name: "Industrious Incisors", Text: "Once during your turn, you may draw 2 cards."},
			{Name: "Sturdy Fur", Text: "Prevent all damage done to this Pokémon by attacks from Basic Pokémon."},
		},
		Attacks: []model.Attack{
			{Name: "Tail Smash", Cost: []string{"Colorless", "Colorless", "Colorless"}, Damage: "100"},
		},
	}
	plans := New(zaptest.NewLogger(t)).CompileCard(def)
	require.Len(t, plans, 3)

	active := plans[0]
	assert.Equal(t, plan.EffectAbility, active.EffectType)
	assert.Equal(t, []plan.Action{plan.ActionDrawCards}, actions(active))
	assert.Equal(t, 2, active.Steps[0].Params.Count)
	assert.True(t, active.HasRule(plan.RuleAbilityUsed))

	passive := plans[1]
	assert.Empty(t, passive.Steps)
	assert.Equal(t, "passive ability", passive.Notes)

	attack := plans[2]
	assert.Equal(t, []plan.Action{plan.ActionCalculateDamage}, actions(attack))
	assert.Equal(t, 100, attack.Steps[0].Params.BaseDamage)
	assert.True(t, attack.HasRule(plan.RuleInActive))
	assert.True(t, attack.HasRule(plan.RuleEnergyRequirement))
}

func TestBeforeDamageStepsPrecedeDamage(t *testing.T) {
	def := &model.CardDefinition{
		SetCode: "TWM", Number: "12", Name: "Tool Breaker", Category: model.CategoryPokemon, Stage: model.StageBasic, HP: 90,
		Attacks: []model.Attack{{
			Name:   "Crush",
			Cost:   []string{"Fighting"},
			Damage: "30",
			Text:   "Before doing damage, discard all Pokémon Tools from your opponent's Active Pokémon.",
		}},
	}
	p := compileOne(t, def)

	assert.Equal(t, []plan.Action{plan.ActionDiscardFrom, plan.ActionCalculateDamage}, actions(p))
	assert.True(t, p.Steps[0].BeforeDamage)
	assert.Equal(t, plan.Unbounded, p.Steps[0].Params.Count)
	assert.Equal(t, "your opponent's active pokémon", p.Steps[0].Params.Source)
	assert.Empty(t, p.Unsupported)
}

func TestPrizeBasedDamage(t *testing.T) {
	def := &model.CardDefinition{
		SetCode: "PAR", Number: "20", Name: "Avenger", Category: model.CategoryPokemon, Stage: model.StageBasic, HP: 110,
		Attacks: []model.Attack{{
			Name:   "Payback",
			Cost:   []string{"Darkness"},
			Damage: "10+",
			Text:   "This attack does 30 more damage for each Prize card your opponent has taken.",
		}},
	}
	p := compileOne(t, def)

	assert.Equal(t, []plan.Action{plan.ActionQueryOpponentPrizeCount, plan.ActionCalculateDamage}, actions(p))
	mods := p.Steps[1].Params.Modifiers
	require.Len(t, mods, 1)
	assert.Equal(t, plan.ModPrizeBased, mods[0].Type)
	assert.Equal(t, 30, mods[0].Bonus)
	assert.Equal(t, 10, p.Steps[1].Params.BaseDamage)
}

func TestUnsupportedClausesAreReportedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	def := &model.CardDefinition{
		SetCode: "OBF", Number: "3", Name: "Sparker", Category: model.CategoryPokemon, Stage: model.StageBasic, HP: 60,
		Attacks: []model.Attack{{
			Name:   "Jolt",
			Cost:   []string{"Lightning"},
			Damage: "20",
			Text:   "Flip a coin. If heads, your opponent's Active Pokémon is now Paralyzed.",
		}},
	}
	plans := New(zap.New(core)).CompileCard(def)
	require.Len(t, plans, 1)

	p := plans[0]
	assert.Equal(t, []plan.Action{plan.ActionCalculateDamage}, actions(p))
	assert.Contains(t, p.Unsupported, "Flip a coin")
	assert.Equal(t, len(p.Unsupported), logs.FilterMessage("unsupported clause").Len())
}

func TestCompileIsDeterministic(t *testing.T) {
	def := trainer("Ultra Ball", "Item",
		"You can use this card only if you discard 2 other cards from your hand. Search your deck for a Pokémon, reveal it, and put it into your hand. Then, shuffle your deck.")
	c := New(zaptest.NewLogger(t))
	assert.Equal(t, c.CompileCard(def), c.CompileCard(def))
}

func TestCompileByEffectName(t *testing.T) {
	def := &model.CardDefinition{
		SetCode: "PAL", Number: "8", Name: "Pidgeot", Category: model.CategoryPokemon, Stage: model.StageTwo, HP: 130,
		Attacks: []model.Attack{{Name: "Blustery Wind", Cost: []string{"Colorless"}, Damage: "120"}},
	}
	c := New(zaptest.NewLogger(t), WithVersion(3), WithStatus(plan.StatusApproved))

	p, err := c.Compile(def, "blustery wind")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Version)
	assert.Equal(t, plan.StatusApproved, p.Status)

	_, err = c.Compile(def, "Quick Gust")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.FailureNotFound))
}

func TestParseSearchCriteria(t *testing.T) {
	c := ParseSearchCriteria("up to 2 Basic Energy cards")
	assert.Equal(t, "Energy", c.CardType)
	assert.Equal(t, "Basic Energy", c.EnergyType)
	assert.Equal(t, 2, c.MaxCount)

	c = ParseSearchCriteria("a [L] Energy card")
	assert.Equal(t, "Lightning", c.EnergyColor)
	assert.Zero(t, c.MaxCount)

	c = ParseSearchCriteria("any number of Pokémon with 70 HP or less")
	assert.Equal(t, "Pokemon", c.CardType)
	assert.Equal(t, 70, c.MaxHP)
	assert.True(t, c.AnyCount)
	assert.Equal(t, plan.Unbounded, c.MaxCount)
}
