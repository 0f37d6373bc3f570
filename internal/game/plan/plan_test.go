package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

func TestKeyRoundTrip(t *testing.T) {
	k := Key{CardID: "SVI-181", EffectName: "Nest Ball", Version: 2, Status: StatusApproved}
	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseKey("a|b|x|draft")
	assert.Error(t, err)
}

func TestValidateRejectsForwardDependency(t *testing.T) {
	p := &ExecutionPlan{Steps: []Step{
		{Kind: KindQuery, Action: ActionQueryDeckCandidates},
		{Kind: KindSelection, Action: ActionWaitForSelection, DependsOn: []int{2}},
		{Kind: KindMove, Action: ActionMoveCards, DependsOn: []int{1}},
	}}
	assert.Error(t, p.Validate())

	p.Steps[1].DependsOn = []int{0}
	assert.NoError(t, p.Validate())

	p.Steps[2].SkipIf = "sometimes"
	assert.Error(t, p.Validate())
}

func TestCriteriaMatches(t *testing.T) {
	pikachu := &model.CardDefinition{Name: "Pikachu", Category: model.CategoryPokemon, Stage: model.StageBasic, HP: 70, EnergyType: "Lightning"}
	raichu := &model.CardDefinition{Name: "Raichu", Category: model.CategoryPokemon, Stage: model.StageOne, HP: 120, EnergyType: "Lightning"}
	fire := &model.CardDefinition{Name: "Fire Energy", Category: model.CategoryEnergy, Subtypes: []string{"Basic"}, EnergyType: "Fire"}
	tool := &model.CardDefinition{Name: "Bravery Charm", Category: model.CategoryTrainer, Subtypes: []string{"Pokémon Tool"}}

	basicPokemon := &Criteria{CardType: "Pokemon", Stage: "Basic"}
	assert.True(t, basicPokemon.Matches(pikachu))
	assert.False(t, basicPokemon.Matches(raichu))

	lowHP := &Criteria{CardType: "Pokemon", MaxHP: 90}
	assert.True(t, lowHP.Matches(pikachu))
	assert.False(t, lowHP.Matches(raichu))

	basicFire := &Criteria{CardType: "Energy", EnergyType: "Basic Energy", EnergyColor: "Fire"}
	assert.True(t, basicFire.Matches(fire))

	combo := &Criteria{AllowCombination: true, CardTypes: []Criteria{
		{CardType: "Trainer", Subtype: "Tool"},
		{CardType: "Energy", EnergyType: "Basic Energy"},
	}}
	assert.True(t, combo.Matches(tool))
	assert.True(t, combo.Matches(fire))
	assert.False(t, combo.Matches(pikachu))

	var none *Criteria
	assert.True(t, none.Matches(raichu))
	assert.True(t, none.Empty())
}

func TestPlanJSONKeepsWireNames(t *testing.T) {
	p := ExecutionPlan{
		CardID:     "SVI-181",
		EffectType: EffectTrainer,
		Status:     StatusDraft,
		Version:    1,
		Steps: []Step{{
			Kind:   KindDamage,
			Action: ActionCalculateDamage,
			Params: Params{BaseDamage: 30, Modifiers: []DamageModifier{{Type: ModBonus, Bonus: 30}}},
		}},
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"action":"calculate_and_apply_damage"`)
	assert.Contains(t, string(raw), `"execution_steps"`)

	var back ExecutionPlan
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 0, back.DamageStepIndex())
	assert.Equal(t, p.Key(), back.Key())
}
