package plan

// StepKind is the broad category of an execution step.
type StepKind string

const (
	KindValidation   StepKind = "validation"
	KindQuery        StepKind = "query"
	KindSelection    StepKind = "selection"
	KindMove         StepKind = "move"
	KindAttach       StepKind = "attach"
	KindShuffle      StepKind = "shuffle"
	KindDraw         StepKind = "draw"
	KindHeal         StepKind = "heal"
	KindDamageCounts StepKind = "move_damage_counters"
	KindEnergyMove   StepKind = "move_energy"
	KindDevolve      StepKind = "devolve"
	KindDamage       StepKind = "damage"
	KindEndTurn      StepKind = "end_turn"
	KindCheck        StepKind = "check"
)

// Action is the concrete operation a step performs. The set is closed.
type Action string

const (
	ActionQueryDeckCandidates      Action = "query_deck_candidates"
	ActionQueryDiscardCandidates   Action = "query_discard_candidates"
	ActionQueryPokemonInPlay       Action = "query_pokemon_in_play"
	ActionQueryBench               Action = "query_bench"
	ActionQueryOpponentBench       Action = "query_opponent_bench"
	ActionQueryStadiumAndTools     Action = "query_stadium_and_tools"
	ActionQueryPrizeCounts         Action = "query_prize_counts"
	ActionQueryOpponentPrizeCount  Action = "query_opponent_prize_count"
	ActionRevealTopCards           Action = "reveal_top_cards"
	ActionWaitForSelection         Action = "wait_for_selection"
	ActionMoveCards                Action = "move_cards"
	ActionMoveCardsFromDiscardDeck Action = "move_cards_from_discard_to_deck"
	ActionAttachEnergyCards        Action = "attach_energy_cards"
	ActionAttachEnergy             Action = "attach_energy"
	ActionAttachTool               Action = "attach_tool"
	ActionDiscardFrom              Action = "discard_from"
	ActionShuffleDeck              Action = "shuffle_deck"
	ActionShuffleHandToBottom      Action = "shuffle_hand_into_deck_bottom"
	ActionDrawCards                Action = "draw_cards"
	ActionDrawCardsByPrizes        Action = "draw_cards_by_prizes"
	ActionMovePokemonToHand        Action = "move_pokemon_to_hand"
	ActionHealDamage               Action = "heal_damage"
	ActionMoveDamageCounters       Action = "move_damage_counters"
	ActionPutDamageCounters        Action = "put_damage_counters"
	ActionMoveEnergy               Action = "move_energy"
	ActionDevolvePokemon           Action = "devolve_pokemon"
	ActionCalculateDamage          Action = "calculate_and_apply_damage"
	ActionEndTurn                  Action = "end_turn"
	ActionCheckStadiumInPlay       Action = "check_stadium_in_play"
	ActionDiscardStadium           Action = "discard_stadium"
	ActionPlayStadium              Action = "play_stadium"
	ActionSwitchOpponentPokemon    Action = "switch_opponent_pokemon"
	ActionSwitchPokemon            Action = "switch_pokemon"
	ActionEvolveWithRareCandy      Action = "evolve_with_rare_candy"
	ActionDiscardTrainer           Action = "discard_trainer"
)

var knownActions = map[Action]struct{}{
	ActionQueryDeckCandidates: {}, ActionQueryDiscardCandidates: {}, ActionQueryPokemonInPlay: {},
	ActionQueryBench: {}, ActionQueryOpponentBench: {}, ActionQueryStadiumAndTools: {},
	ActionQueryPrizeCounts: {}, ActionQueryOpponentPrizeCount: {}, ActionRevealTopCards: {},
	ActionWaitForSelection: {}, ActionMoveCards: {}, ActionMoveCardsFromDiscardDeck: {},
	ActionAttachEnergyCards: {}, ActionAttachEnergy: {}, ActionAttachTool: {},
	ActionDiscardFrom: {}, ActionShuffleDeck: {}, ActionShuffleHandToBottom: {},
	ActionDrawCards: {}, ActionDrawCardsByPrizes: {}, ActionMovePokemonToHand: {},
	ActionHealDamage: {}, ActionMoveDamageCounters: {}, ActionPutDamageCounters: {},
	ActionMoveEnergy: {}, ActionDevolvePokemon: {}, ActionCalculateDamage: {},
	ActionEndTurn: {}, ActionCheckStadiumInPlay: {}, ActionDiscardStadium: {},
	ActionPlayStadium: {}, ActionSwitchOpponentPokemon: {}, ActionSwitchPokemon: {},
	ActionEvolveWithRareCandy: {}, ActionDiscardTrainer: {},
}

// Known reports whether the action belongs to the closed set.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// SkipCondition names a runtime condition under which a step is skipped.
type SkipCondition string

const (
	SkipNoStadium       SkipCondition = "no_stadium"
	SkipNoSelection     SkipCondition = "no_selection"
	SkipEmptyBench      SkipCondition = "empty_bench"
	SkipConditionFailed SkipCondition = "condition_failed"
)

// Known reports whether the skip condition is recognised.
func (s SkipCondition) Known() bool {
	switch s {
	case SkipNoStadium, SkipNoSelection, SkipEmptyBench, SkipConditionFailed:
		return true
	}
	return false
}

// Step is one execution step of a plan.
type Step struct {
	Kind         StepKind      `json:"step_type"`
	Action       Action        `json:"action"`
	Description  string        `json:"description,omitempty"`
	Params       Params        `json:"params"`
	DependsOn    []int         `json:"depends_on,omitempty"`
	Optional     bool          `json:"optional,omitempty"`
	SkipIf       SkipCondition `json:"skip_if,omitempty"`
	BeforeDamage bool          `json:"before_damage,omitempty"`
	Conditional  bool          `json:"conditional,omitempty"`
}

// Params carries the step arguments. Unused fields are left zero.
type Params struct {
	Source      string    `json:"source,omitempty"`
	Target      string    `json:"target,omitempty"`
	Count       int       `json:"count,omitempty"`
	MinCount    int       `json:"min_count,omitempty"`
	MaxCount    int       `json:"max_count,omitempty"`
	Criteria    *Criteria `json:"criteria,omitempty"`
	BothPlayers bool      `json:"both_players,omitempty"`

	DiscardAttached     bool   `json:"discard_attached,omitempty"`
	AllowMultiTargets   bool   `json:"allow_multiple_targets,omitempty"`
	ExcludeToolAttached bool   `json:"exclude_tool_attached,omitempty"`
	EnergyType          string `json:"energy_type,omitempty"`
	CardType            string `json:"card_type,omitempty"`
	Method              string `json:"method,omitempty"`

	BaseDamage int              `json:"base_damage,omitempty"`
	Modifiers  []DamageModifier `json:"damage_modifiers,omitempty"`
}

// ModifierType classifies a damage modifier.
type ModifierType string

const (
	ModBonus            ModifierType = "bonus"
	ModBonusPer         ModifierType = "bonus_per"
	ModPrizeBased       ModifierType = "prize_based"
	ModSelfDamage       ModifierType = "self_damage"
	ModDamageToMultiple ModifierType = "damage_to_multiple"
	ModDoesNothing      ModifierType = "attack_does_nothing"
)

// DamageModifier adjusts the base damage of an attack.
type DamageModifier struct {
	Type      ModifierType `json:"type"`
	Bonus     int          `json:"bonus,omitempty"`
	Condition string       `json:"condition,omitempty"`
	Amount    int          `json:"amount,omitempty"`
	Damage    int          `json:"damage,omitempty"`
	Count     int          `json:"count,omitempty"`
}

// RuleKind names a validation rule.
type RuleKind string

const (
	RuleInHand                RuleKind = "in_hand"
	RuleInActive              RuleKind = "in_active"
	RuleAbilityUsed           RuleKind = "ability_used"
	RuleAbilityUsedGame       RuleKind = "ability_used_game"
	RuleEnergyRequirement     RuleKind = "energy_requirement"
	RulePrizeComparison       RuleKind = "prize_comparison"
	RuleTurnLimit             RuleKind = "turn_limit"
	RuleSupporterUsed         RuleKind = "supporter_used"
	RuleFirstTurnRestriction  RuleKind = "first_turn_restriction"
	RuleStadiumUsed           RuleKind = "stadium_used"
	RuleStadiumDuplicate      RuleKind = "stadium_duplicate"
	RuleToolAttached          RuleKind = "tool_attached"
	RuleHandSize              RuleKind = "hand_size"
	RuleDiscardHasCards       RuleKind = "discard_has_cards"
	RuleStadiumOrToolInPlay   RuleKind = "stadium_or_tool_in_play"
	RuleBenchSpace            RuleKind = "bench_space"
	RuleBenchHasPokemon       RuleKind = "bench_has_pokemon"
	RuleEnergyAttachmentLimit RuleKind = "energy_attachment_limit"
)

// ValidationRule is a precondition checked before any step runs.
type ValidationRule struct {
	Kind         RuleKind   `json:"type"`
	Description  string     `json:"description,omitempty"`
	Params       RuleParams `json:"params"`
	ErrorMessage string     `json:"error_message"`
}

// RuleParams carries rule arguments.
type RuleParams struct {
	AbilityName   string   `json:"ability_name,omitempty"`
	Cost          []string `json:"cost,omitempty"`
	MinOtherCards int      `json:"min_other_cards,omitempty"`
	CardTypes     []string `json:"card_types,omitempty"`
	Value         int      `json:"value,omitempty"`
	Condition     string   `json:"condition,omitempty"`
}
