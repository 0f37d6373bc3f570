package referee

import (
	"fmt"
	"strings"
)

// ActionKind is the closed set of requests a referee understands.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionStartTurn
	ActionDraw
	ActionDiscard
	ActionTakePrize
	ActionMoveToBench
	ActionSetActive
	ActionAttachEnergy
	ActionEvolvePokemon
	ActionSwitchPokemon
	ActionRetreat
	ActionPlayTrainer
	ActionUseAbility
	ActionUseAttack
	ActionEndTurn
	ActionSelect
	ActionQueryRule
	ActionQueryState
)

var actionNames = map[ActionKind]string{
	ActionStartTurn:     "start_turn",
	ActionDraw:          "draw",
	ActionDiscard:       "discard",
	ActionTakePrize:     "take_prize",
	ActionMoveToBench:   "move_to_bench",
	ActionSetActive:     "set_active",
	ActionAttachEnergy:  "attach_energy",
	ActionEvolvePokemon: "evolve_pokemon",
	ActionSwitchPokemon: "switch_pokemon",
	ActionRetreat:       "retreat",
	ActionPlayTrainer:   "play_trainer",
	ActionUseAbility:    "use_ability",
	ActionUseAttack:     "use_attack",
	ActionEndTurn:       "end_turn",
	ActionSelect:        "select",
	ActionQueryRule:     "query_rule",
	ActionQueryState:    "query_state",
}

var actionsByName = func() map[string]ActionKind {
	m := make(map[string]ActionKind, len(actionNames))
	for k, name := range actionNames {
		m[name] = k
	}
	return m
}()

func (a ActionKind) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ACTION_%d", int(a))
}

// ParseAction maps a wire action name to its kind. Names are matched
// case-insensitively; "evolve" and "switch" are accepted as aliases.
func ParseAction(name string) (ActionKind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "evolve":
		key = "evolve_pokemon"
	case "switch":
		key = "switch_pokemon"
	}
	if k, ok := actionsByName[key]; ok {
		return k, nil
	}
	return ActionUnknown, fmt.Errorf("unknown action %q", name)
}

// Mutates reports whether the action can change the game state.
func (a ActionKind) Mutates() bool {
	switch a {
	case ActionQueryRule, ActionQueryState, ActionUnknown:
		return false
	}
	return true
}

// ActionNames lists every wire action name.
func ActionNames() []string {
	out := make([]string, 0, len(actionNames))
	for k := ActionStartTurn; k <= ActionQueryState; k++ {
		out = append(out, actionNames[k])
	}
	return out
}
