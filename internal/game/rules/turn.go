package rules

import (
	"fmt"
	"strings"
)

// Phase represents the broad phases of a match and of a single turn.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSetup
	PhaseDraw
	PhaseMain
	PhaseAttack
	PhaseTurnEnd
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseInit:     "init",
	PhaseSetup:    "setup",
	PhaseDraw:     "draw",
	PhaseMain:     "main",
	PhaseAttack:   "attack",
	PhaseTurnEnd:  "turn_end",
	PhaseGameOver: "game_over",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ParsePhase maps a wire name back to a Phase.
func ParsePhase(name string) (Phase, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for p, n := range phaseNames {
		if n == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// MarshalText encodes the phase as its wire name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase wire name.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// transitions lists the legal successor phases.
var transitions = map[Phase][]Phase{
	PhaseInit:    {PhaseSetup},
	PhaseSetup:   {PhaseDraw},
	PhaseDraw:    {PhaseMain},
	PhaseMain:    {PhaseAttack, PhaseTurnEnd},
	PhaseAttack:  {PhaseTurnEnd},
	PhaseTurnEnd: {PhaseDraw},
}

// CanTransition reports whether from -> to is a legal phase change.
// Any phase may move to GameOver.
func CanTransition(from, to Phase) bool {
	if to == PhaseGameOver {
		return from != PhaseGameOver
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TurnState tracks whose turn it is, the turn number and the phase.
type TurnState struct {
	Player string `json:"player"`
	Number int    `json:"number"`
	Phase  Phase  `json:"phase"`
}

// Advance moves to phase `to`. Moving from TurnEnd to Draw hands the turn to
// nextPlayer and increments the turn number; Setup to Draw starts turn 1 for nextPlayer.
func (t *TurnState) Advance(to Phase, nextPlayer string) error {
	if !CanTransition(t.Phase, to) {
		return fmt.Errorf("illegal phase transition %s -> %s", t.Phase, to)
	}
	switch {
	case t.Phase == PhaseSetup && to == PhaseDraw:
		next := strings.TrimSpace(nextPlayer)
		if next == "" {
			return fmt.Errorf("first player required to leave setup")
		}
		t.Player = next
		t.Number = 1
	case t.Phase == PhaseTurnEnd && to == PhaseDraw:
		if next := strings.TrimSpace(nextPlayer); next != "" {
			t.Player = next
		}
		t.Number++
	}
	t.Phase = to
	return nil
}

// IsPlayable reports whether player actions are accepted in the phase.
func (p Phase) IsPlayable() bool {
	return p == PhaseDraw || p == PhaseMain || p == PhaseAttack
}
