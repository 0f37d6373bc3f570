package interpreter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// Token captures a suspended execution. It carries the plan itself so that
// Resume depends only on the game state, the token and the chosen ids.
type Token struct {
	PlanKey   plan.Key `json:"plan_key"`
	Source    string   `json:"source"`
	StepIndex int      `json:"step_index"`

	Outputs map[int][]string `json:"outputs,omitempty"`
	Values  map[int]int      `json:"values,omitempty"`
	Skipped []int            `json:"skipped,omitempty"`

	PlayerID      string            `json:"player_id"`
	SourceUID     string            `json:"source_uid,omitempty"`
	Targets       map[string]string `json:"targets,omitempty"`
	DamageTargets []string          `json:"damage_targets,omitempty"`

	// Partial results gathered before the suspension.
	Drawn      []string `json:"drawn,omitempty"`
	KnockedOut []string `json:"knocked_out,omitempty"`
	Damage     int      `json:"damage,omitempty"`
	EndTurn    bool     `json:"end_turn,omitempty"`

	Plan *plan.ExecutionPlan `json:"plan"`
}

// Encode returns the opaque wire form of the token (base64url JSON).
func (t *Token) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken parses the wire form produced by Encode.
func DecodeToken(s string) (*Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if t.Plan == nil {
		return nil, fmt.Errorf("token carries no plan")
	}
	if t.StepIndex < 0 || t.StepIndex >= len(t.Plan.Steps) {
		return nil, fmt.Errorf("token step index %d out of range", t.StepIndex)
	}
	return &t, nil
}
