// Package plan holds the compiled description of a card effect: validation
// rules plus an ordered, dependency-linked list of execution steps. Plans are
// produced by the compiler, stored by the repository layer and walked by the
// interpreter. They are pure data and are never mutated once built.
package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EffectType classifies what a plan was compiled from.
type EffectType string

const (
	EffectAbility EffectType = "ability"
	EffectAttack  EffectType = "attack"
	EffectTrainer EffectType = "trainer"
	EffectEnergy  EffectType = "energy"
)

// Status is the review state of a stored plan.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusReviewed   Status = "reviewed"
	StatusApproved   Status = "approved"
	StatusDeprecated Status = "deprecated"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusReviewed, StatusApproved, StatusDeprecated:
		return st, nil
	}
	return "", fmt.Errorf("unknown plan status %q", s)
}

// Unbounded marks a count with no upper limit ("any amount", "all").
const Unbounded = -1

// Key identifies a stored plan.
type Key struct {
	CardID     string `json:"card_id"`
	EffectName string `json:"effect_name"`
	Version    int    `json:"version"`
	Status     Status `json:"status"`
}

func (k Key) String() string {
	return k.CardID + "|" + k.EffectName + "|" + strconv.Itoa(k.Version) + "|" + string(k.Status)
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("invalid plan key %q", s)
	}
	v, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("invalid plan key version %q: %w", parts[2], err)
	}
	return Key{CardID: parts[0], EffectName: parts[1], Version: v, Status: Status(parts[3])}, nil
}

// ExecutionPlan is the compiled form of one card effect.
type ExecutionPlan struct {
	CardID        string     `json:"card_id"`
	CardName      string     `json:"card_name"`
	SetCode       string     `json:"set_code"`
	Number        string     `json:"number"`
	EffectType    EffectType `json:"effect_type"`
	EffectSubtype string     `json:"effect_subtype,omitempty"`
	EffectName    string     `json:"effect_name"`

	RequiresSelection bool      `json:"requires_selection,omitempty"`
	SelectionSource   string    `json:"selection_source,omitempty"`
	SelectionTarget   string    `json:"selection_target,omitempty"`
	SelectionCriteria *Criteria `json:"selection_criteria,omitempty"`
	MinSelection      int       `json:"min_selection_count,omitempty"`
	MaxSelection      int       `json:"max_selection_count,omitempty"`

	ValidationRules []ValidationRule `json:"validation_rules"`
	Steps           []Step           `json:"execution_steps"`
	Restrictions    []Restriction    `json:"restrictions,omitempty"`

	// Unsupported lists clauses the compiler could not classify.
	Unsupported []string `json:"unsupported,omitempty"`

	Status     Status     `json:"status"`
	Version    int        `json:"version"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Notes      string     `json:"analysis_notes,omitempty"`
}

// Key returns the storage key of the plan.
func (p *ExecutionPlan) Key() Key {
	return Key{CardID: p.CardID, EffectName: p.EffectName, Version: p.Version, Status: p.Status}
}

// HasRule reports whether the plan carries a validation rule of the kind.
func (p *ExecutionPlan) HasRule(kind RuleKind) bool {
	for _, r := range p.ValidationRules {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// DamageStepIndex returns the index of the damage step, or -1.
func (p *ExecutionPlan) DamageStepIndex() int {
	for i, s := range p.Steps {
		if s.Action == ActionCalculateDamage {
			return i
		}
	}
	return -1
}

// IndexOf returns the first step index with the given action, or -1.
func (p *ExecutionPlan) IndexOf(action Action) int {
	for i, s := range p.Steps {
		if s.Action == action {
			return i
		}
	}
	return -1
}

// Validate checks structural soundness: every dependency points at an earlier step.
func (p *ExecutionPlan) Validate() error {
	for i, s := range p.Steps {
		if !s.Action.Known() {
			return fmt.Errorf("step %d: unknown action %q", i, s.Action)
		}
		for _, dep := range s.DependsOn {
			if dep < 0 || dep >= i {
				return fmt.Errorf("step %d (%s) depends on step %d which does not precede it", i, s.Action, dep)
			}
		}
		if s.SkipIf != "" && !s.SkipIf.Known() {
			return fmt.Errorf("step %d: unknown skip condition %q", i, s.SkipIf)
		}
	}
	return nil
}

// Restriction is an informational usage restriction attached to a plan.
type Restriction struct {
	Kind      string `json:"type"`
	Value     int    `json:"value,omitempty"`
	Condition string `json:"condition,omitempty"`
	CannotUse bool   `json:"cannot_use,omitempty"`
}
