package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Category is the top-level card type.
type Category string

const (
	CategoryPokemon Category = "Pokemon"
	CategoryTrainer Category = "Trainer"
	CategoryEnergy  Category = "Energy"
)

// Evolution stages.
const (
	StageBasic = "Basic"
	StageOne   = "Stage 1"
	StageTwo   = "Stage 2"
	StageNone  = ""
)

// Trainer and energy subtypes referenced by the rules engine.
const (
	SubtypeItem        = "Item"
	SubtypeSupporter   = "Supporter"
	SubtypeStadium     = "Stadium"
	SubtypeTool        = "Pokémon Tool"
	SubtypeBasicEnergy = "Basic"
	SubtypeSpecial     = "Special"
)

// SpecialCondition is a status that affects an Active Pokémon.
type SpecialCondition string

const (
	ConditionAsleep    SpecialCondition = "Asleep"
	ConditionBurned    SpecialCondition = "Burned"
	ConditionConfused  SpecialCondition = "Confused"
	ConditionParalyzed SpecialCondition = "Paralyzed"
	ConditionPoisoned  SpecialCondition = "Poisoned"
)

// ParseSpecialCondition validates a condition name, ignoring case.
func ParseSpecialCondition(name string) (SpecialCondition, error) {
	for _, c := range []SpecialCondition{ConditionAsleep, ConditionBurned, ConditionConfused, ConditionParalyzed, ConditionPoisoned} {
		if strings.EqualFold(string(c), strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid special condition %q", name)
}

// Ability is a Pokémon ability descriptor.
type Ability struct {
	Name string `json:"name" yaml:"name"`
	Text string `json:"text" yaml:"text"`
}

// Attack is a Pokémon attack descriptor. Cost lists energy types, "Colorless" matches any.
type Attack struct {
	Name   string   `json:"name" yaml:"name"`
	Cost   []string `json:"cost" yaml:"cost"`
	Damage string   `json:"damage" yaml:"damage"`
	Text   string   `json:"text" yaml:"text"`
}

// BaseDamage parses the leading number of the damage string ("30+", "20x" -> 30, 20).
func (a Attack) BaseDamage() int {
	digits := strings.TrimRight(strings.TrimSpace(a.Damage), "+×x- ")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.Fields(digits)[0])
	if err != nil {
		return 0
	}
	return n
}

// CardDefinition is the immutable static data shared by every copy of a card.
type CardDefinition struct {
	SetCode     string    `json:"set_code" yaml:"set_code"`
	Number      string    `json:"number" yaml:"number"`
	Name        string    `json:"name" yaml:"name"`
	Category    Category  `json:"category" yaml:"category"`
	HP          int       `json:"hp,omitempty" yaml:"hp,omitempty"`
	Stage       string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	EvolvesFrom string    `json:"evolves_from,omitempty" yaml:"evolves_from,omitempty"`
	Subtypes    []string  `json:"subtypes,omitempty" yaml:"subtypes,omitempty"`
	EnergyType  string    `json:"energy_type,omitempty" yaml:"energy_type,omitempty"`
	RetreatCost int       `json:"retreat_cost,omitempty" yaml:"retreat_cost,omitempty"`
	RulesText   string    `json:"rules_text,omitempty" yaml:"rules_text,omitempty"`
	Abilities   []Ability `json:"abilities,omitempty" yaml:"abilities,omitempty"`
	Attacks     []Attack  `json:"attacks,omitempty" yaml:"attacks,omitempty"`
}

// ID returns the catalog identity "<set>-<number>".
func (d *CardDefinition) ID() string {
	return d.SetCode + "-" + d.Number
}

// HasSubtype reports whether the definition carries the subtype (case-insensitive, substring for tools).
func (d *CardDefinition) HasSubtype(subtype string) bool {
	return slices.ContainsFunc(d.Subtypes, func(s string) bool {
		if strings.EqualFold(s, subtype) {
			return true
		}
		return subtype == SubtypeTool && strings.Contains(strings.ToLower(s), "tool")
	})
}

// IsBasicPokemon reports whether the card is a Basic Pokémon.
func (d *CardDefinition) IsBasicPokemon() bool {
	return d.Category == CategoryPokemon && (d.Stage == StageBasic || d.Stage == StageNone)
}

// IsBasicEnergy reports whether the card is a Basic Energy card.
func (d *CardDefinition) IsBasicEnergy() bool {
	return d.Category == CategoryEnergy && (d.HasSubtype(SubtypeBasicEnergy) || d.HasSubtype("Basic Energy"))
}

// FindAbility looks up an ability by name.
func (d *CardDefinition) FindAbility(name string) (Ability, bool) {
	for _, ab := range d.Abilities {
		if strings.EqualFold(ab.Name, name) {
			return ab, true
		}
	}
	return Ability{}, false
}

// FindAttack looks up an attack by name.
func (d *CardDefinition) FindAttack(name string) (Attack, bool) {
	for _, atk := range d.Attacks {
		if strings.EqualFold(atk.Name, name) {
			return atk, true
		}
	}
	return Attack{}, false
}

// CardInstance is one physical card in a match.
type CardInstance struct {
	UID        string          `json:"uid"`
	OwnerID    string          `json:"owner_id"`
	Definition *CardDefinition `json:"definition"`

	Damage         int                `json:"damage"`
	AttachedEnergy []string           `json:"attached_energy,omitempty"`
	AttachedTool   string             `json:"attached_tool,omitempty"`
	Conditions     []SpecialCondition `json:"conditions,omitempty"`
	EnteredTurn    int                `json:"entered_turn,omitempty"`
	EvolvedFrom    []string           `json:"evolved_from,omitempty"`
}

// NewCardInstance creates a new card instance for an owner.
func NewCardInstance(uid, ownerID string, def *CardDefinition) *CardInstance {
	return &CardInstance{UID: uid, OwnerID: ownerID, Definition: def}
}

// Name returns the definition name.
func (c *CardInstance) Name() string {
	if c.Definition == nil {
		return ""
	}
	return c.Definition.Name
}

// RemainingHP returns HP minus accumulated damage (never negative).
func (c *CardInstance) RemainingHP() int {
	if c.Definition == nil {
		return 0
	}
	return max(0, c.Definition.HP-c.Damage)
}

// IsKnockedOut reports whether accumulated damage reached HP.
func (c *CardInstance) IsKnockedOut() bool {
	return c.Definition != nil && c.Definition.Category == CategoryPokemon && c.Definition.HP > 0 && c.Damage >= c.Definition.HP
}

// HasCondition reports whether the condition is active.
func (c *CardInstance) HasCondition(cond SpecialCondition) bool {
	return slices.Contains(c.Conditions, cond)
}

// ClearRuntime resets damage, attachments and conditions (used when leaving play).
func (c *CardInstance) ClearRuntime() {
	c.Damage = 0
	c.AttachedEnergy = nil
	c.AttachedTool = ""
	c.Conditions = nil
	c.EnteredTurn = 0
	c.EvolvedFrom = nil
}

// Clone returns a deep copy sharing the immutable definition.
func (c *CardInstance) Clone() *CardInstance {
	cp := *c
	cp.AttachedEnergy = slices.Clone(c.AttachedEnergy)
	cp.Conditions = slices.Clone(c.Conditions)
	cp.EvolvedFrom = slices.Clone(c.EvolvedFrom)
	return &cp
}
