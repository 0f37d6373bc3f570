package plan

import (
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// Criteria filters candidate cards for queries and selections.
type Criteria struct {
	CardType    string `json:"card_type,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	EnergyType  string `json:"energy_type,omitempty"`
	EnergyColor string `json:"energy_color,omitempty"`
	MaxHP       int    `json:"max_hp,omitempty"`

	// AllowCombination accepts a card matching any entry of CardTypes.
	AllowCombination bool       `json:"allow_combination,omitempty"`
	CardTypes        []Criteria `json:"card_types,omitempty"`

	MinCount int  `json:"min_count,omitempty"`
	MaxCount int  `json:"max_count,omitempty"`
	AnyCount bool `json:"any_count,omitempty"`
}

// Empty reports whether the criteria accept every card.
func (c *Criteria) Empty() bool {
	return c == nil || (c.CardType == "" && c.Stage == "" && c.Subtype == "" && c.EnergyType == "" &&
		c.EnergyColor == "" && c.MaxHP == 0 && len(c.CardTypes) == 0)
}

// Matches reports whether a card definition satisfies the criteria.
func (c *Criteria) Matches(def *model.CardDefinition) bool {
	if c == nil {
		return true
	}
	if def == nil {
		return false
	}
	if c.AllowCombination && len(c.CardTypes) > 0 {
		matched := false
		for i := range c.CardTypes {
			if c.CardTypes[i].matchOne(def) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return c.matchOne(def)
}

func (c *Criteria) matchOne(def *model.CardDefinition) bool {
	if c.CardType != "" && !strings.EqualFold(string(def.Category), c.CardType) {
		return false
	}
	if c.Stage != "" {
		if strings.EqualFold(c.Stage, model.StageBasic) {
			if !def.IsBasicPokemon() {
				return false
			}
		} else if !strings.EqualFold(def.Stage, c.Stage) {
			return false
		}
	}
	if c.Subtype != "" {
		want := c.Subtype
		if strings.EqualFold(want, "tool") {
			want = model.SubtypeTool
		}
		if !def.HasSubtype(want) {
			return false
		}
	}
	if c.EnergyType != "" && strings.EqualFold(c.EnergyType, "Basic Energy") && !def.IsBasicEnergy() {
		return false
	}
	if c.EnergyColor != "" && !strings.EqualFold(def.EnergyType, c.EnergyColor) {
		return false
	}
	if c.MaxHP > 0 && (def.HP <= 0 || def.HP > c.MaxHP) {
		return false
	}
	return true
}
