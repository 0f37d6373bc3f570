// Package compiler turns card rule text into execution plans. It recognises a
// fixed grammar of recurring clauses; text outside that grammar is recorded in
// the plan's Unsupported list and produces no steps.
package compiler

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// Compiler builds execution plans from card definitions. It holds no
// mutable state and is safe for concurrent use.
type Compiler struct {
	logger  *zap.Logger
	version int
	status  plan.Status
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithVersion sets the version stamped on compiled plans.
func WithVersion(v int) Option {
	return func(c *Compiler) { c.version = v }
}

// WithStatus sets the lifecycle status stamped on compiled plans.
func WithStatus(s plan.Status) Option {
	return func(c *Compiler) { c.status = s }
}

// New creates a new compiler.
func New(logger *zap.Logger, opts ...Option) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Compiler{logger: logger, version: 1, status: plan.StatusDraft}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileCard returns one plan per ability and per attack of a Pokémon, and
// a single plan for a Trainer or Energy card.
func (c *Compiler) CompileCard(def *model.CardDefinition) []*plan.ExecutionPlan {
	var plans []*plan.ExecutionPlan
	switch def.Category {
	case model.CategoryPokemon:
		for _, ab := range def.Abilities {
			p := c.newPlan(def, plan.EffectAbility, ab.Name)
			c.analyzeAbility(p, ab)
			plans = append(plans, c.finish(p, def))
		}
		for _, atk := range def.Attacks {
			p := c.newPlan(def, plan.EffectAttack, atk.Name)
			c.analyzeAttack(p, atk)
			plans = append(plans, c.finish(p, def))
		}
	case model.CategoryTrainer:
		p := c.newPlan(def, plan.EffectTrainer, def.Name)
		p.EffectSubtype = trainerSubtype(def)
		c.analyzeTrainer(p, def)
		plans = append(plans, c.finish(p, def))
	case model.CategoryEnergy:
		p := c.newPlan(def, plan.EffectEnergy, def.Name)
		if def.IsBasicEnergy() {
			p.EffectSubtype = "Basic Energy"
		}
		c.analyzeEnergy(p)
		plans = append(plans, c.finish(p, def))
	}
	c.logger.Debug("compiled card",
		zap.String("card_id", def.ID()),
		zap.String("name", def.Name),
		zap.Int("plans", len(plans)),
	)
	return plans
}

// Compile returns the plan of one named effect of a card.
func (c *Compiler) Compile(def *model.CardDefinition, effectName string) (*plan.ExecutionPlan, error) {
	for _, p := range c.CompileCard(def) {
		if strings.EqualFold(p.EffectName, effectName) {
			return p, nil
		}
	}
	return nil, model.NotFoundf("card %s has no effect named %q", def.ID(), effectName)
}

func (c *Compiler) newPlan(def *model.CardDefinition, kind plan.EffectType, name string) *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		CardID:     def.ID(),
		CardName:   def.Name,
		SetCode:    def.SetCode,
		Number:     def.Number,
		EffectType: kind,
		EffectName: name,
		Status:     c.status,
		Version:    c.version,
	}
}

func (c *Compiler) finish(p *plan.ExecutionPlan, def *model.CardDefinition) *plan.ExecutionPlan {
	p.Restrictions = restrictions(def.RulesText)
	if err := p.Validate(); err != nil {
		c.logger.Warn("compiled plan failed validation",
			zap.String("plan", p.Key().String()),
			zap.Error(err),
		)
	}
	for _, clause := range p.Unsupported {
		c.logger.Warn("unsupported clause",
			zap.String("card_id", p.CardID),
			zap.String("effect", p.EffectName),
			zap.String("clause", clause),
		)
	}
	return p
}

func trainerSubtype(def *model.CardDefinition) string {
	lower := make([]string, len(def.Subtypes))
	for i, s := range def.Subtypes {
		lower[i] = strings.ToLower(s)
	}
	has := func(pred func(string) bool) bool {
		for _, s := range lower {
			if pred(s) {
				return true
			}
		}
		return false
	}
	switch {
	case has(func(s string) bool { return strings.Contains(s, "tool") }):
		return "Tool"
	case has(func(s string) bool { return s == "stadium" }):
		return "Stadium"
	case has(func(s string) bool { return s == "supporter" }):
		return "Supporter"
	case has(func(s string) bool { return s == "item" }):
		return "Item"
	}
	return ""
}

func restrictions(rulesText string) []plan.Restriction {
	l := strings.ToLower(normalize(rulesText))
	var out []plan.Restriction
	if strings.Contains(l, "first turn") {
		out = append(out, plan.Restriction{
			Kind:      "turn_limit",
			Value:     1,
			Condition: "first_turn",
			CannotUse: strings.Contains(l, "can't") || strings.Contains(l, "cannot"),
		})
	}
	if strings.Contains(l, "first player") && strings.Contains(l, "cannot") {
		out = append(out, plan.Restriction{Kind: "player_limit", Condition: "first_player", CannotUse: true})
	}
	return out
}
