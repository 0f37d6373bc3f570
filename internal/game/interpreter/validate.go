package interpreter

import (
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// checkRestrictions enforces the "can't use" restrictions of a plan.
// Restrictions that only describe a permission are covered by rules.
func checkRestrictions(g *model.GameState, req Request, p *plan.ExecutionPlan) error {
	for _, r := range p.Restrictions {
		if !r.CannotUse {
			continue
		}
		switch r.Condition {
		case "first_turn":
			if rules.IsFirstTurn(g.Turn, g.FirstPlayer, req.PlayerID) {
				return model.Validationf("%s can't be used during your first turn", p.EffectName)
			}
		case "first_player":
			if g.Turn.Number == 1 && g.FirstPlayer == req.PlayerID {
				return model.Validationf("%s can't be used by the first player on the first turn", p.EffectName)
			}
		}
	}
	return nil
}

// validate checks every rule of the plan in order and returns the first
// failure. It never mutates the state.
func validate(o *ops.Ops, req Request, p *plan.ExecutionPlan) error {
	g := o.State()
	me, err := g.Player(req.PlayerID)
	if err != nil {
		return err
	}
	opp, err := g.Opponent(req.PlayerID)
	if err != nil {
		return err
	}
	for _, rule := range p.ValidationRules {
		ok, err := checkRule(o, req, p, rule, me, opp)
		if err != nil {
			return err
		}
		if !ok {
			msg := rule.ErrorMessage
			if msg == "" {
				msg = string(rule.Kind) + " check failed"
			}
			return model.Validationf("%s", msg).WithDetail("rule", string(rule.Kind))
		}
	}
	return nil
}

func checkRule(o *ops.Ops, req Request, p *plan.ExecutionPlan, rule plan.ValidationRule, me, opp *model.PlayerState) (bool, error) {
	g := o.State()
	switch rule.Kind {
	case plan.RuleInHand:
		_, _, ok := me.FindIn(model.ZoneHand, req.SourceUID)
		return ok, nil

	case plan.RuleInActive:
		active := me.Active()
		return active != nil && active.UID == req.SourceUID, nil

	case plan.RuleAbilityUsed:
		return o.UsageCount(req.PlayerID, abilityKey(req.SourceUID, abilityName(p, rule), model.ScopeTurn)) == 0, nil

	case plan.RuleAbilityUsedGame:
		return o.UsageCount(req.PlayerID, abilityKey(req.SourceUID, abilityName(p, rule), model.ScopeGame)) == 0, nil

	case plan.RuleEnergyRequirement:
		host, _, ok := me.FindInPlay(req.SourceUID)
		if !ok {
			return false, nil
		}
		var types []string
		for _, e := range me.AttachedEnergyCards(host) {
			if e.Definition != nil {
				types = append(types, e.Definition.EnergyType)
			}
		}
		return rules.EnergyCostSatisfied(types, rule.Params.Cost), nil

	case plan.RulePrizeComparison:
		return me.PrizesRemaining > opp.PrizesRemaining, nil

	case plan.RuleTurnLimit:
		if rule.Params.Condition == "first_turn" {
			return rules.IsFirstTurn(g.Turn, g.FirstPlayer, req.PlayerID), nil
		}
		return true, nil

	case plan.RuleSupporterUsed:
		return o.UsageCount(req.PlayerID, playerKey(model.UsageSupporter)) == 0, nil

	case plan.RuleFirstTurnRestriction:
		return !(g.Turn.Number == 1 && g.FirstPlayer == req.PlayerID), nil

	case plan.RuleStadiumUsed:
		return o.UsageCount(req.PlayerID, playerKey(model.UsageStadium)) == 0, nil

	case plan.RuleStadiumDuplicate:
		st, _, ok := g.StadiumInPlay()
		return !ok || !strings.EqualFold(st.Name(), p.CardName), nil

	case plan.RuleToolAttached:
		for _, c := range me.InPlay() {
			if c.AttachedTool == "" {
				return true, nil
			}
		}
		return false, nil

	case plan.RuleHandSize:
		return len(me.Zone(model.ZoneHand))-1 >= rule.Params.MinOtherCards, nil

	case plan.RuleDiscardHasCards:
		for _, c := range me.Zone(model.ZoneDiscard) {
			if matchesAnyType(c.Definition, rule.Params.CardTypes) {
				return true, nil
			}
		}
		return false, nil

	case plan.RuleStadiumOrToolInPlay:
		if _, _, ok := g.StadiumInPlay(); ok {
			return true, nil
		}
		for _, seat := range g.Seats {
			for _, c := range g.Players[seat].InPlay() {
				if c.AttachedTool != "" {
					return true, nil
				}
			}
		}
		return false, nil

	case plan.RuleBenchSpace:
		return !me.BenchFull(), nil

	case plan.RuleBenchHasPokemon:
		if rule.Params.Condition == "opponent" {
			return len(opp.Bench()) > 0, nil
		}
		return len(me.Bench()) > 0, nil

	case plan.RuleEnergyAttachmentLimit:
		return o.UsageCount(req.PlayerID, playerKey(model.UsageEnergyAttach)) == 0, nil
	}
	return false, model.MalformedPlanf("unknown validation rule %q", rule.Kind)
}

func abilityName(p *plan.ExecutionPlan, rule plan.ValidationRule) string {
	if rule.Params.AbilityName != "" {
		return rule.Params.AbilityName
	}
	return p.EffectName
}

func matchesAnyType(def *model.CardDefinition, types []string) bool {
	if def == nil {
		return false
	}
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		switch {
		case strings.EqualFold(t, "Basic Energy"):
			if def.IsBasicEnergy() {
				return true
			}
		case strings.EqualFold(t, string(def.Category)):
			return true
		}
	}
	return false
}
