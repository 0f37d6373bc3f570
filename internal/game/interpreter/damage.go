package interpreter

import (
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// damage computes the attack damage from the base and its modifiers and
// applies it. Weakness and Resistance are not applied.
func (r *run) damage(s plan.Step) error {
	total := s.Params.BaseDamage
	var self int
	var spread *plan.DamageModifier

	for idx := range s.Params.Modifiers {
		m := s.Params.Modifiers[idx]
		switch m.Type {
		case plan.ModBonus:
			total += m.Bonus
		case plan.ModBonusPer:
			total += m.Bonus * r.countFor(m.Condition)
		case plan.ModPrizeBased:
			total += m.Bonus * r.prizesTaken()
		case plan.ModSelfDamage:
			self += m.Amount
		case plan.ModDamageToMultiple:
			spread = &s.Params.Modifiers[idx]
		case plan.ModDoesNothing:
			r.out.Damage = 0
			r.out.Data["damage"] = 0
			return nil
		}
	}
	total = max(total, 0)
	r.out.Damage = total
	r.out.Data["damage"] = total

	if spread != nil {
		if err := r.spreadDamage(*spread); err != nil {
			return err
		}
	}

	ko, err := r.in.damage(r.o, r.req, total)
	if err != nil {
		return err
	}
	r.out.KnockedOut = append(r.out.KnockedOut, ko...)

	if self > 0 {
		if _, _, ok := r.me().FindInPlay(r.req.SourceUID); ok {
			if _, err := r.o.UpdateDamage(r.req.SourceUID, self); err != nil {
				return err
			}
			return r.checkKO(r.req.SourceUID)
		}
	}
	return nil
}

func (r *run) spreadDamage(m plan.DamageModifier) error {
	opp := r.opp()
	var targets []string
	for _, uid := range r.req.DamageTargets {
		if _, _, ok := opp.FindInPlay(uid); ok {
			targets = append(targets, uid)
		}
	}
	if m.Count > 0 && len(targets) > m.Count {
		return model.Validationf("choose at most %d Pokémon to damage, got %d", m.Count, len(targets))
	}
	for _, uid := range targets {
		if _, err := r.o.UpdateDamage(uid, m.Damage); err != nil {
			return err
		}
		if err := r.checkKO(uid); err != nil {
			return err
		}
	}
	return nil
}

// prizesTaken prefers a counted value from an earlier prize query.
func (r *run) prizesTaken() int {
	for i, s := range r.plan.Steps {
		if s.Action == plan.ActionQueryOpponentPrizeCount {
			if v, ok := r.values[i]; ok {
				return v
			}
		}
	}
	return model.StartingPrizes - r.opp().PrizesRemaining
}

// countFor evaluates the "for each" part of a bonus_per modifier.
func (r *run) countFor(condition string) int {
	l := strings.ToLower(condition)
	me, opp := r.me(), r.opp()
	src, _, _ := me.FindInPlay(r.req.SourceUID)

	switch {
	case strings.Contains(l, "damage counter"):
		target := src
		if strings.Contains(l, "opponent") {
			target = opp.Active()
		}
		if target == nil {
			return 0
		}
		return target.Damage / ops.DamageCounter

	case strings.Contains(l, "energy"):
		n := 0
		if strings.Contains(l, "opponent") || strings.Contains(l, "both") {
			if a := opp.Active(); a != nil {
				n += len(a.AttachedEnergy)
			}
		}
		if !strings.Contains(l, "opponent") || strings.Contains(l, "both") {
			if strings.Contains(l, "all of your") {
				for _, c := range me.InPlay() {
					n += len(c.AttachedEnergy)
				}
			} else if src != nil {
				n += len(src.AttachedEnergy)
			}
		}
		return n

	case strings.Contains(l, "benched pokémon"), strings.Contains(l, "benched pokemon"):
		switch {
		case strings.Contains(l, "each player") || strings.Contains(l, "both"):
			return len(me.Bench()) + len(opp.Bench())
		case strings.Contains(l, "opponent"):
			return len(opp.Bench())
		}
		return len(me.Bench())

	case strings.Contains(l, "prize"):
		return r.prizesTaken()

	case strings.Contains(l, "card in your hand"), strings.Contains(l, "cards in your hand"):
		return len(me.Zone(model.ZoneHand))
	}
	r.in.logger.Debug("bonus condition not recognised")
	return 0
}
