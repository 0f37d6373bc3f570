package referee

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// confusionDamage is put on a Confused Pokémon whose attack flip is tails.
const confusionDamage = 30

// requireTurn checks that actor owns the turn and the phase accepts actions.
func (r *Referee) requireTurn(actor string) error {
	if res := r.legality.CheckTurn(actor); !res.Legal {
		f := model.TurnViolationf("%s", res.Reason)
		for k, v := range res.Details {
			f = f.WithDetail(k, v)
		}
		return f
	}
	return nil
}

// requireMain checks that actor is in the main phase of their turn.
func (r *Referee) requireMain(actor string) error {
	if err := r.requireTurn(actor); err != nil {
		return err
	}
	if r.state.Turn.Phase != rules.PhaseMain {
		return model.TurnViolationf("start your turn before acting").WithDetail("phase", r.state.Turn.Phase.String())
	}
	return nil
}

func (r *Referee) inSetup() bool {
	return r.state.Turn.Phase == rules.PhaseSetup
}

// cardInZone returns a card of actor that must currently be in zone z.
func (r *Referee) cardInZone(actor string, z model.Zone, uid string) (*model.CardInstance, error) {
	p, err := r.state.Player(actor)
	if err != nil {
		return nil, err
	}
	card, _, found := p.FindIn(z, uid)
	if !found {
		return nil, model.Validationf("card %s is not in your %s", uid, z)
	}
	if card.Definition == nil {
		return nil, model.NotFoundf("card %s has no definition", uid)
	}
	return card, nil
}

func (r *Referee) startTurn(actor string) (*Result, error) {
	turn := r.state.Turn
	switch turn.Phase {
	case rules.PhaseSetup:
		if actor != r.state.FirstPlayer {
			return nil, model.TurnViolationf("%s takes the first turn", r.state.FirstPlayer)
		}
		for _, seat := range r.state.Seats {
			if r.state.Players[seat].Active() == nil {
				return nil, model.Validationf("%s has not chosen an Active Pokémon", seat)
			}
		}
		if err := turn.Advance(rules.PhaseDraw, actor); err != nil {
			return nil, model.TurnViolationf("%v", err)
		}
		if err := r.ops.SetTurn(turn.Player, turn.Number, turn.Phase); err != nil {
			return nil, err
		}
	case rules.PhaseDraw:
		if turn.Player != actor {
			return nil, model.TurnViolationf("It is not your turn").WithDetail("turn_player", turn.Player)
		}
	default:
		return nil, model.TurnViolationf("cannot start a turn in phase %s", turn.Phase)
	}

	me := r.state.Players[actor]
	if me.Active() == nil && len(me.Bench()) > 0 {
		return nil, model.Validationf("promote a Benched Pokémon with set_active first")
	}
	if err := r.ops.ResetTurnUsage(actor); err != nil {
		return nil, err
	}
	r.emit(rules.EventTurnStarted, actor, "", r.state.Turn.Number)

	if len(me.Zone(model.ZoneDeck)) == 0 {
		if err := r.declare(r.state.OpponentID(actor), WinDeckOut); err != nil {
			return nil, err
		}
		return ok(fmt.Sprintf("%s cannot draw and loses", actor), map[string]any{"drawn": []string{}}), nil
	}
	drawn, err := r.ops.Draw(actor, 1)
	if err != nil {
		return nil, err
	}
	for _, c := range drawn {
		r.emit(rules.EventCardDrawn, actor, c.UID, 1)
	}
	if err := r.ops.SetTurn(actor, r.state.Turn.Number, rules.PhaseMain); err != nil {
		return nil, err
	}
	r.emit(rules.EventPhaseChanged, actor, "", r.state.Turn.Number)

	return ok(fmt.Sprintf("turn %d started for %s", r.state.Turn.Number, actor), map[string]any{
		"drawn": uidsOf(drawn),
		"turn":  r.state.Turn.Number,
	}), nil
}

func (r *Referee) draw(actor string, p payload) (*Result, error) {
	if err := r.requireTurn(actor); err != nil {
		return nil, err
	}
	n, err := p.integer("count", 1)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, model.Validationf("draw count must be positive, got %d", n)
	}
	drawn, err := r.ops.Draw(actor, n)
	if err != nil {
		return nil, err
	}
	for _, c := range drawn {
		r.emit(rules.EventCardDrawn, actor, c.UID, 1)
	}
	return ok(fmt.Sprintf("drew %d card(s)", len(drawn)), map[string]any{"cards": uidsOf(drawn)}), nil
}

func (r *Referee) discard(actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	ids, _ := p.strs("card_ids", "card_id")
	if len(ids) == 0 {
		return nil, model.Validationf("payload field %q is required", "card_ids")
	}
	if err := distinct("card_ids", ids); err != nil {
		return nil, err
	}
	for _, uid := range ids {
		if _, err := r.cardInZone(actor, model.ZoneHand, uid); err != nil {
			return nil, err
		}
	}
	if err := r.ops.Discard(actor, ids, p.str("reason")); err != nil {
		return nil, err
	}
	for _, uid := range ids {
		r.emit(rules.EventCardDiscarded, actor, uid, 1)
	}
	return ok(fmt.Sprintf("discarded %d card(s)", len(ids)), map[string]any{"discarded": ids}), nil
}

func (r *Referee) takePrize(actor string, p payload) (*Result, error) {
	if err := r.requireTurn(actor); err != nil {
		return nil, err
	}
	n, err := p.integer("count", 1)
	if err != nil {
		return nil, err
	}
	me := r.state.Players[actor]
	if n <= 0 || n > me.PrizesRemaining {
		return nil, model.Validationf("cannot take %d prize(s) with %d remaining", n, me.PrizesRemaining)
	}
	cards, err := r.ops.TakePrize(actor, n)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		r.emit(rules.EventPrizeTaken, actor, c.UID, 1)
	}
	return ok(fmt.Sprintf("took %d prize(s)", len(cards)), map[string]any{
		"cards":     uidsOf(cards),
		"remaining": me.PrizesRemaining,
	}), nil
}

func (r *Referee) moveToBench(actor string, p payload) (*Result, error) {
	if !r.inSetup() {
		if err := r.requireMain(actor); err != nil {
			return nil, err
		}
	}
	uid, err := p.requireStr("card_id")
	if err != nil {
		return nil, err
	}
	card, err := r.cardInZone(actor, model.ZoneHand, uid)
	if err != nil {
		return nil, err
	}
	if !card.Definition.IsBasicPokemon() {
		return nil, model.Validationf("only Basic Pokémon can be put onto the Bench, %s is not", card.Name())
	}
	if res := r.legality.CheckBenchSpace(actor); !res.Legal {
		return nil, violation(res)
	}
	if err := r.ops.MoveCard(actor, model.ZoneHand, model.ZoneBench, uid, -1); err != nil {
		return nil, err
	}
	r.emit(rules.EventPokemonBenched, actor, uid, 0)
	return ok(fmt.Sprintf("%s put onto the Bench", card.Name()), map[string]any{
		"bench": uidsOf(r.state.Players[actor].Bench()),
	}), nil
}

// setActive fills an empty Active Spot: from the hand during setup, from the
// bench at any time (promotion after a knockout).
func (r *Referee) setActive(actor string, p payload) (*Result, error) {
	uid, err := p.requireStr("card_id")
	if err != nil {
		return nil, err
	}
	me := r.state.Players[actor]
	if me.Active() != nil {
		return nil, model.Validationf("you already have an Active Pokémon")
	}

	if _, _, onBench := me.FindIn(model.ZoneBench, uid); onBench {
		if err := r.ops.Promote(actor, uid); err != nil {
			return nil, err
		}
		r.emit(rules.EventPokemonSwitched, actor, uid, 0)
		return ok("Benched Pokémon promoted to the Active Spot", map[string]any{"active": uid}), nil
	}

	if !r.inSetup() {
		return nil, model.Validationf("card %s is not on your Bench", uid)
	}
	card, err := r.cardInZone(actor, model.ZoneHand, uid)
	if err != nil {
		return nil, err
	}
	if !card.Definition.IsBasicPokemon() {
		return nil, model.Validationf("the Active Pokémon must be a Basic Pokémon, %s is not", card.Name())
	}
	if err := r.ops.MoveCard(actor, model.ZoneHand, model.ZoneActive, uid, -1); err != nil {
		return nil, err
	}
	return ok(fmt.Sprintf("%s is the Active Pokémon", card.Name()), map[string]any{"active": uid}), nil
}

func (r *Referee) attachEnergy(ctx context.Context, actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	uid, err := p.requireStr("card_id", "energy_id")
	if err != nil {
		return nil, err
	}
	card, err := r.cardInZone(actor, model.ZoneHand, uid)
	if err != nil {
		return nil, err
	}
	if card.Definition.Category != model.CategoryEnergy {
		return nil, model.Validationf("%s is not an Energy card", card.Name())
	}
	target := p.str("target_id", "target_pokemon_id")
	if target == "" {
		if active := r.state.Players[actor].Active(); active != nil {
			target = active.UID
		}
	}
	if res := r.legality.CheckAttachEnergy(actor, target); !res.Legal {
		return nil, violation(res)
	}

	req := interpreter.Request{PlayerID: actor, SourceUID: uid, Targets: map[string]string{uid: target}}
	out, err := r.interp.Execute(ctx, r.ops, req, card.Definition, card.Definition.Name)
	if err != nil {
		return nil, err
	}
	r.emit(rules.EventEnergyAttached, actor, target, 1)
	return r.finish(actor, plan.EffectEnergy, out)
}

func (r *Referee) evolve(actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	base, err := p.requireStr("base_card_id", "target_id")
	if err != nil {
		return nil, err
	}
	evo, err := p.requireStr("evolution_card_id", "card_id")
	if err != nil {
		return nil, err
	}
	if res := r.legality.CheckEvolve(actor, base, evo); !res.Legal {
		return nil, violation(res)
	}
	if err := r.ops.Evolve(actor, base, evo); err != nil {
		return nil, err
	}
	r.emit(rules.EventPokemonEvolved, actor, evo, 0)
	return ok("Pokémon evolved", map[string]any{"evolved": evo, "from": base}), nil
}

func (r *Referee) switchPokemon(actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	bench, err := p.requireStr("bench_card_id", "card_id")
	if err != nil {
		return nil, err
	}
	owner := actor
	if p.boolean("opponent") {
		owner = r.state.OpponentID(actor)
	}
	if err := r.ops.SwapActiveWithBench(owner, bench); err != nil {
		return nil, err
	}
	r.emit(rules.EventPokemonSwitched, owner, bench, 0)
	return ok("Pokémon switched", map[string]any{"active": bench, "player_id": owner}), nil
}

// retreat pays the retreat cost with chosen (or the first attached) energy
// and switches in a Benched Pokémon. Once per turn.
func (r *Referee) retreat(actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	bench, err := p.requireStr("bench_card_id", "card_id")
	if err != nil {
		return nil, err
	}
	if res := r.legality.CheckRetreat(actor); !res.Legal {
		return nil, violation(res)
	}
	me := r.state.Players[actor]
	if _, _, found := me.FindIn(model.ZoneBench, bench); !found {
		return nil, model.Validationf("card %s is not on your Bench", bench)
	}
	active := me.Active()
	cost := active.Definition.RetreatCost

	energy, chosen := p.strs("energy_ids")
	if chosen {
		if err := distinct("energy_ids", energy); err != nil {
			return nil, err
		}
		if len(energy) != cost {
			return nil, model.Validationf("retreat costs %d energy, %d chosen", cost, len(energy))
		}
		for _, uid := range energy {
			if !slices.Contains(active.AttachedEnergy, uid) {
				return nil, model.Validationf("energy %s is not attached to the Active Pokémon", uid)
			}
		}
	} else {
		energy = slices.Clone(active.AttachedEnergy[:cost])
	}
	if cost > 0 {
		if err := r.ops.DiscardEnergy(actor, active.UID, energy); err != nil {
			return nil, err
		}
	}
	if err := r.ops.SwapActiveWithBench(actor, bench); err != nil {
		return nil, err
	}
	if _, err := r.ops.TrackUsage(actor, interpreter.PlayerUsageKey(model.UsageRetreat)); err != nil {
		return nil, err
	}
	r.emit(rules.EventPokemonRetreated, actor, bench, cost)
	return ok("Active Pokémon retreated", map[string]any{"active": bench, "discarded_energy": energy}), nil
}

func (r *Referee) playTrainer(ctx context.Context, actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	uid, err := p.requireStr("card_id")
	if err != nil {
		return nil, err
	}
	card, err := r.cardInZone(actor, model.ZoneHand, uid)
	if err != nil {
		return nil, err
	}
	def := card.Definition
	if def.Category != model.CategoryTrainer {
		return nil, model.Validationf("%s is not a Trainer card", def.Name)
	}
	switch {
	case def.HasSubtype(model.SubtypeSupporter):
		if res := r.legality.CheckSupporter(actor); !res.Legal {
			return nil, violation(res)
		}
	case def.HasSubtype(model.SubtypeStadium):
		if res := r.legality.CheckStadium(actor); !res.Legal {
			return nil, violation(res)
		}
		if current, _, inPlay := r.state.StadiumInPlay(); inPlay && strings.EqualFold(current.Name(), def.Name) {
			return nil, model.Validationf("%s is already in play", def.Name)
		}
	}

	r.emit(rules.EventTrainerPlayed, actor, uid, 0)
	return r.runEffect(ctx, actor, card, def.Name, plan.EffectTrainer, p)
}

func (r *Referee) useAbility(ctx context.Context, actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	uid, err := p.requireStr("card_id")
	if err != nil {
		return nil, err
	}
	name, err := p.requireStr("ability_name", "ability")
	if err != nil {
		return nil, err
	}
	card, _, found := r.state.Players[actor].FindInPlay(uid)
	if !found {
		return nil, model.Validationf("card %s is not your Active or Benched Pokémon", uid)
	}
	ability, found := card.Definition.FindAbility(name)
	if !found {
		return nil, model.Validationf("%s has no ability named %q", card.Name(), name)
	}
	evt := rules.NewEvent(rules.EventAbilityUsed, r.state.MatchID, actor, uid)
	evt.Data = ability.Name
	r.publish(evt)
	return r.runEffect(ctx, actor, card, ability.Name, plan.EffectAbility, p)
}

// useAttack declares an attack of the Active Pokémon. The turn ends once the
// attack resolves, including after a suspended selection is answered.
func (r *Referee) useAttack(ctx context.Context, actor string, p payload) (*Result, error) {
	if err := r.requireMain(actor); err != nil {
		return nil, err
	}
	name, err := p.requireStr("attack_name", "attack")
	if err != nil {
		return nil, err
	}
	active := r.state.Players[actor].Active()
	if active == nil {
		return nil, model.Validationf("you have no Active Pokémon")
	}
	if uid := p.str("card_id"); uid != "" && uid != active.UID {
		return nil, model.Validationf("card %s is not your Active Pokémon", uid)
	}
	attack, found := active.Definition.FindAttack(name)
	if !found {
		return nil, model.Validationf("%s has no attack named %q", active.Name(), name)
	}
	if res := r.legality.CheckAttack(actor, attack.Cost); !res.Legal {
		return nil, violation(res)
	}
	if err := r.ops.SetTurn(actor, r.state.Turn.Number, rules.PhaseAttack); err != nil {
		return nil, err
	}
	evt := rules.NewEvent(rules.EventAttackDeclared, r.state.MatchID, actor, active.UID)
	evt.Data = attack.Name
	r.publish(evt)

	if active.HasCondition(model.ConditionConfused) && !r.ops.CoinFlip("confusion") {
		if _, err := r.ops.UpdateDamage(active.UID, confusionDamage); err != nil {
			return nil, err
		}
		r.emit(rules.EventDamageDealt, actor, active.UID, confusionDamage)
		if _, err := r.knockOut(active.UID); err != nil {
			return nil, err
		}
		res := ok(fmt.Sprintf("%s is Confused and hurt itself", active.Name()), map[string]any{"confused": true})
		if err := r.endOfTurn(res); err != nil {
			return nil, err
		}
		return res, nil
	}
	return r.runEffect(ctx, actor, active, attack.Name, plan.EffectAttack, p)
}

func (r *Referee) endTurn(actor string) (*Result, error) {
	if err := r.requireTurn(actor); err != nil {
		return nil, err
	}
	res := ok("turn ended", nil)
	if err := r.endOfTurn(res); err != nil {
		return nil, err
	}
	return res, nil
}

// endOfTurn moves to TurnEnd, runs the checkup and hands the turn to the
// opponent unless the match was decided.
func (r *Referee) endOfTurn(res *Result) error {
	turn := r.state.Turn
	ending := turn.Player
	if err := turn.Advance(rules.PhaseTurnEnd, ""); err != nil {
		return model.TurnViolationf("%v", err)
	}
	if err := r.ops.SetTurn(turn.Player, turn.Number, turn.Phase); err != nil {
		return err
	}
	report, err := r.checkup()
	if err != nil {
		return err
	}
	if len(report) > 0 {
		res.Data["checkup"] = report
	}
	r.emit(rules.EventTurnEnded, ending, "", turn.Number)
	if err := r.checkWinner(); err != nil || r.state.IsOver() {
		return err
	}

	next := r.state.OpponentID(ending)
	if err := turn.Advance(rules.PhaseDraw, next); err != nil {
		return model.TurnViolationf("%v", err)
	}
	if err := r.ops.SetTurn(turn.Player, turn.Number, turn.Phase); err != nil {
		return err
	}
	res.Data["next_player"] = next
	res.Data["turn_number"] = turn.Number
	return nil
}

// selectCards answers the pending selection and continues the suspended effect.
func (r *Referee) selectCards(ctx context.Context, actor string, p payload) (*Result, error) {
	pending := r.pending
	if pending == nil {
		return nil, model.Validationf("no selection is pending")
	}
	if actor != pending.chooser {
		return nil, model.TurnViolationf("the pending selection belongs to %s", pending.chooser)
	}
	if raw := p.str("token"); raw != "" {
		tok, err := interpreter.DecodeToken(raw)
		if err != nil {
			return nil, model.Validationf("%v", err)
		}
		if tok.PlanKey != pending.token.PlanKey || tok.StepIndex != pending.token.StepIndex {
			return nil, model.Validationf("selection token does not match the pending selection")
		}
	}
	chosen, _ := p.strs("selected_ids", "selection", "card_ids")
	if err := distinct("selected_ids", chosen); err != nil {
		return nil, err
	}

	out, err := r.interp.Resume(r.ops, pending.token, chosen)
	if err != nil {
		return nil, err
	}
	r.pending = nil
	evt := rules.NewEvent(rules.EventSelectionResolved, r.state.MatchID, actor, "")
	evt.Targets = chosen
	r.publish(evt)
	return r.finish(pending.token.PlayerID, pending.effect, out)
}

// runEffect executes a card effect with the selection and targets of the payload.
func (r *Referee) runEffect(ctx context.Context, actor string, card *model.CardInstance, effect string, kind plan.EffectType, p payload) (*Result, error) {
	req := interpreter.Request{
		PlayerID:  actor,
		SourceUID: card.UID,
		Targets:   p.targets("targets"),
	}
	if sel, present := p.strs("selected_ids", "selection"); present {
		if err := distinct("selected_ids", sel); err != nil {
			return nil, err
		}
		req.Selection = sel
	}
	req.DamageTargets, _ = p.strs("damage_targets", "target_ids", "target_pokemon_id")

	out, err := r.interp.Execute(ctx, r.ops, req, card.Definition, effect)
	if err != nil {
		return nil, err
	}
	return r.finish(actor, kind, out)
}

// finish turns an interpreter outcome into a result. A suspended outcome is
// kept as the pending selection; a completed attack ends the turn.
func (r *Referee) finish(actor string, kind plan.EffectType, out *interpreter.Outcome) (*Result, error) {
	if len(out.Unsupported) > 0 {
		evt := rules.NewEvent(rules.EventUnsupportedEffect, r.state.MatchID, actor, "")
		evt.Targets = out.Unsupported
		r.publish(evt)
	}

	if out.Suspended() {
		tok, err := out.Token.Encode()
		if err != nil {
			return nil, err
		}
		r.pending = &pendingSelection{token: out.Token, chooser: out.Chooser, effect: kind}
		r.emit(rules.EventSelectionRequested, out.Chooser, "", len(out.Candidates))
		msg := out.Prompt
		if msg == "" {
			msg = "selection required"
		}
		res := ok(msg, map[string]any{"source": out.Source})
		if len(out.Unsupported) > 0 {
			res.Data["unsupported"] = out.Unsupported
		}
		res.RequiresSelection = true
		res.Candidates = out.Candidates
		res.SelectionContext = map[string]any{
			"token":     tok,
			"min_count": out.MinCount,
			"max_count": out.MaxCount,
			"chooser":   out.Chooser,
			"prompt":    out.Prompt,
			"step":      out.Token.StepIndex,
		}
		return res, nil
	}

	data := make(map[string]any, len(out.Data)+6)
	for k, v := range out.Data {
		data[k] = v
	}
	data["source"] = out.Source
	if len(out.Drawn) > 0 {
		data["drawn"] = out.Drawn
		for _, uid := range out.Drawn {
			r.emit(rules.EventCardDrawn, actor, uid, 1)
		}
	}
	if len(out.Unsupported) > 0 {
		data["unsupported"] = out.Unsupported
	}
	if kind == plan.EffectAttack {
		data["damage"] = out.Damage
		if out.Damage > 0 {
			if opp, err := r.state.Opponent(actor); err == nil && opp.Active() != nil {
				r.emit(rules.EventDamageDealt, actor, opp.Active().UID, out.Damage)
			}
		}
	}
	if len(out.KnockedOut) > 0 {
		data["knocked_out"] = out.KnockedOut
		for _, uid := range out.KnockedOut {
			owner := r.ownerOf(uid)
			r.publishKnockout(owner, uid, "")
		}
	}

	msg := out.Message
	if msg == "" {
		msg = "effect resolved"
	}
	res := ok(msg, data)
	if kind == plan.EffectAttack || out.EndTurn {
		if err := r.checkWinner(); err != nil {
			return nil, err
		}
		if !r.state.IsOver() {
			if err := r.endOfTurn(res); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// ownerOf finds the owner of a card wherever it is now.
func (r *Referee) ownerOf(uid string) string {
	if _, loc, found := r.state.Locate(uid); found {
		return loc.PlayerID
	}
	return ""
}

func uidsOf(cards []*model.CardInstance) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.UID
	}
	return out
}
