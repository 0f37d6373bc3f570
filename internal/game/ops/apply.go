package ops

import (
	"fmt"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// Apply re-executes a logged entry against the bound state. Random
// operations reuse the recorded seed, so replaying a log from the same
// initial state reproduces the same final state. The entry is appended to
// the log unchanged.
func (o *Ops) Apply(e model.AuditEntry) error {
	if err := o.apply(e); err != nil {
		return fmt.Errorf("apply #%d %s: %w", e.Seq, e.Action, err)
	}
	o.log = append(o.log, e)
	return nil
}

func (o *Ops) apply(e model.AuditEntry) error {
	pid := e.PayloadString("player_id")
	card := e.PayloadString("card_id")

	switch e.Action {
	case "move_card":
		from, err := model.ParseZone(e.PayloadString("source"))
		if err != nil {
			return err
		}
		to, err := model.ParseZone(e.PayloadString("target"))
		if err != nil {
			return err
		}
		return o.moveCard(pid, from, to, card, e.PayloadInt("position"))
	case "shuffle":
		zone, err := model.ParseZone(e.PayloadString("zone"))
		if err != nil {
			return err
		}
		return o.shuffle(pid, zone, e.RandomSeed)
	case "deal_prizes":
		return o.dealPrizes(pid, e.PayloadInt("count"))
	case "draw":
		_, err := o.draw(pid, e.PayloadInt("count"))
		return err
	case "discard":
		return o.discard(pid, e.PayloadStrings("cards"))
	case "random_discard":
		_, err := o.randomDiscard(pid, e.PayloadInt("count"), e.RandomSeed)
		return err
	case "take_prize":
		_, err := o.takePrize(pid, e.PayloadInt("count"))
		return err
	case "modify_prize_delta":
		_, err := o.modifyPrizeDelta(pid, e.PayloadInt("delta"))
		return err
	case "send_to_lost_zone":
		_, err := o.sendToLostZone(pid, card)
		return err
	case "shuffle_hand_into_deck":
		return o.handIntoDeck(pid)
	case "shuffle_hand_to_bottom":
		return o.handToBottom(pid, e.RandomSeed)
	case "attach_energy":
		source, err := model.ParseZone(e.PayloadString("source"))
		if err != nil {
			return err
		}
		return o.attachEnergy(pid, e.PayloadString("target"), card, source)
	case "attach_tool":
		return o.attachTool(pid, e.PayloadString("target"), card)
	case "move_energy":
		return o.moveEnergy(pid, card, e.PayloadString("source"), e.PayloadString("target"))
	case "discard_energy":
		return o.discardEnergy(pid, e.PayloadString("target"), e.PayloadStrings("cards"))
	case "discard_tool":
		_, err := o.discardTool(pid, e.PayloadString("target"))
		return err
	case "evolve":
		return o.evolve(pid, e.PayloadString("target"), card)
	case "devolve":
		_, err := o.devolve(pid, card)
		return err
	case "update_damage":
		_, err := o.updateDamage(card, e.PayloadInt("delta"))
		return err
	case "knockout":
		return o.knockout(pid, card)
	case "set_condition":
		return o.setCondition(card, model.SpecialCondition(e.PayloadString("condition")))
	case "remove_condition":
		return o.removeCondition(card, model.SpecialCondition(e.PayloadString("condition")))
	case "clear_conditions":
		return o.clearConditions(card)
	case "swap_active_with_bench":
		return o.swapActive(pid, card)
	case "promote":
		return o.promote(pid, card)
	case "move_pokemon_to_hand":
		return o.pokemonToHand(pid, card, e.PayloadBool("discard_attached"))
	case "track_usage":
		key, err := model.ParseUsageKey(e.PayloadString("key"))
		if err != nil {
			return err
		}
		_, err = o.trackUsage(pid, key)
		return err
	case "reset_turn_usage":
		return o.resetTurnUsage(pid)
	case "play_stadium":
		_, err := o.playStadium(pid, card)
		return err
	case "discard_stadium":
		return o.discardStadium(pid)
	case "set_turn":
		phase, err := rules.ParsePhase(e.PayloadString("phase"))
		if err != nil {
			return err
		}
		return o.setTurn(pid, e.PayloadInt("number"), phase)
	case "set_first_player":
		if _, err := o.player(pid); err != nil {
			return err
		}
		o.state.FirstPlayer = pid
		return nil
	case "declare_winner":
		return o.declareWinner(pid, e.PayloadString("reason"))
	case "reveal_top", "reveal_prize", "coin_flip":
		return nil
	}
	return fmt.Errorf("unknown audit action %q", e.Action)
}
