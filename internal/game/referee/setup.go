package referee

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// maxMulligans bounds the redraw loop of one player. Decks are checked for a
// Basic Pokémon up front, so the bound is only reached by pathological decks.
const maxMulligans = 30

// SetupOptions controls match setup.
type SetupOptions struct {
	// FirstPlayer skips the coin flip when set.
	FirstPlayer string `json:"first_player,omitempty"`

	// AutoActive puts the first Basic Pokémon of each opening hand into the
	// Active Spot. Without it both players call set_active during setup.
	AutoActive bool `json:"auto_active,omitempty"`

	// NoMulliganDraws disables the extra card the opponent draws for each mulligan.
	NoMulliganDraws bool `json:"no_mulligan_draws,omitempty"`
}

// Setup flips for the first player, shuffles both decks, draws opening hands
// (redrawing hands without a Basic Pokémon) and deals six prizes each. The
// match is left in the setup phase until the first player starts turn 1.
func (r *Referee) Setup(ctx context.Context, opts SetupOptions) (*Result, error) {
	if r.state.Turn.Phase != rules.PhaseInit {
		return nil, model.TurnViolationf("match %s is already set up", r.state.MatchID)
	}
	bm := r.bookmark()
	r.ops.SetActor(ops.SystemActor)

	res, err := r.setup(opts)
	if err != nil {
		r.restore(bm)
		return nil, fmt.Errorf("setup failed: %w", err)
	}
	r.persist(ctx)
	r.publish(rules.NewEvent(rules.EventSetupDone, r.state.MatchID, r.state.FirstPlayer, ""))
	return res, nil
}

func (r *Referee) setup(opts SetupOptions) (*Result, error) {
	first := opts.FirstPlayer
	if first == "" {
		heads := r.ops.CoinFlip("first_player")
		first = r.state.Seats[1]
		if heads {
			first = r.state.Seats[0]
		}
		evt := rules.NewEvent(rules.EventCoinFlipped, r.state.MatchID, first, "")
		evt.Data = fmt.Sprintf("heads=%t", heads)
		r.publish(evt)
	}
	if err := r.ops.SetFirstPlayer(first); err != nil {
		return nil, err
	}

	mulligans := make(map[string]int, 2)
	for _, seat := range r.state.Seats {
		n, err := r.openingHand(seat)
		if err != nil {
			return nil, err
		}
		mulligans[seat] = n
	}
	if !opts.NoMulliganDraws {
		for _, seat := range r.state.Seats {
			if n := mulligans[seat]; n > 0 {
				if _, err := r.ops.Draw(r.state.OpponentID(seat), n); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, seat := range r.state.Seats {
		if err := r.ops.DealPrizes(seat, model.StartingPrizes); err != nil {
			return nil, err
		}
	}
	if err := r.ops.SetTurn("", 0, rules.PhaseSetup); err != nil {
		return nil, err
	}

	actives := make(map[string]string, 2)
	if opts.AutoActive {
		for _, seat := range r.state.Seats {
			basic := firstBasic(r.state.Players[seat].Zone(model.ZoneHand))
			if basic == nil {
				return nil, model.Validationf("opening hand of %s has no Basic Pokémon", seat)
			}
			if err := r.ops.MoveCard(seat, model.ZoneHand, model.ZoneActive, basic.UID, -1); err != nil {
				return nil, err
			}
			actives[seat] = basic.UID
		}
	}

	r.logger.Info("match set up",
		zap.String("first_player", first),
		zap.Any("mulligans", mulligans),
	)
	return ok("match set up", map[string]any{
		"first_player": first,
		"mulligans":    mulligans,
		"actives":      actives,
	}), nil
}

// openingHand shuffles and draws seven, redrawing until the hand holds a
// Basic Pokémon. It returns the number of mulligans.
func (r *Referee) openingHand(seat string) (int, error) {
	if _, err := r.ops.Shuffle(seat, model.ZoneDeck); err != nil {
		return 0, err
	}
	for n := 0; n <= maxMulligans; n++ {
		if n > 0 {
			if err := r.ops.ShuffleHandIntoDeck(seat); err != nil {
				return 0, err
			}
			r.emit(rules.EventMulligan, seat, "", n)
		}
		if _, err := r.ops.Draw(seat, model.OpeningHand); err != nil {
			return 0, err
		}
		if firstBasic(r.state.Players[seat].Zone(model.ZoneHand)) != nil {
			return n, nil
		}
	}
	return 0, model.Validationf("no Basic Pokémon for %s after %d mulligans", seat, maxMulligans)
}

func firstBasic(cards []*model.CardInstance) *model.CardInstance {
	for _, c := range cards {
		if c.Definition != nil && c.Definition.IsBasicPokemon() {
			return c
		}
	}
	return nil
}

// Checkup damage and flips between turns.
const (
	poisonDamage = 10
	burnDamage   = 20
)

// checkup resolves special conditions of both Active Pokémon between turns.
// Paralysis wears off for the player whose turn just ended.
func (r *Referee) checkup() ([]map[string]any, error) {
	var report []map[string]any
	turnPlayer := r.state.Turn.Player
	for _, seat := range []string{turnPlayer, r.state.OpponentID(turnPlayer)} {
		p := r.state.Players[seat]
		if p == nil {
			continue
		}
		active := p.Active()
		if active == nil || len(active.Conditions) == 0 {
			continue
		}
		entry := map[string]any{"player_id": seat, "pokemon": active.UID}

		if active.HasCondition(model.ConditionPoisoned) {
			if _, err := r.ops.UpdateDamage(active.UID, poisonDamage); err != nil {
				return nil, err
			}
			entry["poison_damage"] = poisonDamage
		}
		if active.HasCondition(model.ConditionBurned) {
			if _, err := r.ops.UpdateDamage(active.UID, burnDamage); err != nil {
				return nil, err
			}
			entry["burn_damage"] = burnDamage
			heads := r.ops.CoinFlip("burn")
			entry["burn_recovered"] = heads
			if heads {
				if err := r.ops.RemoveCondition(active.UID, model.ConditionBurned); err != nil {
					return nil, err
				}
			}
		}
		if active.HasCondition(model.ConditionAsleep) {
			heads := r.ops.CoinFlip("sleep")
			entry["woke_up"] = heads
			if heads {
				if err := r.ops.RemoveCondition(active.UID, model.ConditionAsleep); err != nil {
					return nil, err
				}
			}
		}
		if seat == turnPlayer && active.HasCondition(model.ConditionParalyzed) {
			if err := r.ops.RemoveCondition(active.UID, model.ConditionParalyzed); err != nil {
				return nil, err
			}
			entry["paralysis_removed"] = true
		}

		damage := active.Damage
		knocked, err := r.knockOut(active.UID)
		if err != nil {
			return nil, err
		}
		entry["knocked_out"] = knocked
		r.emit(rules.EventCheckup, seat, active.UID, damage)
		report = append(report, entry)
	}
	return report, nil
}

// knockOut checks a Pokémon for a knockout and publishes the events.
func (r *Referee) knockOut(uid string) (bool, error) {
	card, owner, _, found := r.state.FindInPlay(uid)
	if !found {
		return false, nil
	}
	name := card.Name()
	knocked, err := r.ops.CheckKO(uid)
	if err != nil || !knocked {
		return false, err
	}
	r.publishKnockout(owner, uid, name)
	return true, nil
}

func (r *Referee) publishKnockout(owner, uid, name string) {
	evt := rules.NewEvent(rules.EventKnockedOut, r.state.MatchID, owner, uid)
	evt.Data = name
	r.publish(evt)
	r.emit(rules.EventPrizeTaken, r.state.OpponentID(owner), uid, 1)
}
