package ops

import (
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// TrackUsage increments a usage counter of a player and returns the new count.
func (o *Ops) TrackUsage(playerID string, key model.UsageKey) (int, error) {
	n, err := o.trackUsage(playerID, key)
	if err != nil {
		return 0, err
	}
	o.record("track_usage", map[string]any{"player_id": playerID, "key": key.String(), "count": n}, "")
	return n, nil
}

func (o *Ops) trackUsage(playerID string, key model.UsageKey) (int, error) {
	p, err := o.player(playerID)
	if err != nil {
		return 0, err
	}
	return p.Usage.Track(key), nil
}

// UsageCount reads a usage counter. It is not logged.
func (o *Ops) UsageCount(playerID string, key model.UsageKey) int {
	p, err := o.player(playerID)
	if err != nil {
		return 0
	}
	return p.Usage.Count(key)
}

// ResetTurnUsage clears the turn-scoped counters of a player.
func (o *Ops) ResetTurnUsage(playerID string) error {
	if err := o.resetTurnUsage(playerID); err != nil {
		return err
	}
	o.record("reset_turn_usage", map[string]any{"player_id": playerID}, "")
	return nil
}

func (o *Ops) resetTurnUsage(playerID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	p.Usage.ResetTurn()
	return nil
}

// PlayStadium puts a Stadium from hand into play. A Stadium already in play
// is discarded to its owner's discard pile.
func (o *Ops) PlayStadium(playerID, uid string) error {
	replaced, err := o.playStadium(playerID, uid)
	if err != nil {
		return err
	}
	o.record("play_stadium", map[string]any{"player_id": playerID, "card_id": uid, "replaced": replaced}, "")
	return nil
}

func (o *Ops) playStadium(playerID, uid string) (string, error) {
	p, err := o.player(playerID)
	if err != nil {
		return "", err
	}
	if _, _, ok := p.FindIn(model.ZoneHand, uid); !ok {
		return "", model.NotFoundf("stadium %s not in hand of %s", uid, playerID)
	}
	var replaced string
	if current, owner, ok := o.state.StadiumInPlay(); ok {
		replaced = current.UID
		if err := o.discardStadium(owner); err != nil {
			return "", err
		}
	}
	card, _ := p.RemoveFromZone(model.ZoneHand, uid)
	p.InsertIntoZone(model.ZoneStadium, card, -1)
	return replaced, nil
}

// DiscardStadium discards the Stadium in play, if any, and returns its uid.
func (o *Ops) DiscardStadium() (string, error) {
	current, owner, ok := o.state.StadiumInPlay()
	if !ok {
		return "", model.NotFoundf("no stadium in play")
	}
	if err := o.discardStadium(owner); err != nil {
		return "", err
	}
	o.record("discard_stadium", map[string]any{"player_id": owner, "card_id": current.UID}, "")
	return current.UID, nil
}

func (o *Ops) discardStadium(owner string) error {
	p, err := o.player(owner)
	if err != nil {
		return err
	}
	for _, card := range p.Zones[model.ZoneStadium] {
		p.InsertIntoZone(model.ZoneDiscard, card, -1)
	}
	p.Zones[model.ZoneStadium] = nil
	return nil
}

// SetTurn overwrites the turn player, number and phase.
func (o *Ops) SetTurn(playerID string, number int, phase rules.Phase) error {
	if err := o.setTurn(playerID, number, phase); err != nil {
		return err
	}
	o.record("set_turn", map[string]any{"player_id": playerID, "number": number, "phase": phase.String()}, "")
	return nil
}

func (o *Ops) setTurn(playerID string, number int, phase rules.Phase) error {
	if playerID != "" {
		if _, err := o.player(playerID); err != nil {
			return err
		}
	}
	o.state.Turn = rules.TurnState{Player: playerID, Number: number, Phase: phase}
	return nil
}

// SetFirstPlayer records which seat takes the first turn.
func (o *Ops) SetFirstPlayer(playerID string) error {
	if _, err := o.player(playerID); err != nil {
		return err
	}
	o.state.FirstPlayer = playerID
	o.record("set_first_player", map[string]any{"player_id": playerID}, "")
	return nil
}

// DeclareWinner ends the match.
func (o *Ops) DeclareWinner(playerID, reason string) error {
	if err := o.declareWinner(playerID, reason); err != nil {
		return err
	}
	o.record("declare_winner", map[string]any{"player_id": playerID, "reason": reason}, "")
	o.logger.Info("match decided",
		zap.String("match_id", o.state.MatchID),
		zap.String("winner", playerID),
		zap.String("reason", reason),
	)
	return nil
}

func (o *Ops) declareWinner(playerID, reason string) error {
	if _, err := o.player(playerID); err != nil {
		return err
	}
	o.state.Winner = playerID
	o.state.WinReason = reason
	o.state.Turn.Phase = rules.PhaseGameOver
	return nil
}

// CoinFlip flips a coin from a fresh logged seed. True means heads.
func (o *Ops) CoinFlip(reason string) bool {
	seed := o.newSeed()
	heads := flip(seed)
	o.record("coin_flip", map[string]any{"heads": heads, "reason": reason}, seed)
	return heads
}

func flip(seed string) bool {
	return RNG(seed).IntN(2) == 0
}
