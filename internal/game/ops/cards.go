package ops

import (
	"fmt"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// MoveCard moves one card between two zones of the same player. position
// is an insertion hint for the target zone; negative appends.
func (o *Ops) MoveCard(playerID string, from, to model.Zone, uid string, position int) error {
	if err := o.moveCard(playerID, from, to, uid, position); err != nil {
		return err
	}
	o.record("move_card", map[string]any{
		"player_id": playerID,
		"source":    from.String(),
		"target":    to.String(),
		"card_id":   uid,
		"position":  position,
	}, "")
	return nil
}

func (o *Ops) moveCard(playerID string, from, to model.Zone, uid string, position int) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	card, ok := p.RemoveFromZone(from, uid)
	if !ok {
		return model.NotFoundf("card %s not in %s of %s", uid, from, playerID)
	}
	o.enterZone(p, card, from, to, position)
	return nil
}

// enterZone places a card that has already been removed from `from`.
func (o *Ops) enterZone(p *model.PlayerState, card *model.CardInstance, from, to model.Zone, position int) {
	if from.InPlay() && !to.InPlay() {
		o.releaseAttachments(p, card)
		card.ClearRuntime()
	}
	if to.InPlay() && !from.InPlay() {
		card.EnteredTurn = o.state.Turn.Number
	}
	p.InsertIntoZone(to, card, position)
}

// releaseAttachments sends every card attached to host into the discard pile.
func (o *Ops) releaseAttachments(p *model.PlayerState, host *model.CardInstance) {
	attached := append([]string(nil), host.AttachedEnergy...)
	if host.AttachedTool != "" {
		attached = append(attached, host.AttachedTool)
	}
	for _, uid := range attached {
		if c, ok := p.Attached[uid]; ok {
			delete(p.Attached, uid)
			p.InsertIntoZone(model.ZoneDiscard, c, -1)
		}
	}
	host.AttachedEnergy = nil
	host.AttachedTool = ""
}

// Shuffle randomises a zone with a fresh seed and returns the seed.
func (o *Ops) Shuffle(playerID string, zone model.Zone) (string, error) {
	seed := o.newSeed()
	if err := o.shuffle(playerID, zone, seed); err != nil {
		return "", err
	}
	o.record("shuffle", map[string]any{"player_id": playerID, "zone": zone.String()}, seed)
	return seed, nil
}

func (o *Ops) shuffle(playerID string, zone model.Zone, seed string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	cards := p.Zones[zone]
	RNG(seed).Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	return nil
}

// DealPrizes moves the top n cards of the deck into the prize zone.
func (o *Ops) DealPrizes(playerID string, n int) error {
	if err := o.dealPrizes(playerID, n); err != nil {
		return err
	}
	o.record("deal_prizes", map[string]any{"player_id": playerID, "count": n}, "")
	return nil
}

func (o *Ops) dealPrizes(playerID string, n int) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	deck := p.Zones[model.ZoneDeck]
	if len(deck) < n {
		return fmt.Errorf("deck of %s has %d cards, cannot deal %d prizes", playerID, len(deck), n)
	}
	p.Zones[model.ZonePrize] = append(p.Zones[model.ZonePrize], deck[:n]...)
	p.Zones[model.ZoneDeck] = append([]*model.CardInstance(nil), deck[n:]...)
	p.PrizesRemaining = len(p.Zones[model.ZonePrize])
	return nil
}

// Draw moves up to n cards from the top of the deck into the hand. It
// returns fewer cards when the deck runs out.
func (o *Ops) Draw(playerID string, n int) ([]*model.CardInstance, error) {
	drawn, err := o.draw(playerID, n)
	if err != nil {
		return nil, err
	}
	o.record("draw", map[string]any{"player_id": playerID, "count": n, "cards": uids(drawn)}, "")
	return drawn, nil
}

func (o *Ops) draw(playerID string, n int) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	deck := p.Zones[model.ZoneDeck]
	n = min(max(n, 0), len(deck))
	drawn := append([]*model.CardInstance(nil), deck[:n]...)
	p.Zones[model.ZoneDeck] = append([]*model.CardInstance(nil), deck[n:]...)
	p.Zones[model.ZoneHand] = append(p.Zones[model.ZoneHand], drawn...)
	return drawn, nil
}

// Discard moves cards of one player into their discard pile. Cards may come
// from any zone; Pokémon leaving play take their attachments along.
func (o *Ops) Discard(playerID string, cardIDs []string, reason string) error {
	if err := o.discard(playerID, cardIDs); err != nil {
		return err
	}
	o.record("discard", map[string]any{"player_id": playerID, "cards": cardIDs, "reason": reason}, "")
	return nil
}

func (o *Ops) discard(playerID string, cardIDs []string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	for _, uid := range cardIDs {
		if _, _, _, ok := p.Find(uid); !ok {
			return model.NotFoundf("card %s not owned by %s", uid, playerID)
		}
	}
	for _, uid := range cardIDs {
		_, z, _, _ := p.Find(uid)
		card, _ := p.RemoveFromZone(z, uid)
		o.enterZone(p, card, z, model.ZoneDiscard, -1)
	}
	return nil
}

// RandomDiscard discards n random cards from the hand.
func (o *Ops) RandomDiscard(playerID string, n int) ([]*model.CardInstance, error) {
	seed := o.newSeed()
	picked, err := o.randomDiscard(playerID, n, seed)
	if err != nil {
		return nil, err
	}
	o.record("random_discard", map[string]any{"player_id": playerID, "count": n, "cards": uids(picked)}, seed)
	return picked, nil
}

func (o *Ops) randomDiscard(playerID string, n int, seed string) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	hand := p.Zones[model.ZoneHand]
	n = min(max(n, 0), len(hand))
	order := RNG(seed).Perm(len(hand))[:n]
	picked := make([]*model.CardInstance, n)
	for i, idx := range order {
		picked[i] = hand[idx]
	}
	for _, card := range picked {
		p.RemoveFromZone(model.ZoneHand, card.UID)
		p.InsertIntoZone(model.ZoneDiscard, card, -1)
	}
	return picked, nil
}

// TakePrize moves up to n prize cards into the hand and lowers the prize count.
func (o *Ops) TakePrize(playerID string, n int) ([]*model.CardInstance, error) {
	taken, err := o.takePrize(playerID, n)
	if err != nil {
		return nil, err
	}
	p, _ := o.player(playerID)
	o.record("take_prize", map[string]any{
		"player_id": playerID,
		"count":     n,
		"cards":     uids(taken),
		"remaining": p.PrizesRemaining,
	}, "")
	return taken, nil
}

func (o *Ops) takePrize(playerID string, n int) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	prizes := p.Zones[model.ZonePrize]
	n = min(max(n, 0), len(prizes))
	taken := append([]*model.CardInstance(nil), prizes[:n]...)
	p.Zones[model.ZonePrize] = append([]*model.CardInstance(nil), prizes[n:]...)
	p.Zones[model.ZoneHand] = append(p.Zones[model.ZoneHand], taken...)
	p.PrizesRemaining = max(0, p.PrizesRemaining-n)
	return taken, nil
}

// RevealTop returns the top n cards of the deck without moving them.
func (o *Ops) RevealTop(playerID string, n int) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	deck := p.Zones[model.ZoneDeck]
	revealed := append([]*model.CardInstance(nil), deck[:min(max(n, 0), len(deck))]...)
	o.record("reveal_top", map[string]any{"player_id": playerID, "count": n, "cards": uids(revealed)}, "")
	return revealed, nil
}

// RevealPrize returns the first n prize cards without taking them.
func (o *Ops) RevealPrize(playerID string, n int) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	prizes := p.Zones[model.ZonePrize]
	revealed := append([]*model.CardInstance(nil), prizes[:min(max(n, 0), len(prizes))]...)
	o.record("reveal_prize", map[string]any{"player_id": playerID, "count": n, "cards": uids(revealed)}, "")
	return revealed, nil
}

// ModifyPrizeDelta adjusts the remaining prize count (clamped at zero).
func (o *Ops) ModifyPrizeDelta(playerID string, delta int) (int, error) {
	count, err := o.modifyPrizeDelta(playerID, delta)
	if err != nil {
		return 0, err
	}
	o.record("modify_prize_delta", map[string]any{"player_id": playerID, "delta": delta, "new_count": count}, "")
	return count, nil
}

func (o *Ops) modifyPrizeDelta(playerID string, delta int) (int, error) {
	p, err := o.player(playerID)
	if err != nil {
		return 0, err
	}
	p.PrizesRemaining = max(0, p.PrizesRemaining+delta)
	return p.PrizesRemaining, nil
}

// Query returns the cards of a zone that satisfy pred. Queries are not logged.
func (o *Ops) Query(playerID string, zone model.Zone, pred func(*model.CardInstance) bool) ([]*model.CardInstance, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	var out []*model.CardInstance
	for _, c := range p.Zones[zone] {
		if pred == nil || pred(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ZoneMeta summarises a zone without exposing its cards.
func (o *Ops) ZoneMeta(playerID string, zone model.Zone) (map[string]any, error) {
	p, err := o.player(playerID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]int)
	for _, c := range p.Zones[zone] {
		if c.Definition != nil {
			byType[string(c.Definition.Category)]++
		}
	}
	return map[string]any{"zone": zone.String(), "card_count": len(p.Zones[zone]), "card_types": byType}, nil
}

// SendToLostZone moves a card from any zone of its owner to the Lost Zone.
func (o *Ops) SendToLostZone(playerID, uid string) error {
	from, err := o.sendToLostZone(playerID, uid)
	if err != nil {
		return err
	}
	o.record("send_to_lost_zone", map[string]any{"player_id": playerID, "card_id": uid, "source_zone": from.String()}, "")
	return nil
}

func (o *Ops) sendToLostZone(playerID, uid string) (model.Zone, error) {
	p, err := o.player(playerID)
	if err != nil {
		return 0, err
	}
	if card, ok := p.Attached[uid]; ok {
		o.detach(p, uid)
		p.InsertIntoZone(model.ZoneLostZone, card, -1)
		return model.ZoneLostZone, nil
	}
	_, z, _, ok := p.Find(uid)
	if !ok || z == model.ZoneLostZone {
		return 0, model.NotFoundf("card %s not found for %s", uid, playerID)
	}
	card, _ := p.RemoveFromZone(z, uid)
	o.enterZone(p, card, z, model.ZoneLostZone, -1)
	return z, nil
}

// ShuffleHandIntoDeck puts the whole hand into the deck and shuffles it.
func (o *Ops) ShuffleHandIntoDeck(playerID string) error {
	if err := o.handIntoDeck(playerID); err != nil {
		return err
	}
	o.record("shuffle_hand_into_deck", map[string]any{"player_id": playerID}, "")
	_, err := o.Shuffle(playerID, model.ZoneDeck)
	return err
}

func (o *Ops) handIntoDeck(playerID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	p.Zones[model.ZoneDeck] = append(p.Zones[model.ZoneDeck], p.Zones[model.ZoneHand]...)
	p.Zones[model.ZoneHand] = nil
	return nil
}

// ShuffleHandToBottom puts the hand on the bottom of the deck in random order.
func (o *Ops) ShuffleHandToBottom(playerID string) error {
	seed := o.newSeed()
	if err := o.handToBottom(playerID, seed); err != nil {
		return err
	}
	o.record("shuffle_hand_to_bottom", map[string]any{"player_id": playerID}, seed)
	return nil
}

func (o *Ops) handToBottom(playerID, seed string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	hand := p.Zones[model.ZoneHand]
	RNG(seed).Shuffle(len(hand), func(i, j int) { hand[i], hand[j] = hand[j], hand[i] })
	p.Zones[model.ZoneDeck] = append(p.Zones[model.ZoneDeck], hand...)
	p.Zones[model.ZoneHand] = nil
	return nil
}
