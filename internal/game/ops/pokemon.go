package ops

import (
	"slices"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// DamageCounter is the damage represented by one damage counter.
const DamageCounter = 10

// AttachEnergy attaches an energy card from hand, deck or discard to a
// Pokémon in play of the same player.
func (o *Ops) AttachEnergy(playerID, hostUID, energyUID string, source model.Zone) error {
	if err := o.attachEnergy(playerID, hostUID, energyUID, source); err != nil {
		return err
	}
	o.record("attach_energy", map[string]any{
		"player_id": playerID,
		"target":    hostUID,
		"card_id":   energyUID,
		"source":    source.String(),
	}, "")
	return nil
}

func (o *Ops) attachEnergy(playerID, hostUID, energyUID string, source model.Zone) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	host, _, ok := p.FindInPlay(hostUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", hostUID, playerID)
	}
	card, ok := p.RemoveFromZone(source, energyUID)
	if !ok {
		return model.NotFoundf("energy %s not in %s of %s", energyUID, source, playerID)
	}
	p.Attached[energyUID] = card
	host.AttachedEnergy = append(host.AttachedEnergy, energyUID)
	return nil
}

// AttachTool attaches a Pokémon Tool from hand.
func (o *Ops) AttachTool(playerID, hostUID, toolUID string) error {
	if err := o.attachTool(playerID, hostUID, toolUID); err != nil {
		return err
	}
	o.record("attach_tool", map[string]any{"player_id": playerID, "target": hostUID, "card_id": toolUID}, "")
	return nil
}

func (o *Ops) attachTool(playerID, hostUID, toolUID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	host, _, ok := p.FindInPlay(hostUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", hostUID, playerID)
	}
	if host.AttachedTool != "" {
		return model.Validationf("pokemon %s already has a tool attached", hostUID)
	}
	card, ok := p.RemoveFromZone(model.ZoneHand, toolUID)
	if !ok {
		return model.NotFoundf("tool %s not in hand of %s", toolUID, playerID)
	}
	p.Attached[toolUID] = card
	host.AttachedTool = toolUID
	return nil
}

// detach removes an attachment from its host and the pool and returns it.
func (o *Ops) detach(p *model.PlayerState, uid string) *model.CardInstance {
	card, ok := p.Attached[uid]
	if !ok {
		return nil
	}
	delete(p.Attached, uid)
	for _, host := range p.InPlay() {
		if host.AttachedTool == uid {
			host.AttachedTool = ""
		}
		host.AttachedEnergy = slices.DeleteFunc(host.AttachedEnergy, func(s string) bool { return s == uid })
	}
	return card
}

// MoveEnergy moves an attached energy from one of the player's Pokémon to another.
func (o *Ops) MoveEnergy(playerID, energyUID, fromUID, toUID string) error {
	if err := o.moveEnergy(playerID, energyUID, fromUID, toUID); err != nil {
		return err
	}
	o.record("move_energy", map[string]any{
		"player_id": playerID,
		"card_id":   energyUID,
		"source":    fromUID,
		"target":    toUID,
	}, "")
	return nil
}

func (o *Ops) moveEnergy(playerID, energyUID, fromUID, toUID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	from, _, ok := p.FindInPlay(fromUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", fromUID, playerID)
	}
	to, _, ok := p.FindInPlay(toUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", toUID, playerID)
	}
	idx := slices.Index(from.AttachedEnergy, energyUID)
	if idx < 0 {
		return model.NotFoundf("energy %s not attached to %s", energyUID, fromUID)
	}
	from.AttachedEnergy = slices.Delete(from.AttachedEnergy, idx, idx+1)
	to.AttachedEnergy = append(to.AttachedEnergy, energyUID)
	return nil
}

// DiscardEnergy discards attached energy cards from a Pokémon in play.
func (o *Ops) DiscardEnergy(playerID, hostUID string, energyUIDs []string) error {
	if err := o.discardEnergy(playerID, hostUID, energyUIDs); err != nil {
		return err
	}
	o.record("discard_energy", map[string]any{"player_id": playerID, "target": hostUID, "cards": energyUIDs}, "")
	return nil
}

func (o *Ops) discardEnergy(playerID, hostUID string, energyUIDs []string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	host, _, ok := p.FindInPlay(hostUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", hostUID, playerID)
	}
	for _, uid := range energyUIDs {
		if !slices.Contains(host.AttachedEnergy, uid) {
			return model.NotFoundf("energy %s not attached to %s", uid, hostUID)
		}
	}
	for _, uid := range energyUIDs {
		if card := o.detach(p, uid); card != nil {
			p.InsertIntoZone(model.ZoneDiscard, card, -1)
		}
	}
	return nil
}

// DiscardTool discards the Pokémon Tool attached to a Pokémon in play and
// returns its uid.
func (o *Ops) DiscardTool(playerID, hostUID string) (string, error) {
	uid, err := o.discardTool(playerID, hostUID)
	if err != nil {
		return "", err
	}
	o.record("discard_tool", map[string]any{"player_id": playerID, "target": hostUID, "card_id": uid}, "")
	return uid, nil
}

func (o *Ops) discardTool(playerID, hostUID string) (string, error) {
	p, err := o.player(playerID)
	if err != nil {
		return "", err
	}
	host, _, ok := p.FindInPlay(hostUID)
	if !ok {
		return "", model.NotFoundf("pokemon %s not in play for %s", hostUID, playerID)
	}
	uid := host.AttachedTool
	if uid == "" {
		return "", model.NotFoundf("pokemon %s has no tool attached", hostUID)
	}
	if card := o.detach(p, uid); card != nil {
		p.InsertIntoZone(model.ZoneDiscard, card, -1)
	}
	return uid, nil
}

// Evolve puts an evolution card from hand onto a Pokémon in play. The
// evolution keeps the damage, attachments and conditions of the base, whose
// instance goes to the discard pile and is remembered in EvolvedFrom.
func (o *Ops) Evolve(playerID, baseUID, evolutionUID string) error {
	if err := o.evolve(playerID, baseUID, evolutionUID); err != nil {
		return err
	}
	o.record("evolve", map[string]any{"player_id": playerID, "target": baseUID, "card_id": evolutionUID}, "")
	return nil
}

func (o *Ops) evolve(playerID, baseUID, evolutionUID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	base, zone, ok := p.FindInPlay(baseUID)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", baseUID, playerID)
	}
	evo, ok := p.RemoveFromZone(model.ZoneHand, evolutionUID)
	if !ok {
		return model.NotFoundf("evolution %s not in hand of %s", evolutionUID, playerID)
	}
	_, idx, _ := p.FindIn(zone, baseUID)

	evo.Damage = base.Damage
	evo.AttachedEnergy = base.AttachedEnergy
	evo.AttachedTool = base.AttachedTool
	evo.Conditions = base.Conditions
	evo.EnteredTurn = o.state.Turn.Number
	evo.EvolvedFrom = append(slices.Clone(base.EvolvedFrom), base.UID)

	p.Zones[zone][idx] = evo
	base.ClearRuntime()
	p.InsertIntoZone(model.ZoneDiscard, base, -1)
	return nil
}

// Devolve returns an evolved Pokémon to its previous stage. The evolution
// card goes to the hand; damage and attachments stay on the Pokémon.
func (o *Ops) Devolve(playerID, uid string) (string, error) {
	prev, err := o.devolve(playerID, uid)
	if err != nil {
		return "", err
	}
	o.record("devolve", map[string]any{"player_id": playerID, "card_id": uid, "target": prev}, "")
	return prev, nil
}

func (o *Ops) devolve(playerID, uid string) (string, error) {
	p, err := o.player(playerID)
	if err != nil {
		return "", err
	}
	evo, zone, ok := p.FindInPlay(uid)
	if !ok {
		return "", model.NotFoundf("pokemon %s not in play for %s", uid, playerID)
	}
	if len(evo.EvolvedFrom) == 0 {
		return "", model.Validationf("pokemon %s is not evolved", uid)
	}
	prevUID := evo.EvolvedFrom[len(evo.EvolvedFrom)-1]
	prev, ok := p.RemoveFromZone(model.ZoneDiscard, prevUID)
	if !ok {
		return "", model.NotFoundf("pre-evolution %s not in discard of %s", prevUID, playerID)
	}
	_, idx, _ := p.FindIn(zone, uid)

	prev.Damage = evo.Damage
	prev.AttachedEnergy = evo.AttachedEnergy
	prev.AttachedTool = evo.AttachedTool
	prev.EnteredTurn = evo.EnteredTurn
	prev.EvolvedFrom = slices.Clone(evo.EvolvedFrom[:len(evo.EvolvedFrom)-1])

	p.Zones[zone][idx] = prev
	evo.ClearRuntime()
	p.InsertIntoZone(model.ZoneHand, evo, -1)
	return prevUID, nil
}

// UpdateDamage adds delta damage to a Pokémon in play. The result is clamped at zero.
func (o *Ops) UpdateDamage(uid string, delta int) (int, error) {
	dmg, err := o.updateDamage(uid, delta)
	if err != nil {
		return 0, err
	}
	o.record("update_damage", map[string]any{"card_id": uid, "delta": delta, "damage": dmg}, "")
	return dmg, nil
}

func (o *Ops) updateDamage(uid string, delta int) (int, error) {
	card, _, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return 0, model.NotFoundf("pokemon %s not in play", uid)
	}
	card.Damage = max(0, card.Damage+delta)
	return card.Damage, nil
}

// Heal removes up to amount damage. A negative amount heals everything.
func (o *Ops) Heal(uid string, amount int) (int, error) {
	card, _, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return 0, model.NotFoundf("pokemon %s not in play", uid)
	}
	if amount < 0 || amount > card.Damage {
		amount = card.Damage
	}
	if _, err := o.UpdateDamage(uid, -amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// MoveDamage moves damage counters between two Pokémon in play. Only the
// counters actually present on the source are moved.
func (o *Ops) MoveDamage(fromUID, toUID string, counters int) (int, error) {
	from, _, _, ok := o.state.FindInPlay(fromUID)
	if !ok {
		return 0, model.NotFoundf("pokemon %s not in play", fromUID)
	}
	if _, _, _, ok := o.state.FindInPlay(toUID); !ok {
		return 0, model.NotFoundf("pokemon %s not in play", toUID)
	}
	moved := min(max(counters, 0), from.Damage/DamageCounter)
	if moved == 0 {
		return 0, nil
	}
	if _, err := o.UpdateDamage(fromUID, -moved*DamageCounter); err != nil {
		return 0, err
	}
	if _, err := o.UpdateDamage(toUID, moved*DamageCounter); err != nil {
		return 0, err
	}
	return moved, nil
}

// CheckKO knocks out a Pokémon whose damage reached its HP: the opponent
// takes one prize and the Pokémon goes to the discard pile with everything
// attached. It reports whether a knockout happened.
func (o *Ops) CheckKO(uid string) (bool, error) {
	card, owner, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return false, model.NotFoundf("pokemon %s not in play", uid)
	}
	if !card.IsKnockedOut() {
		return false, nil
	}
	opponent, err := o.state.Opponent(owner)
	if err != nil {
		return false, err
	}
	if opponent.PrizesRemaining > 0 {
		if _, err := o.TakePrize(opponent.PlayerID, 1); err != nil {
			return false, err
		}
	}
	if err := o.knockout(owner, uid); err != nil {
		return false, err
	}
	o.record("knockout", map[string]any{"player_id": owner, "card_id": uid, "name": card.Name()}, "")
	return true, nil
}

func (o *Ops) knockout(owner, uid string) error {
	p, err := o.player(owner)
	if err != nil {
		return err
	}
	_, zone, ok := p.FindInPlay(uid)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", uid, owner)
	}
	card, _ := p.RemoveFromZone(zone, uid)
	o.enterZone(p, card, zone, model.ZoneDiscard, -1)
	return nil
}

// rotation conditions replace each other.
var rotationConditions = []model.SpecialCondition{model.ConditionAsleep, model.ConditionConfused, model.ConditionParalyzed}

// SetCondition applies a special condition. Asleep, Confused and Paralyzed
// replace each other; Burned and Poisoned stack with anything.
func (o *Ops) SetCondition(uid string, cond model.SpecialCondition) error {
	if err := o.setCondition(uid, cond); err != nil {
		return err
	}
	o.record("set_condition", map[string]any{"card_id": uid, "condition": string(cond)}, "")
	return nil
}

func (o *Ops) setCondition(uid string, cond model.SpecialCondition) error {
	card, _, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return model.NotFoundf("pokemon %s not in play", uid)
	}
	if slices.Contains(rotationConditions, cond) {
		card.Conditions = slices.DeleteFunc(card.Conditions, func(c model.SpecialCondition) bool {
			return slices.Contains(rotationConditions, c)
		})
	}
	if !card.HasCondition(cond) {
		card.Conditions = append(card.Conditions, cond)
	}
	return nil
}

// RemoveCondition clears one special condition.
func (o *Ops) RemoveCondition(uid string, cond model.SpecialCondition) error {
	if err := o.removeCondition(uid, cond); err != nil {
		return err
	}
	o.record("remove_condition", map[string]any{"card_id": uid, "condition": string(cond)}, "")
	return nil
}

func (o *Ops) removeCondition(uid string, cond model.SpecialCondition) error {
	card, _, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return model.NotFoundf("pokemon %s not in play", uid)
	}
	card.Conditions = slices.DeleteFunc(card.Conditions, func(c model.SpecialCondition) bool { return c == cond })
	return nil
}

// ClearConditions removes every special condition.
func (o *Ops) ClearConditions(uid string) error {
	if err := o.clearConditions(uid); err != nil {
		return err
	}
	o.record("clear_conditions", map[string]any{"card_id": uid}, "")
	return nil
}

func (o *Ops) clearConditions(uid string) error {
	card, _, _, ok := o.state.FindInPlay(uid)
	if !ok {
		return model.NotFoundf("pokemon %s not in play", uid)
	}
	card.Conditions = nil
	return nil
}

// SwapActiveWithBench switches the Active Pokémon with a benched one. The
// Pokémon moving to the bench loses its special conditions.
func (o *Ops) SwapActiveWithBench(playerID, benchUID string) error {
	if err := o.swapActive(playerID, benchUID); err != nil {
		return err
	}
	o.record("swap_active_with_bench", map[string]any{"player_id": playerID, "card_id": benchUID}, "")
	return nil
}

func (o *Ops) swapActive(playerID, benchUID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	active := p.Active()
	if active == nil {
		return model.NotFoundf("player %s has no active pokemon", playerID)
	}
	_, idx, ok := p.FindIn(model.ZoneBench, benchUID)
	if !ok {
		return model.NotFoundf("pokemon %s not on bench of %s", benchUID, playerID)
	}
	incoming := p.Zones[model.ZoneBench][idx]
	active.Conditions = nil
	p.Zones[model.ZoneBench][idx] = active
	p.Zones[model.ZoneActive][0] = incoming
	return nil
}

// Promote moves a benched Pokémon into an empty Active Spot.
func (o *Ops) Promote(playerID, benchUID string) error {
	if err := o.promote(playerID, benchUID); err != nil {
		return err
	}
	o.record("promote", map[string]any{"player_id": playerID, "card_id": benchUID}, "")
	return nil
}

func (o *Ops) promote(playerID, benchUID string) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	if p.Active() != nil {
		return model.Validationf("player %s already has an active pokemon", playerID)
	}
	card, ok := p.RemoveFromZone(model.ZoneBench, benchUID)
	if !ok {
		return model.NotFoundf("pokemon %s not on bench of %s", benchUID, playerID)
	}
	p.InsertIntoZone(model.ZoneActive, card, -1)
	return nil
}

// MovePokemonToHand returns a Pokémon in play to its owner's hand. Attached
// cards are discarded when discardAttached is set; otherwise they go to hand too.
func (o *Ops) MovePokemonToHand(playerID, uid string, discardAttached bool) error {
	if err := o.pokemonToHand(playerID, uid, discardAttached); err != nil {
		return err
	}
	o.record("move_pokemon_to_hand", map[string]any{
		"player_id":        playerID,
		"card_id":          uid,
		"discard_attached": discardAttached,
	}, "")
	return nil
}

func (o *Ops) pokemonToHand(playerID, uid string, discardAttached bool) error {
	p, err := o.player(playerID)
	if err != nil {
		return err
	}
	card, zone, ok := p.FindInPlay(uid)
	if !ok {
		return model.NotFoundf("pokemon %s not in play for %s", uid, playerID)
	}
	attachedTo := model.ZoneHand
	if discardAttached {
		attachedTo = model.ZoneDiscard
	}
	for _, prev := range card.EvolvedFrom {
		if c, ok := p.RemoveFromZone(model.ZoneDiscard, prev); ok {
			p.InsertIntoZone(attachedTo, c, -1)
		}
	}
	extras := append(slices.Clone(card.AttachedEnergy), card.AttachedTool)
	for _, a := range extras {
		if c := o.detach(p, a); c != nil {
			p.InsertIntoZone(attachedTo, c, -1)
		}
	}
	p.RemoveFromZone(zone, uid)
	card.ClearRuntime()
	p.InsertIntoZone(model.ZoneHand, card, -1)
	return nil
}
