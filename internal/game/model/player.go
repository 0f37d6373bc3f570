package model

import "slices"

// Player limits.
const (
	StartingPrizes = 6
	MaxBenchSize   = 5
	OpeningHand    = 7
)

// PlayerState holds one player's zones, attachment pool, prize count and usage counters.
type PlayerState struct {
	PlayerID        string                   `json:"player_id"`
	Zones           map[Zone][]*CardInstance `json:"zones"`
	Attached        map[string]*CardInstance `json:"attached"`
	PrizesRemaining int                      `json:"prizes_remaining"`
	Usage           *UsageTracker            `json:"usage"`
}

// NewPlayerState creates an empty player with six prizes remaining.
func NewPlayerState(playerID string) *PlayerState {
	zones := make(map[Zone][]*CardInstance, len(AllZones))
	for _, z := range AllZones {
		zones[z] = nil
	}
	return &PlayerState{
		PlayerID:        playerID,
		Zones:           zones,
		Attached:        make(map[string]*CardInstance),
		PrizesRemaining: StartingPrizes,
		Usage:           NewUsageTracker(),
	}
}

// Zone returns the ordered contents of a zone. The slice must not be retained across mutations.
func (p *PlayerState) Zone(z Zone) []*CardInstance {
	return p.Zones[z]
}

// SetZone replaces the contents of a zone.
func (p *PlayerState) SetZone(z Zone, cards []*CardInstance) {
	p.Zones[z] = cards
}

// Active returns the Active Pokémon, or nil.
func (p *PlayerState) Active() *CardInstance {
	if active := p.Zones[ZoneActive]; len(active) > 0 {
		return active[0]
	}
	return nil
}

// Bench returns the benched Pokémon.
func (p *PlayerState) Bench() []*CardInstance {
	return p.Zones[ZoneBench]
}

// BenchFull reports whether the bench is at capacity.
func (p *PlayerState) BenchFull() bool {
	return len(p.Zones[ZoneBench]) >= MaxBenchSize
}

// Find returns the card and its zone if the uid is in one of the player's zones.
func (p *PlayerState) Find(uid string) (*CardInstance, Zone, int, bool) {
	for _, z := range AllZones {
		for i, card := range p.Zones[z] {
			if card.UID == uid {
				return card, z, i, true
			}
		}
	}
	return nil, 0, -1, false
}

// FindIn returns the card if the uid is in the given zone.
func (p *PlayerState) FindIn(z Zone, uid string) (*CardInstance, int, bool) {
	for i, card := range p.Zones[z] {
		if card.UID == uid {
			return card, i, true
		}
	}
	return nil, -1, false
}

// InPlay returns Active then Bench Pokémon.
func (p *PlayerState) InPlay() []*CardInstance {
	out := make([]*CardInstance, 0, 1+len(p.Zones[ZoneBench]))
	out = append(out, p.Zones[ZoneActive]...)
	out = append(out, p.Zones[ZoneBench]...)
	return out
}

// FindInPlay returns an Active or Benched Pokémon by uid.
func (p *PlayerState) FindInPlay(uid string) (*CardInstance, Zone, bool) {
	if card, _, ok := p.FindIn(ZoneActive, uid); ok {
		return card, ZoneActive, true
	}
	if card, _, ok := p.FindIn(ZoneBench, uid); ok {
		return card, ZoneBench, true
	}
	return nil, 0, false
}

// AttachedEnergyCards resolves a host's attached energy ids against the attachment pool.
func (p *PlayerState) AttachedEnergyCards(host *CardInstance) []*CardInstance {
	out := make([]*CardInstance, 0, len(host.AttachedEnergy))
	for _, uid := range host.AttachedEnergy {
		if card, ok := p.Attached[uid]; ok {
			out = append(out, card)
		}
	}
	return out
}

// CardCount returns the number of cards the player owns in zones and attachments.
func (p *PlayerState) CardCount() int {
	n := len(p.Attached)
	for _, z := range AllZones {
		n += len(p.Zones[z])
	}
	return n
}

// Clone returns a deep copy of the player state.
func (p *PlayerState) Clone() *PlayerState {
	cp := &PlayerState{
		PlayerID:        p.PlayerID,
		Zones:           make(map[Zone][]*CardInstance, len(p.Zones)),
		Attached:        make(map[string]*CardInstance, len(p.Attached)),
		PrizesRemaining: p.PrizesRemaining,
		Usage:           NewUsageTracker(),
	}
	for z, cards := range p.Zones {
		cloned := make([]*CardInstance, len(cards))
		for i, c := range cards {
			cloned[i] = c.Clone()
		}
		cp.Zones[z] = cloned
	}
	for uid, c := range p.Attached {
		cp.Attached[uid] = c.Clone()
	}
	if p.Usage != nil {
		for k, v := range p.Usage.Counts {
			cp.Usage.Counts[k] = v
		}
	}
	return cp
}

func (p *PlayerState) eachCard(fn func(*CardInstance)) {
	for _, cards := range p.Zones {
		for _, c := range cards {
			fn(c)
		}
	}
	for _, c := range p.Attached {
		fn(c)
	}
}

// removeAt deletes index i from a zone slice, preserving order.
func removeAt(cards []*CardInstance, i int) []*CardInstance {
	return slices.Delete(cards, i, i+1)
}

// RemoveFromZone removes a card by uid and returns it.
func (p *PlayerState) RemoveFromZone(z Zone, uid string) (*CardInstance, bool) {
	card, i, ok := p.FindIn(z, uid)
	if !ok {
		return nil, false
	}
	p.Zones[z] = removeAt(p.Zones[z], i)
	return card, true
}

// InsertIntoZone puts a card into a zone at position (negative or past end appends).
func (p *PlayerState) InsertIntoZone(z Zone, card *CardInstance, position int) {
	cards := p.Zones[z]
	if position < 0 || position >= len(cards) {
		p.Zones[z] = append(cards, card)
		return
	}
	p.Zones[z] = slices.Insert(cards, position, card)
}
