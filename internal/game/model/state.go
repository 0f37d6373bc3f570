package model

import (
	"fmt"

	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// GameState is the authoritative state of one match. It is owned by exactly one referee.
type GameState struct {
	MatchID     string                  `json:"match_id"`
	Seats       []string                `json:"seats"`
	Players     map[string]*PlayerState `json:"players"`
	Turn        rules.TurnState         `json:"turn"`
	FirstPlayer string                  `json:"first_player,omitempty"`
	Winner      string                  `json:"winner,omitempty"`
	WinReason   string                  `json:"win_reason,omitempty"`
}

// NewGameState creates an empty two-seat match in the init phase.
func NewGameState(matchID string, seats ...string) (*GameState, error) {
	if len(seats) != 2 {
		return nil, Validationf("a match needs exactly two players, got %d", len(seats))
	}
	if seats[0] == seats[1] {
		return nil, Validationf("player ids must differ")
	}
	players := make(map[string]*PlayerState, 2)
	for _, id := range seats {
		players[id] = NewPlayerState(id)
	}
	return &GameState{
		MatchID: matchID,
		Seats:   append([]string(nil), seats...),
		Players: players,
		Turn:    rules.TurnState{Phase: rules.PhaseInit},
	}, nil
}

// Player returns the state of a seated player.
func (g *GameState) Player(id string) (*PlayerState, error) {
	p, ok := g.Players[id]
	if !ok {
		return nil, NotFoundf("player %s is not seated in match %s", id, g.MatchID)
	}
	return p, nil
}

// OpponentID returns the other seated player.
func (g *GameState) OpponentID(id string) string {
	for _, seat := range g.Seats {
		if seat != id {
			return seat
		}
	}
	return ""
}

// Opponent returns the other player's state.
func (g *GameState) Opponent(id string) (*PlayerState, error) {
	return g.Player(g.OpponentID(id))
}

// CardLocation describes where a card currently lives.
type CardLocation struct {
	PlayerID string
	Zone     Zone
	Index    int
	Attached bool
	HostUID  string
}

// Locate finds a card in any zone or attachment pool of either player.
func (g *GameState) Locate(uid string) (*CardInstance, CardLocation, bool) {
	for _, seat := range g.Seats {
		p := g.Players[seat]
		if card, z, i, ok := p.Find(uid); ok {
			return card, CardLocation{PlayerID: seat, Zone: z, Index: i}, true
		}
		if card, ok := p.Attached[uid]; ok {
			loc := CardLocation{PlayerID: seat, Attached: true, Index: -1}
			for _, host := range p.InPlay() {
				if host.AttachedTool == uid || containsString(host.AttachedEnergy, uid) {
					loc.HostUID = host.UID
					loc.Zone = zoneOfInPlay(p, host.UID)
				}
			}
			return card, loc, true
		}
	}
	return nil, CardLocation{}, false
}

// FindInPlay finds an Active or Benched Pokémon of either player.
func (g *GameState) FindInPlay(uid string) (*CardInstance, string, Zone, bool) {
	for _, seat := range g.Seats {
		if card, z, ok := g.Players[seat].FindInPlay(uid); ok {
			return card, seat, z, true
		}
	}
	return nil, "", 0, false
}

// StadiumInPlay returns the single Stadium in play and its owner.
func (g *GameState) StadiumInPlay() (*CardInstance, string, bool) {
	for _, seat := range g.Seats {
		if st := g.Players[seat].Zones[ZoneStadium]; len(st) > 0 {
			return st[0], seat, true
		}
	}
	return nil, "", false
}

// IsOver reports whether a winner has been declared.
func (g *GameState) IsOver() bool {
	return g.Turn.Phase == rules.PhaseGameOver
}

// CheckZoneExclusivity verifies every card is in exactly one place and every
// attachment reference resolves to the owner's attachment pool.
func (g *GameState) CheckZoneExclusivity() error {
	seen := make(map[string]string)
	mark := func(uid, where string) error {
		if prev, dup := seen[uid]; dup {
			return fmt.Errorf("card %s found in %s and %s", uid, prev, where)
		}
		seen[uid] = where
		return nil
	}
	for _, seat := range g.Seats {
		p := g.Players[seat]
		for _, z := range AllZones {
			for _, card := range p.Zones[z] {
				if err := mark(card.UID, seat+"/"+z.String()); err != nil {
					return err
				}
			}
		}
		referenced := make(map[string]bool)
		for _, host := range p.InPlay() {
			for _, uid := range host.AttachedEnergy {
				referenced[uid] = true
			}
			if host.AttachedTool != "" {
				referenced[host.AttachedTool] = true
			}
		}
		for uid := range p.Attached {
			if !referenced[uid] {
				return fmt.Errorf("attached card %s of %s has no host", uid, seat)
			}
			if err := mark(uid, seat+"/attached"); err != nil {
				return err
			}
		}
		for uid := range referenced {
			if _, ok := p.Attached[uid]; !ok {
				return fmt.Errorf("host references missing attachment %s", uid)
			}
		}
	}
	return nil
}

// Clone returns a deep copy used for bookmarks.
func (g *GameState) Clone() *GameState {
	cp := *g
	cp.Seats = append([]string(nil), g.Seats...)
	cp.Players = make(map[string]*PlayerState, len(g.Players))
	for id, p := range g.Players {
		cp.Players[id] = p.Clone()
	}
	return &cp
}

// Restore overwrites the receiver with a previously cloned bookmark. Player
// and card pointers held by callers stay valid: a card that exists in both
// states is rewound in place rather than replaced.
func (g *GameState) Restore(bookmark *GameState) {
	live := make(map[string]*CardInstance)
	players := make(map[string]*PlayerState, len(g.Players))
	for id, p := range g.Players {
		players[id] = p
		p.eachCard(func(c *CardInstance) { live[c.UID] = c })
	}

	restored := bookmark.Clone()
	reuse := func(c *CardInstance) *CardInstance {
		if prev, ok := live[c.UID]; ok {
			*prev = *c
			return prev
		}
		return c
	}
	for id, p := range restored.Players {
		for z, cards := range p.Zones {
			for i, c := range cards {
				cards[i] = reuse(c)
			}
			p.Zones[z] = cards
		}
		for uid, c := range p.Attached {
			p.Attached[uid] = reuse(c)
		}
		if prev, ok := players[id]; ok {
			*prev = *p
			restored.Players[id] = prev
		}
	}
	*g = *restored
}

func zoneOfInPlay(p *PlayerState, uid string) Zone {
	if _, _, ok := p.FindIn(ZoneActive, uid); ok {
		return ZoneActive
	}
	return ZoneBench
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
