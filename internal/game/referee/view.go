package referee

import (
	"fmt"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/rulebook"
)

// CardView is the public face of a card.
type CardView struct {
	UID         string   `json:"uid"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	HP          int      `json:"hp,omitempty"`
	Damage      int      `json:"damage,omitempty"`
	Energy      []string `json:"energy,omitempty"`
	Tool        string   `json:"tool,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	EvolvedFrom []string `json:"evolved_from,omitempty"`
}

// PlayerView is one player's side of the table. Hidden zones are reduced
// to counts unless the viewer owns them.
type PlayerView struct {
	PlayerID        string     `json:"player_id"`
	Active          *CardView  `json:"active,omitempty"`
	Bench           []CardView `json:"bench"`
	Hand            []CardView `json:"hand,omitempty"`
	HandSize        int        `json:"hand_size"`
	DeckSize        int        `json:"deck_size"`
	DiscardPile     []CardView `json:"discard"`
	LostZone        []CardView `json:"lost_zone,omitempty"`
	PrizesRemaining int        `json:"prizes_remaining"`
}

// MatchView is the state of a match as seen by one viewer.
type MatchView struct {
	MatchID     string       `json:"match_id"`
	Viewer      string       `json:"viewer"`
	TurnPlayer  string       `json:"turn_player"`
	TurnNumber  int          `json:"turn_number"`
	Phase       string       `json:"phase"`
	FirstPlayer string       `json:"first_player,omitempty"`
	Stadium     *CardView    `json:"stadium,omitempty"`
	Players     []PlayerView `json:"players"`
	Winner      string       `json:"winner,omitempty"`
	WinReason   string       `json:"win_reason,omitempty"`
	Pending     string       `json:"pending_chooser,omitempty"`
}

// View renders the match for viewer. Only the viewer's own hand is listed.
func (r *Referee) View(viewer string) MatchView {
	g := r.state
	v := MatchView{
		MatchID:     g.MatchID,
		Viewer:      viewer,
		TurnPlayer:  g.Turn.Player,
		TurnNumber:  g.Turn.Number,
		Phase:       g.Turn.Phase.String(),
		FirstPlayer: g.FirstPlayer,
		Winner:      g.Winner,
		WinReason:   g.WinReason,
	}
	if r.pending != nil {
		v.Pending = r.pending.chooser
	}
	if stadium, _, ok := g.StadiumInPlay(); ok {
		cv := cardView(stadium)
		v.Stadium = &cv
	}
	for _, seat := range g.Seats {
		p := g.Players[seat]
		pv := PlayerView{
			PlayerID:        seat,
			Bench:           cardViews(p.Bench()),
			HandSize:        len(p.Zone(model.ZoneHand)),
			DeckSize:        len(p.Zone(model.ZoneDeck)),
			DiscardPile:     cardViews(p.Zone(model.ZoneDiscard)),
			LostZone:        cardViews(p.Zone(model.ZoneLostZone)),
			PrizesRemaining: p.PrizesRemaining,
		}
		if active := p.Active(); active != nil {
			cv := cardView(active)
			pv.Active = &cv
		}
		if seat == viewer {
			pv.Hand = cardViews(p.Zone(model.ZoneHand))
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

func cardView(c *model.CardInstance) CardView {
	cv := CardView{
		UID:         c.UID,
		Name:        c.Name(),
		Damage:      c.Damage,
		Energy:      c.AttachedEnergy,
		Tool:        c.AttachedTool,
		EvolvedFrom: c.EvolvedFrom,
	}
	if c.Definition != nil {
		cv.Category = string(c.Definition.Category)
		cv.HP = c.Definition.HP
	}
	for _, cond := range c.Conditions {
		cv.Conditions = append(cv.Conditions, string(cond))
	}
	return cv
}

func cardViews(cards []*model.CardInstance) []CardView {
	out := make([]CardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardView(c))
	}
	return out
}

// query answers the read-only actions. It never touches the audit log.
func (r *Referee) query(kind ActionKind, actor string, p payload) (*Result, error) {
	switch kind {
	case ActionQueryRule:
		if r.rules == nil {
			return nil, model.NotFoundf("no rulebook is loaded")
		}
		q, err := p.requireStr("query", "text")
		if err != nil {
			return nil, err
		}
		limit, err := p.integer("limit", rulebook.DefaultLimit)
		if err != nil {
			return nil, err
		}
		found := r.rules.Find(q, limit)
		sections := make([]map[string]any, 0, len(found))
		for _, e := range found {
			sections = append(sections, map[string]any{"section": e.Section, "text": e.Text})
		}
		return ok(fmt.Sprintf("%d rule section(s) found", len(found)), map[string]any{"rules": sections}), nil

	case ActionQueryState:
		// Spectators (no actor) see no hands.
		if actor != "" {
			if _, err := r.state.Player(actor); err != nil {
				return nil, err
			}
		}
		return ok("match state", map[string]any{"state": r.View(actor)}), nil
	}
	return nil, model.Validationf("action %s is not a query", kind)
}
