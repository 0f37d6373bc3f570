package referee

import (
	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
)

// stateAccessor exposes a GameState to the rules legality checker.
type stateAccessor struct {
	state *model.GameState
}

var _ rules.GameStateAccessor = stateAccessor{}

func (a stateAccessor) FindCard(cardID string) (rules.CardInfo, bool) {
	card, loc, found := a.state.Locate(cardID)
	if !found {
		return rules.CardInfo{}, false
	}
	info := rules.CardInfo{
		ID:          card.UID,
		Name:        card.Name(),
		OwnerID:     loc.PlayerID,
		Zone:        loc.Zone.String(),
		EnteredTurn: card.EnteredTurn,
		HasTool:     card.AttachedTool != "",
	}
	if loc.Attached {
		info.Zone = "attached"
	}
	if def := card.Definition; def != nil {
		info.Category = string(def.Category)
		info.Stage = def.Stage
		info.EvolvesFrom = def.EvolvesFrom
		info.Subtypes = def.Subtypes
		info.RetreatCost = def.RetreatCost
	}
	for _, c := range card.Conditions {
		info.Conditions = append(info.Conditions, string(c))
	}
	if p, err := a.state.Player(loc.PlayerID); err == nil {
		for _, e := range p.AttachedEnergyCards(card) {
			info.Energy = append(info.Energy, energyType(e))
		}
	}
	return info, true
}

func (a stateAccessor) FindPlayer(playerID string) (rules.PlayerInfo, bool) {
	p, err := a.state.Player(playerID)
	if err != nil {
		return rules.PlayerInfo{}, false
	}
	info := rules.PlayerInfo{
		PlayerID:        playerID,
		BenchSize:       len(p.Bench()),
		HandSize:        len(p.Zone(model.ZoneHand)),
		DeckSize:        len(p.Zone(model.ZoneDeck)),
		PrizesRemaining: p.PrizesRemaining,

		AttachedThisTurn:  p.Usage.Count(interpreter.PlayerUsageKey(model.UsageEnergyAttach)) > 0,
		RetreatedThisTurn: p.Usage.Count(interpreter.PlayerUsageKey(model.UsageRetreat)) > 0,
		SupporterThisTurn: p.Usage.Count(interpreter.PlayerUsageKey(model.UsageSupporter)) > 0,
		StadiumThisTurn:   p.Usage.Count(interpreter.PlayerUsageKey(model.UsageStadium)) > 0,
	}
	if active := p.Active(); active != nil {
		info.ActiveID = active.UID
	}
	return info, true
}

func (a stateAccessor) Turn() rules.TurnState {
	return a.state.Turn
}

func (a stateAccessor) FirstPlayer() string {
	return a.state.FirstPlayer
}

// energyType is the type an energy card provides. Cards without a type
// provide Colorless.
func energyType(card *model.CardInstance) string {
	if card.Definition == nil || card.Definition.EnergyType == "" {
		return rules.Colorless
	}
	return card.Definition.EnergyType
}
