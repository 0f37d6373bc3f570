// Package testutil builds cards, decks and matches for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// Card definitions shared by tests.
var (
	Zapper = &model.CardDefinition{
		SetCode: "TST", Number: "1", Name: "Zapper", Category: model.CategoryPokemon, Stage: model.StageBasic,
		HP: 60, EnergyType: "Lightning", RetreatCost: 1,
		Attacks: []model.Attack{
			{Name: "Gnaw", Cost: []string{"Colorless"}, Damage: "10"},
			{Name: "Zap", Cost: []string{"Lightning", "Colorless"}, Damage: "60"},
		},
	}
	Voltwing = &model.CardDefinition{
		SetCode: "TST", Number: "2", Name: "Voltwing", Category: model.CategoryPokemon, Stage: model.StageOne,
		EvolvesFrom: "Zapper", HP: 110, EnergyType: "Lightning", RetreatCost: 1,
		Attacks: []model.Attack{{Name: "Thunder Wing", Cost: []string{"Lightning", "Colorless"}, Damage: "90"}},
	}
	Lightning = &model.CardDefinition{
		SetCode: "TST", Number: "3", Name: "Lightning Energy", Category: model.CategoryEnergy,
		Subtypes: []string{model.SubtypeBasicEnergy}, EnergyType: "Lightning",
	}
	NestBall = Trainer("Nest Ball", model.SubtypeItem,
		"Search your deck for a Basic Pokémon and put it onto your Bench. Then, shuffle your deck.")
	LuckyDraw = Trainer("Lucky Draw", model.SubtypeItem, "Draw 2 cards.")
	Mentor    = Trainer("Mentor", model.SubtypeSupporter, "Draw 3 cards.")
)

// Trainer builds a Trainer definition.
func Trainer(name, subtype, text string) *model.CardDefinition {
	return &model.CardDefinition{
		SetCode: "TST", Number: name, Name: name, Category: model.CategoryTrainer,
		Subtypes: []string{subtype}, RulesText: text,
	}
}

// Deck builds a legal 60-card deck for playerID: twenty Zapper, ten
// Voltwing and thirty Lightning Energy, interleaved. Card uids are
// "<player>-NN".
func Deck(t testing.TB, playerID string) *model.Deck {
	t.Helper()
	cards := make([]*model.CardInstance, 0, model.DeckSize)
	for i := 0; i < model.DeckSize; i++ {
		def := Lightning
		switch {
		case i%2 == 1:
		case i%6 == 0:
			def = Voltwing
		default:
			def = Zapper
		}
		cards = append(cards, model.NewCardInstance(fmt.Sprintf("%s-%02d", playerID, i), playerID, def))
	}
	deck, err := model.NewDeck(playerID, cards)
	if err != nil {
		t.Fatalf("build deck for %s: %v", playerID, err)
	}
	return deck
}

// Decks builds one deck per player.
func Decks(t testing.TB, players ...string) []*model.Deck {
	t.Helper()
	decks := make([]*model.Deck, 0, len(players))
	for _, p := range players {
		decks = append(decks, Deck(t, p))
	}
	return decks
}

// FixedSeeds returns a seed source that yields seed-0, seed-1, ...
func FixedSeeds() func() string {
	n := 0
	return func() string {
		s := fmt.Sprintf("seed-%d", n)
		n++
		return s
	}
}

// Give puts a new card with definition def into the hand of playerID.
func Give(g *model.GameState, playerID, uid string, def *model.CardDefinition) *model.CardInstance {
	p := g.Players[playerID]
	c := model.NewCardInstance(uid, playerID, def)
	p.InsertIntoZone(model.ZoneHand, c, -1)
	return c
}

// ZoneUIDs lists the uids of a zone in order.
func ZoneUIDs(g *model.GameState, playerID string, z model.Zone) []string {
	cards := g.Players[playerID].Zone(z)
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.UID
	}
	return out
}
