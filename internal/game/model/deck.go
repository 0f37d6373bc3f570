package model

// DeckSize is the exact number of cards in a legal deck.
const DeckSize = 60

// Deck is a validated list of card instances owned by one player.
type Deck struct {
	PlayerID string
	Cards    []*CardInstance
}

// NewDeck validates and builds a deck: exactly 60 cards with pairwise-unique ids.
func NewDeck(playerID string, cards []*CardInstance) (*Deck, error) {
	if len(cards) != DeckSize {
		return nil, Validationf("deck for %s must contain exactly %d cards, received %d", playerID, DeckSize, len(cards))
	}
	seen := make(map[string]struct{}, len(cards))
	for _, card := range cards {
		if card == nil || card.UID == "" {
			return nil, Validationf("deck for %s contains a card without uid", playerID)
		}
		if _, dup := seen[card.UID]; dup {
			return nil, Validationf("deck for %s has duplicate card uid %s", playerID, card.UID)
		}
		seen[card.UID] = struct{}{}
	}

	owned := make([]*CardInstance, len(cards))
	for i, card := range cards {
		card.OwnerID = playerID
		owned[i] = card
	}
	return &Deck{PlayerID: playerID, Cards: owned}, nil
}

// HasBasicPokemon reports whether the deck can produce an opening Active Pokémon.
func (d *Deck) HasBasicPokemon() bool {
	for _, card := range d.Cards {
		if card.Definition != nil && card.Definition.IsBasicPokemon() {
			return true
		}
	}
	return false
}
