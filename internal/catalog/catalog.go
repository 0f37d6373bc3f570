// Package catalog loads card definitions and deck lists from YAML and turns
// deck lists into decks of freshly identified card instances.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// MaxCopies is the most copies of one card name a deck may hold. Basic
// Energy is exempt.
const MaxCopies = 4

// Catalog indexes card definitions by "<set>-<number>".
type Catalog struct {
	defs  map[string]*model.CardDefinition
	order []string
}

type catalogFile struct {
	Cards []*model.CardDefinition `yaml:"cards"`
}

// New builds a catalog. Definitions without set code or number are rejected,
// as are duplicate ids.
func New(defs []*model.CardDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*model.CardDefinition, len(defs))}
	for i, d := range defs {
		if d == nil || d.SetCode == "" || d.Number == "" {
			return nil, fmt.Errorf("card %d: set_code and number are required", i)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("card %s: name is required", d.ID())
		}
		if _, dup := c.defs[d.ID()]; dup {
			return nil, fmt.Errorf("duplicate card %s", d.ID())
		}
		c.defs[d.ID()] = d
		c.order = append(c.order, d.ID())
	}
	return c, nil
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Cards)
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*model.CardDefinition, bool) {
	d, ok := c.defs[strings.TrimSpace(id)]
	return d, ok
}

// ByName returns every definition named name, in catalog order.
func (c *Catalog) ByName(name string) []*model.CardDefinition {
	var out []*model.CardDefinition
	for _, id := range c.order {
		if strings.EqualFold(c.defs[id].Name, name) {
			out = append(out, c.defs[id])
		}
	}
	return out
}

// All returns the definitions in catalog order.
func (c *Catalog) All() []*model.CardDefinition {
	out := make([]*model.CardDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Entry is one line of a deck list.
type Entry struct {
	Card  string `yaml:"card" json:"card"`
	Count int    `yaml:"count" json:"count"`
}

// DeckList names the cards of a deck by catalog id.
type DeckList struct {
	Name  string  `yaml:"name,omitempty" json:"name,omitempty"`
	Cards []Entry `yaml:"cards" json:"cards"`
}

// ParseDeckList decodes a deck list document.
func ParseDeckList(data []byte) (*DeckList, error) {
	var l DeckList
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse deck list: %w", err)
	}
	return &l, nil
}

// LoadDeckList reads a deck list file.
func LoadDeckList(path string) (*DeckList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck list: %w", err)
	}
	return ParseDeckList(data)
}

// Size returns the total card count of the list.
func (l *DeckList) Size() int {
	n := 0
	for _, e := range l.Cards {
		n += e.Count
	}
	return n
}

// Validate checks a deck list against the catalog and returns every problem
// found, sorted. An empty result means the list builds a legal deck.
func (c *Catalog) Validate(l *DeckList) []string {
	var problems []string
	byName := make(map[string]int)
	basic := false
	for i, e := range l.Cards {
		if e.Count <= 0 {
			problems = append(problems, fmt.Sprintf("line %d (%s): count must be positive", i+1, e.Card))
			continue
		}
		def, ok := c.Get(e.Card)
		if !ok {
			problems = append(problems, fmt.Sprintf("line %d: unknown card %q", i+1, e.Card))
			continue
		}
		if def.IsBasicPokemon() {
			basic = true
		}
		if !isBasicEnergy(def) {
			byName[def.Name] += e.Count
		}
	}
	for name, n := range byName {
		if n > MaxCopies {
			problems = append(problems, fmt.Sprintf("%d copies of %s, at most %d allowed", n, name, MaxCopies))
		}
	}
	if size := l.Size(); size != model.DeckSize {
		problems = append(problems, fmt.Sprintf("deck has %d cards, needs exactly %d", size, model.DeckSize))
	}
	if !basic {
		problems = append(problems, "deck has no Basic Pokémon")
	}
	sort.Strings(problems)
	return problems
}

// BuildDeck validates l and creates a deck for playerID. Every card gets a
// fresh uuid.
func (c *Catalog) BuildDeck(playerID string, l *DeckList) (*model.Deck, error) {
	if problems := c.Validate(l); len(problems) > 0 {
		return nil, model.Validationf("invalid deck for %s: %s", playerID, strings.Join(problems, "; "))
	}
	cards := make([]*model.CardInstance, 0, model.DeckSize)
	for _, e := range l.Cards {
		def, _ := c.Get(e.Card)
		for i := 0; i < e.Count; i++ {
			cards = append(cards, model.NewCardInstance(uuid.NewString(), playerID, def))
		}
	}
	return model.NewDeck(playerID, cards)
}

func isBasicEnergy(def *model.CardDefinition) bool {
	return def.Category == model.CategoryEnergy && def.HasSubtype(model.SubtypeBasicEnergy)
}
