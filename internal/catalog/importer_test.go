package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

const sampleCSV = `name,supertype,subtypes,hp,types,evolves_from,retreat_cost,rules,set_code,number,abilities,attacks
Pikachu,Pokémon,Basic,60,Lightning,,1,,SVI,62,,"[{""name"":""Gnaw"",""cost"":[""Colorless""],""damage"":""10"",""text"":""""}]"
Raichu,Pokémon,Stage 1,120,Lightning,Pikachu,1,,SVI,63,,"[{""name"":""Thunderbolt"",""cost"":[""Lightning"",""Lightning"",""Colorless""],""damage"":""140"",""text"":""Discard all Energy from this Pokémon.""}]"
Basic Lightning Energy,Energy,Basic,,,,,,SVE,4,,
Nest Ball,Trainer,Item,,,,,"Search your deck for a Basic Pokémon and put it onto your Bench.;Then, shuffle your deck.",SVI,181,,
Mystery Box,Relic,,,,,,,SVI,999,,
Pikachu,Pokémon,Basic,70,Lightning,,1,,SVI,62,,
`

func TestReadCSVAndImport(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 6)
	require.Len(t, records[0].Attacks, 1)
	assert.Equal(t, []string{"Colorless"}, records[0].Attacks[0].Cost)

	c, err := Import(records, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	pikachu, ok := c.Get("SVI-62")
	require.True(t, ok)
	assert.Equal(t, 70, pikachu.HP, "the later reprint wins")
	assert.True(t, pikachu.IsBasicPokemon())

	raichu, ok := c.Get("SVI-63")
	require.True(t, ok)
	assert.Equal(t, model.StageOne, raichu.Stage)
	assert.Equal(t, "Pikachu", raichu.EvolvesFrom)
	assert.Equal(t, "Lightning", raichu.EnergyType)

	energy, ok := c.Get("SVE-4")
	require.True(t, ok)
	assert.True(t, energy.IsBasicEnergy())
	assert.Equal(t, "Lightning", energy.EnergyType)

	nest, ok := c.Get("SVI-181")
	require.True(t, ok)
	assert.Equal(t, model.CategoryTrainer, nest.Category)
	assert.True(t, nest.HasSubtype(model.SubtypeItem))
	assert.Equal(t, "Search your deck for a Basic Pokémon and put it onto your Bench. Then, shuffle your deck.", nest.RulesText)

	_, ok = c.Get("SVI-999")
	assert.False(t, ok)
}

func TestWriteRoundTripsThroughParse(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	c, err := Import(records, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	parsed, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, c.All(), parsed.All())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,number\nPikachu,62\n"))
	assert.ErrorContains(t, err, "supertype")

	_, err = ReadCSV(strings.NewReader("name,supertype,set_code,number,hp\nPikachu,Pokémon,SVI,62,sixty\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadCSV(strings.NewReader("name,supertype,set_code,number,attacks\nPikachu,Pokémon,SVI,62,[oops\n"))
	assert.ErrorContains(t, err, "attacks")
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

func TestQueryPostgresReportsQueryErrors(t *testing.T) {
	_, err := QueryPostgres(context.Background(), failingQuerier{})
	assert.ErrorContains(t, err, "connection refused")
}
