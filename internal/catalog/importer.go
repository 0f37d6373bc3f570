package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// Record is one card row of an external card dump, before it is mapped
// onto a definition.
type Record struct {
	Name        string
	Supertype   string
	Subtypes    []string
	HP          int
	Types       []string
	EvolvesFrom string
	RetreatCost int
	Rules       []string
	SetCode     string
	Number      string
	Abilities   []model.Ability
	Attacks     []model.Attack
}

var stages = []string{model.StageBasic, model.StageOne, model.StageTwo}

// Definition maps the record onto a card definition. The stage is taken
// from the subtypes of Pokémon cards.
func (r Record) Definition() (*model.CardDefinition, error) {
	if r.SetCode == "" || r.Number == "" {
		return nil, fmt.Errorf("%q has no set code or number", r.Name)
	}
	def := &model.CardDefinition{
		SetCode:     r.SetCode,
		Number:      r.Number,
		Name:        r.Name,
		HP:          r.HP,
		Subtypes:    r.Subtypes,
		EvolvesFrom: r.EvolvesFrom,
		RetreatCost: r.RetreatCost,
		RulesText:   strings.Join(r.Rules, " "),
		Abilities:   r.Abilities,
		Attacks:     r.Attacks,
	}
	switch strings.ToLower(strings.ReplaceAll(r.Supertype, "é", "e")) {
	case "pokemon":
		def.Category = model.CategoryPokemon
		for _, s := range stages {
			if containsFold(r.Subtypes, s) {
				def.Stage = s
				break
			}
		}
		if len(r.Types) > 0 {
			def.EnergyType = r.Types[0]
		}
	case "trainer":
		def.Category = model.CategoryTrainer
	case "energy":
		def.Category = model.CategoryEnergy
		if containsFold(r.Subtypes, model.SubtypeBasicEnergy) {
			def.EnergyType = strings.TrimSuffix(r.Name, " Energy")
			def.EnergyType = strings.TrimPrefix(def.EnergyType, "Basic ")
		}
	default:
		return nil, fmt.Errorf("%s-%s: unknown supertype %q", r.SetCode, r.Number, r.Supertype)
	}
	return def, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Import maps records onto a catalog. Rows that cannot be mapped are
// skipped and logged; a later row with the id of an earlier one replaces
// it, since dumps repeat reprints.
func Import(records []Record, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]int, len(records))
	var defs []*model.CardDefinition
	skipped := 0
	for _, r := range records {
		def, err := r.Definition()
		if err != nil {
			skipped++
			logger.Warn("skipping card", zap.Error(err))
			continue
		}
		if i, ok := byID[def.ID()]; ok {
			defs[i] = def
			continue
		}
		byID[def.ID()] = len(defs)
		defs = append(defs, def)
	}
	logger.Info("cards imported",
		zap.Int("records", len(records)),
		zap.Int("cards", len(defs)),
		zap.Int("skipped", skipped),
	)
	return New(defs)
}

// Write encodes the catalog in the document form Parse reads.
func (c *Catalog) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{Cards: c.All()}); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return enc.Close()
}

// ReadCSV reads records from a CSV export with a header row. Columns are
// matched by name: name, supertype, set_code and number are required;
// subtypes, hp, types, evolves_from, retreat_cost, rules, abilities and
// attacks are optional. List cells are separated by ";", abilities and
// attacks are JSON arrays.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "supertype", "set_code", "number"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV has no %q column", required)
		}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		rec := Record{
			Name:        field("name"),
			Supertype:   field("supertype"),
			Subtypes:    splitList(field("subtypes")),
			Types:       splitList(field("types")),
			EvolvesFrom: field("evolves_from"),
			Rules:       splitList(field("rules")),
			SetCode:     field("set_code"),
			Number:      field("number"),
		}
		if rec.HP, err = atoi(field("hp")); err != nil {
			return nil, fmt.Errorf("line %d: hp: %w", line, err)
		}
		if rec.RetreatCost, err = atoi(field("retreat_cost")); err != nil {
			return nil, fmt.Errorf("line %d: retreat_cost: %w", line, err)
		}
		if err := decodeJSONList(field("abilities"), &rec.Abilities); err != nil {
			return nil, fmt.Errorf("line %d: abilities: %w", line, err)
		}
		if err := decodeJSONList(field("attacks"), &rec.Attacks); err != nil {
			return nil, fmt.Errorf("line %d: attacks: %w", line, err)
		}
		records = append(records, rec)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func decodeJSONList(s string, into any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), into)
}

// Querier is the part of a pgx pool or connection the importer needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const cardsQuery = `
SELECT name, supertype, COALESCE(subtypes, '{}'), COALESCE(hp::text, ''),
       COALESCE(rules, '{}'), set_ptcgo_code, number,
       COALESCE(abilities::text, ''), COALESCE(attacks::text, '')
FROM ptcg_cards
WHERE set_ptcgo_code IS NOT NULL AND number IS NOT NULL
ORDER BY set_ptcgo_code, number`

// QueryPostgres reads records from a ptcg_cards table.
func QueryPostgres(ctx context.Context, q Querier) ([]Record, error) {
	rows, err := q.Query(ctx, cardsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var hp, abilities, attacks string
		if err := rows.Scan(&rec.Name, &rec.Supertype, &rec.Subtypes, &hp,
			&rec.Rules, &rec.SetCode, &rec.Number, &abilities, &attacks); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		if rec.HP, err = atoi(hp); err != nil {
			return nil, fmt.Errorf("%s-%s: hp: %w", rec.SetCode, rec.Number, err)
		}
		if err := decodeJSONList(abilities, &rec.Abilities); err != nil {
			return nil, fmt.Errorf("%s-%s: abilities: %w", rec.SetCode, rec.Number, err)
		}
		if err := decodeJSONList(attacks, &rec.Attacks); err != nil {
			return nil, fmt.Errorf("%s-%s: attacks: %w", rec.SetCode, rec.Number, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return records, nil
}
