package interpreter

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/compiler"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

var (
	legacyUpTo   = regexp.MustCompile(`(?i)up to (\d+)`)
	legacyTopN   = regexp.MustCompile(`(?i)top (\d+)`)
	legacyDraw   = regexp.MustCompile(`(?i)draw (\d+)`)
	legacyDiscNo = regexp.MustCompile(`(?i)discard (\d+)`)
)

// LegacySource runs raw rule text through a small keyword vocabulary. The
// first matching phrase decides the whole effect and at most one selection
// is ever requested. It is meant to sit behind CompiledSource in a Chain.
type LegacySource struct {
	logger *zap.Logger
}

// NewLegacySource creates a legacy text source.
func NewLegacySource(logger *zap.Logger) *LegacySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacySource{logger: logger}
}

// Lookup implements EffectSource.
func (s *LegacySource) Lookup(_ context.Context, def *model.CardDefinition, effectName string) (Effect, bool) {
	p := &plan.ExecutionPlan{
		CardID:   def.ID(),
		CardName: def.Name,
		SetCode:  def.SetCode,
		Number:   def.Number,
		Status:   plan.StatusDraft,
		Notes:    "legacy text execution",
	}

	var text string
	switch def.Category {
	case model.CategoryTrainer:
		if !strings.EqualFold(def.Name, effectName) {
			return Effect{}, false
		}
		p.EffectType, p.EffectName = plan.EffectTrainer, def.Name
		p.ValidationRules = []plan.ValidationRule{{Kind: plan.RuleInHand, ErrorMessage: "trainer cards are played from the hand"}}
		text = def.RulesText
	case model.CategoryPokemon:
		if ab, ok := def.FindAbility(effectName); ok {
			p.EffectType, p.EffectName = plan.EffectAbility, ab.Name
			text = ab.Text
			l := strings.ToLower(text)
			if strings.Contains(l, "once during your turn") {
				p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
					Kind:         plan.RuleAbilityUsed,
					Params:       plan.RuleParams{AbilityName: ab.Name},
					ErrorMessage: ab.Name + " already used this turn",
				})
			}
			if strings.Contains(l, "once during your game") || strings.Contains(l, "once per game") {
				p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
					Kind:         plan.RuleAbilityUsedGame,
					Params:       plan.RuleParams{AbilityName: ab.Name},
					ErrorMessage: ab.Name + " already used this game",
				})
			}
			if strings.Contains(l, "if this pokémon is in the active spot") {
				p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
					Kind:         plan.RuleInActive,
					ErrorMessage: ab.Name + " requires this Pokémon to be Active",
				})
			}
			break
		}
		atk, ok := def.FindAttack(effectName)
		if !ok {
			return Effect{}, false
		}
		p.EffectType, p.EffectName = plan.EffectAttack, atk.Name
		p.ValidationRules = []plan.ValidationRule{{Kind: plan.RuleInActive, ErrorMessage: "only the Active Pokémon can attack"}}
		text = atk.Text
		if strings.TrimSpace(atk.Damage) != "" {
			p.Steps = append(p.Steps, plan.Step{
				Kind:        plan.KindDamage,
				Action:      plan.ActionCalculateDamage,
				Description: "apply attack damage",
				Params:      plan.Params{BaseDamage: atk.BaseDamage(), Modifiers: compiler.ParseDamage(atk.Text)},
			})
		}
	default:
		return Effect{}, false
	}

	steps, matched := legacySteps(text, len(p.Steps))
	p.Steps = append(p.Steps, steps...)
	if !matched && strings.TrimSpace(text) != "" {
		p.Unsupported = []string{strings.TrimSpace(text)}
	}
	if p.EffectType == plan.EffectTrainer {
		switch {
		case def.HasSubtype(model.SubtypeStadium):
			p.Steps = append(p.Steps, plan.Step{Kind: plan.KindMove, Action: plan.ActionPlayStadium, Description: "put the Stadium into play"})
		case def.HasSubtype(model.SubtypeTool):
		default:
			p.Steps = append(p.Steps, plan.Step{Kind: plan.KindMove, Action: plan.ActionDiscardTrainer, Description: "put the Trainer card in the discard pile"})
		}
	}
	for _, st := range p.Steps {
		if st.Action == plan.ActionWaitForSelection {
			p.RequiresSelection = true
		}
	}

	s.logger.Debug("legacy effect",
		zap.String("card_id", p.CardID),
		zap.String("effect", p.EffectName),
		zap.Int("steps", len(p.Steps)),
		zap.Bool("matched", matched),
	)
	return Effect{Plan: p, Source: SourceLegacy}, true
}

// legacySteps translates the first recognised phrase of text into steps
// numbered from base.
func legacySteps(text string, base int) ([]plan.Step, bool) {
	l := strings.ToLower(text)
	var steps []plan.Step
	add := func(s plan.Step) int {
		steps = append(steps, s)
		return base + len(steps) - 1
	}

	switch {
	case strings.Contains(l, "search your deck"):
		maxCount := 1
		if m := legacyUpTo.FindStringSubmatch(l); m != nil {
			maxCount, _ = strconv.Atoi(m[1])
		}
		crit := compiler.ParseSearchCriteria(text)
		crit.MinCount, crit.MaxCount, crit.AnyCount = 0, 0, false
		q := add(plan.Step{Kind: plan.KindQuery, Action: plan.ActionQueryDeckCandidates, Params: plan.Params{Source: "deck", Criteria: crit}})
		sel := add(plan.Step{
			Kind:      plan.KindSelection,
			Action:    plan.ActionWaitForSelection,
			Params:    plan.Params{Source: "deck", MinCount: 0, MaxCount: maxCount},
			DependsOn: []int{q},
			Optional:  true,
		})
		target := ""
		switch {
		case strings.Contains(l, "onto your bench"):
			target = "bench"
		case strings.Contains(l, "into your hand"):
			target = "hand"
		}
		if target != "" {
			add(plan.Step{Kind: plan.KindMove, Action: plan.ActionMoveCards, Params: plan.Params{Source: "deck", Target: target}, DependsOn: []int{sel}})
		}
		if strings.Contains(l, "shuffle") {
			add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleDeck})
		}

	case strings.Contains(l, "look at the top"), strings.Contains(l, "reveal the top"):
		m := legacyTopN.FindStringSubmatch(l)
		if m == nil {
			return nil, false
		}
		n, _ := strconv.Atoi(m[1])
		rev := add(plan.Step{Kind: plan.KindQuery, Action: plan.ActionRevealTopCards, Params: plan.Params{Source: "deck", Count: n}})
		if strings.Contains(l, "put it into your hand") {
			var crit *plan.Criteria
			if strings.Contains(l, "item") {
				crit = &plan.Criteria{CardType: "Trainer", Subtype: "Item"}
			}
			sel := add(plan.Step{
				Kind:      plan.KindSelection,
				Action:    plan.ActionWaitForSelection,
				Params:    plan.Params{Source: "deck", MinCount: 0, MaxCount: 1, Criteria: crit},
				DependsOn: []int{rev},
				Optional:  true,
			})
			add(plan.Step{Kind: plan.KindMove, Action: plan.ActionMoveCards, Params: plan.Params{Source: "deck", Target: "hand"}, DependsOn: []int{sel}})
			add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleDeck})
		}

	case strings.Contains(l, "discard") && strings.Contains(l, "from your hand"):
		n := 1
		if m := legacyDiscNo.FindStringSubmatch(l); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		sel := add(plan.Step{Kind: plan.KindSelection, Action: plan.ActionWaitForSelection, Params: plan.Params{Source: "hand", MinCount: n, MaxCount: n}})
		add(plan.Step{Kind: plan.KindMove, Action: plan.ActionMoveCards, Params: plan.Params{Source: "hand", Target: "discard"}, DependsOn: []int{sel}})

	case strings.Contains(l, "shuffle"):
		if strings.Contains(l, "hand") && strings.Contains(l, "into your deck") {
			add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleHandToBottom, Params: plan.Params{Source: "hand", Target: "deck", Method: "shuffle"}})
		} else {
			add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleDeck})
		}

	case strings.Contains(l, "draw"):
		if m := legacyDraw.FindStringSubmatch(l); m != nil {
			n, _ := strconv.Atoi(m[1])
			add(plan.Step{Kind: plan.KindDraw, Action: plan.ActionDrawCards, Params: plan.Params{Count: n}})
		} else if strings.Contains(l, "for each") {
			add(plan.Step{Kind: plan.KindDraw, Action: plan.ActionDrawCardsByPrizes})
		} else {
			add(plan.Step{Kind: plan.KindDraw, Action: plan.ActionDrawCards, Params: plan.Params{Count: 1}})
		}

	default:
		return nil, false
	}
	return steps, true
}
