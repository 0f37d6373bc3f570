package compiler

import (
	"regexp"
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

var (
	reHandSize     = regexp.MustCompile(`(?i)discard (\d+) (?:other )?(?:cards? )?from your hand`)
	reDiscardFirst = regexp.MustCompile(`(?i)discard\s+(\d+)\s+(?:other\s+)?cards?\s+from\s+your\s+hand.*search\s+your\s+deck`)
)

func (c *Compiler) analyzeAbility(p *plan.ExecutionPlan, ab model.Ability) {
	l := strings.ToLower(normalize(ab.Text))
	passive := strings.Contains(l, "prevent") || strings.Contains(l, "as long as") || strings.Contains(l, "whenever") ||
		(!strings.Contains(l, "once during your turn") && !strings.Contains(l, "you may"))
	if passive {
		p.Notes = "passive ability"
		return
	}
	if strings.Contains(l, "active spot") {
		p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
			Kind:         plan.RuleInActive,
			ErrorMessage: "ability " + ab.Name + " can only be used from the Active Spot",
		})
	}
	if strings.Contains(l, "once during your turn") {
		p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
			Kind:         plan.RuleAbilityUsed,
			Params:       plan.RuleParams{AbilityName: ab.Name},
			ErrorMessage: "ability " + ab.Name + " was already used this turn",
		})
	}
	if strings.Contains(l, "once during your game") || strings.Contains(l, "once per game") {
		p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
			Kind:         plan.RuleAbilityUsedGame,
			Params:       plan.RuleParams{AbilityName: ab.Name},
			ErrorMessage: "ability " + ab.Name + " was already used this game",
		})
	}
	c.analyzeEffect(p, ab.Text)
}

func (c *Compiler) analyzeAttack(p *plan.ExecutionPlan, atk model.Attack) {
	p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
		Kind:         plan.RuleInActive,
		ErrorMessage: "only the Active Pokémon can attack",
	})
	if len(atk.Cost) > 0 {
		p.ValidationRules = append(p.ValidationRules, plan.ValidationRule{
			Kind:         plan.RuleEnergyRequirement,
			Params:       plan.RuleParams{Cost: append([]string(nil), atk.Cost...)},
			ErrorMessage: "attached energy does not pay for " + atk.Name,
		})
	}
	if strings.TrimSpace(atk.Damage) != "" {
		p.Steps = append(p.Steps, plan.Step{
			Kind:        plan.KindDamage,
			Action:      plan.ActionCalculateDamage,
			Description: "apply attack damage",
			Params:      plan.Params{BaseDamage: atk.BaseDamage(), Modifiers: ParseDamage(atk.Text)},
		})
	}
	c.analyzeEffect(p, atk.Text)
}

func (c *Compiler) analyzeTrainer(p *plan.ExecutionPlan, def *model.CardDefinition) {
	text := normalize(def.RulesText)
	l := strings.ToLower(text)
	add := func(r plan.ValidationRule) { p.ValidationRules = append(p.ValidationRules, r) }

	add(plan.ValidationRule{Kind: plan.RuleInHand, ErrorMessage: "trainer cards are played from the hand"})
	for _, cond := range ParseConditions(text) {
		switch cond.Kind {
		case CondPrizeComparison:
			add(plan.ValidationRule{
				Kind:         plan.RulePrizeComparison,
				Description:  cond.Text,
				ErrorMessage: "you must have more Prize cards remaining than your opponent",
			})
		case CondTurnLimit:
			add(plan.ValidationRule{
				Kind:         plan.RuleTurnLimit,
				Description:  cond.Text,
				Params:       plan.RuleParams{Value: cond.Value, Condition: cond.Condition},
				ErrorMessage: "this card can only be played during " + cond.Text,
			})
		}
	}

	switch p.EffectSubtype {
	case "Supporter":
		add(plan.ValidationRule{Kind: plan.RuleSupporterUsed, ErrorMessage: "only one Supporter can be played each turn"})
		add(plan.ValidationRule{Kind: plan.RuleFirstTurnRestriction, ErrorMessage: "the first player cannot play a Supporter on their first turn"})
	case "Stadium":
		add(plan.ValidationRule{Kind: plan.RuleStadiumUsed, ErrorMessage: "only one Stadium can be played each turn"})
		add(plan.ValidationRule{Kind: plan.RuleStadiumDuplicate, ErrorMessage: "a Stadium with the same name is already in play"})
	case "Tool":
		add(plan.ValidationRule{Kind: plan.RuleToolAttached, ErrorMessage: "each Pokémon can have only one Pokémon Tool"})
	}

	if m := reHandSize.FindStringSubmatch(l); m != nil {
		n := atoi(m[1])
		add(plan.ValidationRule{
			Kind:         plan.RuleHandSize,
			Params:       plan.RuleParams{MinOtherCards: n},
			ErrorMessage: "not enough other cards in hand",
		})
	}
	if strings.Contains(l, "from your discard pile") && strings.Contains(l, "into your deck") &&
		(strings.Contains(l, "pokémon") || strings.Contains(l, "energy")) {
		add(plan.ValidationRule{
			Kind:         plan.RuleDiscardHasCards,
			Params:       plan.RuleParams{CardTypes: []string{"Pokemon", "Basic Energy"}},
			ErrorMessage: "no matching cards in the discard pile",
		})
	}
	if (strings.Contains(l, "you may discard") || isLostVacuum(l)) &&
		(strings.Contains(l, "stadium") || strings.Contains(l, "tool")) {
		add(plan.ValidationRule{Kind: plan.RuleStadiumOrToolInPlay, ErrorMessage: "there is no Stadium or Pokémon Tool in play"})
	}
	if strings.Contains(l, "onto your bench") || strings.Contains(l, "onto the bench") {
		add(plan.ValidationRule{Kind: plan.RuleBenchSpace, ErrorMessage: "your Bench is full"})
		p.SelectionTarget = "bench"
	}
	if strings.Contains(l, "switch") && strings.Contains(l, "benched pokémon") {
		r := plan.ValidationRule{Kind: plan.RuleBenchHasPokemon, ErrorMessage: "there are no Benched Pokémon"}
		if strings.Contains(l, "opponent's benched") && !reSwitchYour.MatchString(l) {
			r.Params.Condition = "opponent"
		}
		add(r)
	}
	c.analyzeEffect(p, text)
}

func (c *Compiler) analyzeEnergy(p *plan.ExecutionPlan) {
	p.ValidationRules = append(p.ValidationRules,
		plan.ValidationRule{Kind: plan.RuleInHand, ErrorMessage: "energy is attached from the hand"},
		plan.ValidationRule{Kind: plan.RuleEnergyAttachmentLimit, ErrorMessage: "energy was already attached from hand this turn"},
	)
	p.Steps = append(p.Steps, plan.Step{
		Kind:        plan.KindAttach,
		Action:      plan.ActionAttachEnergy,
		Description: "attach the energy to a Pokémon",
		Params:      plan.Params{Target: "pokemon"},
	})
}

func isLostVacuum(l string) bool {
	return strings.Contains(l, "only if you put") && strings.Contains(l, "from your hand") &&
		strings.Contains(l, "lost zone") && (strings.Contains(l, "stadium") || strings.Contains(l, "tool"))
}

func isRareCandy(l string) bool {
	return strings.Contains(l, "choose") && strings.Contains(l, "basic pokémon") && strings.Contains(l, "in play") &&
		strings.Contains(l, "stage 2") && strings.Contains(l, "evolve")
}

// stepBuilder collects the steps of one effect text. Indices it hands out
// are absolute plan indices.
type stepBuilder struct {
	base  int
	steps []plan.Step
}

func (b *stepBuilder) add(s plan.Step) int {
	b.steps = append(b.steps, s)
	return b.base + len(b.steps) - 1
}

func (b *stepBuilder) last() []int {
	if len(b.steps) == 0 {
		return nil
	}
	return []int{b.base + len(b.steps) - 1}
}

func (b *stepBuilder) lastAction() plan.Action {
	if len(b.steps) == 0 {
		return ""
	}
	return b.steps[len(b.steps)-1].Action
}

func (b *stepBuilder) has(a plan.Action) bool {
	for _, s := range b.steps {
		if s.Action == a {
			return true
		}
	}
	return false
}

func selectStep(desc string, params plan.Params, deps ...int) plan.Step {
	return plan.Step{Kind: plan.KindSelection, Action: plan.ActionWaitForSelection, Description: desc, Params: params, DependsOn: deps}
}

func queryStep(action plan.Action, desc string, params plan.Params) plan.Step {
	return plan.Step{Kind: plan.KindQuery, Action: action, Description: desc, Params: params}
}

func moveStep(desc, source, target string, deps ...int) plan.Step {
	return plan.Step{
		Kind:        plan.KindMove,
		Action:      plan.ActionMoveCards,
		Description: desc,
		Params:      plan.Params{Source: source, Target: target},
		DependsOn:   deps,
	}
}

// analyzeEffect appends the steps for an effect text to the plan.
func (c *Compiler) analyzeEffect(p *plan.ExecutionPlan, raw string) {
	text := normalize(raw)
	l := strings.ToLower(text)
	clauses, unmatched := ParseActions(text)
	b := &stepBuilder{base: len(p.Steps)}

	lostVacuum := isLostVacuum(l)
	rareCandy := isRareCandy(l)

	preDiscard := 0
	for _, cond := range ParseConditions(text) {
		if cond.Kind == CondPreDiscard {
			preDiscard = cond.Count
		}
	}
	if preDiscard == 0 {
		if m := reDiscardFirst.FindStringSubmatch(l); m != nil {
			preDiscard = atoi(m[1])
		}
	}
	if preDiscard > 0 {
		sel := b.add(selectStep("choose cards to discard from hand",
			plan.Params{Source: "hand", MinCount: preDiscard, MaxCount: preDiscard}))
		b.add(moveStep("discard the chosen cards", "hand", "discard", sel))
	}

	if lostVacuum {
		sel := b.add(selectStep("choose a card from hand to put in the Lost Zone",
			plan.Params{Source: "hand", MinCount: 1, MaxCount: 1}))
		b.add(moveStep("put the chosen card in the Lost Zone", "hand", "lost_zone", sel))
		q := b.add(queryStep(plan.ActionQueryStadiumAndTools, "list Stadiums and Pokémon Tools in play", plan.Params{}))
		sel = b.add(selectStep("choose a Stadium or Pokémon Tool", plan.Params{MinCount: 1, MaxCount: 1}, q))
		b.add(moveStep("put the chosen card in the Lost Zone", "", "lost_zone", sel))
	}

	if rePrizeDamage.MatchString(text) {
		b.add(plan.Step{
			Kind:         plan.KindQuery,
			Action:       plan.ActionQueryOpponentPrizeCount,
			Description:  "count Prize cards the opponent has taken",
			BeforeDamage: true,
		})
	}

	preDiscardDone := false
	searchAttached := false
	revealed := -1
	inPlaySelection := -1

	for _, cl := range clauses {
		start := len(b.steps)
		anchor := b.last()

		switch cl.Kind {
		case ClauseSearch:
			if lostVacuum {
				break
			}
			searchAttached = c.searchSteps(p, b, cl) || searchAttached

		case ClauseDiscard:
			switch {
			case cl.Source == "hand" && cl.Count == preDiscard && preDiscard > 0 && !preDiscardDone:
				preDiscardDone = true
			case cl.Source == "hand" && cl.Count == plan.Unbounded:
				b.add(plan.Step{
					Kind:        plan.KindMove,
					Action:      plan.ActionDiscardFrom,
					Description: "discard the whole hand",
					Params:      plan.Params{Source: "hand", Count: plan.Unbounded},
				})
			case cl.Source == "hand":
				sel := b.add(selectStep("choose cards to discard from hand",
					plan.Params{Source: "hand", MinCount: cl.Count, MaxCount: cl.Count}))
				b.add(moveStep("discard the chosen cards", "hand", "discard", sel))
			default:
				b.add(plan.Step{
					Kind:        plan.KindMove,
					Action:      plan.ActionDiscardFrom,
					Description: "discard " + cl.CardType,
					Params:      plan.Params{Source: cl.Source, CardType: cl.CardType, Count: cl.Count},
				})
			}

		case ClauseDraw:
			switch {
			case cl.Count > 0:
				b.add(plan.Step{
					Kind:        plan.KindDraw,
					Action:      plan.ActionDrawCards,
					Description: "draw cards",
					Params:      plan.Params{Count: cl.Count, BothPlayers: cl.BothPlayers},
				})
			case strings.Contains(cl.ForEach, "prize"):
				q := b.add(queryStep(plan.ActionQueryPrizeCounts, "count remaining Prize cards",
					plan.Params{BothPlayers: cl.BothPlayers}))
				b.add(plan.Step{
					Kind:        plan.KindDraw,
					Action:      plan.ActionDrawCardsByPrizes,
					Description: "draw a card for each remaining Prize card",
					Params:      plan.Params{BothPlayers: cl.BothPlayers},
					DependsOn:   []int{q},
				})
			default:
				unmatched = append(unmatched, cl.Text)
			}

		case ClauseShuffleInto:
			method := "shuffle"
			if cl.ToBottom {
				method = "bottom"
			}
			b.add(plan.Step{
				Kind:        plan.KindShuffle,
				Action:      plan.ActionShuffleHandToBottom,
				Description: "put the hand into the deck",
				Params:      plan.Params{Source: "hand", Target: "deck", BothPlayers: cl.BothPlayers, Method: method},
			})

		case ClauseShuffle:
			if cl.Count == plan.Unbounded && strings.Contains(cl.Target, "hand") {
				b.add(plan.Step{
					Kind:        plan.KindShuffle,
					Action:      plan.ActionShuffleHandToBottom,
					Description: "shuffle the hand into the deck",
					Params:      plan.Params{Source: "hand", Target: "deck", Method: "shuffle"},
				})
				break
			}
			if b.lastAction() == plan.ActionShuffleDeck {
				break
			}
			b.add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleDeck, Description: "shuffle the deck"})

		case ClauseLostZone:
			if lostVacuum {
				break
			}
			if cl.Source != "hand" && cl.Source != "discard" {
				unmatched = append(unmatched, cl.Text)
				break
			}
			sel := b.add(selectStep("choose a card to put in the Lost Zone",
				plan.Params{Source: cl.Source, MinCount: 1, MaxCount: 1}))
			b.add(moveStep("put the chosen card in the Lost Zone", cl.Source, "lost_zone", sel))

		case ClauseLookAt:
			if cl.Count > 0 {
				revealed = b.add(plan.Step{
					Kind:        plan.KindQuery,
					Action:      plan.ActionRevealTopCards,
					Description: "look at the top of the deck",
					Params:      plan.Params{Source: "deck", Count: cl.Count},
				})
			}

		case ClauseReveal:
			if m := reTopN.FindStringSubmatch(cl.Text); m != nil && revealed < 0 {
				revealed = b.add(plan.Step{
					Kind:        plan.KindQuery,
					Action:      plan.ActionRevealTopCards,
					Description: "reveal the top of the deck",
					Params:      plan.Params{Source: "deck", Count: atoi(m[1])},
				})
			}

		case ClauseMove:
			if revealed < 0 {
				unmatched = append(unmatched, cl.Text)
				break
			}
			n := 1
			if m := reUpTo.FindStringSubmatch(cl.Text); m != nil {
				n = atoi(m[1])
			}
			crit := ParseSearchCriteria(cl.Text)
			crit.MinCount, crit.MaxCount, crit.AnyCount = 0, 0, false
			params := plan.Params{Source: "deck", MinCount: 0, MaxCount: n}
			if !crit.Empty() {
				params.Criteria = crit
			}
			sel := b.add(selectStep("choose revealed cards", params, revealed))
			b.add(moveStep("put the chosen cards into place", "deck", cl.Target, sel))
			p.RequiresSelection = true

		case ClauseSelectInPlay:
			if rareCandy {
				break
			}
			q := b.add(queryStep(plan.ActionQueryPokemonInPlay, "list your Pokémon in play", plan.Params{}))
			inPlaySelection = b.add(selectStep("choose a Pokémon in play", plan.Params{MinCount: 1, MaxCount: 1}, q))

		case ClauseMoveToHand:
			q := b.add(queryStep(plan.ActionQueryPokemonInPlay, "list your Pokémon in play", plan.Params{}))
			sel := b.add(selectStep("choose a Pokémon to return to hand", plan.Params{MinCount: 1, MaxCount: 1}, q))
			b.add(plan.Step{
				Kind:        plan.KindMove,
				Action:      plan.ActionMovePokemonToHand,
				Description: "put the chosen Pokémon into the hand",
				Params:      plan.Params{DiscardAttached: cl.DiscardAttached},
				DependsOn:   []int{sel},
			})

		case ClauseHeal:
			b.add(targeted(plan.Step{
				Kind:        plan.KindHeal,
				Action:      plan.ActionHealDamage,
				Description: "heal damage",
				Params:      plan.Params{Count: cl.Count, Target: cl.Target},
			}, inPlaySelection))

		case ClauseMoveDamage:
			b.add(plan.Step{
				Kind:        plan.KindDamageCounts,
				Action:      plan.ActionMoveDamageCounters,
				Description: "move damage counters",
				Params:      plan.Params{Count: cl.Count, Source: cl.Source, Target: cl.Target},
			})

		case ClauseMoveEnergy:
			b.add(targeted(plan.Step{
				Kind:        plan.KindEnergyMove,
				Action:      plan.ActionMoveEnergy,
				Description: "move energy",
				Params:      plan.Params{Count: cl.Count, EnergyType: cl.EnergyType, Source: cl.Source, Target: cl.Target},
			}, inPlaySelection))

		case ClauseDevolve:
			b.add(targeted(plan.Step{
				Kind:        plan.KindDevolve,
				Action:      plan.ActionDevolvePokemon,
				Description: "devolve a Pokémon",
				Params:      plan.Params{Target: cl.Target, Method: cl.Method},
			}, inPlaySelection))

		case ClausePutDamage:
			b.add(targeted(plan.Step{
				Kind:        plan.KindDamage,
				Action:      plan.ActionPutDamageCounters,
				Description: "put damage counters",
				Params:      plan.Params{Count: cl.Count, Target: cl.Target},
			}, inPlaySelection))

		case ClauseDiscardStadium:
			if lostVacuum {
				break
			}
			check := b.add(plan.Step{
				Kind:        plan.KindCheck,
				Action:      plan.ActionCheckStadiumInPlay,
				Description: "check for a Stadium in play",
				Optional:    true,
			})
			b.add(plan.Step{
				Kind:        plan.KindMove,
				Action:      plan.ActionDiscardStadium,
				Description: "discard the Stadium in play",
				DependsOn:   []int{check},
				Optional:    true,
				SkipIf:      plan.SkipNoStadium,
			})

		case ClauseSwitch:
			c.switchSteps(b, cl)

		case ClauseAttach:
			if searchAttached && cl.Source != "hand" {
				break
			}
			c.attachSteps(b, cl)
		}

		if cl.BeforeDamage {
			for i := start; i < len(b.steps); i++ {
				b.steps[i].BeforeDamage = true
			}
		}
		if cl.Conditional && len(anchor) > 0 {
			for i := start; i < len(b.steps); i++ {
				s := &b.steps[i]
				s.Conditional = true
				if s.SkipIf == "" {
					s.SkipIf = plan.SkipConditionFailed
				}
				if len(s.DependsOn) == 0 {
					s.DependsOn = append([]int(nil), anchor...)
				}
			}
		}
	}

	if strings.Contains(l, "your turn ends") {
		b.add(plan.Step{
			Kind:        plan.KindEndTurn,
			Action:      plan.ActionEndTurn,
			Description: "end the turn",
			DependsOn:   lastOrPlan(b, p),
		})
	}

	if p.EffectSubtype == "Stadium" {
		b.add(plan.Step{Kind: plan.KindMove, Action: plan.ActionPlayStadium, Description: "put the Stadium into play"})
	}

	if rareCandy {
		basic := b.add(selectStep("choose a Basic Pokémon in play",
			plan.Params{Source: "in_play", MinCount: 1, MaxCount: 1, Criteria: &plan.Criteria{CardType: "Pokemon", Stage: model.StageBasic}}))
		stage2 := b.add(selectStep("choose a Stage 2 card from hand",
			plan.Params{Source: "hand", MinCount: 1, MaxCount: 1, Criteria: &plan.Criteria{CardType: "Pokemon", Stage: model.StageTwo}}))
		b.add(plan.Step{
			Kind:        plan.KindMove,
			Action:      plan.ActionEvolveWithRareCandy,
			Description: "evolve the Basic Pokémon into the Stage 2",
			DependsOn:   []int{basic, stage2},
		})
		unmatched = dropMatching(unmatched, "evolve", "stage 2")
	}

	if p.EffectType == plan.EffectTrainer && p.EffectSubtype == "Tool" && len(b.steps) == 0 {
		q := b.add(queryStep(plan.ActionQueryPokemonInPlay, "list your Pokémon without a Tool",
			plan.Params{ExcludeToolAttached: true}))
		sel := b.add(selectStep("choose a Pokémon for the Tool", plan.Params{MinCount: 1, MaxCount: 1}, q))
		b.add(plan.Step{
			Kind:        plan.KindAttach,
			Action:      plan.ActionAttachTool,
			Description: "attach the Tool",
			Params:      plan.Params{Target: "pokemon"},
			DependsOn:   []int{sel},
		})
	}

	if p.EffectType == plan.EffectTrainer && p.EffectSubtype != "Stadium" && p.EffectSubtype != "Tool" {
		b.add(plan.Step{
			Kind:        plan.KindMove,
			Action:      plan.ActionDiscardTrainer,
			Description: "put the Trainer card in the discard pile",
			DependsOn:   b.last(),
		})
	}

	if b.has(plan.ActionWaitForSelection) {
		p.RequiresSelection = true
	}
	p.Unsupported = append(p.Unsupported, unmatched...)
	placeSteps(p, b.steps)
}

// searchSteps emits the query, selection and move of a search clause. It
// reports whether the found cards are attached rather than moved.
func (c *Compiler) searchSteps(p *plan.ExecutionPlan, b *stepBuilder, cl Clause) bool {
	crit := plan.Criteria{}
	if cl.Criteria != nil {
		crit = *cl.Criteria
	}
	maxCount := crit.MaxCount
	if maxCount == 0 {
		maxCount = 1
	}
	crit.MinCount, crit.MaxCount, crit.AnyCount = 0, 0, false

	if !p.RequiresSelection {
		p.RequiresSelection = true
		p.SelectionSource = cl.Source
		p.SelectionCriteria = &crit
		p.MinSelection, p.MaxSelection = 0, maxCount
		if p.SelectionTarget == "" {
			p.SelectionTarget = cl.Target
		}
	}

	query := plan.ActionQueryDeckCandidates
	if cl.Source == "discard" {
		query = plan.ActionQueryDiscardCandidates
	}
	cp := crit
	q := b.add(queryStep(query, "find matching cards in the "+cl.Source, plan.Params{Source: cl.Source, Criteria: &cp}))
	sel := b.add(plan.Step{
		Kind:        plan.KindSelection,
		Action:      plan.ActionWaitForSelection,
		Description: "choose cards from the " + cl.Source,
		Params:      plan.Params{Source: cl.Source, MinCount: 0, MaxCount: maxCount},
		DependsOn:   []int{q},
		Optional:    true,
	})

	l := strings.ToLower(cl.Text)
	switch {
	case cl.Source == "discard" && cl.Target == "deck":
		b.add(plan.Step{
			Kind:        plan.KindMove,
			Action:      plan.ActionMoveCardsFromDiscardDeck,
			Description: "shuffle the chosen cards into the deck",
			Params:      plan.Params{Source: "discard", Target: "deck"},
			DependsOn:   []int{sel},
		})
		b.add(plan.Step{Kind: plan.KindShuffle, Action: plan.ActionShuffleDeck, Description: "shuffle the deck"})
		return false
	case strings.Contains(l, "attach"):
		b.add(plan.Step{
			Kind:        plan.KindAttach,
			Action:      plan.ActionAttachEnergyCards,
			Description: "attach the chosen energy",
			Params:      plan.Params{Source: cl.Source, Target: "pokemon", AllowMultiTargets: true},
			DependsOn:   []int{sel},
			Optional:    true,
		})
		return true
	}
	target := cl.Target
	if p.SelectionTarget == "bench" {
		target = "bench"
	}
	b.add(moveStep("put the chosen cards into place", cl.Source, target, sel))
	return false
}

func (c *Compiler) switchSteps(b *stepBuilder, cl Clause) {
	switch cl.Target {
	case "opponent_bench", "opponent_active":
		params := plan.Params{MinCount: 1, MaxCount: 1}
		if cl.Target == "opponent_active" {
			params.Method = "opponent_chooses"
		}
		q := b.add(queryStep(plan.ActionQueryOpponentBench, "list the opponent's Benched Pokémon", plan.Params{}))
		sel := b.add(selectStep("choose the new opponent Active Pokémon", params, q))
		b.add(plan.Step{
			Kind:        plan.KindMove,
			Action:      plan.ActionSwitchOpponentPokemon,
			Description: "switch the opponent's Active Pokémon",
			DependsOn:   []int{sel},
		})
	default:
		q := b.add(queryStep(plan.ActionQueryBench, "list your Benched Pokémon", plan.Params{}))
		sel := b.add(selectStep("choose the new Active Pokémon", plan.Params{MinCount: 1, MaxCount: 1}, q))
		b.add(plan.Step{
			Kind:        plan.KindMove,
			Action:      plan.ActionSwitchPokemon,
			Description: "switch your Active Pokémon",
			DependsOn:   []int{sel},
		})
	}
}

func (c *Compiler) attachSteps(b *stepBuilder, cl Clause) {
	count := cl.Count
	if count == 0 {
		count = 1
	}
	var crit *plan.Criteria
	if cl.Criteria != nil && !cl.Criteria.Empty() {
		cp := *cl.Criteria
		cp.MinCount, cp.MaxCount, cp.AnyCount = 0, 0, false
		crit = &cp
	} else {
		crit = &plan.Criteria{CardType: "Energy"}
	}

	var sel int
	if cl.Source == "hand" {
		sel = b.add(selectStep("choose energy from hand",
			plan.Params{Source: "hand", MinCount: 0, MaxCount: count, Criteria: crit}))
	} else {
		query := plan.ActionQueryDeckCandidates
		if cl.Source == "discard" {
			query = plan.ActionQueryDiscardCandidates
		}
		q := b.add(queryStep(query, "find energy in the "+cl.Source, plan.Params{Source: cl.Source, Criteria: crit}))
		sel = b.add(selectStep("choose energy to attach", plan.Params{Source: cl.Source, MinCount: 0, MaxCount: count}, q))
	}
	b.add(plan.Step{
		Kind:        plan.KindAttach,
		Action:      plan.ActionAttachEnergyCards,
		Description: "attach the chosen energy",
		Params:      plan.Params{Source: cl.Source, Target: cl.Target, AllowMultiTargets: cl.AllowMultiTargets},
		DependsOn:   []int{sel},
		Optional:    cl.Optional,
	})
}

// targeted makes a step act on an earlier in-play selection when there is one.
func targeted(s plan.Step, selection int) plan.Step {
	if selection >= 0 {
		s.DependsOn = []int{selection}
	}
	return s
}

func lastOrPlan(b *stepBuilder, p *plan.ExecutionPlan) []int {
	if deps := b.last(); deps != nil {
		return deps
	}
	if len(p.Steps) > 0 {
		return []int{len(p.Steps) - 1}
	}
	return nil
}

func dropMatching(list []string, words ...string) []string {
	var out []string
	for _, s := range list {
		l := strings.ToLower(s)
		drop := false
		for _, w := range words {
			if strings.Contains(l, w) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, s)
		}
	}
	return out
}

// placeSteps appends new steps to the plan. Steps flagged BeforeDamage are
// moved ahead of an existing damage step and every dependency index is
// rewritten to follow the move.
func placeSteps(p *plan.ExecutionPlan, steps []plan.Step) {
	base := len(p.Steps)
	dmg := p.DamageStepIndex()

	var before, regular []int
	for i, s := range steps {
		if s.BeforeDamage {
			before = append(before, base+i)
		} else {
			regular = append(regular, base+i)
		}
	}
	if dmg < 0 || len(before) == 0 {
		p.Steps = append(p.Steps, steps...)
		return
	}

	var order []int
	for i := 0; i < dmg; i++ {
		order = append(order, i)
	}
	order = append(order, before...)
	for i := dmg; i < base; i++ {
		order = append(order, i)
	}
	order = append(order, regular...)

	remap := make(map[int]int, len(order))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = newIdx
	}
	stepAt := func(i int) plan.Step {
		if i < base {
			return p.Steps[i]
		}
		return steps[i-base]
	}

	out := make([]plan.Step, 0, len(order))
	for _, oldIdx := range order {
		s := stepAt(oldIdx)
		if len(s.DependsOn) > 0 {
			deps := make([]int, len(s.DependsOn))
			for j, d := range s.DependsOn {
				deps[j] = remap[d]
			}
			s.DependsOn = deps
		}
		out = append(out, s)
	}
	p.Steps = out
}
