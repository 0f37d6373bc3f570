package compiler

import (
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// ClauseKind classifies one recognised clause of rule text.
type ClauseKind string

const (
	ClauseSearch         ClauseKind = "search"
	ClauseDraw           ClauseKind = "draw"
	ClauseLostZone       ClauseKind = "lost_zone"
	ClauseLookAt         ClauseKind = "look_at"
	ClauseReveal         ClauseKind = "reveal"
	ClauseHeal           ClauseKind = "heal"
	ClauseMoveDamage     ClauseKind = "move_damage_counters"
	ClauseMoveEnergy     ClauseKind = "move_energy"
	ClauseDevolve        ClauseKind = "devolve"
	ClausePutDamage      ClauseKind = "put_damage_counters"
	ClauseDiscard        ClauseKind = "discard"
	ClauseDiscardStadium ClauseKind = "discard_stadium"
	ClausePutBack        ClauseKind = "put_back"
	ClauseShuffle        ClauseKind = "shuffle"
	ClauseShuffleInto    ClauseKind = "shuffle_into"
	ClauseMoveToHand     ClauseKind = "move_to_hand"
	ClauseMove           ClauseKind = "move"
	ClauseSelectInPlay   ClauseKind = "select_in_play"
	ClauseSwitch         ClauseKind = "switch"
	ClauseAttach         ClauseKind = "attach"
)

// Clause is one parsed action. Count is zero when the text gives none and
// plan.Unbounded for "all" or "any amount".
type Clause struct {
	Kind   ClauseKind
	Text   string
	Source string
	Target string
	Count  int

	Criteria          *plan.Criteria
	ForEach           string
	CardType          string
	EnergyType        string
	Method            string
	BothPlayers       bool
	RequiresReveal    bool
	DiscardAttached   bool
	AllowMultiTargets bool
	ToBottom          bool

	BeforeDamage bool
	Conditional  bool
	Optional     bool
}

// Condition is a usage condition read from "only if" and "only during" sentences.
type Condition struct {
	Kind      string
	Text      string
	Value     int
	Condition string
	Count     int
}

// Condition kinds.
const (
	CondPlay            = "play_condition"
	CondPrizeComparison = "prize_comparison"
	CondPreDiscard      = "pre_discard"
	CondTurnLimit       = "turn_limit"
)

// ParseConditions extracts usage conditions from rule text.
func ParseConditions(text string) []Condition {
	text = normalize(text)
	var out []Condition
	if m := reOnlyIf.FindStringSubmatch(text); m != nil {
		cond := strings.TrimSpace(m[1])
		out = append(out, Condition{Kind: CondPlay, Text: cond})
		l := strings.ToLower(cond)
		if strings.Contains(l, "more prize cards remaining") {
			out = append(out, Condition{Kind: CondPrizeComparison, Text: cond})
		}
		if d := rePreDiscard.FindStringSubmatch(l); d != nil {
			out = append(out, Condition{Kind: CondPreDiscard, Text: cond, Count: atoi(d[1])})
		}
	}
	if m := reOnlyDuring.FindStringSubmatch(text); m != nil {
		cond := strings.TrimSpace(m[1])
		out = append(out, Condition{Kind: CondPlay, Text: cond})
		if strings.Contains(strings.ToLower(cond), "first turn") {
			out = append(out, Condition{Kind: CondTurnLimit, Text: cond, Value: 1, Condition: "first_turn"})
		}
	}
	return out
}

// ParseActions splits rule text into clauses in execution order. Sentences
// that match no recognised clause and do not merely state a condition or
// attack damage are returned as unmatched.
func ParseActions(text string) (clauses []Clause, unmatched []string) {
	text = normalize(text)

	if loc := reBeforeDamage.FindStringSubmatchIndex(text); loc != nil {
		before := text[loc[2]:loc[3]]
		if c, ok := parseSingle(before); ok {
			c.BeforeDamage = true
			clauses = append(clauses, c)
		} else {
			unmatched = append(unmatched, before)
		}
		text = strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
	}

	var parenthetical []string
	for _, m := range reParenthesis.FindAllStringSubmatch(text, -1) {
		parenthetical = append(parenthetical, strings.TrimSpace(m[1]))
	}
	text = strings.TrimSpace(reParenthesis.ReplaceAllString(text, ""))

	for _, sentence := range splitSentences(text) {
		c, u := parseSentence(sentence)
		clauses = append(clauses, c...)
		unmatched = append(unmatched, u...)
	}

	for _, p := range parenthetical {
		l := strings.ToLower(p)
		if strings.Contains(l, "discard") && strings.Contains(l, "attached") {
			continue
		}
		if c, ok := parseSingle(p); ok {
			clauses = append(clauses, c)
		}
	}
	return clauses, unmatched
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range strings.Split(text, ". ") {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// leadIns are stripped from the start of a sentence before parsing.
var leadIns = []string{
	"once during your turn, ",
	"once during your turn ",
	"once during your game, ",
	"you may ",
}

func parseSentence(sentence string) ([]Clause, []string) {
	var clauses []Clause
	var unmatched []string

	optional := false
	for {
		l := strings.ToLower(sentence)
		stripped := false
		for _, lead := range leadIns {
			if strings.HasPrefix(l, lead) {
				sentence = strings.TrimSpace(sentence[len(lead):])
				optional = optional || lead == "you may "
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	main, conditional := sentence, ""
	if loc := reIfYouDo.FindStringIndex(sentence); loc != nil {
		main, conditional = strings.TrimSpace(sentence[:loc[0]]), strings.TrimSpace(sentence[loc[1]:])
		main = strings.TrimSuffix(main, ",")
	}

	parts := reThen.Split(main, 2)
	head := strings.TrimSpace(parts[0])

	if m := reDiscardAnd.FindStringSubmatch(head); m != nil {
		count := plan.Unbounded
		if m[2] != "" {
			count = atoi(m[2])
		}
		clauses = append(clauses, Clause{Kind: ClauseDiscard, Text: m[1], Source: "hand", Count: count, Optional: optional})
		head = strings.TrimSpace(m[3])
	}

	try := func(s string, conditional bool) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if c, ok := parseSingle(s); ok {
			c.Optional = c.Optional || optional
			c.Conditional = conditional
			clauses = append(clauses, c)
			return
		}
		if !isConditionText(s) && !isDamageText(s) {
			unmatched = append(unmatched, s)
		}
	}
	try(head, false)
	if len(parts) > 1 {
		try(parts[1], false)
	}
	if conditional != "" {
		for i, part := range reThen.Split(conditional, 2) {
			try(part, i == 0)
		}
	}
	return clauses, unmatched
}

// parseSingle recognises one clause. The checks run in priority order.
func parseSingle(s string) (Clause, bool) {
	l := strings.ToLower(s)
	c := Clause{Text: s}

	if strings.Contains(l, "search your deck") {
		if m := reSearchDeck.FindStringSubmatch(s); m != nil {
			c.Kind, c.Source = ClauseSearch, "deck"
			c.Criteria = ParseSearchCriteria(m[1])
			c.RequiresReveal = strings.Contains(l, "reveal")
			c.Target = targetZone(l)
			return c, true
		}
	}
	if strings.Contains(l, "from your discard pile") && !strings.Contains(l, "attach") && !strings.Contains(l, "lost zone") {
		c.Kind, c.Source = ClauseSearch, "discard"
		c.Criteria = ParseSearchCriteria(s)
		c.Target = targetZone(l)
		return c, true
	}
	if m := reSearchDiscard.FindStringSubmatch(s); m != nil {
		c.Kind, c.Source = ClauseSearch, "discard"
		c.Criteria = ParseSearchCriteria(m[1])
		c.Target = targetZone(l)
		return c, true
	}

	if m := reDrawCount.FindStringSubmatch(s); m != nil {
		c.Kind, c.Count = ClauseDraw, atoi(m[1])
		c.BothPlayers = strings.Contains(l, "each player")
		return c, true
	}
	if m := reDrawForEach.FindStringSubmatch(s); m != nil {
		c.Kind, c.ForEach = ClauseDraw, strings.ToLower(strings.TrimSpace(m[1]))
		c.BothPlayers = strings.Contains(l, "each player")
		return c, true
	}

	if strings.Contains(l, "lost zone") {
		if m := reLostZone.FindStringSubmatch(s); m != nil {
			src := strings.ToLower(m[1])
			c.Kind, c.Target = ClauseLostZone, "lost_zone"
			switch {
			case strings.Contains(src, "discard pile") || strings.Contains(l, "from your discard pile"):
				c.Source = "discard"
			case strings.Contains(src, "hand") || strings.Contains(l, "from your hand"):
				c.Source = "hand"
			}
			return c, true
		}
	}

	if m := reLookAtTop.FindStringSubmatch(s); m != nil {
		c.Kind, c.Source, c.Count = ClauseLookAt, "deck", atoi(m[1])
		return c, true
	}
	if m := reLookAt.FindStringSubmatch(s); m != nil {
		c.Kind, c.Target = ClauseLookAt, strings.TrimSpace(m[1])
		return c, true
	}

	if strings.Contains(l, "reveal") && !strings.Contains(l, "search") &&
		!strings.Contains(l, "and put") && !strings.Contains(l, "then put") {
		c.Kind = ClauseReveal
		return c, true
	}

	if m := reHeal.FindStringSubmatch(s); m != nil {
		c.Kind, c.Target = ClauseHeal, strings.ToLower(strings.TrimSpace(m[2]))
		c.Count = plan.Unbounded
		if m[1] != "" {
			c.Count = atoi(m[1])
		}
		return c, true
	}
	if m := reMoveDamage.FindStringSubmatch(s); m != nil {
		c.Kind = ClauseMoveDamage
		c.Source, c.Target = strings.ToLower(strings.TrimSpace(m[2])), strings.ToLower(strings.TrimSpace(m[3]))
		c.Count = plan.Unbounded
		if m[1] != "" {
			c.Count = atoi(m[1])
		}
		return c, true
	}
	if m := reMoveEnergy.FindStringSubmatch(s); m != nil {
		c.Kind = ClauseMoveEnergy
		c.Count = 1
		if m[1] != "" {
			c.Count = atoi(m[1])
		}
		c.EnergyType = strings.TrimSpace(m[2])
		c.Source, c.Target = strings.ToLower(strings.TrimSpace(m[3])), strings.ToLower(strings.TrimSpace(m[4]))
		return c, true
	}
	if m := reDevolve.FindStringSubmatch(s); m != nil {
		c.Kind, c.Target, c.Method = ClauseDevolve, strings.ToLower(strings.TrimSpace(m[1])), strings.TrimSpace(m[2])
		return c, true
	}
	if m := rePutDamage.FindStringSubmatch(s); m != nil {
		c.Kind, c.Count, c.Target = ClausePutDamage, atoi(m[1]), strings.ToLower(strings.TrimSpace(m[2]))
		return c, true
	}

	discardFrom := strings.Contains(l, "discard") && reDiscardFrom.MatchString(s)
	if !discardFrom && (!strings.Contains(l, "attached") || !strings.Contains(l, "in play")) {
		if m := reAll.FindStringSubmatch(s); m != nil {
			c.Count, c.Target = plan.Unbounded, strings.ToLower(strings.TrimSpace(m[1]))
			switch {
			case strings.Contains(l, "discard"):
				c.Kind, c.CardType = ClauseDiscard, c.Target
			case strings.Contains(l, "shuffle"):
				c.Kind = ClauseShuffle
			case strings.Contains(l, "move") && strings.Contains(l, "energy"):
				c.Kind = ClauseMoveEnergy
			case strings.Contains(l, "move"):
				c.Kind = ClauseMove
			default:
				c.Kind = ClauseAttach
			}
			return c, true
		}
	}

	if m := reDiscardFrom.FindStringSubmatch(s); m != nil {
		c.Kind = ClauseDiscard
		c.CardType = strings.ToLower(strings.TrimSpace(m[2]))
		c.Source = strings.ToLower(strings.TrimSpace(m[3]))
		switch {
		case m[1] != "":
			c.Count = atoi(m[1])
		case strings.Contains(l, "discard all"), strings.Contains(l, "any amount"):
			c.Count = plan.Unbounded
		default:
			c.Count = 1
		}
		if strings.Contains(c.Source, "hand") {
			c.Source = "hand"
		}
		return c, true
	}

	if reDiscardStadium.MatchString(s) {
		c.Kind, c.Optional = ClauseDiscardStadium, strings.Contains(l, "you may")
		return c, true
	}
	if rePutBack.MatchString(s) {
		c.Kind, c.Target = ClausePutBack, "deck"
		return c, true
	}
	if reShuffleOther.MatchString(s) {
		c.Kind, c.Target = ClauseShuffle, "deck"
		return c, true
	}

	if strings.Contains(l, "put") && strings.Contains(l, "in play") && strings.Contains(l, "into your hand") &&
		(strings.Contains(l, "1 of your pokémon") || strings.Contains(l, "one of your pokémon") || strings.Contains(l, "pokémon in play")) {
		c.Kind, c.Source, c.Target, c.DiscardAttached = ClauseMoveToHand, "in_play", "hand", true
		return c, true
	}
	if strings.Contains(l, "put") {
		switch {
		case strings.Contains(l, "into your hand"), strings.Contains(l, "into their hand"):
			c.Kind, c.Target = ClauseMove, "hand"
			return c, true
		case strings.Contains(l, "onto your bench"), strings.Contains(l, "onto the bench"):
			c.Kind, c.Target = ClauseMove, "bench"
			return c, true
		}
	}
	if strings.Contains(l, "choose") && strings.Contains(l, "in play") {
		c.Kind = ClauseSelectInPlay
		return c, true
	}

	if reHandToBottom.MatchString(s) {
		c.Kind, c.Source, c.Target, c.ToBottom = ClauseShuffleInto, "hand", "deck", true
		c.BothPlayers = strings.Contains(l, "each player") || strings.Contains(l, "both players")
		return c, true
	}
	if strings.Contains(l, "shuffle") {
		if m := reShuffleInto.FindStringSubmatch(s); m != nil {
			if strings.Contains(strings.ToLower(m[1]), "hand") {
				c.Kind, c.Source, c.Target = ClauseShuffleInto, "hand", "deck"
				c.BothPlayers = strings.Contains(l, "each player") || strings.Contains(l, "both players")
				c.ToBottom = strings.Contains(l, "bottom")
				return c, true
			}
		} else if !strings.Contains(l, "into") {
			c.Kind, c.Target = ClauseShuffle, "deck"
			return c, true
		}
	}

	switch {
	case reSwitchOppActive.MatchString(s):
		c.Kind, c.Target = ClauseSwitch, "opponent_active"
		return c, true
	case reSwitchOpponent.MatchString(s):
		c.Kind, c.Target = ClauseSwitch, "opponent_bench"
		return c, true
	case reSwitchYour.MatchString(s):
		c.Kind, c.Target = ClauseSwitch, "your_bench"
		return c, true
	}

	if strings.Contains(l, "attach") {
		if m := reAttachFrom.FindStringSubmatch(s); m != nil {
			c.Kind, c.Count = ClauseAttach, 1
			if m[1] != "" {
				c.Count = atoi(m[1])
			}
			c.EnergyType = strings.TrimSpace(m[2])
			c.Source = attachSource(strings.ToLower(m[3]))
			c.Target = strings.ToLower(strings.TrimSpace(m[4]))
			c.AllowMultiTargets = strings.Contains(l, "in any way you like")
			c.Criteria = ParseSearchCriteria(c.EnergyType + " energy")
			return c, true
		}
		if strings.Contains(l, "energy") || strings.Contains(l, "to your pokémon") {
			c.Kind, c.Count = ClauseAttach, 1
			c.Source = attachSource(l)
			c.AllowMultiTargets = strings.Contains(l, "in any way")
			return c, true
		}
	}
	return Clause{}, false
}

func attachSource(l string) string {
	switch {
	case strings.Contains(l, "discard pile"):
		return "discard"
	case strings.Contains(l, "deck"):
		return "deck"
	}
	return "hand"
}

// targetZone determines where selected cards go.
func targetZone(l string) string {
	switch {
	case strings.Contains(l, "onto your bench"), strings.Contains(l, "onto their bench"), strings.Contains(l, "onto the bench"):
		return "bench"
	case strings.Contains(l, "into your deck"):
		return "deck"
	}
	return "hand"
}
