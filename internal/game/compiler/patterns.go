package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// Condition clauses.
var (
	reOnlyIf       = regexp.MustCompile(`(?i)(?:you can (?:play|use) this card only if|only if you)\s+(.+?)(?:\.|$)`)
	reOnlyDuring   = regexp.MustCompile(`(?i)you can (?:play|use) this card only during (.+?)(?:\.|$)`)
	reIfYouDo      = regexp.MustCompile(`(?i)\s*if you do,?\s+`)
	rePreDiscard   = regexp.MustCompile(`(?i)discard\s+(\d+)\s+(?:other\s+)?cards?(?:\s+from\s+your\s+hand)?`)
	reBeforeDamage = regexp.MustCompile(`(?i)before doing damage,?\s*(.+?)(?:\.|$)`)
	reParenthesis  = regexp.MustCompile(`\((.+?)\)`)
	reThen         = regexp.MustCompile(`(?i)\s*\bthen,?\s+`)
	reDiscardAnd   = regexp.MustCompile(`(?i)^\s*discard (your hand|(\d+) (?:other )?(?:cards? )?from your hand),?\s*(?:and\s+)?(.*)$`)
)

// Action clauses.
var (
	reSearchDeck      = regexp.MustCompile(`(?i)search your deck for (.+?)(?:\.|$)`)
	reSearchDiscard   = regexp.MustCompile(`(?i)search your discard pile for (.+?)(?:\.|$)`)
	reDrawCount       = regexp.MustCompile(`(?i)draws? (\d+) cards?`)
	reDrawForEach     = regexp.MustCompile(`(?i)draws? (?:a card|cards?) for each of (.+?)(?:\.|$)`)
	reLostZone        = regexp.MustCompile(`(?i)put (.+?) (?:in|into) (?:the )?lost zone`)
	reLookAtTop       = regexp.MustCompile(`(?i)look at the top (\d+) cards? (?:of your deck|of your opponent's deck)`)
	reLookAt          = regexp.MustCompile(`(?i)look at (.+?)(?:\.|$)`)
	reHeal            = regexp.MustCompile(`(?i)heal (?:all |(\d+) )?damage (?:from|on) (.+?)(?:\.|$)`)
	reMoveDamage      = regexp.MustCompile(`(?i)move (?:all|(\d+)) damage counters? from (.+?) to (.+?)(?:\.|$)`)
	reMoveEnergy      = regexp.MustCompile(`(?i)move (?:an|a|(\d+)) (?:amount of )?(.+? )?energy (?:from|attached to) (.+?) to (.+?)(?:\.|$)`)
	reDevolve         = regexp.MustCompile(`(?i)devolve (.+?) by (?:removing|putting) (.+?)(?:\.|$)`)
	rePutDamage       = regexp.MustCompile(`(?i)put (\d+) damage counters? (?:on|onto) (.+?)(?:\.|$)`)
	reAll             = regexp.MustCompile(`(?i)(?:discard|shuffle|move|attach) all (.+?)(?:\.|$)`)
	reDiscardFrom     = regexp.MustCompile(`(?i)discard (?:all|(\d+)|any amount of|an?) (.+?) (?:from|attached to) (.+?)(?:\.|$)`)
	reDiscardStadium  = regexp.MustCompile(`(?i)(?:you may )?discard (?:a |an )?stadium (?:in play|card)(?:\.|$)`)
	rePutBack         = regexp.MustCompile(`(?i)put (?:them|it|.+?) back (?:on top of your deck|into your deck|onto your deck)`)
	reShuffleOther    = regexp.MustCompile(`(?i)shuffle the other cards?`)
	reShuffleInto     = regexp.MustCompile(`(?i)shuffles? (.+?) into (?:their|your) deck`)
	reHandToBottom    = regexp.MustCompile(`(?i)shuffles? (?:their|your) hand and puts? it on the bottom of (?:their|your) deck`)
	reSwitchOppActive = regexp.MustCompile(`(?i)your opponent switches? (?:their )?active pokémon with (\d+) of (?:their )?benched pokémon`)
	reSwitchOpponent  = regexp.MustCompile(`(?i)switch in (\d+) of your opponent's (.+?) to the active spot`)
	reSwitchYour      = regexp.MustCompile(`(?i)switch your active pokémon with (\d+) of your benched pokémon`)
	reAttachFrom      = regexp.MustCompile(`(?i)attach (?:up to )?(\d+)? ?(.+? )?energy cards? (?:from (.+?) )?to (.+?)(?:\.|$)`)
	reUpTo            = regexp.MustCompile(`(?i)up to (\d+)`)
	reTopN            = regexp.MustCompile(`(?i)top (\d+)`)
	reHPOrLess        = regexp.MustCompile(`(?i)(\d+)\s+hp\s+or\s+less`)
)

// Damage clauses.
var (
	reDoesNothing      = regexp.MustCompile(`(?i)(?:this attack|that attack) does nothing`)
	reDamageToSelf     = regexp.MustCompile(`(?i)this pokémon (?:also )?does (\d+) damage to itself`)
	reDamageToMultiple = regexp.MustCompile(`(?i)does (\d+) damage (?:\(each\) )?to (\d+) of your opponent'?s (?:benched )?pokémon`)
	reMoreForEach      = regexp.MustCompile(`(?i)does (\d+) more damage (?:for each|times the number of) (.+?)(?:\.|$)`)
	reMore             = regexp.MustCompile(`(?i)does (\d+) more damage`)
	rePrizeDamage      = regexp.MustCompile(`(?i)(\d+)\s+more damage.*prize`)
	reSelfDamageLoose  = regexp.MustCompile(`(?i)does (\d+) damage to itself`)
)

var (
	rePokemon    = regexp.MustCompile(`(?i)pok[eé]mon`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// energySymbols is ordered so that criteria parsing is deterministic.
var energySymbols = []struct{ symbol, color string }{
	{"[r]", "Fire"},
	{"[g]", "Grass"},
	{"[w]", "Water"},
	{"[l]", "Lightning"},
	{"[p]", "Psychic"},
	{"[f]", "Fighting"},
	{"[d]", "Darkness"},
	{"[m]", "Metal"},
}

// normalize unifies spelling and whitespace of rule text.
func normalize(text string) string {
	text = strings.NewReplacer("’", "'", "‘", "'", "\n", " ").Replace(text)
	text = rePokemon.ReplaceAllString(text, "Pokémon")
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseSearchCriteria reads card filters and count bounds from a clause.
func ParseSearchCriteria(text string) *plan.Criteria {
	c := &plan.Criteria{}
	l := strings.ToLower(normalize(text))

	switch {
	case strings.Contains(l, "in any combination") ||
		(strings.Contains(l, " and ") && (strings.Contains(l, "tool") || strings.Contains(l, "energy"))):
		c.AllowCombination = true
		if strings.Contains(l, "tool") {
			c.CardTypes = append(c.CardTypes, plan.Criteria{CardType: "Trainer", Subtype: "Tool"})
		}
		if strings.Contains(l, "basic energy") {
			c.CardTypes = append(c.CardTypes, plan.Criteria{CardType: "Energy", EnergyType: "Basic Energy"})
		}
		if strings.Contains(l, "pokémon") && !strings.Contains(l, "pokémon tool") {
			c.CardTypes = append(c.CardTypes, plan.Criteria{CardType: "Pokemon"})
		}
		if len(c.CardTypes) == 1 {
			*c = c.CardTypes[0]
		}
	case strings.Contains(l, "pokémon tool"):
		c.CardType, c.Subtype = "Trainer", "Tool"
	case strings.Contains(l, "basic pokémon"):
		c.CardType, c.Stage = "Pokemon", "Basic"
	case strings.Contains(l, "pokémon"):
		c.CardType = "Pokemon"
	case strings.Contains(l, "basic energy"):
		c.CardType, c.EnergyType = "Energy", "Basic Energy"
	case strings.Contains(l, "energy"):
		c.CardType = "Energy"
	case strings.Contains(l, "item"):
		c.CardType, c.Subtype = "Trainer", "Item"
	case strings.Contains(l, "tool"):
		c.CardType, c.Subtype = "Trainer", "Tool"
	}

	if m := reHPOrLess.FindStringSubmatch(l); m != nil {
		c.MaxHP = atoi(m[1])
	}
	for _, e := range energySymbols {
		if strings.Contains(l, e.symbol) {
			c.EnergyColor = e.color
			break
		}
	}

	switch {
	case reUpTo.MatchString(l):
		c.MaxCount = atoi(reUpTo.FindStringSubmatch(l)[1])
		c.MinCount = 0
	case strings.Contains(l, "any amount"), strings.Contains(l, "any number"), strings.Contains(l, "as many as you like"):
		c.AnyCount = true
		c.MaxCount = plan.Unbounded
		c.MinCount = 0
	}
	return c
}

// ParseDamage reads the damage modifiers of an attack text. At most one
// modifier is returned; "more damage for each" counting Prize cards is prize based.
func ParseDamage(text string) []plan.DamageModifier {
	text = normalize(text)
	switch {
	case reDoesNothing.MatchString(text):
		return []plan.DamageModifier{{Type: plan.ModDoesNothing}}
	case reDamageToSelf.MatchString(text):
		m := reDamageToSelf.FindStringSubmatch(text)
		return []plan.DamageModifier{{Type: plan.ModSelfDamage, Amount: atoi(m[1])}}
	case reDamageToMultiple.MatchString(text):
		m := reDamageToMultiple.FindStringSubmatch(text)
		return []plan.DamageModifier{{Type: plan.ModDamageToMultiple, Damage: atoi(m[1]), Count: atoi(m[2])}}
	}

	if m := reMoreForEach.FindStringSubmatch(text); m != nil {
		cond := strings.ToLower(strings.TrimSpace(m[2]))
		if rePrizeDamage.MatchString(text) {
			return []plan.DamageModifier{{Type: plan.ModPrizeBased, Bonus: atoi(m[1]), Condition: cond}}
		}
		return []plan.DamageModifier{{Type: plan.ModBonusPer, Bonus: atoi(m[1]), Condition: cond}}
	}
	if m := reMore.FindStringSubmatch(text); m != nil {
		return []plan.DamageModifier{{Type: plan.ModBonus, Bonus: atoi(m[1])}}
	}
	if m := reSelfDamageLoose.FindStringSubmatch(text); m != nil {
		return []plan.DamageModifier{{Type: plan.ModSelfDamage, Amount: atoi(m[1])}}
	}
	return nil
}

// isDamageText reports whether a sentence only describes attack damage.
func isDamageText(s string) bool {
	l := strings.ToLower(s)
	if reDoesNothing.MatchString(s) || reDamageToSelf.MatchString(s) || reDamageToMultiple.MatchString(s) ||
		reMore.MatchString(s) || reSelfDamageLoose.MatchString(s) {
		return true
	}
	return strings.Contains(l, "this attack does") || strings.Contains(l, "this attack's damage")
}

// isConditionText reports whether a sentence only states when the card may be used.
func isConditionText(s string) bool {
	l := strings.ToLower(s)
	return reOnlyIf.MatchString(s) || reOnlyDuring.MatchString(s) ||
		strings.Contains(l, "your turn ends") || strings.Contains(l, "you can't use this") ||
		strings.Contains(l, "you can't play this")
}
