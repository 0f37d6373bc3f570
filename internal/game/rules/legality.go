package rules

import (
	"fmt"
	"strings"
)

// Game limits enforced by the legality checker.
const (
	MaxBenchSize = 5
	Colorless    = "Colorless"
)

// Special conditions that block attacking and retreating.
const (
	conditionAsleep    = "Asleep"
	conditionParalyzed = "Paralyzed"
)

// LegalityChecker validates player actions before they are executed.
type LegalityChecker struct {
	gameState GameStateAccessor
}

// GameStateAccessor provides access to game state needed for legality checks.
type GameStateAccessor interface {
	// FindCard finds a card by ID in any zone of any player
	FindCard(cardID string) (CardInfo, bool)
	// FindPlayer finds player info by ID
	FindPlayer(playerID string) (PlayerInfo, bool)
	// Turn returns the current turn
	Turn() TurnState
	// FirstPlayer returns the player who took the first turn
	FirstPlayer() string
}

// CardInfo provides information about a card for legality checks.
type CardInfo struct {
	ID          string
	Name        string
	OwnerID     string
	Category    string
	Stage       string
	EvolvesFrom string
	Subtypes    []string
	Zone        string
	EnteredTurn int
	Energy      []string
	Conditions  []string
	HasTool     bool
	RetreatCost int
}

func (c CardInfo) hasCondition(name string) bool {
	for _, cond := range c.Conditions {
		if strings.EqualFold(cond, name) {
			return true
		}
	}
	return false
}

// PlayerInfo provides information about a player for legality checks.
type PlayerInfo struct {
	PlayerID        string
	ActiveID        string
	BenchSize       int
	HandSize        int
	DeckSize        int
	PrizesRemaining int

	AttachedThisTurn  bool
	RetreatedThisTurn bool
	SupporterThisTurn bool
	StadiumThisTurn   bool
}

// LegalityResult represents the result of a legality check.
type LegalityResult struct {
	Legal   bool
	Reason  string
	Details map[string]string
}

func legal(reason string) LegalityResult {
	return LegalityResult{Legal: true, Reason: reason}
}

func illegal(reason string, details map[string]string) LegalityResult {
	return LegalityResult{Legal: false, Reason: reason, Details: details}
}

// NewLegalityChecker creates a new legality checker.
func NewLegalityChecker(gameState GameStateAccessor) *LegalityChecker {
	return &LegalityChecker{
		gameState: gameState,
	}
}

// IsFirstTurn reports whether the current turn is the player's first turn.
func IsFirstTurn(turn TurnState, firstPlayer, playerID string) bool {
	if turn.Player != playerID {
		return false
	}
	if playerID == firstPlayer {
		return turn.Number == 1
	}
	return turn.Number == 2
}

// CheckTurn validates that the player may act now.
func (lc *LegalityChecker) CheckTurn(playerID string) LegalityResult {
	turn := lc.gameState.Turn()
	if turn.Phase == PhaseGameOver {
		return illegal("The game is over", nil)
	}
	if turn.Player != playerID {
		return illegal("It is not your turn", map[string]string{
			"player_id":   playerID,
			"turn_player": turn.Player,
		})
	}
	if !turn.Phase.IsPlayable() {
		return illegal("Actions are not allowed in this phase", map[string]string{
			"phase": turn.Phase.String(),
		})
	}
	return legal("Turn check passed")
}

// CheckAttachEnergy enforces one manual energy attachment per turn.
func (lc *LegalityChecker) CheckAttachEnergy(playerID, hostID string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	if player.AttachedThisTurn {
		return illegal("Energy was already attached this turn", map[string]string{"player_id": playerID})
	}
	host, found := lc.gameState.FindCard(hostID)
	if !found || host.OwnerID != playerID || !inPlay(host.Zone) {
		return illegal("Target Pokémon is not in play", map[string]string{"target_id": hostID})
	}
	return legal("Energy can be attached")
}

// CheckBenchSpace validates that a Pokémon can be put onto the Bench.
func (lc *LegalityChecker) CheckBenchSpace(playerID string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	if player.BenchSize >= MaxBenchSize {
		return illegal("Bench is full", map[string]string{
			"bench_size": fmt.Sprintf("%d", player.BenchSize),
		})
	}
	return legal("Bench has space")
}

// CheckEvolve validates evolving baseID into evolutionID.
func (lc *LegalityChecker) CheckEvolve(playerID, baseID, evolutionID string) LegalityResult {
	base, found := lc.gameState.FindCard(baseID)
	if !found || base.OwnerID != playerID || !inPlay(base.Zone) {
		return illegal("Pokémon to evolve is not in play", map[string]string{"card_id": baseID})
	}
	evo, found := lc.gameState.FindCard(evolutionID)
	if !found || evo.OwnerID != playerID || evo.Zone != "hand" {
		return illegal("Evolution card is not in hand", map[string]string{"card_id": evolutionID})
	}
	if evo.EvolvesFrom == "" || !strings.EqualFold(evo.EvolvesFrom, base.Name) {
		return illegal("Evolution does not evolve from this Pokémon", map[string]string{
			"evolves_from": evo.EvolvesFrom,
			"base":         base.Name,
		})
	}
	turn := lc.gameState.Turn()
	if IsFirstTurn(turn, lc.gameState.FirstPlayer(), playerID) {
		return illegal("Pokémon cannot evolve during your first turn", nil)
	}
	if base.EnteredTurn == turn.Number {
		return illegal("Pokémon cannot evolve the turn it was put into play", map[string]string{
			"card_id": baseID,
			"turn":    fmt.Sprintf("%d", turn.Number),
		})
	}
	return legal("Evolution is legal")
}

// CheckRetreat validates retreating the Active Pokémon.
func (lc *LegalityChecker) CheckRetreat(playerID string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	if player.RetreatedThisTurn {
		return illegal("Already retreated this turn", nil)
	}
	if player.BenchSize == 0 {
		return illegal("No Benched Pokémon to switch in", nil)
	}
	active, found := lc.gameState.FindCard(player.ActiveID)
	if !found {
		return illegal("No Active Pokémon", nil)
	}
	for _, cond := range []string{conditionAsleep, conditionParalyzed} {
		if active.hasCondition(cond) {
			return illegal("Active Pokémon is "+cond, map[string]string{"condition": cond})
		}
	}
	if len(active.Energy) < active.RetreatCost {
		return illegal("Not enough energy to retreat", map[string]string{
			"required": fmt.Sprintf("%d", active.RetreatCost),
			"attached": fmt.Sprintf("%d", len(active.Energy)),
		})
	}
	return legal("Retreat is legal")
}

// CheckSupporter enforces one Supporter per turn and no Supporter on the
// first player's first turn.
func (lc *LegalityChecker) CheckSupporter(playerID string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	if player.SupporterThisTurn {
		return illegal("A Supporter was already played this turn", nil)
	}
	turn := lc.gameState.Turn()
	if playerID == lc.gameState.FirstPlayer() && turn.Number == 1 {
		return illegal("The first player cannot play a Supporter on their first turn", nil)
	}
	return legal("Supporter can be played")
}

// CheckStadium enforces one Stadium per turn.
func (lc *LegalityChecker) CheckStadium(playerID string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	if player.StadiumThisTurn {
		return illegal("A Stadium was already played this turn", nil)
	}
	return legal("Stadium can be played")
}

// CheckAttack validates that the Active Pokémon can use an attack with the given cost.
func (lc *LegalityChecker) CheckAttack(playerID string, cost []string) LegalityResult {
	player, found := lc.gameState.FindPlayer(playerID)
	if !found {
		return illegal("Player not found", map[string]string{"player_id": playerID})
	}
	turn := lc.gameState.Turn()
	if playerID == lc.gameState.FirstPlayer() && turn.Number == 1 {
		return illegal("The first player cannot attack on their first turn", nil)
	}
	active, found := lc.gameState.FindCard(player.ActiveID)
	if !found {
		return illegal("No Active Pokémon", nil)
	}
	for _, cond := range []string{conditionAsleep, conditionParalyzed} {
		if active.hasCondition(cond) {
			return illegal("Active Pokémon is "+cond, map[string]string{"condition": cond})
		}
	}
	if !EnergyCostSatisfied(active.Energy, cost) {
		return illegal("Not enough energy for this attack", map[string]string{
			"cost":     strings.Join(cost, ","),
			"attached": strings.Join(active.Energy, ","),
		})
	}
	return legal("Attack is legal")
}

// EnergyCostSatisfied reports whether attached energy types pay for cost.
// Typed requirements are paid first; Colorless is paid by any leftover energy.
func EnergyCostSatisfied(attached, cost []string) bool {
	pool := make(map[string]int, len(attached))
	for _, e := range attached {
		pool[strings.ToLower(e)]++
	}
	colorless := 0
	for _, c := range cost {
		if strings.EqualFold(c, Colorless) {
			colorless++
			continue
		}
		key := strings.ToLower(c)
		if pool[key] == 0 {
			return false
		}
		pool[key]--
	}
	left := 0
	for _, n := range pool {
		left += n
	}
	return left >= colorless
}

func inPlay(zone string) bool {
	return zone == "active" || zone == "bench"
}
