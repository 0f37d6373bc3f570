package model

import (
	"fmt"
	"sort"
	"strings"
)

// UsageScope bounds a usage counter.
type UsageScope string

const (
	ScopeTurn UsageScope = "turn"
	ScopeGame UsageScope = "game"
)

// Usage counter kinds tracked by the referee.
const (
	UsageAbility      = "ability"
	UsageAttack       = "attack"
	UsageEnergyAttach = "energy_attach"
	UsageRetreat      = "retreat"
	UsageSupporter    = "supporter"
	UsageStadium      = "stadium"
)

// EntityPlayer is the entity id used for player-wide counters (attach, supporter, retreat).
const EntityPlayer = "player"

// UsageKey identifies one counter.
type UsageKey struct {
	EntityID string
	Kind     string
	Scope    UsageScope
}

func (k UsageKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Scope, k.Kind, k.EntityID)
}

// ParseUsageKey reverses UsageKey.String.
func ParseUsageKey(s string) (UsageKey, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return UsageKey{}, fmt.Errorf("invalid usage key %q", s)
	}
	return UsageKey{Scope: UsageScope(parts[0]), Kind: parts[1], EntityID: parts[2]}, nil
}

// UsageTracker counts uses per (entity, kind, scope).
type UsageTracker struct {
	Counts map[string]int `json:"counts"`
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{Counts: make(map[string]int)}
}

// Track increments a counter and returns the new value.
func (u *UsageTracker) Track(key UsageKey) int {
	if u.Counts == nil {
		u.Counts = make(map[string]int)
	}
	u.Counts[key.String()]++
	return u.Counts[key.String()]
}

// Count returns the current value of a counter.
func (u *UsageTracker) Count(key UsageKey) int {
	return u.Counts[key.String()]
}

// ResetTurn clears every turn-scoped counter.
func (u *UsageTracker) ResetTurn() {
	prefix := string(ScopeTurn) + "|"
	for k := range u.Counts {
		if strings.HasPrefix(k, prefix) {
			delete(u.Counts, k)
		}
	}
}

// Keys returns the counter keys in sorted order.
func (u *UsageTracker) Keys() []string {
	keys := make([]string, 0, len(u.Counts))
	for k := range u.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
