package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

type planKey struct {
	cardID     string
	effectName string
	version    int
}

type storedMatch struct {
	summary  MatchSummary
	snapshot []byte
	log      []model.AuditEntry
	seqs     map[int]struct{}
}

// MemoryStore keeps everything in process memory. Plans and snapshots are
// stored in encoded form so callers never share pointers with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	plans   map[planKey][]byte
	matches map[string]*storedMatch
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:   make(map[planKey][]byte),
		matches: make(map[string]*storedMatch),
	}
}

// Get implements PlanStore.
func (s *MemoryStore) Get(_ context.Context, cardID, effectName string, version int) (*plan.ExecutionPlan, error) {
	s.mu.RLock()
	body, ok := s.plans[planKey{cardID, effectName, version}]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NotFoundf("plan %s %q v%d not found", cardID, effectName, version)
	}
	return decodePlan(body)
}

// Latest implements PlanStore.
func (s *MemoryStore) Latest(ctx context.Context, cardID, effectName string) (*plan.ExecutionPlan, error) {
	candidates, err := s.List(ctx, PlanFilter{CardID: cardID, EffectName: effectName})
	if err != nil {
		return nil, err
	}
	var best *plan.ExecutionPlan
	for _, p := range candidates {
		if p.Status == plan.StatusDeprecated {
			continue
		}
		if best == nil || p.Version > best.Version {
			best = p
		}
	}
	if best == nil {
		return nil, planNotFound(cardID, effectName)
	}
	return best, nil
}

// Put implements PlanStore.
func (s *MemoryStore) Put(_ context.Context, p *plan.ExecutionPlan) error {
	body, err := encodePlan(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.plans[planKey{p.CardID, p.EffectName, p.Version}] = body
	s.mu.Unlock()
	return nil
}

// List implements PlanStore. Plans are ordered by card, effect and version.
func (s *MemoryStore) List(_ context.Context, filter PlanFilter) ([]*plan.ExecutionPlan, error) {
	s.mu.RLock()
	keys := make([]planKey, 0, len(s.plans))
	for k := range s.plans {
		keys = append(keys, k)
	}
	bodies := make(map[planKey][]byte, len(keys))
	for _, k := range keys {
		bodies[k] = s.plans[k]
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.cardID != b.cardID {
			return a.cardID < b.cardID
		}
		if a.effectName != b.effectName {
			return a.effectName < b.effectName
		}
		return a.version < b.version
	})

	var out []*plan.ExecutionPlan
	for _, k := range keys {
		p, err := decodePlan(bodies[k])
		if err != nil {
			return nil, err
		}
		if filter.matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// SaveSnapshot implements MatchStore.
func (s *MemoryStore) SaveSnapshot(_ context.Context, state *model.GameState) error {
	data, err := game.EncodeState(state)
	if err != nil {
		return err
	}
	summary := summarize(state)
	summary.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.match(state.MatchID)
	m.summary = summary
	m.snapshot = data
	return nil
}

// AppendAudit implements MatchStore.
func (s *MemoryStore) AppendAudit(_ context.Context, entries []model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		m := s.match(e.MatchID)
		if _, dup := m.seqs[e.Seq]; dup {
			continue
		}
		m.seqs[e.Seq] = struct{}{}
		m.log = append(m.log, e)
	}
	return nil
}

// match returns the record of matchID, creating it. Callers hold mu.
func (s *MemoryStore) match(matchID string) *storedMatch {
	m, ok := s.matches[matchID]
	if !ok {
		m = &storedMatch{summary: MatchSummary{MatchID: matchID}, seqs: make(map[int]struct{})}
		s.matches[matchID] = m
	}
	return m
}

// LoadSnapshot implements MatchStore.
func (s *MemoryStore) LoadSnapshot(_ context.Context, matchID string) (*model.GameState, error) {
	s.mu.RLock()
	m, ok := s.matches[matchID]
	var data []byte
	if ok {
		data = m.snapshot
	}
	s.mu.RUnlock()
	if data == nil {
		return nil, model.NotFoundf("no snapshot stored for match %s", matchID)
	}
	return game.DecodeState(data)
}

// LoadAudit implements MatchStore.
func (s *MemoryStore) LoadAudit(_ context.Context, matchID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, nil
	}
	out := append([]model.AuditEntry(nil), m.log...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ListMatches implements MatchStore.
func (s *MemoryStore) ListMatches(_ context.Context) ([]MatchSummary, error) {
	s.mu.RLock()
	out := make([]MatchSummary, 0, len(s.matches))
	for _, m := range s.matches {
		if m.snapshot != nil {
			out = append(out, m.summary)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
