// Package game hosts the running matches of a server. Each match is owned by
// one referee; the registry serialises requests per match so independent
// matches proceed in parallel.
package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
)

// Hooks observes the lifecycle of matches. Metrics implement it.
type Hooks interface {
	MatchStarted(matchID string)
	MatchEnded(matchID, winner, reason string)
	ActionHandled(action string, success bool, elapsed time.Duration)
}

// MatchInfo summarises a hosted match.
type MatchInfo struct {
	MatchID    string    `json:"match_id"`
	Players    []string  `json:"players"`
	Phase      string    `json:"phase"`
	TurnPlayer string    `json:"turn_player,omitempty"`
	TurnNumber int       `json:"turn_number"`
	Winner     string    `json:"winner,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Registry owns every running referee.
type Registry struct {
	logger    *zap.Logger
	opts      []referee.Option
	hooks     Hooks
	replayDir string
	limit     int

	mu      sync.RWMutex
	matches map[string]*match
}

type match struct {
	mu      sync.Mutex
	ref     *referee.Referee
	created time.Time
	ended   bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRefereeOptions applies opts to every referee the registry creates.
func WithRefereeOptions(opts ...referee.Option) RegistryOption {
	return func(g *Registry) { g.opts = append(g.opts, opts...) }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) RegistryOption {
	return func(g *Registry) { g.hooks = h }
}

// WithReplayDir saves the recording of every finished match into dir.
func WithReplayDir(dir string) RegistryOption {
	return func(g *Registry) { g.replayDir = dir }
}

// WithLimit caps the number of hosted matches. Zero means no cap.
func WithLimit(n int) RegistryOption {
	return func(g *Registry) { g.limit = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Registry{
		logger:  logger,
		matches: make(map[string]*match),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create seats the owners of decks, sets the match up and starts hosting it.
// An empty matchID gets a generated one.
func (g *Registry) Create(ctx context.Context, matchID string, decks []*model.Deck, setup referee.SetupOptions, extra ...referee.Option) (string, *referee.Result, error) {
	if matchID == "" {
		matchID = uuid.NewString()
	}

	g.mu.RLock()
	err := g.canHost(matchID)
	g.mu.RUnlock()
	if err != nil {
		return "", nil, err
	}

	opts := make([]referee.Option, 0, len(g.opts)+len(extra)+1)
	opts = append(opts, referee.WithLogger(g.logger))
	opts = append(opts, g.opts...)
	opts = append(opts, extra...)
	ref, err := referee.New(matchID, decks, opts...)
	if err != nil {
		return "", nil, err
	}
	res, err := ref.Setup(ctx, setup)
	if err != nil {
		return "", nil, err
	}

	// Setup ran unlocked, so another Create may have taken the id or the
	// last free slot in the meantime.
	g.mu.Lock()
	if err := g.canHost(matchID); err != nil {
		g.mu.Unlock()
		return "", nil, err
	}
	g.matches[matchID] = &match{ref: ref, created: time.Now()}
	g.mu.Unlock()

	g.logger.Info("match created",
		zap.String("match_id", matchID),
		zap.Strings("players", ref.State().Seats),
		zap.String("first_player", ref.State().FirstPlayer),
	)
	if g.hooks != nil {
		g.hooks.MatchStarted(matchID)
	}
	return matchID, res, nil
}

// canHost must be called with g.mu held.
func (g *Registry) canHost(matchID string) error {
	if _, exists := g.matches[matchID]; exists {
		return model.Validationf("match %s already exists", matchID)
	}
	if g.limit > 0 && len(g.matches) >= g.limit {
		return model.Validationf("server is hosting the maximum of %d matches", g.limit)
	}
	return nil
}

func (g *Registry) get(matchID string) (*match, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.matches[matchID]
	if !ok {
		return nil, model.NotFoundf("match %s not found", matchID)
	}
	return m, nil
}

// Submit hands a request to the referee of matchID. Requests to one match
// are handled one at a time.
func (g *Registry) Submit(ctx context.Context, matchID string, req referee.Request) (*referee.Result, error) {
	m, err := g.get(matchID)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	m.mu.Lock()
	res := m.ref.Handle(ctx, req)
	state := m.ref.State()
	justEnded := !m.ended && state.IsOver()
	if justEnded {
		m.ended = true
	}
	winner, reason := state.Winner, state.WinReason
	var rec *Recording
	if justEnded && g.replayDir != "" {
		rec = &Recording{MatchID: matchID, Initial: m.ref.Initial(), Entries: m.ref.Log()}
	}
	m.mu.Unlock()

	if g.hooks != nil {
		g.hooks.ActionHandled(req.Action, res.Success, time.Since(start))
		if justEnded {
			g.hooks.MatchEnded(matchID, winner, reason)
		}
	}
	if justEnded {
		g.logger.Info("match finished",
			zap.String("match_id", matchID),
			zap.String("winner", winner),
			zap.String("reason", reason),
		)
	}
	if rec != nil {
		if path, err := rec.SaveToFile(g.replayDir); err != nil {
			g.logger.Error("failed to save replay", zap.String("match_id", matchID), zap.Error(err))
		} else {
			g.logger.Info("replay saved", zap.String("match_id", matchID), zap.String("path", path))
		}
	}
	return res, nil
}

// View renders matchID for viewer.
func (g *Registry) View(matchID, viewer string) (referee.MatchView, error) {
	m, err := g.get(matchID)
	if err != nil {
		return referee.MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref.View(viewer), nil
}

// Snapshot returns a copy of the current state of matchID.
func (g *Registry) Snapshot(matchID string) (*model.GameState, error) {
	m, err := g.get(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref.Snapshot(), nil
}

// Recording captures the initial state and audit log of matchID.
func (g *Registry) Recording(matchID string) (*Recording, error) {
	m, err := g.get(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Recording{MatchID: matchID, Initial: m.ref.Initial(), Entries: m.ref.Log()}, nil
}

// Remove stops hosting matchID.
func (g *Registry) Remove(matchID string) error {
	g.mu.Lock()
	m, ok := g.matches[matchID]
	delete(g.matches, matchID)
	g.mu.Unlock()
	if !ok {
		return model.NotFoundf("match %s not found", matchID)
	}

	m.mu.Lock()
	ended := m.ended
	m.ended = true
	m.mu.Unlock()
	if g.hooks != nil && !ended {
		g.hooks.MatchEnded(matchID, "", "removed")
	}
	g.logger.Info("match removed", zap.String("match_id", matchID))
	return nil
}

// List summarises every hosted match, oldest first.
func (g *Registry) List() []MatchInfo {
	g.mu.RLock()
	all := make([]*match, 0, len(g.matches))
	for _, m := range g.matches {
		all = append(all, m)
	}
	g.mu.RUnlock()

	infos := make([]MatchInfo, 0, len(all))
	for _, m := range all {
		m.mu.Lock()
		s := m.ref.State()
		infos = append(infos, MatchInfo{
			MatchID:    s.MatchID,
			Players:    append([]string(nil), s.Seats...),
			Phase:      s.Turn.Phase.String(),
			TurnPlayer: s.Turn.Player,
			TurnNumber: s.Turn.Number,
			Winner:     s.Winner,
			CreatedAt:  m.created,
		})
		m.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].MatchID < infos[j].MatchID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of hosted matches.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.matches)
}
