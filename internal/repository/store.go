// Package repository persists execution plans, match snapshots and audit
// logs. Three backends share one logical schema: an in-memory store for
// tests and single-process runs, an embedded SQLite database and
// PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// PlanFilter narrows List. Empty fields match everything.
type PlanFilter struct {
	CardID     string
	EffectName string
	Status     plan.Status
}

func (f PlanFilter) matches(p *plan.ExecutionPlan) bool {
	return (f.CardID == "" || f.CardID == p.CardID) &&
		(f.EffectName == "" || f.EffectName == p.EffectName) &&
		(f.Status == "" || f.Status == p.Status)
}

// PlanStore stores execution plans keyed by card, effect and version.
// Putting a plan with an existing key replaces it, status included.
type PlanStore interface {
	Get(ctx context.Context, cardID, effectName string, version int) (*plan.ExecutionPlan, error)
	// Latest returns the highest version that is not deprecated.
	Latest(ctx context.Context, cardID, effectName string) (*plan.ExecutionPlan, error)
	Put(ctx context.Context, p *plan.ExecutionPlan) error
	List(ctx context.Context, filter PlanFilter) ([]*plan.ExecutionPlan, error)
}

// MatchSummary is the indexed part of a stored snapshot.
type MatchSummary struct {
	MatchID    string    `json:"match_id"`
	TurnPlayer string    `json:"turn_player"`
	TurnNumber int       `json:"turn_number"`
	Phase      string    `json:"phase"`
	Winner     string    `json:"winner,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MatchStore stores the latest snapshot and the audit log of each match.
// Appending an entry whose sequence number is already stored is a no-op,
// so a failed batch can be retried as a whole.
type MatchStore interface {
	SaveSnapshot(ctx context.Context, state *model.GameState) error
	AppendAudit(ctx context.Context, entries []model.AuditEntry) error
	LoadSnapshot(ctx context.Context, matchID string) (*model.GameState, error)
	LoadAudit(ctx context.Context, matchID string) ([]model.AuditEntry, error)
	ListMatches(ctx context.Context) ([]MatchSummary, error)
}

// Store is a complete backend.
type Store interface {
	PlanStore
	MatchStore
	Close() error
}

// Open creates the store selected by cfg.Driver and, when cfg.Migrate is
// set, brings its schema up to date.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", "memory":
		logger.Info("using in-memory store")
		return NewMemoryStore(), nil
	case "sqlite":
		s, err := NewSQLiteStore(ctx, SQLiteConfig{Path: cfg.Path}, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// SetStatus moves a stored plan through its review lifecycle.
func SetStatus(ctx context.Context, s PlanStore, cardID, effectName string, version int, status plan.Status, reviewer string) (*plan.ExecutionPlan, error) {
	p, err := s.Get(ctx, cardID, effectName, version)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.Status = status
	p.ReviewedBy = reviewer
	p.ReviewedAt = &now
	if err := s.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func planNotFound(cardID, effectName string) error {
	return model.NotFoundf("no plan stored for %s %q", cardID, effectName)
}

func encodePlan(p *plan.ExecutionPlan) ([]byte, error) {
	if p == nil || p.CardID == "" || p.EffectName == "" {
		return nil, model.Validationf("plan needs a card id and an effect name")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan %s: %w", p.Key(), err)
	}
	return body, nil
}

func decodePlan(body []byte) (*plan.ExecutionPlan, error) {
	var p plan.ExecutionPlan
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &p, nil
}

func summarize(state *model.GameState) MatchSummary {
	return MatchSummary{
		MatchID:    state.MatchID,
		TurnPlayer: state.Turn.Player,
		TurnNumber: state.Turn.Number,
		Phase:      state.Turn.Phase.String(),
		Winner:     state.Winner,
	}
}
