package interpreter

import (
	"context"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/compiler"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// Effect sources.
const (
	SourceCompiled = "compiled"
	SourceLegacy   = "legacy"
)

// Effect is a resolved plan together with the path that produced it.
type Effect struct {
	Plan   *plan.ExecutionPlan
	Source string
}

// EffectSource resolves the plan of one named effect of a card.
type EffectSource interface {
	Lookup(ctx context.Context, def *model.CardDefinition, effectName string) (Effect, bool)
}

// PlanStore is the subset of plan storage the compiled source needs.
// Latest returns a NotFound failure when no usable plan is stored.
type PlanStore interface {
	Latest(ctx context.Context, cardID, effectName string) (*plan.ExecutionPlan, error)
	Put(ctx context.Context, p *plan.ExecutionPlan) error
}

// CompiledSource serves stored plans and compiles missing ones on demand.
type CompiledSource struct {
	store    PlanStore
	compiler *compiler.Compiler
	logger   *zap.Logger
}

// NewCompiledSource creates a compiled source. store may be nil, in which case
// every lookup compiles.
func NewCompiledSource(store PlanStore, c *compiler.Compiler, logger *zap.Logger) *CompiledSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = compiler.New(logger)
	}
	return &CompiledSource{store: store, compiler: c, logger: logger}
}

// Lookup implements EffectSource.
func (s *CompiledSource) Lookup(ctx context.Context, def *model.CardDefinition, effectName string) (Effect, bool) {
	if s.store != nil {
		p, err := s.store.Latest(ctx, def.ID(), effectName)
		switch {
		case err == nil && p != nil:
			return Effect{Plan: p, Source: SourceCompiled}, true
		case err != nil && !model.IsKind(err, model.FailureNotFound):
			s.logger.Warn("plan store lookup failed",
				zap.String("card_id", def.ID()),
				zap.String("effect", effectName),
				zap.Error(err),
			)
		}
	}

	p, err := s.compiler.Compile(def, effectName)
	if err != nil {
		return Effect{}, false
	}
	if !understood(p) {
		return Effect{}, false
	}
	if s.store != nil {
		if err := s.store.Put(ctx, p); err != nil {
			s.logger.Warn("failed to store compiled plan",
				zap.String("plan", p.Key().String()),
				zap.Error(err),
			)
		}
	}
	return Effect{Plan: p, Source: SourceCompiled}, true
}

// understood reports whether the compiler recognised any part of the effect.
// A plan that only discards the Trainer while every clause went unsupported
// is treated as a miss.
func understood(p *plan.ExecutionPlan) bool {
	if len(p.Unsupported) == 0 {
		return true
	}
	for _, s := range p.Steps {
		if s.Action != plan.ActionDiscardTrainer {
			return true
		}
	}
	return false
}

// Chain tries each source in order; the first hit wins.
type Chain []EffectSource

// Lookup implements EffectSource.
func (c Chain) Lookup(ctx context.Context, def *model.CardDefinition, effectName string) (Effect, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if eff, ok := src.Lookup(ctx, def, effectName); ok {
			return eff, true
		}
	}
	return Effect{}, false
}
