// Package interpreter runs execution plans against a match. A run validates
// every rule of the plan, then walks its steps in order. A selection step
// without an answer suspends the run and hands back a Token; Resume continues
// from that token once the choice is known.
//
// Attack damage is the one state change the interpreter does not make
// through a plan step. Once the damage of calculate_and_apply_damage is
// known it is handed to a DamageApplier, which puts it on the target and
// reports knockouts. The default, DamageOpponentActive, hits the opponent's
// Active Pokémon through the same ops log as every other step; a caller
// with its own targeting or knockout handling installs a different applier
// with WithDamageApplier.
package interpreter

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// Status is the terminal state of one Execute or Resume call.
type Status string

const (
	StatusDone      Status = "done"
	StatusSuspended Status = "suspended"
)

// Request carries the caller's side of an execution.
type Request struct {
	PlayerID  string
	SourceUID string

	// Targets maps an energy uid to the Pokémon it should be attached to.
	Targets map[string]string

	// Selection answers the first selection step without suspending. nil
	// means no answer; an empty non-nil slice chooses nothing.
	Selection []string

	// DamageTargets lists the Pokémon hit by a "damage to multiple" attack.
	DamageTargets []string
}

// Candidate describes one selectable card.
type Candidate struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Zone     string `json:"zone"`
	OwnerID  string `json:"owner_id"`
	Category string `json:"category,omitempty"`
	HP       int    `json:"hp,omitempty"`
}

// Outcome is the result of a run that did not fail.
type Outcome struct {
	Status  Status
	Message string
	Source  string
	Data    map[string]any

	Damage      int
	KnockedOut  []string
	EndTurn     bool
	Drawn       []string
	Unsupported []string

	// Skipped lists the indexes of steps passed over by their skip_if
	// condition or for lack of candidates, in order.
	Skipped []int

	// Set when Status is StatusSuspended.
	Candidates []Candidate
	MinCount   int
	MaxCount   int
	Chooser    string
	Prompt     string
	Token      *Token
}

// Suspended reports whether the run is waiting for a selection.
func (o *Outcome) Suspended() bool {
	return o.Status == StatusSuspended
}

// DamageApplier applies the final damage of an attack and returns the uids
// knocked out.
type DamageApplier func(o *ops.Ops, req Request, damage int) ([]string, error)

// Interpreter executes plans. It keeps no per-run state and may be shared
// between matches.
type Interpreter struct {
	logger *zap.Logger
	source EffectSource
	damage DamageApplier
	cards  CardLookup
}

// CardLookup finds a card definition by name.
type CardLookup func(name string) (*model.CardDefinition, bool)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithDamageApplier replaces the default "damage the opponent's Active" behaviour.
func WithDamageApplier(fn DamageApplier) Option {
	return func(in *Interpreter) { in.damage = fn }
}

// WithCardLookup enables evolution chain checks against a card catalog.
func WithCardLookup(fn CardLookup) Option {
	return func(in *Interpreter) { in.cards = fn }
}

// New creates a new interpreter resolving effects through source.
func New(source EffectSource, logger *zap.Logger, opts ...Option) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Interpreter{logger: logger, source: source, damage: DamageOpponentActive}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// DamageOpponentActive puts damage on the opponent's Active Pokémon and
// checks it for a knockout.
func DamageOpponentActive(o *ops.Ops, req Request, damage int) ([]string, error) {
	if damage <= 0 {
		return nil, nil
	}
	opp, err := o.State().Opponent(req.PlayerID)
	if err != nil {
		return nil, err
	}
	target := opp.Active()
	if target == nil {
		return nil, nil
	}
	if _, err := o.UpdateDamage(target.UID, damage); err != nil {
		return nil, err
	}
	ko, err := o.CheckKO(target.UID)
	if err != nil {
		return nil, err
	}
	if ko {
		return []string{target.UID}, nil
	}
	return nil, nil
}

// Resolve looks up the effect without running it.
func (in *Interpreter) Resolve(ctx context.Context, def *model.CardDefinition, effectName string) (Effect, error) {
	if in.source == nil || def == nil {
		return Effect{}, model.NotFoundf("no effect source configured")
	}
	eff, ok := in.source.Lookup(ctx, def, effectName)
	if !ok {
		return Effect{}, model.NotFoundf("no plan for %s of %s", effectName, def.ID())
	}
	return eff, nil
}

// Execute resolves the named effect of def and runs it.
func (in *Interpreter) Execute(ctx context.Context, o *ops.Ops, req Request, def *model.CardDefinition, effectName string) (*Outcome, error) {
	eff, err := in.Resolve(ctx, def, effectName)
	if err != nil {
		return nil, err
	}
	return in.ExecutePlan(o, req, eff)
}

// ExecutePlan validates and runs a resolved effect from its first step.
// A validation failure leaves the state untouched.
func (in *Interpreter) ExecutePlan(o *ops.Ops, req Request, eff Effect) (*Outcome, error) {
	if eff.Plan == nil {
		return nil, model.MalformedPlanf("effect has no plan")
	}
	if err := checkRestrictions(o.State(), req, eff.Plan); err != nil {
		return nil, err
	}
	if err := validate(o, req, eff.Plan); err != nil {
		return nil, err
	}
	r := newRun(in, o, eff.Plan, eff.Source, req)
	r.pending = req.Selection
	return r.step(0)
}

// Resume continues a suspended run with the chosen card ids. The choice is
// checked against the candidates the selection step offers in the current
// state; an invalid choice fails without touching the state.
func (in *Interpreter) Resume(o *ops.Ops, token *Token, chosen []string) (*Outcome, error) {
	if token == nil || token.Plan == nil {
		return nil, model.Validationf("no suspended effect to resume")
	}
	if token.StepIndex < 0 || token.StepIndex >= len(token.Plan.Steps) {
		return nil, model.MalformedPlanf("token step %d out of range", token.StepIndex)
	}
	if token.Plan.Steps[token.StepIndex].Action != plan.ActionWaitForSelection {
		return nil, model.MalformedPlanf("token step %d is not a selection", token.StepIndex)
	}
	req := Request{
		PlayerID:      token.PlayerID,
		SourceUID:     token.SourceUID,
		Targets:       token.Targets,
		DamageTargets: token.DamageTargets,
	}
	r := newRun(in, o, token.Plan, token.Source, req)
	for i, out := range token.Outputs {
		r.outputs[i] = slices.Clone(out)
	}
	for i, v := range token.Values {
		r.values[i] = v
	}
	for _, i := range token.Skipped {
		r.skipped[i] = true
	}
	r.out.Drawn = slices.Clone(token.Drawn)
	r.out.KnockedOut = slices.Clone(token.KnockedOut)
	r.out.Damage = token.Damage
	r.out.EndTurn = token.EndTurn
	if chosen == nil {
		chosen = []string{}
	}
	r.pending = chosen
	return r.step(token.StepIndex)
}

// run is the mutable state of one walk over a plan.
type run struct {
	in     *Interpreter
	o      *ops.Ops
	plan   *plan.ExecutionPlan
	source string
	req    Request

	outputs map[int][]string
	values  map[int]int
	skipped map[int]bool
	pending []string
	out     *Outcome
}

func newRun(in *Interpreter, o *ops.Ops, p *plan.ExecutionPlan, source string, req Request) *run {
	return &run{
		in:      in,
		o:       o,
		plan:    p,
		source:  source,
		req:     req,
		outputs: make(map[int][]string),
		values:  make(map[int]int),
		skipped: make(map[int]bool),
		out: &Outcome{
			Status:      StatusDone,
			Source:      source,
			Data:        make(map[string]any),
			Unsupported: slices.Clone(p.Unsupported),
		},
	}
}

func (r *run) step(start int) (*Outcome, error) {
	for i := start; i < len(r.plan.Steps); i++ {
		s := r.plan.Steps[i]
		for _, dep := range s.DependsOn {
			if dep < 0 || dep >= i {
				return nil, model.MalformedPlanf("step %d (%s) depends on step %d which has not run", i, s.Action, dep).
					WithDetail("plan", r.plan.Key().String())
			}
		}
		if r.shouldSkip(i, s) {
			r.skipped[i] = true
			r.in.logger.Debug("step skipped",
				zap.String("plan", r.plan.Key().String()),
				zap.Int("step", i),
				zap.String("action", string(s.Action)),
			)
			continue
		}

		if s.Action == plan.ActionWaitForSelection {
			suspended, err := r.selection(i, s)
			if err != nil {
				return nil, err
			}
			if suspended != nil {
				return suspended, nil
			}
			continue
		}

		if err := r.exec(i, s); err != nil {
			r.in.logger.Debug("step failed",
				zap.String("plan", r.plan.Key().String()),
				zap.Int("step", i),
				zap.String("action", string(s.Action)),
				zap.Error(err),
			)
			return nil, err
		}
	}
	if err := r.complete(); err != nil {
		return nil, err
	}
	return r.out, nil
}

// selection resolves a wait_for_selection step. It returns a suspended
// outcome when no answer is pending.
func (r *run) selection(i int, s plan.Step) (*Outcome, error) {
	cands, err := r.candidates(s)
	if err != nil {
		return nil, err
	}
	minCount, maxCount := bounds(s.Params, len(cands))

	if r.pending == nil {
		if len(cands) == 0 {
			r.skipped[i] = true
			return nil, nil
		}
		return r.suspend(i, s, cands, minCount, maxCount)
	}

	chosen := r.pending
	r.pending = nil
	if len(cands) == 0 && len(chosen) == 0 {
		r.skipped[i] = true
		return nil, nil
	}
	if len(chosen) < minCount || len(chosen) > maxCount {
		return nil, model.Validationf("choose between %d and %d cards, got %d", minCount, maxCount, len(chosen))
	}
	seen := make(map[string]bool, len(chosen))
	for _, uid := range chosen {
		if seen[uid] {
			return nil, model.Validationf("card %s chosen twice", uid)
		}
		seen[uid] = true
		if !slices.ContainsFunc(cands, func(c Candidate) bool { return c.UID == uid }) {
			return nil, model.Validationf("card %s is not a valid choice", uid).WithDetail("card_id", uid)
		}
	}
	r.outputs[i] = slices.Clone(chosen)
	return nil, nil
}

func bounds(p plan.Params, available int) (int, int) {
	maxCount := p.MaxCount
	if maxCount <= 0 || maxCount > available {
		maxCount = available
	}
	minCount := min(max(p.MinCount, 0), maxCount)
	return minCount, maxCount
}

func (r *run) suspend(i int, s plan.Step, cands []Candidate, minCount, maxCount int) (*Outcome, error) {
	tok := &Token{
		PlanKey:       r.plan.Key(),
		Source:        r.source,
		StepIndex:     i,
		Outputs:       r.outputs,
		Values:        r.values,
		PlayerID:      r.req.PlayerID,
		SourceUID:     r.req.SourceUID,
		Targets:       r.req.Targets,
		DamageTargets: r.req.DamageTargets,
		Drawn:         r.out.Drawn,
		KnockedOut:    r.out.KnockedOut,
		Damage:        r.out.Damage,
		EndTurn:       r.out.EndTurn,
		Plan:          r.plan,
	}
	tok.Skipped = r.skippedSteps()

	chooser := r.req.PlayerID
	if s.Params.Method == "opponent_chooses" {
		chooser = r.o.State().OpponentID(r.req.PlayerID)
	}
	prompt := s.Description
	if prompt == "" {
		prompt = "choose cards"
	}
	r.out.Status = StatusSuspended
	r.out.Message = fmt.Sprintf("%s: %s", r.plan.EffectName, prompt)
	r.out.Candidates = cands
	r.out.MinCount = minCount
	r.out.MaxCount = maxCount
	r.out.Chooser = chooser
	r.out.Prompt = prompt
	r.out.Token = tok
	return r.out, nil
}

func (r *run) skippedSteps() []int {
	var out []int
	for idx := range r.skipped {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// complete records usage counters once every step has run.
func (r *run) complete() error {
	pid := r.req.PlayerID
	switch r.plan.EffectType {
	case plan.EffectAbility:
		if r.plan.HasRule(plan.RuleAbilityUsed) || r.plan.HasRule(plan.RuleAbilityUsedGame) {
			if _, err := r.o.TrackUsage(pid, abilityKey(r.req.SourceUID, r.plan.EffectName, model.ScopeTurn)); err != nil {
				return err
			}
		}
		if r.plan.HasRule(plan.RuleAbilityUsedGame) {
			if _, err := r.o.TrackUsage(pid, abilityKey(r.req.SourceUID, r.plan.EffectName, model.ScopeGame)); err != nil {
				return err
			}
		}
	case plan.EffectTrainer:
		switch r.plan.EffectSubtype {
		case "Supporter":
			if _, err := r.o.TrackUsage(pid, playerKey(model.UsageSupporter)); err != nil {
				return err
			}
		case "Stadium":
			if _, err := r.o.TrackUsage(pid, playerKey(model.UsageStadium)); err != nil {
				return err
			}
		}
	}
	if r.out.Message == "" {
		r.out.Message = fmt.Sprintf("%s resolved", r.plan.EffectName)
	}
	r.out.Skipped = r.skippedSteps()
	if len(r.out.Skipped) > 0 {
		r.out.Data["skipped_steps"] = r.out.Skipped
	}
	if len(r.out.Unsupported) > 0 {
		r.out.Data["unsupported"] = r.out.Unsupported
		r.in.logger.Warn("effect resolved with unsupported clauses",
			zap.String("plan", r.plan.Key().String()),
			zap.Strings("clauses", r.out.Unsupported),
		)
	}
	return nil
}

func abilityKey(uid, name string, scope model.UsageScope) model.UsageKey {
	return model.UsageKey{EntityID: uid, Kind: model.UsageAbility + ":" + name, Scope: scope}
}

func playerKey(kind string) model.UsageKey {
	return model.UsageKey{EntityID: model.EntityPlayer, Kind: kind, Scope: model.ScopeTurn}
}

// PlayerUsageKey returns the turn-scoped per-player counter of kind.
func PlayerUsageKey(kind string) model.UsageKey {
	return playerKey(kind)
}
