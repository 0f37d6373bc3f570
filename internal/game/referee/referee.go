// Package referee arbitrates one match. A Referee owns the match state, checks
// every request for turn ownership and legality, runs card effects through the
// interpreter and rolls the state back when a request fails part way.
package referee

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/ops"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/rulebook"
)

// Win reasons recorded on the game state.
const (
	WinPrizes    = "prizes"
	WinDeckOut   = "deck_out"
	WinNoPokemon = "no_pokemon"
)

// MatchStore persists the snapshots and the audit log of a match.
type MatchStore interface {
	SaveSnapshot(ctx context.Context, state *model.GameState) error
	AppendAudit(ctx context.Context, entries []model.AuditEntry) error
}

// RuleFinder answers rulebook queries.
type RuleFinder interface {
	Find(query string, limit int) []rulebook.Entry
}

// Referee is the single owner of one match. It is not safe for concurrent
// use; the registry serialises requests per match.
type Referee struct {
	logger   *zap.Logger
	state    *model.GameState
	initial  *model.GameState
	ops      *ops.Ops
	interp   *interpreter.Interpreter
	legality *rules.LegalityChecker
	events   *rules.EventBus
	rules    RuleFinder
	store    MatchStore

	pending   *pendingSelection
	persisted int
}

// pendingSelection is a suspended effect waiting for a player's choice.
type pendingSelection struct {
	token   *interpreter.Token
	chooser string
	effect  plan.EffectType
}

type settings struct {
	logger  *zap.Logger
	interp  *interpreter.Interpreter
	events  *rules.EventBus
	rules   RuleFinder
	store   MatchStore
	opsOpts []ops.Option
}

// Option configures a Referee.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithInterpreter replaces the default interpreter, which compiles card text
// on demand and falls back to the legacy text path.
func WithInterpreter(in *interpreter.Interpreter) Option {
	return func(s *settings) { s.interp = in }
}

// WithEventBus publishes match events to bus instead of a private one.
func WithEventBus(bus *rules.EventBus) Option {
	return func(s *settings) { s.events = bus }
}

// WithRuleBook enables query_rule.
func WithRuleBook(f RuleFinder) Option {
	return func(s *settings) { s.rules = f }
}

// WithMatchStore persists snapshots and audit entries after every applied request.
func WithMatchStore(store MatchStore) Option {
	return func(s *settings) { s.store = store }
}

// WithOpsOptions passes options to the operations layer (seed source, clock).
func WithOpsOptions(opts ...ops.Option) Option {
	return func(s *settings) { s.opsOpts = append(s.opsOpts, opts...) }
}

// New seats the owners of the two decks and puts each deck into its
// owner's deck zone. The match starts in the init phase; call Setup next.
func New(matchID string, decks []*model.Deck, opts ...Option) (*Referee, error) {
	if len(decks) != 2 || decks[0] == nil || decks[1] == nil {
		return nil, model.Validationf("a match needs two decks")
	}
	for _, d := range decks {
		if !d.HasBasicPokemon() {
			return nil, model.Validationf("deck of %s has no Basic Pokémon", d.PlayerID)
		}
	}
	state, err := model.NewGameState(matchID, decks[0].PlayerID, decks[1].PlayerID)
	if err != nil {
		return nil, err
	}
	for _, d := range decks {
		state.Players[d.PlayerID].SetZone(model.ZoneDeck, append([]*model.CardInstance(nil), d.Cards...))
	}
	if err := state.CheckZoneExclusivity(); err != nil {
		return nil, model.Validationf("decks share cards: %v", err)
	}

	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.interp == nil {
		s.interp = interpreter.New(interpreter.Chain{
			interpreter.NewCompiledSource(nil, nil, s.logger),
			interpreter.NewLegacySource(s.logger),
		}, s.logger)
	}
	if s.events == nil {
		s.events = rules.NewEventBus()
	}

	r := &Referee{
		logger:  s.logger.With(zap.String("match_id", matchID)),
		state:   state,
		initial: state.Clone(),
		ops:     ops.New(state, s.logger, s.opsOpts...),
		interp:  s.interp,
		events:  s.events,
		rules:   s.rules,
		store:   s.store,
	}
	r.legality = rules.NewLegalityChecker(stateAccessor{state: state})
	r.publish(rules.NewEvent(rules.EventMatchCreated, matchID, "", ""))
	return r, nil
}

// MatchID returns the id of the match.
func (r *Referee) MatchID() string {
	return r.state.MatchID
}

// State returns the live state. Callers must not mutate it.
func (r *Referee) State() *model.GameState {
	return r.state
}

// Snapshot returns a deep copy of the current state.
func (r *Referee) Snapshot() *model.GameState {
	return r.state.Clone()
}

// Initial returns a copy of the state before the first logged operation.
// Replaying Log against it reproduces the current state.
func (r *Referee) Initial() *model.GameState {
	return r.initial.Clone()
}

// Log returns the audit log of the match.
func (r *Referee) Log() []model.AuditEntry {
	return r.ops.Log()
}

// Events returns the bus match events are published on.
func (r *Referee) Events() *rules.EventBus {
	return r.events
}

// Pending reports whether an effect is waiting for a selection and who must make it.
func (r *Referee) Pending() (string, bool) {
	if r.pending == nil {
		return "", false
	}
	return r.pending.chooser, true
}

// bookmark is the state a failed request is rolled back to.
type bookmark struct {
	state   *model.GameState
	log     int
	pending *pendingSelection
}

func (r *Referee) bookmark() bookmark {
	return bookmark{state: r.state.Clone(), log: r.ops.Len(), pending: r.pending}
}

func (r *Referee) restore(bm bookmark) {
	r.state.Restore(bm.state)
	r.ops.Truncate(bm.log)
	r.pending = bm.pending
}

// Handle processes one request. Mutating requests are bookmarked first; a
// failure restores the bookmark so the state is never partially changed.
func (r *Referee) Handle(ctx context.Context, req Request) *Result {
	kind, err := ParseAction(req.Action)
	if err != nil {
		return failed(model.Validationf("%v", err).WithDetail("action", req.Action))
	}
	p := payload(req.Payload)

	if !kind.Mutates() {
		res, err := r.query(kind, req.ActorID, p)
		if err != nil {
			return failed(err)
		}
		return res
	}

	if err := r.admit(kind, req.ActorID); err != nil {
		r.publishFailure(req, err)
		return failed(err)
	}

	bm := r.bookmark()
	r.ops.SetActor(req.ActorID)
	defer r.ops.SetActor("")

	res, err := r.dispatch(ctx, kind, req.ActorID, p)
	if err == nil {
		err = r.checkWinner()
	}
	if err != nil {
		mutated := r.ops.Len() > bm.log
		r.restore(bm)
		if mutated {
			r.logger.Info("auto-restored match state after error",
				zap.String("actor", req.ActorID),
				zap.String("action", kind.String()),
				zap.Error(err),
			)
			err = fmt.Errorf("action failed and state restored: %w", err)
		} else {
			r.logger.Debug("request rejected",
				zap.String("actor", req.ActorID),
				zap.String("action", kind.String()),
				zap.Error(err),
			)
		}
		r.publishFailure(req, err)
		return failed(err)
	}

	r.persist(ctx)
	if r.state.IsOver() {
		res.Data["winner"] = r.state.Winner
		res.Data["win_reason"] = r.state.WinReason
	}
	evt := rules.NewEvent(rules.EventActionApplied, r.state.MatchID, req.ActorID, "")
	evt.Data = kind.String()
	r.publish(evt)
	return res
}

// admit rejects requests that cannot apply to the match at all.
func (r *Referee) admit(kind ActionKind, actor string) error {
	if r.state.IsOver() {
		return model.TurnViolationf("match %s is over", r.state.MatchID)
	}
	if _, err := r.state.Player(actor); err != nil {
		return err
	}
	if r.pending != nil && kind != ActionSelect {
		return model.Validationf("a selection by %s is pending; answer it with select first", r.pending.chooser)
	}
	return nil
}

func (r *Referee) dispatch(ctx context.Context, kind ActionKind, actor string, p payload) (*Result, error) {
	switch kind {
	case ActionStartTurn:
		return r.startTurn(actor)
	case ActionDraw:
		return r.draw(actor, p)
	case ActionDiscard:
		return r.discard(actor, p)
	case ActionTakePrize:
		return r.takePrize(actor, p)
	case ActionMoveToBench:
		return r.moveToBench(actor, p)
	case ActionSetActive:
		return r.setActive(actor, p)
	case ActionAttachEnergy:
		return r.attachEnergy(ctx, actor, p)
	case ActionEvolvePokemon:
		return r.evolve(actor, p)
	case ActionSwitchPokemon:
		return r.switchPokemon(actor, p)
	case ActionRetreat:
		return r.retreat(actor, p)
	case ActionPlayTrainer:
		return r.playTrainer(ctx, actor, p)
	case ActionUseAbility:
		return r.useAbility(ctx, actor, p)
	case ActionUseAttack:
		return r.useAttack(ctx, actor, p)
	case ActionEndTurn:
		return r.endTurn(actor)
	case ActionSelect:
		return r.selectCards(ctx, actor, p)
	case ActionQueryRule, ActionQueryState, ActionUnknown:
	}
	return nil, model.Validationf("action %s cannot be applied", kind)
}

// persist hands new audit entries and a snapshot to the store. Store errors
// are logged and never undo the applied request; unsent entries are retried
// with the next request.
func (r *Referee) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	if entries := r.ops.Since(r.persisted); len(entries) > 0 {
		if err := r.store.AppendAudit(ctx, entries); err != nil {
			r.logger.Error("failed to append audit entries",
				zap.Int("entries", len(entries)),
				zap.Error(err),
			)
			return
		}
		r.persisted = r.ops.Len()
	}
	if err := r.store.SaveSnapshot(ctx, r.state); err != nil {
		r.logger.Error("failed to save match snapshot", zap.Error(err))
	}
}

func (r *Referee) publish(evt rules.Event) {
	if evt.MatchID == "" {
		evt.MatchID = r.state.MatchID
	}
	r.events.Publish(evt)
}

func (r *Referee) emit(t rules.EventType, player, target string, amount int) {
	r.publish(rules.NewEventWithAmount(t, r.state.MatchID, player, target, amount))
}

func (r *Referee) publishFailure(req Request, err error) {
	evt := rules.NewEvent(rules.EventActionFailed, r.state.MatchID, req.ActorID, "")
	evt.Data = req.Action
	evt.Metadata["error"] = err.Error()
	r.publish(evt)
}

// checkWinner declares a winner when a player took every prize or one
// player has no Pokémon in play. The turn player is checked first.
func (r *Referee) checkWinner() error {
	if r.state.IsOver() {
		return nil
	}
	switch r.state.Turn.Phase {
	case rules.PhaseInit, rules.PhaseSetup:
		return nil
	}
	order := []string{r.state.Turn.Player, r.state.OpponentID(r.state.Turn.Player)}
	for _, id := range order {
		if p := r.state.Players[id]; p != nil && p.PrizesRemaining <= 0 {
			return r.declare(id, WinPrizes)
		}
	}
	for _, id := range order {
		p := r.state.Players[id]
		if p != nil && p.Active() == nil && len(p.Bench()) == 0 {
			return r.declare(r.state.OpponentID(id), WinNoPokemon)
		}
	}
	return nil
}

func (r *Referee) declare(winner, reason string) error {
	if err := r.ops.DeclareWinner(winner, reason); err != nil {
		return err
	}
	r.pending = nil
	evt := rules.NewEvent(rules.EventGameOver, r.state.MatchID, winner, "")
	evt.Data = reason
	r.publish(evt)
	return nil
}

// violation converts a failed legality result into a ValidationFailure.
func violation(res rules.LegalityResult) error {
	f := model.Validationf("%s", res.Reason)
	for k, v := range res.Details {
		f = f.WithDetail(k, v)
	}
	return f
}
