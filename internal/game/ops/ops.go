// Package ops implements the atomic, unconditional state mutations of a match.
// Operations never check game legality: the caller is responsible for that.
// Every mutating call appends an audit entry that is sufficient to replay the
// mutation with Apply, including the random seed of shuffles and flips.
package ops

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// SystemActor is the actor recorded for operations not requested by a player.
const SystemActor = "referee"

// Ops applies primitives to one GameState and records the audit log.
type Ops struct {
	state  *model.GameState
	logger *zap.Logger

	actor   string
	log     []model.AuditEntry
	newSeed func() string
	now     func() time.Time
}

// Option configures an Ops instance.
type Option func(*Ops)

// WithSeedSource overrides the seed generator (tests use fixed seeds).
func WithSeedSource(fn func() string) Option {
	return func(o *Ops) { o.newSeed = fn }
}

// WithClock overrides the audit timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(o *Ops) { o.now = fn }
}

// New creates a new operations layer bound to state.
func New(state *model.GameState, logger *zap.Logger, opts ...Option) *Ops {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Ops{
		state:   state,
		logger:  logger,
		actor:   SystemActor,
		newSeed: NewSeed,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the bound game state.
func (o *Ops) State() *model.GameState {
	return o.state
}

// SetActor sets the actor recorded on subsequent audit entries.
func (o *Ops) SetActor(actor string) {
	if actor == "" {
		actor = SystemActor
	}
	o.actor = actor
}

// Log returns a copy of the audit log.
func (o *Ops) Log() []model.AuditEntry {
	out := make([]model.AuditEntry, len(o.log))
	copy(out, o.log)
	return out
}

// Len returns the number of audit entries.
func (o *Ops) Len() int {
	return len(o.log)
}

// Since returns the entries appended after the first n.
func (o *Ops) Since(n int) []model.AuditEntry {
	if n >= len(o.log) {
		return nil
	}
	out := make([]model.AuditEntry, len(o.log)-n)
	copy(out, o.log[n:])
	return out
}

// Truncate drops entries after the first n. Used together with a state
// bookmark to roll back a failed request.
func (o *Ops) Truncate(n int) {
	if n < len(o.log) {
		o.log = o.log[:n]
	}
}

func (o *Ops) record(action string, payload map[string]any, seed string) {
	entry := model.AuditEntry{
		Seq:        len(o.log) + 1,
		MatchID:    o.state.MatchID,
		Actor:      o.actor,
		Action:     action,
		Payload:    payload,
		RandomSeed: seed,
		Timestamp:  o.now().UTC(),
	}
	o.log = append(o.log, entry)
	o.logger.Debug("audit",
		zap.String("match_id", entry.MatchID),
		zap.Int("seq", entry.Seq),
		zap.String("actor", entry.Actor),
		zap.String("action", entry.Action),
		zap.String("seed", seed),
	)
}

// NewSeed returns a fresh 128-bit hex seed.
func NewSeed() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("ops: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// RNG derives a deterministic generator from a recorded seed.
func RNG(seed string) *mrand.Rand {
	sum := blake2b.Sum256([]byte(seed))
	return mrand.New(mrand.NewChaCha8(sum))
}

func (o *Ops) player(id string) (*model.PlayerState, error) {
	return o.state.Player(id)
}

func uids(cards []*model.CardInstance) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.UID
	}
	return out
}
