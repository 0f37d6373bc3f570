package game

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/testutil"
)

type recordingHooks struct {
	mu      sync.Mutex
	started []string
	ended   []string
	actions map[string]int
}

func (h *recordingHooks) MatchStarted(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, matchID)
}

func (h *recordingHooks) MatchEnded(matchID, winner, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, matchID+":"+reason)
}

func (h *recordingHooks) ActionHandled(action string, success bool, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.actions == nil {
		h.actions = make(map[string]int)
	}
	if success {
		h.actions[action]++
	}
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	reg := NewRegistry(zaptest.NewLogger(t), WithHooks(hooks))

	id, res, err := reg.Create(ctx, "m-1", testutil.Decks(t, "alice", "bob"), referee.SetupOptions{FirstPlayer: "bob", AutoActive: true})
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	assert.Equal(t, "bob", res.Data["first_player"])
	assert.Equal(t, 1, reg.Len())

	_, _, err = reg.Create(ctx, "m-1", testutil.Decks(t, "alice", "bob"), referee.SetupOptions{})
	assert.True(t, model.IsKind(err, model.FailureValidation))

	generated, _, err := reg.Create(ctx, "", testutil.Decks(t, "carol", "dave"), referee.SetupOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, generated)

	submit(t, reg, id, "bob", "start_turn", nil)
	view, err := reg.View(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", view.TurnPlayer)
	assert.Equal(t, "main", view.Phase)

	infos := reg.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "m-1", infos[0].MatchID)
	assert.Equal(t, []string{"alice", "bob"}, infos[0].Players)

	_, err = reg.Submit(ctx, "nope", referee.Request{ActorID: "alice", Action: "draw"})
	assert.True(t, model.IsKind(err, model.FailureNotFound))

	require.NoError(t, reg.Remove(id))
	assert.True(t, model.IsKind(reg.Remove(id), model.FailureNotFound))
	assert.Equal(t, 1, reg.Len())

	assert.Equal(t, []string{"m-1", generated}, hooks.started)
	assert.Equal(t, []string{"m-1:removed"}, hooks.ended)
	assert.Equal(t, 1, hooks.actions["start_turn"])
}

func TestRegistryRejectsBadDecks(t *testing.T) {
	reg := NewRegistry(nil)
	_, _, err := reg.Create(context.Background(), "", testutil.Decks(t, "alice"), referee.SetupOptions{})
	assert.True(t, model.IsKind(err, model.FailureValidation))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistrySerialisesConcurrentRequests(t *testing.T) {
	reg, id := playedMatch(t)
	snap, err := reg.Snapshot(id)
	require.NoError(t, err)
	player := snap.Turn.Player

	var wg sync.WaitGroup
	results := make([]*referee.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := reg.Submit(context.Background(), id, referee.Request{ActorID: player, Action: "start_turn"})
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "only one start_turn can apply")
}

func TestRegistryLimit(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t), WithLimit(1))
	_, _, err := reg.Create(context.Background(), "", testutil.Decks(t, "alice", "bob"), referee.SetupOptions{AutoActive: true})
	require.NoError(t, err)
	_, _, err = reg.Create(context.Background(), "", testutil.Decks(t, "carol", "dave"), referee.SetupOptions{AutoActive: true})
	assert.True(t, model.IsKind(err, model.FailureValidation))
}

func TestRegistryLimitHoldsUnderConcurrentCreates(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t), WithLimit(2))
	decks := make([][]*model.Deck, 8)
	for i := range decks {
		decks[i] = testutil.Decks(t, "alice", "bob")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(decks))
	for i := range decks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = reg.Create(context.Background(), "", decks[i], referee.SetupOptions{AutoActive: true})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, model.IsKind(err, model.FailureValidation), err)
	}
	assert.Equal(t, 2, created)
	assert.Len(t, reg.List(), 2)
}

func TestRegistrySavesReplayWhenMatchEnds(t *testing.T) {
	dir := t.TempDir()
	hooks := &recordingHooks{}
	reg := NewRegistry(zaptest.NewLogger(t), WithReplayDir(dir), WithHooks(hooks))
	id, _, err := reg.Create(context.Background(), "m-end", testutil.Decks(t, "alice", "bob"), referee.SetupOptions{FirstPlayer: "alice", AutoActive: true})
	require.NoError(t, err)

	submit(t, reg, id, "alice", "start_turn", nil)
	submit(t, reg, id, "alice", "end_turn", nil)

	// bob decks out at the start of his turn.
	reg.matches[id].ref.State().Players["bob"].SetZone(model.ZoneDeck, nil)
	res := submit(t, reg, id, "bob", "start_turn", nil)
	assert.Equal(t, "alice", res.Data["winner"])

	_, err = os.Stat(filepath.Join(dir, Filename(id)))
	require.NoError(t, err)
	assert.Equal(t, []string{"m-end:" + referee.WinDeckOut}, hooks.ended)

	// Further requests do not end the match twice.
	_, err = reg.Submit(context.Background(), id, referee.Request{ActorID: "bob", Action: "end_turn"})
	require.NoError(t, err)
	assert.Len(t, hooks.ended, 1)
}
