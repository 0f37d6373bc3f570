package game

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/testutil"
)

// playedMatch hosts a match and plays the first two turns using only cards
// the players actually drew.
func playedMatch(t *testing.T) (*Registry, string) {
	t.Helper()
	ctx := context.Background()
	reg := NewRegistry(zaptest.NewLogger(t))
	id, _, err := reg.Create(ctx, "", testutil.Decks(t, "alice", "bob"), referee.SetupOptions{AutoActive: true})
	require.NoError(t, err)

	for turn := 0; turn < 2; turn++ {
		snap, err := reg.Snapshot(id)
		require.NoError(t, err)
		player := snap.Turn.Player
		if turn == 0 {
			player = snap.FirstPlayer
		}
		submit(t, reg, id, player, "start_turn", nil)

		snap, err = reg.Snapshot(id)
		require.NoError(t, err)
		for _, c := range snap.Players[player].Zone(model.ZoneHand) {
			if c.Definition.Category == model.CategoryEnergy {
				submit(t, reg, id, player, "attach_energy", map[string]any{"card_id": c.UID})
				break
			}
		}
		submit(t, reg, id, player, "end_turn", nil)
	}
	return reg, id
}

func submit(t *testing.T, reg *Registry, matchID, actor, action string, payload map[string]any) *referee.Result {
	t.Helper()
	res, err := reg.Submit(context.Background(), matchID, referee.Request{ActorID: actor, Action: action, Payload: payload})
	require.NoError(t, err)
	require.True(t, res.Success, "%s %s: %s", actor, action, res.Message)
	return res
}

func TestReplayReproducesFinalState(t *testing.T) {
	reg, id := playedMatch(t)
	rec, err := reg.Recording(id)
	require.NoError(t, err)
	require.NotEmpty(t, rec.Entries)

	replayed, err := rec.Replay(zaptest.NewLogger(t))
	require.NoError(t, err)
	live, err := reg.Snapshot(id)
	require.NoError(t, err)

	want, err := ComputeChecksum(live)
	require.NoError(t, err)
	ok, err := VerifyChecksum(replayed, want)
	require.NoError(t, err)
	assert.True(t, ok, "replayed state diverged from the live state")
}

func TestReplayToPrefix(t *testing.T) {
	reg, id := playedMatch(t)
	rec, err := reg.Recording(id)
	require.NoError(t, err)

	start, err := rec.ReplayTo(0, nil)
	require.NoError(t, err)
	initial, _ := ComputeChecksum(rec.Initial)
	ok, err := VerifyChecksum(start, initial)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rec.ReplayTo(len(rec.Entries)+1, nil)
	assert.Error(t, err)
}

func TestRecordingFileRoundtrip(t *testing.T) {
	reg, id := playedMatch(t)
	rec, err := reg.Recording(id)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "replays")
	path, err := rec.SaveToFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Filename(id)), path)

	loaded, err := LoadRecording(path)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.MatchID)
	require.Len(t, loaded.Entries, len(rec.Entries))
	for i := range rec.Entries {
		assert.Equal(t, rec.Entries[i].Action, loaded.Entries[i].Action)
		assert.Equal(t, rec.Entries[i].RandomSeed, loaded.Entries[i].RandomSeed)
	}

	a, err := rec.Replay(nil)
	require.NoError(t, err)
	b, err := loaded.Replay(nil)
	require.NoError(t, err)
	sa, _ := ComputeChecksum(a)
	sb, _ := ComputeChecksum(b)
	assert.Equal(t, sa.Hash, sb.Hash)
}

func TestLoadRecordingErrors(t *testing.T) {
	_, err := LoadRecording(filepath.Join(t.TempDir(), "missing.replay"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.replay")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0o600))
	_, err = LoadRecording(garbage)
	assert.Error(t, err)
}
