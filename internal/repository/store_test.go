package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/game/testutil"
)

// Every backend must satisfy the interfaces the engine consumes.
var (
	_ interpreter.PlanStore = (*MemoryStore)(nil)
	_ interpreter.PlanStore = (*SQLiteStore)(nil)
	_ interpreter.PlanStore = (*PostgresStore)(nil)
	_ referee.MatchStore    = (*MemoryStore)(nil)
	_ referee.MatchStore    = (*SQLiteStore)(nil)
	_ referee.MatchStore    = (*PostgresStore)(nil)
)

func samplePlan(card, effect string, version int, status plan.Status) *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		CardID:     card,
		CardName:   "Mentor",
		EffectType: plan.EffectTrainer,
		EffectName: effect,
		Steps: []plan.Step{
			{Action: plan.ActionDrawCards, Params: plan.Params{Count: 3}},
		},
		Status:  status,
		Version: version,
	}
}

func sampleMatch(t *testing.T, id string) *model.GameState {
	t.Helper()
	g, err := model.NewGameState(id, "alice", "bob")
	require.NoError(t, err)
	for _, d := range testutil.Decks(t, "alice", "bob") {
		g.Players[d.PlayerID].SetZone(model.ZoneDeck, d.Cards[:53])
		g.Players[d.PlayerID].SetZone(model.ZoneHand, d.Cards[53:])
	}
	g.FirstPlayer = "alice"
	g.Turn = rules.TurnState{Player: "alice", Number: 1, Phase: rules.PhaseMain}
	return g
}

func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("plans", func(t *testing.T) {
		_, err := s.Latest(ctx, "TST-Mentor", "Mentor")
		assert.True(t, model.IsKind(err, model.FailureNotFound))

		require.NoError(t, s.Put(ctx, samplePlan("TST-Mentor", "Mentor", 1, plan.StatusApproved)))
		require.NoError(t, s.Put(ctx, samplePlan("TST-Mentor", "Mentor", 2, plan.StatusDraft)))
		require.NoError(t, s.Put(ctx, samplePlan("TST-Other", "Other", 1, plan.StatusDraft)))

		latest, err := s.Latest(ctx, "TST-Mentor", "Mentor")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		require.Len(t, latest.Steps, 1)
		assert.Equal(t, plan.ActionDrawCards, latest.Steps[0].Action)

		reviewed, err := SetStatus(ctx, s, "TST-Mentor", "Mentor", 2, plan.StatusDeprecated, "judge")
		require.NoError(t, err)
		assert.Equal(t, "judge", reviewed.ReviewedBy)

		latest, err = s.Latest(ctx, "TST-Mentor", "Mentor")
		require.NoError(t, err)
		assert.Equal(t, 1, latest.Version, "deprecated versions are skipped")

		got, err := s.Get(ctx, "TST-Mentor", "Mentor", 2)
		require.NoError(t, err)
		assert.Equal(t, plan.StatusDeprecated, got.Status)
		require.NotNil(t, got.ReviewedAt)

		_, err = s.Get(ctx, "TST-Mentor", "Mentor", 9)
		assert.True(t, model.IsKind(err, model.FailureNotFound))

		all, err := s.List(ctx, PlanFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		mentor, err := s.List(ctx, PlanFilter{CardID: "TST-Mentor"})
		require.NoError(t, err)
		require.Len(t, mentor, 2)
		assert.Equal(t, 1, mentor[0].Version)
		drafts, err := s.List(ctx, PlanFilter{Status: plan.StatusDraft})
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, "TST-Other", drafts[0].CardID)

		assert.Error(t, s.Put(ctx, &plan.ExecutionPlan{}))
	})

	t.Run("matches", func(t *testing.T) {
		_, err := s.LoadSnapshot(ctx, "m-1")
		assert.True(t, model.IsKind(err, model.FailureNotFound))

		g := sampleMatch(t, "m-1")
		require.NoError(t, s.SaveSnapshot(ctx, g))
		g.Turn.Number = 2
		require.NoError(t, s.SaveSnapshot(ctx, g))

		loaded, err := s.LoadSnapshot(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Turn.Number)
		assert.Equal(t, testutil.ZoneUIDs(g, "bob", model.ZoneHand), testutil.ZoneUIDs(loaded, "bob", model.ZoneHand))

		now := time.Now().UTC().Truncate(time.Millisecond)
		batch := []model.AuditEntry{
			{Seq: 1, MatchID: "m-1", Actor: "alice", Action: "draw", Payload: map[string]any{"player_id": "alice", "count": 1}, Timestamp: now},
			{Seq: 2, MatchID: "m-1", Actor: "alice", Action: "shuffle", Payload: map[string]any{"player_id": "alice", "zone": "deck"}, RandomSeed: "abc", Timestamp: now},
		}
		require.NoError(t, s.AppendAudit(ctx, batch))
		// A retried batch must not duplicate entries.
		require.NoError(t, s.AppendAudit(ctx, append(batch, model.AuditEntry{
			Seq: 3, MatchID: "m-1", Actor: "bob", Action: "discard",
			Payload: map[string]any{"player_id": "bob", "cards": []string{"bob-01", "bob-02"}}, Timestamp: now,
		})))

		log, err := s.LoadAudit(ctx, "m-1")
		require.NoError(t, err)
		require.Len(t, log, 3)
		assert.Equal(t, "abc", log[1].RandomSeed)
		assert.Equal(t, 1, log[0].PayloadInt("count"))
		assert.Equal(t, []string{"bob-01", "bob-02"}, log[2].PayloadStrings("cards"))
		assert.True(t, now.Equal(log[0].Timestamp))

		empty, err := s.LoadAudit(ctx, "m-unknown")
		require.NoError(t, err)
		assert.Empty(t, empty)

		matches, err := s.ListMatches(ctx)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "m-1", matches[0].MatchID)
		assert.Equal(t, "alice", matches[0].TurnPlayer)
		assert.Equal(t, "main", matches[0].Phase)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "referee.db")
	s, err := NewSQLiteStore(ctx, SQLiteConfig{Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrating twice is a no-op")
	runStoreSuite(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PTCG_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("PTCG_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{Driver: "postgres", URL: url, Migrate: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	runStoreSuite(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db"), Migrate: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

// The stores plug into the referee: every applied request is mirrored.
func TestRefereePersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ref, err := referee.New("m-live", testutil.Decks(t, "alice", "bob"),
		referee.WithLogger(zaptest.NewLogger(t)),
		referee.WithMatchStore(store),
	)
	require.NoError(t, err)
	_, err = ref.Setup(ctx, referee.SetupOptions{FirstPlayer: "alice", AutoActive: true})
	require.NoError(t, err)
	res := ref.Handle(ctx, referee.Request{ActorID: "alice", Action: "start_turn"})
	require.True(t, res.Success, res.Message)

	snap, err := store.LoadSnapshot(ctx, "m-live")
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseMain, snap.Turn.Phase)

	log, err := store.LoadAudit(ctx, "m-live")
	require.NoError(t, err)
	assert.Len(t, log, len(ref.Log()))
}
