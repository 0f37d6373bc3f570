package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/testutil"
	"github.com/ptcgai/referee-server-go/internal/server"
)

const (
	cardsPath    = "../../../data/cards.yaml"
	deckPath     = "../../../data/decks/lightning.yaml"
	rulebookPath = "../../../data/rulebook.txt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig points the database at a fresh SQLite file.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cards, err := filepath.Abs(cardsPath)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
  migrate: true
engine:
  catalog_path: %s
`, filepath.Join(dir, "referee.db"), cards)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCompilePrintsPlans(t *testing.T) {
	out, err := run(t, "compile", "--catalog", cardsPath, "SVI-181")
	require.NoError(t, err)

	var plans []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "SVI-181", plans[0]["card_id"])
	assert.Equal(t, "Nest Ball", plans[0]["effect_name"])
	assert.NotEmpty(t, plans[0]["execution_steps"])

	out, err = run(t, "compile", "--catalog", cardsPath, "--format", "yaml", "Nest Ball")
	require.NoError(t, err)
	assert.Contains(t, out, "effect_name: Nest Ball")

	out, err = run(t, "compile", "--catalog", cardsPath, "--effect", "Overvolt Discharge", "Magneton")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "ability", plans[0]["effect_type"])
}

func TestCompileRejectsBadInput(t *testing.T) {
	_, err := run(t, "compile", "--catalog", cardsPath)
	assert.Error(t, err)

	_, err = run(t, "compile", "--catalog", cardsPath, "Mewtwo")
	assert.ErrorContains(t, err, "Mewtwo")

	_, err = run(t, "compile", "--catalog", cardsPath, "--format", "xml", "SVI-181")
	assert.ErrorContains(t, err, "xml")
}

func TestStoredPlanLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "-c", cfg, "compile", "--all", "--store")
	require.NoError(t, err)
	assert.Contains(t, out, "stored")

	out, err = run(t, "-c", cfg, "plans", "list", "--card", "SVI-181")
	require.NoError(t, err)
	assert.Contains(t, out, "Nest Ball")
	assert.Contains(t, out, "draft")

	out, err = run(t, "-c", cfg, "plans", "review", "SVI-181", "Nest Ball", "1", "--status", "approved", "--by", "judge")
	require.NoError(t, err)
	assert.Contains(t, out, "is now approved")

	out, err = run(t, "-c", cfg, "plans", "show", "SVI-181", "Nest Ball")
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "approved", p["status"])
	assert.Equal(t, "judge", p["reviewed_by"])

	_, err = run(t, "-c", cfg, "plans", "review", "SVI-181", "Nest Ball", "9")
	assert.Error(t, err)
	_, err = run(t, "-c", cfg, "plans", "list", "--status", "bogus")
	assert.Error(t, err)
}

func TestDeckValidate(t *testing.T) {
	out, err := run(t, "deck", "validate", "--catalog", cardsPath, deckPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (60 cards)")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cards:\n  - {card: SVI-62, count: 6}\n"), 0o644))
	out, err = run(t, "deck", "validate", "--catalog", cardsPath, bad)
	assert.Error(t, err)
	assert.Contains(t, out, "needs exactly 60")
	assert.Contains(t, out, "at most 4 allowed")
}

func TestCatalogImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cards.csv")
	require.NoError(t, os.WriteFile(src, []byte(`name,supertype,subtypes,hp,set_code,number
Pikachu,Pokémon,Basic,60,SVI,62
Nest Ball,Trainer,Item,,SVI,181
`), 0o644))

	out, err := run(t, "catalog", "import", "--csv", src)
	require.NoError(t, err)
	assert.Contains(t, out, "name: Nest Ball")

	dst := filepath.Join(dir, "cards.yaml")
	out, err = run(t, "catalog", "import", "--csv", src, "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 cards")
	cards, err := catalog.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, cards.Len())

	_, err = run(t, "catalog", "import")
	assert.Error(t, err)
}

func TestRulesSearch(t *testing.T) {
	out, err := run(t, "rules", "--rulebook", rulebookPath, "poisoned")
	require.NoError(t, err)
	assert.Contains(t, out, "4.2")

	out, err = run(t, "rules", "--rulebook", rulebookPath, "--limit", "1", "supporter")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2.4 "), out)
	assert.Equal(t, 1, strings.Count(out, "\n"))

	out, err = run(t, "rules", "--rulebook", rulebookPath, "teleport")
	require.NoError(t, err)
	assert.Contains(t, out, "no matching rules")
}

func TestReplayShowAndVerify(t *testing.T) {
	ctx := context.Background()
	ref, err := referee.New("m-rec", testutil.Decks(t, "alice", "bob"), referee.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	_, err = ref.Setup(ctx, referee.SetupOptions{FirstPlayer: "alice", AutoActive: true})
	require.NoError(t, err)
	res := ref.Handle(ctx, referee.Request{ActorID: "alice", Action: "start_turn"})
	require.True(t, res.Success, res.Message)

	rec := &game.Recording{MatchID: "m-rec", Initial: ref.Initial(), Entries: ref.Log()}
	path, err := rec.SaveToFile(t.TempDir())
	require.NoError(t, err)

	out, err := run(t, "replay", "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("match m-rec: %d entries", len(ref.Log())))
	assert.Contains(t, out, "shuffle")

	sum, err := game.ComputeChecksum(ref.State())
	require.NoError(t, err)
	out, err = run(t, "replay", "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, sum.Hash)
	assert.Contains(t, out, "phase main")
}

func TestMatchCommandsTalkToServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cards, err := catalog.Load(cardsPath)
	require.NoError(t, err)
	registry := game.NewRegistry(logger)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	server.RegisterRefereeServer(srv, server.NewRefereeService(registry, cards, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	addr := lis.Addr().String()

	out, err := run(t, "match", "create", "--addr", addr, "--id", "m-cli",
		"--player", "alice", "--deck", deckPath,
		"--player", "bob", "--deck", deckPath,
		"--first", "alice", "--auto-active")
	require.NoError(t, err)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "m-cli", created["match_id"])

	out, err = run(t, "match", "submit", "--addr", addr, "--match", "m-cli", "--actor", "alice", "start_turn")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["success"])

	out, err = run(t, "match", "state", "--addr", addr, "--match", "m-cli", "--viewer", "bob")
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "main", view["phase"])
	assert.Equal(t, "alice", view["turn_player"])

	_, err = run(t, "match", "submit", "--addr", addr, "--match", "m-cli", "--actor", "alice", "--payload", "{", "draw")
	assert.ErrorContains(t, err, "invalid payload")
}
