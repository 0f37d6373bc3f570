package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens the database at cfg.Path, creating its directory.
func NewSQLiteStore(ctx context.Context, cfg SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("opened sqlite store", zap.String("path", cfg.Path))
	return &SQLiteStore{db: db, path: cfg.Path, logger: logger}, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate brings the schema up to date.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, _ := m.Version()
	s.logger.Info("sqlite schema up to date", zap.Uint("version", version))
	return nil
}

// Get implements PlanStore.
func (s *SQLiteStore) Get(ctx context.Context, cardID, effectName string, version int) (*plan.ExecutionPlan, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM plans WHERE card_id = ? AND effect_name = ? AND version = ?`,
		cardID, effectName, version,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("plan %s %q v%d not found", cardID, effectName, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return decodePlan([]byte(body))
}

// Latest implements PlanStore.
func (s *SQLiteStore) Latest(ctx context.Context, cardID, effectName string) (*plan.ExecutionPlan, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM plans
		WHERE card_id = ? AND effect_name = ? AND status <> ?
		ORDER BY version DESC
		LIMIT 1`,
		cardID, effectName, string(plan.StatusDeprecated),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, planNotFound(cardID, effectName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}
	return decodePlan([]byte(body))
}

// Put implements PlanStore.
func (s *SQLiteStore) Put(ctx context.Context, p *plan.ExecutionPlan) error {
	body, err := encodePlan(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (card_id, effect_name, version, status, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (card_id, effect_name, version)
		DO UPDATE SET status = excluded.status, body = excluded.body, updated_at = excluded.updated_at`,
		p.CardID, p.EffectName, p.Version, string(p.Status), string(body), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store plan %s: %w", p.Key(), err)
	}
	return nil
}

// List implements PlanStore.
func (s *SQLiteStore) List(ctx context.Context, filter PlanFilter) ([]*plan.ExecutionPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM plans
		WHERE (? = '' OR card_id = ?) AND (? = '' OR effect_name = ?) AND (? = '' OR status = ?)
		ORDER BY card_id, effect_name, version`,
		filter.CardID, filter.CardID,
		filter.EffectName, filter.EffectName,
		string(filter.Status), string(filter.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*plan.ExecutionPlan
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		p, err := decodePlan([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveSnapshot implements MatchStore.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, state *model.GameState) error {
	data, err := game.EncodeState(state)
	if err != nil {
		return err
	}
	sum := summarize(state)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, turn_player, turn_number, phase, winner, snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			turn_player = excluded.turn_player,
			turn_number = excluded.turn_number,
			phase = excluded.phase,
			winner = excluded.winner,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		sum.MatchID, sum.TurnPlayer, sum.TurnNumber, sum.Phase, sum.Winner, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", state.MatchID, err)
	}
	return nil
}

// AppendAudit implements MatchStore. The batch is written in one transaction.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_logs (match_id, seq, actor, action, payload, random_seed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, seq) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload #%d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, e.MatchID, e.Seq, e.Actor, e.Action, string(payload), e.RandomSeed, e.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("failed to append audit entry #%d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

// LoadSnapshot implements MatchStore.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, matchID string) (*model.GameState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM matches WHERE match_id = ?`, matchID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("no snapshot stored for match %s", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return game.DecodeState([]byte(data))
}

// LoadAudit implements MatchStore.
func (s *SQLiteStore) LoadAudit(ctx context.Context, matchID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, actor, action, payload, random_seed, created_at
		FROM match_logs WHERE match_id = ? ORDER BY seq`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			payload string
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.Actor, &e.Action, &payload, &e.RandomSeed, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload #%d: %w", e.Seq, err)
		}
		e.MatchID = matchID
		e.Timestamp = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMatches implements MatchStore.
func (s *SQLiteStore) ListMatches(ctx context.Context) ([]MatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, turn_player, turn_number, phase, winner, updated_at
		FROM matches ORDER BY match_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var (
			m       MatchSummary
			updated int64
		)
		if err := rows.Scan(&m.MatchID, &m.TurnPlayer, &m.TurnNumber, &m.Phase, &m.Winner, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
