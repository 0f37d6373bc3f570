package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ptcgai/referee-server-go/internal/config"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/plan"
)

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to cfg.URL and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to postgres",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate brings the schema up to date.
func (s *PostgresStore) Migrate(_ context.Context) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	// Releases the connection the driver holds; db itself belongs to us.
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, _ := m.Version()
	s.logger.Info("postgres schema up to date", zap.Uint("version", version))
	return nil
}

// Get implements PlanStore.
func (s *PostgresStore) Get(ctx context.Context, cardID, effectName string, version int) (*plan.ExecutionPlan, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM plans WHERE card_id = $1 AND effect_name = $2 AND version = $3`,
		cardID, effectName, version,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NotFoundf("plan %s %q v%d not found", cardID, effectName, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return decodePlan(body)
}

// Latest implements PlanStore.
func (s *PostgresStore) Latest(ctx context.Context, cardID, effectName string) (*plan.ExecutionPlan, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM plans
		WHERE card_id = $1 AND effect_name = $2 AND status <> $3
		ORDER BY version DESC
		LIMIT 1`,
		cardID, effectName, string(plan.StatusDeprecated),
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, planNotFound(cardID, effectName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}
	return decodePlan(body)
}

// Put implements PlanStore.
func (s *PostgresStore) Put(ctx context.Context, p *plan.ExecutionPlan) error {
	body, err := encodePlan(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO plans (card_id, effect_name, version, status, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (card_id, effect_name, version)
		DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body, updated_at = NOW()`,
		p.CardID, p.EffectName, p.Version, string(p.Status), body,
	)
	if err != nil {
		return fmt.Errorf("failed to store plan %s: %w", p.Key(), err)
	}
	return nil
}

// List implements PlanStore.
func (s *PostgresStore) List(ctx context.Context, filter PlanFilter) ([]*plan.ExecutionPlan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT body FROM plans
		WHERE ($1 = '' OR card_id = $1) AND ($2 = '' OR effect_name = $2) AND ($3 = '' OR status = $3)
		ORDER BY card_id, effect_name, version`,
		filter.CardID, filter.EffectName, string(filter.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to scan plans: %w", err)
	}
	out := make([]*plan.ExecutionPlan, 0, len(bodies))
	for _, body := range bodies {
		p, err := decodePlan(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveSnapshot implements MatchStore.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, state *model.GameState) error {
	data, err := game.EncodeState(state)
	if err != nil {
		return err
	}
	sum := summarize(state)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO matches (match_id, turn_player, turn_number, phase, winner, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (match_id) DO UPDATE SET
			turn_player = EXCLUDED.turn_player,
			turn_number = EXCLUDED.turn_number,
			phase = EXCLUDED.phase,
			winner = EXCLUDED.winner,
			snapshot = EXCLUDED.snapshot,
			updated_at = NOW()`,
		sum.MatchID, sum.TurnPlayer, sum.TurnNumber, sum.Phase, sum.Winner, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", state.MatchID, err)
	}
	return nil
}

// AppendAudit implements MatchStore. The batch is sent in one round trip.
func (s *PostgresStore) AppendAudit(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload #%d: %w", e.Seq, err)
		}
		batch.Queue(`
			INSERT INTO match_logs (match_id, seq, actor, action, payload, random_seed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (match_id, seq) DO NOTHING`,
			e.MatchID, e.Seq, e.Actor, e.Action, payload, e.RandomSeed, e.Timestamp,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append audit batch: %w", err)
	}
	return nil
}

// LoadSnapshot implements MatchStore.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, matchID string) (*model.GameState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM matches WHERE match_id = $1`, matchID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NotFoundf("no snapshot stored for match %s", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return game.DecodeState(data)
}

// LoadAudit implements MatchStore.
func (s *PostgresStore) LoadAudit(ctx context.Context, matchID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, actor, action, payload, random_seed, created_at
		FROM match_logs WHERE match_id = $1 ORDER BY seq`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			payload []byte
		)
		if err := rows.Scan(&e.Seq, &e.Actor, &e.Action, &payload, &e.RandomSeed, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload #%d: %w", e.Seq, err)
		}
		e.MatchID = matchID
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMatches implements MatchStore.
func (s *PostgresStore) ListMatches(ctx context.Context) ([]MatchSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, turn_player, turn_number, phase, winner, updated_at
		FROM matches ORDER BY match_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.MatchID, &m.TurnPlayer, &m.TurnNumber, &m.Phase, &m.Winner, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
