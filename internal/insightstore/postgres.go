package insightstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the connection string.
	DSN string

	// Schema holds the insights table. Default: public.
	Schema string

	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	owned  bool
}

// NewPostgresStore connects, verifies the connection and migrates the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", ErrConnectionFailed)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	s, err := NewPostgresStoreFromPool(ctx, pool, cfg.Schema)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Close does not close a
// pool passed in this way.
func NewPostgresStoreFromPool(ctx context.Context, pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if schema == "" {
		schema = "public"
	}
	if !identifierPattern.MatchString(schema) {
		return nil, fmt.Errorf("%w: invalid schema name %q", ErrMigrationFailed, schema)
	}
	s := &PostgresStore{pool: pool, schema: schema}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) tableName() string {
	return fmt.Sprintf("%s.insights", s.schema)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS %[1]s;
		CREATE TABLE IF NOT EXISTS %[2]s (
			user_id TEXT NOT NULL,
			pattern_type TEXT NOT NULL,
			id TEXT NOT NULL,
			insight_type TEXT NOT NULL,
			insight TEXT NOT NULL,
			evidence TEXT NOT NULL,
			strength INTEGER NOT NULL,
			occurrences INTEGER NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, pattern_type)
		);
		CREATE INDEX IF NOT EXISTS idx_insights_rank ON %[2]s (user_id, strength DESC, occurrences DESC);
	`, s.schema, s.tableName())

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s AS i (user_id, pattern_type, id, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)
		ON CONFLICT (user_id, pattern_type) DO UPDATE SET
			insight_type = EXCLUDED.insight_type,
			insight = EXCLUDED.insight,
			evidence = EXCLUDED.evidence,
			strength = EXCLUDED.strength,
			occurrences = i.occurrences + 1,
			last_seen = EXCLUDED.last_seen
		RETURNING id, user_id, pattern_type, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen
	`, s.tableName())

	var rec Record
	err := s.pool.QueryRow(ctx, query,
		obs.UserID, obs.PatternType, RecordID(obs.UserID, obs.PatternType),
		obs.InsightType, obs.Insight, obs.Evidence, obs.Strength, obs.ObservedAt,
	).Scan(
		&rec.ID, &rec.UserID, &rec.PatternType, &rec.InsightType, &rec.Insight, &rec.Evidence,
		&rec.Strength, &rec.Occurrences, &rec.FirstSeen, &rec.LastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres upsert: %w", err)
	}
	rec.FirstSeen = rec.FirstSeen.UTC()
	rec.LastSeen = rec.LastSeen.UTC()
	return &rec, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1 AND pattern_type = $2", s.tableName())
	if _, err := s.pool.Exec(ctx, query, userID, patternType); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, pattern_type, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen
		FROM %s
		WHERE user_id = $1
		ORDER BY strength DESC, occurrences DESC, pattern_type ASC
	`, s.tableName())
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.PatternType, &rec.InsightType, &rec.Insight, &rec.Evidence,
			&rec.Strength, &rec.Occurrences, &rec.FirstSeen, &rec.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("postgres list: %w", err)
		}
		rec.FirstSeen = rec.FirstSeen.UTC()
		rec.LastSeen = rec.LastSeen.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	return records, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
