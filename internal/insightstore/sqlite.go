package insightstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" is accepted for tests.
	Path string

	// MaxOpenConns caps open connections. SQLite allows one writer at a time,
	// so the default is 1.
	MaxOpenConns int

	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (e.g., "WAL").
	JournalMode string
}

// DefaultSQLiteConfig returns sensible defaults.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "insights.db",
		MaxOpenConns: 1,
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
	}
}

// SQLiteStore is a SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database and migrates it.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	db, err := openSQLite(cfg)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection and migrates it.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func sqliteDSN(cfg SQLiteConfig) string {
	params := url.Values{}
	if cfg.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.JournalMode != "" && cfg.Path != ":memory:" {
		params.Set("_journal_mode", cfg.JournalMode)
	}
	if cfg.Path == ":memory:" {
		return "file::memory:?cache=shared&" + params.Encode()
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

func openSQLite(cfg SQLiteConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultSQLiteConfig().Path
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(cfg))
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}

// migrate creates the insights table if it doesn't exist.
func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS insights (
			user_id TEXT NOT NULL,
			pattern_type TEXT NOT NULL,
			id TEXT NOT NULL,
			insight_type TEXT NOT NULL,
			insight TEXT NOT NULL,
			evidence TEXT NOT NULL,
			strength INTEGER NOT NULL,
			occurrences INTEGER NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			PRIMARY KEY (user_id, pattern_type)
		);
		CREATE INDEX IF NOT EXISTS idx_insights_rank ON insights(user_id, strength DESC, occurrences DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

const sqliteUpsert = `
	INSERT INTO insights (user_id, pattern_type, id, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(user_id, pattern_type) DO UPDATE SET
		insight_type = excluded.insight_type,
		insight = excluded.insight,
		evidence = excluded.evidence,
		strength = excluded.strength,
		occurrences = insights.occurrences + 1,
		last_seen = excluded.last_seen
	RETURNING id, user_id, pattern_type, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen`

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	ts := obs.ObservedAt.UnixNano()
	row := s.db.QueryRowContext(ctx, sqliteUpsert,
		obs.UserID, obs.PatternType, RecordID(obs.UserID, obs.PatternType),
		obs.InsightType, obs.Insight, obs.Evidence, obs.Strength, ts, ts,
	)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite upsert: %w", err)
	}
	return rec, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM insights WHERE user_id = ? AND pattern_type = ?",
		userID, patternType,
	); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pattern_type, insight_type, insight, evidence, strength, occurrences, first_seen, last_seen
		FROM insights
		WHERE user_id = ?
		ORDER BY strength DESC, occurrences DESC, pattern_type ASC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite list: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	return records, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var (
		rec                 Record
		firstSeen, lastSeen int64
	)
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.PatternType, &rec.InsightType, &rec.Insight, &rec.Evidence,
		&rec.Strength, &rec.Occurrences, &firstSeen, &lastSeen,
	); err != nil {
		return nil, err
	}
	rec.FirstSeen = time.Unix(0, firstSeen).UTC()
	rec.LastSeen = time.Unix(0, lastSeen).UTC()
	return &rec, nil
}

var _ Store = (*SQLiteStore)(nil)
