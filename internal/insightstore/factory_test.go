package insightstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name   string
		mutate func(*config.StorageConfig)
		want   any
	}{
		{
			name:   "memory",
			mutate: func(c *config.StorageConfig) { c.Backend = config.BackendMemory },
			want:   &MemoryStore{},
		},
		{
			name: "sqlite",
			mutate: func(c *config.StorageConfig) {
				c.Backend = config.BackendSQLite
				c.SQLitePath = filepath.Join(t.TempDir(), "nested", "insights.db")
			},
			want: &SQLiteStore{},
		},
		{
			name: "empty backend defaults to sqlite",
			mutate: func(c *config.StorageConfig) {
				c.Backend = ""
				c.SQLitePath = filepath.Join(t.TempDir(), "insights.db")
			},
			want: &SQLiteStore{},
		},
		{
			name: "badger in memory",
			mutate: func(c *config.StorageConfig) {
				c.Backend = config.BackendBadger
				c.BadgerInMemory = true
			},
			want: &BadgerStore{},
		},
		{
			name: "badger on disk",
			mutate: func(c *config.StorageConfig) {
				c.Backend = config.BackendBadger
				c.BadgerDir = filepath.Join(t.TempDir(), "badger")
			},
			want: &BadgerStore{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Storage
			tt.mutate(&cfg)

			store, err := NewStore(ctx, cfg, logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			wrapped, ok := store.(interface{ Unwrap() Store })
			require.True(t, ok, "store should be instrumented")
			assert.IsType(t, tt.want, wrapped.Unwrap())

			rec, err := store.Upsert(ctx, observation("factory-user", "avoidance", 6, baseTime))
			require.NoError(t, err)
			assert.Equal(t, 1, rec.Occurrences)
		})
	}
}

func TestNewStore_UnknownBackend(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Backend = "cassandra"

	_, err := NewStore(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestNewStore_ConnectionFailure(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Backend = config.BackendPostgres
	cfg.PostgresDSN = ""

	_, err := NewStore(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrConnectionFailed)
}
