package insightstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/insightd/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.Backend and wraps it with
// metrics and tracing.
//
// Supported backends:
//   - "sqlite" (default): embedded, no external deps
//   - "memory": process-local, lost on restart
//   - "postgres", "redis", "mongodb": external servers
//   - "dynamodb": AWS DynamoDB or a compatible endpoint
//   - "badger": embedded key-value store
//
// Example:
//
//	cfg, _ := config.LoadWithFile("")
//	store, err := insightstore.NewStore(ctx, cfg.Storage, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	backend := cfg.Backend
	if backend == "" {
		backend = config.BackendSQLite
	}

	switch backend {
	case config.BackendMemory:
		store = NewMemoryStore()

	case config.BackendSQLite:
		sqliteCfg := DefaultSQLiteConfig()
		if cfg.SQLitePath != "" {
			sqliteCfg.Path, err = config.ExpandHome(cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
		}
		store, err = NewSQLiteStore(sqliteCfg)

	case config.BackendPostgres:
		store, err = NewPostgresStore(ctx, PostgresConfig{
			DSN:    cfg.PostgresDSN.Value(),
			Schema: cfg.PostgresSchema,
		})

	case config.BackendRedis:
		redisCfg := DefaultRedisConfig()
		if cfg.RedisAddr != "" {
			redisCfg.Address = cfg.RedisAddr
		}
		redisCfg.Password = cfg.RedisPassword.Value()
		redisCfg.DB = cfg.RedisDB
		if cfg.KeyPrefix != "" {
			redisCfg.KeyPrefix = cfg.KeyPrefix
		}
		store, err = NewRedisStore(ctx, redisCfg)

	case config.BackendDynamoDB:
		store, err = NewDynamoDBStore(ctx, DynamoDBConfig{
			Region:      cfg.DynamoDBRegion,
			Endpoint:    cfg.DynamoDBEndpoint,
			TableName:   cfg.DynamoDBTable,
			CreateTable: cfg.DynamoDBCreateTable,
		})

	case config.BackendBadger:
		store, err = openBadger(cfg)

	case config.BackendMongoDB:
		store, err = NewMongoStore(ctx, MongoConfig{
			URI:        cfg.MongoDBURI.Value(),
			Database:   cfg.MongoDBDatabase,
			Collection: cfg.MongoDBCollection,
		})

	default:
		return nil, fmt.Errorf("%w: %s (supported: memory, sqlite, postgres, redis, dynamodb, badger, mongodb)", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", backend, err)
	}

	logger.Info("insight store opened", zap.String("backend", backend))
	return Instrument(store, backend), nil
}

func openBadger(cfg config.StorageConfig) (*BadgerStore, error) {
	badgerCfg := BadgerConfig{
		InMemory:  cfg.BadgerInMemory,
		KeyPrefix: cfg.KeyPrefix,
	}
	if !cfg.BadgerInMemory {
		dir, err := config.ExpandHome(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Clean(dir), 0700); err != nil {
			return nil, fmt.Errorf("creating badger directory: %w", err)
		}
		badgerCfg.Dir = dir
	}

	s, err := NewBadgerStore(badgerCfg)
	if err != nil {
		return nil, err
	}
	s.StartGC(context.Background(), cfg.BadgerGCInterval)
	return s, nil
}
