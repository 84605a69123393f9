// Package insightstore persists aggregated insight records.
//
// A record is identified by (user_id, pattern_type). Every backend implements
// Upsert as a single atomic storage operation: the first observation creates
// the record with one occurrence, and each later observation overwrites the
// strength, refreshes last_seen and increments occurrences by exactly one.
// Concurrent upserts for the same key never lose an increment.
//
// # Backends
//
//   - memory: map guarded by a mutex (tests, single process)
//   - sqlite: INSERT ... ON CONFLICT DO UPDATE ... RETURNING (default)
//   - postgres: the same upsert through pgxpool
//   - redis: one Lua script per upsert
//   - dynamodb: UpdateItem with ADD occurrences and ReturnValues ALL_NEW
//   - badger: serializable transaction retried on conflict
//   - mongodb: FindOneAndUpdate with $inc and upsert
//
// # Usage
//
//	store, err := insightstore.NewStore(ctx, cfg.Storage, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec, err := store.Upsert(ctx, insightstore.Observation{
//	    UserID:      "user-1",
//	    PatternType: "self_sabotage",
//	    InsightType: "behavioral",
//	    Insight:     "...",
//	    Evidence:    "feeling undeserving, expecting to ruin things",
//	    Strength:    9,
//	})
package insightstore
