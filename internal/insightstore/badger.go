package insightstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds optimistic transaction retries per upsert.
const maxConflictRetries = 1000

// BadgerConfig configures the embedded Badger backend.
type BadgerConfig struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests).
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// KeyPrefix namespaces every key.
	KeyPrefix string
}

// BadgerStore is a Badger-backed Store. Upserts run as serializable
// transactions; a conflicting commit is retried with fresh reads.
type BadgerStore struct {
	db        *badger.DB
	keyPrefix string
	owned     bool
	stopGC    context.CancelFunc
}

// NewBadgerStore opens a Badger database.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	s := NewBadgerStoreFromDB(db, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewBadgerStoreFromDB wraps an open database. Close does not close a
// database passed in this way.
func NewBadgerStoreFromDB(db *badger.DB, keyPrefix string) *BadgerStore {
	return &BadgerStore{db: db, keyPrefix: keyPrefix}
}

// Key format: prefix + "insights:" + userID + 0x00 + patternType
func (s *BadgerStore) userPrefix(userID string) []byte {
	return []byte(s.keyPrefix + "insights:" + userID + "\x00")
}

func (s *BadgerStore) recordKey(userID, patternType string) []byte {
	return append(s.userPrefix(userID), patternType...)
}

// Upsert implements Store.
func (s *BadgerStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	key := s.recordKey(obs.UserID, obs.PatternType)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var rec Record
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					return err
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				rec = Record{
					ID:          RecordID(obs.UserID, obs.PatternType),
					UserID:      obs.UserID,
					PatternType: obs.PatternType,
					FirstSeen:   obs.ObservedAt,
				}
			default:
				return err
			}

			rec.InsightType = obs.InsightType
			rec.Insight = obs.Insight
			rec.Evidence = obs.Evidence
			rec.Strength = obs.Strength
			rec.Occurrences++
			rec.LastSeen = obs.ObservedAt

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if errors.Is(err, badger.ErrConflict) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("badger upsert: %w", err)
		}
		return &rec, nil
	}
	return nil, fmt.Errorf("badger upsert: %w after %d attempts", badger.ErrConflict, maxConflictRetries)
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.recordKey(userID, patternType))
	}); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.userPrefix(userID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			rec.FirstSeen = rec.FirstSeen.UTC()
			rec.LastSeen = rec.LastSeen.UTC()
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger list: %w", err)
	}
	return sortAndLimit(records, limit), nil
}

// RunGC reclaims value log space. It is safe to call periodically.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// StartGC runs value log GC on interval until ctx is done or the store is
// closed.
func (s *BadgerStore) StartGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ctx, s.stopGC = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.RunGC(0.5)
			}
		}
	}()
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.stopGC != nil {
		s.stopGC()
	}
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
