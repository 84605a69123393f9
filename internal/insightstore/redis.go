package insightstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string

	// Password for authentication (optional).
	Password string

	// DB selects the Redis database index.
	DB int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// KeyPrefix namespaces every key.
	KeyPrefix string
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:     "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "insightd:",
	}
}

// upsertScript increments occurrences, overwrites the latest observation and
// indexes the pattern type under the user, all in one server-side step.
//
// KEYS[1] record hash, KEYS[2] user index set
// ARGV id, user_id, pattern_type, insight_type, insight, evidence, strength, observed_at
var upsertScript = redis.NewScript(`
local occ = redis.call('HINCRBY', KEYS[1], 'occurrences', 1)
if occ == 1 then
	redis.call('HSET', KEYS[1], 'first_seen', ARGV[8])
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1],
	'user_id', ARGV[2],
	'pattern_type', ARGV[3],
	'insight_type', ARGV[4],
	'insight', ARGV[5],
	'evidence', ARGV[6],
	'strength', ARGV[7],
	'last_seen', ARGV[8])
redis.call('SADD', KEYS[2], ARGV[3])
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore is a Redis-backed Store. Each record is a hash and each user has
// a set of pattern types. Keys for one user share a hash tag so the script
// runs on a single cluster slot.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultRedisConfig().DialTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Key parts are escaped so a brace or colon in an ID cannot move the hash tag
// or bleed into the next component.
func (s *RedisStore) recordKey(userID, patternType string) string {
	return s.keyPrefix + "insight:{" + EscapeKeyPart(userID) + "}:" + EscapeKeyPart(patternType)
}

func (s *RedisStore) indexKey(userID string) string {
	return s.keyPrefix + "insights:{" + EscapeKeyPart(userID) + "}"
}

// Upsert implements Store.
func (s *RedisStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	keys := []string{s.recordKey(obs.UserID, obs.PatternType), s.indexKey(obs.UserID)}
	res, err := upsertScript.Run(ctx, s.client, keys,
		RecordID(obs.UserID, obs.PatternType),
		obs.UserID,
		obs.PatternType,
		obs.InsightType,
		obs.Insight,
		obs.Evidence,
		obs.Strength,
		obs.ObservedAt.UnixNano(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis upsert: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	rec, err := recordFromHash(fields)
	if err != nil {
		return nil, fmt.Errorf("redis upsert: %w", err)
	}
	return rec, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(userID, patternType))
		pipe.SRem(ctx, s.indexKey(userID), patternType)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	types, err := s.client.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	records := make([]Record, 0, len(types))
	if len(types) == 0 {
		return records, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(types))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, pt := range types {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(userID, pt))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := recordFromHash(fields)
		if err != nil {
			return nil, fmt.Errorf("redis list: %w", err)
		}
		records = append(records, *rec)
	}
	return sortAndLimit(records, limit), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func recordFromHash(h map[string]string) (*Record, error) {
	strength, err := strconv.Atoi(h["strength"])
	if err != nil {
		return nil, fmt.Errorf("decoding strength: %w", err)
	}
	occurrences, err := strconv.Atoi(h["occurrences"])
	if err != nil {
		return nil, fmt.Errorf("decoding occurrences: %w", err)
	}
	firstSeen, err := strconv.ParseInt(h["first_seen"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding first_seen: %w", err)
	}
	lastSeen, err := strconv.ParseInt(h["last_seen"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding last_seen: %w", err)
	}
	return &Record{
		ID:          h["id"],
		UserID:      h["user_id"],
		PatternType: h["pattern_type"],
		InsightType: h["insight_type"],
		Insight:     h["insight"],
		Evidence:    h["evidence"],
		Strength:    strength,
		Occurrences: occurrences,
		FirstSeen:   time.Unix(0, firstSeen).UTC(),
		LastSeen:    time.Unix(0, lastSeen).UTC(),
	}, nil
}

var _ Store = (*RedisStore)(nil)
