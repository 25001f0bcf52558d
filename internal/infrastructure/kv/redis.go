package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	backendRedis       = "redis"
	defaultRedisPrefix = "coin:kv:"

	redisFieldValue        = "value"
	redisFieldVersionstamp = "vs"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore implements Store on Redis.
// Every entry is a hash {value, vs} at <prefix>e:<encoded key>; a sorted set at <prefix>idx holds
// every encoded key with score 0 so prefix scans run as ZRANGEBYLEX.
// Conditional commits use WATCH on the checked keys and MULTI/EXEC for the writes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storeError(backendRedis, "connect", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreWithClient creates a store with an existing Redis client.
// The store takes ownership of the client and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.Named("kv.redis"),
	}
}

func (s *RedisStore) entryKey(encoded []byte) string {
	return s.keyPrefix + "e:" + string(encoded)
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "idx"
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	fields, err := s.client.HMGet(ctx, s.entryKey(key.Encode()), redisFieldValue, redisFieldVersionstamp).Result()
	if err != nil {
		return Entry{}, s.wrap(ctx, "get", err)
	}
	return entryFromFields(key, fields), nil
}

// Set implements Store
func (s *RedisStore) Set(ctx context.Context, key Key, value []byte) (Versionstamp, error) {
	res, err := s.Commit(ctx, nil, []Mutation{{Type: MutationSet, Key: key, Value: value}})
	if err != nil {
		return "", err
	}
	return res.Versionstamp, nil
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	_, err := s.Commit(ctx, nil, []Mutation{{Type: MutationDelete, Key: key}})
	return err
}

// List implements Store.
// The index scan and the value reads are separate round trips; keys deleted in between are skipped.
func (s *RedisStore) List(ctx context.Context, prefix Key) ([]Entry, error) {
	start, limit := PrefixRange(prefix)
	bound := &redis.ZRangeBy{Min: "[" + string(start), Max: "+"}
	if limit != nil {
		bound.Max = "(" + string(limit)
	}

	members, err := s.client.ZRangeByLex(ctx, s.indexKey(), bound).Result()
	if err != nil {
		return nil, s.wrap(ctx, "list", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, member := range members {
			cmds[i] = pipe.HMGet(ctx, s.entryKey([]byte(member)), redisFieldValue, redisFieldVersionstamp)
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap(ctx, "list", err)
	}

	entries := make([]Entry, 0, len(members))
	for i, member := range members {
		key, err := DecodeKey([]byte(member))
		if err != nil {
			return nil, storeError(backendRedis, "list", err)
		}
		entry := entryFromFields(key, cmds[i].Val())
		if !entry.Exists() {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Commit implements Store
func (s *RedisStore) Commit(ctx context.Context, checks []Check, mutations []Mutation) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	for _, m := range mutations {
		if m.Type != MutationSet && m.Type != MutationDelete {
			return CommitResult{}, fmt.Errorf("kv: unknown mutation type %d", m.Type)
		}
	}

	vs := NewVersionstamp()
	if len(checks) == 0 {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueMutations(ctx, pipe, vs, mutations)
			return nil
		})
		if err != nil {
			return CommitResult{}, s.wrap(ctx, "commit", err)
		}
		return CommitResult{OK: true, Versionstamp: vs}, nil
	}

	watched := make([]string, len(checks))
	for i, check := range checks {
		watched[i] = s.entryKey(check.Key.Encode())
	}

	ok := true
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, check := range checks {
			current, err := tx.HGet(ctx, s.entryKey(check.Key.Encode()), redisFieldVersionstamp).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if Versionstamp(current) != check.Versionstamp {
				s.logger.Debug("Versionstamp check failed",
					zap.Stringer("key", check.Key),
					zap.String("expected", string(check.Versionstamp)),
					zap.String("actual", current),
				)
				ok = false
				return nil
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueMutations(ctx, pipe, vs, mutations)
			return nil
		})
		return err
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		s.logger.Debug("Watched key changed before EXEC")
		return CommitResult{OK: false}, nil
	}
	if err != nil {
		return CommitResult{}, s.wrap(ctx, "commit", err)
	}
	if !ok {
		return CommitResult{OK: false}, nil
	}
	return CommitResult{OK: true, Versionstamp: vs}, nil
}

func (s *RedisStore) queueMutations(ctx context.Context, pipe redis.Pipeliner, vs Versionstamp, mutations []Mutation) {
	for _, m := range mutations {
		encoded := m.Key.Encode()
		entryKey := s.entryKey(encoded)
		switch m.Type {
		case MutationSet:
			pipe.HSet(ctx, entryKey, redisFieldValue, m.Value, redisFieldVersionstamp, string(vs))
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: string(encoded)})
		case MutationDelete:
			pipe.Del(ctx, entryKey)
			pipe.ZRem(ctx, s.indexKey(), string(encoded))
		}
	}
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return storeError(backendRedis, op, err)
}

func entryFromFields(key Key, fields []interface{}) Entry {
	entry := Entry{Key: key}
	if len(fields) != 2 {
		return entry
	}
	vs, _ := fields[1].(string)
	if vs == "" {
		return entry
	}
	value, _ := fields[0].(string)
	entry.Value = []byte(value)
	entry.Versionstamp = Versionstamp(vs)
	return entry
}

var _ Store = (*RedisStore)(nil)
