package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "keyswitch:student:"
	redisIndexKey  = "keyswitch:students"
)

// RedisStore keeps each record in a hash and the set of PIDs in an index set.
// Increments use HINCRBY so concurrent key requests never lose a count.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(pid string) string { return redisKeyPrefix + pid }

func (s *RedisStore) Get(ctx context.Context, pid string) (schema.StudentRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(pid)).Result()
	if err != nil {
		return schema.StudentRecord{}, fmt.Errorf("failed to get student: %w", err)
	}
	if len(fields) == 0 {
		return schema.StudentRecord{}, ErrUserNotFound
	}
	return decodeRecord(fields)
}

// insertScript creates the record hash and indexes the PID in one step, or returns 0 if the hash exists.
// KEYS: record hash, index set. ARGV: pid, user, calls, last_key_time ("" for none).
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'pid', ARGV[1], 'user', ARGV[2], 'calls', ARGV[3])
if ARGV[4] ~= '' then
	redis.call('HSET', KEYS[1], 'last_key_time', ARGV[4])
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

func (s *RedisStore) Insert(ctx context.Context, rec schema.StudentRecord) error {
	var lastKeyTime string
	if rec.LastKeyTime != nil {
		lastKeyTime = rec.LastKeyTime.Format(time.RFC3339Nano)
	}

	created, err := insertScript.Run(ctx, s.client,
		[]string{redisKey(rec.PID), redisIndexKey},
		rec.PID, rec.User, strconv.Itoa(rec.Calls), lastKeyTime,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to insert student: %w", err)
	}
	if created == 0 {
		return ErrDuplicatePID
	}
	return nil
}

func (s *RedisStore) RecordUsage(ctx context.Context, pid string, keyTime time.Time) (schema.StudentRecord, error) {
	key := redisKey(pid)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return schema.StudentRecord{}, fmt.Errorf("failed to record usage: %w", err)
	}
	if exists == 0 {
		return schema.StudentRecord{}, ErrUserNotFound
	}

	var all *redis.MapStringStringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "calls", 1)
		pipe.HSet(ctx, key, "last_key_time", keyTime.Format(time.RFC3339Nano))
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return schema.StudentRecord{}, fmt.Errorf("failed to record usage: %w", err)
	}
	return decodeRecord(all.Val())
}

func (s *RedisStore) List(ctx context.Context) ([]schema.StudentRecord, error) {
	pids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	sort.Strings(pids)

	out := make([]schema.StudentRecord, 0, len(pids))
	for _, pid := range pids {
		rec, err := s.Get(ctx, pid)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(fields map[string]string) (schema.StudentRecord, error) {
	rec := schema.StudentRecord{
		User: fields["user"],
		PID:  fields["pid"],
	}
	if v := fields["calls"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return schema.StudentRecord{}, fmt.Errorf("corrupt calls value %q for %s: %w", v, rec.PID, err)
		}
		rec.Calls = n
	}
	if v := fields["last_key_time"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return schema.StudentRecord{}, fmt.Errorf("corrupt last_key_time %q for %s: %w", v, rec.PID, err)
		}
		rec.LastKeyTime = &t
	}
	return rec, nil
}
