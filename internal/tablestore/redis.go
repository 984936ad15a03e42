package tablestore

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// RedisAPI is the command subset RedisStore issues, satisfied by
// *redis.Client and narrow enough to fake in tests.
type RedisAPI interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisStore keeps the rate table in a redis hash, one field per identity
// digest. It lets multiple instances share one table; the per-process limiter
// mutex does not serialize across instances, so the original check-then-act
// window between instances remains (documented limitation).
type RedisStore struct {
	client RedisAPI
	prefix string
}

// NewRedisStore wraps an existing client. prefix defaults to "ratetable:".
func NewRedisStore(client RedisAPI, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratetable:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) (traffic.Table, error) {
	fields, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return nil, xerrors.Wrap(err, "redis load")
	}
	t := make(traffic.Table, len(fields))
	for k, v := range fields {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(err, "redis table field %s: bad timestamp", k)
		}
		t[k] = ts
	}
	return t, nil
}

// Store replaces the hash in one transaction (DEL + HSET pipelined inside
// MULTI), so concurrent readers never observe a half-written table.
func (s *RedisStore) Store(ctx context.Context, name string, t traffic.Table) error {
	key := s.key(name)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(t) > 0 {
			kv := make([]any, 0, len(t)*2)
			for k, ts := range t {
				kv = append(kv, k, strconv.FormatInt(ts, 10))
			}
			pipe.HSet(ctx, key, kv...)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(err, "redis store")
	}
	return nil
}

var _ traffic.Store = (*RedisStore)(nil)
