package tablestore

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// fakeRedis keeps hashes in a map and replays the DEL+HSET pipeline.
type fakeRedis struct {
	hashes map[string]map[string]string

	existsErr error
	loadErr   error
	storeErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}}
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.existsErr != nil {
		return redis.NewIntResult(0, f.existsErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if f.loadErr != nil {
		return redis.NewMapStringStringResult(nil, f.loadErr)
	}
	return redis.NewMapStringStringResult(f.hashes[key], nil)
}

func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	pipe := &fakePipeliner{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	for _, key := range pipe.deleted {
		delete(f.hashes, key)
	}
	for key, vals := range pipe.fields {
		h := f.hashes[key]
		if h == nil {
			h = map[string]string{}
			f.hashes[key] = h
		}
		for i := 0; i+1 < len(vals); i += 2 {
			h[fmt.Sprint(vals[i])] = fmt.Sprint(vals[i+1])
		}
	}
	return nil, nil
}

// fakePipeliner records the two commands Store queues; anything else panics
// through the nil embedded interface.
type fakePipeliner struct {
	redis.Pipeliner
	deleted []string
	fields  map[string][]any
}

func (p *fakePipeliner) Del(_ context.Context, keys ...string) *redis.IntCmd {
	p.deleted = append(p.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (p *fakePipeliner) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if p.fields == nil {
		p.fields = map[string][]any{}
	}
	p.fields[key] = append(p.fields[key], values...)
	return redis.NewIntResult(int64(len(values) / 2), nil)
}

func TestRedisStore_ExistsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newFakeRedis(), "")

	ok, err := s.Exists(ctx, "table")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("absent hash should report not-exists without error")
	}

	if err := s.Store(ctx, "table", traffic.Table{"aaa": 100}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	ok, err = s.Exists(ctx, "table")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("hash should exist after Store")
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newFakeRedis(), "")

	want := traffic.Table{"aaa": 100, "bbb": 200}
	if err := s.Store(ctx, "table", want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.Load(ctx, "table")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got["aaa"] != 100 || got["bbb"] != 200 {
		t.Fatalf("Load = %v, want %v", got, want)
	}
}

func TestRedisStore_StoreReplacesHash(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisStore(fake, "")

	if err := s.Store(ctx, "table", traffic.Table{"old": 100, "kept": 150}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// a purged identity must not survive the write-back
	if err := s.Store(ctx, "table", traffic.Table{"kept": 150}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.Load(ctx, "table")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got["kept"] != 150 {
		t.Fatalf("Load = %v, want only the kept identity", got)
	}
}

func TestRedisStore_StoreEmptyTableDeletesHash(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisStore(fake, "")

	if err := s.Store(ctx, "table", traffic.Table{"aaa": 100}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Store(ctx, "table", traffic.Table{}); err != nil {
		t.Fatalf("Store empty: %v", err)
	}

	ok, err := s.Exists(ctx, "table")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("fully purged table should leave no hash behind")
	}
}

func TestRedisStore_KeyUsesPrefix(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisStore(fake, "")

	if err := s.Store(ctx, "traffic_limiter", traffic.Table{"a": 1}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := fake.hashes["ratetable:traffic_limiter"]; !ok {
		t.Fatalf("hash keys = %v, want default prefix ratetable:", hashKeysOf(fake.hashes))
	}

	fake = newFakeRedis()
	s = NewRedisStore(fake, "custom:")
	if err := s.Store(ctx, "t", traffic.Table{"a": 1}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := fake.hashes["custom:t"]; !ok {
		t.Fatalf("hash keys = %v, want custom:t", hashKeysOf(fake.hashes))
	}
}

func TestRedisStore_LoadBadTimestampErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.hashes["ratetable:table"] = map[string]string{"aaa": "not-a-number"}
	s := NewRedisStore(fake, "")

	if _, err := s.Load(ctx, "table"); err == nil {
		t.Fatal("corrupt field should error, not reset history")
	}
}

func TestRedisStore_ErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	fake := newFakeRedis()
	fake.existsErr = xerrors.New("exists boom")
	s := NewRedisStore(fake, "")
	if _, err := s.Exists(ctx, "table"); err == nil {
		t.Fatal("exists failure should propagate")
	}

	fake = newFakeRedis()
	fake.loadErr = xerrors.New("load boom")
	s = NewRedisStore(fake, "")
	if _, err := s.Load(ctx, "table"); err == nil {
		t.Fatal("load failure should propagate")
	}

	fake = newFakeRedis()
	fake.storeErr = xerrors.New("store boom")
	s = NewRedisStore(fake, "")
	if err := s.Store(ctx, "table", traffic.Table{"a": 1}); err == nil {
		t.Fatal("store failure should propagate")
	}
}

func hashKeysOf(m map[string]map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
