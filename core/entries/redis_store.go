package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cordum/pkgvault/core/infra/locks"
	"github.com/cordum/pkgvault/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record as JSON under entry:<uuid> with a path index
// under entry:path:<storage>/<repository>/<path>.
type RedisStore struct {
	*guard
	client redis.UniversalClient
}

// NewRedisStore connects to url. Per-record locks default to Redis locks on
// the same client so several processes can share the store.
func NewRedisStore(url string, opts ...Option) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLocks(locks.NewRedisStoreWithClient(client))}, opts...)
	return &RedisStore{guard: newGuard("redis", opts), client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Create(ctx context.Context, rec Record) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, fmt.Errorf("entry store unavailable")
	}
	return s.create(ctx, rec, func(ctx context.Context, rec Record) error {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		res, err := s.client.Eval(ctx, createScript,
			[]string{entryKey(rec.UUID), entryPathKey(rec)},
			string(payload), rec.UUID,
		).Int64()
		if err != nil {
			return fmt.Errorf("persist entry: %w", err)
		}
		switch res {
		case 1:
			return fmt.Errorf("%w: %s", ErrExists, rec.UUID)
		case 2:
			return fmt.Errorf("%w: path %s", ErrExists, rec.ArtifactPath)
		}
		return nil
	})
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, fmt.Errorf("entry store unavailable")
	}
	data, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get entry: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) FindByPath(ctx context.Context, storageID, repositoryID, path string) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, fmt.Errorf("entry store unavailable")
	}
	id, err := s.client.Get(ctx, pathIndexKey(storageID, repositoryID, path)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(path)
	}
	if err != nil {
		return Record{}, fmt.Errorf("find entry: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	if rec.ArtifactPath != "" {
		pipe.Del(ctx, entryPathKey(rec))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Repair(ctx context.Context, id string, fn func(rec *Record) error) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, fmt.Errorf("entry store unavailable")
	}
	return s.repair(ctx, id, fn, s.Get, func(ctx context.Context, old, updated Record) error {
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		res, err := s.client.Eval(ctx, replaceScript,
			[]string{entryKey(id), entryPathKey(old), entryPathKey(updated)},
			string(payload), id,
		).Int64()
		if err != nil {
			return fmt.Errorf("replace entry: %w", err)
		}
		if res == 2 {
			return fmt.Errorf("%w: path %s", ErrExists, updated.ArtifactPath)
		}
		return nil
	})
}

func entryKey(id string) string {
	return "entry:" + id
}

// entryPathKey is "" for records without a path; the scripts skip it.
func entryPathKey(rec Record) string {
	if rec.ArtifactPath == "" {
		return ""
	}
	return pathIndexKey(rec.StorageID, rec.RepositoryID, rec.ArtifactPath)
}

func pathIndexKey(storageID, repositoryID, path string) string {
	return "entry:path:" + pathKey(storageID, repositoryID, path)
}

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 1
end
if KEYS[2] ~= "" and redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
redis.call("SET", KEYS[1], ARGV[1])
if KEYS[2] ~= "" then
  redis.call("SET", KEYS[2], ARGV[2])
end
return 0
`

const replaceScript = `
if KEYS[3] ~= "" then
  local owner = redis.call("GET", KEYS[3])
  if owner and owner ~= ARGV[2] then
    return 2
  end
end
if KEYS[2] ~= "" and KEYS[2] ~= KEYS[3] then
  redis.call("DEL", KEYS[2])
end
redis.call("SET", KEYS[1], ARGV[1])
if KEYS[3] ~= "" then
  redis.call("SET", KEYS[3], ARGV[2])
end
return 0
`
