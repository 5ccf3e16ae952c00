package locks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cordum/pkgvault/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps locks as JSON payloads under lock:<resource> with a PX expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a Redis-backed lock store.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient shares an existing client; Close will close it.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire takes the lock if it is free or already owned by owner.
func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return nil, false, err
	}
	ttl = normalizeTTL(ttl)
	now := time.Now().UTC()
	res, err := s.client.Eval(ctx, acquireScript, []string{lockKey(resource)},
		owner,
		ttl.Milliseconds(),
		now.UnixMilli(),
	).Result()
	if err != nil {
		return nil, false, err
	}
	payload, _ := res.(string)
	if payload == "" {
		return nil, false, nil
	}
	lock, err := parseLock(payload, resource)
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// Release drops the lock when owner holds it. It reports false otherwise.
func (s *RedisStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return false, err
	}
	n, err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Renew extends a lock TTL if owner still holds it.
func (s *RedisStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("lock store unavailable")
	}
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return nil, false, err
	}
	ttl = normalizeTTL(ttl)
	res, err := s.client.Eval(ctx, renewScript, []string{lockKey(resource)},
		owner,
		ttl.Milliseconds(),
		time.Now().UTC().UnixMilli(),
	).Result()
	if err != nil {
		return nil, false, err
	}
	payload, _ := res.(string)
	if payload == "" {
		return nil, false, nil
	}
	lock, err := parseLock(payload, resource)
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// Get returns the current lock state or ErrNotHeld.
func (s *RedisStore) Get(ctx context.Context, resource string) (*Lock, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("lock store unavailable")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	payload, err := s.client.Get(ctx, lockKey(resource)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotHeld
	}
	if err != nil {
		return nil, err
	}
	return parseLock(payload, resource)
}

func normalizeArgs(resource, owner string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", fmt.Errorf("resource and owner required")
	}
	return resource, owner, nil
}

type lockPayload struct {
	Owner      string `json:"owner"`
	AcquiredAt int64  `json:"acquired_at"`
	ExpiresAt  int64  `json:"expires_at"`
}

func parseLock(payload, resource string) (*Lock, error) {
	var decoded lockPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("decode lock: %w", err)
	}
	return &Lock{
		Resource:   resource,
		Owner:      decoded.Owner,
		AcquiredAt: time.UnixMilli(decoded.AcquiredAt).UTC(),
		ExpiresAt:  time.UnixMilli(decoded.ExpiresAt).UTC(),
	}, nil
}

func lockKey(resource string) string {
	return "lock:" + resource
}

const acquireScript = `
local key = KEYS[1]
local owner = ARGV[1]
local ttl = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local payload = redis.call("GET", key)
local lock
if payload then
  lock = cjson.decode(payload)
  if lock["owner"] ~= owner then
    return ""
  end
else
  lock = {owner = owner, acquired_at = now}
end
lock["expires_at"] = now + ttl
local encoded = cjson.encode(lock)
redis.call("SET", key, encoded, "PX", ttl)
return encoded
`

const releaseScript = `
local payload = redis.call("GET", KEYS[1])
if not payload then
  return 0
end
local lock = cjson.decode(payload)
if lock["owner"] ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

const renewScript = `
local key = KEYS[1]
local ttl = tonumber(ARGV[2])
local payload = redis.call("GET", key)
if not payload then
  return ""
end
local lock = cjson.decode(payload)
if lock["owner"] ~= ARGV[1] then
  return ""
end
lock["expires_at"] = tonumber(ARGV[3]) + ttl
local encoded = cjson.encode(lock)
redis.call("SET", key, encoded, "PX", ttl)
return encoded
`
