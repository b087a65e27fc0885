package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingMarker occupies a key while the first request carrying it is running.
const pendingMarker = "\x00pending"

// Claims a key when it is free, otherwise reports what it holds.
// Returns {0, ""} claimed, {1, ""} pending, {2, payload} completed.
const luaIdemBegin = `
local v = redis.call('GET', KEYS[1])
if not v then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return {0, ''}
end
if v == ARGV[1] then
  return {1, ''}
end
return {2, v}
`

type IdemState int

const (
	// IdemClaimed means the caller owns the key and must Complete or Abort it.
	IdemClaimed IdemState = iota
	// IdemPending means another request with the same key is still running.
	IdemPending
	// IdemCompleted means a response was stored and should be replayed.
	IdemCompleted
)

// IdempotencyStore remembers the response to a request carrying an
// Idempotency-Key header for ttl.
type IdempotencyStore struct {
	rdb     redis.UniversalClient
	script  *redis.Script
	ttl     time.Duration
	pending time.Duration
}

func NewIdempotencyStore(rdb redis.UniversalClient, ttl, pending time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		rdb:     rdb,
		script:  redis.NewScript(luaIdemBegin),
		ttl:     ttl,
		pending: pending,
	}
}

// Begin claims key or reports its current state. For IdemCompleted the stored
// payload is returned.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (IdemState, []byte, error) {
	res, err := s.script.Run(ctx, s.rdb, []string{key}, pendingMarker, s.pending.Milliseconds()).Slice()
	if err != nil {
		return 0, nil, fmt.Errorf("idempotency begin: %w", err)
	}
	if len(res) != 2 {
		return 0, nil, fmt.Errorf("idempotency begin: unexpected script result %v", res)
	}

	state, _ := res[0].(int64)
	payload, _ := res[1].(string)

	switch IdemState(state) {
	case IdemClaimed, IdemPending:
		return IdemState(state), nil, nil
	case IdemCompleted:
		return IdemCompleted, []byte(payload), nil
	default:
		return 0, nil, fmt.Errorf("idempotency begin: unknown state %d", state)
	}
}

// Complete stores payload as the response for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, payload []byte) error {
	return s.rdb.Set(ctx, key, payload, s.ttl).Err()
}

// Abort frees key so the request can be retried with it.
func (s *IdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
