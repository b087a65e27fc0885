package redisrepo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of hit timestamps. Rejected hits are not
// recorded, so a client that keeps retrying is let in as soon as the oldest
// accepted hit leaves the window.
//
// KEYS[1] window key
// ARGV[1] now in ms, ARGV[2] window in ms, ARGV[3] limit, ARGV[4] unique member
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  if retry < 0 then retry = 0 end
  return {0, count, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`

// Policy allows Limit hits per subject within Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter rate-limits public submissions per scope ("register", "contact")
// and subject (usually the client IP).
type Limiter struct {
	rdb      redis.UniversalClient
	script   *redis.Script
	fallback Policy
	policies map[string]Policy
	now      func() time.Time
}

// NewLimiter applies policies by scope and fallback to every other scope.
func NewLimiter(rdb redis.UniversalClient, fallback Policy, policies map[string]Policy) *Limiter {
	return &Limiter{
		rdb:      rdb,
		script:   redis.NewScript(luaSlidingWindow),
		fallback: fallback,
		policies: policies,
		now:      time.Now,
	}
}

func (l *Limiter) policy(scope string) Policy {
	if p, ok := l.policies[scope]; ok {
		return p
	}
	return l.fallback
}

// Allow records a hit for subject in scope when it fits the scope's policy.
// A nil limiter, or a policy without a positive limit, allows everything.
func (l *Limiter) Allow(ctx context.Context, scope, subject string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}

	p := l.policy(scope)
	if p.Limit <= 0 || p.Window <= 0 {
		return Decision{Allowed: true}, nil
	}

	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{KeyRateLimit(scope, subject)},
		l.now().UnixMilli(), p.Window.Milliseconds(), p.Limit, member(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected script result %v", scope, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Count:      res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func member() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
