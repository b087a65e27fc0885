package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/studio-booking/internal/domain"
)

const defaultStructureTTL = 5 * time.Minute

// Cache holds catalog structure only: the sessions of an edition and their
// date options. Occupancy counts are never cached.
type Cache struct {
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
}

func New(rdb redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultStructureTTL
	}

	return &Cache{rdb: rdb, ttl: ttl}
}

// Sessions returns the cached sessions of an edition, calling load on a miss.
// Concurrent misses for the same edition share one load. A nil cache always
// loads, and Redis failures degrade to a load rather than an error.
func (c *Cache) Sessions(
	ctx context.Context,
	editionID uuid.UUID,
	load func(ctx context.Context) ([]domain.SessionWithOptions, error),
) ([]domain.SessionWithOptions, error) {
	if c == nil {
		return load(ctx)
	}

	key := KeyEditionStructure(editionID)
	if sessions, ok := c.read(ctx, key); ok {
		return sessions, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if sessions, ok := c.read(ctx, key); ok {
			return sessions, nil
		}

		sessions, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(sessions); err == nil {
			_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
		}

		return sessions, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.SessionWithOptions), nil
}

func (c *Cache) read(ctx context.Context, key string) ([]domain.SessionWithOptions, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var sessions []domain.SessionWithOptions
	if err := json.Unmarshal(b, &sessions); err != nil {
		// Unreadable entries are dropped so the next read repopulates them.
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false
	}

	return sessions, true
}

// InvalidateEdition drops the cached structure of an edition. It is a no-op on
// a nil cache.
func (c *Cache) InvalidateEdition(ctx context.Context, editionID uuid.UUID) error {
	if c == nil {
		return nil
	}

	return c.rdb.Del(ctx, KeyEditionStructure(editionID)).Err()
}
