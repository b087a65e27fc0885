package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AvailabilityFeed broadcasts that the occupancy of a bookable unit's parent
// (an edition or an event) changed. Messages carry no counts; subscribers re-read.
type AvailabilityFeed struct {
	rdb     *redis.Client
	channel string
}

func NewAvailabilityFeed(rdb *redis.Client) *AvailabilityFeed {
	return &AvailabilityFeed{
		rdb:     rdb,
		channel: ChannelAvailabilityChanged(),
	}
}

const (
	ScopeEdition = "edition"
	ScopeEvent   = "event"
)

type AvailabilityChanged struct {
	Scope  string    `json:"scope"`
	ID     uuid.UUID `json:"id"`
	TsUnix int64     `json:"ts_unix"`
}

// Publish is a no-op on a nil feed.
func (p *AvailabilityFeed) Publish(ctx context.Context, scope string, id uuid.UUID) error {
	if p == nil {
		return nil
	}

	msg := AvailabilityChanged{
		Scope:  scope,
		ID:     id,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe invokes handler for every change message until ctx is done.
func (p *AvailabilityFeed) Subscribe(ctx context.Context, handler func(ctx context.Context, msg AvailabilityChanged)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev AvailabilityChanged
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ID != uuid.Nil {
				handler(ctx, ev)
			}
		}
	}
}
