package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinema_pos/constants"
	"cinema_pos/events"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Cache serves dashboards from Redis while their revision matches the
// theater's current one.
type Cache struct {
	rdb     *redis.Client
	service *Service
	ttl     time.Duration
}

func NewCache(rdb *redis.Client, service *Service, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, service: service, ttl: ttl}
}

func key(theaterID uint, start, end string) string {
	return fmt.Sprintf(constants.DASHBOARD_KEY, theaterID, start, end)
}

func (c *Cache) Get(ctx context.Context, theater model.Theater, start, end string) (*model.Dashboard, error) {
	start, end, err := c.service.Range(theater, start, end)
	if err != nil {
		return nil, err
	}
	k := key(theater.ID, start, end)

	if c.rdb != nil {
		rev, err := c.service.revisions.Revision(ctx, theater.ID)
		if err != nil {
			return nil, err
		}
		raw, err := c.rdb.Get(ctx, k).Bytes()
		switch {
		case err == nil:
			var cached model.Dashboard
			if json.Unmarshal(raw, &cached) == nil && cached.Revision == rev {
				return &cached, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Warnw("dashboard cache read failed", "key", k, "error", err)
		}
	}

	d, err := c.service.Compute(ctx, theater, start, end)
	if err != nil {
		return nil, err
	}
	if c.rdb != nil {
		c.store(ctx, theater.ID, k, d)
	}
	return d, nil
}

func (c *Cache) store(ctx context.Context, theaterID uint, k string, d *model.Dashboard) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	index := fmt.Sprintf(constants.DASHBOARD_INDEX_KEY, theaterID)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, k, raw, c.ttl)
	pipe.SAdd(ctx, index, k)
	pipe.Expire(ctx, index, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnw("dashboard cache write failed", "key", k, "error", err)
	}
}

// Invalidate drops every cached range of the theater.
func (c *Cache) Invalidate(ctx context.Context, theaterID uint) error {
	if c.rdb == nil {
		return nil
	}
	index := fmt.Sprintf(constants.DASHBOARD_INDEX_KEY, theaterID)
	keys, err := c.rdb.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, append(keys, index)...).Err()
}

// Handler is the dashboard consumer group's handler.
func (c *Cache) Handler() events.Handler {
	return func(ctx context.Context, msg events.Message) error {
		return c.Invalidate(ctx, msg.TheaterId)
	}
}
