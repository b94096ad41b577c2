package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/societyhub/registration-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(addr, pass string, db int, ttl time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{Client: rdb, TTL: ttl}
}

func availabilityKey(eventID uuid.UUID) string {
	return "event:avail:" + eventID.String()
}

// GetAvailability returns the cached capacity view. It is display/fast-fail
// data only; the registration commit never trusts it.
func (c *Cache) GetAvailability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	val, err := c.Client.Get(ctx, availabilityKey(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Availability{}, domain.ErrCacheMiss
		}
		return domain.Availability{}, err
	}
	var a domain.Availability
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return domain.Availability{}, domain.ErrCacheMiss
	}
	return a, nil
}

func (c *Cache) SetAvailability(ctx context.Context, eventID uuid.UUID, avail domain.Availability) error {
	b, err := json.Marshal(avail)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, availabilityKey(eventID), b, c.TTL).Err()
}

func (c *Cache) DropAvailability(ctx context.Context, eventID uuid.UUID) error {
	return c.Client.Del(ctx, availabilityKey(eventID)).Err()
}

// AllowRequest: Simple Fixed Window Rate Limit
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
