package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/event"
)

const (
	generationKey = "events:gen"
	keyPrefix     = "events:query:"
)

// EventRepository wraps an event.Repository with a Redis read-through cache of QueryEvents.
// Every write bumps a generation counter that is part of the cache keys,
// so the entries written before it are never read again and expire on their own.
// Redis failures fall back to the wrapped repository.
type EventRepository struct {
	base  event.Repository
	redis redis.UniversalClient
	ttl   time.Duration
}

var _ event.Repository = (*EventRepository)(nil) // interface compliance check

func NewEventRepository(base event.Repository, client redis.UniversalClient, ttl time.Duration) *EventRepository {
	if base == nil {
		panic("cache.NewEventRepository: base repository is nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &EventRepository{base: base, redis: client, ttl: ttl}
}

func (c *EventRepository) CreateEvent(ctx context.Context, ev event.Event, exec ...core.DBExecutor) (event.Event, error) {
	ev, err := c.base.CreateEvent(ctx, ev, exec...)
	if err == nil {
		c.evict(ctx)
	}
	return ev, err
}

func (c *EventRepository) GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (event.Event, error) {
	return c.base.GetEvent(ctx, id, exec...)
}

// QueryEvents is only cached outside transactions, for bounds given to the second.
// Bounds read from the clock (upcoming events) carry sub-second parts and never repeat.
func (c *EventRepository) QueryEvents(ctx context.Context, filter event.QueryFilter, exec ...core.DBExecutor) ([]event.Event, error) {
	if c.redis == nil || len(exec) > 0 || !cacheable(filter) {
		return c.base.QueryEvents(ctx, filter, exec...)
	}

	gen, err := c.generation(ctx)
	if err != nil {
		return c.base.QueryEvents(ctx, filter)
	}
	key := queryKey(gen, filter)
	if evs, ok := c.load(ctx, key); ok {
		return evs, nil
	}

	evs, err := c.base.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, evs)
	return evs, nil
}

func (c *EventRepository) UpdateEvent(ctx context.Context, id string, patch event.UpdateEvent, updatedAt time.Time, exec ...core.DBExecutor) (event.Event, error) {
	ev, err := c.base.UpdateEvent(ctx, id, patch, updatedAt, exec...)
	if err == nil {
		c.evict(ctx)
	}
	return ev, err
}

func (c *EventRepository) DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	err := c.base.DeleteEvent(ctx, id, exec...)
	if err == nil {
		c.evict(ctx)
	}
	return err
}

func (c *EventRepository) CountEvents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	return c.base.CountEvents(ctx, exec...)
}

func (c *EventRepository) generation(ctx context.Context) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *EventRepository) load(ctx context.Context, key string) ([]event.Event, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var evs []event.Event
	if err := json.Unmarshal(data, &evs); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return evs, true
}

func (c *EventRepository) store(ctx context.Context, key string, evs []event.Event) {
	data, err := json.Marshal(evs)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *EventRepository) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, generationKey).Err()
}

func cacheable(filter event.QueryFilter) bool {
	return filter.From.Nanosecond() == 0 && filter.To.Nanosecond() == 0
}

// queryKey keys the entry on the exact bounds: a cached result is the result of the query.
func queryKey(gen int64, filter event.QueryFilter) string {
	bound := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return strconv.FormatInt(t.UTC().Unix(), 10)
	}
	return keyPrefix + strconv.FormatInt(gen, 10) +
		":" + bound(filter.From) +
		":" + bound(filter.To) +
		":" + filter.CreatedBy +
		":" + filter.VisibleTo +
		":" + strconv.Itoa(filter.Limit)
}
