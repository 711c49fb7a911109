// Package cache keeps recently listed calendar windows in Redis. The week
// view is by far the most frequent read, and it only changes when a booking
// on one of its vehicles changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/carshare/backend/internal/domain"
)

const (
	keyPrefix = "carshare:calendar:"
	genPrefix = "carshare:calgen:"
	allScope  = "all"
	// delBatch bounds the size of one pipelined DEL during invalidation.
	delBatch = 100
)

// Calendar is a Redis-backed window cache. It satisfies service.CalendarCache.
type Calendar struct {
	client *redis.Client
	ttl    time.Duration
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, ttl time.Duration) (*Calendar, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.Open: parse url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache.Open: ping: %w", err)
	}
	return New(client, ttl), nil
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration) *Calendar {
	return &Calendar{client: client, ttl: ttl}
}

// Generation returns the current generation of the window scope (one vehicle,
// or all vehicles when vehicleID is nil). Every invalidation bumps it, so a
// listing read under an older generation is stored where no reader looks.
func (c *Calendar) Generation(ctx context.Context, vehicleID *uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(scopeOf(vehicleID))).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache.Calendar.Generation: %w", err)
	}
	return gen, nil
}

// GetWindow returns the cached listing for the window at generation gen, if any.
func (c *Calendar) GetWindow(ctx context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time) ([]domain.Reservation, bool, error) {
	data, err := c.client.Get(ctx, windowKey(vehicleID, gen, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache.Calendar.GetWindow: %w", err)
	}
	var rs []domain.Reservation
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, false, fmt.Errorf("cache.Calendar.GetWindow: decode: %w", err)
	}
	return rs, true, nil
}

// SetWindow stores a listing for the window at generation gen.
func (c *Calendar) SetWindow(ctx context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time, rs []domain.Reservation) error {
	data, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("cache.Calendar.SetWindow: encode: %w", err)
	}
	if err := c.client.Set(ctx, windowKey(vehicleID, gen, from, to), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.Calendar.SetWindow: %w", err)
	}
	return nil
}

// InvalidateVehicles bumps the generation of the given vehicles and of the
// all-vehicle scope, since those windows include them too, then deletes the
// windows cached under older generations.
func (c *Calendar) InvalidateVehicles(ctx context.Context, vehicleIDs []uuid.UUID) error {
	scopes := []string{allScope}
	for _, id := range vehicleIDs {
		scopes = append(scopes, id.String())
	}

	pipe := c.client.Pipeline()
	for _, scope := range scopes {
		pipe.Incr(ctx, genKey(scope))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache.Calendar.InvalidateVehicles: bump generation: %w", err)
	}

	for _, scope := range scopes {
		if err := c.delPattern(ctx, keyPrefix+scope+":*"); err != nil {
			return fmt.Errorf("cache.Calendar.InvalidateVehicles: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Calendar) Close() error {
	return c.client.Close()
}

// delPattern deletes keys matching pattern, SCANning rather than KEYS so a
// large keyspace never blocks the server.
func (c *Calendar) delPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, delBatch).Iterator()
	pipe := c.client.Pipeline()
	queued := 0

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		queued++
		if queued >= delBatch {
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			queued = 0
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if queued > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func scopeOf(vehicleID *uuid.UUID) string {
	if vehicleID == nil {
		return allScope
	}
	return vehicleID.String()
}

func genKey(scope string) string {
	return genPrefix + scope
}

func windowKey(vehicleID *uuid.UUID, gen int64, from, to time.Time) string {
	return keyPrefix + scopeOf(vehicleID) + ":" + strconv.FormatInt(gen, 10) + ":" +
		from.UTC().Format(time.RFC3339) + ":" + to.UTC().Format(time.RFC3339)
}
