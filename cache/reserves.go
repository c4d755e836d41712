// Package cache keeps the latest reserves of every pair in Redis so readers
// outside the exchange can quote without subscribing to the state stream.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Reserves is the cached value of one pair.
type Reserves struct {
	Pair      common.Address `json:"pair"`
	Reserve0  *uint256.Int   `json:"reserve0"`
	Reserve1  *uint256.Int   `json:"reserve1"`
	Height    uint64         `json:"height"`
	Timestamp uint64         `json:"timestamp"`
}

// Key returns the Redis key of pair.
func Key(pair common.Address) string {
	return fmt.Sprintf("reserves:%s", pair.Hex())
}

// ReserveCache is an events.Sink storing the last reserves of each pair.
type ReserveCache struct {
	client Client
	ttl    time.Duration
}

// NewReserveCache returns a cache writing through client. A zero ttl keeps
// entries until they are overwritten.
func NewReserveCache(client Client, ttl time.Duration) *ReserveCache {
	return &ReserveCache{client: client, ttl: ttl}
}

// NewRedisClient connects to a Redis server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Publish stores the final reserves of every pair synchronized in envs.
func (c *ReserveCache) Publish(ctx context.Context, envs []events.Envelope) error {
	latest := make(map[common.Address]Reserves)
	var order []common.Address
	for _, env := range envs {
		if env.Type != events.TypeReservesUpdated {
			continue
		}
		var sync events.ReservesUpdated
		if err := json.Unmarshal(env.Payload, &sync); err != nil {
			return fmt.Errorf("failed to decode %s event %s: %w", env.Type, env.ID, err)
		}
		if _, seen := latest[sync.Pair]; !seen {
			order = append(order, sync.Pair)
		}
		latest[sync.Pair] = Reserves{
			Pair:      sync.Pair,
			Reserve0:  sync.Reserve0,
			Reserve1:  sync.Reserve1,
			Height:    env.Height,
			Timestamp: env.Timestamp,
		}
	}

	for _, pair := range order {
		data, err := json.Marshal(latest[pair])
		if err != nil {
			return fmt.Errorf("failed to marshal reserves: %w", err)
		}
		if err := c.client.Set(ctx, Key(pair), data, c.ttl).Err(); err != nil {
			return fmt.Errorf("failed to cache reserves of %s: %w", pair.Hex(), err)
		}
	}
	return nil
}

// Get returns the cached reserves of pair, or nil if none are cached.
func (c *ReserveCache) Get(ctx context.Context, pair common.Address) (*Reserves, error) {
	data, err := c.client.Get(ctx, Key(pair)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var r Reserves
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reserves: %w", err)
	}
	return &r, nil
}
