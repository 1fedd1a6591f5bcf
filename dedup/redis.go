// Package dedup claims webhook delivery ids so a redelivered webhook that is
// already in flight or processed is answered without touching the store.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"engagement-rewards/logger"
)

// DefaultTTL covers Shopify's retry window for a delivery.
const DefaultTTL = 24 * time.Hour

// RedisDeduper implements the delivery claim on Redis SETNX. Every Redis
// failure fails open: the store-level guards remain authoritative.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewRedisDeduper creates a deduper backed by Redis at addr.
func NewRedisDeduper(addr, password string, log *logger.Logger) *RedisDeduper {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewWithClient(rdb, log)
}

func NewWithClient(client redis.UniversalClient, log *logger.Logger) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: DefaultTTL, prefix: "webhook:delivery:", log: log}
}

func (d *RedisDeduper) key(deliveryID string) string {
	return d.prefix + strings.TrimSpace(deliveryID)
}

// Claim reports whether this caller owns deliveryID. An empty id cannot be
// de-duplicated and is always claimed.
func (d *RedisDeduper) Claim(ctx context.Context, deliveryID string) bool {
	if strings.TrimSpace(deliveryID) == "" {
		return true
	}
	ok, err := d.client.SetNX(ctx, d.key(deliveryID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		d.log.Warn("[DEDUP] redis claim failed, processing anyway", "delivery_id", deliveryID, "error", err)
		return true
	}
	return ok
}

// Release drops a claim after a failed delivery so the retry is processed.
func (d *RedisDeduper) Release(ctx context.Context, deliveryID string) {
	if strings.TrimSpace(deliveryID) == "" {
		return
	}
	if err := d.client.Del(ctx, d.key(deliveryID)).Err(); err != nil {
		d.log.Warn("[DEDUP] redis release failed", "delivery_id", deliveryID, "error", err)
	}
}

func (d *RedisDeduper) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
