// Package cache stores encoded search responses in Redis. Keys embed the
// database UUID and revision, so a commit makes older entries unreachable
// without an explicit flush; they expire with the TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

const keyPrefix = "search:"

// Key identifies one search request against one database revision.
type Key struct {
	DatabaseUUID string
	Revision     uint64
	Query        string
	Flags        int
	First        int
	MaxItems     int
	CheckAtLeast int
	Facets       []uint32
	Sort         string
}

// String renders the Redis key. The request part is hashed; the database
// part stays readable so stale revisions can be found by prefix.
func (k Key) String() string {
	facets := slices.Clone(k.Facets)
	slices.Sort(facets)
	var sb strings.Builder
	sb.WriteString(strings.Join(strings.Fields(k.Query), " "))
	fmt.Fprintf(&sb, "|flags=%d|first=%d|max=%d|check=%d|sort=%s|facets=", k.Flags, k.First, k.MaxItems, k.CheckAtLeast, k.Sort)
	for i, f := range facets {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(f), 10))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, k.DatabaseUUID, k.Revision, hex.EncodeToString(sum[:16]))
}

// QueryCache is a read-through cache of encoded responses. Concurrent
// misses for the same key are computed once. While Redis keeps failing the
// breaker skips it and every lookup is a miss.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	breaker *resilience.Breaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewBreaker("redis", resilience.BreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for k. Redis failures count as misses.
func (c *QueryCache) Get(ctx context.Context, k Key) ([]byte, bool) {
	key := k.String()
	var data []byte
	err := c.breaker.Do(func() (err error) {
		data, err = c.client.Get(ctx, key)
		return err
	}, pkgredis.IsNil)
	if err != nil {
		if !pkgredis.IsNil(err) && !errors.Is(err, resilience.ErrBreakerOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheHitsTotal.Inc()
	c.logger.Debug("cache hit", "key", key)
	return data, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	metrics.CacheMissesTotal.Inc()
}

func (c *QueryCache) Set(ctx context.Context, k Key, data []byte) {
	key := k.String()
	err := c.breaker.Do(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	}, nil)
	if err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for k or stores and returns
// what compute produces. The bool reports a cache hit. Errors from compute
// are not cached.
func (c *QueryCache) GetOrCompute(ctx context.Context, k Key, compute func() ([]byte, error)) ([]byte, bool, error) {
	if data, ok := c.Get(ctx, k); ok {
		return data, true, nil
	}
	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		data, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Invalidate drops every cached response of the database with the given
// UUID, or of all databases when uuid is empty.
func (c *QueryCache) Invalidate(ctx context.Context, uuid string) error {
	prefix := keyPrefix
	if uuid != "" {
		prefix += uuid + ":"
	}
	deleted, err := c.client.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "prefix", prefix, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports whether Redis is currently being skipped.
func (c *QueryCache) BreakerState() resilience.BreakerState {
	return c.breaker.State()
}
