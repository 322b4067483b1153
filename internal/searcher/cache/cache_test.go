package cache

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
)

func TestKeyString(t *testing.T) {
	base := Key{DatabaseUUID: "db1", Revision: 3, Query: "red car", Flags: 7, MaxItems: 10, Facets: []uint32{2, 1}}

	same := base
	same.Query = "  red   car "
	same.Facets = []uint32{1, 2}
	if base.String() != same.String() {
		t.Fatalf("whitespace or facet order changed the key")
	}
	if !strings.HasPrefix(base.String(), "search:db1:3:") {
		t.Fatalf("key = %s", base.String())
	}

	for name, mutate := range map[string]func(*Key){
		"revision": func(k *Key) { k.Revision++ },
		"query":    func(k *Key) { k.Query = "blue car" },
		"flags":    func(k *Key) { k.Flags = 1 },
		"first":    func(k *Key) { k.First = 10 },
		"sort":     func(k *Key) { k.Sort = "0:asc" },
		"facets":   func(k *Key) { k.Facets = nil },
	} {
		k := base
		mutate(&k)
		if k.String() == base.String() {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func redisClient(t *testing.T) (*pkgredis.Client, config.RedisConfig) {
	t.Helper()
	cfg := config.RedisConfig{Addr: "localhost:6379", PoolSize: 2, CacheTTL: time.Minute}
	if addr := os.Getenv("SC_REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	client, err := pkgredis.NewClient(context.Background(), cfg)
	if err != nil {
		t.Skipf("redis not available at %s: %v", cfg.Addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client, cfg
}

func TestGetOrCompute(t *testing.T) {
	client, cfg := redisClient(t)
	c := New(client, cfg)
	ctx := context.Background()
	db := uuid.NewString()
	t.Cleanup(func() { c.Invalidate(ctx, db) })

	k := Key{DatabaseUUID: db, Revision: 1, Query: "red", MaxItems: 10}
	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte(`{"matches":1}`), nil
	}
	data, hit, err := c.GetOrCompute(ctx, k, compute)
	if err != nil || hit || string(data) != `{"matches":1}` {
		t.Fatalf("first call = %s, %v, %v", data, hit, err)
	}
	data, hit, err = c.GetOrCompute(ctx, k, compute)
	if err != nil || !hit || string(data) != `{"matches":1}` || calls != 1 {
		t.Fatalf("second call = %s, %v, %v (calls %d)", data, hit, err, calls)
	}

	boom := errors.New("boom")
	k.Revision = 2
	if _, _, err := c.GetOrCompute(ctx, k, func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("compute error = %v", err)
	}
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("failed computation was cached")
	}

	if err := c.Invalidate(ctx, db); err != nil {
		t.Fatal(err)
	}
	k.Revision = 1
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("entry survived Invalidate")
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 4 {
		t.Fatalf("hits = %d, misses = %d", hits, misses)
	}
}
