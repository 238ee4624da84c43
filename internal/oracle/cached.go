package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is the repository's standard price-cache lifetime: one
// hour. Market data is cheap to re-fetch but worth memoizing across the
// six worker kinds' independent poll cycles.
const DefaultCacheTTL = time.Hour

// CachedOracle wraps an upstream PriceOracle with a Redis-backed cache.
// Falls back to the upstream source transparently on any cache error so a
// Redis outage degrades performance, not correctness.
type CachedOracle struct {
	upstream PriceOracle
	redis    *redis.Client
	ttl      time.Duration
}

// NewCachedOracle builds a CachedOracle over upstream using redisURL
// (e.g. "localhost:6379"). If redisURL is empty, returns upstream
// unwrapped — caching is an optimization, not a requirement.
func NewCachedOracle(upstream PriceOracle, redisURL string, ttl time.Duration) (PriceOracle, error) {
	if redisURL == "" {
		return upstream, nil
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s", redisURL))
	if err != nil {
		return nil, fmt.Errorf("oracle: invalid redis URL %q: %w", redisURL, err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("oracle: redis connection failed: %w", err)
	}

	log.Printf("[ORACLE][INFO] price cache connected to redis at %s (ttl=%s)", redisURL, ttl)

	return &CachedOracle{upstream: upstream, redis: client, ttl: ttl}, nil
}

func cacheKey(mint string) string {
	return "oracle:price:" + mint
}

// GetPrice returns the cached price for mint when present and unexpired,
// otherwise fetches from upstream and repopulates the cache.
func (c *CachedOracle) GetPrice(ctx context.Context, mint string) (float64, error) {
	key := cacheKey(mint)

	raw, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var q Quote
		if jsonErr := json.Unmarshal([]byte(raw), &q); jsonErr == nil {
			return q.PriceUSD, nil
		}
	} else if err != redis.Nil {
		log.Printf("[ORACLE][WARN] cache read failed for %s, falling back to upstream: %v", mint, err)
	}

	price, err := c.upstream.GetPrice(ctx, mint)
	if err != nil {
		return 0, err
	}

	encoded, marshalErr := json.Marshal(Quote{Mint: mint, PriceUSD: price, FetchedAt: time.Now()})
	if marshalErr == nil {
		if setErr := c.redis.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			log.Printf("[ORACLE][WARN] cache write failed for %s: %v", mint, setErr)
		}
	}

	return price, nil
}
