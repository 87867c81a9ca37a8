package nutritionix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const cacheKeyPrefix = "mealsense:nutrients:"

type cachedClient struct {
	log  *logger.Logger
	next Client
	rdb  *goredis.Client
	ttl  time.Duration
}

// NewRedisClient dials addr and verifies it with a ping.
func NewRedisClient(addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// WithCache puts a Redis read-through cache in front of next. Cache errors
// are logged and fall through to next.
func WithCache(log *logger.Logger, next Client, rdb *goredis.Client, ttl time.Duration) Client {
	if rdb == nil {
		return next
	}
	if log == nil {
		log = logger.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cachedClient{log: log.With("client", "NutritionixCache"), next: next, rdb: rdb, ttl: ttl}
}

func CacheKey(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(norm))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *cachedClient) Lookup(ctx context.Context, query string) ([]Food, error) {
	key := CacheKey(query)

	metrics := observability.Current()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var foods []Food
		if jerr := json.Unmarshal(raw, &foods); jerr == nil {
			metrics.IncNutrientCache("hit")
			return foods, nil
		}
		c.log.Warn("nutrient cache entry undecodable", "key", key)
		metrics.IncNutrientCache("corrupt")
	case errors.Is(err, goredis.Nil):
		metrics.IncNutrientCache("miss")
	default:
		c.log.Warn("nutrient cache read failed", "error", err)
		metrics.IncNutrientCache("error")
	}

	foods, err := c.next.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(foods); jerr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.log.Warn("nutrient cache write failed", "error", serr)
		}
	}
	return foods, nil
}
