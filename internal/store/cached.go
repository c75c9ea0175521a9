package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const matchKeyPrefix = "linksuggest:matches:"

// CacheClient is the subset of pkg/redis.Client used by Cached.
type CacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cached fronts a Store with a Redis read-through cache for match lists.
// Redis sits behind a circuit breaker; while it is open or failing, reads
// and writes go straight to the wrapped store.
type Cached struct {
	Store
	client  CacheClient
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCached(next Store, client CacheClient, ttl time.Duration, m *metrics.Metrics) *Cached {
	c := &Cached{
		Store:   next,
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "match-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-match-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

func (c *Cached) GetCachedMatches(ctx context.Context, sourceURL, corpusID string) ([]model.Match, bool, error) {
	key := matchCacheKey(sourceURL, corpusID)
	if matches, ok := c.getFromCache(ctx, key); ok {
		return matches, true, nil
	}
	type loaded struct {
		matches []model.Match
		ok      bool
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		matches, ok, err := c.Store.GetCachedMatches(ctx, sourceURL, corpusID)
		if err != nil {
			return nil, err
		}
		if ok {
			c.setInCache(ctx, key, matches)
		}
		return loaded{matches: matches, ok: ok}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(loaded)
	return l.matches, l.ok, nil
}

func (c *Cached) PutMatches(ctx context.Context, sourceURL, corpusID string, matches []model.Match) error {
	if err := c.Store.PutMatches(ctx, sourceURL, corpusID, matches); err != nil {
		return err
	}
	c.setInCache(ctx, matchCacheKey(sourceURL, corpusID), matches)
	return nil
}

// Invalidate drops every cached match list from Redis.
func (c *Cached) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, matchKeyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating match cache: %w", err)
	}
	c.logger.Info("match cache invalidated", "keys_deleted", deleted)
	return nil
}

// BreakerState is the state of the Redis circuit breaker.
func (c *Cached) BreakerState() resilience.State { return c.breaker.GetState() }

func (c *Cached) getFromCache(ctx context.Context, key string) ([]model.Match, bool) {
	var data string
	miss := false
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("match cache get failed", "key", key, "error", err)
		c.count(false)
		return nil, false
	}
	if miss {
		c.count(false)
		return nil, false
	}
	var matches []model.Match
	if err := json.Unmarshal([]byte(data), &matches); err != nil {
		c.logger.Error("match cache unmarshal failed", "key", key, "error", err)
		c.count(false)
		return nil, false
	}
	c.count(true)
	return matches, true
}

func (c *Cached) setInCache(ctx context.Context, key string, matches []model.Match) {
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.Error("match cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("match cache set failed", "key", key, "error", err)
	}
}

func (c *Cached) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("redis_matches").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("redis_matches").Inc()
	}
}

// matchCacheKey is linksuggest:matches:<corpus id>:<hashed source url>.
func matchCacheKey(sourceURL, corpusID string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%s%s:%x", matchKeyPrefix, corpusID, sum[:16])
}
