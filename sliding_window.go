package ratelimitd

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arclane/ratelimitd/registry"
)

// NewSlidingWindow creates a Sliding Window Log rate limiter.
// maxRequests is the maximum requests allowed per window.
// windowSeconds is the window duration in seconds.
// Note: this algorithm stores every request timestamp and has O(n) memory per key.
// For high-throughput keys, prefer NewSlidingWindowCounter.
// Pass WithRedis for distributed mode; omit for in-memory.
func NewSlidingWindow(maxRequests, windowSeconds int64, opts ...Option) (Limiter, error) {
	if maxRequests <= 0 || windowSeconds <= 0 {
		return nil, fmt.Errorf("ratelimitd: maxRequests and windowSeconds must be positive")
	}
	o := applyOptions(opts)

	if o.RedisClient != nil {
		return &slidingWindowRedis{
			redis:         o.RedisClient,
			maxRequests:   maxRequests,
			windowSeconds: windowSeconds,
			opts:          o,
		}, nil
	}
	return &slidingWindowMemory{
		states:        registry.New[*slidingWindowState](idleEvictionTTL),
		maxRequests:   maxRequests,
		windowSeconds: windowSeconds,
		opts:          o,
	}, nil
}

// ─── In-Memory ───────────────────────────────────────────────────────────────

type slidingWindowState struct {
	mu         sync.Mutex
	timestamps []time.Time
}

type slidingWindowMemory struct {
	states        *registry.Registry[*slidingWindowState]
	maxRequests   int64
	windowSeconds int64
	opts          *Options
}

func (s *slidingWindowMemory) Allow(ctx context.Context, key string) (*Result, error) {
	return s.AllowN(ctx, key, 1)
}

func (s *slidingWindowMemory) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	maxReq := s.opts.resolveLimit(key, s.maxRequests)
	state := s.states.Get(key, func() *slidingWindowState { return &slidingWindowState{} })
	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	windowDuration := time.Duration(s.windowSeconds) * time.Second

	// Evict expired timestamps
	cutoff := 0
	for cutoff < len(state.timestamps) && now.Sub(state.timestamps[cutoff]) > windowDuration {
		cutoff++
	}
	state.timestamps = state.timestamps[cutoff:]

	cost := int64(n)
	if int64(len(state.timestamps))+cost <= maxReq {
		for i := 0; i < n; i++ {
			state.timestamps = append(state.timestamps, now)
		}
		remaining := maxReq - int64(len(state.timestamps))
		return &Result{
			Allowed:   true,
			Remaining: remaining,
			Limit:     maxReq,
		}, nil
	}

	var retryAfter time.Duration
	if len(state.timestamps) > 0 {
		oldest := state.timestamps[0]
		expiresAt := oldest.Add(windowDuration)
		retryAfter = time.Until(expiresAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return &Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      maxReq,
		RetryAfter: retryAfter,
	}, nil
}

func (s *slidingWindowMemory) Reset(ctx context.Context, key string) error {
	s.states.Evict(key)
	return nil
}

// ─── Redis ────────────────────────────────────────────────────────────────────

type slidingWindowRedis struct {
	redis         redis.UniversalClient
	maxRequests   int64
	windowSeconds int64
	opts          *Options
}

func (s *slidingWindowRedis) Allow(ctx context.Context, key string) (*Result, error) {
	return s.AllowN(ctx, key, 1)
}

func (s *slidingWindowRedis) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	fullKey := s.opts.FormatKey(key)
	maxReq := s.opts.resolveLimit(key, s.maxRequests)
	now := time.Now().UnixMilli()
	windowStart := now - s.windowSeconds*1000

	// Remove expired entries
	err := s.redis.ZRemRangeByScore(ctx, fullKey, "0", fmt.Sprintf("%d", windowStart)).Err()
	if err != nil {
		return s.failResult(err)
	}

	count, err := s.redis.ZCard(ctx, fullKey).Result()
	if err != nil {
		return s.failResult(err)
	}

	cost := int64(n)
	if count+cost <= maxReq {
		pipe := s.redis.Pipeline()
		for i := 0; i < n; i++ {
			member := fmt.Sprintf("%d:%d", now, rand.Int63())
			pipe.ZAdd(ctx, fullKey, redis.Z{Score: float64(now), Member: member})
		}
		pipe.Expire(ctx, fullKey, time.Duration(s.windowSeconds)*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return s.failResult(err)
		}
		remaining := maxReq - count - cost
		return &Result{
			Allowed:   true,
			Remaining: remaining,
			Limit:     maxReq,
		}, nil
	}

	// Denied — compute retryAfter from oldest entry
	retryAfter := time.Duration(s.windowSeconds) * time.Second
	oldest, err := s.redis.ZRangeWithScores(ctx, fullKey, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		oldestMs := int64(oldest[0].Score)
		expiresAt := oldestMs + s.windowSeconds*1000
		retryMs := expiresAt - now
		if retryMs > 0 && retryMs <= s.windowSeconds*1000 {
			retryAfter = time.Duration(retryMs) * time.Millisecond
		}
	}

	return &Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      maxReq,
		RetryAfter: retryAfter,
	}, nil
}

func (s *slidingWindowRedis) Reset(ctx context.Context, key string) error {
	fullKey := s.opts.FormatKey(key)
	return s.redis.Del(ctx, fullKey).Err()
}

func (s *slidingWindowRedis) failResult(err error) (*Result, error) {
	if s.opts.FailOpen {
		return &Result{Allowed: true, Remaining: s.maxRequests - 1, Limit: s.maxRequests}, nil
	}
	return &Result{Allowed: false, Remaining: 0, Limit: s.maxRequests}, fmt.Errorf("ratelimitd: redis error: %w", err)
}
