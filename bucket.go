package ratelimitd

import (
	"hash/fnv"
	"strconv"
)

// AlgorithmKind identifies which bucket algorithm a RateLimitConfig selects.
type AlgorithmKind string

const (
	AlgorithmTokenBucket          AlgorithmKind = "token_bucket"
	AlgorithmSlidingWindow        AlgorithmKind = "sliding_window"
	AlgorithmSlidingWindowCounter AlgorithmKind = "sliding_window_counter"
	AlgorithmFixedWindow          AlgorithmKind = "fixed_window"
	AlgorithmLeakyBucket          AlgorithmKind = "leaky_bucket"
	AlgorithmGCRA                 AlgorithmKind = "gcra"
)

// RateLimitConfig is the immutable, fully-resolved description of how a
// single key should be rate limited. It is the output of resolve.Resolver
// and the input to Builder.FromConfig.
type RateLimitConfig struct {
	// Algorithm selects which bucket implementation to build.
	Algorithm AlgorithmKind

	// MaxRequests/WindowSeconds apply to the three window algorithms.
	MaxRequests   int64
	WindowSeconds int64

	// Capacity/RefillRate apply to TokenBucket. Capacity/LeakRate and Mode
	// apply to LeakyBucket. Rate/Burst apply to GCRA.
	Capacity   int64
	RefillRate int64
	LeakRate   int64
	Mode       LeakyBucketMode
	Rate       int64
	Burst      int64

	// KeyPrefix, FailOpen, HashTag mirror Options and are passed through
	// to the constructed Limiter.
	KeyPrefix string
	FailOpen  bool
	HashTag   bool
}

// Fingerprint returns a stable hash of the fields that determine the
// bucket's runtime behavior. registry.Registry uses this to detect that a
// key's resolved configuration changed and the existing in-memory bucket
// must be replaced rather than reused with stale parameters.
func (c RateLimitConfig) Fingerprint() uint64 {
	h := fnv.New64a()
	write := func(s string) { _, _ = h.Write([]byte(s)); _, _ = h.Write([]byte{0}) }
	write(string(c.Algorithm))
	write(strconv.FormatInt(c.MaxRequests, 10))
	write(strconv.FormatInt(c.WindowSeconds, 10))
	write(strconv.FormatInt(c.Capacity, 10))
	write(strconv.FormatInt(c.RefillRate, 10))
	write(strconv.FormatInt(c.LeakRate, 10))
	write(string(c.Mode))
	write(strconv.FormatInt(c.Rate, 10))
	write(strconv.FormatInt(c.Burst, 10))
	write(c.KeyPrefix)
	write(strconv.FormatBool(c.FailOpen))
	write(strconv.FormatBool(c.HashTag))
	return h.Sum64()
}

// Validate checks internal consistency before a Limiter is built from this
// config. It does not check reachability of any backend.
func (c RateLimitConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmTokenBucket:
		if c.Capacity <= 0 || c.RefillRate <= 0 {
			return &ErrConfigViolation{Reason: "token_bucket requires positive capacity and refill_rate"}
		}
	case AlgorithmLeakyBucket:
		if c.Capacity <= 0 || c.LeakRate <= 0 {
			return &ErrConfigViolation{Reason: "leaky_bucket requires positive capacity and leak_rate"}
		}
		if c.Mode != Policing && c.Mode != Shaping {
			return &ErrConfigViolation{Reason: "leaky_bucket requires mode policing or shaping"}
		}
	case AlgorithmGCRA:
		if c.Rate <= 0 || c.Burst <= 0 {
			return &ErrConfigViolation{Reason: "gcra requires positive rate and burst"}
		}
	case AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmSlidingWindowCounter:
		if c.MaxRequests <= 0 || c.WindowSeconds <= 0 {
			return &ErrConfigViolation{Reason: "window algorithms require positive max_requests and window_seconds"}
		}
	default:
		return &ErrConfigViolation{Reason: "unknown algorithm: " + string(c.Algorithm)}
	}
	return nil
}

func (c RateLimitConfig) toOptions() []Option {
	opts := []Option{WithFailOpen(c.FailOpen)}
	if c.KeyPrefix != "" {
		opts = append(opts, WithKeyPrefix(c.KeyPrefix))
	}
	if c.HashTag {
		opts = append(opts, WithHashTag())
	}
	return opts
}

// FromConfig builds a Limiter from a fully-resolved RateLimitConfig,
// applying any additional options (typically WithRedis or WithStore) on top
// of the config's own KeyPrefix/FailOpen/HashTag settings. This is the
// entry point resolve.Resolver's output feeds into — callers no longer need
// to know which New* constructor corresponds to a given algorithm.
func (b *Builder) FromConfig(cfg RateLimitConfig, extra ...Option) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := append(cfg.toOptions(), extra...)

	switch cfg.Algorithm {
	case AlgorithmFixedWindow:
		return NewFixedWindow(cfg.MaxRequests, cfg.WindowSeconds, opts...)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(cfg.MaxRequests, cfg.WindowSeconds, opts...)
	case AlgorithmSlidingWindowCounter:
		return NewSlidingWindowCounter(cfg.MaxRequests, cfg.WindowSeconds, opts...)
	case AlgorithmTokenBucket:
		return NewTokenBucket(cfg.Capacity, cfg.RefillRate, opts...)
	case AlgorithmLeakyBucket:
		return NewLeakyBucket(cfg.Capacity, cfg.LeakRate, cfg.Mode, opts...)
	case AlgorithmGCRA:
		return NewGCRA(cfg.Rate, cfg.Burst, opts...)
	default:
		return nil, &ErrConfigViolation{Reason: "unknown algorithm: " + string(cfg.Algorithm)}
	}
}

// DefaultIdleEvictionTTL is exported for packages that want to match the
// same idle-eviction horizon the built-in in-memory algorithms use.
const DefaultIdleEvictionTTL = idleEvictionTTL
