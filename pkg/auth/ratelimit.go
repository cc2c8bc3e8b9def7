package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTier is the tier of identities that do not name one.
const DefaultTier = "default"

// RateLimiter decides whether an identity may issue another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// TierConfig is the token bucket of one tier.
type TierConfig struct {
	// RequestsPerSecond is the refill rate. Zero or less disables limiting
	// for the tier.
	RequestsPerSecond float64

	// Burst is the bucket size. It defaults to the rate rounded up.
	Burst int
}

func (c TierConfig) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	b := int(c.RequestsPerSecond)
	if float64(b) < c.RequestsPerSecond {
		b++
	}
	return max(b, 1)
}

// TokenBucketLimiter keeps one token bucket per subject and tier in
// process memory. Buckets idle for longer than the eviction interval are
// dropped.
type TokenBucketLimiter struct {
	tiers    map[string]TierConfig
	fallback TierConfig

	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter. Identities whose tier is not in
// tiers use fallback.
func NewTokenBucketLimiter(tiers map[string]TierConfig, fallback TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:    tiers,
		fallback: fallback,
		buckets:  make(map[string]*bucket),
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *TokenBucketLimiter) tier(name string) TierConfig {
	if tc, ok := l.tiers[name]; ok {
		return tc
	}
	return l.fallback
}

// Allow takes one token from the caller's bucket.
func (l *TokenBucketLimiter) Allow(_ context.Context, id *Identity) error {
	tier := id.Tier
	if tier == "" {
		tier = DefaultTier
	}
	tc := l.tier(tier)
	if tc.RequestsPerSecond <= 0 {
		return nil
	}

	key := tier + "/" + id.Subject
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		l.evict(now)
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(tc.RequestsPerSecond), tc.burst())}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// evict drops idle buckets. Called with l.mu held.
func (l *TokenBucketLimiter) evict(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
		}
	}
}
