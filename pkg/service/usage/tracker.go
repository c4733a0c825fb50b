package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Keys used by the engine. Fetch keys are suffixed with the source kind.
const (
	KeyGenerate    = "generate"
	KeyEmbed       = "embed"
	KeyFetchPrefix = "fetch:"
)

// Limit is a token bucket configuration
type Limit struct {
	RequestsPerSecond float64
	Burst             int
}

// Stats is a snapshot of one key's counters
type Stats struct {
	Key         string    `json:"key"`
	Calls       int64     `json:"calls"`
	Failures    int64     `json:"failures"`
	QuotaHits   int64     `json:"quota_hits"`
	LastCalled  time.Time `json:"last_called"`
	RateLimited bool      `json:"rate_limited"`
}

// Tracker counts outbound calls per key and optionally throttles them.
// One Tracker is created per process (or per test) and passed by reference.
type Tracker struct {
	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
	stats    map[string]*Stats
}

type Option func(*Tracker)

// WithLimit throttles calls made under key
func WithLimit(key string, limit Limit) Option {
	return func(t *Tracker) {
		t.limits[key] = limit
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		limits:   make(map[string]Limit),
		limiters: make(map[string]*rate.Limiter),
		stats:    make(map[string]*Stats),
	}
	for _, opt := range opts {
		opt(t)
	}
	for key, l := range t.limits {
		t.limiters[key] = rate.NewLimiter(rate.Limit(l.RequestsPerSecond), l.Burst)
	}
	return t
}

func (t *Tracker) entry(key string) *Stats {
	s, ok := t.stats[key]
	if !ok {
		_, limited := t.limiters[key]
		s = &Stats{Key: key, RateLimited: limited}
		t.stats[key] = s
	}
	return s
}

// Acquire waits for the key's rate limit, if any, and counts one call
func (t *Tracker) Acquire(ctx context.Context, key string) error {
	t.mu.Lock()
	limiter := t.limiters[key]
	t.mu.Unlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "rate limit wait interrupted", goerr.V("key", key))
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(key)
	s.Calls++
	s.LastCalled = time.Now().UTC()
	return nil
}

// RecordFailure counts a failed call
func (t *Tracker) RecordFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(key).Failures++
}

// RecordQuotaHit counts a call rejected for quota or rate reasons
func (t *Tracker) RecordQuotaHit(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(key)
	s.Failures++
	s.QuotaHits++
}

// Get returns the counters of one key
func (t *Tracker) Get(key string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[key]; ok {
		return *s
	}
	return Stats{Key: key}
}

// Snapshot returns all counters sorted by key
func (t *Tracker) Snapshot() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Stats, 0, len(t.stats))
	for _, s := range t.stats {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}
