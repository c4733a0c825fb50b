package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

// SessionExpirer closes sessions whose last activity is before a cutoff
type SessionExpirer interface {
	Expire(ctx context.Context, before time.Time) (int, error)
}

// SessionReaper periodically closes idle analysis sessions so that their
// corpora and indexes can be released.
//
// Single process only. Sessions live in process memory.
type SessionReaper struct {
	expirer  SessionExpirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type Option func(*SessionReaper)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *SessionReaper) { r.now = now }
}

// NewSessionReaper creates a reaper closing sessions idle longer than ttl,
// checking every interval
func NewSessionReaper(expirer SessionExpirer, ttl, interval time.Duration, opts ...Option) *SessionReaper {
	r := &SessionReaper{
		expirer:  expirer,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the background loop. It does not block.
func (r *SessionReaper) Start(ctx context.Context) error {
	if r.ttl <= 0 || r.interval <= 0 {
		return goerr.New("session ttl and interval must be positive",
			goerr.V("ttl", r.ttl), goerr.V("interval", r.interval))
	}

	logging.Default().Info("Session reaper starting",
		"ttl", r.ttl.String(),
		"interval", r.interval.String())

	go r.run(ctx)
	return nil
}

// Stop signals the loop to stop and waits for it
func (r *SessionReaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
	logging.Default().Info("Session reaper stopped")
}

func (r *SessionReaper) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Reap(ctx); err != nil {
				logging.Default().Error("Session reaping failed (will retry next interval)",
					"error", err.Error())
			}

		case <-r.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Reap performs a single expiry pass and returns the number of closed sessions
func (r *SessionReaper) Reap(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl)
	n, err := r.expirer.Expire(ctx, cutoff)
	if err != nil {
		return n, goerr.Wrap(err, "failed to expire sessions", goerr.V("cutoff", cutoff))
	}
	if n > 0 {
		logging.Default().Info("Idle sessions closed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
