package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/service/worker"
)

type mockExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	expired int
	err     error
}

func (m *mockExpirer) Expire(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.expired, m.err
}

func (m *mockExpirer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func TestReap(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("cutoff is now minus ttl", func(t *testing.T) {
		expirer := &mockExpirer{expired: 2}
		reaper := worker.NewSessionReaper(expirer, time.Hour, time.Minute,
			worker.WithClock(func() time.Time { return now }))

		n, err := reaper.Reap(context.Background())
		gt.NoError(t, err).Required()
		gt.Value(t, n).Equal(2)
		gt.Value(t, expirer.cutoffs).Equal([]time.Time{now.Add(-time.Hour)})
	})

	t.Run("expiry failure", func(t *testing.T) {
		boom := errors.New("boom")
		reaper := worker.NewSessionReaper(&mockExpirer{err: boom}, time.Hour, time.Minute)

		_, err := reaper.Reap(context.Background())
		gt.Error(t, err).Is(boom)
	})
}

func TestSessionReaperLoop(t *testing.T) {
	t.Run("runs until stopped", func(t *testing.T) {
		expirer := &mockExpirer{}
		reaper := worker.NewSessionReaper(expirer, time.Hour, 10*time.Millisecond)
		gt.NoError(t, reaper.Start(context.Background())).Required()

		deadline := time.Now().Add(2 * time.Second)
		for expirer.calls() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		reaper.Stop()

		gt.Bool(t, expirer.calls() >= 2).True()
		stopped := expirer.calls()
		time.Sleep(30 * time.Millisecond)
		gt.Value(t, expirer.calls()).Equal(stopped)
	})

	t.Run("keeps running after failures", func(t *testing.T) {
		expirer := &mockExpirer{err: errors.New("boom")}
		reaper := worker.NewSessionReaper(expirer, time.Hour, 10*time.Millisecond)
		gt.NoError(t, reaper.Start(context.Background())).Required()

		deadline := time.Now().Add(2 * time.Second)
		for expirer.calls() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		reaper.Stop()
		gt.Bool(t, expirer.calls() >= 3).True()
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		reaper := worker.NewSessionReaper(&mockExpirer{}, 0, time.Minute)
		gt.Error(t, reaper.Start(context.Background()))
	})
}
