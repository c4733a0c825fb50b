package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/normalizer"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTaskTimeout   = 15 * time.Second
	DefaultMaxRetries    = 2
	DefaultBackoffBase   = 1 * time.Second
	DefaultGlobalTimeout = 45 * time.Second

	// ceilingGrace is how long FetchAll waits for cancelled tasks to return
	// after the global ceiling. Tasks still running are abandoned.
	ceilingGrace = 100 * time.Millisecond
)

var errNotConfigured = goerr.New("source not configured")

// Orchestrator runs one fetch task per source kind on a bounded pool and
// collects whatever succeeded before the global ceiling.
type Orchestrator struct {
	clients       map[types.SourceKind]interfaces.SourceClient
	taskTimeout   time.Duration
	maxRetries    int
	backoffBase   time.Duration
	globalTimeout time.Duration
	workers       int
	tracker       *usage.Tracker
}

type Option func(*Orchestrator)

func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.taskTimeout = d }
}

func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

func WithBackoffBase(d time.Duration) Option {
	return func(o *Orchestrator) { o.backoffBase = d }
}

func WithGlobalTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.globalTimeout = d }
}

// WithWorkers bounds the number of fetch tasks running at once
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

func WithTracker(tracker *usage.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = tracker }
}

func New(clients []interfaces.SourceClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		clients:       make(map[types.SourceKind]interfaces.SourceClient),
		taskTimeout:   DefaultTaskTimeout,
		maxRetries:    DefaultMaxRetries,
		backoffBase:   DefaultBackoffBase,
		globalTimeout: DefaultGlobalTimeout,
		workers:       len(types.AllSourceKinds()),
	}
	for _, c := range clients {
		if c != nil {
			o.clients[c.Kind()] = c
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	return o
}

// Kinds returns the source kinds that have a client
func (o *Orchestrator) Kinds() []types.SourceKind {
	var kinds []types.SourceKind
	for _, kind := range types.AllSourceKinds() {
		if _, ok := o.clients[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

type taskResult struct {
	docs []*model.Document
	err  *model.FetchError
}

// FetchAll fetches every kind with a positive limit. Failed kinds contribute no
// documents and one FetchError each, in source kind order.
func (o *Orchestrator) FetchAll(ctx context.Context, query string, limits model.SourceLimits) (*model.Corpus, []*model.FetchError) {
	if limits == nil {
		limits = model.DefaultSourceLimits()
	}
	logger := logging.From(ctx)
	corpus := model.NewCorpus(limits)
	started := time.Now()

	var requested []types.SourceKind
	for _, kind := range types.AllSourceKinds() {
		if limits[kind] > 0 {
			requested = append(requested, kind)
		}
	}

	ceilCtx, cancel := context.WithTimeout(ctx, o.globalTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		sealed  bool
		results = make(map[types.SourceKind]taskResult, len(requested))
	)

	var g errgroup.Group
	g.SetLimit(o.workers)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for _, kind := range requested {
			client, ok := o.clients[kind]
			if !ok {
				mu.Lock()
				if !sealed {
					results[kind] = taskResult{err: &model.FetchError{
						Kind:  kind,
						Cause: types.FetchCauseAuthentication,
						Err:   errNotConfigured,
					}}
				}
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				docs, fe := o.runTask(ceilCtx, client, query, limits[kind])
				mu.Lock()
				defer mu.Unlock()
				if !sealed {
					results[kind] = taskResult{docs: docs, err: fe}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ceilCtx.Done():
		cancel()
		select {
		case <-done:
		case <-time.After(ceilingGrace):
			logger.Warn("abandoning fetch tasks that ignored cancellation", "ceiling", o.globalTimeout)
		}
	}

	mu.Lock()
	sealed = true
	settled := make(map[types.SourceKind]taskResult, len(results))
	for kind, res := range results {
		settled[kind] = res
	}
	mu.Unlock()

	var fetchErrors []*model.FetchError
	for _, kind := range requested {
		res, ok := settled[kind]
		switch {
		case !ok:
			fetchErrors = append(fetchErrors, &model.FetchError{
				Kind:  kind,
				Cause: types.FetchCauseGlobalTimeout,
				Err:   goerr.New("fetch did not finish before the global ceiling", goerr.V("ceiling", o.globalTimeout)),
			})
		case res.err != nil:
			fetchErrors = append(fetchErrors, res.err)
		default:
			corpus.Add(kind, res.docs)
		}
	}

	for _, fe := range fetchErrors {
		logger.Warn("source fetch failed", "kind", fe.Kind, "cause", fe.Cause, "error", fe.Err)
	}
	logger.Info("fetch completed",
		"query", query,
		"documents", corpus.Len(),
		"failed", len(fetchErrors),
		"elapsed", time.Since(started),
	)

	return corpus, fetchErrors
}

// runTask fetches one kind with per-attempt timeout and exponential backoff.
// ctx is the ceiling context; when it ends the task reports a global timeout.
func (o *Orchestrator) runTask(ctx context.Context, client interfaces.SourceClient, query string, limit int) ([]*model.Document, *model.FetchError) {
	kind := client.Kind()
	key := usage.KeyFetchPrefix + kind.String()
	logger := logging.From(ctx).With("kind", kind)

	globalErr := func(err error) *model.FetchError {
		return &model.FetchError{Kind: kind, Cause: types.FetchCauseGlobalTimeout, Err: err}
	}

	var lastErr error
	lastCause := types.FetchCauseUnknown

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			wait := o.backoff(attempt)
			logger.Debug("retrying fetch", "attempt", attempt, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, globalErr(ctx.Err())
			case <-time.After(wait):
			}
		}

		if o.tracker != nil {
			if err := o.tracker.Acquire(ctx, key); err != nil {
				return nil, globalErr(err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
		records, err := client.Fetch(attemptCtx, query, limit)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil && ctx.Err() == nil {
			docs := normalizer.NormalizeAll(records, kind)
			if len(docs) > limit {
				docs = docs[:limit]
			}
			logger.Debug("fetch succeeded", "records", len(records), "documents", len(docs))
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, globalErr(ctx.Err())
		}

		lastErr = err
		lastCause = classify(err, attemptErr)
		if o.tracker != nil {
			if lastCause == types.FetchCauseQuota {
				o.tracker.RecordQuotaHit(key)
			} else {
				o.tracker.RecordFailure(key)
			}
		}
		logger.Warn("fetch attempt failed", "attempt", attempt, "cause", lastCause, "error", err)

		if !lastCause.Retryable() {
			break
		}
	}

	return nil, &model.FetchError{
		Kind:  kind,
		Cause: lastCause,
		Err:   goerr.Wrap(lastErr, "fetch retries exhausted", goerr.V("kind", kind), goerr.V("retries", o.maxRetries)),
	}
}

// backoff returns base*2^(attempt-1) plus up to half of that as jitter
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.backoffBase << (attempt - 1)
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int64N(half + 1))
	}
	return d
}

func classify(err error, attemptErr error) types.FetchCause {
	switch {
	case errors.Is(err, model.ErrAuthentication):
		return types.FetchCauseAuthentication
	case errors.Is(err, model.ErrQuotaExceeded):
		return types.FetchCauseQuota
	case errors.Is(err, context.DeadlineExceeded), errors.Is(attemptErr, context.DeadlineExceeded):
		return types.FetchCauseTimeout
	default:
		return types.FetchCauseUnknown
	}
}
