package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/fetch"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
	"github.com/secmon-lab/trendscope/pkg/service/sentiment"
	"github.com/secmon-lab/trendscope/pkg/service/synthesis"
	"github.com/secmon-lab/trendscope/pkg/utils/errutil"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// indexUnavailableNote is added to the report when documents could not be embedded
const indexUnavailableNote = "embedding: the document index could not be built, follow-up questions cannot be answered"

// AnalysisUseCase runs analyses and keeps their results
type AnalysisUseCase struct {
	repo        interfaces.AnalysisRepository
	sessions    *sessionRegistry
	fetcher     *fetch.Orchestrator
	synthesizer *synthesis.Synthesizer
	scorer      *sentiment.Scorer
	embedder    interfaces.Embedder
	generator   interfaces.Generator
	limits      model.SourceLimits
	indexOpts   []index.Option
	ragOpts     []rag.Option
}

// Analyze fetches documents for query from every configured source, scores and
// indexes them, synthesizes a report and opens a conversation session over the
// same index. Source and generation failures degrade the result; only
// configuration faults are returned as errors.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, query string) (*model.Analysis, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "cannot analyze")
	}

	id := model.NewSessionID()
	logger := logging.From(ctx).With(SessionIDKey, id)
	ctx = logging.With(ctx, logger)
	started := time.Now()

	idx, err := index.New(uc.embedder, uc.indexOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create document index", goerr.V(SessionIDKey, id))
	}

	logger.Info("analysis started", QueryKey, query)
	corpus, fetchErrs := uc.fetcher.FetchAll(ctx, query, uc.limits)
	docs := corpus.All()

	var (
		sentiments model.Sentiments
		ingestErr  error
	)
	var eg errgroup.Group
	eg.Go(func() error {
		sentiments = uc.scorer.ScoreAll(docs)
		return nil
	})
	eg.Go(func() error {
		if err := idx.Ingest(ctx, docs); err != nil {
			if errors.Is(err, model.ErrConfiguration) {
				return err
			}
			ingestErr = err
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to index documents", goerr.V(SessionIDKey, id))
	}

	report := uc.synthesizer.Synthesize(ctx, query, corpus, sentiments, fetchErrs)
	if ingestErr != nil {
		_ = errutil.Handle(ctx, ingestErr, "failed to index documents")
		report.FailureNotes = append(report.FailureNotes, indexUnavailableNote)
	}

	analysis := &model.Analysis{
		SessionID:   id,
		Query:       query,
		Report:      report,
		Corpus:      corpus,
		Sentiments:  sentiments,
		FetchErrors: fetchErrs,
		CreatedAt:   started.UTC(),
	}
	if err := uc.repo.Put(ctx, analysis); err != nil {
		return nil, goerr.Wrap(err, "failed to store analysis", goerr.V(SessionIDKey, id))
	}

	session, err := rag.New(id, idx, uc.generator, uc.ragOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open conversation session", goerr.V(SessionIDKey, id))
	}
	uc.sessions.put(session)

	logger.Info("analysis finished",
		"documents", corpus.Len(),
		"failed_sources", analysis.FailedKinds(),
		"degraded", report.Degraded,
		"elapsed", time.Since(started),
	)
	return analysis, nil
}

// Get returns a stored analysis
func (uc *AnalysisUseCase) Get(ctx context.Context, id model.SessionID) (*model.Analysis, error) {
	analysis, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrSessionNotFound, err), "failed to get analysis", goerr.V(SessionIDKey, id))
	}
	return analysis, nil
}

// List returns every stored analysis, newest first
func (uc *AnalysisUseCase) List(ctx context.Context) ([]*model.Analysis, error) {
	analyses, err := uc.repo.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list analyses")
	}
	return analyses, nil
}

// Documents returns the documents of one source kind, or every document in kind
// order when kind is empty
func (uc *AnalysisUseCase) Documents(ctx context.Context, id model.SessionID, kind types.SourceKind) ([]*model.Document, error) {
	analysis, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if kind == "" {
		return analysis.Corpus.All(), nil
	}
	if !kind.IsValid() {
		return nil, goerr.New("invalid source kind", goerr.V("kind", kind))
	}
	return analysis.Corpus.Documents(kind), nil
}

// Close drops the analysis and its conversation session
func (uc *AnalysisUseCase) Close(ctx context.Context, id model.SessionID) error {
	removed := uc.sessions.delete(id)
	if err := uc.repo.Delete(ctx, id); err != nil {
		if removed {
			return nil
		}
		return goerr.Wrap(errors.Join(model.ErrSessionNotFound, err), "failed to close session", goerr.V(SessionIDKey, id))
	}

	logging.From(ctx).Info("session closed", SessionIDKey, id)
	return nil
}

// Expire closes every session whose last activity, the newest conversation
// turn or else the analysis itself, is before the cutoff
func (uc *AnalysisUseCase) Expire(ctx context.Context, before time.Time) (int, error) {
	analyses, err := uc.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, a := range analyses {
		last := a.CreatedAt
		if session, err := uc.sessions.get(a.SessionID); err == nil {
			if turns := session.History(); len(turns) > 0 && turns[len(turns)-1].Timestamp.After(last) {
				last = turns[len(turns)-1].Timestamp
			}
		}
		if !last.Before(before) {
			continue
		}

		if err := uc.Close(ctx, a.SessionID); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
