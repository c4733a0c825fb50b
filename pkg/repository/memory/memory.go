package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
)

// ErrNotFound is returned when an analysis id is not stored
var ErrNotFound = goerr.New("not found")

// Memory keeps analyses in process memory. Nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	analyses map[model.SessionID]*model.Analysis
}

var _ interfaces.AnalysisRepository = &Memory{}

func New() *Memory {
	return &Memory{
		analyses: make(map[model.SessionID]*model.Analysis),
	}
}

// copyAnalysis copies the mutable top-level fields. Report and Corpus are shared
// because they are not modified after the analysis completes.
func copyAnalysis(a *model.Analysis) *model.Analysis {
	copied := *a

	if a.Sentiments != nil {
		copied.Sentiments = make(model.Sentiments, len(a.Sentiments))
		for id, s := range a.Sentiments {
			copied.Sentiments[id] = s
		}
	}
	if a.FetchErrors != nil {
		copied.FetchErrors = make([]*model.FetchError, len(a.FetchErrors))
		copy(copied.FetchErrors, a.FetchErrors)
	}

	return &copied
}

func (m *Memory) Put(ctx context.Context, analysis *model.Analysis) error {
	if analysis == nil || analysis.SessionID == "" {
		return goerr.New("analysis session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.analyses[analysis.SessionID] = copyAnalysis(analysis)
	return nil
}

func (m *Memory) Get(ctx context.Context, id model.SessionID) (*model.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	analysis, exists := m.analyses[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "analysis not found", goerr.V("id", id))
	}

	return copyAnalysis(analysis), nil
}

func (m *Memory) Delete(ctx context.Context, id model.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.analyses[id]; !exists {
		return goerr.Wrap(ErrNotFound, "analysis not found", goerr.V("id", id))
	}

	delete(m.analyses, id)
	return nil
}

// List returns all analyses, newest first
func (m *Memory) List(ctx context.Context) ([]*model.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Analysis, 0, len(m.analyses))
	for _, a := range m.analyses {
		result = append(result, copyAnalysis(a))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
