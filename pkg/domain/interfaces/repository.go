package interfaces

import (
	"context"

	"github.com/secmon-lab/trendscope/pkg/domain/model"
)

// AnalysisRepository keeps analysis results for the lifetime of the process
type AnalysisRepository interface {
	Put(ctx context.Context, analysis *model.Analysis) error
	Get(ctx context.Context, id model.SessionID) (*model.Analysis, error)
	Delete(ctx context.Context, id model.SessionID) error
	List(ctx context.Context) ([]*model.Analysis, error)
}
