package interfaces

import (
	"context"

	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// SourceClient fetches raw records of one source kind. Implementations return
// errors wrapping model.ErrAuthentication or model.ErrQuotaExceeded when applicable.
type SourceClient interface {
	Kind() types.SourceKind
	Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error)
}
