package source

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

// Merged combines several clients of the same kind. Clients are asked in order
// until the limit is filled; a client failure is logged and skipped unless every
// client fails.
type Merged struct {
	kind    types.SourceKind
	clients []interfaces.SourceClient
}

var _ interfaces.SourceClient = &Merged{}

// Merge returns a single client for kind. Nil clients and clients of another kind
// are ignored. It returns nil when no client remains.
func Merge(kind types.SourceKind, clients ...interfaces.SourceClient) interfaces.SourceClient {
	var filtered []interfaces.SourceClient
	for _, c := range clients {
		if c == nil || c.Kind() != kind {
			continue
		}
		filtered = append(filtered, c)
	}

	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	}
	return &Merged{kind: kind, clients: filtered}
}

func (m *Merged) Kind() types.SourceKind {
	return m.kind
}

func (m *Merged) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	var (
		records []model.RawRecord
		errs    []error
	)

	for i, c := range m.clients {
		if len(records) >= limit {
			break
		}
		got, err := c.Fetch(ctx, query, limit-len(records))
		if err != nil {
			logging.From(ctx).Warn("source client failed", "kind", m.kind, "client", i, "error", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		records = append(records, got...)
	}

	if len(records) == 0 && len(errs) > 0 {
		return nil, goerr.Wrap(errors.Join(errs...), "all source clients failed", goerr.V("kind", m.kind))
	}
	return records, nil
}
