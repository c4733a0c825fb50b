package fetch

import (
	"time"

	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

func (o *Orchestrator) Backoff(attempt int) time.Duration {
	return o.backoff(attempt)
}

func ClassifyCause(err, attemptErr error) types.FetchCause {
	return classify(err, attemptErr)
}
