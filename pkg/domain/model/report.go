package model

import (
	"time"

	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// SourceStats is locally computed statistics for one source kind
type SourceStats struct {
	Kind            types.SourceKind `json:"kind"`
	DocumentCount   int              `json:"document_count"`
	AveragePolarity float64          `json:"average_polarity"`
	KeyThemes       []string         `json:"key_themes"`
}

// AnalysisReport is the one-shot report produced for a corpus. It is not modified after creation.
type AnalysisReport struct {
	Query                 string                           `json:"query"`
	Summary               string                           `json:"summary"`
	Insights              []string                         `json:"insights"`
	SourceSummaries       map[types.SourceKind]string      `json:"source_summaries"`
	SentimentDistribution SentimentDistribution            `json:"sentiment_distribution"`
	SourceStats           map[types.SourceKind]SourceStats `json:"source_stats"`
	FailureNotes          []string                         `json:"failure_notes"`
	Degraded              bool                             `json:"degraded"`
	GeneratedAt           time.Time                        `json:"generated_at"`
}
