package model

import "github.com/secmon-lab/trendscope/pkg/domain/types"

// SentimentScore is the polarity assessment of one document
type SentimentScore struct {
	DocumentID types.DocumentID     `json:"document_id"`
	Polarity   float64              `json:"polarity"`
	Label      types.SentimentLabel `json:"label"`
	Positive   float64              `json:"positive"`
	Negative   float64              `json:"negative"`
	Neutral    float64              `json:"neutral"`
}

// Sentiments maps document ids to their scores
type Sentiments map[types.DocumentID]SentimentScore

// SentimentDistribution counts labels per source kind
type SentimentDistribution map[types.SourceKind]map[types.SentimentLabel]int

// Total returns the number of documents counted for a kind
func (d SentimentDistribution) Total(kind types.SourceKind) int {
	total := 0
	for _, n := range d[kind] {
		total += n
	}
	return total
}
