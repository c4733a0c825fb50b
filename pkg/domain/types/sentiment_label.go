package types

// SentimentLabel is the discrete polarity class of a document
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Polarity thresholds. A compound score at or beyond a threshold takes that label.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// AllSentimentLabels returns all labels ordered from positive to negative
func AllSentimentLabels() []SentimentLabel {
	return []SentimentLabel{
		SentimentPositive,
		SentimentNeutral,
		SentimentNegative,
	}
}

// LabelOf maps a polarity in [-1, 1] to its label
func LabelOf(polarity float64) SentimentLabel {
	switch {
	case polarity >= PositiveThreshold:
		return SentimentPositive
	case polarity <= NegativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func (l SentimentLabel) String() string {
	return string(l)
}
