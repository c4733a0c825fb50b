package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// SessionID identifies one analysis session and its conversation
type SessionID string

// NewSessionID generates a new UUID v4 SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (id SessionID) String() string {
	return string(id)
}

// Analysis is the result of analyzing one query
type Analysis struct {
	SessionID   SessionID
	Query       string
	Report      *AnalysisReport
	Corpus      *Corpus
	Sentiments  Sentiments
	FetchErrors []*FetchError
	CreatedAt   time.Time
}

// FailedKinds returns the source kinds that did not deliver
func (a *Analysis) FailedKinds() []types.SourceKind {
	kinds := make([]types.SourceKind, 0, len(a.FetchErrors))
	for _, fe := range a.FetchErrors {
		kinds = append(kinds, fe.Kind)
	}
	return kinds
}
