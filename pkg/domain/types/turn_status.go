package types

// TurnStatus describes how a conversation turn was resolved
type TurnStatus string

const (
	TurnStatusAnswered             TurnStatus = "answered"
	TurnStatusInsufficientEvidence TurnStatus = "insufficient_evidence"
	TurnStatusFailed               TurnStatus = "failed"
)

func (s TurnStatus) String() string {
	return string(s)
}

// SessionState is the state of a RAG session turn cycle
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRetrieving SessionState = "retrieving"
	SessionStateGenerating SessionState = "generating"
	SessionStateAnswered   SessionState = "answered"
)

func (s SessionState) String() string {
	return string(s)
}
