package model

import (
	"sync"
	"time"

	"github.com/secmon-lab/trendscope/pkg/domain/types"
)

// DefaultMaxTurns is the default number of turns a history keeps
const DefaultMaxTurns = 20

// ConversationTurn is one question and its answer
type ConversationTurn struct {
	Question         string             `json:"question"`
	Answer           string             `json:"answer"`
	CitedDocumentIDs []types.DocumentID `json:"cited_document_ids"`
	FollowUps        []string           `json:"follow_ups"`
	Status           types.TurnStatus   `json:"status"`
	Confidence       float64            `json:"confidence"`
	Timestamp        time.Time          `json:"timestamp"`
}

// ConversationHistory is a bounded FIFO of turns. When full, appending drops the oldest turn.
type ConversationHistory struct {
	mu       sync.RWMutex
	maxTurns int
	turns    []ConversationTurn
}

// NewConversationHistory creates a history holding at most maxTurns turns
func NewConversationHistory(maxTurns int) *ConversationHistory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &ConversationHistory{maxTurns: maxTurns}
}

// Append adds a turn and returns the number of evicted turns
func (h *ConversationHistory) Append(turn ConversationTurn) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	evicted := 0
	if over := len(h.turns) - h.maxTurns; over > 0 {
		h.turns = append([]ConversationTurn(nil), h.turns[over:]...)
		evicted = over
	}
	return evicted
}

// Last returns up to n most recent turns, oldest first
func (h *ConversationHistory) Last(n int) []ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(h.turns) - n
	if start < 0 {
		start = 0
	}
	result := make([]ConversationTurn, len(h.turns)-start)
	copy(result, h.turns[start:])
	return result
}

// Turns returns a copy of all turns, oldest first
func (h *ConversationHistory) Turns() []ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]ConversationTurn, len(h.turns))
	copy(result, h.turns)
	return result
}

// Len returns the number of turns held
func (h *ConversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// MaxTurns returns the eviction bound
func (h *ConversationHistory) MaxTurns() int {
	return h.maxTurns
}

// Clear removes every turn
func (h *ConversationHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
