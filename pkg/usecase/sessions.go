package usecase

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
)

// sessionRegistry owns the RAG session of every live analysis
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*rag.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[model.SessionID]*rag.Session)}
}

func (r *sessionRegistry) put(s *rag.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *sessionRegistry) get(id model.SessionID) (*rag.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found", goerr.V(SessionIDKey, id))
	}
	return s, nil
}

func (r *sessionRegistry) delete(id model.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
