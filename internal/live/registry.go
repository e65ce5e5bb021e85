package live

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds the live sessions of this process, keyed by history ID.
// It is owned by the Orchestrator and passed in, never ambient. Unrelated
// sessions never contend: all per-session state lives on the session itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ActiveSession
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*ActiveSession)}
}

// Get returns the live session for a history, or nil.
func (r *Registry) Get(historyID uuid.UUID) *ActiveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[historyID]
}

// Put registers a live session.
func (r *Registry) Put(s *ActiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.HistoryID] = s
}

// Delete removes a live session so late events are rejected with ErrNotFound.
func (r *Registry) Delete(historyID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, historyID)
}

// ListByTeacher returns the live sessions owned by a teacher.
func (r *Registry) ListByTeacher(teacherID uuid.UUID) []*ActiveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ActiveSession
	for _, s := range r.sessions {
		if s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live sessions (for health reporting).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
