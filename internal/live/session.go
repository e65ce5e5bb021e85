package live

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

// RoomName derives the deterministic broadcast room for a session.
func RoomName(pollID, historyID uuid.UUID) string {
	return fmt.Sprintf("poll-%s-%s", pollID, historyID)
}

// participant is one student's live presence in a session.
type participant struct {
	Name     string
	ClientID string
	Answered bool
}

// ActiveSession is the ephemeral in-memory state machine for one ongoing
// polling event. The poll snapshot is read once at start and treated as
// immutable for the session's lifetime.
type ActiveSession struct {
	HistoryID uuid.UUID
	PollID    uuid.UUID
	TeacherID uuid.UUID
	Room      string

	poll *models.Poll

	mu                sync.Mutex
	currentQuestionID string
	askedAt           map[string]time.Time // questionID -> startedAt; only grows
	participants      map[string]*participant
	completed         bool
}

func newActiveSession(poll *models.Poll, historyID, teacherID uuid.UUID) *ActiveSession {
	return &ActiveSession{
		HistoryID:    historyID,
		PollID:       poll.ID,
		TeacherID:    teacherID,
		Room:         RoomName(poll.ID, historyID),
		poll:         poll,
		askedAt:      make(map[string]time.Time),
		participants: make(map[string]*participant),
	}
}

// beginQuestion validates and records the start of a question. It enforces
// the single-active-question rule and the asked-set monotonicity.
func (s *ActiveSession) beginQuestion(questionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, asked := s.askedAt[questionID]; asked {
		return fmt.Errorf("question already asked in this session: %w", ErrStateConflict)
	}
	if s.currentQuestionID != "" {
		return fmt.Errorf("another question is active, end it first: %w", ErrStateConflict)
	}
	s.currentQuestionID = questionID
	s.askedAt[questionID] = now
	for _, p := range s.participants {
		p.Answered = false
	}
	return nil
}

// finishQuestion clears the active question if it matches and resets the
// per-participant answered flags. Returns the recorded start time.
func (s *ActiveSession) finishQuestion(questionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startedAt, asked := s.askedAt[questionID]
	if !asked {
		return time.Time{}, false
	}
	if s.currentQuestionID == questionID {
		s.currentQuestionID = ""
	}
	for _, p := range s.participants {
		p.Answered = false
	}
	return startedAt, true
}

// currentQuestion returns the active question ID, or "".
func (s *ActiveSession) currentQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuestionID
}

// askedCount returns how many questions have been asked so far.
func (s *ActiveSession) askedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.askedAt)
}

// markCompleted transitions the session to Completed once; returns whether
// this call performed the transition.
func (s *ActiveSession) markCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	return true
}

// upsertParticipant adds or refreshes a live roster entry, carrying the
// answered flag so a reconnect cannot dodge an already-recorded answer.
func (s *ActiveSession) upsertParticipant(sessionID, name, clientID string, answered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[sessionID] = &participant{Name: name, ClientID: clientID, Answered: answered}
}

// removeParticipant drops a roster entry, returning its client ID.
func (s *ActiveSession) removeParticipant(sessionID string) (clientID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[sessionID]
	if ok {
		delete(s.participants, sessionID)
		clientID = p.ClientID
	}
	return clientID, ok
}

// markAnswered flags a live participant as having answered.
func (s *ActiveSession) markAnswered(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[sessionID]; ok {
		p.Answered = true
	}
}

// participantCount returns the size of the live roster.
func (s *ActiveSession) participantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}
