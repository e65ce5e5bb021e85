package live

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

// PollStore reads authored polls. Implemented by polls.Repository.
type PollStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error)
}

// HistoryStore persists polling event records. Implemented by history.Repository.
type HistoryStore interface {
	Create(ctx context.Context, h *models.History) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.History, error)
	// FindActiveByTeacher returns the teacher's unended history, or nil.
	FindActiveByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.History, error)
	// AppendFinishedQuestion finalizes a question exactly once. Returns false
	// when the question was already finalized (the idempotency anchor for
	// racing end triggers).
	AppendFinishedQuestion(ctx context.Context, historyID uuid.UUID, fq *models.FinishedQuestion) (bool, error)
	AddParticipant(ctx context.Context, historyID uuid.UUID, p *models.Participant) error
	SetEndedAt(ctx context.Context, historyID uuid.UUID, endedAt time.Time) error
}

// StudentSessionStore persists per-student session state. Implemented by
// students.Repository.
type StudentSessionStore interface {
	// Get returns the student session, or nil when none exists.
	Get(ctx context.Context, sessionID string) (*models.StudentSession, error)
	Create(ctx context.Context, s *models.StudentSession) error
	SetConnected(ctx context.Context, sessionID string, connected bool) error
	// SetKicked marks the session kicked and disconnected. Kicked is sticky.
	SetKicked(ctx context.Context, sessionID string) error
	SetAnswered(ctx context.Context, sessionID, questionID, optionID string) error
	// ListConnected returns connected, non-kicked sessions for a history.
	ListConnected(ctx context.Context, historyID uuid.UUID) ([]models.StudentSession, error)
	AppendEvent(ctx context.Context, sessionID string, historyID uuid.UUID, event, details string) error
}

// VoteStore persists votes. Implemented by votes.Repository.
type VoteStore interface {
	// Insert records a vote; returns ErrDuplicateVote when one already exists
	// for the (history, question, session) triple.
	Insert(ctx context.Context, v *models.Vote) error
	// Tally recomputes per-option counts by grouping durable vote rows.
	// totalVotes equals the number of distinct voters given the uniqueness
	// constraint.
	Tally(ctx context.Context, historyID uuid.UUID, questionID string) (tallies map[string]int, totalVotes int, err error)
}

// Broadcaster fans events out to the connections of one room.
// Implemented by realtime.Hub.
type Broadcaster interface {
	BroadcastToRoom(room, event string, payload interface{})
	SendToClient(room, clientID, event string, payload interface{})
	// CloseClient force-disconnects one connection (used on kick).
	CloseClient(room, clientID string)
}
