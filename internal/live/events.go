package live

import (
	"time"

	"github.com/google/uuid"

	"github.com/classpulse/backend/internal/models"
)

// Server-to-client event names.
const (
	EventSessionStarted   = "session-started"
	EventNewQuestion      = "new-question"
	EventQuestionStarted  = "question-started"
	EventResultsUpdate    = "results-update"
	EventResultsFinal     = "results-final"
	EventAllAnswered      = "all-answered"
	EventStudentList      = "student-list-update"
	EventSessionCompleted = "session-completed"
	EventSessionEnded     = "session-ended"
	EventJoined           = "joined"
	EventKicked           = "kicked"
	EventChatReceive      = "chat-receive"
	EventError            = "error"
)

// NewQuestionPayload announces a freshly asked question to the room.
type NewQuestionPayload struct {
	PollID      uuid.UUID       `json:"poll_id"`
	HistoryID   uuid.UUID       `json:"history_id"`
	QuestionID  string          `json:"question_id"`
	Text        string          `json:"text"`
	Options     []models.Option `json:"options"`
	TimeLeftSec int             `json:"time_left_sec"`
}

// QuestionStartedPayload acknowledges the ask to the teacher.
type QuestionStartedPayload struct {
	QuestionID  string `json:"question_id"`
	TimeLeftSec int    `json:"time_left_sec"`
}

// ResultsPayload carries tallies for results-update and results-final.
type ResultsPayload struct {
	PollID     uuid.UUID      `json:"poll_id"`
	HistoryID  uuid.UUID      `json:"history_id"`
	QuestionID string         `json:"question_id"`
	Tallies    map[string]int `json:"tallies"`
	TotalVotes int            `json:"total_votes"`
}

// AllAnsweredPayload signals every connected student has voted.
type AllAnsweredPayload struct {
	PollID     uuid.UUID `json:"poll_id"`
	HistoryID  uuid.UUID `json:"history_id"`
	QuestionID string    `json:"question_id"`
}

// StudentEntry is one row of the student-list-update roster.
type StudentEntry struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Answered  bool   `json:"answered"`
}

// StudentListPayload is the full-state roster rebroadcast.
type StudentListPayload struct {
	Students []StudentEntry `json:"students"`
}

// SessionCompletedPayload announces that every question has been asked.
type SessionCompletedPayload struct {
	HistoryID uuid.UUID `json:"history_id"`
	Message   string    `json:"message"`
}

// SessionEndedPayload announces the explicit end of a session.
type SessionEndedPayload struct {
	HistoryID uuid.UUID `json:"history_id"`
}

// KickedPayload is sent to a removed student before disconnect.
type KickedPayload struct {
	Reason string `json:"reason"`
}

// ChatMessagePayload is a relayed transient chat message.
type ChatMessagePayload struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
