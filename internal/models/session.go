package models

import (
	"time"

	"github.com/google/uuid"
)

// StudentSession is the durable record of one student's presence across a
// History, distinct from any single live connection. Kicked is sticky: once
// set it is never cleared for that History.
type StudentSession struct {
	SessionID   string            `json:"session_id"`
	PollID      uuid.UUID         `json:"poll_id"`
	HistoryID   uuid.UUID         `json:"history_id"`
	Name        string            `json:"name"`
	UserID      uuid.UUID         `json:"user_id"`
	Connected   bool              `json:"connected"`
	Kicked      bool              `json:"kicked"`
	AnsweredFor map[string]string `json:"answered_for"` // questionID -> optionID
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SessionEvent is one entry of a student session's event log
// (joined, reconnected, answered, kicked, disconnected).
type SessionEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	HistoryID uuid.UUID `json:"history_id"`
	Event     string    `json:"event"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is one student's answer to one question. Unique per
// (history_id, question_id, session_id); enforced at the database layer.
type Vote struct {
	ID         int64     `json:"id"`
	PollID     uuid.UUID `json:"poll_id"`
	HistoryID  uuid.UUID `json:"history_id"`
	QuestionID string    `json:"question_id"`
	SessionID  string    `json:"session_id"`
	OptionID   string    `json:"option_id"`
	CreatedAt  time.Time `json:"created_at"`
}
