package models

import (
	"time"

	"github.com/google/uuid"
)

// History is the durable record of one polling event (past or ongoing).
// A teacher owns at most one History without endedAt at a time.
type History struct {
	ID        uuid.UUID  `json:"history_id"`
	PollID    uuid.UUID  `json:"poll_id"`
	TeacherID uuid.UUID  `json:"teacher_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// FinishedQuestion is the finalized per-question record inside a History.
// Created when a question starts, finalized exactly once when it ends.
type FinishedQuestion struct {
	QuestionID   string         `json:"question_id"`
	QuestionText string         `json:"question_text"`
	Options      []Option       `json:"options"`
	Tallies      map[string]int `json:"tallies"`
	TotalVotes   int            `json:"total_votes"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
}

// Participant is one student's appearance in a History's roster.
type Participant struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	UserID    uuid.UUID `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
