package models

import (
	"time"

	"github.com/google/uuid"
)

// Option is one answer choice of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is one multiple-choice question of a poll.
// Questions and options are stored as JSONB on the poll row and are
// immutable while a live session is running.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []Option `json:"options"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

// Poll represents an authored poll: a title and an ordered list of questions.
type Poll struct {
	ID                  uuid.UUID  `json:"id"`
	TeacherID           uuid.UUID  `json:"teacher_id"`
	Title               string     `json:"title"`
	Questions           []Question `json:"questions"`
	DefaultTimeLimitSec int        `json:"default_time_limit_sec"`
	CreatedAt           time.Time  `json:"created_at"`
}

// QuestionByID returns the question with the given id, or nil.
func (p *Poll) QuestionByID(questionID string) *Question {
	for i := range p.Questions {
		if p.Questions[i].ID == questionID {
			return &p.Questions[i]
		}
	}
	return nil
}
