package live

import "errors"

var (
	// ErrNotFound covers unknown polls, histories, questions, and late events
	// for a session that has already been torn down.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized covers control actions from a non-owning teacher and any
	// action from a kicked participant.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStateConflict covers re-asking an asked question, asking while one is
	// active, starting a second session, and joining as student while teaching.
	ErrStateConflict = errors.New("state conflict")
	// ErrDuplicateVote is returned when a vote already exists for the
	// (history, question, student session) triple.
	ErrDuplicateVote = errors.New("already voted for this question")
)
