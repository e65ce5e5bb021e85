package students

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles student session persistence: one row per student per
// history, plus an append-only event log (joined, reconnected, answered,
// kicked, disconnected).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a student sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the student session, or nil when none exists.
func (r *Repository) Get(ctx context.Context, sessionID string) (*models.StudentSession, error) {
	const query = `SELECT session_id, poll_id, history_id, name, user_id, connected, kicked, answered_for, created_at, updated_at
		FROM student_sessions WHERE session_id = $1`
	var (
		s        models.StudentSession
		answered []byte
	)
	err := r.pool.QueryRow(ctx, query, sessionID).
		Scan(&s.SessionID, &s.PollID, &s.HistoryID, &s.Name, &s.UserID, &s.Connected, &s.Kicked, &answered, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answered, &s.AnsweredFor); err != nil {
		return nil, fmt.Errorf("unmarshal answered_for: %w", err)
	}
	return &s, nil
}

// Create inserts a new student session.
func (r *Repository) Create(ctx context.Context, s *models.StudentSession) error {
	answered, err := json.Marshal(s.AnsweredFor)
	if err != nil {
		return fmt.Errorf("marshal answered_for: %w", err)
	}
	const query = `INSERT INTO student_sessions (session_id, poll_id, history_id, name, user_id, connected, kicked, answered_for)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query, s.SessionID, s.PollID, s.HistoryID, s.Name, s.UserID, s.Connected, answered).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

// SetConnected updates the connected flag.
func (r *Repository) SetConnected(ctx context.Context, sessionID string, connected bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE student_sessions SET connected = $2, updated_at = NOW() WHERE session_id = $1`,
		sessionID, connected)
	return err
}

// SetKicked marks the session kicked and disconnected. Kicked is sticky: no
// code path ever clears it for a history.
func (r *Repository) SetKicked(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE student_sessions SET kicked = TRUE, connected = FALSE, updated_at = NOW() WHERE session_id = $1`,
		sessionID)
	return err
}

// SetAnswered records which option the student chose for a question.
func (r *Repository) SetAnswered(ctx context.Context, sessionID, questionID, optionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE student_sessions
		 SET answered_for = jsonb_set(answered_for, ARRAY[$2], to_jsonb($3::text)), updated_at = NOW()
		 WHERE session_id = $1`,
		sessionID, questionID, optionID)
	return err
}

// ListConnected returns connected, non-kicked sessions for a history.
func (r *Repository) ListConnected(ctx context.Context, historyID uuid.UUID) ([]models.StudentSession, error) {
	const query = `SELECT session_id, poll_id, history_id, name, user_id, connected, kicked, answered_for, created_at, updated_at
		FROM student_sessions WHERE history_id = $1 AND connected = TRUE AND kicked = FALSE ORDER BY created_at`
	return r.list(ctx, query, historyID)
}

// ListByHistory returns every session of a history, including disconnected
// and kicked ones (for history detail views).
func (r *Repository) ListByHistory(ctx context.Context, historyID uuid.UUID) ([]models.StudentSession, error) {
	const query = `SELECT session_id, poll_id, history_id, name, user_id, connected, kicked, answered_for, created_at, updated_at
		FROM student_sessions WHERE history_id = $1 ORDER BY created_at`
	return r.list(ctx, query, historyID)
}

func (r *Repository) list(ctx context.Context, query string, historyID uuid.UUID) ([]models.StudentSession, error) {
	rows, err := r.pool.Query(ctx, query, historyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.StudentSession
	for rows.Next() {
		var (
			s        models.StudentSession
			answered []byte
		)
		if err := rows.Scan(&s.SessionID, &s.PollID, &s.HistoryID, &s.Name, &s.UserID, &s.Connected, &s.Kicked, &answered, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answered, &s.AnsweredFor); err != nil {
			return nil, fmt.Errorf("unmarshal answered_for: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// AppendEvent appends one entry to a session's event log.
func (r *Repository) AppendEvent(ctx context.Context, sessionID string, historyID uuid.UUID, event, details string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (session_id, history_id, event, details) VALUES ($1, $2, $3, $4)`,
		sessionID, historyID, event, details)
	return err
}

// ListEvents returns a history's event log entries in order.
func (r *Repository) ListEvents(ctx context.Context, historyID uuid.UUID) ([]models.SessionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, history_id, event, details, created_at
		 FROM session_events WHERE history_id = $1 ORDER BY id`,
		historyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SessionEvent
	for rows.Next() {
		var e models.SessionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.HistoryID, &e.Event, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
