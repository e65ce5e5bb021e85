package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles polling event records: the history row itself, its
// finalized per-question tallies, and the participant roster.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new history row.
func (r *Repository) Create(ctx context.Context, h *models.History) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO histories (id, poll_id, teacher_id, title, created_at) VALUES ($1, $2, $3, $4, $5)`,
		h.ID, h.PollID, h.TeacherID, h.Title, h.CreatedAt)
	return err
}

// GetByID returns a history by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.History, error) {
	const query = `SELECT id, poll_id, teacher_id, title, created_at, ended_at FROM histories WHERE id = $1`
	var h models.History
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&h.ID, &h.PollID, &h.TeacherID, &h.Title, &h.CreatedAt, &h.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// FindActiveByTeacher returns the teacher's unended history, or nil. A teacher
// owns at most one at a time.
func (r *Repository) FindActiveByTeacher(ctx context.Context, teacherID uuid.UUID) (*models.History, error) {
	const query = `SELECT id, poll_id, teacher_id, title, created_at, ended_at
		FROM histories WHERE teacher_id = $1 AND ended_at IS NULL LIMIT 1`
	var h models.History
	err := r.pool.QueryRow(ctx, query, teacherID).
		Scan(&h.ID, &h.PollID, &h.TeacherID, &h.Title, &h.CreatedAt, &h.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// AppendFinishedQuestion finalizes a question exactly once per history.
// Returns false when the question was already finalized; racing end triggers
// resolve here.
func (r *Repository) AppendFinishedQuestion(ctx context.Context, historyID uuid.UUID, fq *models.FinishedQuestion) (bool, error) {
	options, err := json.Marshal(fq.Options)
	if err != nil {
		return false, fmt.Errorf("marshal options: %w", err)
	}
	tallies, err := json.Marshal(fq.Tallies)
	if err != nil {
		return false, fmt.Errorf("marshal tallies: %w", err)
	}
	const query = `INSERT INTO finished_questions (history_id, question_id, question_text, options, tallies, total_votes, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (history_id, question_id) DO NOTHING`
	ct, err := r.pool.Exec(ctx, query, historyID, fq.QuestionID, fq.QuestionText, options, tallies, fq.TotalVotes, fq.StartedAt, fq.EndedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ListFinishedQuestions returns a history's finalized questions in order.
func (r *Repository) ListFinishedQuestions(ctx context.Context, historyID uuid.UUID) ([]models.FinishedQuestion, error) {
	const query = `SELECT question_id, question_text, options, tallies, total_votes, started_at, ended_at
		FROM finished_questions WHERE history_id = $1 ORDER BY started_at`
	rows, err := r.pool.Query(ctx, query, historyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.FinishedQuestion
	for rows.Next() {
		var (
			fq      models.FinishedQuestion
			options []byte
			tallies []byte
		)
		if err := rows.Scan(&fq.QuestionID, &fq.QuestionText, &options, &tallies, &fq.TotalVotes, &fq.StartedAt, &fq.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &fq.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		if err := json.Unmarshal(tallies, &fq.Tallies); err != nil {
			return nil, fmt.Errorf("unmarshal tallies: %w", err)
		}
		list = append(list, fq)
	}
	return list, rows.Err()
}

// AddParticipant records a student's first appearance in a history's roster.
func (r *Repository) AddParticipant(ctx context.Context, historyID uuid.UUID, p *models.Participant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO history_participants (history_id, session_id, name, user_id, joined_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (history_id, session_id) DO NOTHING`,
		historyID, p.SessionID, p.Name, p.UserID, p.JoinedAt)
	return err
}

// ListParticipants returns a history's roster in join order.
func (r *Repository) ListParticipants(ctx context.Context, historyID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, name, user_id, joined_at
		 FROM history_participants WHERE history_id = $1 ORDER BY joined_at`,
		historyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.SessionID, &p.Name, &p.UserID, &p.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// SetEndedAt closes a history.
func (r *Repository) SetEndedAt(ctx context.Context, historyID uuid.UUID, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE histories SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		historyID, endedAt)
	return err
}

// Summary is one row of a user's history listing.
type Summary struct {
	models.History
	ParticipantCount   int `json:"participant_count"`
	QuestionsCompleted int `json:"questions_completed"`
}

// ListByTeacher returns histories the user ran as teacher, newest first, with
// participant and completed-question counts.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]Summary, error) {
	const query = `SELECT h.id, h.poll_id, h.teacher_id, h.title, h.created_at, h.ended_at,
		(SELECT COUNT(*) FROM student_sessions s WHERE s.history_id = h.id),
		(SELECT COUNT(*) FROM finished_questions f WHERE f.history_id = h.id)
		FROM histories h WHERE h.teacher_id = $1 ORDER BY h.created_at DESC`
	return r.listSummaries(ctx, query, teacherID)
}

// ListByParticipant returns histories the user joined as student, newest first.
func (r *Repository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	const query = `SELECT h.id, h.poll_id, h.teacher_id, h.title, h.created_at, h.ended_at,
		(SELECT COUNT(*) FROM student_sessions s WHERE s.history_id = h.id),
		(SELECT COUNT(*) FROM finished_questions f WHERE f.history_id = h.id)
		FROM histories h
		JOIN history_participants p ON p.history_id = h.id AND p.user_id = $1
		ORDER BY h.created_at DESC`
	return r.listSummaries(ctx, query, userID)
}

func (r *Repository) listSummaries(ctx context.Context, query string, id uuid.UUID) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.PollID, &s.TeacherID, &s.Title, &s.CreatedAt, &s.EndedAt,
			&s.ParticipantCount, &s.QuestionsCompleted); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
