package polls

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

// Repository handles poll persistence. Questions and options live as JSONB on
// the poll row; the live orchestrator snapshots them once at session start.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new poll with its questions.
func (r *Repository) Create(ctx context.Context, p *models.Poll) error {
	questions, err := json.Marshal(p.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	const query = `INSERT INTO polls (id, teacher_id, title, questions, default_time_limit_sec)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, p.TeacherID, p.Title, questions, p.DefaultTimeLimitSec).
		Scan(&p.ID, &p.CreatedAt)
}

// GetByID returns a poll by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	const query = `SELECT id, teacher_id, title, questions, default_time_limit_sec, created_at
		FROM polls WHERE id = $1`
	var (
		p         models.Poll
		questions []byte
	)
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.TeacherID, &p.Title, &questions, &p.DefaultTimeLimitSec, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &p.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &p, nil
}

// ListByTeacher returns the polls authored by a teacher, newest first.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Poll, error) {
	const query = `SELECT id, teacher_id, title, questions, default_time_limit_sec, created_at
		FROM polls WHERE teacher_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Poll
	for rows.Next() {
		var (
			p         models.Poll
			questions []byte
		)
		if err := rows.Scan(&p.ID, &p.TeacherID, &p.Title, &questions, &p.DefaultTimeLimitSec, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(questions, &p.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Delete removes a poll owned by the teacher. Returns false when no matching
// row was deleted.
func (r *Repository) Delete(ctx context.Context, id, teacherID uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
