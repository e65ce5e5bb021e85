package votes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/live"
	"github.com/classpulse/backend/internal/models"
)

// Repository handles vote persistence. Uniqueness per
// (history_id, question_id, session_id) is enforced by the database, so a
// resubmission after a crash is still rejected.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a votes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a vote; returns live.ErrDuplicateVote when the student has
// already voted on this question in this history.
func (r *Repository) Insert(ctx context.Context, v *models.Vote) error {
	const query = `INSERT INTO votes (poll_id, history_id, question_id, session_id, option_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (history_id, question_id, session_id) DO NOTHING`
	ct, err := r.pool.Exec(ctx, query, v.PollID, v.HistoryID, v.QuestionID, v.SessionID, v.OptionID)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return live.ErrDuplicateVote
	}
	return nil
}

// Tally recomputes per-option counts by grouping durable vote rows; it never
// reads a separately maintained counter. totalVotes equals the number of
// distinct voters given the uniqueness constraint.
func (r *Repository) Tally(ctx context.Context, historyID uuid.UUID, questionID string) (map[string]int, int, error) {
	const query = `SELECT option_id, COUNT(*) FROM votes
		WHERE history_id = $1 AND question_id = $2 GROUP BY option_id`
	rows, err := r.pool.Query(ctx, query, historyID, questionID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tallies := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			optionID string
			count    int
		)
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, 0, err
		}
		tallies[optionID] = count
		total += count
	}
	return tallies, total, rows.Err()
}

// ListByHistory returns every vote of a history (for history detail views).
func (r *Repository) ListByHistory(ctx context.Context, historyID uuid.UUID) ([]models.Vote, error) {
	const query = `SELECT id, poll_id, history_id, question_id, session_id, option_id, created_at
		FROM votes WHERE history_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, historyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.PollID, &v.HistoryID, &v.QuestionID, &v.SessionID, &v.OptionID, &v.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}
