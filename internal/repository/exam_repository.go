package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository is the persistence side of the exam catalog. Authoring
// lives elsewhere; this subsystem reads metadata and the seed tool inserts.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves one exam catalog record.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	var key []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, subject, duration_minutes, COALESCE(password_hash, ''),
		        answer_key, leaderboard_public, allow_resume, late_policy, grading, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes, &e.PasswordHash,
		&key, &e.LeaderboardPublic, &e.AllowResume, &e.LatePolicy, &e.Grading, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "exam not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if err := json.Unmarshal(key, &e.AnswerKey); err != nil {
		return nil, fmt.Errorf("unmarshal answer key: %w", err)
	}
	return e, nil
}

// Create inserts a catalog record. Used by the seed tool only.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	key, err := json.Marshal(e.AnswerKey)
	if err != nil {
		return fmt.Errorf("marshal answer key: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, subject, duration_minutes, password_hash, answer_key,
		                    leaderboard_public, allow_resume, late_policy, grading)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		e.Title, e.Subject, e.DurationMinutes, e.PasswordHash, key,
		e.LeaderboardPublic, e.AllowResume, e.LatePolicy, e.Grading,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	return nil
}
