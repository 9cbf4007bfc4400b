package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProctorLogRepository handles the append-only integrity log. Entries are
// inserted once and never updated or deleted.
type ProctorLogRepository struct {
	pool *pgxpool.Pool
}

// NewProctorLogRepository creates a new ProctorLogRepository.
func NewProctorLogRepository(pool *pgxpool.Pool) *ProctorLogRepository {
	return &ProctorLogRepository{pool: pool}
}

// Insert appends one log entry and fills in its id and timestamp.
func (r *ProctorLogRepository) Insert(ctx context.Context, e *model.ProctorLogEntry) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO proctor_logs (submission_id, user_id, org_id, event, severity, meta, evidence_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.SubmissionID, e.UserID, e.OrgID, e.Event, e.Severity, meta, e.EvidenceURL,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert proctor log: %w", err)
	}
	return nil
}

// ListBySubmission returns entries for one attempt, newest first, capped.
func (r *ProctorLogRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID, limit int) ([]model.ProctorLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, submission_id, user_id, org_id, event, severity, meta, evidence_url, created_at
		 FROM proctor_logs
		 WHERE submission_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, submissionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs by submission: %w", err)
	}
	defer rows.Close()

	entries := []model.ProctorLogEntry{}
	for rows.Next() {
		var e model.ProctorLogEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.UserID, &e.OrgID,
			&e.Event, &e.Severity, &meta, &e.EvidenceURL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListByExam returns entries across every attempt of an exam, newest first,
// enriched with the owning attempt's status (read-side join).
func (r *ProctorLogRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ExamLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.submission_id, l.user_id, l.org_id, l.event, l.severity,
		        l.meta, l.evidence_url, l.created_at, s.status
		 FROM proctor_logs l
		 JOIN submissions s ON s.id = l.submission_id
		 WHERE s.exam_id = $1
		 ORDER BY l.created_at DESC
		 LIMIT $2`, examID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs by exam: %w", err)
	}
	defer rows.Close()

	entries := []model.ExamLogEntry{}
	for rows.Next() {
		var e model.ExamLogEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.UserID, &e.OrgID,
			&e.Event, &e.Severity, &meta, &e.EvidenceURL, &e.CreatedAt,
			&e.SubmissionStatus); err != nil {
			return nil, fmt.Errorf("scan exam log entry: %w", err)
		}
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
