package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubmissionRepository handles attempt data access. Every mutation to a
// shared attempt is a single conditional statement keyed by id, so
// concurrent requests across processes cannot clobber each other.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `id, exam_id, user_id, org_id, status, started_at, deadline,
	submitted_at, score, violations, warnings, reference_face_image`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(
		&s.ID, &s.ExamID, &s.UserID, &s.OrgID, &s.Status, &s.StartedAt, &s.Deadline,
		&s.SubmittedAt, &s.Score, &s.Proctoring.Violations, &s.Proctoring.Warnings,
		&s.Proctoring.ReferenceFaceImage,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new in_progress attempt. The partial unique index on
// (exam_id, user_id) WHERE status = 'in_progress' makes duplicate starts
// lose atomically; the loser gets a Conflict.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission, durationMinutes int) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, user_id, org_id, status, deadline)
		 VALUES ($1, $2, $3, $4, now() + make_interval(mins => $5))
		 ON CONFLICT (exam_id, user_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id, started_at, deadline`,
		s.ExamID, s.UserID, s.OrgID, model.StatusInProgress, durationMinutes,
	).Scan(&s.ID, &s.StartedAt, &s.Deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.KindConflict, "an attempt for this exam is already in progress")
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	s.Status = model.StatusInProgress
	s.Proctoring.Violations = []string{}
	s.Proctoring.Warnings = []string{}
	return nil
}

// GetActive retrieves the in_progress attempt for (exam, user), if any.
func (r *SubmissionRepository) GetActive(ctx context.Context, examID, userID uuid.UUID) (*model.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = $1 AND user_id = $2 AND status = $3`,
		examID, userID, model.StatusInProgress,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "no active attempt for this exam")
	}
	if err != nil {
		return nil, fmt.Errorf("get active submission: %w", err)
	}
	if err := r.loadAnswers(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves one attempt including its answers.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "submission not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if err := r.loadAnswers(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubmissionRepository) loadAnswers(ctx context.Context, s *model.Submission) error {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, response, updated_at
		 FROM submission_answers
		 WHERE submission_id = $1
		 ORDER BY position ASC`, s.ID,
	)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	s.Answers = []model.Answer{}
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.Response, &a.UpdatedAt); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		s.Answers = append(s.Answers, a)
	}
	return rows.Err()
}

// UpsertAnswers merges answers by question id. Each UPSERT carries the
// ownership, state and deadline guards in its WHERE clause, so a stale or
// foreign autosave affects zero rows instead of racing a prior read. The
// whole batch runs in one transaction: either every answer lands or none.
// Returns false when the guards rejected the write (caller classifies why).
func (r *SubmissionRepository) UpsertAnswers(ctx context.Context, submissionID, userID uuid.UUID, answers []model.AnswerInput) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO submission_answers (submission_id, question_id, response)
			 SELECT s.id, $2, $3 FROM submissions s
			 WHERE s.id = $1 AND s.user_id = $4
			   AND s.status = $5 AND now() <= s.deadline
			 ON CONFLICT (submission_id, question_id) DO UPDATE
			 SET response = EXCLUDED.response, updated_at = now()`,
			submissionID, a.QuestionID, a.Response, userID, model.StatusInProgress,
		)
	}

	results := tx.SendBatch(ctx, batch)
	applied := true
	for range answers {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return false, fmt.Errorf("upsert answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			applied = false
		}
	}
	if err := results.Close(); err != nil {
		return false, fmt.Errorf("close batch: %w", err)
	}

	if !applied {
		// Guards rejected at least one write; drop the whole batch.
		return false, nil
	}
	return true, tx.Commit(ctx)
}

// Submit claims the in_progress → submitted transition. The status guard in
// the WHERE clause is the idempotency check: a second submit affects zero
// rows. submitted_at is clamped to the deadline; under the clamp policy a
// late submit also gains the given warning marker. With rejectLate the
// transition additionally requires now() <= deadline.
func (r *SubmissionRepository) Submit(ctx context.Context, submissionID, userID uuid.UUID, lateMarker string, rejectLate bool) (bool, error) {
	query := `UPDATE submissions
		 SET status = $3,
		     submitted_at = LEAST(now(), deadline),
		     warnings = CASE WHEN now() > deadline THEN array_append(warnings, $4)
		                     ELSE warnings END
		 WHERE id = $1 AND user_id = $2 AND status = $5`
	if rejectLate {
		query += ` AND now() <= deadline`
	}
	tag, err := r.pool.Exec(ctx, query,
		submissionID, userID, model.StatusSubmitted, lateMarker, model.StatusInProgress)
	if err != nil {
		return false, fmt.Errorf("submit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeScore persists the computed score and, for auto-graded exams,
// completes the submitted → graded transition. Guarded so it never touches
// an in_progress attempt.
func (r *SubmissionRepository) FinalizeScore(ctx context.Context, submissionID uuid.UUID, score float64, graded bool) error {
	status := model.StatusSubmitted
	if graded {
		status = model.StatusGraded
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET score = $2,
		     status = CASE WHEN status = $3 THEN $4 ELSE status END
		 WHERE id = $1 AND status <> $5`,
		submissionID, score, model.StatusSubmitted, status, model.StatusInProgress)
	if err != nil {
		return fmt.Errorf("finalize score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindConflict, "submission is not in a scorable state")
	}
	return nil
}

// AppendMarker atomically appends one "event:timestamp" marker to the
// selected counter list. array_append runs inside the row update, so
// concurrent appends for the same attempt all land.
func (r *SubmissionRepository) AppendMarker(ctx context.Context, submissionID uuid.UUID, list model.MarkerList, marker string) error {
	var query string
	switch list {
	case model.MarkerViolations:
		query = `UPDATE submissions SET violations = array_append(violations, $2) WHERE id = $1`
	case model.MarkerWarnings:
		query = `UPDATE submissions SET warnings = array_append(warnings, $2) WHERE id = $1`
	default:
		return fmt.Errorf("unknown marker list %q", list)
	}
	tag, err := r.pool.Exec(ctx, query, submissionID, marker)
	if err != nil {
		return fmt.Errorf("append marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "submission not found")
	}
	return nil
}

// SetFaceImage stores the reference face image URL, overwriting any
// previous one. Ownership rides in the WHERE clause; false means the row
// was absent or foreign.
func (r *SubmissionRepository) SetFaceImage(ctx context.Context, submissionID, userID uuid.UUID, url string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET reference_face_image = $3 WHERE id = $1 AND user_id = $2`,
		submissionID, userID, url)
	if err != nil {
		return false, fmt.Errorf("set face image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByExam retrieves all attempts for an exam, newest first, without
// answer bodies (report listing).
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = $1
		 ORDER BY started_at DESC`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list by exam: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

// ListByUser retrieves a user's attempts, newest first, applying the
// conjunctive filter. Subject filtering joins the exam catalog.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter model.SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT s.id, s.exam_id, s.user_id, s.org_id, s.status, s.started_at, s.deadline,
		s.submitted_at, s.score, s.violations, s.warnings, s.reference_face_image
		FROM submissions s
		JOIN exams e ON e.id = s.exam_id
		WHERE s.user_id = $1`
	args := []any{userID}

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += fmt.Sprintf(" AND e.subject = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND s.status = $%d", len(args))
	}
	if filter.StartedFrom != nil {
		args = append(args, *filter.StartedFrom)
		query += fmt.Sprintf(" AND s.started_at >= $%d", len(args))
	}
	if filter.StartedTo != nil {
		args = append(args, *filter.StartedTo)
		query += fmt.Sprintf(" AND s.started_at <= $%d", len(args))
	}
	query += " ORDER BY s.started_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by user: %w", err)
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

// Leaderboard returns completed attempts ordered by score descending,
// ties broken by earlier submission. Unscored attempts sort last. The
// ordering is total (submission id as final key), so ranks are stable.
func (r *SubmissionRepository) Leaderboard(ctx context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, score, submitted_at
		 FROM submissions
		 WHERE exam_id = $1 AND status IN ($2, $3)
		 ORDER BY score DESC NULLS LAST, submitted_at ASC, id ASC`,
		examID, model.StatusSubmitted, model.StatusGraded,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.SubmissionID, &e.UserID, &e.Score, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListCompletedIDsByExam returns ids of submitted/graded attempts,
// the input set for a rescore pass.
func (r *SubmissionRepository) ListCompletedIDsByExam(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM submissions WHERE exam_id = $1 AND status IN ($2, $3)`,
		examID, model.StatusSubmitted, model.StatusGraded,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectSubmissions(rows pgx.Rows) ([]model.Submission, error) {
	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}
