package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// SubmissionStore is the attempt persistence the lifecycle engine drives.
// Mutating methods are atomic conditional updates keyed by attempt id:
// a rejected guard reports zero effect instead of racing a prior read.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission, durationMinutes int) error
	GetActive(ctx context.Context, examID, userID uuid.UUID) (*model.Submission, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	UpsertAnswers(ctx context.Context, submissionID, userID uuid.UUID, answers []model.AnswerInput) (bool, error)
	Submit(ctx context.Context, submissionID, userID uuid.UUID, lateMarker string, rejectLate bool) (bool, error)
	FinalizeScore(ctx context.Context, submissionID uuid.UUID, score float64, graded bool) error
	AppendMarker(ctx context.Context, submissionID uuid.UUID, list model.MarkerList, marker string) error
	SetFaceImage(ctx context.Context, submissionID, userID uuid.UUID, url string) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter model.SubmissionFilter) ([]model.Submission, error)
	Leaderboard(ctx context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error)
	ListCompletedIDsByExam(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
}

// RescoreEnqueuer feeds attempt ids to the asynchronous rescore pass.
type RescoreEnqueuer interface {
	Enqueue(ctx context.Context, submissionIDs []uuid.UUID) error
}

// SubmissionService is the state machine governing start → answer →
// submit → score, plus the read projections derived from attempts.
type SubmissionService struct {
	store           SubmissionStore
	catalog         ExamCatalog
	evidence        storage.EvidenceStore
	rescoreQueue    RescoreEnqueuer
	evidenceTimeout time.Duration
	log             zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	store SubmissionStore,
	catalog ExamCatalog,
	evidence storage.EvidenceStore,
	rescoreQueue RescoreEnqueuer,
	evidenceTimeout time.Duration,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:           store,
		catalog:         catalog,
		evidence:        evidence,
		rescoreQueue:    rescoreQueue,
		evidenceTimeout: evidenceTimeout,
		log:             log.With().Str("component", "submission_service").Logger(),
	}
}

// Start creates an in_progress attempt for the caller. When the exam
// defines a password the supplied one must match. At most one active
// attempt exists per (user, exam): a duplicate start either resumes the
// active attempt (exam.AllowResume) or fails with Conflict.
func (s *SubmissionService) Start(ctx context.Context, p model.Principal, req model.StartSubmissionRequest) (*model.Submission, error) {
	exam, err := s.catalog.Get(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	if exam.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(exam.PasswordHash), []byte(req.Password)) != nil {
			return nil, apperr.New(apperr.KindUnauthorized, "invalid exam password")
		}
	}

	sub := &model.Submission{
		ExamID: req.ExamID,
		UserID: p.ID,
		OrgID:  p.OrgID,
	}
	err = s.store.Create(ctx, sub, exam.DurationMinutes)
	if err == nil {
		return sub, nil
	}
	if !apperr.Is(err, apperr.KindConflict) {
		return nil, err
	}

	// A concurrent or earlier start holds the active attempt.
	if !exam.AllowResume {
		return nil, err
	}
	active, aerr := s.store.GetActive(ctx, req.ExamID, p.ID)
	if aerr != nil {
		// The active attempt finished between the insert and this read.
		return nil, fmt.Errorf("resume active attempt: %w", aerr)
	}
	return active, nil
}

// UpdateAnswers merges the supplied answers into the attempt by question
// id. Safe under concurrent autosaves: the store applies each answer as an
// atomic upsert guarded by owner, state and deadline, last writer wins per
// question. Past-deadline autosaves are rejected with Gone, consistently.
func (s *SubmissionService) UpdateAnswers(ctx context.Context, p model.Principal, submissionID uuid.UUID, req model.UpdateAnswersRequest) (*model.Submission, error) {
	if len(req.Answers) > 0 {
		applied, err := s.store.UpsertAnswers(ctx, submissionID, p.ID, req.Answers)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, s.classifyWriteRejection(ctx, p, submissionID)
		}
	}
	return s.store.GetByID(ctx, submissionID)
}

// classifyWriteRejection explains why a guarded answer write affected zero
// rows. The guard itself already enforced correctness atomically; this
// read only picks the error kind reported to the caller.
func (s *SubmissionService) classifyWriteRejection(ctx context.Context, p model.Principal, submissionID uuid.UUID) error {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return err // NotFound or a real failure
	}
	if sub.UserID != p.ID {
		return apperr.New(apperr.KindForbidden, "you are not allowed to access this submission")
	}
	if sub.Status != model.StatusInProgress {
		return apperr.New(apperr.KindConflict, "submission is no longer in progress")
	}
	if time.Now().After(sub.Deadline) {
		return apperr.New(apperr.KindGone, "submission deadline has passed")
	}
	return apperr.New(apperr.KindConflict, "submission could not be updated")
}

// Submit transitions the attempt to submitted and scores it synchronously.
// The transition is claimed by a conditional update, so a repeat call
// affects zero rows and fails with Conflict without re-scoring. Late
// submits follow the exam's policy: clamp (accept, clamp submitted_at to
// the deadline, flag a warning) or reject (Gone).
func (s *SubmissionService) Submit(ctx context.Context, p model.Principal, submissionID uuid.UUID) (*model.Submission, error) {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, sub); err != nil {
		return nil, err
	}

	exam, err := s.catalog.Get(ctx, sub.ExamID)
	if err != nil {
		return nil, err
	}

	lateMarker := model.Marker("late_submission", time.Now())
	claimed, err := s.store.Submit(ctx, submissionID, p.ID,
		lateMarker, exam.LatePolicy == model.LatePolicyReject)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if sub.Status != model.StatusInProgress {
			return nil, apperr.New(apperr.KindConflict, "submission was already submitted")
		}
		if exam.LatePolicy == model.LatePolicyReject && time.Now().After(sub.Deadline) {
			return nil, apperr.New(apperr.KindGone, "submission deadline has passed")
		}
		// Lost a race with a concurrent submit of the same attempt.
		return nil, apperr.New(apperr.KindConflict, "submission was already submitted")
	}

	// Reload for the authoritative answer set, then persist the score
	// before the attempt can reach graded.
	sub, err = s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	score := ScoreAnswers(sub.Answers, exam.AnswerKey)
	if err := s.store.FinalizeScore(ctx, submissionID, score, exam.Grading == model.GradingAuto); err != nil {
		return nil, err
	}

	return s.store.GetByID(ctx, submissionID)
}

// GetByID returns one attempt: owners always, staff within their org.
func (s *SubmissionService) GetByID(ctx context.Context, p model.Principal, submissionID uuid.UUID) (*model.Submission, error) {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := canReadSubmission(p, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListForExam returns every attempt of an exam for staff reporting,
// limited to the caller's organization.
func (s *SubmissionService) ListForExam(ctx context.Context, p model.Principal, examID uuid.UUID) ([]model.Submission, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if _, err := s.catalog.Get(ctx, examID); err != nil {
		return nil, err
	}
	subs, err := s.store.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	scoped := subs[:0]
	for _, sub := range subs {
		if p.SameOrg(sub.OrgID) {
			scoped = append(scoped, sub)
		}
	}
	return scoped, nil
}

// ListMine returns the caller's own attempts; filters are conjunctive and
// absent filters impose no constraint.
func (s *SubmissionService) ListMine(ctx context.Context, p model.Principal, filter model.SubmissionFilter) ([]model.Submission, error) {
	return s.store.ListByUser(ctx, p.ID, filter)
}

// Leaderboard returns the ranked completed attempts of an exam. In-progress
// attempts never appear. Private leaderboards are staff-only.
func (s *SubmissionService) Leaderboard(ctx context.Context, p model.Principal, examID uuid.UUID) ([]model.LeaderboardEntry, error) {
	exam, err := s.catalog.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.LeaderboardPublic {
		if err := requireStaff(p); err != nil {
			return nil, err
		}
	}
	return s.store.Leaderboard(ctx, examID)
}

// UpdateFaceImage uploads the reference face image and stores its URL,
// overwriting any previous one. Unlike proctor-event evidence there is no
// silent-degrade path: an upload failure surfaces as Unavailable.
func (s *SubmissionService) UpdateFaceImage(ctx context.Context, p model.Principal, submissionID uuid.UUID, image []byte) (string, error) {
	if len(image) == 0 {
		return "", apperr.New(apperr.KindInvalidInput, "no image file uploaded")
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.evidenceTimeout)
	defer cancel()

	url, err := s.evidence.Upload(uploadCtx, image, "proctoring/faces")
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedFormat) || errors.Is(err, storage.ErrTooLarge) {
			return "", apperr.Wrap(apperr.KindInvalidInput, "unsupported image upload", err)
		}
		return "", apperr.Wrap(apperr.KindUnavailable, "face image upload failed", err)
	}

	ok, err := s.store.SetFaceImage(ctx, submissionID, p.ID, url)
	if err != nil {
		return "", err
	}
	if !ok {
		sub, gerr := s.store.GetByID(ctx, submissionID)
		if gerr != nil {
			return "", gerr
		}
		if oerr := requireOwner(p, sub); oerr != nil {
			return "", oerr
		}
		return "", apperr.New(apperr.KindConflict, "face image could not be updated")
	}
	return url, nil
}

// Rescore enqueues every completed attempt of an exam for the asynchronous
// grading pass and returns how many were queued. Staff only; serves answer
// key corrections.
func (s *SubmissionService) Rescore(ctx context.Context, p model.Principal, examID uuid.UUID) (int, error) {
	if err := requireStaff(p); err != nil {
		return 0, err
	}
	if _, err := s.catalog.Get(ctx, examID); err != nil {
		return 0, err
	}

	ids, err := s.store.ListCompletedIDsByExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.rescoreQueue.Enqueue(ctx, ids); err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, "rescore queue unavailable", err)
	}
	return len(ids), nil
}

// RescoreSubmission recomputes one attempt's score against the current
// answer key. Called by the rescore worker; in_progress attempts are
// skipped.
func (s *SubmissionService) RescoreSubmission(ctx context.Context, submissionID uuid.UUID) error {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status == model.StatusInProgress {
		return nil
	}
	exam, err := s.catalog.Get(ctx, sub.ExamID)
	if err != nil {
		return err
	}
	score := ScoreAnswers(sub.Answers, exam.AnswerKey)
	return s.store.FinalizeScore(ctx, submissionID, score, exam.Grading == model.GradingAuto)
}
