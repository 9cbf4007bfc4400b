package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memStore is an in-memory SubmissionStore mirroring the repository's
// guard semantics: mutation guards are evaluated under one lock so the
// fakes stay truthful about atomicity.
type memStore struct {
	mu          sync.Mutex
	submissions map[uuid.UUID]*model.Submission
	subjects    map[uuid.UUID]string
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[uuid.UUID]*model.Submission),
		subjects:    make(map[uuid.UUID]string),
	}
}

func (m *memStore) Create(_ context.Context, s *model.Submission, durationMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.submissions {
		if existing.ExamID == s.ExamID && existing.UserID == s.UserID &&
			existing.Status == model.StatusInProgress {
			return apperr.New(apperr.KindConflict, "an attempt for this exam is already in progress")
		}
	}
	now := time.Now()
	s.ID = uuid.New()
	s.Status = model.StatusInProgress
	s.StartedAt = now
	s.Deadline = now.Add(time.Duration(durationMinutes) * time.Minute)
	s.Proctoring.Violations = []string{}
	s.Proctoring.Warnings = []string{}
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *memStore) GetActive(_ context.Context, examID, userID uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.ExamID == examID && s.UserID == userID && s.Status == model.StatusInProgress {
			return copySubmission(s), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "no active attempt for this exam")
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "submission not found")
	}
	return copySubmission(s), nil
}

func (m *memStore) UpsertAnswers(_ context.Context, submissionID, userID uuid.UUID, answers []model.AnswerInput) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok || s.UserID != userID || s.Status != model.StatusInProgress ||
		time.Now().After(s.Deadline) {
		return false, nil
	}
	now := time.Now()
	for _, in := range answers {
		updated := false
		for i := range s.Answers {
			if s.Answers[i].QuestionID == in.QuestionID {
				s.Answers[i].Response = in.Response
				s.Answers[i].UpdatedAt = now
				updated = true
				break
			}
		}
		if !updated {
			s.Answers = append(s.Answers, model.Answer{
				QuestionID: in.QuestionID,
				Response:   in.Response,
				UpdatedAt:  now,
			})
		}
	}
	return true, nil
}

func (m *memStore) Submit(_ context.Context, submissionID, userID uuid.UUID, lateMarker string, rejectLate bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok || s.UserID != userID || s.Status != model.StatusInProgress {
		return false, nil
	}
	now := time.Now()
	late := now.After(s.Deadline)
	if rejectLate && late {
		return false, nil
	}
	s.Status = model.StatusSubmitted
	at := now
	if late {
		at = s.Deadline
		s.Proctoring.Warnings = append(s.Proctoring.Warnings, lateMarker)
	}
	s.SubmittedAt = &at
	return true, nil
}

func (m *memStore) FinalizeScore(_ context.Context, submissionID uuid.UUID, score float64, graded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok || s.Status == model.StatusInProgress {
		return apperr.New(apperr.KindConflict, "submission is not in a scorable state")
	}
	s.Score = &score
	if graded && s.Status == model.StatusSubmitted {
		s.Status = model.StatusGraded
	}
	return nil
}

func (m *memStore) AppendMarker(_ context.Context, submissionID uuid.UUID, list model.MarkerList, marker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "submission not found")
	}
	switch list {
	case model.MarkerViolations:
		s.Proctoring.Violations = append(s.Proctoring.Violations, marker)
	case model.MarkerWarnings:
		s.Proctoring.Warnings = append(s.Proctoring.Warnings, marker)
	}
	return nil
}

func (m *memStore) SetFaceImage(_ context.Context, submissionID, userID uuid.UUID, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.Proctoring.ReferenceFaceImage = &url
	return true, nil
}

func (m *memStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, s := range m.submissions {
		if s.ExamID == examID {
			out = append(out, *copySubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, filter model.SubmissionFilter) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, s := range m.submissions {
		if s.UserID != userID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Subject != "" && m.subjects[s.ExamID] != filter.Subject {
			continue
		}
		if filter.StartedFrom != nil && s.StartedAt.Before(*filter.StartedFrom) {
			continue
		}
		if filter.StartedTo != nil && s.StartedAt.After(*filter.StartedTo) {
			continue
		}
		out = append(out, *copySubmission(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) Leaderboard(_ context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []model.LeaderboardEntry
	for _, s := range m.submissions {
		if s.ExamID != examID || s.Status == model.StatusInProgress {
			continue
		}
		rows = append(rows, model.LeaderboardEntry{
			SubmissionID: s.ID,
			UserID:       s.UserID,
			Score:        s.Score,
			SubmittedAt:  s.SubmittedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Score == nil && b.Score == nil:
		case a.Score == nil:
			return false
		case b.Score == nil:
			return true
		case *a.Score != *b.Score:
			return *a.Score > *b.Score
		}
		if a.SubmittedAt != nil && b.SubmittedAt != nil && !a.SubmittedAt.Equal(*b.SubmittedAt) {
			return a.SubmittedAt.Before(*b.SubmittedAt)
		}
		return a.SubmissionID.String() < b.SubmissionID.String()
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func (m *memStore) ListCompletedIDsByExam(_ context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range m.submissions {
		if s.ExamID == examID && s.Status != model.StatusInProgress {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// forceDeadline rewinds an attempt's deadline for past-deadline scenarios.
func (m *memStore) forceDeadline(id uuid.UUID, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[id]; ok {
		s.Deadline = deadline
	}
}

func copySubmission(s *model.Submission) *model.Submission {
	cp := *s
	cp.Answers = append([]model.Answer(nil), s.Answers...)
	cp.Proctoring.Violations = append([]string(nil), s.Proctoring.Violations...)
	cp.Proctoring.Warnings = append([]string(nil), s.Proctoring.Warnings...)
	return &cp
}

// fakeCatalog serves exams from a map, no cache involved.
type fakeCatalog struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeCatalog) Get(_ context.Context, examID uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[examID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "exam not found")
	}
	cp := *e
	return &cp, nil
}

// fakeEvidence records uploads and can be told to fail.
type fakeEvidence struct {
	mu      sync.Mutex
	fail    error
	uploads int
}

func (f *fakeEvidence) Upload(_ context.Context, data []byte, folder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.uploads++
	return "/uploads/" + folder + "/" + uuid.NewString() + ".jpg", nil
}

// fakeQueue records enqueued rescore batches.
type fakeQueue struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail error
}

func (f *fakeQueue) Enqueue(_ context.Context, submissionIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.ids = append(f.ids, submissionIDs...)
	return nil
}

// memLogs is an in-memory ProctorLogStore.
type memLogs struct {
	mu      sync.Mutex
	entries []model.ProctorLogEntry
	fail    error
}

func (m *memLogs) Insert(_ context.Context, e *model.ProctorLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memLogs) ListBySubmission(_ context.Context, submissionID uuid.UUID, limit int) ([]model.ProctorLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProctorLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].SubmissionID == submissionID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memLogs) ListByExam(_ context.Context, _ uuid.UUID, limit int) ([]model.ExamLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, model.ExamLogEntry{ProctorLogEntry: m.entries[i]})
	}
	return out, nil
}

// fakePublisher records published monitor events.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishEvent(_ context.Context, _ uuid.UUID, entry *model.ProctorLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, entry.Event)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

var errStoreDown = errors.New("store down")
