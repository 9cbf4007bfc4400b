package service

import (
	"context"
	"testing"
	"time"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func newTestExam(mutate func(*model.Exam)) *model.Exam {
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Algebra Midterm",
		Subject:         "math",
		DurationMinutes: 60,
		AnswerKey: model.AnswerKey{
			"q1": {Correct: "A", Weight: 1},
			"q2": {Correct: "B", Weight: 1},
		},
		AllowResume: true,
		LatePolicy:  model.LatePolicyClamp,
		Grading:     model.GradingAuto,
	}
	if mutate != nil {
		mutate(exam)
	}
	return exam
}

func newTestSubmissionService(exams ...*model.Exam) (*SubmissionService, *memStore, *fakeEvidence, *fakeQueue) {
	catalog := &fakeCatalog{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		catalog.exams[e.ID] = e
	}
	store := newMemStore()
	for _, e := range exams {
		store.subjects[e.ID] = e.Subject
	}
	evidence := &fakeEvidence{}
	queue := &fakeQueue{}
	svc := NewSubmissionService(store, catalog, evidence, queue, time.Second, testLogger())
	return svc, store, evidence, queue
}

func student() model.Principal {
	return model.Principal{ID: uuid.New(), Role: model.RoleStudent}
}

func mustStart(t *testing.T, svc *SubmissionService, p model.Principal, examID uuid.UUID) *model.Submission {
	t.Helper()
	sub, err := svc.Start(context.Background(), p, model.StartSubmissionRequest{ExamID: examID})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return sub
}

func TestStartCreatesInProgressAttempt(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()

	sub := mustStart(t, svc, p, exam.ID)

	if sub.Status != model.StatusInProgress {
		t.Errorf("status = %s, want in_progress", sub.Status)
	}
	want := sub.StartedAt.Add(time.Hour)
	if !sub.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want started_at + 60m", sub.Deadline)
	}
	if sub.Score != nil || sub.SubmittedAt != nil {
		t.Error("fresh attempt must have no score or submit time")
	}
}

func TestStartUnknownExam(t *testing.T) {
	svc, _, _, _ := newTestSubmissionService()

	_, err := svc.Start(context.Background(), student(), model.StartSubmissionRequest{ExamID: uuid.New()})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestStartPasswordProtected(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	exam := newTestExam(func(e *model.Exam) { e.PasswordHash = string(hash) })
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()

	_, err := svc.Start(context.Background(), p, model.StartSubmissionRequest{ExamID: exam.ID, Password: "wrong"})
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("wrong password err = %v, want Unauthorized", err)
	}

	if _, err := svc.Start(context.Background(), p, model.StartSubmissionRequest{ExamID: exam.ID, Password: "s3cret"}); err != nil {
		t.Fatalf("correct password: %v", err)
	}
}

func TestStartDuplicateResumes(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()

	first := mustStart(t, svc, p, exam.ID)
	second := mustStart(t, svc, p, exam.ID)

	if second.ID != first.ID {
		t.Errorf("resume returned %s, want active attempt %s", second.ID, first.ID)
	}
}

func TestStartDuplicateConflictsWithoutResume(t *testing.T) {
	exam := newTestExam(func(e *model.Exam) { e.AllowResume = false })
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()

	mustStart(t, svc, p, exam.ID)
	_, err := svc.Start(context.Background(), p, model.StartSubmissionRequest{ExamID: exam.ID})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("err = %v, want Conflict", err)
	}
}

func TestUpdateAnswersUpsertsByQuestion(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)

	ctx := context.Background()
	if _, err := svc.UpdateAnswers(ctx, p, sub.ID, model.UpdateAnswersRequest{
		Answers: []model.AnswerInput{{QuestionID: "q1", Response: "draft"}},
	}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	got, err := svc.UpdateAnswers(ctx, p, sub.ID, model.UpdateAnswersRequest{
		Answers: []model.AnswerInput{
			{QuestionID: "q1", Response: "A"},
			{QuestionID: "q2", Response: "B"},
		},
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if len(got.Answers) != 2 {
		t.Fatalf("answers = %d, want 2 (one per question)", len(got.Answers))
	}
	for _, a := range got.Answers {
		if a.QuestionID == "q1" && a.Response != "A" {
			t.Errorf("q1 = %q, want latest response", a.Response)
		}
	}
}

func TestUpdateAnswersRejections(t *testing.T) {
	exam := newTestExam(nil)
	svc, store, _, _ := newTestSubmissionService(exam)
	owner := student()
	sub := mustStart(t, svc, owner, exam.ID)
	ctx := context.Background()
	save := model.UpdateAnswersRequest{Answers: []model.AnswerInput{{QuestionID: "q1", Response: "A"}}}

	if _, err := svc.UpdateAnswers(ctx, owner, uuid.New(), save); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown id err = %v, want NotFound", err)
	}
	if _, err := svc.UpdateAnswers(ctx, student(), sub.ID, save); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign save err = %v, want Forbidden", err)
	}

	store.forceDeadline(sub.ID, time.Now().Add(-time.Minute))
	if _, err := svc.UpdateAnswers(ctx, owner, sub.ID, save); !apperr.Is(err, apperr.KindGone) {
		t.Errorf("late save err = %v, want Gone", err)
	}
	// The same late save must keep failing the same way.
	if _, err := svc.UpdateAnswers(ctx, owner, sub.ID, save); !apperr.Is(err, apperr.KindGone) {
		t.Errorf("repeated late save err = %v, want Gone", err)
	}

	store.forceDeadline(sub.ID, time.Now().Add(time.Hour))
	if _, err := svc.Submit(ctx, owner, sub.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.UpdateAnswers(ctx, owner, sub.ID, save); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("post-submit save err = %v, want Conflict", err)
	}
}

func TestSubmitScoresAndGrades(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)
	ctx := context.Background()

	if _, err := svc.UpdateAnswers(ctx, p, sub.ID, model.UpdateAnswersRequest{
		Answers: []model.AnswerInput{
			{QuestionID: "q1", Response: "A"},
			{QuestionID: "q2", Response: "nope"},
		},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := svc.Submit(ctx, p, sub.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.StatusGraded {
		t.Errorf("status = %s, want graded under auto grading", got.Status)
	}
	if got.Score == nil || *got.Score != 50 {
		t.Errorf("score = %v, want 50", got.Score)
	}
	if got.SubmittedAt == nil {
		t.Error("submitted_at not set")
	}
}

func TestSubmitManualGradingStaysSubmitted(t *testing.T) {
	exam := newTestExam(func(e *model.Exam) { e.Grading = model.GradingManual })
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)

	got, err := svc.Submit(context.Background(), p, sub.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.StatusSubmitted {
		t.Errorf("status = %s, want submitted pending review", got.Status)
	}
	if got.Score == nil {
		t.Error("provisional score not recorded")
	}
}

func TestSubmitTwiceConflicts(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)
	ctx := context.Background()

	first, err := svc.Submit(ctx, p, sub.ID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = svc.Submit(ctx, p, sub.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second submit err = %v, want Conflict", err)
	}

	after, err := svc.GetByID(ctx, p, sub.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *after.Score != *first.Score || !after.SubmittedAt.Equal(*first.SubmittedAt) {
		t.Error("failed resubmit must not change score or submit time")
	}
}

func TestSubmitLateClampPolicy(t *testing.T) {
	exam := newTestExam(nil)
	svc, store, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)

	deadline := time.Now().Add(-time.Minute)
	store.forceDeadline(sub.ID, deadline)

	got, err := svc.Submit(context.Background(), p, sub.ID)
	if err != nil {
		t.Fatalf("late submit under clamp: %v", err)
	}
	if !got.SubmittedAt.Equal(deadline) {
		t.Errorf("submitted_at = %v, want clamped to deadline %v", got.SubmittedAt, deadline)
	}
	found := false
	for _, w := range got.Proctoring.Warnings {
		if len(w) > len("late_submission") && w[:len("late_submission")] == "late_submission" {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a late_submission marker", got.Proctoring.Warnings)
	}
}

func TestSubmitLateRejectPolicy(t *testing.T) {
	exam := newTestExam(func(e *model.Exam) { e.LatePolicy = model.LatePolicyReject })
	svc, store, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)

	store.forceDeadline(sub.ID, time.Now().Add(-time.Minute))

	_, err := svc.Submit(context.Background(), p, sub.ID)
	if !apperr.Is(err, apperr.KindGone) {
		t.Errorf("err = %v, want Gone", err)
	}
}

func TestGetByIDAccessControl(t *testing.T) {
	org := uuid.New()
	otherOrg := uuid.New()
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)

	owner := model.Principal{ID: uuid.New(), Role: model.RoleStudent, OrgID: &org}
	sub := mustStart(t, svc, owner, exam.ID)
	ctx := context.Background()

	if _, err := svc.GetByID(ctx, owner, sub.ID); err != nil {
		t.Errorf("owner read: %v", err)
	}

	staff := model.Principal{ID: uuid.New(), Role: model.RoleTeacher, OrgID: &org}
	if _, err := svc.GetByID(ctx, staff, sub.ID); err != nil {
		t.Errorf("same-org staff read: %v", err)
	}

	foreignStaff := model.Principal{ID: uuid.New(), Role: model.RoleTeacher, OrgID: &otherOrg}
	if _, err := svc.GetByID(ctx, foreignStaff, sub.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("cross-org staff err = %v, want Forbidden", err)
	}

	if _, err := svc.GetByID(ctx, student(), sub.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign student err = %v, want Forbidden", err)
	}
}

func TestListForExamRequiresStaff(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, _ := newTestSubmissionService(exam)

	_, err := svc.ListForExam(context.Background(), student(), exam.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("err = %v, want Forbidden", err)
	}
}

func TestListMineSubjectAndStatusFilter(t *testing.T) {
	math := newTestExam(nil)
	history := newTestExam(func(e *model.Exam) {
		e.Title = "History Final"
		e.Subject = "history"
	})
	svc, _, _, _ := newTestSubmissionService(math, history)
	ctx := context.Background()
	p := student()

	mathSub := mustStart(t, svc, p, math.ID)
	mustStart(t, svc, p, history.ID)
	if _, err := svc.Submit(ctx, p, mathSub.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	subs, err := svc.ListMine(ctx, p, model.SubmissionFilter{Subject: "math"})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(subs) != 1 || subs[0].ExamID != math.ID {
		t.Fatalf("subject filter returned %d attempts, want the math one", len(subs))
	}

	subs, err = svc.ListMine(ctx, p, model.SubmissionFilter{
		Subject: "math",
		Status:  model.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("conjunctive filter returned %d attempts, want 0", len(subs))
	}

	subs, err = svc.ListMine(ctx, p, model.SubmissionFilter{
		Subject: "history",
		Status:  model.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(subs) != 1 || subs[0].ExamID != history.ID {
		t.Fatalf("conjunctive filter returned %d attempts, want the history one", len(subs))
	}
}

func TestLeaderboardOrderingAndTies(t *testing.T) {
	exam := newTestExam(func(e *model.Exam) { e.LeaderboardPublic = true })
	svc, store, _, _ := newTestSubmissionService(exam)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	scores := []float64{90, 90, 70}
	var userIDs []uuid.UUID
	for i, score := range scores {
		p := student()
		userIDs = append(userIDs, p.ID)
		sub := mustStart(t, svc, p, exam.ID)

		at := base.Add(time.Duration(i) * time.Minute)
		s := score
		store.mu.Lock()
		row := store.submissions[sub.ID]
		row.Status = model.StatusGraded
		row.Score = &s
		row.SubmittedAt = &at
		store.mu.Unlock()
	}

	board, err := svc.Leaderboard(ctx, student(), exam.ID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("rows = %d, want 3", len(board))
	}
	// 90@t0 before 90@t1 (earlier submit wins the tie), 70 last.
	if board[0].UserID != userIDs[0] || board[1].UserID != userIDs[1] || board[2].UserID != userIDs[2] {
		t.Errorf("order = %v, want tie broken by earlier submission", board)
	}
	for i, row := range board {
		if row.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, row.Rank, i+1)
		}
	}
}

func TestLeaderboardPrivateRequiresStaff(t *testing.T) {
	exam := newTestExam(nil) // LeaderboardPublic false
	svc, _, _, _ := newTestSubmissionService(exam)
	ctx := context.Background()

	if _, err := svc.Leaderboard(ctx, student(), exam.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("student err = %v, want Forbidden", err)
	}
	staff := model.Principal{ID: uuid.New(), Role: model.RoleAdmin}
	if _, err := svc.Leaderboard(ctx, staff, exam.ID); err != nil {
		t.Errorf("staff read: %v", err)
	}
}

func TestLeaderboardExcludesInProgress(t *testing.T) {
	exam := newTestExam(func(e *model.Exam) { e.LeaderboardPublic = true })
	svc, _, _, _ := newTestSubmissionService(exam)

	mustStart(t, svc, student(), exam.ID)

	board, err := svc.Leaderboard(context.Background(), student(), exam.ID)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 0 {
		t.Errorf("rows = %d, want 0 while attempts are in progress", len(board))
	}
}

func TestUpdateFaceImage(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, evidence, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)
	ctx := context.Background()
	image := []byte("fake image bytes")

	url, err := svc.UpdateFaceImage(ctx, p, sub.ID, image)
	if err != nil {
		t.Fatalf("UpdateFaceImage: %v", err)
	}
	if url == "" {
		t.Error("empty URL returned")
	}
	got, _ := svc.GetByID(ctx, p, sub.ID)
	if got.Proctoring.ReferenceFaceImage == nil || *got.Proctoring.ReferenceFaceImage != url {
		t.Error("reference face image not stored")
	}

	if _, err := svc.UpdateFaceImage(ctx, student(), sub.ID, image); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign update err = %v, want Forbidden", err)
	}
	if _, err := svc.UpdateFaceImage(ctx, p, sub.ID, nil); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("empty image err = %v, want InvalidInput", err)
	}

	evidence.fail = errStoreDown
	if _, err := svc.UpdateFaceImage(ctx, p, sub.ID, image); !apperr.Is(err, apperr.KindUnavailable) {
		t.Errorf("store failure err = %v, want Unavailable", err)
	}
}

func TestRescoreEnqueuesCompletedAttempts(t *testing.T) {
	exam := newTestExam(nil)
	svc, _, _, queue := newTestSubmissionService(exam)
	ctx := context.Background()

	done := student()
	sub := mustStart(t, svc, done, exam.ID)
	if _, err := svc.Submit(ctx, done, sub.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mustStart(t, svc, student(), exam.ID) // stays in progress

	staff := model.Principal{ID: uuid.New(), Role: model.RoleTeacher}
	queued, err := svc.Rescore(ctx, staff, exam.ID)
	if err != nil {
		t.Fatalf("Rescore: %v", err)
	}
	if queued != 1 || len(queue.ids) != 1 || queue.ids[0] != sub.ID {
		t.Errorf("queued %d ids %v, want just the completed attempt", queued, queue.ids)
	}

	if _, err := svc.Rescore(ctx, done, exam.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("student rescore err = %v, want Forbidden", err)
	}

	queue.fail = errStoreDown
	if _, err := svc.Rescore(ctx, staff, exam.ID); !apperr.Is(err, apperr.KindUnavailable) {
		t.Errorf("queue failure err = %v, want Unavailable", err)
	}
}

func TestRescoreSubmissionRecomputes(t *testing.T) {
	exam := newTestExam(nil)
	svc, store, _, _ := newTestSubmissionService(exam)
	p := student()
	sub := mustStart(t, svc, p, exam.ID)
	ctx := context.Background()

	if _, err := svc.UpdateAnswers(ctx, p, sub.ID, model.UpdateAnswersRequest{
		Answers: []model.AnswerInput{{QuestionID: "q1", Response: "A"}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Rescoring an in_progress attempt is a no-op.
	if err := svc.RescoreSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("rescore in_progress: %v", err)
	}
	if cur, _ := store.GetByID(ctx, sub.ID); cur.Score != nil {
		t.Error("in_progress attempt must stay unscored")
	}

	if _, err := svc.Submit(ctx, p, sub.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.RescoreSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	after, _ := store.GetByID(ctx, sub.ID)
	if after.Score == nil || *after.Score != 50 {
		t.Errorf("score = %v, want 50", after.Score)
	}
}
