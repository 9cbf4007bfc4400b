package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates attempt states. Transitions are one-way:
// in_progress → submitted → graded.
type SubmissionStatus string

const (
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusGraded     SubmissionStatus = "graded"
)

// Valid reports whether s is a known status value.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusGraded:
		return true
	}
	return false
}

// Answer is one stored response, unique per question within an attempt.
// Order of storage is insertion order of first write.
type Answer struct {
	QuestionID string    `json:"question_id"`
	Response   string    `json:"response"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProctoringData aggregates integrity markers on an attempt. Violations and
// warnings hold "event:timestamp" strings appended by high/critical events.
type ProctoringData struct {
	Violations         []string `json:"violations"`
	Warnings           []string `json:"warnings"`
	ReferenceFaceImage *string  `json:"reference_face_image,omitempty"`
}

// Submission is one learner's attempt at one exam.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	ExamID      uuid.UUID        `json:"exam_id"`
	UserID      uuid.UUID        `json:"user_id"`
	OrgID       *uuid.UUID       `json:"org_id,omitempty"`
	Status      SubmissionStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	Deadline    time.Time        `json:"deadline"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Answers     []Answer         `json:"answers"`
	Proctoring  ProctoringData   `json:"proctoring_data"`
}

// StartSubmissionRequest is the payload for POST /submissions/start.
type StartSubmissionRequest struct {
	ExamID   uuid.UUID `json:"exam_id" binding:"required"`
	Password string    `json:"password"`
}

// AnswerInput is one upserted answer in an autosave call.
type AnswerInput struct {
	QuestionID string `json:"question_id" binding:"required"`
	Response   string `json:"response"`
}

// UpdateAnswersRequest is the payload for PATCH /submissions/:id/answers.
type UpdateAnswersRequest struct {
	Answers []AnswerInput `json:"answers" binding:"required,dive"`
}

// SubmissionFilter narrows getMySubmissions. Absent fields impose no
// constraint; present fields combine conjunctively.
type SubmissionFilter struct {
	Subject     string
	Status      SubmissionStatus
	StartedFrom *time.Time
	StartedTo   *time.Time
}

// LeaderboardEntry is one ranked row for a completed attempt.
type LeaderboardEntry struct {
	Rank         int        `json:"rank"`
	SubmissionID uuid.UUID  `json:"submission_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Score        *float64   `json:"score"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}
