package model

import (
	"time"

	"github.com/google/uuid"
)

// LatePolicy decides what happens when submitExam arrives past the deadline.
type LatePolicy string

const (
	// LatePolicyClamp accepts the submission, clamps submitted_at to the
	// deadline and flags the attempt with a late_submission warning marker.
	LatePolicyClamp LatePolicy = "clamp"
	// LatePolicyReject fails the submission with Gone.
	LatePolicyReject LatePolicy = "reject"
)

// GradingMode decides whether an attempt reaches the graded state at submit
// time or stays submitted pending staff review.
type GradingMode string

const (
	GradingAuto   GradingMode = "auto"
	GradingManual GradingMode = "manual"
)

// AnswerKeyEntry is the correct response and weight for one question.
type AnswerKeyEntry struct {
	Correct string  `json:"correct"`
	Weight  float64 `json:"weight"`
}

// AnswerKey maps question IDs to their scoring entries.
type AnswerKey map[string]AnswerKeyEntry

// Exam is the catalog record this subsystem reads. Authoring is external;
// the catalog is consumed read-only through a cached lookup.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	DurationMinutes int        `json:"duration_minutes"`
	// PasswordHash is a bcrypt hash; empty means the exam has no password.
	PasswordHash      string      `json:"-"`
	AnswerKey         AnswerKey   `json:"-"`
	LeaderboardPublic bool        `json:"leaderboard_public"`
	AllowResume       bool        `json:"allow_resume"`
	LatePolicy        LatePolicy  `json:"late_policy"`
	Grading           GradingMode `json:"grading"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Duration returns the attempt time budget.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
