package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how serious a proctor event is. Only high and
// critical events feed the attempt's violation/warning counters.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// CountsAgainstAttempt reports whether events of this severity append a
// marker to the owning attempt.
func (s Severity) CountsAgainstAttempt() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// MarkerList selects which attempt counter an event feeds.
type MarkerList string

const (
	MarkerViolations MarkerList = "violations"
	MarkerWarnings   MarkerList = "warnings"
)

// hardViolationEvents is the fixed set of event tags that count as
// violations when logged at high/critical severity. Everything else
// lands in warnings.
var hardViolationEvents = map[string]struct{}{
	"tab_switch":     {},
	"copy_paste":     {},
	"right_click":    {},
	"multiple_faces": {},
	"camera_denied":  {},
	"no_face":        {},
	"face_mismatch":  {},
}

// ClassifyEvent returns the marker list an event tag feeds.
func ClassifyEvent(event string) MarkerList {
	if _, ok := hardViolationEvents[event]; ok {
		return MarkerViolations
	}
	return MarkerWarnings
}

// Marker renders the "event:timestamp" string stored on the attempt.
func Marker(event string, ts time.Time) string {
	return fmt.Sprintf("%s:%s", event, ts.UTC().Format(time.RFC3339))
}

// ProctorLogEntry is one observed integrity event. Entries are append-only:
// never mutated or deleted after creation.
type ProctorLogEntry struct {
	ID           uuid.UUID      `json:"id"`
	SubmissionID uuid.UUID      `json:"submission_id"`
	UserID       uuid.UUID      `json:"user_id"`
	OrgID        *uuid.UUID     `json:"org_id,omitempty"`
	Event        string         `json:"event"`
	Severity     Severity       `json:"severity"`
	Meta         map[string]any `json:"meta"`
	EvidenceURL  *string        `json:"evidence_url,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ExamLogEntry is a ProctorLogEntry enriched with the owning attempt's
// status for exam-wide reporting (read-side join).
type ExamLogEntry struct {
	ProctorLogEntry
	SubmissionStatus SubmissionStatus `json:"submission_status"`
}

// LogEventRequest is the parsed input for POST /proctor/log. Severity
// defaults to low when absent.
type LogEventRequest struct {
	SubmissionID uuid.UUID      `json:"submission_id" binding:"required"`
	Event        string         `json:"event" binding:"required,min=1,max=64"`
	Severity     Severity       `json:"severity"`
	Meta         map[string]any `json:"meta"`
}
