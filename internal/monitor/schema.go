// Package monitor carries live proctor events from the log engine to
// attached staff dashboards via a per-exam Redis Pub/Sub channel.
package monitor

import (
	"time"

	"github.com/google/uuid"
)

// EventPayload is the wire format published on the exam monitor channel
// and forwarded verbatim to WebSocket subscribers.
type EventPayload struct {
	Type         string     `json:"type"`
	SubmissionID uuid.UUID  `json:"submission_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Event        string     `json:"event"`
	Severity     string     `json:"severity"`
	EvidenceURL  *string    `json:"evidence_url,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	OrgID        *uuid.UUID `json:"org_id,omitempty"`
}

// TypeProctorEvent tags integrity events on the channel.
const TypeProctorEvent = "proctor_event"
