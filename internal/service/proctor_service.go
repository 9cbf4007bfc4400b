package service

import (
	"context"
	"time"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Page caps protect responses against unbounded log growth.
const (
	maxSubmissionLogPage = 1000
	maxExamLogPage       = 5000
)

// ProctorLogStore is the append-only integrity log persistence.
type ProctorLogStore interface {
	Insert(ctx context.Context, e *model.ProctorLogEntry) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID, limit int) ([]model.ProctorLogEntry, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.ExamLogEntry, error)
}

// MonitorPublisher fans high-severity events out to live staff dashboards.
// Publishing is best-effort and never blocks log persistence.
type MonitorPublisher interface {
	PublishEvent(ctx context.Context, examID uuid.UUID, entry *model.ProctorLogEntry) error
}

// RequestOrigin carries the server-observed request source. These fields
// are captured at the HTTP boundary and never trusted from the caller.
type RequestOrigin struct {
	UserAgent string
	IP        string
}

// ProctorService appends tamper-evident integrity events per attempt and
// maintains the severity-triggered aggregate counters.
type ProctorService struct {
	logs            ProctorLogStore
	subs            SubmissionStore
	evidence        storage.EvidenceStore
	monitor         MonitorPublisher
	evidenceTimeout time.Duration
	log             zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	logs ProctorLogStore,
	subs SubmissionStore,
	evidence storage.EvidenceStore,
	monitor MonitorPublisher,
	evidenceTimeout time.Duration,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		logs:            logs,
		subs:            subs,
		evidence:        evidence,
		monitor:         monitor,
		evidenceTimeout: evidenceTimeout,
		log:             log.With().Str("component", "proctor_service").Logger(),
	}
}

// LogEvent appends one integrity event to the caller's attempt.
//
// Evidence is best-effort: the upload runs under a short timeout and a
// failure is folded into the entry's metadata instead of blocking it.
// Once ownership checks pass the entry is persisted unconditionally;
// high/critical events additionally append a marker to the attempt's
// violations or warnings via a single atomic list update.
func (s *ProctorService) LogEvent(ctx context.Context, p model.Principal, req model.LogEventRequest, evidence []byte, origin RequestOrigin) (*model.ProctorLogEntry, error) {
	if req.Severity == "" {
		req.Severity = model.SeverityLow
	}
	if !req.Severity.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown severity")
	}

	sub, err := s.subs.GetByID(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, sub); err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(req.Meta)+2)
	for k, v := range req.Meta {
		meta[k] = v
	}
	meta["user_agent"] = origin.UserAgent
	meta["ip"] = origin.IP

	entry := &model.ProctorLogEntry{
		SubmissionID: sub.ID,
		UserID:       p.ID,
		OrgID:        orgOf(p, sub),
		Event:        req.Event,
		Severity:     req.Severity,
		Meta:         meta,
	}

	if len(evidence) > 0 {
		uploadCtx, cancel := context.WithTimeout(ctx, s.evidenceTimeout)
		url, uerr := s.evidence.Upload(uploadCtx, evidence, "proctoring/evidence")
		cancel()
		if uerr != nil {
			s.log.Warn().Err(uerr).
				Str("submission_id", sub.ID.String()).
				Str("event", req.Event).
				Msg("Evidence upload failed, logging without it")
			meta["upload_error"] = uerr.Error()
		} else {
			entry.EvidenceURL = &url
		}
	}

	if err := s.logs.Insert(ctx, entry); err != nil {
		return nil, err
	}

	if entry.Severity.CountsAgainstAttempt() {
		list := model.ClassifyEvent(entry.Event)
		marker := model.Marker(entry.Event, entry.CreatedAt)
		if err := s.subs.AppendMarker(ctx, sub.ID, list, marker); err != nil {
			// The entry itself is durable; the aggregate counter is
			// reconstructible from the log, so don't fail the request.
			s.log.Error().Err(err).
				Str("submission_id", sub.ID.String()).
				Str("list", string(list)).
				Msg("Marker append failed")
		}
	}

	if s.monitor != nil {
		if err := s.monitor.PublishEvent(ctx, sub.ExamID, entry); err != nil {
			s.log.Warn().Err(err).Msg("Monitor publish failed")
		}
	}

	return entry, nil
}

// GetSubmissionLogs returns one attempt's events, newest first. A zero
// limit means the page cap; requested limits never exceed it. Owner or
// staff.
func (s *ProctorService) GetSubmissionLogs(ctx context.Context, p model.Principal, submissionID uuid.UUID, limit int) ([]model.ProctorLogEntry, error) {
	sub, err := s.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := canReadSubmission(p, sub); err != nil {
		return nil, err
	}
	return s.logs.ListBySubmission(ctx, submissionID, capLimit(limit, maxSubmissionLogPage))
}

// GetExamLogs returns events across every attempt of an exam, newest
// first, enriched with attempt status. Staff only.
func (s *ProctorService) GetExamLogs(ctx context.Context, p model.Principal, examID uuid.UUID, limit int) ([]model.ExamLogEntry, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	return s.logs.ListByExam(ctx, examID, capLimit(limit, maxExamLogPage))
}

func capLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// orgOf picks the entry's organization: the caller's, else the attempt's.
func orgOf(p model.Principal, sub *model.Submission) *uuid.UUID {
	if p.OrgID != nil {
		return p.OrgID
	}
	return sub.OrgID
}
