package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes proctor events to the per-exam monitor channel.
// A channel with no subscribers drops the message, which is exactly the
// wanted behavior when no dashboard is attached.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a new RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// PublishEvent sends one integrity event to the exam's monitor channel.
func (p *RedisPublisher) PublishEvent(ctx context.Context, examID uuid.UUID, entry *model.ProctorLogEntry) error {
	payload := EventPayload{
		Type:         TypeProctorEvent,
		SubmissionID: entry.SubmissionID,
		UserID:       entry.UserID,
		Event:        entry.Event,
		Severity:     string(entry.Severity),
		EvidenceURL:  entry.EvidenceURL,
		Timestamp:    entry.CreatedAt,
		OrgID:        entry.OrgID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal monitor payload: %w", err)
	}
	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish monitor payload: %w", err)
	}
	return nil
}
