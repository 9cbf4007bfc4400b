package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// rescorePayload is one queued rescore job.
type rescorePayload struct {
	SubmissionID string `json:"submission_id"`
}

// RescoreQueue is the producer side of the rescore pass: attempt ids are
// pushed onto a redis list the worker drains.
type RescoreQueue struct {
	rdb *redis.Client
}

// NewRescoreQueue creates a new RescoreQueue.
func NewRescoreQueue(rdb *redis.Client) *RescoreQueue {
	return &RescoreQueue{rdb: rdb}
}

// Enqueue pushes the given attempt ids in one pipeline round trip.
func (q *RescoreQueue) Enqueue(ctx context.Context, submissionIDs []uuid.UUID) error {
	pipe := q.rdb.Pipeline()
	for _, id := range submissionIDs {
		data, err := json.Marshal(rescorePayload{SubmissionID: id.String()})
		if err != nil {
			return fmt.Errorf("marshal rescore payload: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.RescoreQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue rescore jobs: %w", err)
	}
	return nil
}
