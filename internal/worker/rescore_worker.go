package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RescoreWorker consumes the rescore queue and recomputes scores against
// the current answer key.
type RescoreWorker struct {
	submissions *service.SubmissionService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewRescoreWorker creates a new RescoreWorker.
func NewRescoreWorker(submissions *service.SubmissionService, rdb *redis.Client, log zerolog.Logger) *RescoreWorker {
	return &RescoreWorker{
		submissions: submissions,
		rdb:         rdb,
		log:         log.With().Str("component", "rescore_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *RescoreWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *RescoreWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.RescoreQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(3 * time.Second)
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if err := w.process(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Rescore error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.RescoreQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *RescoreWorker) process(ctx context.Context, raw string) error {
	var payload rescorePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Malformed JSON cannot be retried. Log and discard.
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed job")
		return nil
	}

	id, err := uuid.Parse(payload.SubmissionID)
	if err != nil {
		w.log.Error().Str("submission_id", payload.SubmissionID).Msg("Discarding job with invalid id")
		return nil
	}

	err = w.submissions.RescoreSubmission(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		// The attempt vanished; nothing to retry.
		w.log.Warn().Str("submission_id", id.String()).Msg("Rescore target missing")
		return nil
	}
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *RescoreWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.RescoreQueue).Result()
		if err != nil {
			break
		}

		if err := w.process(ctx, result); err != nil {
			w.log.Error().Err(err).Msg("Drain rescore error")
			w.rdb.RPush(ctx, config.WorkerKey.RescoreQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
