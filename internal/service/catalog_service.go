package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ExamCatalog is the read-only exam metadata lookup the lifecycle and
// proctor engines depend on.
type ExamCatalog interface {
	Get(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

// ExamStore is the persistence behind the catalog.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// CatalogService serves exam metadata through a redis read-through cache.
// Exams change rarely and are read on every start/submit, so a short TTL
// keeps the hot path off PostgreSQL.
type CatalogService struct {
	store ExamStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store ExamStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "catalog_service").Logger(),
	}
}

// cachedExam mirrors model.Exam including the fields the public JSON view
// hides (password hash, answer key), so a cache hit is a full record.
type cachedExam struct {
	ID                uuid.UUID         `json:"id"`
	Title             string            `json:"title"`
	Subject           string            `json:"subject"`
	DurationMinutes   int               `json:"duration_minutes"`
	PasswordHash      string            `json:"password_hash"`
	AnswerKey         model.AnswerKey   `json:"answer_key"`
	LeaderboardPublic bool              `json:"leaderboard_public"`
	AllowResume       bool              `json:"allow_resume"`
	LatePolicy        model.LatePolicy  `json:"late_policy"`
	Grading           model.GradingMode `json:"grading"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Get returns the exam, serving from cache when possible and self-healing
// the cache on a miss. Redis outages degrade to direct store reads.
func (s *CatalogService) Get(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamKey(examID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var c cachedExam
		if jerr := json.Unmarshal([]byte(raw), &c); jerr == nil {
			return fromCached(&c), nil
		}
		// Corrupt cache entry; fall through to the store and rewrite it.
		s.log.Warn().Str("exam_id", examID.String()).Msg("Dropping corrupt exam cache entry")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Exam cache read failed, falling back to store")
	}

	exam, err := s.store.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(toCached(exam)); jerr == nil {
		if serr := s.rdb.Set(ctx, key, data, s.ttl).Err(); serr != nil {
			s.log.Warn().Err(serr).Msg("Exam cache write failed")
		}
	}

	return exam, nil
}

// Invalidate drops the cached record, forcing the next Get to the store.
func (s *CatalogService) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamKey(examID.String())).Err(); err != nil {
		return fmt.Errorf("invalidate exam cache: %w", err)
	}
	return nil
}

func toCached(e *model.Exam) *cachedExam {
	return &cachedExam{
		ID: e.ID, Title: e.Title, Subject: e.Subject,
		DurationMinutes: e.DurationMinutes, PasswordHash: e.PasswordHash,
		AnswerKey: e.AnswerKey, LeaderboardPublic: e.LeaderboardPublic,
		AllowResume: e.AllowResume, LatePolicy: e.LatePolicy,
		Grading: e.Grading, CreatedAt: e.CreatedAt,
	}
}

func fromCached(c *cachedExam) *model.Exam {
	return &model.Exam{
		ID: c.ID, Title: c.Title, Subject: c.Subject,
		DurationMinutes: c.DurationMinutes, PasswordHash: c.PasswordHash,
		AnswerKey: c.AnswerKey, LeaderboardPublic: c.LeaderboardPublic,
		AllowResume: c.AllowResume, LatePolicy: c.LatePolicy,
		Grading: c.Grading, CreatedAt: c.CreatedAt,
	}
}
