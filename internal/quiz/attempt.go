package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/pot-code/progress-sync/internal/infrastructure/driver"
	"go.uber.org/zap"
)

const attemptKeyPrefix = "quiz-progress:"

// Attempt an in-progress quiz run, persisted separately from the progress
// record and cleared on submission or course restart
type Attempt struct {
	CourseID  string         `json:"course_id"`
	QuizID    string         `json:"quiz_id,omitempty"`
	Answers   map[string]int `json:"answers"`
	Question  int            `json:"question"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AttemptStore durable persistence of quiz attempts keyed by course
type AttemptStore struct {
	kv      driver.KeyValueDB
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewAttemptStore create an attempt store on top of kv
func NewAttemptStore(kv driver.KeyValueDB, logger *zap.Logger) *AttemptStore {
	return &AttemptStore{
		kv:      kv,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Save overwrite the attempt for its course
func (s *AttemptStore) Save(ctx context.Context, attempt *Attempt) error {
	key := attemptKeyPrefix + attempt.CourseID
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = s.nowFunc()
	}
	attempt.UpdatedAt = s.nowFunc()
	data, err := json.Marshal(attempt)
	if err != nil {
		return &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load return the stored attempt, or nil when none is in progress
func (s *AttemptStore) Load(ctx context.Context, courseID string) (*Attempt, error) {
	key := attemptKeyPrefix + courseID
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, driver.ErrKeyNotFound) {
			s.logger.Warn("Treating unreadable quiz attempt as absent",
				zap.String("cache.key", key), zap.Error(err))
		}
		return nil, nil
	}
	attempt := new(Attempt)
	if err := json.Unmarshal([]byte(data), attempt); err != nil {
		s.logger.Warn("Discarding corrupted quiz attempt",
			zap.String("cache.key", key), zap.Error(err))
		return nil, nil
	}
	return attempt, nil
}

// Clear drop the attempt for the course
func (s *AttemptStore) Clear(ctx context.Context, courseID string) error {
	key := attemptKeyPrefix + courseID
	if err := s.kv.Delete(ctx, key); err != nil {
		return &domain.StorageError{Op: "clear", Key: key, Err: err}
	}
	return nil
}
