package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/pot-code/progress-sync/internal/infrastructure/driver"
	"go.uber.org/zap"
)

const progressKeyPrefix = "student-progress:"

func progressKey(studentID, courseID string) string {
	return fmt.Sprintf("%s%s:%s", progressKeyPrefix, studentID, courseID)
}

// KVProgressStore ProgressStore implementation over a KeyValueDB driver
type KVProgressStore struct {
	kv      driver.KeyValueDB
	logger  *zap.Logger
	nowFunc func() time.Time
}

var _ domain.ProgressStore = &KVProgressStore{}

// NewKVProgressStore create a progress store on top of kv
func NewKVProgressStore(kv driver.KeyValueDB, logger *zap.Logger) *KVProgressStore {
	return &KVProgressStore{
		kv:      kv,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Save persist the record, stamping LastUpdated. Synced is whatever the
// caller set. Write failures are surfaced so the caller can decide whether
// to proceed optimistically.
func (s *KVProgressStore) Save(ctx context.Context, record *domain.ProgressRecord) error {
	key := progressKey(record.StudentID, record.CourseID)
	record.LastUpdated = s.nowFunc()
	data, err := json.Marshal(record)
	if err != nil {
		return &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return &domain.StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load return the stored record, or the well-defined empty record when the
// key is missing. Storage failures are logged and treated as a cache miss,
// never raised.
func (s *KVProgressStore) Load(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, error) {
	key := progressKey(studentID, courseID)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, driver.ErrKeyNotFound) {
			s.logger.Warn("Treating unreadable progress entry as absent",
				zap.String("cache.key", key), zap.Error(err))
		}
		return domain.NewEmptyProgress(studentID, courseID), nil
	}
	record := new(domain.ProgressRecord)
	if err := json.Unmarshal([]byte(data), record); err != nil {
		s.logger.Warn("Discarding corrupted progress entry",
			zap.String("cache.key", key), zap.Error(err))
		return domain.NewEmptyProgress(studentID, courseID), nil
	}
	if record.CompletedLessonIDs == nil {
		record.CompletedLessonIDs = []string{}
	}
	record.StudentID = studentID
	record.CourseID = courseID
	return record, nil
}

// MarkSynced flip synced on the existing record without touching any other
// field. No-op when there is no record.
func (s *KVProgressStore) MarkSynced(ctx context.Context, studentID, courseID string) error {
	key := progressKey(studentID, courseID)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, driver.ErrKeyNotFound) {
			return nil
		}
		return &domain.StorageError{Op: "mark-synced", Key: key, Err: err}
	}
	record := new(domain.ProgressRecord)
	if err := json.Unmarshal([]byte(data), record); err != nil {
		return &domain.StorageError{Op: "mark-synced", Key: key, Err: err}
	}
	record.Synced = true
	updated, err := json.Marshal(record)
	if err != nil {
		return &domain.StorageError{Op: "mark-synced", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, string(updated)); err != nil {
		return &domain.StorageError{Op: "mark-synced", Key: key, Err: err}
	}
	return nil
}

// ListUnsynced re-scan storage for records of the student awaiting a push
func (s *KVProgressStore) ListUnsynced(ctx context.Context, studentID string) ([]*domain.ProgressRecord, error) {
	return s.scanUnsynced(ctx, progressKeyPrefix+studentID+":")
}

// ListUnsyncedAll re-scan storage for unsynced records of every student
func (s *KVProgressStore) ListUnsyncedAll(ctx context.Context) ([]*domain.ProgressRecord, error) {
	return s.scanUnsynced(ctx, progressKeyPrefix)
}

func (s *KVProgressStore) scanUnsynced(ctx context.Context, prefix string) ([]*domain.ProgressRecord, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, &domain.StorageError{Op: "scan", Key: prefix, Err: err}
	}
	var result []*domain.ProgressRecord
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Skipping unreadable progress entry",
				zap.String("cache.key", key), zap.Error(err))
			continue
		}
		record := new(domain.ProgressRecord)
		if err := json.Unmarshal([]byte(data), record); err != nil {
			s.logger.Warn("Skipping corrupted progress entry",
				zap.String("cache.key", key), zap.Error(err))
			continue
		}
		if !record.Synced {
			result = append(result, record)
		}
	}
	return result, nil
}
