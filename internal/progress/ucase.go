package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/pot-code/progress-sync/internal/infrastructure/logging"
	"github.com/pot-code/progress-sync/internal/quiz"
	"github.com/pot-code/progress-sync/internal/syncd"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

// UseCaseImpl local-first progress engine: mutations land in the local store
// immediately, outbound writes are debounced per (student, course) key, and
// every backend response is reconciled back into local truth
type UseCaseImpl struct {
	store     domain.ProgressStore
	client    domain.SyncClient
	attempts  *quiz.AttemptStore
	scheduler *syncd.Scheduler
	feed      *Feed
	logger    *zap.Logger

	mu        sync.RWMutex
	snapshots map[string]*domain.CourseSnapshot
}

var _ domain.ProgressUseCase = &UseCaseImpl{}

// NewUseCase create the engine and its internal debounce scheduler
func NewUseCase(
	store domain.ProgressStore,
	client domain.SyncClient,
	attempts *quiz.AttemptStore,
	feed *Feed,
	quietPeriod time.Duration,
	logger *zap.Logger,
) *UseCaseImpl {
	uc := &UseCaseImpl{
		store:     store,
		client:    client,
		attempts:  attempts,
		feed:      feed,
		logger:    logger,
		snapshots: make(map[string]*domain.CourseSnapshot),
	}
	uc.scheduler = syncd.NewScheduler(quietPeriod, uc.syncCourse, logger)
	return uc
}

// OpenCourse load (or initialize) the record for the pair, refreshing the
// course snapshot. When the local cache is empty the authoritative remote
// record is pulled so progress follows the student across devices.
func (uc *UseCaseImpl) OpenCourse(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.OpenCourse", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, true)
	if err != nil {
		return nil, nil, err
	}
	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}
	local.Normalize(snapshot)

	if local.Synced && len(local.CompletedLessonIDs) == 0 {
		remote, err := uc.client.Fetch(ctx, studentID, courseID)
		switch {
		case err == nil:
			remote.StudentID = studentID
			remote.CourseID = courseID
			remote.Normalize(snapshot)
			remote.Synced = true
			if err := uc.store.Save(ctx, remote); err != nil {
				uc.log(ctx).Warn("Could not cache pulled progress", zap.Error(err))
			}
			local = remote
		case errors.Is(err, domain.ErrNotFound):
			// first sync, the backend has nothing recorded yet
		default:
			uc.log(ctx).Warn("Could not pull remote progress, starting from local cache",
				zap.String("student.id", studentID),
				zap.String("course.id", courseID),
				zap.Error(err))
		}
	}

	if local.CurrentLessonID == "" {
		local.CurrentLessonID = snapshot.FirstLessonID()
	}
	if !local.Synced {
		// leftovers from a previous offline session
		uc.scheduler.Schedule(studentID, courseID)
	}
	return local, snapshot, nil
}

// GetProgress current local truth plus the session snapshot
func (uc *UseCaseImpl) GetProgress(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, false)
	if err != nil {
		return nil, nil, err
	}
	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}
	local.Normalize(snapshot)
	return local, snapshot, nil
}

// CompleteLesson optimistic local write followed by a debounced remote sync.
// The full (completed set, current lesson) pair is replaced together, never
// partially.
func (uc *UseCaseImpl) CompleteLesson(ctx context.Context, studentID, courseID, lessonID string) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.CompleteLesson", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, false)
	if err != nil {
		return nil, nil, err
	}
	id := domain.NormalizeID(lessonID)
	if !snapshot.HasLesson(id) {
		return nil, nil, &domain.ValidationError{Op: "complete-lesson",
			Detail: fmt.Sprintf("lesson %q is not part of course %q", id, courseID)}
	}

	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}
	local.Normalize(snapshot)
	if !local.HasLesson(id) {
		local.CompletedLessonIDs = append(local.CompletedLessonIDs, id)
	}
	local.CurrentLessonID = id
	local.Normalize(snapshot)
	local.Synced = false
	if err := uc.store.Save(ctx, local); err != nil {
		return nil, nil, err
	}

	go uc.emitLessonCompleted(studentID, courseID, id)
	uc.scheduler.Schedule(studentID, courseID)
	uc.feed.Publish(local)
	return local, snapshot, nil
}

// MoveToLesson persist the student's position without completing anything
func (uc *UseCaseImpl) MoveToLesson(ctx context.Context, studentID, courseID, lessonID string) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.MoveToLesson", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, false)
	if err != nil {
		return nil, nil, err
	}
	id := domain.NormalizeID(lessonID)
	if !snapshot.HasLesson(id) {
		return nil, nil, &domain.ValidationError{Op: "move-to-lesson",
			Detail: fmt.Sprintf("lesson %q is not part of course %q", id, courseID)}
	}

	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}
	local.Normalize(snapshot)
	local.CurrentLessonID = id
	local.Synced = false
	if err := uc.store.Save(ctx, local); err != nil {
		return nil, nil, err
	}
	uc.scheduler.Schedule(studentID, courseID)
	uc.feed.Publish(local)
	return local, snapshot, nil
}

// SubmitQuiz record the final quiz result. This is an explicit user action,
// so the remote call happens inline and its failure is surfaced, with the
// optimistic local write kept either way. Resubmission simply overwrites.
func (uc *UseCaseImpl) SubmitQuiz(ctx context.Context, studentID, courseID string, score, total int) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.SubmitQuiz", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, false)
	if err != nil {
		return nil, nil, err
	}
	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return nil, nil, err
	}
	local.Normalize(snapshot)
	local.QuizScore = &score
	local.TotalScore = &total
	local.Synced = false
	if err := uc.store.Save(ctx, local); err != nil {
		return nil, nil, err
	}
	uc.feed.Publish(local)

	if err := uc.client.SubmitQuizScore(ctx, studentID, courseID, score, total); err != nil {
		return local, snapshot, err
	}
	if err := uc.attempts.Clear(ctx, courseID); err != nil {
		uc.log(ctx).Warn("Could not clear quiz attempt", zap.Error(err))
	}
	uc.scheduler.Schedule(studentID, courseID)
	return local, snapshot, nil
}

// Restart reset the pair to a fresh record anchored at the first lesson. The
// local clear always completes; the remote reset is best effort and its
// failure is returned as a non-fatal notice.
func (uc *UseCaseImpl) Restart(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, *domain.CourseSnapshot, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.Restart", "service")
	defer apmSpan.End()

	snapshot, err := uc.snapshot(ctx, courseID, true)
	if err != nil {
		uc.log(ctx).Warn("Restarting without a fresh snapshot", zap.Error(err))
	}
	uc.scheduler.Cancel(studentID, courseID)

	empty := domain.NewEmptyProgress(studentID, courseID)
	empty.CurrentLessonID = snapshot.FirstLessonID()
	if err := uc.store.Save(ctx, empty); err != nil {
		return nil, nil, err
	}
	if err := uc.attempts.Clear(ctx, courseID); err != nil {
		uc.log(ctx).Warn("Could not clear quiz attempt", zap.Error(err))
	}
	uc.feed.Publish(empty)

	if err := uc.client.Reset(ctx, studentID, courseID, snapshot.FirstLessonID()); err != nil {
		uc.log(ctx).Warn("Remote reset failed, local progress was cleared anyway",
			zap.String("student.id", studentID),
			zap.String("course.id", courseID),
			zap.Error(err))
		empty.Synced = false
		if saveErr := uc.store.Save(ctx, empty); saveErr != nil {
			uc.log(ctx).Warn("Could not persist unsynced reset", zap.Error(saveErr))
		}
		return empty, snapshot, err
	}
	return empty, snapshot, nil
}

// Flush push every unsynced record of the student right away, still honoring
// the per-key in-flight guard
func (uc *UseCaseImpl) Flush(ctx context.Context, studentID string) error {
	apmSpan, ctx := apm.StartSpan(ctx, "UseCaseImpl.Flush", "service")
	defer apmSpan.End()

	records, err := uc.store.ListUnsynced(ctx, studentID)
	if err != nil {
		return err
	}
	for _, record := range records {
		uc.scheduler.RunNow(record.StudentID, record.CourseID)
	}
	return nil
}

// FlushAll push every unsynced record of every student, used by the
// background flusher
func (uc *UseCaseImpl) FlushAll(ctx context.Context) error {
	records, err := uc.store.ListUnsyncedAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		uc.scheduler.RunNow(record.StudentID, record.CourseID)
	}
	return nil
}

// CloseCourse cancel any pending debounce timer for the pair. The local
// write already happened, so nothing is lost, only the remote sync is
// deferred to the next mutation or flush.
func (uc *UseCaseImpl) CloseCourse(studentID, courseID string) {
	uc.scheduler.Cancel(studentID, courseID)
}

// syncCourse the scheduler's SyncFunc: push the latest local state and
// reconcile the authoritative response back into the cache
func (uc *UseCaseImpl) syncCourse(studentID, courseID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	snapshot, err := uc.snapshot(ctx, courseID, false)
	if err != nil {
		return err
	}
	local, err := uc.store.Load(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	if local.Synced {
		return nil
	}

	remote, updateErr := uc.client.Update(ctx, studentID, courseID,
		local.CompletedLessonIDs, local.CurrentLessonID)
	merged := Reconcile(local, remote, updateErr, snapshot)
	if err := uc.store.Save(ctx, merged); err != nil {
		return err
	}
	if merged.Synced {
		uc.feed.Publish(merged)
	}
	return updateErr
}

// snapshot cached course snapshot, refreshed from the backend when reload is
// set or nothing is cached yet. Falls back to the cached copy when the
// backend is unreachable.
func (uc *UseCaseImpl) snapshot(ctx context.Context, courseID string, reload bool) (*domain.CourseSnapshot, error) {
	uc.mu.RLock()
	cached, ok := uc.snapshots[courseID]
	uc.mu.RUnlock()
	if ok && !reload {
		return cached, nil
	}

	snapshot, err := uc.client.FetchCourse(ctx, courseID)
	if err != nil {
		if ok {
			uc.logger.Debug("Using cached course snapshot", zap.String("course.id", courseID), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}
	uc.mu.Lock()
	uc.snapshots[courseID] = snapshot
	uc.mu.Unlock()
	return snapshot, nil
}

// log prefer the trace-scoped request logger when the transport injected one
func (uc *UseCaseImpl) log(ctx context.Context) *zap.Logger {
	if logger := logging.ExtractLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return uc.logger
}

func (uc *UseCaseImpl) emitLessonCompleted(studentID, courseID, lessonID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := uc.client.LessonCompleted(ctx, studentID, courseID, lessonID); err != nil {
		uc.logger.Debug("Lesson completion event dropped",
			zap.String("student.id", studentID),
			zap.String("lesson.id", lessonID),
			zap.Error(err))
	}
}
