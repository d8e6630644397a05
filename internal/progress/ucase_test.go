package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/pot-code/progress-sync/internal/infrastructure/driver"
	"github.com/pot-code/progress-sync/internal/quiz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type updateCall struct {
	completed []string
	current   string
}

// fakeSyncClient scripted backend double. By default Update echoes the
// submitted state back, ie. the backend accepted exactly what was sent.
type fakeSyncClient struct {
	mu         sync.Mutex
	snapshot   *domain.CourseSnapshot
	updates    []updateCall
	updateResp func(completed []string, current string) *domain.ProgressRecord
	updateErr  error
	fetchResp  *domain.ProgressRecord
	fetchErr   error
	resetErr   error
	quizErr    error
	resets     int
	events     []string
}

var _ domain.SyncClient = &fakeSyncClient{}

func (f *fakeSyncClient) FetchCourse(ctx context.Context, courseID string) (*domain.CourseSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeSyncClient) Fetch(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchResp == nil {
		return nil, domain.ErrNotFound
	}
	return f.fetchResp.Clone(), nil
}

func (f *fakeSyncClient) Update(ctx context.Context, studentID, courseID string, completed []string, current string) (*domain.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{append([]string(nil), completed...), current})
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateResp != nil {
		return f.updateResp(completed, current), nil
	}
	record := domain.NewEmptyProgress(studentID, courseID)
	record.CompletedLessonIDs = append([]string(nil), completed...)
	record.CurrentLessonID = current
	return record, nil
}

func (f *fakeSyncClient) Reset(ctx context.Context, studentID, courseID, firstLessonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeSyncClient) SubmitQuizScore(ctx context.Context, studentID, courseID string, score, total int) error {
	return f.quizErr
}

func (f *fakeSyncClient) LessonCompleted(ctx context.Context, studentID, courseID, lessonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, lessonID)
	return nil
}

func (f *fakeSyncClient) updateCalls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.updates...)
}

func newTestEngine(quiet time.Duration) (*UseCaseImpl, *fakeSyncClient, *KVProgressStore) {
	logger := zap.NewNop()
	kv := driver.NewMemoryClient()
	store := NewKVProgressStore(kv, logger)
	client := &fakeSyncClient{snapshot: threeLessonCourse()}
	attempts := quiz.NewAttemptStore(kv, logger)
	uc := NewUseCase(store, client, attempts, NewFeed(), quiet, logger)
	return uc, client, store
}

func TestCompleteLessonIsOptimistic(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour) // debounce never fires during the test
	ctx := context.Background()

	record, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err)

	assert.Equal(t, []string{"L1"}, record.CompletedLessonIDs)
	assert.Equal(t, "L1", record.CurrentLessonID)
	assert.False(t, record.Synced)
	assert.Empty(t, client.updateCalls(), "remote write is debounced, not inline")

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, stored.CompletedLessonIDs)
}

func TestCompleteLessonReturnsSnapshotForRendering(t *testing.T) {
	uc, _, _ := newTestEngine(time.Hour)

	record, snapshot, err := uc.CompleteLesson(context.Background(), "s1", "c1", "L1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	// one of three lessons done must render as 33%, not 100%
	view := NewView(record, snapshot)
	assert.Equal(t, 33, view.CompletionPercent)
	assert.False(t, view.AllComplete)
	assert.Equal(t, "L2", view.NextLessonID)
}

func TestCompleteLessonRejectsUnknownLesson(t *testing.T) {
	uc, _, _ := newTestEngine(time.Hour)

	_, _, err := uc.CompleteLesson(context.Background(), "s1", "c1", "L9")
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestDebounceCoalescesMutations(t *testing.T) {
	uc, client, store := newTestEngine(100 * time.Millisecond)
	ctx := context.Background()

	// three mutations in rapid succession, one outbound write
	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, _, err = uc.CompleteLesson(ctx, "s1", "c1", "L2")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, _, err = uc.CompleteLesson(ctx, "s1", "c1", "L3")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(client.updateCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	calls := client.updateCalls()
	assert.Equal(t, []string{"L1", "L2", "L3"}, calls[0].completed, "the write carries the latest state")
	assert.Equal(t, "L3", calls[0].current)

	require.Eventually(t, func() bool {
		stored, err := store.Load(ctx, "s1", "c1")
		return err == nil && stored.Synced
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, client.updateCalls(), 1, "no redundant writes after convergence")
}

func TestSyncIsIdempotent(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()

	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err)

	require.NoError(t, uc.syncCourse("s1", "c1"))
	first, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.True(t, first.Synced)

	// a second identical sync is a no-op and changes nothing
	require.NoError(t, uc.syncCourse("s1", "c1"))
	second, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Equal(t, first.CompletedLessonIDs, second.CompletedLessonIDs)
	assert.Equal(t, first.CurrentLessonID, second.CurrentLessonID)
	assert.Len(t, client.updateCalls(), 1)
}

func TestServerWinsAcrossDevices(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()

	// another device already completed L3
	client.updateResp = func(completed []string, current string) *domain.ProgressRecord {
		record := domain.NewEmptyProgress("s1", "c1")
		record.CompletedLessonIDs = []string{"L1", "L3"}
		record.CurrentLessonID = current
		return record
	}

	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err)
	require.NoError(t, uc.syncCourse("s1", "c1"))

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L3"}, stored.CompletedLessonIDs)
	assert.True(t, stored.Synced)
}

func TestOfflineMutationKeptUnsynced(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()
	client.updateErr = &domain.NetworkError{Op: "update", Err: errors.New("connection refused")}

	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err, "sync failures never reach the mutation path")

	syncErr := uc.syncCourse("s1", "c1")
	assert.True(t, domain.IsNetworkError(syncErr))

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, stored.CompletedLessonIDs, "no data loss")
	assert.False(t, stored.Synced)

	// connectivity returns, flush drains the backlog
	client.mu.Lock()
	client.updateErr = nil
	client.mu.Unlock()
	require.NoError(t, uc.Flush(ctx, "s1"))

	require.Eventually(t, func() bool {
		stored, err := store.Load(ctx, "s1", "c1")
		return err == nil && stored.Synced
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRestartClearsLocalEvenWhenRemoteFails(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()

	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L1")
	require.NoError(t, err)
	client.resetErr = &domain.NetworkError{Op: "reset", Err: errors.New("offline")}

	record, _, err := uc.Restart(ctx, "s1", "c1")
	require.Error(t, err, "explicit action surfaces the remote failure")
	require.NotNil(t, record)
	assert.Empty(t, record.CompletedLessonIDs)
	assert.Equal(t, "L1", record.CurrentLessonID, "anchored at the first lesson")

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Empty(t, stored.CompletedLessonIDs, "local clear completed regardless")
	assert.False(t, stored.Synced)
}

func TestRestartClearsLocalAndRemote(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()

	_, _, err := uc.CompleteLesson(ctx, "s1", "c1", "L2")
	require.NoError(t, err)

	record, snapshot, err := uc.Restart(ctx, "s1", "c1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Empty(t, record.CompletedLessonIDs)
	assert.Equal(t, 1, client.resets)

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.Empty(t, stored.CompletedLessonIDs)
	assert.True(t, stored.Synced)
}

func TestOpenCoursePullsRemoteWhenCacheEmpty(t *testing.T) {
	uc, client, _ := newTestEngine(time.Hour)
	remote := domain.NewEmptyProgress("s1", "c1")
	remote.CompletedLessonIDs = []string{"L1", "L4"} // L4 is stale
	remote.CurrentLessonID = "L2"
	client.fetchResp = remote

	record, snapshot, err := uc.OpenCourse(context.Background(), "s1", "c1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, []string{"L1"}, record.CompletedLessonIDs, "invalid ids dropped on load")
	assert.Equal(t, "L2", record.CurrentLessonID)
	assert.True(t, record.Synced)
}

func TestOpenCourseFirstSync(t *testing.T) {
	uc, _, _ := newTestEngine(time.Hour)

	record, _, err := uc.OpenCourse(context.Background(), "s1", "c1")
	require.NoError(t, err, "no remote record is not an error")
	assert.Empty(t, record.CompletedLessonIDs)
	assert.Equal(t, "L1", record.CurrentLessonID)
}

func TestSubmitQuizKeepsLocalOnRemoteFailure(t *testing.T) {
	uc, client, store := newTestEngine(time.Hour)
	ctx := context.Background()
	client.quizErr = &domain.NetworkError{Op: "quizCompleted", Err: errors.New("offline")}

	record, snapshot, err := uc.SubmitQuiz(ctx, "s1", "c1", 8, 10)
	require.Error(t, err)
	require.NotNil(t, record, "optimistic write is kept")
	require.NotNil(t, snapshot)
	require.NotNil(t, record.QuizScore)
	assert.Equal(t, 8, *record.QuizScore)

	stored, err := store.Load(ctx, "s1", "c1")
	require.NoError(t, err)
	require.NotNil(t, stored.QuizScore)
	assert.Equal(t, 8, *stored.QuizScore)
	assert.False(t, stored.Synced)
}

func TestFeedPublishesOptimisticWrites(t *testing.T) {
	uc, _, _ := newTestEngine(time.Hour)
	events, cancel := uc.feed.Subscribe()
	defer cancel()

	_, _, err := uc.CompleteLesson(context.Background(), "s1", "c1", "L1")
	require.NoError(t, err)

	select {
	case record := <-events:
		assert.Equal(t, []string{"L1"}, record.CompletedLessonIDs)
	case <-time.After(time.Second):
		t.Fatal("no feed event received")
	}
}
