package syncd

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduleCoalescesBursts(t *testing.T) {
	var calls int32
	s := NewScheduler(50*time.Millisecond, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())

	// three rapid mutations within the quiet window
	s.Schedule("s1", "c1")
	time.Sleep(10 * time.Millisecond)
	s.Schedule("s1", "c1")
	time.Sleep(10 * time.Millisecond)
	s.Schedule("s1", "c1")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)

	// no trailing extra call
	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	s := NewScheduler(20*time.Millisecond, func(studentID, courseID string) error {
		mu.Lock()
		seen[studentID+"/"+courseID]++
		mu.Unlock()
		return nil
	}, zap.NewNop())

	s.Schedule("s1", "c1")
	s.Schedule("s1", "c2")
	s.Schedule("s2", "c1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestInFlightGuardDefersSecondWrite(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var calls int32
	s := NewScheduler(10*time.Millisecond, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		return nil
	}, zap.NewNop())

	s.Schedule("s1", "c1")
	<-started // first sync is now in flight

	// a second write comes due while the first has not resolved
	s.Schedule("s1", "c1")
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "no concurrent second call")

	release <- struct{}{}
	<-started // deferred write starts only after the first resolves
	release <- struct{}{}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRunNowAbsorbsPendingTimer(t *testing.T) {
	var calls int32
	s := NewScheduler(100*time.Millisecond, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())

	// the immediate run sends the same state the armed timer would have sent
	s.Schedule("s1", "c1")
	s.RunNow("s1", "c1")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	time.Sleep(250 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "the stale timer must not fire")
}

func TestCancelDropsPendingTimer(t *testing.T) {
	var calls int32
	s := NewScheduler(30*time.Millisecond, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())

	s.Schedule("s1", "c1")
	s.Cancel("s1", "c1")

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestRunNowHonorsGuard(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls int32
	s := NewScheduler(time.Hour, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		return nil
	}, zap.NewNop())

	go s.RunNow("s1", "c1")
	<-started

	// second immediate run folds into the in-flight one
	go s.RunNow("s1", "c1")
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	release <- struct{}{}
	<-started
	release <- struct{}{}
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestFailedSyncIsNotRetriedUntilNextTrigger(t *testing.T) {
	var calls int32
	s := NewScheduler(10*time.Millisecond, func(studentID, courseID string) error {
		atomic.AddInt32(&calls, 1)
		return assert.AnError
	}, zap.NewNop())

	s.Schedule("s1", "c1")
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "retry waits for the next mutation or flush")

	s.Schedule("s1", "c1")
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, 5*time.Millisecond)
}
