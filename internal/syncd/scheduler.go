package syncd

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncFunc pushes the latest local state of one (student, course) pair to the
// backend. The scheduler never passes a payload: a deferred write must send
// the state that is current when it finally runs, not the state that was
// current when it was scheduled.
type SyncFunc func(studentID, courseID string) error

// Scheduler coalesces rapid local mutations into a single outbound write per
// quiet period and guarantees at most one in-flight sync per (student, course)
// key. Local state is always written before Schedule is called, so a cancelled
// or deferred sync never loses data.
type Scheduler struct {
	mu      sync.Mutex
	quiet   time.Duration
	run     SyncFunc
	entries map[string]*entry
	logger  *zap.Logger
}

type entry struct {
	timer    *time.Timer
	inFlight bool
	pending  bool
}

// NewScheduler create a scheduler with the given quiet period
func NewScheduler(quiet time.Duration, run SyncFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		quiet:   quiet,
		run:     run,
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

func schedulerKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

// Schedule (re)arm the debounce timer for the key. Every call within the
// quiet window pushes the deadline out, coalescing a burst of mutations into
// one outbound call.
func (s *Scheduler) Schedule(studentID, courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(schedulerKey(studentID, courseID))
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(s.quiet, func() {
		s.fire(studentID, courseID)
	})
}

// Cancel drop any pending timer for the key, eg. when the course view closes.
// An in-flight sync is left to finish on its own.
func (s *Scheduler) Cancel(studentID, courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := schedulerKey(studentID, courseID)
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !e.inFlight {
		delete(s.entries, key)
	}
}

// RunNow skip the quiet period and sync immediately, still honoring the
// in-flight guard. Used by explicit flushes.
func (s *Scheduler) RunNow(studentID, courseID string) {
	s.fire(studentID, courseID)
}

// entry must be called with the lock held
func (s *Scheduler) entry(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *Scheduler) fire(studentID, courseID string) {
	key := schedulerKey(studentID, courseID)
	s.mu.Lock()
	e := s.entry(key)
	if e.timer != nil {
		// an immediate run absorbs a pending debounce, it sends the same state
		e.timer.Stop()
		e.timer = nil
	}
	if e.inFlight {
		// never two concurrent writes for the same key: the due write is
		// deferred until the running one resolves
		e.pending = true
		s.mu.Unlock()
		return
	}
	e.inFlight = true
	s.mu.Unlock()

	for {
		if err := s.run(studentID, courseID); err != nil {
			s.logger.Warn("Sync attempt failed, record stays unsynced",
				zap.String("student.id", studentID),
				zap.String("course.id", courseID),
				zap.Error(err))
		}
		s.mu.Lock()
		if e.pending {
			e.pending = false
			s.mu.Unlock()
			continue
		}
		e.inFlight = false
		if e.timer == nil {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return
	}
}
