package domain

import (
	"context"
	"time"
)

// ProgressStatus course advancement state
type ProgressStatus string

const (
	// StatusInProgress at least one lesson remains
	StatusInProgress ProgressStatus = "in-progress"
	// StatusCompleted every lesson of the course is completed
	StatusCompleted ProgressStatus = "completed"
)

// ProgressRecord one student's advancement in one course
type ProgressRecord struct {
	StudentID          string         `json:"student_id"`
	CourseID           string         `json:"course_id"`
	CompletedLessonIDs []string       `json:"completed_lessons"`
	CurrentLessonID    string         `json:"current_lesson_id,omitempty"`
	QuizScore          *int           `json:"quiz_score,omitempty"`
	TotalScore         *int           `json:"total_score,omitempty"`
	Status             ProgressStatus `json:"status"`
	Synced             bool           `json:"synced"`
	LastUpdated        time.Time      `json:"last_updated"`
}

// NewEmptyProgress returns the well-defined zero record for a (student, course) pair
func NewEmptyProgress(studentID, courseID string) *ProgressRecord {
	return &ProgressRecord{
		StudentID:          studentID,
		CourseID:           courseID,
		CompletedLessonIDs: []string{},
		Status:             StatusInProgress,
		Synced:             true,
	}
}

// Clone deep-copy the record
func (r *ProgressRecord) Clone() *ProgressRecord {
	clone := *r
	clone.CompletedLessonIDs = append([]string(nil), r.CompletedLessonIDs...)
	if r.QuizScore != nil {
		score := *r.QuizScore
		clone.QuizScore = &score
	}
	if r.TotalScore != nil {
		total := *r.TotalScore
		clone.TotalScore = &total
	}
	return &clone
}

// HasLesson report whether the lesson is already in the completed set
func (r *ProgressRecord) HasLesson(lessonID string) bool {
	id := NormalizeID(lessonID)
	for _, e := range r.CompletedLessonIDs {
		if e == id {
			return true
		}
	}
	return false
}

// Normalize restore record invariants against the current lesson list:
// completed ids are de-duplicated and filtered to lessons that still exist,
// an unknown current lesson is treated as absent, and status is re-derived
// from the filtered set. Stale ids from an older course version are dropped
// silently.
func (r *ProgressRecord) Normalize(snapshot *CourseSnapshot) {
	r.CompletedLessonIDs = FilterValidLessonIDs(r.CompletedLessonIDs, snapshot)
	if r.CurrentLessonID != "" {
		r.CurrentLessonID = NormalizeID(r.CurrentLessonID)
		if snapshot != nil && !snapshot.HasLesson(r.CurrentLessonID) {
			r.CurrentLessonID = ""
		}
	}
	r.Status = deriveStatus(r.CompletedLessonIDs, snapshot)
}

// FilterValidLessonIDs normalize, de-duplicate and drop ids that are not part
// of the course snapshot, preserving first-seen order
func FilterValidLessonIDs(ids []string, snapshot *CourseSnapshot) []string {
	result := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := NormalizeID(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if snapshot != nil && !snapshot.HasLesson(id) {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func deriveStatus(completed []string, snapshot *CourseSnapshot) ProgressStatus {
	if snapshot != nil && snapshot.LessonCount() > 0 && len(completed) == snapshot.LessonCount() {
		return StatusCompleted
	}
	return StatusInProgress
}

// ProgressStore local durable cache of progress records, keyed by (student, course)
type ProgressStore interface {
	Save(ctx context.Context, record *ProgressRecord) error
	Load(ctx context.Context, studentID, courseID string) (*ProgressRecord, error)
	MarkSynced(ctx context.Context, studentID, courseID string) error
	ListUnsynced(ctx context.Context, studentID string) ([]*ProgressRecord, error)
	ListUnsyncedAll(ctx context.Context) ([]*ProgressRecord, error)
}

// ProgressUseCase sync-engine operations consumed by the transport layer
type ProgressUseCase interface {
	OpenCourse(ctx context.Context, studentID, courseID string) (*ProgressRecord, *CourseSnapshot, error)
	GetProgress(ctx context.Context, studentID, courseID string) (*ProgressRecord, *CourseSnapshot, error)
	CompleteLesson(ctx context.Context, studentID, courseID, lessonID string) (*ProgressRecord, *CourseSnapshot, error)
	MoveToLesson(ctx context.Context, studentID, courseID, lessonID string) (*ProgressRecord, *CourseSnapshot, error)
	SubmitQuiz(ctx context.Context, studentID, courseID string, score, total int) (*ProgressRecord, *CourseSnapshot, error)
	Restart(ctx context.Context, studentID, courseID string) (*ProgressRecord, *CourseSnapshot, error)
	Flush(ctx context.Context, studentID string) error
	FlushAll(ctx context.Context) error
	CloseCourse(studentID, courseID string)
}
