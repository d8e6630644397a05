package progress

import (
	"math"

	"github.com/pot-code/progress-sync/internal/domain"
)

// View derived, render-ready fields computed from a record and its course
// snapshot. Pure data, no behaviour.
type View struct {
	CompletionPercent int    `json:"completion_percent"`
	AllComplete       bool   `json:"all_complete"`
	NextLessonID      string `json:"next_lesson_id,omitempty"`
}

// NewView compute every derived field at once
func NewView(record *domain.ProgressRecord, snapshot *domain.CourseSnapshot) *View {
	next, _ := NextLessonAfter(record, snapshot)
	return &View{
		CompletionPercent: CompletionPercent(record, snapshot),
		AllComplete:       IsAllComplete(record, snapshot),
		NextLessonID:      next,
	}
}

// CompletionPercent share of valid completed lessons, rounded, clamped to
// [0,100]. A missing or empty snapshot yields 0, never a guess.
func CompletionPercent(record *domain.ProgressRecord, snapshot *domain.CourseSnapshot) int {
	count := snapshot.LessonCount()
	if record == nil || count == 0 {
		return 0
	}
	valid := domain.FilterValidLessonIDs(record.CompletedLessonIDs, snapshot)
	percent := int(math.Round(100 * float64(len(valid)) / float64(count)))
	if percent > 100 {
		return 100
	}
	return percent
}

// IsAllComplete true when every lesson of a non-empty course is completed
func IsAllComplete(record *domain.ProgressRecord, snapshot *domain.CourseSnapshot) bool {
	if record == nil || snapshot.LessonCount() == 0 {
		return false
	}
	valid := domain.FilterValidLessonIDs(record.CompletedLessonIDs, snapshot)
	return len(valid) == snapshot.LessonCount()
}

// NextLessonAfter the lesson immediately following the current one in course
// order. ok is false when the current lesson is the last one (the caller then
// offers the quiz) or the position is unknown.
func NextLessonAfter(record *domain.ProgressRecord, snapshot *domain.CourseSnapshot) (id string, ok bool) {
	if record == nil || snapshot == nil {
		return "", false
	}
	index := snapshot.LessonIndex(record.CurrentLessonID)
	if index < 0 || index+1 >= snapshot.LessonCount() {
		return "", false
	}
	return snapshot.LessonIDs[index+1], true
}
