package domain

import "context"

// CourseSnapshot read-only view of a course owned by the backend. It supplies
// the ordered lesson list and quiz used to validate and interpret a
// ProgressRecord. Treated as immutable for the duration of a session and
// re-fetched on course reload.
type CourseSnapshot struct {
	CourseID  string   `json:"course_id"`
	Title     string   `json:"title,omitempty"`
	LessonIDs []string `json:"lessons"`
	QuizID    string   `json:"quiz_id,omitempty"`
}

// HasLesson report whether the lesson belongs to the course
func (s *CourseSnapshot) HasLesson(lessonID string) bool {
	return s.LessonIndex(lessonID) >= 0
}

// LessonIndex position of the lesson in course order, -1 if unknown
func (s *CourseSnapshot) LessonIndex(lessonID string) int {
	if s == nil {
		return -1
	}
	id := NormalizeID(lessonID)
	for i, e := range s.LessonIDs {
		if e == id {
			return i
		}
	}
	return -1
}

// FirstLessonID the lesson a fresh record is anchored at, empty for an empty course
func (s *CourseSnapshot) FirstLessonID() string {
	if s == nil || len(s.LessonIDs) == 0 {
		return ""
	}
	return s.LessonIDs[0]
}

// LessonCount number of lessons in the course
func (s *CourseSnapshot) LessonCount() int {
	if s == nil {
		return 0
	}
	return len(s.LessonIDs)
}

// SyncClient stateless operations against the backend progress endpoints.
// No retry policy lives here, retries belong to the scheduler.
type SyncClient interface {
	FetchCourse(ctx context.Context, courseID string) (*CourseSnapshot, error)
	Fetch(ctx context.Context, studentID, courseID string) (*ProgressRecord, error)
	Update(ctx context.Context, studentID, courseID string, completedLessonIDs []string, currentLessonID string) (*ProgressRecord, error)
	Reset(ctx context.Context, studentID, courseID, firstLessonID string) error
	SubmitQuizScore(ctx context.Context, studentID, courseID string, score, total int) error
	LessonCompleted(ctx context.Context, studentID, courseID, lessonID string) error
}
