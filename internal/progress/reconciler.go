package progress

import (
	"github.com/pot-code/progress-sync/internal/domain"
)

// Reconcile merge the local optimistic record with the outcome of a remote
// write and return what should become the new local truth.
//
// The backend is the single source of truth across devices: the client only
// proposes, it never unilaterally commits when divergence is detected. On any
// difference between the two completed sets the remote set is adopted
// wholesale, never unioned.
//
// When the remote call failed the local record is kept untouched with
// synced=false, eligible for the next sync opportunity.
func Reconcile(local, remote *domain.ProgressRecord, remoteErr error, snapshot *domain.CourseSnapshot) *domain.ProgressRecord {
	merged := local.Clone()
	if remoteErr != nil || remote == nil {
		merged.Synced = false
		return merged
	}

	// whether the sets turn out equal (server accepted exactly what was sent)
	// or not (another device completed more, or invalid ids were dropped),
	// the remote set is adopted either way
	merged.CompletedLessonIDs = domain.FilterValidLessonIDs(remote.CompletedLessonIDs, snapshot)

	// a stale server echo must not regress forward navigation: the server
	// position only wins when it actually differs and names a valid lesson
	remoteCurrent := domain.NormalizeID(remote.CurrentLessonID)
	if remoteCurrent != merged.CurrentLessonID && snapshot.HasLesson(remoteCurrent) {
		merged.CurrentLessonID = remoteCurrent
	}
	if merged.CurrentLessonID != "" && !snapshot.HasLesson(merged.CurrentLessonID) {
		merged.CurrentLessonID = ""
	}

	if remote.QuizScore != nil {
		merged.QuizScore = remote.QuizScore
	}
	if remote.TotalScore != nil {
		merged.TotalScore = remote.TotalScore
	}

	merged.Normalize(snapshot)
	merged.Synced = true
	return merged
}
