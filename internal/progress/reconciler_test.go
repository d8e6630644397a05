package progress

import (
	"errors"
	"testing"

	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestReconcileServerWinsOnDivergence(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.CompletedLessonIDs = []string{"L1", "L2"}
	local.Synced = false

	remote := domain.NewEmptyProgress("s1", "c1")
	remote.CompletedLessonIDs = []string{"L1", "L3"}

	merged := Reconcile(local, remote, nil, snapshot)

	assert.Equal(t, []string{"L1", "L3"}, merged.CompletedLessonIDs)
	assert.True(t, merged.Synced)
}

func TestReconcileEqualSetsConfirmSync(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.CompletedLessonIDs = []string{"L1", "L2"}
	local.CurrentLessonID = "L2"
	local.Synced = false

	remote := local.Clone()
	merged := Reconcile(local, remote, nil, snapshot)

	assert.Equal(t, []string{"L1", "L2"}, merged.CompletedLessonIDs)
	assert.Equal(t, "L2", merged.CurrentLessonID)
	assert.True(t, merged.Synced)
}

func TestReconcileNetworkFailureKeepsLocal(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.CompletedLessonIDs = []string{"L1", "L2"}
	local.CurrentLessonID = "L2"
	local.Synced = false

	merged := Reconcile(local, nil, &domain.NetworkError{Op: "update", Err: errors.New("offline")}, snapshot)

	assert.Equal(t, []string{"L1", "L2"}, merged.CompletedLessonIDs)
	assert.Equal(t, "L2", merged.CurrentLessonID)
	assert.False(t, merged.Synced)
}

func TestReconcileValidationFailureKeepsLocal(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.CompletedLessonIDs = []string{"L1"}
	local.Synced = false

	merged := Reconcile(local, nil, &domain.ValidationError{Op: "update", Detail: "unknown lesson"}, snapshot)

	assert.Equal(t, []string{"L1"}, merged.CompletedLessonIDs)
	assert.False(t, merged.Synced)
}

func TestReconcileStaleServerPositionDoesNotRegress(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.CompletedLessonIDs = []string{"L1", "L2"}
	local.CurrentLessonID = "L3"
	local.Synced = false

	// server echoes an invalid position, local navigation is preserved
	remote := domain.NewEmptyProgress("s1", "c1")
	remote.CompletedLessonIDs = []string{"L1", "L2"}
	remote.CurrentLessonID = "gone"

	merged := Reconcile(local, remote, nil, snapshot)
	assert.Equal(t, "L3", merged.CurrentLessonID)

	// a differing valid position is adopted
	remote.CurrentLessonID = "L2"
	merged = Reconcile(local, remote, nil, snapshot)
	assert.Equal(t, "L2", merged.CurrentLessonID)
}

func TestReconcileDropsInvalidRemoteLessons(t *testing.T) {
	snapshot := threeLessonCourse()
	local := domain.NewEmptyProgress("s1", "c1")
	local.Synced = false

	remote := domain.NewEmptyProgress("s1", "c1")
	remote.CompletedLessonIDs = []string{"L1", "L2", "L3", "L9"}

	merged := Reconcile(local, remote, nil, snapshot)

	assert.Equal(t, []string{"L1", "L2", "L3"}, merged.CompletedLessonIDs)
	assert.Equal(t, domain.StatusCompleted, merged.Status)
}
