package learning

import (
	"testing"

	"lms/internal/model"

	"github.com/stretchr/testify/assert"
)

func allDone() Progress {
	return NewProgress([]model.LessonProgress{
		{LessonID: "l1", Completed: true},
		{LessonID: "l2", Completed: true},
		{LessonID: "l3", Completed: true},
		{LessonID: "l4", Completed: true, SubmissionState: model.SubmissionApproved},
		{LessonID: "l5", Completed: true},
	})
}

func TestEligibleWhenEverythingDone(t *testing.T) {
	assert.True(t, IsEligible(fixture(), allDone()))
	assert.Empty(t, Missing(fixture(), allDone()))
}

func TestNotEligibleWithAnyIncompleteLesson(t *testing.T) {
	for _, id := range []string{"l1", "l2", "l3", "l4", "l5"} {
		p := allDone()
		lp := p[id]
		lp.Completed = false
		p[id] = lp
		assert.False(t, IsEligible(fixture(), p), "lesson %s incomplete", id)
		assert.Contains(t, Missing(fixture(), p), id)
	}
}

func TestNotEligibleWithUnapprovedSubmission(t *testing.T) {
	for _, state := range []model.SubmissionState{model.SubmissionPending, model.SubmissionRejected, model.SubmissionNone} {
		p := allDone()
		p["l4"] = model.LessonProgress{LessonID: "l4", Completed: true, SubmissionState: state}
		assert.False(t, IsEligible(fixture(), p), "submission %q", state)
		assert.Equal(t, []string{"l4"}, Missing(fixture(), p))
	}
}

func TestEmptyCourseIsNotEligible(t *testing.T) {
	assert.False(t, IsEligible(&model.Course{ID: "c"}, Progress{}))
	assert.False(t, IsEligible(nil, Progress{}))
}
