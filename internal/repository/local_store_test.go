package repository

import (
	"context"
	"testing"

	"lms/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seedFreeCourse  = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c001"
	seedPaidCourse  = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c002"
	seedFirstModule = "0b7e3f52-5a63-4d8e-8c1f-2a9d40e2a101"
	seedFirstLesson = "a3d0c7e1-9f2b-4e55-8d1a-6c3b2f10b201"
)

func TestSeedCatalog(t *testing.T) {
	courses, err := SeedCatalog()
	require.NoError(t, err)
	require.Len(t, courses, 3)

	seen := map[model.LessonType]bool{}
	for _, c := range courses {
		for _, m := range c.Modules {
			for _, l := range m.Lessons {
				seen[l.Type] = true
			}
		}
	}
	for _, lt := range []model.LessonType{model.LessonVideo, model.LessonText, model.LessonPDF, model.LessonQuiz, model.LessonSubmission} {
		assert.True(t, seen[lt], "seed should contain a %s lesson", lt)
	}
}

func TestLocalStoreListCourses(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore()
	require.NoError(t, err)

	all, total, err := s.ListCourses(ctx, model.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "Profiling and Performance", all[0].Name, "newest first")
	for _, c := range all {
		assert.Nil(t, c.Modules)
	}

	published, total, err := s.ListCourses(ctx, model.CourseFilter{State: model.CoursePublished})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, published, 2)

	found, total, err := s.ListCourses(ctx, model.CourseFilter{Search: "CHANNELS"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, seedPaidCourse, found[0].ID)

	paged, total, err := s.ListCourses(ctx, model.CourseFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, paged, 1)
	assert.Equal(t, seedFreeCourse, paged[0].ID)
}

func TestLocalStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore()
	require.NoError(t, err)

	tree, err := s.GetCourseTree(ctx, seedFreeCourse)
	require.NoError(t, err)
	tree.Modules[0].Lessons[0].Title = "changed"

	again, err := s.GetCourseTree(ctx, seedFreeCourse)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", again.Modules[0].Lessons[0].Title)

	missing, err := s.GetCourseTree(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLocalStoreDuplicateOrder(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore()
	require.NoError(t, err)

	err = s.CreateLesson(ctx, &model.Lesson{ModuleID: seedFirstModule, Title: "dup", Type: model.LessonText, OrderIndex: 1})
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	err = s.CreateModule(ctx, &model.Module{CourseID: seedFreeCourse, Name: "dup", OrderIndex: 2})
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	l := &model.Lesson{ModuleID: seedFirstModule, Title: "Extra", Type: model.LessonText, OrderIndex: 4}
	require.NoError(t, s.CreateLesson(ctx, l))
	assert.NotEmpty(t, l.ID)

	l.OrderIndex = 2
	assert.ErrorIs(t, s.UpdateLesson(ctx, l), ErrDuplicateOrder)

	assert.ErrorIs(t, s.DeleteLesson(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, s.CreateLesson(ctx, &model.Lesson{ModuleID: "missing", OrderIndex: 1}), ErrNotFound)
}

func TestLocalStoreProgress(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore()
	require.NoError(t, err)

	lp := &model.LessonProgress{UserID: "u1", CourseID: seedFreeCourse, LessonID: seedFirstLesson, Completed: true}
	require.NoError(t, s.UpsertProgress(ctx, lp))
	assert.False(t, lp.UpdatedAt.IsZero())

	other := &model.LessonProgress{UserID: "u2", CourseID: seedFreeCourse, LessonID: seedFirstLesson}
	require.NoError(t, s.UpsertProgress(ctx, other))

	rows, err := s.ListProgress(ctx, "u1", seedFreeCourse)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)

	require.NoError(t, s.DeleteProgress(ctx, "u1", seedFreeCourse))
	rows, err = s.ListProgress(ctx, "u1", seedFreeCourse)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.ListProgress(ctx, "u2", seedFreeCourse)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLocalStoreResetRestoresSeed(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore()
	require.NoError(t, err)

	require.NoError(t, s.CreateCourse(ctx, &model.Course{Name: "Scratch", State: model.CourseDraft}))
	require.NoError(t, s.DeleteCourse(ctx, seedPaidCourse))
	require.NoError(t, s.DeleteModule(ctx, seedFirstModule))
	require.NoError(t, s.UpsertProgress(ctx, &model.LessonProgress{UserID: "u1", CourseID: seedFreeCourse, LessonID: seedFirstLesson, Completed: true}))

	require.NoError(t, s.Reset())

	seed, err := SeedCatalog()
	require.NoError(t, err)
	_, total, err := s.ListCourses(ctx, model.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(seed), total)
	for _, want := range seed {
		got, err := s.GetCourseTree(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	}

	rows, err := s.ListProgress(ctx, "u1", seedFreeCourse)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
