// Package learning holds the course progression rules: traversal order,
// unlock gating, quiz grading, the submission review workflow and
// certificate eligibility. It performs no I/O.
package learning

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"lms/internal/model"
)

var (
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrOrderNotIncreasing = errors.New("order must be strictly increasing")
	ErrInvalidLesson      = errors.New("invalid lesson")
)

// Flatten returns the course's lessons in traversal order: modules by order
// index, then lessons by order index within each module.
func Flatten(c *model.Course) []model.Lesson {
	if c == nil {
		return nil
	}
	modules := slices.Clone(c.Modules)
	slices.SortStableFunc(modules, func(a, b model.Module) int {
		return cmp.Compare(a.OrderIndex, b.OrderIndex)
	})

	var out []model.Lesson
	for _, m := range modules {
		lessons := slices.Clone(m.Lessons)
		slices.SortStableFunc(lessons, func(a, b model.Lesson) int {
			return cmp.Compare(a.OrderIndex, b.OrderIndex)
		})
		out = append(out, lessons...)
	}
	return out
}

// FindLesson locates a lesson and the module that owns it.
func FindLesson(c *model.Course, lessonID string) (model.Lesson, bool) {
	if c == nil {
		return model.Lesson{}, false
	}
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return l, true
			}
		}
	}
	return model.Lesson{}, false
}

// ValidateOrder checks that module order indices are unique within the course
// and lesson order indices are unique within each module, so sorting yields a
// strictly increasing sequence.
func ValidateOrder(c *model.Course) error {
	if c == nil {
		return nil
	}
	seenModules := make(map[int]string, len(c.Modules))
	for _, m := range c.Modules {
		if other, ok := seenModules[m.OrderIndex]; ok {
			return fmt.Errorf("%w: modules %s and %s share order %d", ErrOrderNotIncreasing, other, m.ID, m.OrderIndex)
		}
		seenModules[m.OrderIndex] = m.ID

		seenLessons := make(map[int]string, len(m.Lessons))
		for _, l := range m.Lessons {
			if other, ok := seenLessons[l.OrderIndex]; ok {
				return fmt.Errorf("%w: lessons %s and %s in module %s share order %d", ErrOrderNotIncreasing, other, l.ID, m.ID, l.OrderIndex)
			}
			seenLessons[l.OrderIndex] = l.ID
		}
	}
	return nil
}

// NextOrderIndex returns the order index that appends a lesson to the module.
func NextOrderIndex(m model.Module) int {
	next := 1
	for _, l := range m.Lessons {
		if l.OrderIndex >= next {
			next = l.OrderIndex + 1
		}
	}
	return next
}

// ValidateLesson checks the type-specific payload of a lesson before it is stored.
func ValidateLesson(l model.Lesson) error {
	if !l.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLesson, l.Type)
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidLesson)
	}
	switch l.Type {
	case model.LessonVideo, model.LessonPDF:
		if strings.TrimSpace(l.Content.MediaURL) == "" {
			return fmt.Errorf("%w: %s lesson needs a media_url", ErrInvalidLesson, l.Type)
		}
	case model.LessonText:
		if strings.TrimSpace(l.Content.Body) == "" {
			return fmt.Errorf("%w: text lesson needs a body", ErrInvalidLesson)
		}
	case model.LessonQuiz:
		return validateQuiz(l.Content)
	}
	return nil
}

func validateQuiz(content model.LessonContent) error {
	if len(content.Questions) == 0 {
		return fmt.Errorf("%w: quiz needs at least one question", ErrInvalidLesson)
	}
	if t := content.PassThreshold; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("%w: pass_threshold must be between 0 and 100", ErrInvalidLesson)
	}
	ids := make(map[string]struct{}, len(content.Questions))
	for i, q := range content.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidLesson, i)
		}
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %s", ErrInvalidLesson, q.ID)
		}
		ids[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %s needs at least two options", ErrInvalidLesson, q.ID)
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("%w: question %s correct_option out of range", ErrInvalidLesson, q.ID)
		}
		if q.Points < 0 {
			return fmt.Errorf("%w: question %s has negative points", ErrInvalidLesson, q.ID)
		}
	}
	return nil
}
