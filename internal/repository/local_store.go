package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"lms/internal/model"

	"github.com/google/uuid"
)

//go:embed seed/catalog.json
var seedCatalog []byte

// SeedCatalog decodes the embedded default catalog.
func SeedCatalog() ([]model.Course, error) {
	var courses []model.Course
	if err := json.Unmarshal(seedCatalog, &courses); err != nil {
		return nil, fmt.Errorf("decoding seed catalog: %w", err)
	}
	return courses, nil
}

// LocalStore is an in-memory catalog and progress store seeded from the
// embedded catalog. It is served when Postgres is not configured or not reachable.
type LocalStore struct {
	mu       sync.RWMutex
	courses  []model.Course
	progress map[string]model.LessonProgress
	now      func() time.Time
}

var (
	_ CourseRepository   = (*LocalStore)(nil)
	_ ProgressRepository = (*LocalStore)(nil)
)

func NewLocalStore() (*LocalStore, error) {
	s := &LocalStore{now: time.Now}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset discards every change and restores the seed catalog with no progress.
func (s *LocalStore) Reset() error {
	courses, err := SeedCatalog()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = courses
	s.progress = map[string]model.LessonProgress{}
	return nil
}

// clone deep-copies v so callers never share memory with the store.
func clone[T any](v T) T {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("local store: cloning %T: %v", v, err))
	}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("local store: cloning %T: %v", v, err))
	}
	return out
}

func (s *LocalStore) courseIndex(id string) int {
	return slices.IndexFunc(s.courses, func(c model.Course) bool { return c.ID == id })
}

func (s *LocalStore) moduleIndex(id string) (int, int) {
	for ci := range s.courses {
		for mi := range s.courses[ci].Modules {
			if s.courses[ci].Modules[mi].ID == id {
				return ci, mi
			}
		}
	}
	return -1, -1
}

func (s *LocalStore) lessonIndex(id string) (int, int, int) {
	for ci := range s.courses {
		for mi := range s.courses[ci].Modules {
			for li := range s.courses[ci].Modules[mi].Lessons {
				if s.courses[ci].Modules[mi].Lessons[li].ID == id {
					return ci, mi, li
				}
			}
		}
	}
	return -1, -1, -1
}

func (s *LocalStore) ListCourses(_ context.Context, f model.CourseFilter) ([]model.Course, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := []model.Course{}
	for _, c := range s.courses {
		if f.State != "" && c.State != f.State {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		c.Modules = nil
		matched = append(matched, clone(c))
	}
	slices.SortStableFunc(matched, func(a, b model.Course) int { return b.CreatedAt.Compare(a.CreatedAt) })

	limit, offset := page(f.Limit, f.Offset)
	total := len(matched)
	if offset >= total {
		return []model.Course{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (s *LocalStore) GetCourseByID(_ context.Context, courseID string) (*model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.courseIndex(courseID)
	if i < 0 {
		return nil, nil
	}
	c := s.courses[i]
	c.Modules = nil
	c = clone(c)
	return &c, nil
}

func (s *LocalStore) GetCourseTree(_ context.Context, courseID string) (*model.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.courseIndex(courseID)
	if i < 0 {
		return nil, nil
	}
	c := clone(s.courses[i])
	return &c, nil
}

func (s *LocalStore) CreateCourse(_ context.Context, c *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	c.Modules = nil
	s.courses = append(s.courses, clone(*c))
	return nil
}

func (s *LocalStore) UpdateCourse(_ context.Context, c *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.courseIndex(c.ID)
	if i < 0 {
		return ErrNotFound
	}
	stored := &s.courses[i]
	stored.Name = c.Name
	stored.Description = c.Description
	stored.PriceCents = c.PriceCents
	stored.Currency = c.Currency
	stored.State = c.State
	stored.CoverPath = c.CoverPath
	stored.UpdatedAt = s.now().UTC()

	c.CreatedBy = stored.CreatedBy
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *LocalStore) DeleteCourse(_ context.Context, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.courseIndex(courseID)
	if i < 0 {
		return ErrNotFound
	}
	s.courses = slices.Delete(s.courses, i, i+1)
	for k, lp := range s.progress {
		if lp.CourseID == courseID {
			delete(s.progress, k)
		}
	}
	return nil
}

func (s *LocalStore) GetModuleByID(_ context.Context, moduleID string) (*model.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, mi := s.moduleIndex(moduleID)
	if ci < 0 {
		return nil, nil
	}
	m := s.courses[ci].Modules[mi]
	m.Lessons = nil
	m = clone(m)
	return &m, nil
}

func moduleOrderTaken(mods []model.Module, order int, exceptID string) bool {
	return slices.ContainsFunc(mods, func(m model.Module) bool { return m.ID != exceptID && m.OrderIndex == order })
}

func lessonOrderTaken(lessons []model.Lesson, order int, exceptID string) bool {
	return slices.ContainsFunc(lessons, func(l model.Lesson) bool { return l.ID != exceptID && l.OrderIndex == order })
}

func (s *LocalStore) CreateModule(_ context.Context, m *model.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci := s.courseIndex(m.CourseID)
	if ci < 0 {
		return ErrNotFound
	}
	if moduleOrderTaken(s.courses[ci].Modules, m.OrderIndex, "") {
		return ErrDuplicateOrder
	}
	now := s.now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt, m.UpdatedAt = now, now
	m.Lessons = nil
	s.courses[ci].Modules = append(s.courses[ci].Modules, clone(*m))
	return nil
}

func (s *LocalStore) UpdateModule(_ context.Context, m *model.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, mi := s.moduleIndex(m.ID)
	if ci < 0 {
		return ErrNotFound
	}
	if moduleOrderTaken(s.courses[ci].Modules, m.OrderIndex, m.ID) {
		return ErrDuplicateOrder
	}
	stored := &s.courses[ci].Modules[mi]
	stored.Name = m.Name
	stored.OrderIndex = m.OrderIndex
	stored.UpdatedAt = s.now().UTC()

	m.CourseID = stored.CourseID
	m.CreatedAt = stored.CreatedAt
	m.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *LocalStore) DeleteModule(_ context.Context, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, mi := s.moduleIndex(moduleID)
	if ci < 0 {
		return ErrNotFound
	}
	s.courses[ci].Modules = slices.Delete(s.courses[ci].Modules, mi, mi+1)
	return nil
}

func (s *LocalStore) GetLessonByID(_ context.Context, lessonID string) (*model.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, mi, li := s.lessonIndex(lessonID)
	if ci < 0 {
		return nil, nil
	}
	l := clone(s.courses[ci].Modules[mi].Lessons[li])
	return &l, nil
}

func (s *LocalStore) CreateLesson(_ context.Context, l *model.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, mi := s.moduleIndex(l.ModuleID)
	if ci < 0 {
		return ErrNotFound
	}
	mod := &s.courses[ci].Modules[mi]
	if lessonOrderTaken(mod.Lessons, l.OrderIndex, "") {
		return ErrDuplicateOrder
	}
	now := s.now().UTC()
	l.ID = uuid.NewString()
	l.CreatedAt, l.UpdatedAt = now, now
	mod.Lessons = append(mod.Lessons, clone(*l))
	return nil
}

func (s *LocalStore) UpdateLesson(_ context.Context, l *model.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, mi, li := s.lessonIndex(l.ID)
	if ci < 0 {
		return ErrNotFound
	}
	mod := &s.courses[ci].Modules[mi]
	if lessonOrderTaken(mod.Lessons, l.OrderIndex, l.ID) {
		return ErrDuplicateOrder
	}
	stored := &mod.Lessons[li]
	stored.Title = l.Title
	stored.Type = l.Type
	stored.OrderIndex = l.OrderIndex
	stored.Content = clone(l.Content)
	stored.UpdatedAt = s.now().UTC()

	l.ModuleID = stored.ModuleID
	l.CreatedAt = stored.CreatedAt
	l.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *LocalStore) DeleteLesson(_ context.Context, lessonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, mi, li := s.lessonIndex(lessonID)
	if ci < 0 {
		return ErrNotFound
	}
	mod := &s.courses[ci].Modules[mi]
	mod.Lessons = slices.Delete(mod.Lessons, li, li+1)
	return nil
}

func progressKey(userID, lessonID string) string {
	return userID + "/" + lessonID
}

func (s *LocalStore) ListProgress(_ context.Context, userID, courseID string) ([]model.LessonProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.LessonProgress{}
	for _, lp := range s.progress {
		if lp.UserID == userID && lp.CourseID == courseID {
			out = append(out, clone(lp))
		}
	}
	slices.SortFunc(out, func(a, b model.LessonProgress) int { return strings.Compare(a.LessonID, b.LessonID) })
	return out, nil
}

func (s *LocalStore) UpsertProgress(_ context.Context, lp *model.LessonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp.UpdatedAt = s.now().UTC()
	s.progress[progressKey(lp.UserID, lp.LessonID)] = clone(*lp)
	return nil
}

func (s *LocalStore) DeleteProgress(_ context.Context, userID, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, lp := range s.progress {
		if lp.UserID == userID && lp.CourseID == courseID {
			delete(s.progress, k)
		}
	}
	return nil
}
