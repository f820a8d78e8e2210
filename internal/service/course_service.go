package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"lms/internal/config"
	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/repository"
	"lms/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	coverMaxWidth  = 1280
	coverMaxHeight = 720
)

// CourseService defines the interface for catalog reads and admin authoring.
type CourseService interface {
	// ListCourses pages through the catalog. Without includeDrafts only published courses are returned.
	ListCourses(ctx context.Context, f model.CourseFilter, includeDrafts bool) ([]model.Course, int, error)
	// GetCourse returns the course tree, hiding drafts unless includeDrafts is set.
	GetCourse(ctx context.Context, courseID string, includeDrafts bool) (*model.Course, error)
	CreateCourse(ctx context.Context, c *model.Course) (*model.Course, error)
	UpdateCourse(ctx context.Context, c *model.Course) (*model.Course, error)
	SetCourseState(ctx context.Context, courseID string, state model.CourseState) (*model.Course, error)
	DeleteCourse(ctx context.Context, courseID string) error
	UploadCover(ctx context.Context, courseID string, data []byte) (*model.Course, error)
	CoverURL(c *model.Course) string

	CreateModule(ctx context.Context, m *model.Module) (*model.Module, error)
	UpdateModule(ctx context.Context, m *model.Module) (*model.Module, error)
	DeleteModule(ctx context.Context, moduleID string) error

	CreateLesson(ctx context.Context, l *model.Lesson) (*model.Lesson, error)
	UpdateLesson(ctx context.Context, l *model.Lesson) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, lessonID string) error

	// ResetLocal restores the embedded catalog and clears local progress.
	ResetLocal(ctx context.Context) error
}

type courseService struct {
	repo      repository.CourseRepository
	local     *repository.LocalStore
	source    string
	store     storage.ObjectStore
	publicURL func(key string) string
	logger    zerolog.Logger
}

// NewCourseService creates a new CourseService. source selects where the
// catalog is read from: postgres, local, or auto (postgres with local fallback).
func NewCourseService(repo repository.CourseRepository, local *repository.LocalStore, source string, store storage.ObjectStore, publicURL func(string) string, logger zerolog.Logger) CourseService {
	return &courseService{
		repo:      repo,
		local:     local,
		source:    source,
		store:     store,
		publicURL: publicURL,
		logger:    logger.With().Str("service", "CourseService").Logger(),
	}
}

func (s *courseService) writer() repository.CourseRepository {
	if s.source == config.CatalogSourceLocal && s.local != nil {
		return s.local
	}
	return s.repo
}

// read runs fn against the configured catalog, falling back to the local store in auto mode.
func read[T any](ctx context.Context, s *courseService, fn func(repository.CatalogReader) (T, error)) (T, error) {
	if s.source == config.CatalogSourceLocal && s.local != nil {
		return fn(s.local)
	}
	out, err := fn(s.repo)
	if err != nil && s.source == config.CatalogSourceAuto && s.local != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("Catalog database read failed; serving local catalog")
		return fn(s.local)
	}
	return out, err
}

func (s *courseService) ListCourses(ctx context.Context, f model.CourseFilter, includeDrafts bool) ([]model.Course, int, error) {
	if !includeDrafts {
		f.State = model.CoursePublished
	}
	type page struct {
		courses []model.Course
		total   int
	}
	p, err := read(ctx, s, func(r repository.CatalogReader) (page, error) {
		courses, total, err := r.ListCourses(ctx, f)
		return page{courses, total}, err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list courses")
		return nil, 0, err
	}
	return p.courses, p.total, nil
}

func (s *courseService) GetCourse(ctx context.Context, courseID string, includeDrafts bool) (*model.Course, error) {
	c, err := read(ctx, s, func(r repository.CatalogReader) (*model.Course, error) {
		return r.GetCourseTree(ctx, courseID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("Failed to load course tree")
		return nil, err
	}
	if c == nil || (!includeDrafts && c.State != model.CoursePublished) {
		return nil, ErrCourseNotFound
	}
	return c, nil
}

func (s *courseService) getCourse(ctx context.Context, courseID string) (*model.Course, error) {
	c, err := s.writer().GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCourseNotFound
	}
	return c, nil
}

func (s *courseService) CreateCourse(ctx context.Context, c *model.Course) (*model.Course, error) {
	if c.State == "" {
		c.State = model.CourseDraft
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	c.Currency = strings.ToLower(c.Currency)
	if err := s.writer().CreateCourse(ctx, c); err != nil {
		s.logger.Error().Err(err).Msg("Failed to create course")
		return nil, err
	}
	return c, nil
}

func (s *courseService) UpdateCourse(ctx context.Context, c *model.Course) (*model.Course, error) {
	existing, err := s.getCourse(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if c.State == "" {
		c.State = existing.State
	}
	if c.Currency == "" {
		c.Currency = existing.Currency
	}
	c.CoverPath = existing.CoverPath
	if c.State == model.CoursePublished && existing.State != model.CoursePublished {
		if err := s.checkPublishable(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	if err := s.writer().UpdateCourse(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		s.logger.Error().Err(err).Str("course_id", c.ID).Msg("Failed to update course")
		return nil, err
	}
	return c, nil
}

func (s *courseService) SetCourseState(ctx context.Context, courseID string, state model.CourseState) (*model.Course, error) {
	c, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c.State = state
	return s.UpdateCourse(ctx, c)
}

// checkPublishable rejects trees whose ordering or lesson content is invalid.
func (s *courseService) checkPublishable(ctx context.Context, courseID string) error {
	tree, err := s.writer().GetCourseTree(ctx, courseID)
	if err != nil {
		return err
	}
	if tree == nil {
		return ErrCourseNotFound
	}
	if err := learning.ValidateOrder(tree); err != nil {
		return err
	}
	for _, l := range learning.Flatten(tree) {
		if err := learning.ValidateLesson(l); err != nil {
			return fmt.Errorf("lesson %s: %w", l.ID, err)
		}
	}
	return nil
}

func (s *courseService) DeleteCourse(ctx context.Context, courseID string) error {
	if err := s.writer().DeleteCourse(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCourseNotFound
		}
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("Failed to delete course")
		return err
	}
	for _, prefix := range []string{"courses/" + courseID + "/", "submissions/" + courseID + "/"} {
		if err := s.store.DeletePrefix(ctx, prefix); err != nil {
			// The course row is gone; leftover objects are only wasted space.
			s.logger.Error().Err(err).Str("prefix", prefix).Msg("Failed to delete course objects from storage")
		}
	}
	return nil
}

// UploadCover sniffs the image type, fits it inside 1280x720, re-encodes it as
// JPEG and stores it under the course prefix.
func (s *courseService) UploadCover(ctx context.Context, courseID string, data []byte) (*model.Course, error) {
	c, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") && !mt.Is("image/gif") {
		return nil, ErrUnsupportedImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if img.Bounds().Dx() > coverMaxWidth || img.Bounds().Dy() > coverMaxHeight {
		img = imaging.Fit(img, coverMaxWidth, coverMaxHeight, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encoding cover: %w", err)
	}

	key := fmt.Sprintf("courses/%s/cover-%s.jpg", courseID, uuid.NewString())
	if err := s.store.Put(ctx, key, "image/jpeg", buf.Bytes()); err != nil {
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("Failed to upload cover")
		return nil, err
	}

	previous := c.CoverPath
	c.CoverPath = key
	if err := s.writer().UpdateCourse(ctx, c); err != nil {
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("Failed to store cover path")
		return nil, err
	}
	if previous != "" {
		if err := s.store.Delete(ctx, previous); err != nil {
			s.logger.Warn().Err(err).Str("key", previous).Msg("Failed to delete previous cover")
		}
	}
	return c, nil
}

func (s *courseService) CoverURL(c *model.Course) string {
	if c == nil || c.CoverPath == "" {
		return ""
	}
	return s.publicURL(c.CoverPath)
}

func (s *courseService) getModule(ctx context.Context, moduleID string) (*model.Module, error) {
	m, err := s.writer().GetModuleByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrModuleNotFound
	}
	return m, nil
}

func (s *courseService) CreateModule(ctx context.Context, m *model.Module) (*model.Module, error) {
	tree, err := s.writer().GetCourseTree(ctx, m.CourseID)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, ErrCourseNotFound
	}
	if m.OrderIndex <= 0 {
		m.OrderIndex = 1
		for _, existing := range tree.Modules {
			m.OrderIndex = max(m.OrderIndex, existing.OrderIndex+1)
		}
	}
	if err := s.writer().CreateModule(ctx, m); err != nil {
		return nil, s.mapWriteErr(err, ErrCourseNotFound)
	}
	return m, nil
}

func (s *courseService) UpdateModule(ctx context.Context, m *model.Module) (*model.Module, error) {
	existing, err := s.getModule(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if m.OrderIndex <= 0 {
		m.OrderIndex = existing.OrderIndex
	}
	if err := s.writer().UpdateModule(ctx, m); err != nil {
		return nil, s.mapWriteErr(err, ErrModuleNotFound)
	}
	return m, nil
}

func (s *courseService) DeleteModule(ctx context.Context, moduleID string) error {
	return s.mapWriteErr(s.writer().DeleteModule(ctx, moduleID), ErrModuleNotFound)
}

func (s *courseService) CreateLesson(ctx context.Context, l *model.Lesson) (*model.Lesson, error) {
	m, err := s.getModule(ctx, l.ModuleID)
	if err != nil {
		return nil, err
	}
	if l.OrderIndex <= 0 {
		tree, err := s.writer().GetCourseTree(ctx, m.CourseID)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			return nil, ErrCourseNotFound
		}
		for _, candidate := range tree.Modules {
			if candidate.ID == m.ID {
				l.OrderIndex = learning.NextOrderIndex(candidate)
			}
		}
		if l.OrderIndex <= 0 {
			l.OrderIndex = 1
		}
	}
	if err := learning.ValidateLesson(*l); err != nil {
		return nil, err
	}
	if err := s.writer().CreateLesson(ctx, l); err != nil {
		return nil, s.mapWriteErr(err, ErrModuleNotFound)
	}
	return l, nil
}

func (s *courseService) UpdateLesson(ctx context.Context, l *model.Lesson) (*model.Lesson, error) {
	existing, err := s.writer().GetLessonByID(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrLessonNotFound
	}
	if l.OrderIndex <= 0 {
		l.OrderIndex = existing.OrderIndex
	}
	if l.Type == "" {
		l.Type = existing.Type
	}
	l.ModuleID = existing.ModuleID
	if err := learning.ValidateLesson(*l); err != nil {
		return nil, err
	}
	if err := s.writer().UpdateLesson(ctx, l); err != nil {
		return nil, s.mapWriteErr(err, ErrLessonNotFound)
	}
	return l, nil
}

func (s *courseService) DeleteLesson(ctx context.Context, lessonID string) error {
	return s.mapWriteErr(s.writer().DeleteLesson(ctx, lessonID), ErrLessonNotFound)
}

func (s *courseService) mapWriteErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrDuplicateOrder):
		return ErrDuplicateOrder
	default:
		s.logger.Error().Err(err).Msg("Catalog write failed")
		return err
	}
}

func (s *courseService) ResetLocal(ctx context.Context) error {
	if s.local == nil {
		return errors.New("local catalog is not enabled")
	}
	s.logger.Info().Msg("Resetting local catalog to seed")
	return s.local.Reset()
}
