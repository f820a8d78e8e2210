package service

import (
	"context"
	"errors"
	"time"

	"lms/internal/learning"
	"lms/internal/repository"

	"github.com/rs/zerolog"
)

// CourseProgress is a student's evaluated view of a whole course.
type CourseProgress struct {
	CourseID string                 `json:"course_id"`
	Lessons  []learning.LessonState `json:"lessons"`
	Summary  learning.Summary       `json:"summary"`
}

type ProgressService interface {
	CourseProgress(ctx context.Context, userID, courseID string) (*CourseProgress, error)
	LessonState(ctx context.Context, userID, courseID, moduleID, lessonID string) (learning.LessonState, error)
	// Complete marks a video, text or pdf lesson complete.
	Complete(ctx context.Context, userID, courseID, lessonID string) (learning.LessonState, error)
	Reset(ctx context.Context, userID, courseID string) error
}

type progressService struct {
	loader *learnerLoader
	repo   repository.ProgressRepository
	certs  CertificateScheduler
	now    func() time.Time
	logger zerolog.Logger
}

func NewProgressService(courses CourseService, repo repository.ProgressRepository, access EnrollmentService, certs CertificateScheduler, logger zerolog.Logger) ProgressService {
	return &progressService{
		loader: &learnerLoader{courses: courses, progress: repo, access: access},
		repo:   repo,
		certs:  certs,
		now:    time.Now,
		logger: logger.With().Str("service", "ProgressService").Logger(),
	}
}

func (s *progressService) CourseProgress(ctx context.Context, userID, courseID string) (*CourseProgress, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return &CourseProgress{
		CourseID: courseID,
		Lessons:  learning.States(course, progress),
		Summary:  learning.Summarize(course, progress),
	}, nil
}

func (s *progressService) LessonState(ctx context.Context, userID, courseID, moduleID, lessonID string) (learning.LessonState, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return learning.LessonState{}, err
	}
	st, err := learning.State(course, progress, moduleID, lessonID)
	if errors.Is(err, learning.ErrLessonNotFound) {
		return learning.LessonState{}, ErrLessonNotFound
	}
	return st, err
}

func (s *progressService) Complete(ctx context.Context, userID, courseID, lessonID string) (learning.LessonState, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return learning.LessonState{}, err
	}
	lp, err := learning.MarkComplete(course, progress, lessonID, s.now())
	if err != nil {
		if errors.Is(err, learning.ErrLessonNotFound) {
			return learning.LessonState{}, ErrLessonNotFound
		}
		return learning.LessonState{}, err
	}
	lp.UserID = userID
	if err := s.repo.UpsertProgress(ctx, &lp); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("lesson_id", lessonID).Msg("Failed to save lesson completion")
		return learning.LessonState{}, err
	}
	if learning.IsEligible(course, progress) {
		s.scheduleCertificate(ctx, userID, courseID)
	}
	return learning.State(course, progress, "", lessonID)
}

func (s *progressService) scheduleCertificate(ctx context.Context, userID, courseID string) {
	if s.certs == nil {
		return
	}
	if err := s.certs.EnqueueEvaluation(ctx, userID, courseID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to enqueue certificate evaluation")
	}
}

func (s *progressService) Reset(ctx context.Context, userID, courseID string) error {
	if _, err := s.loader.access.RequireAccess(ctx, userID, courseID); err != nil {
		return err
	}
	if err := s.repo.DeleteProgress(ctx, userID, courseID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to reset progress")
		return err
	}
	return nil
}
