package service

import (
	"context"
	"errors"
	"time"

	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/repository"

	"github.com/rs/zerolog"
)

// QuizSubmission is the outcome of one graded attempt.
type QuizSubmission struct {
	Attempt *model.QuizAttempt   `json:"attempt"`
	Result  learning.QuizResult  `json:"result"`
	Lesson  learning.LessonState `json:"lesson"`
}

type QuizService interface {
	Submit(ctx context.Context, userID, courseID, lessonID string, answers learning.Answers) (*QuizSubmission, error)
	Attempts(ctx context.Context, userID, courseID, lessonID string, limit int) ([]model.QuizAttempt, error)
}

type quizService struct {
	loader    *learnerLoader
	progress  repository.ProgressRepository
	attempts  repository.QuizAttemptRepository
	certs     CertificateScheduler
	threshold int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQuizService creates a QuizService. threshold is the pass mark for quizzes that do not set their own.
func NewQuizService(courses CourseService, progress repository.ProgressRepository, attempts repository.QuizAttemptRepository, access EnrollmentService, certs CertificateScheduler, threshold int, logger zerolog.Logger) QuizService {
	return &quizService{
		loader:    &learnerLoader{courses: courses, progress: progress, access: access},
		progress:  progress,
		attempts:  attempts,
		certs:     certs,
		threshold: threshold,
		now:       time.Now,
		logger:    logger.With().Str("service", "QuizService").Logger(),
	}
}

// Submit grades the answers, records the attempt and completes the lesson on a pass.
// A failed attempt never clears an earlier pass.
func (s *quizService) Submit(ctx context.Context, userID, courseID, lessonID string, answers learning.Answers) (*QuizSubmission, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	lesson, err := learning.RequireUnlocked(course, progress, lessonID)
	if err != nil {
		if errors.Is(err, learning.ErrLessonNotFound) {
			return nil, ErrLessonNotFound
		}
		return nil, err
	}
	if lesson.Type != model.LessonQuiz {
		return nil, ErrNotQuizLesson
	}

	if answers == nil {
		answers = learning.Answers{}
	}
	result := learning.Grade(lesson.Content.Questions, answers, learning.PassThreshold(lesson, s.threshold))
	attempt := &model.QuizAttempt{
		UserID:   userID,
		CourseID: courseID,
		LessonID: lessonID,
		Answers:  answers,
		Score:    result.Percent,
		Passed:   result.Passed,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("lesson_id", lessonID).Msg("Failed to record quiz attempt")
		return nil, err
	}

	if result.Passed && !progress.Get(lessonID).Completed {
		lp, err := learning.CompleteQuiz(course, progress, lessonID, s.now())
		if err != nil {
			return nil, err
		}
		lp.UserID = userID
		if err := s.progress.UpsertProgress(ctx, &lp); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Str("lesson_id", lessonID).Msg("Failed to save quiz completion")
			return nil, err
		}
		if learning.IsEligible(course, progress) && s.certs != nil {
			if err := s.certs.EnqueueEvaluation(ctx, userID, courseID); err != nil {
				s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to enqueue certificate evaluation")
			}
		}
	}

	state, err := learning.State(course, progress, "", lessonID)
	if err != nil {
		return nil, err
	}
	return &QuizSubmission{Attempt: attempt, Result: result, Lesson: state}, nil
}

func (s *quizService) Attempts(ctx context.Context, userID, courseID, lessonID string, limit int) ([]model.QuizAttempt, error) {
	if _, err := s.loader.access.RequireAccess(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, userID, lessonID, limit)
}
