package service

import (
	"context"
	"fmt"

	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CheckoutProvider starts a hosted payment for a course purchase.
type CheckoutProvider interface {
	CreateCourseCheckout(ctx context.Context, user *model.User, course *model.Course, tx *model.Transaction) (sessionID, url string, err error)
}

// EnrollResult is either an active enrollment or a checkout the student must complete.
type EnrollResult struct {
	Enrollment    *model.Enrollment
	TransactionID string
	CheckoutURL   string
}

type EnrollmentService interface {
	// Enroll joins a free course directly; a paid course starts a checkout.
	Enroll(ctx context.Context, userID, courseID string) (*EnrollResult, error)
	// Grant enrolls a user without payment on an admin's behalf.
	Grant(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
	ListForUser(ctx context.Context, userID string) ([]model.Enrollment, error)
	// RequireAccess fails with ErrNotEnrolled unless the user is enrolled or an admin.
	RequireAccess(ctx context.Context, userID, courseID string) (isAdmin bool, err error)
}

type enrollmentService struct {
	repo     repository.EnrollmentRepository
	txRepo   repository.TransactionRepository
	userRepo repository.UserRepository
	courses  CourseService
	checkout CheckoutProvider
	logger   zerolog.Logger
}

// NewEnrollmentService wires enrollment rules. checkout may be nil when payments are disabled.
func NewEnrollmentService(repo repository.EnrollmentRepository, txRepo repository.TransactionRepository, userRepo repository.UserRepository, courses CourseService, checkout CheckoutProvider, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		repo:     repo,
		txRepo:   txRepo,
		userRepo: userRepo,
		courses:  courses,
		checkout: checkout,
		logger:   logger.With().Str("service", "EnrollmentService").Logger(),
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, userID, courseID string) (*EnrollResult, error) {
	course, err := s.courses.GetCourse(ctx, courseID, false)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		e := &model.Enrollment{UserID: userID, CourseID: courseID, Source: model.EnrollmentFree}
		if err := s.repo.Create(ctx, e); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to enroll in free course")
			return nil, err
		}
		return &EnrollResult{Enrollment: e}, nil
	}

	enrolled, err := s.repo.Exists(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		e := &model.Enrollment{UserID: userID, CourseID: courseID, Source: model.EnrollmentPurchase}
		if err := s.repo.Create(ctx, e); err != nil {
			return nil, err
		}
		return &EnrollResult{Enrollment: e}, nil
	}
	if s.checkout == nil {
		return nil, ErrPaymentsDisabled
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	tx := &model.Transaction{
		UserID:      userID,
		CourseID:    courseID,
		AmountCents: course.PriceCents,
		Currency:    course.Currency,
		Status:      model.TransactionPending,
		Provider:    "stripe",
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to record pending transaction")
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	sessionID, url, err := s.checkout.CreateCourseCheckout(ctx, user, course, tx)
	if err != nil {
		if markErr := s.txRepo.MarkFailed(ctx, tx.ID); markErr != nil {
			s.logger.Error().Err(markErr).Str("transaction_id", tx.ID).Msg("Failed to mark transaction failed")
		}
		return nil, err
	}
	if err := s.txRepo.SetProviderRef(ctx, tx.ID, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to store checkout session id")
	}
	return &EnrollResult{TransactionID: tx.ID, CheckoutURL: url}, nil
}

func (s *enrollmentService) Grant(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if _, err := s.courses.GetCourse(ctx, courseID, true); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	e := &model.Enrollment{UserID: userID, CourseID: courseID, Source: model.EnrollmentAdmin}
	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to grant enrollment")
		return nil, err
	}
	return e, nil
}

func (s *enrollmentService) ListForUser(ctx context.Context, userID string) ([]model.Enrollment, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *enrollmentService) RequireAccess(ctx context.Context, userID, courseID string) (bool, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsAdmin() {
		return true, nil
	}
	ok, err := s.repo.Exists(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotEnrolled
	}
	return false, nil
}

// learnerLoader fetches a course tree and one student's progress for it.
type learnerLoader struct {
	courses  CourseService
	progress repository.ProgressRepository
	access   EnrollmentService
}

// load checks access and then reads the catalog and progress concurrently.
func (l *learnerLoader) load(ctx context.Context, userID, courseID string) (*model.Course, learning.Progress, error) {
	isAdmin, err := l.access.RequireAccess(ctx, userID, courseID)
	if err != nil {
		return nil, nil, err
	}
	return l.loadUnchecked(ctx, userID, courseID, isAdmin)
}

func (l *learnerLoader) loadUnchecked(ctx context.Context, userID, courseID string, includeDrafts bool) (*model.Course, learning.Progress, error) {
	var (
		course *model.Course
		rows   []model.LessonProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := l.courses.GetCourse(gctx, courseID, includeDrafts)
		course = c
		return err
	})
	g.Go(func() error {
		r, err := l.progress.ListProgress(gctx, userID, courseID)
		rows = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return course, learning.NewProgress(rows), nil
}
