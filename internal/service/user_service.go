package service

import (
	"context"
	"errors"

	"lms/internal/model"
	"lms/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrAuthAdminMissing = errors.New("identity provider admin API is not configured")
)

type UserService interface {
	// Create upserts the profile for an authenticated user. New profiles are students.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, u *model.User) (*model.User, error)
	// GetRole returns the user's role, or "" if there is no profile.
	GetRole(ctx context.Context, userID string) (string, error)

	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	SetRole(ctx context.Context, userID, role string) (*model.User, error)
	SetBanned(ctx context.Context, userID string, banned bool) (*model.User, error)
	SendPasswordReset(ctx context.Context, userID, redirectTo string) error
}

type userService struct {
	userRepo repository.UserRepository
	auth     AuthAdmin
	logger   zerolog.Logger
}

// NewUserService creates a UserService. auth may be nil, in which case ban and
// password reset actions fail with ErrAuthAdminMissing.
func NewUserService(userRepo repository.UserRepository, auth AuthAdmin, logger zerolog.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		auth:     auth,
		logger:   logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Create(ctx context.Context, u *model.User) (*model.User, error) {
	err := s.userRepo.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *userService) UpdateProfile(ctx context.Context, u *model.User) (*model.User, error) {
	if _, err := s.Get(ctx, u.UserID); err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return s.Get(ctx, u.UserID)
}

func (s *userService) GetRole(ctx context.Context, userID string) (string, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil || u == nil {
		return "", err
	}
	return u.Role, nil
}

func (s *userService) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	return s.userRepo.ListUsers(ctx, f)
}

func (s *userService) SetRole(ctx context.Context, userID, role string) (*model.User, error) {
	if role != model.RoleStudent && role != model.RoleAdmin {
		return nil, ErrInvalidRole
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("role", role).Msg("User role changed")
	return s.Get(ctx, userID)
}

// SetBanned blocks or restores sign-in at the identity provider before recording it locally.
func (s *userService) SetBanned(ctx context.Context, userID string, banned bool) (*model.User, error) {
	if s.auth == nil {
		return nil, ErrAuthAdminMissing
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.auth.SetBanned(ctx, userID, banned); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update ban at identity provider")
		return nil, err
	}
	if err := s.userRepo.SetBanned(ctx, userID, banned); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Bool("banned", banned).Msg("User ban updated")
	return s.Get(ctx, userID)
}

func (s *userService) SendPasswordReset(ctx context.Context, userID, redirectTo string) error {
	if s.auth == nil {
		return ErrAuthAdminMissing
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.auth.SendPasswordReset(ctx, u.Email, redirectTo); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to send password reset")
		return err
	}
	return nil
}
