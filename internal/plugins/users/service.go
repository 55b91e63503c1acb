package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/validation"
)

// UserService handles user registration and lookup.
type UserService interface {
	Create(ctx context.Context, req CreateUserRequest) (*User, error)

	// GetByID returns the user, or a NotFound AppError.
	GetByID(ctx context.Context, id int64) (*User, error)

	List(ctx context.Context, opts pagination.ListOptions) ([]User, int, error)
}

// userService implements UserService.
type userService struct {
	repo UserRepository
}

// NewUserService creates a new user service.
func NewUserService(repo UserRepository) UserService {
	return &userService{repo: repo}
}

// Create normalizes the login to lower case, validates it, and stores the user.
func (s *userService) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	req.Login = strings.ToLower(strings.TrimSpace(req.Login))
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	exists, err := s.repo.LoginExists(ctx, req.Login)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking login: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("login is already taken")
	}

	user := &User{Login: req.Login}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user created", slog.Int64("user_id", user.ID), slog.String("login", user.Login))
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *userService) List(ctx context.Context, opts pagination.ListOptions) ([]User, int, error) {
	return s.repo.List(ctx, opts.Offset(), opts.PerPage)
}
