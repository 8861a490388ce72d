package user

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	// Register always creates a customer and returns a session token.
	Register(ctx context.Context, username, password string) (string, *User, error)
	Login(ctx context.Context, username, password string) (string, *User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	ListCustomers(ctx context.Context) ([]*User, error)
	Promote(ctx context.Context, id uint) (*User, error)
	// EnsureDefaultAdmin creates the configured admin when no admin exists.
	// It reports whether an account was created.
	EnsureDefaultAdmin(ctx context.Context, username, password string) (bool, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, username, password string) (string, *User, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Register"),
	)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidInput
	}

	hashed, err := HashPassword(password)
	if err != nil {
		log.Error("failed to hash password", zap.Error(err))
		return "", nil, err
	}

	u, err := s.repo.Create(ctx, username, hashed, RoleCustomer)
	if err != nil {
		return "", nil, err
	}

	token, err := GenerateJWT(u)
	if err != nil {
		log.Error("failed to generate jwt", zap.Uint("user_id", u.ID), zap.Error(err))
		return "", nil, err
	}

	log.Info("user registered",
		zap.Uint("user_id", u.ID),
		zap.String("username", username),
	)
	return token, u, nil
}

func (s *service) Login(ctx context.Context, username, password string) (string, *User, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Login"),
	)

	u, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		log.Info("login rejected, unknown username")
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if !CheckPasswordHash(password, u.Password) {
		log.Info("login rejected, password mismatch", zap.Uint("user_id", u.ID))
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateJWT(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

func (s *service) ListCustomers(ctx context.Context) ([]*User, error) {
	return s.repo.ListByRole(ctx, RoleCustomer)
}

func (s *service) Promote(ctx context.Context, id uint) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return nil, ErrAlreadyAdmin
	}

	if err := s.repo.UpdateRole(ctx, id, RoleAdmin); err != nil {
		return nil, err
	}
	u.Role = RoleAdmin

	logger.FromCtx(ctx).Info("user promoted to admin",
		zap.String("layer", "service"),
		zap.Uint("user_id", id),
	)
	return u, nil
}

func (s *service) EnsureDefaultAdmin(ctx context.Context, username, password string) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "EnsureDefaultAdmin"),
	)

	n, err := s.repo.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		log.Warn("no admin account exists and ADMIN_PASSWORD is not set")
		return false, nil
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	u, err := s.repo.Create(ctx, username, hashed, RoleAdmin)
	if errors.Is(err, ErrUsernameExists) {
		// a customer already holds the name; promote is an explicit admin action
		log.Warn("default admin username is taken", zap.String("username", username))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log.Info("default admin created", zap.Uint("user_id", u.ID), zap.String("username", username))
	return true, nil
}
