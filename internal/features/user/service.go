package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-erp/internal/features/role"
	"go-erp/pkg/validation"

	"go.uber.org/zap"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrUnknownRole  = role.ErrUnknownRole
	ErrInvalidUser  = errors.New("invalid user")
)

var nowFunc = time.Now

// UserService is the actor directory: who holds which roles.
type UserService interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context, page, limit int64) ([]User, int64, error)
	AssignRoles(ctx context.Context, id string, roles []string) (*User, error)

	// RolesOf returns the roles held by an active actor. Unknown or inactive
	// actors hold no roles.
	RolesOf(ctx context.Context, actorID string) ([]role.RoleID, error)
	CountUsersWithRole(ctx context.Context, id role.RoleID) (int64, error)
}

type UserServiceImpl struct {
	UserRepo UserRepository
	Registry *role.Registry
	Logger   *zap.Logger
}

func NewUserService(repo UserRepository, registry *role.Registry, logger *zap.Logger) UserService {
	return &UserServiceImpl{
		UserRepo: repo,
		Registry: registry,
		Logger:   logger.Named("user"),
	}
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, u *User) (*User, error) {
	if err := validation.Struct(u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	now := nowFunc()
	u.CreatedAt = now
	u.UpdatedAt = now

	err := s.Registry.Reference(role.IDs(u.Roles), func() error {
		return s.UserRepo.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("user created", zap.String("user_id", u.ID), zap.Strings("roles", u.Roles))
	return u, nil
}

func (s *UserServiceImpl) GetUser(ctx context.Context, id string) (*User, error) {
	return s.UserRepo.FindByID(ctx, id)
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, page, limit int64) ([]User, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	return s.UserRepo.List(ctx, limit, (page-1)*limit)
}

func (s *UserServiceImpl) AssignRoles(ctx context.Context, id string, roles []string) (*User, error) {
	err := s.Registry.Reference(role.IDs(roles), func() error {
		return s.UserRepo.UpdateRoles(ctx, id, roles)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("roles assigned", zap.String("user_id", id), zap.Strings("roles", roles))
	return s.UserRepo.FindByID(ctx, id)
}

func (s *UserServiceImpl) RolesOf(ctx context.Context, actorID string) ([]role.RoleID, error) {
	u, err := s.UserRepo.FindByID(ctx, actorID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.Status == StatusInactive {
		return nil, nil
	}
	return role.IDs(u.Roles), nil
}

func (s *UserServiceImpl) CountUsersWithRole(ctx context.Context, id role.RoleID) (int64, error) {
	return s.UserRepo.CountByRole(ctx, string(id))
}
