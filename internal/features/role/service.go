package role

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-erp/pkg/utils"
	"go-erp/pkg/validation"

	"go.uber.org/zap"
)

var (
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleExists   = errors.New("role already exists")
	ErrRoleInUse    = errors.New("role is still assigned to users")
	ErrSystemRole   = errors.New("cannot delete system role")
	ErrInvalidRole  = errors.New("invalid role")
)

// RoleReferenceCounter reports how many users reference a role.
type RoleReferenceCounter interface {
	CountUsersWithRole(ctx context.Context, id RoleID) (int64, error)
}

type RoleService interface {
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	GetRole(ctx context.Context, id RoleID) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id RoleID, role *Role) (*Role, error)
	DeleteRole(ctx context.Context, id RoleID) error

	// HasPermission is pure and served from the in-memory registry.
	HasPermission(actorRoles []RoleID, module Module, action Action) bool

	// Bootstrap seeds the default roles into an empty store and loads the registry.
	Bootstrap(ctx context.Context) error
	Reload(ctx context.Context) error
}

type RoleServiceImpl struct {
	RoleRepo RoleRepository
	Users    RoleReferenceCounter
	Registry *Registry
	Logger   *zap.Logger

	// serializes admin edits so registry reloads observe them in order
	mu sync.Mutex
}

func NewRoleService(roleRepo RoleRepository, users RoleReferenceCounter, registry *Registry, logger *zap.Logger) RoleService {
	return &RoleServiceImpl{
		RoleRepo: roleRepo,
		Users:    users,
		Registry: registry,
		Logger:   logger.Named("role"),
	}
}

func (s *RoleServiceImpl) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if role.ID == "" {
		role.ID = RoleID(utils.Slugify(role.Name))
	}
	if err := validation.Struct(role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	role.normalize()
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.IsSystem = false

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.RoleRepo.Create(ctx, role); err != nil {
		return nil, err
	}
	s.Logger.Info("role created", zap.String("role", string(role.ID)), zap.Int("grants", len(role.Permissions)))
	return role, s.reloadLocked(ctx)
}

func (s *RoleServiceImpl) GetRole(ctx context.Context, id RoleID) (*Role, error) {
	return s.RoleRepo.FindByID(ctx, id)
}

func (s *RoleServiceImpl) ListRoles(ctx context.Context) ([]Role, error) {
	return s.RoleRepo.List(ctx)
}

func (s *RoleServiceImpl) UpdateRole(ctx context.Context, id RoleID, role *Role) (*Role, error) {
	role.ID = id
	if err := validation.Struct(role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	role.normalize()
	role.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.RoleRepo.Update(ctx, role); err != nil {
		return nil, err
	}
	s.Logger.Info("role updated", zap.String("role", string(id)), zap.Int("grants", len(role.Permissions)))
	if err := s.reloadLocked(ctx); err != nil {
		return nil, err
	}
	return s.RoleRepo.FindByID(ctx, id)
}

// DeleteRole removes an unreferenced custom role. Role assignment is blocked
// from the reference count until the registry no longer knows the role.
func (s *RoleServiceImpl) DeleteRole(ctx context.Context, id RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock := s.Registry.lockReferences()
	defer unlock()

	role, err := s.RoleRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}

	n, err := s.Users.CountUsersWithRole(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d user(s)", ErrRoleInUse, n)
	}

	if err := s.RoleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("role deleted", zap.String("role", string(id)))
	return s.reloadLocked(ctx)
}

func (s *RoleServiceImpl) HasPermission(actorRoles []RoleID, module Module, action Action) bool {
	return s.Registry.HasPermission(actorRoles, module, action)
}

func (s *RoleServiceImpl) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.RoleRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		now := time.Now()
		for _, r := range DefaultRoles() {
			r.CreatedAt = now
			r.UpdatedAt = now
			if err := s.RoleRepo.Create(ctx, &r); err != nil && !errors.Is(err, ErrRoleExists) {
				return fmt.Errorf("seed role %s: %w", r.ID, err)
			}
		}
		s.Logger.Info("seeded default roles", zap.Int("count", len(DefaultRoles())))
	}
	return s.reloadLocked(ctx)
}

func (s *RoleServiceImpl) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *RoleServiceImpl) reloadLocked(ctx context.Context) error {
	roles, err := s.RoleRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("reload roles: %w", err)
	}
	s.Registry.Load(roles)
	return nil
}
