package role

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go-erp/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type RoleRepository interface {
	Create(ctx context.Context, role *Role) error
	FindByID(ctx context.Context, id RoleID) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id RoleID) error
}

// NewRoleRepository picks the Mongo implementation, or the in-memory one
// when no database is configured.
func NewRoleRepository(mongodb *database.MongodbDB) RoleRepository {
	if mongodb == nil {
		return NewMemoryRoleRepository()
	}
	return &RoleRepositoryImpl{
		Collection: mongodb.DB.Collection("roles"),
	}
}

type RoleRepositoryImpl struct {
	Collection *mongo.Collection
}

func (r *RoleRepositoryImpl) Create(ctx context.Context, role *Role) error {
	_, err := r.Collection.InsertOne(ctx, role)
	if mongo.IsDuplicateKeyError(err) {
		return ErrRoleExists
	}
	return err
}

func (r *RoleRepositoryImpl) FindByID(ctx context.Context, id RoleID) (*Role, error) {
	var role Role
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&role)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *RoleRepositoryImpl) List(ctx context.Context) ([]Role, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var roles []Role
	if err = cursor.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *RoleRepositoryImpl) Update(ctx context.Context, role *Role) error {
	update := bson.M{
		"$set": bson.M{
			"name":        role.Name,
			"description": role.Description,
			"permissions": role.Permissions,
			"updated_at":  role.UpdatedAt,
		},
	}

	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": role.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *RoleRepositoryImpl) Delete(ctx context.Context, id RoleID) error {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// MemoryRoleRepository keeps roles in process memory.
type MemoryRoleRepository struct {
	mu    sync.RWMutex
	roles map[RoleID]Role
}

func NewMemoryRoleRepository() *MemoryRoleRepository {
	return &MemoryRoleRepository{roles: make(map[RoleID]Role)}
}

func (r *MemoryRoleRepository) Create(ctx context.Context, role *Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[role.ID]; exists {
		return ErrRoleExists
	}
	r.roles[role.ID] = cloneRole(*role)
	return nil
}

func (r *MemoryRoleRepository) FindByID(ctx context.Context, id RoleID) (*Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	c := cloneRole(role)
	return &c, nil
}

func (r *MemoryRoleRepository) List(ctx context.Context) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, cloneRole(role))
	}
	slices.SortFunc(roles, func(a, b Role) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return roles, nil
}

func (r *MemoryRoleRepository) Update(ctx context.Context, role *Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.roles[role.ID]
	if !ok {
		return ErrRoleNotFound
	}
	existing.Name = role.Name
	existing.Description = role.Description
	existing.Permissions = slices.Clone(role.Permissions)
	existing.UpdatedAt = role.UpdatedAt
	r.roles[role.ID] = existing
	return nil
}

func (r *MemoryRoleRepository) Delete(ctx context.Context, id RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(r.roles, id)
	return nil
}

func cloneRole(r Role) Role {
	r.Permissions = slices.Clone(r.Permissions)
	return r
}
