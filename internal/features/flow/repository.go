package flow

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"go-erp/internal/database"
	"go-erp/internal/features/role"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// ListFilter narrows a flow listing. Zero fields match everything.
type ListFilter struct {
	Module  role.Module
	Trigger Trigger
	Status  Status
}

type FlowRepository interface {
	Create(ctx context.Context, flow *FlowDefinition) error
	FindByID(ctx context.Context, id string) (*FlowDefinition, error)
	List(ctx context.Context, filter ListFilter) ([]FlowDefinition, error)
	Update(ctx context.Context, flow *FlowDefinition) error
	Delete(ctx context.Context, id string) error
}

type FlowRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewFlowRepository(lc fx.Lifecycle, mongodb *database.MongodbDB) FlowRepository {
	if mongodb == nil {
		return NewMemoryFlowRepository()
	}
	repo := &FlowRepositoryImpl{
		Collection: mongodb.DB.Collection("flow_definitions"),
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repo.EnsureIndexes(ctx)
		},
	})
	return repo
}

func (r *FlowRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "module", Value: 1},
			{Key: "trigger", Value: 1},
			{Key: "status", Value: 1},
		},
	})
	return err
}

func (r *FlowRepositoryImpl) Create(ctx context.Context, flow *FlowDefinition) error {
	_, err := r.Collection.InsertOne(ctx, flow)
	return err
}

func (r *FlowRepositoryImpl) FindByID(ctx context.Context, id string) (*FlowDefinition, error) {
	var flow FlowDefinition
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&flow)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrFlowNotFound
		}
		return nil, err
	}
	return &flow, nil
}

func (r *FlowRepositoryImpl) List(ctx context.Context, filter ListFilter) ([]FlowDefinition, error) {
	query := bson.M{}
	if filter.Module != "" {
		query["module"] = filter.Module
	}
	if filter.Trigger != "" {
		query["trigger"] = filter.Trigger
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flows []FlowDefinition
	if err = cursor.All(ctx, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func (r *FlowRepositoryImpl) Update(ctx context.Context, flow *FlowDefinition) error {
	update := bson.M{
		"$set": bson.M{
			"name":       flow.Name,
			"module":     flow.Module,
			"trigger":    flow.Trigger,
			"condition":  flow.Condition,
			"priority":   flow.Priority,
			"steps":      flow.Steps,
			"status":     flow.Status,
			"updated_at": flow.UpdatedAt,
		},
	}
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": flow.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrFlowNotFound
	}
	return nil
}

func (r *FlowRepositoryImpl) Delete(ctx context.Context, id string) error {
	res, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrFlowNotFound
	}
	return nil
}

// MemoryFlowRepository keeps flow definitions in process memory.
type MemoryFlowRepository struct {
	mu    sync.RWMutex
	flows map[string]FlowDefinition
}

func NewMemoryFlowRepository() *MemoryFlowRepository {
	return &MemoryFlowRepository{flows: make(map[string]FlowDefinition)}
}

func (r *MemoryFlowRepository) Create(ctx context.Context, flow *FlowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[flow.ID]; ok {
		return ErrFlowExists
	}
	r.flows[flow.ID] = cloneFlow(*flow)
	return nil
}

func (r *MemoryFlowRepository) FindByID(ctx context.Context, id string) (*FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	c := cloneFlow(f)
	return &c, nil
}

func (r *MemoryFlowRepository) List(ctx context.Context, filter ListFilter) ([]FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []FlowDefinition
	for _, f := range r.flows {
		if filter.Module != "" && f.Module != filter.Module {
			continue
		}
		if filter.Trigger != "" && f.Trigger != filter.Trigger {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		out = append(out, cloneFlow(f))
	}
	sortFlows(out)
	return out, nil
}

func (r *MemoryFlowRepository) Update(ctx context.Context, flow *FlowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.flows[flow.ID]
	if !ok {
		return ErrFlowNotFound
	}
	next := cloneFlow(*flow)
	next.CreatedAt = existing.CreatedAt
	r.flows[flow.ID] = next
	return nil
}

func (r *MemoryFlowRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[id]; !ok {
		return ErrFlowNotFound
	}
	delete(r.flows, id)
	return nil
}

func cloneFlow(f FlowDefinition) FlowDefinition {
	f.Steps = slices.Clone(f.Steps)
	return f
}

// sortFlows orders by priority, then id.
func sortFlows(flows []FlowDefinition) {
	sort.SliceStable(flows, func(i, j int) bool {
		if flows[i].Priority != flows[j].Priority {
			return flows[i].Priority < flows[j].Priority
		}
		return flows[i].ID < flows[j].ID
	})
}
