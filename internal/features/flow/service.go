package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-erp/internal/features/role"
	"go-erp/pkg/condition"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrFlowNotFound  = errors.New("flow not found")
	ErrFlowExists    = errors.New("flow already exists")
	ErrInvalidFlow   = errors.New("invalid flow definition")
	ErrFlowConflict  = errors.New("an active flow with the same module, trigger and condition already exists")
	ErrAmbiguousFlow = errors.New("ambiguous flow")
	ErrConditionEval = errors.New("condition evaluation failed")
	ErrUnknownRole   = errors.New("step role is not configured")
)

// RoleLookup reports whether a role id is configured.
type RoleLookup interface {
	Known(id role.RoleID) bool
}

type FlowService interface {
	CreateFlow(ctx context.Context, flow *FlowDefinition) (*FlowDefinition, error)
	GetFlow(ctx context.Context, id string) (*FlowDefinition, error)
	ListFlows(ctx context.Context, filter ListFilter) ([]FlowDefinition, error)
	UpdateFlow(ctx context.Context, id string, flow *FlowDefinition) (*FlowDefinition, error)
	SetStatus(ctx context.Context, id string, status Status) (*FlowDefinition, error)
	DeleteFlow(ctx context.Context, id string) error
}

type FlowServiceImpl struct {
	Repo   FlowRepository
	Roles  RoleLookup
	Cache  *condition.Cache
	Logger *zap.Logger

	// serializes admin edits so the overlap check sees a stable set
	mu sync.Mutex
}

func NewFlowService(repo FlowRepository, roles RoleLookup, cache *condition.Cache, logger *zap.Logger) FlowService {
	return &FlowServiceImpl{
		Repo:   repo,
		Roles:  roles,
		Cache:  cache,
		Logger: logger.Named("flow"),
	}
}

func (s *FlowServiceImpl) CreateFlow(ctx context.Context, flow *FlowDefinition) (*FlowDefinition, error) {
	if flow.ID == "" {
		flow.ID = primitive.NewObjectID().Hex()
	}
	if err := s.validate(flow); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateOverlaps(ctx, flow); err != nil {
		return nil, err
	}

	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	if err := s.Repo.Create(ctx, flow); err != nil {
		return nil, err
	}

	s.Logger.Info("flow created",
		zap.String("flow_id", flow.ID),
		zap.String("module", string(flow.Module)),
		zap.String("trigger", string(flow.Trigger)),
		zap.Int("steps", len(flow.Steps)),
	)
	return flow, nil
}

func (s *FlowServiceImpl) GetFlow(ctx context.Context, id string) (*FlowDefinition, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *FlowServiceImpl) ListFlows(ctx context.Context, filter ListFilter) ([]FlowDefinition, error) {
	return s.Repo.List(ctx, filter)
}

// UpdateFlow replaces a flow definition. Requests already created against the
// flow keep their own step snapshot.
func (s *FlowServiceImpl) UpdateFlow(ctx context.Context, id string, flow *FlowDefinition) (*FlowDefinition, error) {
	flow.ID = id
	if err := s.validate(flow); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateOverlaps(ctx, flow); err != nil {
		return nil, err
	}

	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now()
	if err := s.Repo.Update(ctx, flow); err != nil {
		return nil, err
	}
	s.Logger.Info("flow updated", zap.String("flow_id", id), zap.Int("steps", len(flow.Steps)))
	return flow, nil
}

func (s *FlowServiceImpl) SetStatus(ctx context.Context, id string, status Status) (*FlowDefinition, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFlow, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	flow.Status = status
	if err := s.validateOverlaps(ctx, flow); err != nil {
		return nil, err
	}
	flow.UpdatedAt = time.Now()
	if err := s.Repo.Update(ctx, flow); err != nil {
		return nil, err
	}
	s.Logger.Info("flow status changed", zap.String("flow_id", id), zap.String("status", string(status)))
	return flow, nil
}

func (s *FlowServiceImpl) DeleteFlow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("flow deleted", zap.String("flow_id", id))
	return nil
}

func (s *FlowServiceImpl) validate(flow *FlowDefinition) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	for _, step := range flow.Steps {
		if !s.Roles.Known(step.Role) {
			return fmt.Errorf("%w: step %d role %q", ErrUnknownRole, step.Order, step.Role)
		}
	}
	return nil
}

// validateOverlaps refuses to activate a flow that would make matching
// ambiguous for its module and trigger.
func (s *FlowServiceImpl) validateOverlaps(ctx context.Context, flow *FlowDefinition) error {
	if flow.Status != StatusActive {
		return nil
	}

	existing, err := s.Repo.List(ctx, ListFilter{Module: flow.Module, Trigger: flow.Trigger, Status: StatusActive})
	if err != nil {
		return err
	}

	key := conditionKey(s.Cache, flow.Condition)
	for _, ef := range existing {
		if ef.ID == flow.ID {
			continue
		}
		if conditionKey(s.Cache, ef.Condition) == key {
			return fmt.Errorf("%w: %s", ErrFlowConflict, ef.ID)
		}
	}
	return nil
}
