package flow

import (
	"context"
	"fmt"

	"go-erp/internal/features/role"
	"go-erp/pkg/condition"

	"go.uber.org/zap"
)

// Matcher picks the active flow that governs a document event.
type Matcher struct {
	repo   FlowRepository
	cache  *condition.Cache
	logger *zap.Logger
}

func NewMatcher(repo FlowRepository, cache *condition.Cache, logger *zap.Logger) *Matcher {
	return &Matcher{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("flow.matcher"),
	}
}

// Match returns a snapshot of the first active flow for (module, trigger) whose
// condition holds for doc, trying flows by priority then id. It returns nil, nil
// when no flow applies.
//
// A condition that fails to compile or evaluate is logged and counts as no
// match. Two candidates with the same normalized condition make the whole
// match fail with ErrAmbiguousFlow.
func (m *Matcher) Match(ctx context.Context, module role.Module, trigger Trigger, doc map[string]any) (*FlowDefinitionSnapshot, error) {
	candidates, err := m.repo.List(ctx, ListFilter{Module: module, Trigger: trigger, Status: StatusActive})
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	sortFlows(candidates)

	seen := make(map[string]string, len(candidates))
	for _, f := range candidates {
		key := conditionKey(m.cache, f.Condition)
		if other, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: flows %s and %s on %s/%s share condition %q",
				ErrAmbiguousFlow, other, f.ID, module, trigger, f.Condition)
		}
		seen[key] = f.ID
	}

	for i := range candidates {
		f := &candidates[i]
		ok, err := m.cache.Evaluate(f.Condition, doc)
		if err != nil {
			m.logger.Warn("flow condition not evaluable, treating as no match",
				zap.String("flow_id", f.ID),
				zap.String("condition", f.Condition),
				zap.Error(fmt.Errorf("%w: %v", ErrConditionEval, err)),
			)
			continue
		}
		if ok {
			return f.Snapshot(), nil
		}
	}
	return nil, nil
}
