package flow

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"go-erp/internal/features/role"
	"go-erp/pkg/condition"
	"go-erp/pkg/validation"
)

// Trigger is the document lifecycle event that starts flow matching.
type Trigger string

const (
	TriggerCreate Trigger = "create"
	TriggerUpdate Trigger = "update"
	TriggerDelete Trigger = "delete"
	TriggerAdjust Trigger = "adjust"
	TriggerSubmit Trigger = "submit"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerCreate, TriggerUpdate, TriggerDelete, TriggerAdjust, TriggerSubmit:
		return true
	}
	return false
}

// StepAction is what a step asks of its role.
type StepAction string

const (
	StepApprove StepAction = "approve"
	StepReview  StepAction = "review"
	StepNotify  StepAction = "notify"
)

func (a StepAction) Valid() bool {
	switch a {
	case StepApprove, StepReview, StepNotify:
		return true
	}
	return false
}

// NeedsDecision reports whether a human must act before the step is satisfied.
// Notify steps satisfy themselves when they become current.
func (a StepAction) NeedsDecision() bool {
	switch a {
	case StepApprove, StepReview:
		return true
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

func init() {
	validation.RegisterEnum("flow_trigger", func(s string) bool { return Trigger(s).Valid() })
	validation.RegisterEnum("step_action", func(s string) bool { return StepAction(s).Valid() })
	validation.RegisterEnum("flow_status", func(s string) bool { return Status(s).Valid() })
}

// ApprovalStepDef is one ordered stage of a flow.
type ApprovalStepDef struct {
	Order    int         `json:"order" bson:"order" validate:"min=1"`
	Role     role.RoleID `json:"role" bson:"role" validate:"required"`
	Action   StepAction  `json:"action" bson:"action" validate:"step_action"`
	Required bool        `json:"required" bson:"required"`
}

// FlowDefinition is a configured approval policy for a module and trigger.
type FlowDefinition struct {
	ID        string            `json:"id" bson:"_id"`
	Name      string            `json:"name" bson:"name" validate:"required"`
	Module    role.Module       `json:"module" bson:"module" validate:"erp_module"`
	Trigger   Trigger           `json:"trigger" bson:"trigger" validate:"flow_trigger"`
	Condition string            `json:"condition,omitempty" bson:"condition,omitempty"`
	Priority  int               `json:"priority" bson:"priority"` // Evaluation order (0 = first)
	Steps     []ApprovalStepDef `json:"steps" bson:"steps" validate:"required,min=1,dive"`
	Status    Status            `json:"status" bson:"status" validate:"flow_status"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
}

// Validate checks field values, the step sequence and the condition syntax,
// and sorts the steps by order.
func (f *FlowDefinition) Validate() error {
	if f.Status == "" {
		f.Status = StatusActive
	}
	if err := validation.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}

	sort.SliceStable(f.Steps, func(i, j int) bool { return f.Steps[i].Order < f.Steps[j].Order })
	for i, s := range f.Steps {
		if s.Order != i+1 {
			return fmt.Errorf("%w: step orders must run 1..%d without gaps or duplicates, got %d at position %d",
				ErrInvalidFlow, len(f.Steps), s.Order, i+1)
		}
	}

	if _, err := condition.Compile(f.Condition); err != nil {
		return fmt.Errorf("%w: condition: %v", ErrInvalidFlow, err)
	}
	return nil
}

// conditionKey is the normalized condition used to detect ambiguous flows.
// Conditions that do not parse compare by their trimmed source.
func conditionKey(cache *condition.Cache, src string) string {
	expr, err := cache.Compile(src)
	if err != nil {
		return "!" + src
	}
	return expr.String()
}

// FlowDefinitionSnapshot is the frozen copy of a flow an approval request is
// created against. Later edits to the flow never reach it.
type FlowDefinitionSnapshot struct {
	FlowID   string            `json:"flow_id" bson:"flow_id"`
	FlowName string            `json:"flow_name" bson:"flow_name"`
	Module   role.Module       `json:"module" bson:"module"`
	Trigger  Trigger           `json:"trigger" bson:"trigger"`
	Steps    []ApprovalStepDef `json:"steps" bson:"steps"`
}

func (f *FlowDefinition) Snapshot() *FlowDefinitionSnapshot {
	return &FlowDefinitionSnapshot{
		FlowID:   f.ID,
		FlowName: f.Name,
		Module:   f.Module,
		Trigger:  f.Trigger,
		Steps:    slices.Clone(f.Steps),
	}
}
