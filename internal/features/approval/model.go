package approval

import (
	"slices"
	"time"

	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"
)

// SystemActor records decisions the engine makes itself.
const SystemActor = "system"

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Outcome string

const (
	OutcomeApprove   Outcome = "approve"
	OutcomeReject    Outcome = "reject"
	OutcomeNotifyAck Outcome = "notify-ack"
)

// Human reports whether an actor may submit this outcome. notify-ack is
// recorded by the engine only.
func (o Outcome) Human() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// ApprovalDecision is one actor's recorded outcome at one step. Only the
// decision that resolved its step is effective.
type ApprovalDecision struct {
	StepOrder int         `json:"step_order" bson:"step_order"`
	ActorID   string      `json:"actor_id" bson:"actor_id"`
	Role      role.RoleID `json:"role" bson:"role"`
	Outcome   Outcome     `json:"outcome" bson:"outcome"`
	Comment   string      `json:"comment,omitempty" bson:"comment,omitempty"`
	Effective bool        `json:"effective" bson:"effective"`
	DecidedAt time.Time   `json:"decided_at" bson:"decided_at"`
}

// ApprovalRequest is one run of a flow against one document. It owns a copy
// of the flow's steps taken at submission.
type ApprovalRequest struct {
	ID           string                 `json:"id" bson:"_id"`
	FlowID       string                 `json:"flow_id" bson:"flow_id"`
	FlowName     string                 `json:"flow_name" bson:"flow_name"`
	Steps        []flow.ApprovalStepDef `json:"steps" bson:"steps"`
	Module       role.Module            `json:"module" bson:"module"`
	Trigger      flow.Trigger           `json:"trigger" bson:"trigger"`
	DocumentType string                 `json:"document_type" bson:"document_type"`
	DocumentID   string                 `json:"document_id" bson:"document_id"`
	Document     map[string]any         `json:"document,omitempty" bson:"document,omitempty"`
	SubmittedBy  string                 `json:"submitted_by" bson:"submitted_by"`
	SubmittedAt  time.Time              `json:"submitted_at" bson:"submitted_at"`

	Status      Status             `json:"status" bson:"status"`
	CurrentStep int                `json:"current_step" bson:"current_step"`
	CurrentRole role.RoleID        `json:"current_role,omitempty" bson:"current_role,omitempty"`
	Decisions   []ApprovalDecision `json:"decisions" bson:"decisions"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	ResolvedBy  string             `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
	Reason      string             `json:"reason,omitempty" bson:"reason,omitempty"`

	// Version is bumped by every write; writes only land on the version they read.
	Version   int64     `json:"version" bson:"version"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (r *ApprovalRequest) TotalSteps() int {
	return len(r.Steps)
}

// Step returns the step with the given 1-based order.
func (r *ApprovalRequest) Step(order int) (flow.ApprovalStepDef, bool) {
	if order < 1 || order > len(r.Steps) {
		return flow.ApprovalStepDef{}, false
	}
	return r.Steps[order-1], true
}

// EffectiveDecision returns the decision that resolved the step, if any.
func (r *ApprovalRequest) EffectiveDecision(order int) *ApprovalDecision {
	for i := range r.Decisions {
		if d := &r.Decisions[i]; d.StepOrder == order && d.Effective {
			return d
		}
	}
	return nil
}

// DecisionBy returns the actor's decision at the step, if any.
func (r *ApprovalRequest) DecisionBy(actorID string, order int) *ApprovalDecision {
	for i := range r.Decisions {
		if d := &r.Decisions[i]; d.StepOrder == order && d.ActorID == actorID {
			return d
		}
	}
	return nil
}

// HumanDecisions counts decisions not recorded by the engine itself.
func (r *ApprovalRequest) HumanDecisions() int {
	n := 0
	for _, d := range r.Decisions {
		if d.ActorID != SystemActor {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to mutate.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	c := *r
	c.Steps = slices.Clone(r.Steps)
	c.Decisions = slices.Clone(r.Decisions)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	if r.Document != nil {
		c.Document = make(map[string]any, len(r.Document))
		for k, v := range r.Document {
			c.Document[k] = v
		}
	}
	return &c
}
