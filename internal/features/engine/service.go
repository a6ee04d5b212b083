package engine

import (
	"context"
	"errors"
	"fmt"

	"go-erp/internal/events"
	"go-erp/internal/features/approval"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"

	"go.uber.org/zap"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrNotSubmitter      = errors.New("only the submitter or an approvals admin may cancel this request")
)

// Emitter receives engine events. Delivery is fire-and-forget.
type Emitter interface {
	Emit(ctx context.Context, ev events.Event)
}

// RoleDirectory resolves the roles an actor currently holds.
type RoleDirectory interface {
	RolesOf(ctx context.Context, actorID string) ([]role.RoleID, error)
}

// FlowMatcher picks the flow governing a document event.
type FlowMatcher interface {
	Match(ctx context.Context, module role.Module, trigger flow.Trigger, doc map[string]any) (*flow.FlowDefinitionSnapshot, error)
}

type SubmitStatus string

const (
	SubmitAutoApproved SubmitStatus = "auto-approved"
	SubmitPending      SubmitStatus = "pending"
	SubmitApproved     SubmitStatus = "approved"
)

type SubmitResult struct {
	RequestID string       `json:"request_id,omitempty"`
	Status    SubmitStatus `json:"status"`
	Created   bool         `json:"created"`
}

// Reasons reported when a decision was not applied.
const (
	ReasonAlreadyResolved   = "already_resolved"
	ReasonDuplicateDecision = "duplicate_decision"
)

type DecideResult struct {
	RequestID   string                     `json:"request_id"`
	Status      approval.Status            `json:"status"`
	CurrentStep int                        `json:"current_step"`
	Applied     bool                       `json:"applied"`
	Reason      string                     `json:"reason,omitempty"`
	Existing    *approval.ApprovalDecision `json:"existing,omitempty"`
}

// PendingItem summarizes a request waiting on an actor.
type PendingItem struct {
	RequestID    string       `json:"request_id"`
	Module       role.Module  `json:"module"`
	Trigger      flow.Trigger `json:"trigger"`
	DocumentType string       `json:"document_type"`
	DocumentID   string       `json:"document_id"`
	FlowName     string       `json:"flow_name"`
	CurrentStep  int          `json:"current_step"`
	TotalSteps   int          `json:"total_steps"`
	Role         role.RoleID  `json:"role"`
	SubmittedBy  string       `json:"submitted_by"`
}

type EngineService interface {
	CheckPermission(roles []role.RoleID, module role.Module, action role.Action) bool
	SubmitForApproval(ctx context.Context, in approval.SubmitInput) (*SubmitResult, error)
	Decide(ctx context.Context, requestID string, d approval.Decision) (*DecideResult, error)
	GetPendingFor(ctx context.Context, actorID string) ([]PendingItem, error)
	GetRequest(ctx context.Context, requestID string) (*approval.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter approval.ListFilter) ([]approval.ApprovalRequest, int64, error)

	// Cancel is for trusted callers such as the expiry job.
	Cancel(ctx context.Context, requestID, actorID, reason string) (*approval.ApprovalRequest, error)
	// Recall cancels on behalf of a user: the submitter, or a holder of approvals:delete.
	Recall(ctx context.Context, requestID, actorID string, roles []role.RoleID, reason string) (*approval.ApprovalRequest, error)
}

type EngineServiceImpl struct {
	Registry  *role.Registry
	Matcher   FlowMatcher
	Approvals approval.ApprovalService
	Directory RoleDirectory
	Locker    approval.Locker
	Emitter   Emitter
	Logger    *zap.Logger
}

func NewEngineService(
	registry *role.Registry,
	matcher FlowMatcher,
	approvals approval.ApprovalService,
	directory RoleDirectory,
	locker approval.Locker,
	emitter Emitter,
	logger *zap.Logger,
) EngineService {
	return &EngineServiceImpl{
		Registry:  registry,
		Matcher:   matcher,
		Approvals: approvals,
		Directory: directory,
		Locker:    locker,
		Emitter:   emitter,
		Logger:    logger.Named("engine"),
	}
}

func (s *EngineServiceImpl) CheckPermission(roles []role.RoleID, module role.Module, action role.Action) bool {
	return s.Registry.HasPermission(roles, module, action)
}

// ActionFor maps a document trigger onto the permission a submitter needs.
func ActionFor(trigger flow.Trigger) role.Action {
	switch trigger {
	case flow.TriggerUpdate, flow.TriggerAdjust:
		return role.ActionEdit
	case flow.TriggerDelete:
		return role.ActionDelete
	default:
		return role.ActionCreate
	}
}

// SubmitForApproval matches the document event against the active flows and
// opens a request when one applies. Submissions for the same document and
// trigger are serialized, and a pending request is returned as-is.
func (s *EngineServiceImpl) SubmitForApproval(ctx context.Context, in approval.SubmitInput) (*SubmitResult, error) {
	if err := validateSubmission(in); err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, fmt.Sprintf("document:%s:%s:%s", in.DocumentType, in.DocumentID, in.Trigger))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.Approvals.FindPending(ctx, in.DocumentType, in.DocumentID, in.Trigger)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.Logger.Info("submission already pending",
			zap.String("request_id", existing.ID),
			zap.String("document_type", in.DocumentType),
			zap.String("document_id", in.DocumentID),
		)
		return &SubmitResult{RequestID: existing.ID, Status: SubmitPending}, nil
	}

	snap, err := s.Matcher.Match(ctx, in.Module, in.Trigger, in.Document)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		s.Logger.Info("no approval flow applies",
			zap.String("module", string(in.Module)),
			zap.String("trigger", string(in.Trigger)),
			zap.String("document_type", in.DocumentType),
			zap.String("document_id", in.DocumentID),
		)
		return &SubmitResult{Status: SubmitAutoApproved}, nil
	}

	req, evs, created, err := s.Approvals.Create(ctx, in, snap)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, evs)

	status := SubmitPending
	if req.Status == approval.StatusApproved {
		status = SubmitApproved
	}
	return &SubmitResult{RequestID: req.ID, Status: status, Created: created}, nil
}

func validateSubmission(in approval.SubmitInput) error {
	switch {
	case !in.Module.Valid():
		return fmt.Errorf("%w: unknown module %q", ErrInvalidSubmission, in.Module)
	case !in.Trigger.Valid():
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidSubmission, in.Trigger)
	case in.DocumentType == "" || in.DocumentID == "":
		return fmt.Errorf("%w: document type and id are required", ErrInvalidSubmission)
	case in.SubmittedBy == "":
		return fmt.Errorf("%w: submitter is required", ErrInvalidSubmission)
	}
	return nil
}

// Decide applies d. The actor's roles come from the user directory, so a
// revoked role stops authorizing decisions at once; d.Roles is ignored.
// Losing a race, or retrying a decision that already landed, is not an
// error: the result reports applied=false with the state the request is in.
func (s *EngineServiceImpl) Decide(ctx context.Context, requestID string, d approval.Decision) (*DecideResult, error) {
	roles, err := s.Directory.RolesOf(ctx, d.ActorID)
	if err != nil {
		return nil, err
	}
	d.Roles = roles

	req, evs, err := s.Approvals.Decide(ctx, requestID, d)

	var de *approval.DecisionError
	if errors.As(err, &de) {
		reason := ReasonAlreadyResolved
		if errors.Is(err, approval.ErrDuplicateDecision) {
			reason = ReasonDuplicateDecision
		}
		s.Logger.Info("decision not applied",
			zap.String("request_id", requestID),
			zap.String("actor", d.ActorID),
			zap.String("reason", reason),
		)
		return &DecideResult{
			RequestID:   requestID,
			Status:      de.Status,
			CurrentStep: de.CurrentStep,
			Reason:      reason,
			Existing:    de.Existing,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.emit(ctx, evs)
	return &DecideResult{
		RequestID:   req.ID,
		Status:      req.Status,
		CurrentStep: req.CurrentStep,
		Applied:     true,
	}, nil
}

// GetPendingFor lists pending requests whose current step's role the actor
// holds, oldest first.
func (s *EngineServiceImpl) GetPendingFor(ctx context.Context, actorID string) ([]PendingItem, error) {
	roles, err := s.Directory.RolesOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	items := []PendingItem{}
	if len(roles) == 0 {
		return items, nil
	}

	reqs, err := s.Approvals.PendingForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		items = append(items, PendingItem{
			RequestID:    r.ID,
			Module:       r.Module,
			Trigger:      r.Trigger,
			DocumentType: r.DocumentType,
			DocumentID:   r.DocumentID,
			FlowName:     r.FlowName,
			CurrentStep:  r.CurrentStep,
			TotalSteps:   r.TotalSteps(),
			Role:         r.CurrentRole,
			SubmittedBy:  r.SubmittedBy,
		})
	}
	return items, nil
}

func (s *EngineServiceImpl) GetRequest(ctx context.Context, requestID string) (*approval.ApprovalRequest, error) {
	return s.Approvals.Get(ctx, requestID)
}

func (s *EngineServiceImpl) ListRequests(ctx context.Context, filter approval.ListFilter) ([]approval.ApprovalRequest, int64, error) {
	return s.Approvals.List(ctx, filter)
}

func (s *EngineServiceImpl) Cancel(ctx context.Context, requestID, actorID, reason string) (*approval.ApprovalRequest, error) {
	req, evs, err := s.Approvals.Cancel(ctx, requestID, actorID, reason)
	if err != nil {
		return req, err
	}
	s.emit(ctx, evs)
	return req, nil
}

func (s *EngineServiceImpl) Recall(ctx context.Context, requestID, actorID string, roles []role.RoleID, reason string) (*approval.ApprovalRequest, error) {
	req, err := s.Approvals.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SubmittedBy != actorID && !s.Registry.HasPermission(roles, role.ModuleApprovals, role.ActionDelete) {
		return nil, ErrNotSubmitter
	}
	return s.Cancel(ctx, requestID, actorID, reason)
}

func (s *EngineServiceImpl) emit(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		s.Emitter.Emit(ctx, ev)
	}
}
