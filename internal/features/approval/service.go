package approval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go-erp/internal/events"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxWriteAttempts bounds re-read/re-check cycles after a version conflict.
const maxWriteAttempts = 5

// SubmitInput describes the document event a request is created for.
type SubmitInput struct {
	Module       role.Module
	Trigger      flow.Trigger
	DocumentType string
	DocumentID   string
	SubmittedBy  string
	Document     map[string]any
}

type ApprovalService interface {
	// Create starts a request against snap. If a pending request for the same
	// document and trigger already exists it is returned with created=false.
	Create(ctx context.Context, in SubmitInput, snap *flow.FlowDefinitionSnapshot) (req *ApprovalRequest, evs []events.Event, created bool, err error)
	FindPending(ctx context.Context, documentType, documentID string, trigger flow.Trigger) (*ApprovalRequest, error)

	// Decide applies one decision atomically. On a *DecisionError the
	// returned request holds the state the decision lost to.
	Decide(ctx context.Context, requestID string, d Decision) (*ApprovalRequest, []events.Event, error)
	Cancel(ctx context.Context, requestID, actorID, reason string) (*ApprovalRequest, []events.Event, error)

	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	List(ctx context.Context, filter ListFilter) ([]ApprovalRequest, int64, error)
	PendingForRoles(ctx context.Context, roles []role.RoleID) ([]ApprovalRequest, error)
	PendingBefore(ctx context.Context, before time.Time) ([]ApprovalRequest, error)
}

type ApprovalServiceImpl struct {
	Repo   RequestRepository
	Locker Locker
	Logger *zap.Logger
	Now    func() time.Time
}

func NewApprovalService(repo RequestRepository, locker Locker, logger *zap.Logger) ApprovalService {
	return &ApprovalServiceImpl{
		Repo:   repo,
		Locker: locker,
		Logger: logger.Named("approval"),
		Now:    time.Now,
	}
}

func (s *ApprovalServiceImpl) Create(ctx context.Context, in SubmitInput, snap *flow.FlowDefinitionSnapshot) (*ApprovalRequest, []events.Event, bool, error) {
	if snap == nil || len(snap.Steps) == 0 {
		return nil, nil, false, fmt.Errorf("%w: flow snapshot has no steps", flow.ErrInvalidFlow)
	}

	now := s.Now()
	req := &ApprovalRequest{
		ID:           primitive.NewObjectID().Hex(),
		FlowID:       snap.FlowID,
		FlowName:     snap.FlowName,
		Steps:        slices.Clone(snap.Steps),
		Module:       in.Module,
		Trigger:      in.Trigger,
		DocumentType: in.DocumentType,
		DocumentID:   in.DocumentID,
		Document:     in.Document,
		SubmittedBy:  in.SubmittedBy,
		SubmittedAt:  now,
		Decisions:    []ApprovalDecision{},
		Version:      1,
	}
	evs := Start(req, now)

	if err := s.Repo.Insert(ctx, req); err != nil {
		if !errors.Is(err, ErrDuplicatePending) {
			return nil, nil, false, err
		}
		existing, ferr := s.Repo.FindPending(ctx, in.DocumentType, in.DocumentID, in.Trigger)
		if ferr != nil {
			return nil, nil, false, ferr
		}
		if existing == nil {
			return nil, nil, false, err
		}
		return existing, nil, false, nil
	}

	s.Logger.Info("approval request created",
		zap.String("request_id", req.ID),
		zap.String("actor", in.SubmittedBy),
		zap.String("flow_id", req.FlowID),
		zap.String("document_type", req.DocumentType),
		zap.String("document_id", req.DocumentID),
		zap.String("status", string(req.Status)),
	)
	return req, evs, true, nil
}

func (s *ApprovalServiceImpl) FindPending(ctx context.Context, documentType, documentID string, trigger flow.Trigger) (*ApprovalRequest, error) {
	return s.Repo.FindPending(ctx, documentType, documentID, trigger)
}

func (s *ApprovalServiceImpl) Decide(ctx context.Context, requestID string, d Decision) (*ApprovalRequest, []events.Event, error) {
	if !d.Outcome.Human() {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, d.Outcome)
	}
	if d.Step < 1 {
		return nil, nil, ErrStepRequired
	}

	var evs []events.Event
	req, err := s.mutate(ctx, requestID, func(req *ApprovalRequest, now time.Time) error {
		if _, err := Check(req, d); err != nil {
			return err
		}
		evs = Apply(req, d, now)
		return nil
	})
	if err != nil {
		return req, nil, err
	}

	s.Logger.Info("decision applied",
		zap.String("request_id", req.ID),
		zap.String("actor", d.ActorID),
		zap.String("outcome", string(d.Outcome)),
		zap.String("status", string(req.Status)),
		zap.Int("current_step", req.CurrentStep),
	)
	return req, evs, nil
}

func (s *ApprovalServiceImpl) Cancel(ctx context.Context, requestID, actorID, reason string) (*ApprovalRequest, []events.Event, error) {
	var evs []events.Event
	req, err := s.mutate(ctx, requestID, func(req *ApprovalRequest, now time.Time) error {
		var err error
		evs, err = Cancel(req, actorID, reason, now)
		return err
	})
	if err != nil {
		return req, nil, err
	}

	s.Logger.Info("approval request cancelled",
		zap.String("request_id", req.ID),
		zap.String("actor", actorID),
		zap.String("reason", reason),
	)
	return req, evs, nil
}

// mutate runs fn on the latest stored request under the request lock and
// writes the result with a version check. A lost version race re-reads and
// re-runs fn, so fn sees the winner's state.
func (s *ApprovalServiceImpl) mutate(ctx context.Context, requestID string, fn func(req *ApprovalRequest, now time.Time) error) (*ApprovalRequest, error) {
	unlock, err := s.Locker.Lock(ctx, "request:"+requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		req, err := s.Repo.FindByID(ctx, requestID)
		if err != nil {
			return nil, err
		}
		current := req.Clone()

		if err := fn(req, s.Now()); err != nil {
			return current, err
		}

		expected := req.Version
		req.Version = expected + 1
		err = s.Repo.Replace(ctx, req, expected)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		s.Logger.Warn("version conflict, retrying",
			zap.String("request_id", requestID),
			zap.Int64("version", expected),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w: request %s", ErrVersionConflict, requestID)
}

func (s *ApprovalServiceImpl) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *ApprovalServiceImpl) List(ctx context.Context, filter ListFilter) ([]ApprovalRequest, int64, error) {
	return s.Repo.List(ctx, filter)
}

func (s *ApprovalServiceImpl) PendingForRoles(ctx context.Context, roles []role.RoleID) ([]ApprovalRequest, error) {
	return s.Repo.ListPendingForRoles(ctx, roles)
}

func (s *ApprovalServiceImpl) PendingBefore(ctx context.Context, before time.Time) ([]ApprovalRequest, error) {
	return s.Repo.ListPendingBefore(ctx, before)
}
