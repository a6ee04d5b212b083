package approval

import (
	"fmt"
	"slices"
	"time"

	"go-erp/internal/events"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"
)

// Decision is an incoming human decision on a request.
type Decision struct {
	ActorID string
	Roles   []role.RoleID
	Outcome Outcome
	Comment string

	// Step is the 1-based order of the step the actor saw. A decision only
	// lands on that step, so a retry or a lost race never spills onto the next
	// one.
	Step int
}

// Check runs the decision preconditions against req in order and returns the
// step the decision applies to. It never mutates req.
//
//  1. outcome must be approve or reject, and a step must be named
//  2. request must be pending
//  3. the named step must be the current one
//  4. actor must hold the current step's role
//  5. actor must not have decided this step already
func Check(req *ApprovalRequest, d Decision) (flow.ApprovalStepDef, error) {
	if !d.Outcome.Human() {
		return flow.ApprovalStepDef{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, d.Outcome)
	}
	if d.Step < 1 {
		return flow.ApprovalStepDef{}, ErrStepRequired
	}
	if req.Status != StatusPending {
		return flow.ApprovalStepDef{}, alreadyResolved(req)
	}

	if d.Step != req.CurrentStep {
		if d.Step < req.CurrentStep {
			if eff := req.EffectiveDecision(d.Step); eff != nil {
				return flow.ApprovalStepDef{}, duplicate(req, eff)
			}
		}
		return flow.ApprovalStepDef{}, fmt.Errorf("%w: step %d, current step is %d", ErrOutOfSequence, d.Step, req.CurrentStep)
	}

	step, ok := req.Step(req.CurrentStep)
	if !ok {
		return flow.ApprovalStepDef{}, fmt.Errorf("%w: request %s has no step %d", ErrOutOfSequence, req.ID, req.CurrentStep)
	}
	if !slices.Contains(d.Roles, step.Role) {
		return flow.ApprovalStepDef{}, fmt.Errorf("%w: step %d requires role %s", ErrForbidden, step.Order, step.Role)
	}
	if prior := req.DecisionBy(d.ActorID, step.Order); prior != nil {
		return flow.ApprovalStepDef{}, duplicate(req, prior)
	}
	return step, nil
}

// Start places a new request on its first step and settles any leading
// notify steps. The request may come out already approved.
func Start(req *ApprovalRequest, now time.Time) []events.Event {
	req.Status = StatusPending
	req.CurrentStep = 1
	req.UpdatedAt = now

	evs := []events.Event{newEvent(req, events.KindSubmitted, req.SubmittedBy, now)}
	return append(evs, settle(req, now)...)
}

// Apply records d on the current step and transitions req. Callers must run
// Check first.
//
// A required rejection ends the request. An optional rejection is recorded
// but leaves the step open. An approval satisfies the step and advances.
func Apply(req *ApprovalRequest, d Decision, now time.Time) []events.Event {
	step, _ := req.Step(req.CurrentStep)
	dec := ApprovalDecision{
		StepOrder: step.Order,
		ActorID:   d.ActorID,
		Role:      step.Role,
		Outcome:   d.Outcome,
		Comment:   d.Comment,
		DecidedAt: now,
	}
	req.UpdatedAt = now

	decided := newEvent(req, events.KindDecided, d.ActorID, now)
	decided.Step = step.Order
	decided.Role = string(step.Role)
	decided.Outcome = string(d.Outcome)
	decided.Comment = d.Comment
	evs := []events.Event{decided}

	switch d.Outcome {
	case OutcomeReject:
		if !step.Required {
			req.Decisions = append(req.Decisions, dec)
			return evs
		}
		dec.Effective = true
		req.Decisions = append(req.Decisions, dec)
		return append(evs, resolve(req, StatusRejected, d.ActorID, d.Comment, now))

	case OutcomeApprove:
		dec.Effective = true
		req.Decisions = append(req.Decisions, dec)
		return append(evs, advance(req, d.ActorID, now)...)
	}
	return evs
}

// Cancel moves a pending request to cancelled.
func Cancel(req *ApprovalRequest, actorID, reason string, now time.Time) ([]events.Event, error) {
	if req.Status != StatusPending {
		return nil, alreadyResolved(req)
	}
	req.UpdatedAt = now
	return []events.Event{resolve(req, StatusCancelled, actorID, reason, now)}, nil
}

// advance moves past the current, satisfied step.
func advance(req *ApprovalRequest, actorID string, now time.Time) []events.Event {
	if req.CurrentStep >= req.TotalSteps() {
		return []events.Event{resolve(req, StatusApproved, actorID, "", now)}
	}
	req.CurrentStep++
	return settle(req, now)
}

// settle auto-satisfies notify steps until the request rests on a step that
// needs a human, or completes.
func settle(req *ApprovalRequest, now time.Time) []events.Event {
	var evs []events.Event
	for req.Status == StatusPending {
		step, ok := req.Step(req.CurrentStep)
		if !ok {
			return append(evs, resolve(req, StatusApproved, SystemActor, "", now))
		}
		if step.Action.NeedsDecision() {
			req.CurrentRole = step.Role
			return evs
		}

		req.Decisions = append(req.Decisions, ApprovalDecision{
			StepOrder: step.Order,
			ActorID:   SystemActor,
			Role:      step.Role,
			Outcome:   OutcomeNotifyAck,
			Effective: true,
			DecidedAt: now,
		})
		notify := newEvent(req, events.KindNotifyTriggered, SystemActor, now)
		notify.Step = step.Order
		notify.Role = string(step.Role)
		evs = append(evs, notify)

		if req.CurrentStep >= req.TotalSteps() {
			evs = append(evs, resolve(req, StatusApproved, SystemActor, "", now))
			break
		}
		req.CurrentStep++
	}
	return evs
}

func resolve(req *ApprovalRequest, status Status, actorID, reason string, now time.Time) events.Event {
	req.Status = status
	req.CurrentRole = ""
	req.ResolvedAt = &now
	req.ResolvedBy = actorID
	req.Reason = reason

	kind := events.KindApproved
	switch status {
	case StatusRejected:
		kind = events.KindRejected
	case StatusCancelled:
		kind = events.KindCancelled
	}
	ev := newEvent(req, kind, actorID, now)
	ev.Step = req.CurrentStep
	ev.Comment = reason
	return ev
}

func newEvent(req *ApprovalRequest, kind events.Kind, actorID string, now time.Time) events.Event {
	return events.Event{
		Kind:         kind,
		RequestID:    req.ID,
		Actor:        actorID,
		Module:       string(req.Module),
		DocumentType: req.DocumentType,
		DocumentID:   req.DocumentID,
		FlowName:     req.FlowName,
		SubmittedBy:  req.SubmittedBy,
		Timestamp:    now,
	}
}
