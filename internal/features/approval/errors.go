package approval

import (
	"errors"
	"fmt"
)

var (
	ErrRequestNotFound   = errors.New("approval request not found")
	ErrForbidden         = errors.New("actor does not hold the role required by the current step")
	ErrOutOfSequence     = errors.New("decision targets a step that is not current")
	ErrStepRequired      = errors.New("decision must name the step it applies to")
	ErrAlreadyResolved   = errors.New("approval request is already resolved")
	ErrDuplicateDecision = errors.New("decision already recorded for this step")
	ErrInvalidOutcome    = errors.New("invalid decision outcome")
	ErrVersionConflict   = errors.New("approval request was modified concurrently")
	ErrDuplicatePending  = errors.New("a pending request already exists for this document")
	ErrLockTimeout       = errors.New("timed out acquiring request lock")
)

// DecisionError reports a benign conflict: the request was already resolved,
// or the step already has a decision. It carries the state the caller should
// treat as the result.
type DecisionError struct {
	Err         error
	Status      Status
	CurrentStep int
	Existing    *ApprovalDecision
}

func (e *DecisionError) Error() string {
	if e.Existing != nil {
		return fmt.Sprintf("%v: step %d already %s by %s", e.Err, e.Existing.StepOrder, e.Existing.Outcome, e.Existing.ActorID)
	}
	return fmt.Sprintf("%v: status %s", e.Err, e.Status)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

func alreadyResolved(req *ApprovalRequest) *DecisionError {
	return &DecisionError{Err: ErrAlreadyResolved, Status: req.Status, CurrentStep: req.CurrentStep}
}

func duplicate(req *ApprovalRequest, existing *ApprovalDecision) *DecisionError {
	d := *existing
	return &DecisionError{Err: ErrDuplicateDecision, Status: req.Status, CurrentStep: req.CurrentStep, Existing: &d}
}
