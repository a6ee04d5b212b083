package approval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(repo RequestRepository) *ApprovalServiceImpl {
	svc := NewApprovalService(repo, NewKeyedMutex(), zap.NewNop()).(*ApprovalServiceImpl)
	svc.Now = func() time.Time { return t0 }
	return svc
}

func snapshot(steps ...flow.ApprovalStepDef) *flow.FlowDefinitionSnapshot {
	for i := range steps {
		steps[i].Order = i + 1
	}
	return &flow.FlowDefinitionSnapshot{
		FlowID:   "flow-1",
		FlowName: "big purchases",
		Module:   role.ModulePurchase,
		Trigger:  flow.TriggerCreate,
		Steps:    steps,
	}
}

func submitInput(docID string) SubmitInput {
	return SubmitInput{
		Module:       role.ModulePurchase,
		Trigger:      flow.TriggerCreate,
		DocumentType: "purchase_order",
		DocumentID:   docID,
		SubmittedBy:  "clerk",
		Document:     map[string]any{"amount": 75000},
	}
}

func TestCreateIsIdempotentWhilePending(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryRequestRepository())
	snap := snapshot(step("manager", flow.StepApprove, true))

	first, evs, created, err := svc.Create(ctx, submitInput("PO-1"), snap)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, evs, 1)

	second, evs, created, err := svc.Create(ctx, submitInput("PO-1"), snap)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, evs)
	assert.Equal(t, first.ID, second.ID)

	other, _, created, err := svc.Create(ctx, submitInput("PO-2"), snap)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestDecideRaceSameStep(t *testing.T) {
	tests := []struct {
		name  string
		steps []flow.ApprovalStepDef
		pin   int
	}{
		{"single step", []flow.ApprovalStepDef{step("manager", flow.StepApprove, true)}, 1},
		{"next step same role", []flow.ApprovalStepDef{
			step("manager", flow.StepApprove, true),
			step("manager", flow.StepApprove, true),
			step("admin", flow.StepApprove, true),
		}, 1},
		{"next step other role", []flow.ApprovalStepDef{
			step("manager", flow.StepApprove, true),
			step("accountant", flow.StepApprove, true),
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for round := 0; round < 50; round++ {
				ctx := context.Background()
				svc := newService(NewMemoryRequestRepository())
				req, _, _, err := svc.Create(ctx, submitInput("PO-1"), snapshot(tt.steps...))
				require.NoError(t, err)

				var (
					wg        sync.WaitGroup
					successes atomic.Int32
					benign    atomic.Int32
					start     = make(chan struct{})
				)
				for _, actor := range []string{"mgr-1", "mgr-2"} {
					wg.Add(1)
					go func(actor string) {
						defer wg.Done()
						<-start
						_, _, err := svc.Decide(ctx, req.ID, Decision{
							ActorID: actor,
							Roles:   []role.RoleID{"manager"},
							Outcome: OutcomeApprove,
							Step:    tt.pin,
						})
						switch {
						case err == nil:
							successes.Add(1)
						case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrDuplicateDecision):
							benign.Add(1)
						default:
							t.Errorf("unexpected error: %v", err)
						}
					}(actor)
				}
				close(start)
				wg.Wait()

				assert.EqualValues(t, 1, successes.Load())
				assert.EqualValues(t, 1, benign.Load())

				stored, err := svc.Get(ctx, req.ID)
				require.NoError(t, err)
				assert.Len(t, stored.Decisions, 1)
				if len(tt.steps) == 1 {
					assert.Equal(t, StatusApproved, stored.Status)
				} else {
					assert.Equal(t, 2, stored.CurrentStep, "cursor advanced exactly once")
				}
			}
		})
	}
}

func TestDecideRetryDoesNotSpillOntoNextStep(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryRequestRepository())
	req, _, _, err := svc.Create(ctx, submitInput("PO-1"), snapshot(
		step("manager", flow.StepApprove, true),
		step("manager", flow.StepApprove, true),
	))
	require.NoError(t, err)

	d := Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1}
	_, _, err = svc.Decide(ctx, req.ID, d)
	require.NoError(t, err)

	_, evs, err := svc.Decide(ctx, req.ID, d)
	assert.ErrorIs(t, err, ErrDuplicateDecision)
	assert.Empty(t, evs)

	stored, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 2, stored.CurrentStep)
	assert.Len(t, stored.Decisions, 1)

	_, _, err = svc.Decide(ctx, req.ID, Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove})
	assert.ErrorIs(t, err, ErrStepRequired)
}

// conflictingRepo loses the first n version races.
type conflictingRepo struct {
	*MemoryRequestRepository
	conflicts atomic.Int32
	interfere func(ctx context.Context, id string)
}

func (r *conflictingRepo) Replace(ctx context.Context, req *ApprovalRequest, expected int64) error {
	if r.conflicts.Add(-1) >= 0 {
		if r.interfere != nil {
			r.interfere(ctx, req.ID)
		}
		return ErrVersionConflict
	}
	return r.MemoryRequestRepository.Replace(ctx, req, expected)
}

func TestDecideRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := &conflictingRepo{MemoryRequestRepository: NewMemoryRequestRepository()}
	svc := newService(repo)

	req, _, _, err := svc.Create(ctx, submitInput("PO-1"), snapshot(step("manager", flow.StepApprove, true)))
	require.NoError(t, err)

	repo.conflicts.Store(2)
	got, evs, err := svc.Decide(ctx, req.ID, Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.EqualValues(t, 2, got.Version)
	assert.Len(t, evs, 2)
}

func TestDecideRechecksAfterConflict(t *testing.T) {
	ctx := context.Background()
	repo := &conflictingRepo{MemoryRequestRepository: NewMemoryRequestRepository()}
	svc := newService(repo)

	req, _, _, err := svc.Create(ctx, submitInput("PO-1"), snapshot(step("manager", flow.StepApprove, true)))
	require.NoError(t, err)

	// Another replica approves between our read and our write.
	repo.interfere = func(ctx context.Context, id string) {
		winner, _ := repo.MemoryRequestRepository.FindByID(ctx, id)
		d := Decision{ActorID: "mgr-other", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1}
		Apply(winner, d, t0)
		winner.Version++
		require.NoError(t, repo.MemoryRequestRepository.Replace(ctx, winner, winner.Version-1))
	}
	repo.conflicts.Store(1)

	got, _, err := svc.Decide(ctx, req.ID, Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	require.NotNil(t, got)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "mgr-other", got.ResolvedBy)
}

func TestDecideUnknownRequest(t *testing.T) {
	svc := newService(NewMemoryRequestRepository())
	_, _, err := svc.Decide(context.Background(), "nope", Decision{ActorID: "a", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1})
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestCancelThenDecide(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryRequestRepository())
	req, _, _, err := svc.Create(ctx, submitInput("PO-1"), snapshot(step("manager", flow.StepApprove, true)))
	require.NoError(t, err)

	got, evs, err := svc.Cancel(ctx, req.ID, "expiry", "approval window elapsed")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Len(t, evs, 1)

	_, _, err = svc.Decide(ctx, req.ID, Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1})
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// A cancelled request no longer blocks resubmission.
	again, _, created, err := svc.Create(ctx, submitInput("PO-1"), snapshot(step("manager", flow.StepApprove, true)))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestPendingQueries(t *testing.T) {
	ctx := context.Background()
	svc := newService(NewMemoryRequestRepository())
	snap := snapshot(step("manager", flow.StepApprove, true), step("admin", flow.StepApprove, true))

	r1, _, _, err := svc.Create(ctx, submitInput("PO-1"), snap)
	require.NoError(t, err)
	_, _, _, err = svc.Create(ctx, submitInput("PO-2"), snap)
	require.NoError(t, err)
	_, _, err = svc.Decide(ctx, r1.ID, Decision{ActorID: "mgr", Roles: []role.RoleID{"manager"}, Outcome: OutcomeApprove, Step: 1})
	require.NoError(t, err)

	forManager, err := svc.PendingForRoles(ctx, []role.RoleID{"manager"})
	require.NoError(t, err)
	require.Len(t, forManager, 1)
	assert.Equal(t, "PO-2", forManager[0].DocumentID)

	forAdmin, err := svc.PendingForRoles(ctx, []role.RoleID{"admin"})
	require.NoError(t, err)
	require.Len(t, forAdmin, 1)
	assert.Equal(t, r1.ID, forAdmin[0].ID)

	stale, err := svc.PendingBefore(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stale, 2)
	stale, err = svc.PendingBefore(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := km.Lock(ctx, "a")
	require.NoError(t, err)

	other, err := km.Lock(ctx, "b")
	require.NoError(t, err, "distinct keys do not contend")
	other()

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(tctx, "a")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock() // idempotent

	again, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	again()

	km.mu.Lock()
	assert.Empty(t, km.locks, "idle entries are dropped")
	km.mu.Unlock()
}
