package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-erp/internal/config"
	"go-erp/internal/features/approval"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCanceller struct {
	svc    approval.ApprovalService
	calls  []string
	failID string
}

func (c *stubCanceller) Cancel(ctx context.Context, id, actor, reason string) (*approval.ApprovalRequest, error) {
	c.calls = append(c.calls, id)
	if id == c.failID {
		return nil, errors.New("store unavailable")
	}
	req, _, err := c.svc.Cancel(ctx, id, actor, reason)
	return req, err
}

func seed(t *testing.T, svc approval.ApprovalService, docID string) *approval.ApprovalRequest {
	t.Helper()
	req, _, _, err := svc.Create(context.Background(), approval.SubmitInput{
		Module:       role.ModulePurchase,
		Trigger:      flow.TriggerCreate,
		DocumentType: "purchase_order",
		DocumentID:   docID,
		SubmittedBy:  "clerk",
	}, &flow.FlowDefinitionSnapshot{
		FlowID: "f1",
		Steps:  []flow.ApprovalStepDef{{Order: 1, Role: "manager", Action: flow.StepApprove, Required: true}},
	})
	require.NoError(t, err)
	return req
}

func newSweeper(t *testing.T, ttl time.Duration) (*ExpiryService, approval.ApprovalService, *stubCanceller) {
	t.Helper()
	svc := approval.NewApprovalService(approval.NewMemoryRequestRepository(), approval.NewKeyedMutex(), zap.NewNop())
	c := &stubCanceller{svc: svc}
	s := NewExpiryService(svc, c, &config.Config{ApprovalTTL: ttl, ExpirySchedule: "@every 1m"}, zap.NewNop())
	return s, svc, c
}

func TestSweepCancelsStaleRequests(t *testing.T) {
	s, svc, c := newSweeper(t, time.Hour)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	impl := svc.(*approval.ApprovalServiceImpl)

	impl.Now = func() time.Time { return t0.Add(-2 * time.Hour) }
	old := seed(t, svc, "PO-1")
	done := seed(t, svc, "PO-3")
	_, _, err := svc.Cancel(ctx, done.ID, "clerk", "recalled")
	require.NoError(t, err)

	impl.Now = func() time.Time { return t0 }
	fresh := seed(t, svc, "PO-2")

	s.now = func() time.Time { return t0 }
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{old.ID}, c.calls)

	got, err := svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusCancelled, got.Status)
	assert.Equal(t, approval.SystemActor, got.ResolvedBy)
	assert.Contains(t, got.Reason, "expired")

	got, err = svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, got.Status)
}

func TestSweepKeepsGoingAfterFailure(t *testing.T) {
	s, svc, c := newSweeper(t, time.Minute)
	ctx := context.Background()

	a := seed(t, svc, "PO-1")
	b := seed(t, svc, "PO-2")
	c.failID = a.ID
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := s.Sweep(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, c.calls)

	got, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusCancelled, got.Status)
}

func TestDisabledWithoutTTL(t *testing.T) {
	s, svc, c := newSweeper(t, 0)
	seed(t, svc, "PO-1")
	s.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, c.calls)

	require.NoError(t, s.Start())
	s.Stop(context.Background())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, _, _ := newSweeper(t, time.Hour)
	s.schedule = "every now and then"
	assert.Error(t, s.Start())

	s.schedule = "@every 1h"
	require.NoError(t, s.Start())
	s.Stop(context.Background())
}
