package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go-erp/internal/events"
	"go-erp/internal/features/approval"
	"go-erp/internal/features/flow"
	"go-erp/internal/features/role"
	"go-erp/internal/features/user"
	"go-erp/pkg/condition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEmitter struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *recordingEmitter) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.evs))
	for i, e := range r.evs {
		out[i] = e.Kind
	}
	return out
}

func (r *recordingEmitter) count(k events.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

type fixture struct {
	engine  EngineService
	flows   flow.FlowService
	users   user.UserService
	emitter *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	reg := role.NewRegistry()
	reg.Load(role.DefaultRoles())
	cache := condition.NewCache()

	flowRepo := flow.NewMemoryFlowRepository()
	flows := flow.NewFlowService(flowRepo, reg, cache, logger)
	matcher := flow.NewMatcher(flowRepo, cache, logger)

	locker := approval.NewKeyedMutex()
	approvals := approval.NewApprovalService(approval.NewMemoryRequestRepository(), locker, logger)
	users := user.NewUserService(user.NewMemoryUserRepository(), reg, logger)

	em := &recordingEmitter{}
	f := &fixture{
		engine:  NewEngineService(reg, matcher, approvals, users, locker, em, logger),
		flows:   flows,
		users:   users,
		emitter: em,
	}

	ctx := context.Background()
	for _, u := range []user.User{
		{ID: "clerk", Username: "clerk", Roles: []string{"staff"}},
		{ID: "mgr-1", Username: "mgr-1", Roles: []string{"manager"}},
		{ID: "mgr-2", Username: "mgr-2", Roles: []string{"manager"}},
		{ID: "acc", Username: "acc", Roles: []string{"accountant"}},
		{ID: "root", Username: "root", Roles: []string{"admin"}},
	} {
		u := u
		_, err := users.CreateUser(ctx, &u)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) bigPurchaseFlow(t *testing.T) *flow.FlowDefinition {
	t.Helper()
	created, err := f.flows.CreateFlow(context.Background(), &flow.FlowDefinition{
		Name:      "big purchases",
		Module:    role.ModulePurchase,
		Trigger:   flow.TriggerCreate,
		Condition: "amount > 50000",
		Steps: []flow.ApprovalStepDef{
			{Order: 1, Role: "manager", Action: flow.StepReview, Required: true},
			{Order: 2, Role: "accountant", Action: flow.StepApprove, Required: true},
			{Order: 3, Role: "admin", Action: flow.StepApprove, Required: true},
		},
	})
	require.NoError(t, err)
	return created
}

func purchase(docID string, amount any) approval.SubmitInput {
	doc := map[string]any{}
	if amount != nil {
		doc["amount"] = amount
	}
	return approval.SubmitInput{
		Module:       role.ModulePurchase,
		Trigger:      flow.TriggerCreate,
		DocumentType: "purchase_order",
		DocumentID:   docID,
		SubmittedBy:  "clerk",
		Document:     doc,
	}
}

// as approves the given step. Roles are resolved from the fixture's users.
func as(actorID string, step int) approval.Decision {
	return approval.Decision{ActorID: actorID, Outcome: approval.OutcomeApprove, Step: step}
}

func rejectAs(actorID string, step int) approval.Decision {
	d := as(actorID, step)
	d.Outcome = approval.OutcomeReject
	return d
}

func TestScenarioAThreeStepRejectedAtAdmin(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-1", 75000))
	require.NoError(t, err)
	assert.Equal(t, SubmitPending, sub.Status)
	assert.True(t, sub.Created)

	req, err := f.engine.GetRequest(ctx, sub.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.CurrentStep)

	res, err := f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, res.CurrentStep)

	res, err = f.engine.Decide(ctx, sub.RequestID, as("acc", 2))
	require.NoError(t, err)
	assert.Equal(t, 3, res.CurrentStep)

	res, err = f.engine.Decide(ctx, sub.RequestID, rejectAs("root", 3))
	require.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, res.Status)
	assert.Equal(t, 3, res.CurrentStep)

	assert.Equal(t, []events.Kind{
		events.KindSubmitted,
		events.KindDecided,
		events.KindDecided,
		events.KindDecided,
		events.KindRejected,
	}, f.emitter.kinds())

	// Late decisions are benign no-ops that report the terminal state.
	res, err = f.engine.Decide(ctx, sub.RequestID, as("mgr-2", 1))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonAlreadyResolved, res.Reason)
	assert.Equal(t, approval.StatusRejected, res.Status)
}

func TestScenarioBConditionFalseAutoApproves(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-2", 10000))
	require.NoError(t, err)
	assert.Equal(t, SubmitAutoApproved, sub.Status)
	assert.Empty(t, sub.RequestID)

	_, total, err := f.engine.ListRequests(ctx, approval.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.emitter.kinds())
}

func TestUnevaluableConditionIsNoMatch(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	for name, amount := range map[string]any{"missing field": nil, "type mismatch": "lots"} {
		t.Run(name, func(t *testing.T) {
			sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-"+name, amount))
			require.NoError(t, err)
			assert.Equal(t, SubmitAutoApproved, sub.Status)
		})
	}
}

func TestScenarioCNotifyOnlyFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.flows.CreateFlow(ctx, &flow.FlowDefinition{
		Name:    "adjustment heads-up",
		Module:  role.ModuleAdjustments,
		Trigger: flow.TriggerAdjust,
		Steps:   []flow.ApprovalStepDef{{Order: 1, Role: "admin", Action: flow.StepNotify}},
	})
	require.NoError(t, err)

	sub, err := f.engine.SubmitForApproval(ctx, approval.SubmitInput{
		Module:       role.ModuleAdjustments,
		Trigger:      flow.TriggerAdjust,
		DocumentType: "stock_adjustment",
		DocumentID:   "ADJ-7",
		SubmittedBy:  "acc",
	})
	require.NoError(t, err)
	assert.Equal(t, SubmitApproved, sub.Status)

	req, err := f.engine.GetRequest(ctx, sub.RequestID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, req.Status)
	assert.Equal(t, 0, req.HumanDecisions())
	assert.Equal(t, 1, f.emitter.count(events.KindNotifyTriggered))
	assert.Equal(t, 1, f.emitter.count(events.KindApproved))
}

func TestSubmitIsIdempotentWhilePending(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	first, err := f.engine.SubmitForApproval(ctx, purchase("PO-3", 75000))
	require.NoError(t, err)
	second, err := f.engine.SubmitForApproval(ctx, purchase("PO-3", 90000))
	require.NoError(t, err)
	assert.Equal(t, first.RequestID, second.RequestID)
	assert.False(t, second.Created)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.SubmitForApproval(ctx, purchase("PO-4", 75000))
			if assert.NoError(t, err) {
				ids[i] = res.RequestID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	_, total, err := f.engine.ListRequests(ctx, approval.ListFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, 2, f.emitter.count(events.KindSubmitted))
}

func TestConcurrentDecisionsOnSameStep(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-5", 75000))
	require.NoError(t, err)

	results := make([]*DecideResult, 2)
	var wg sync.WaitGroup
	for i, actor := range []string{"mgr-1", "mgr-2"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			res, err := f.engine.Decide(ctx, sub.RequestID, as(actor, 1))
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i, actor)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Applied {
			applied++
		} else {
			assert.Contains(t, []string{ReasonAlreadyResolved, ReasonDuplicateDecision}, r.Reason)
		}
	}
	assert.Equal(t, 1, applied)

	req, err := f.engine.GetRequest(ctx, sub.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 2, req.CurrentStep)
	assert.Len(t, req.Decisions, 1)
}

func TestFlowEditDoesNotTouchInflightRequests(t *testing.T) {
	f := newFixture(t)
	def := f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-6", 75000))
	require.NoError(t, err)

	_, err = f.flows.UpdateFlow(ctx, def.ID, &flow.FlowDefinition{
		Name:      def.Name,
		Module:    def.Module,
		Trigger:   def.Trigger,
		Condition: def.Condition,
		Steps:     []flow.ApprovalStepDef{{Order: 1, Role: "admin", Action: flow.StepApprove, Required: true}},
	})
	require.NoError(t, err)

	req, err := f.engine.GetRequest(ctx, sub.RequestID)
	require.NoError(t, err)
	require.Len(t, req.Steps, 3)
	assert.Equal(t, role.RoleID("manager"), req.Steps[0].Role)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("root", 1))
	assert.ErrorIs(t, err, approval.ErrForbidden, "request still waits on the manager step")

	res, err := f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentStep)
}

func TestDecideCallerErrors(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-7", 75000))
	require.NoError(t, err)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("acc", 1))
	assert.ErrorIs(t, err, approval.ErrForbidden)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("acc", 2))
	assert.ErrorIs(t, err, approval.ErrOutOfSequence)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 0))
	assert.ErrorIs(t, err, approval.ErrStepRequired)

	_, err = f.engine.Decide(ctx, "missing", as("mgr-1", 1))
	assert.ErrorIs(t, err, approval.ErrRequestNotFound)

	d := as("mgr-1", 1)
	d.Outcome = approval.OutcomeNotifyAck
	_, err = f.engine.Decide(ctx, sub.RequestID, d)
	assert.ErrorIs(t, err, approval.ErrInvalidOutcome)
}

func TestDuplicateDecisionReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.flows.CreateFlow(ctx, &flow.FlowDefinition{
		Name:    "sales review",
		Module:  role.ModuleSales,
		Trigger: flow.TriggerCreate,
		Steps: []flow.ApprovalStepDef{
			{Order: 1, Role: "manager", Action: flow.StepReview, Required: false},
			{Order: 2, Role: "admin", Action: flow.StepApprove, Required: true},
		},
	})
	require.NoError(t, err)

	sub, err := f.engine.SubmitForApproval(ctx, approval.SubmitInput{
		Module: role.ModuleSales, Trigger: flow.TriggerCreate,
		DocumentType: "sales_order", DocumentID: "SO-1", SubmittedBy: "clerk",
	})
	require.NoError(t, err)

	res, err := f.engine.Decide(ctx, sub.RequestID, rejectAs("mgr-1", 1))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, approval.StatusPending, res.Status)
	assert.Equal(t, 1, res.CurrentStep)

	res, err = f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonDuplicateDecision, res.Reason)
	require.NotNil(t, res.Existing)
	assert.Equal(t, approval.OutcomeReject, res.Existing.Outcome)
}

func TestGetPendingFor(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-8", 75000))
	require.NoError(t, err)

	items, err := f.engine.GetPendingFor(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, PendingItem{
		RequestID:    sub.RequestID,
		Module:       role.ModulePurchase,
		Trigger:      flow.TriggerCreate,
		DocumentType: "purchase_order",
		DocumentID:   "PO-8",
		FlowName:     "big purchases",
		CurrentStep:  1,
		TotalSteps:   3,
		Role:         "manager",
		SubmittedBy:  "clerk",
	}, items[0])

	items, err = f.engine.GetPendingFor(ctx, "acc")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)

	items, err = f.engine.GetPendingFor(ctx, "acc")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	items, err = f.engine.GetPendingFor(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.engine.GetPendingFor(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRecall(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-9", 75000))
	require.NoError(t, err)

	_, err = f.engine.Recall(ctx, sub.RequestID, "mgr-1", []role.RoleID{"manager"}, "not yours")
	assert.ErrorIs(t, err, ErrNotSubmitter)

	req, err := f.engine.Recall(ctx, sub.RequestID, "clerk", []role.RoleID{"staff"}, "typo in quantity")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusCancelled, req.Status)
	assert.Equal(t, 1, f.emitter.count(events.KindCancelled))

	_, err = f.engine.Recall(ctx, sub.RequestID, "root", []role.RoleID{"admin"}, "again")
	assert.ErrorIs(t, err, approval.ErrAlreadyResolved)

	// The document can go through approval again.
	again, err := f.engine.SubmitForApproval(ctx, purchase("PO-9", 75000))
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.NotEqual(t, sub.RequestID, again.RequestID)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *approval.SubmitInput)
	}{
		{"unknown module", func(in *approval.SubmitInput) { in.Module = "warehouse" }},
		{"unknown trigger", func(in *approval.SubmitInput) { in.Trigger = "publish" }},
		{"no document id", func(in *approval.SubmitInput) { in.DocumentID = "" }},
		{"no submitter", func(in *approval.SubmitInput) { in.SubmittedBy = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := purchase("PO-10", 1)
			tt.mutate(&in)
			_, err := f.engine.SubmitForApproval(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidSubmission)
		})
	}
}

func TestCheckPermission(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.engine.CheckPermission([]role.RoleID{"staff"}, role.ModulePurchase, role.ActionCreate))
	assert.False(t, f.engine.CheckPermission([]role.RoleID{"staff"}, role.ModulePurchase, role.ActionDelete))
	assert.True(t, f.engine.CheckPermission([]role.RoleID{"staff", "accountant"}, role.ModuleApprovals, role.ActionExport))
	assert.False(t, f.engine.CheckPermission([]role.RoleID{"admin"}, "warehouse", role.ActionView))
	assert.False(t, f.engine.CheckPermission(nil, role.ModulePurchase, role.ActionView))
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, role.ActionCreate, ActionFor(flow.TriggerCreate))
	assert.Equal(t, role.ActionCreate, ActionFor(flow.TriggerSubmit))
	assert.Equal(t, role.ActionEdit, ActionFor(flow.TriggerUpdate))
	assert.Equal(t, role.ActionEdit, ActionFor(flow.TriggerAdjust))
	assert.Equal(t, role.ActionDelete, ActionFor(flow.TriggerDelete))
}

func TestDecisionStaysOnNamedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.flows.CreateFlow(ctx, &flow.FlowDefinition{
		Name:    "two managers",
		Module:  role.ModuleSales,
		Trigger: flow.TriggerCreate,
		Steps: []flow.ApprovalStepDef{
			{Order: 1, Role: "manager", Action: flow.StepApprove, Required: true},
			{Order: 2, Role: "manager", Action: flow.StepApprove, Required: true},
			{Order: 3, Role: "admin", Action: flow.StepApprove, Required: true},
		},
	})
	require.NoError(t, err)

	sub, err := f.engine.SubmitForApproval(ctx, approval.SubmitInput{
		Module: role.ModuleSales, Trigger: flow.TriggerCreate,
		DocumentType: "sales_order", DocumentID: "SO-2", SubmittedBy: "clerk",
	})
	require.NoError(t, err)

	res, err := f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	// A retried call must not approve step 2 as well.
	res, err = f.engine.Decide(ctx, sub.RequestID, as("mgr-1", 1))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonDuplicateDecision, res.Reason)
	assert.Equal(t, 2, res.CurrentStep)

	req, err := f.engine.GetRequest(ctx, sub.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 2, req.CurrentStep)
	assert.Len(t, req.Decisions, 1)
}

func TestRaceLoserGetsBenignResultWhenNextRoleDiffers(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		sub, err := f.engine.SubmitForApproval(ctx, purchase(fmt.Sprintf("PO-R%d", round), 75000))
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
			res   = make([]*DecideResult, 2)
		)
		for i, actor := range []string{"mgr-1", "mgr-2"} {
			wg.Add(1)
			go func(i int, actor string) {
				defer wg.Done()
				<-start
				res[i], errs[i] = f.engine.Decide(ctx, sub.RequestID, as(actor, 1))
			}(i, actor)
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.NotEqual(t, res[0].Applied, res[1].Applied, "exactly one decision applies")
	}
}

func TestDecideUsesCurrentRoles(t *testing.T) {
	f := newFixture(t)
	f.bigPurchaseFlow(t)
	ctx := context.Background()

	sub, err := f.engine.SubmitForApproval(ctx, purchase("PO-11", 75000))
	require.NoError(t, err)

	_, err = f.users.AssignRoles(ctx, "mgr-1", []string{"staff"})
	require.NoError(t, err)

	// Roles carried on the decision, as a stale token would, do not count.
	d := as("mgr-1", 1)
	d.Roles = []role.RoleID{"manager"}
	_, err = f.engine.Decide(ctx, sub.RequestID, d)
	assert.ErrorIs(t, err, approval.ErrForbidden)

	_, err = f.engine.Decide(ctx, sub.RequestID, as("stranger", 1))
	assert.ErrorIs(t, err, approval.ErrForbidden)

	res, err := f.engine.Decide(ctx, sub.RequestID, as("mgr-2", 1))
	require.NoError(t, err)
	assert.True(t, res.Applied)
}
