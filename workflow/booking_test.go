package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/EdenKit/actions"
	"github.com/AltairaLabs/EdenKit/certificate"
	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/settlement"
	"github.com/AltairaLabs/EdenKit/wallet"
	"github.com/AltairaLabs/EdenKit/workflow"
)

type bookingStack struct {
	engine *workflow.Engine
	certs  *certificate.Registry
	ledger *ledger.Store
	wallet *wallet.Service
	events *events.Recorder
	def    *workflow.Definition
}

func newBookingStack(t *testing.T) *bookingStack {
	t.Helper()
	ctx := context.Background()
	rec := events.NewRecorder()

	auth, err := certificate.NewJWTAuthority("root-ca", nil)
	require.NoError(t, err)
	certs := certificate.NewRegistry(auth)
	_, err = certs.Issue(ctx, certificate.IssueRequest{
		Subject:      workflow.DefaultSubject,
		Capabilities: []string{certificate.CapabilityExecute},
		TTL:          time.Hour,
	})
	require.NoError(t, err)

	l := ledger.NewStore()
	w := wallet.NewService()
	p := settlement.NewPipeline(l, w, settlement.WithDirectory(settlement.StaticDirectory{"amc": "garden-1"}))
	reg := actions.NewRegistry()
	require.NoError(t, actions.RegisterAuthority(reg, actions.AuthorityDeps{
		Ledger:     l,
		Settlement: p,
		Cashier:    settlement.NewCashier("cashier-1", "Box office"),
	}))
	d := actions.NewDispatcher(reg)

	def, err := workflow.LoadFile("testdata/booking.yaml", workflow.WithActionCatalog(d))
	require.NoError(t, err)

	return &bookingStack{
		engine: workflow.NewEngine(d, certs, workflow.WithSink(rec)),
		certs:  certs,
		ledger: l,
		wallet: w,
		events: rec,
		def:    def,
	}
}

func (s *bookingStack) fund(t *testing.T, who string, minor int64) {
	t.Helper()
	_, err := s.wallet.Credit(context.Background(), who, money.FromMinor(minor), "", "seed", nil)
	require.NoError(t, err)
}

func (s *bookingStack) balance(t *testing.T, who string) money.Amount {
	t.Helper()
	b, err := s.wallet.GetBalance(context.Background(), who)
	require.NoError(t, err)
	return b
}

func bookingVars() map[string]any {
	return map[string]any{
		"payer": "alice",
		"catalog": []any{
			map[string]any{"id": "m1", "name": "Dune", "price": 10, "providerId": "amc"},
			map[string]any{"id": "m2", "name": "Heat", "price": 40, "providerId": "amc"},
		},
	}
}

func TestBookingEndToEnd(t *testing.T) {
	s := newBookingStack(t)
	s.fund(t, "alice", 1500)
	ctx := context.Background()

	inst, err := s.engine.Start(ctx, s.def, bookingVars())
	require.NoError(t, err)
	require.Equal(t, workflow.InstructionDecision, inst.Kind)
	assert.Equal(t, "Pick a showing, alice", inst.Prompt)
	require.Len(t, inst.Options, 2)
	assert.Equal(t, "Dune at 10", inst.Options[0].Label)
	assert.Equal(t, "m1", inst.Options[0].Value)
	id := inst.ExecutionID

	inst, err = s.engine.SubmitDecision(ctx, id, "M1", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.InstructionDisplay, inst.Kind)
	assert.Equal(t, "root_ca_charge", inst.Step)
	assert.Equal(t, "root_ca_settle", inst.NextStep)
	assert.Equal(t, money.FromMinor(500), s.balance(t, "alice"))

	entries := s.ledger.ListByPayer("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.StatusProcessed, entries[0].Status)
	assert.Equal(t, money.FromMinor(1000), entries[0].Amount)

	inst, err = s.engine.ExecuteNextStep(ctx, id)
	require.NoError(t, err)
	require.Equal(t, workflow.InstructionDisplay, inst.Kind)
	assert.Equal(t, "root_ca_settle", inst.Step)
	assert.Equal(t, "confirmed", inst.NextStep)

	inst, err = s.engine.ExecuteNextStep(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstructionComplete, inst.Kind)
	assert.Equal(t, "confirmed", inst.Step)

	entry, err := s.ledger.FindByEntryID(entries[0].EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)

	assert.Equal(t, money.FromMinor(20), s.balance(t, "root-ca"))
	assert.Equal(t, money.FromMinor(30), s.balance(t, "garden-1"))
	assert.Equal(t, money.FromMinor(50), s.balance(t, "amc"))

	broadcasts := s.events.OfType(events.EventWorkflowBroadcast)
	require.Len(t, broadcasts, 1)
	data := broadcasts[0].Data.(*events.BroadcastData)
	assert.Equal(t, "payment_attempted", data.Name)
	assert.Equal(t, true, data.Payload["success"])
}

func TestBookingInsufficientBalance(t *testing.T) {
	s := newBookingStack(t)
	s.fund(t, "alice", 500)
	ctx := context.Background()

	inst, err := s.engine.Start(ctx, s.def, bookingVars())
	require.NoError(t, err)
	inst, err = s.engine.SubmitDecision(ctx, inst.ExecutionID, "m1", nil)
	require.NoError(t, err, "a refused payment is not an execution error")
	assert.Equal(t, "payment_failed", inst.NextStep)

	entries := s.ledger.ListByPayer("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.StatusFailed, entries[0].Status)
	assert.Equal(t, money.FromMinor(500), s.balance(t, "alice"))

	inst, err = s.engine.ExecuteNextStep(ctx, inst.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstructionComplete, inst.Kind)
	assert.Equal(t, "payment_failed", inst.Step)
}

func TestBookingCancelledBeforeCharge(t *testing.T) {
	s := newBookingStack(t)
	ctx := context.Background()

	inst, err := s.engine.Start(ctx, s.def, bookingVars())
	require.NoError(t, err)
	inst, err = s.engine.SubmitDecision(ctx, inst.ExecutionID, "Cancel", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.InstructionComplete, inst.Kind)
	assert.Equal(t, "cancelled", inst.Step)
	assert.Zero(t, s.ledger.Len())
}

func TestBookingWithEmptyCatalog(t *testing.T) {
	s := newBookingStack(t)
	inst, err := s.engine.Start(context.Background(), s.def, map[string]any{"payer": "alice", "catalog": []any{}})
	require.NoError(t, err)
	assert.Equal(t, workflow.InstructionComplete, inst.Kind)
	assert.Equal(t, "cancelled", inst.Step)
}

func TestBookingRevokedMidFlight(t *testing.T) {
	s := newBookingStack(t)
	s.fund(t, "alice", 1500)
	ctx := context.Background()

	inst, err := s.engine.Start(ctx, s.def, bookingVars())
	require.NoError(t, err)
	inst, err = s.engine.SubmitDecision(ctx, inst.ExecutionID, "m1", nil)
	require.NoError(t, err)
	require.Equal(t, workflow.InstructionDisplay, inst.Kind)

	s.certs.Revoke(ctx, workflow.DefaultSubject, "key compromised")

	_, err = s.engine.ExecuteNextStep(ctx, inst.ExecutionID)
	aErr, ok := certificate.AsAuthorizationError(err)
	require.True(t, ok, "expected AuthorizationError, got %v", err)
	assert.ErrorIs(t, aErr, certificate.ErrRevoked)

	exec, ok := s.engine.Execution(inst.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, workflow.StatusFailed, exec.Status)

	// The charge already committed; settlement never ran.
	entries := s.ledger.ListByPayer("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.StatusProcessed, entries[0].Status)
	assert.Equal(t, money.FromMinor(500), s.balance(t, "alice"))
}
