package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/statestore"
	"github.com/AltairaLabs/EdenKit/wallet"
	"github.com/AltairaLabs/EdenKit/workflow"
)

type fixture struct {
	persist  *statestore.MemoryStore
	ledger   *ledger.Store
	wallet   *wallet.Service
	pipeline *Pipeline
	cashier  *Cashier
	events   *events.Recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	persist := statestore.NewMemoryStore()
	rec := events.NewRecorder()
	em := events.NewEmitter(rec, "", "")
	l := ledger.NewStore(ledger.WithPersistence(persist))
	w := wallet.NewService(wallet.WithStore(persist))
	opts = append([]Option{WithEmitter(em)}, opts...)
	return &fixture{
		persist:  persist,
		ledger:   l,
		wallet:   w,
		pipeline: NewPipeline(l, w, opts...),
		cashier:  NewCashier("cashier-1", "Front Desk"),
		events:   rec,
	}
}

func (f *fixture) fund(t *testing.T, identity string, amount money.Amount) {
	t.Helper()
	_, err := f.wallet.Credit(context.Background(), identity, amount, "", "seed", nil)
	require.NoError(t, err)
}

func (f *fixture) entry(t *testing.T, payer string, amount, fee money.Amount) *ledger.Entry {
	t.Helper()
	e, err := f.ledger.AddEntry(context.Background(), ledger.NewEntry{
		Snapshot:    ledger.Snapshot{TxID: "tx-1", Payer: payer, Amount: amount},
		ServiceType: "movie",
		FeeCost:     fee,
		Merchant:    "AMC",
		ProviderID:  "provider-amc",
	})
	require.NoError(t, err)
	return e
}

func TestProcessPaymentSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "alice", money.FromMinor(1500))
	e := f.entry(t, "alice", money.FromMinor(1000), 0)

	res, err := f.pipeline.ProcessPayment(ctx, f.cashier, e.EntryID, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, money.FromMinor(500), res.BalanceAfter)
	assert.Equal(t, ledger.StatusProcessed, res.Entry.Status)
	assert.Equal(t, "cashier-1", res.Entry.CashierID)

	bal, err := f.wallet.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(500), bal)

	persisted, err := f.ledger.Persisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusProcessed, persisted.Status)

	snap := f.cashier.Snapshot()
	assert.Equal(t, int64(1), snap.ProcessedCount)
	assert.Equal(t, money.FromMinor(1000), snap.TotalProcessed)

	processed := f.events.OfType(events.EventPaymentProcessed)
	require.Len(t, processed, 1)
	data := processed[0].Data.(*events.PaymentProcessedData)
	assert.Equal(t, money.FromMinor(500), data.BalanceAfter)
}

func TestProcessPaymentInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "bob", money.FromMinor(500))
	e := f.entry(t, "bob", money.FromMinor(1000), 0)

	res, err := f.pipeline.ProcessPayment(ctx, f.cashier, e.EntryID, "bob")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, money.FromMinor(500), res.Shortfall)
	assert.Equal(t, ledger.StatusFailed, res.Entry.Status)
	assert.NotEmpty(t, res.Reason)

	bal, err := f.wallet.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(500), bal)
	assert.Equal(t, int64(0), f.cashier.Snapshot().ProcessedCount)

	failed := f.events.OfType(events.EventPaymentFailed)
	require.Len(t, failed, 1)
	data := failed[0].Data.(*events.PaymentFailedData)
	assert.Equal(t, money.FromMinor(500), data.Shortfall)
	assert.Equal(t, money.FromMinor(500), data.Balance)
}

func TestProcessPaymentRequiresPendingEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "alice", money.FromMinor(5000))
	e := f.entry(t, "alice", money.FromMinor(1000), 0)

	_, err := f.pipeline.ProcessPayment(ctx, f.cashier, e.EntryID, "")
	require.NoError(t, err)
	_, err = f.pipeline.ProcessPayment(ctx, f.cashier, e.EntryID, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	bal, err := f.wallet.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(4000), bal, "a second payment must not debit again")
}

// slowStore delays every write, widening the window between reading an
// entry and recording its payment.
type slowStore struct {
	*statestore.MemoryStore
	delay time.Duration
}

func (s slowStore) Set(ctx context.Context, key string, value []byte) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Set(ctx, key, value)
}

func TestConcurrentPaymentsDebitOnce(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewStore(ledger.WithPersistence(statestore.NewMemoryStore()))
	w := wallet.NewService(wallet.WithStore(slowStore{MemoryStore: statestore.NewMemoryStore(), delay: 2 * time.Millisecond}))
	p := NewPipeline(l, w)
	cashier := NewCashier("cashier-1", "Front Desk")

	_, err := w.Credit(ctx, "alice", money.FromMinor(100000), "", "seed", nil)
	require.NoError(t, err)
	e, err := l.AddEntry(ctx, ledger.NewEntry{
		Snapshot:    ledger.Snapshot{TxID: "tx-1", Payer: "alice", Amount: money.FromMinor(1000)},
		ServiceType: "movie",
	})
	require.NoError(t, err)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	results := make([]*PaymentResult, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.ProcessPayment(ctx, cashier, e.EntryID, "")
		}()
	}
	wg.Wait()

	succeeded := 0
	for i := range callers {
		if errs[i] == nil {
			require.True(t, results[i].Success)
			succeeded++
			continue
		}
		assert.ErrorIs(t, errs[i], ledger.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	bal, err := w.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(99000), bal)

	history, err := w.History(ctx, "alice")
	require.NoError(t, err)
	debits := 0
	for _, r := range history {
		if r.Kind == wallet.IntentDebit {
			debits++
		}
	}
	assert.Equal(t, 1, debits)
	assert.Equal(t, int64(1), cashier.Snapshot().ProcessedCount)
	assert.Zero(t, p.entries.held())
}

func TestSettleEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "alice", money.FromMinor(1500))
	e := f.entry(t, "alice", money.FromMinor(1000), 0)
	_, err := f.pipeline.ProcessPayment(ctx, f.cashier, e.EntryID, "")
	require.NoError(t, err)

	settled, err := f.pipeline.SettleEntry(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, settled.Status)

	persisted, err := f.ledger.Persisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, persisted.Status)

	evts := f.events.OfType(events.EventLedgerEntrySettled)
	require.Len(t, evts, 1)
	data := evts[0].Data.(*events.LedgerEntrySettledData)
	assert.Equal(t, "completed", data.Status)
	assert.False(t, data.Corrected)
}

func TestSettlePendingEntryIsRejected(t *testing.T) {
	f := newFixture(t)
	e := f.entry(t, "alice", money.FromMinor(1000), 0)

	_, err := f.pipeline.SettleEntry(context.Background(), e.EntryID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestSettleMissingEntryIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before, err := f.persist.LedgerEntries(ctx)
	require.NoError(t, err)
	keys := f.persist.Len()

	_, err = f.pipeline.SettleEntry(ctx, "no-such-entry")
	require.Error(t, err)
	inv, ok := workflow.AsExecutionInvariantError(err)
	require.True(t, ok, "expected ExecutionInvariantError, got %T", err)
	assert.ErrorIs(t, inv, ledger.ErrEntryNotFound)

	after, err := f.persist.LedgerEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	assert.Equal(t, keys, f.persist.Len())
	assert.Empty(t, f.events.OfType(events.EventLedgerEntrySettled))
}

func TestUpdateBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		WithDirectory(StaticDirectory{"provider-amc": "garden-west"}),
		WithFeePolicy(FeePolicy{AuthorityID: "root-ca", AuthorityBps: 2000, GardenBps: 3000, TaxBps: 1000}),
	)
	f.fund(t, "alice", money.FromMinor(5000))
	e := f.entry(t, "alice", money.FromMinor(2000), money.FromMinor(101))

	dist, err := f.pipeline.UpdateBalances(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(101), dist.Total)
	assert.Equal(t, money.FromMinor(10), dist.Tax)

	balances := f.wallet.Balances()
	assert.Equal(t, money.FromMinor(20+10), balances["root-ca"])
	assert.Equal(t, money.FromMinor(30), balances["garden-west"])
	assert.Equal(t, money.FromMinor(51), balances["provider-amc"])

	var split money.Amount
	for _, s := range dist.Shares {
		if s.Party != PartyTax {
			split += s.Amount
		}
	}
	assert.Equal(t, dist.Total, split)

	again, err := f.pipeline.UpdateBalances(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Same(t, dist, again)
	assert.Equal(t, money.FromMinor(30), f.wallet.Balances()["root-ca"])
	assert.Len(t, f.events.OfType(events.EventFeesDistributed), 1)
}

// flakyWallet fails the failOn-th credit it is asked to apply.
type flakyWallet struct {
	*wallet.Service

	mu      sync.Mutex
	credits int
	failOn  int
}

func (f *flakyWallet) ProcessIntent(ctx context.Context, intent wallet.Intent) (*wallet.Result, error) {
	if intent.Kind == wallet.IntentCredit {
		f.mu.Lock()
		f.credits++
		n := f.credits
		f.mu.Unlock()
		if n == f.failOn {
			return nil, errors.New("store unavailable")
		}
	}
	return f.Service.ProcessIntent(ctx, intent)
}

func TestUpdateBalancesRetryCreditsOnlyMissingShares(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewStore(ledger.WithPersistence(statestore.NewMemoryStore()))
	w := &flakyWallet{Service: wallet.NewService(), failOn: 2}
	rec := events.NewRecorder()
	p := NewPipeline(l, w,
		WithDirectory(StaticDirectory{"provider-amc": "garden-west"}),
		WithEmitter(events.NewEmitter(rec, "", "")),
	)
	e, err := l.AddEntry(ctx, ledger.NewEntry{
		Snapshot:   ledger.Snapshot{TxID: "tx-1", Payer: "alice", Amount: money.FromMinor(2000)},
		FeeCost:    money.FromMinor(100),
		ProviderID: "provider-amc",
	})
	require.NoError(t, err)

	_, err = p.UpdateBalances(ctx, e.EntryID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	_, ok := p.Distribution(e.EntryID)
	assert.False(t, ok)
	assert.Empty(t, rec.OfType(events.EventFeesDistributed))

	dist, err := p.UpdateBalances(ctx, e.EntryID)
	require.NoError(t, err)
	require.Len(t, dist.Shares, 3)

	balances := w.Balances()
	assert.Equal(t, money.FromMinor(20), balances["root-ca"])
	assert.Equal(t, money.FromMinor(30), balances["garden-west"])
	assert.Equal(t, money.FromMinor(50), balances["provider-amc"])
	var credited money.Amount
	for _, b := range balances {
		credited += b
	}
	assert.Equal(t, dist.Total, credited)
	assert.Len(t, rec.OfType(events.EventFeesDistributed), 1)

	again, err := p.UpdateBalances(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Same(t, dist, again)
	assert.Equal(t, 4, w.credits, "three shares plus the failed attempt")
}

func TestUpdateBalancesWithoutGarden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.entry(t, "alice", money.FromMinor(2000), money.FromMinor(100))

	_, err := f.pipeline.UpdateBalances(ctx, e.EntryID)
	require.NoError(t, err)
	balances := f.wallet.Balances()
	assert.Equal(t, money.FromMinor(50), balances["root-ca"])
	assert.Equal(t, money.FromMinor(50), balances["provider-amc"])
}

func TestUpdateBalancesMissingEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.UpdateBalances(context.Background(), "nope")
	_, ok := workflow.AsExecutionInvariantError(err)
	assert.True(t, ok)
}

func TestFeePolicySplit(t *testing.T) {
	p := FeePolicy{AuthorityID: "ca", AuthorityBps: 3333, GardenBps: 3333}
	shares, err := p.Split(money.FromMinor(100), Recipients{Authority: "ca", Garden: "g", Provider: "p"})
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, money.FromMinor(33), shares[0].Amount)
	assert.Equal(t, money.FromMinor(33), shares[1].Amount)
	assert.Equal(t, money.FromMinor(34), shares[2].Amount)
}

func TestFeePolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultFeePolicy().Validate())
	assert.ErrorIs(t, FeePolicy{AuthorityID: "ca", AuthorityBps: 6000, GardenBps: 5000}.Validate(), ErrInvalidFeePolicy)
	assert.ErrorIs(t, FeePolicy{AuthorityID: "ca", TaxBps: -1}.Validate(), ErrInvalidFeePolicy)
	assert.ErrorIs(t, FeePolicy{}.Validate(), ErrInvalidFeePolicy)
}
