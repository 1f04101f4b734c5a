// Package settlement executes payments against the wallet, completes
// processed ledger entries and distributes their fees.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/wallet"
	"github.com/AltairaLabs/EdenKit/workflow"
)

// Ledger is the part of the ledger store the pipeline drives.
type Ledger interface {
	FindByEntryID(id string) (*ledger.Entry, error)
	UpdateStatus(ctx context.Context, id string, upd ledger.StatusUpdate) (*ledger.Entry, error)
	VerifyPersisted(ctx context.Context, id string) (bool, error)
}

// Wallet is the part of the wallet service the pipeline drives.
type Wallet interface {
	ProcessIntent(ctx context.Context, intent wallet.Intent) (*wallet.Result, error)
	GetBalance(ctx context.Context, identity string) (money.Amount, error)
}

// PaymentResult is the outcome of ProcessPayment. A refused debit is a
// result with Success false, not an error.
type PaymentResult struct {
	Success      bool          `json:"success"`
	Entry        *ledger.Entry `json:"entry"`
	CashierID    string        `json:"cashierId,omitempty"`
	BalanceAfter money.Amount  `json:"balanceAfter"`
	Shortfall    money.Amount  `json:"shortfall,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// Pipeline runs the authority's payment and settlement operations.
type Pipeline struct {
	ledger    Ledger
	wallet    Wallet
	directory Directory
	fees      FeePolicy
	emitter   *events.Emitter

	entries entryLocks

	mu          sync.Mutex
	distributed map[string]*FeeDistribution
	applied     map[string]map[string]FeeShare
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDirectory sets the provider-to-garden directory.
func WithDirectory(d Directory) Option {
	return func(p *Pipeline) {
		p.directory = d
	}
}

// WithFeePolicy sets the fee split.
func WithFeePolicy(policy FeePolicy) Option {
	return func(p *Pipeline) {
		p.fees = policy
	}
}

// WithEmitter publishes payment and settlement notifications.
func WithEmitter(em *events.Emitter) Option {
	return func(p *Pipeline) {
		p.emitter = em
	}
}

// NewPipeline creates a pipeline over the given ledger and wallet.
func NewPipeline(l Ledger, w Wallet, opts ...Option) *Pipeline {
	p := &Pipeline{
		ledger:      l,
		wallet:      w,
		directory:   StaticDirectory{},
		fees:        DefaultFeePolicy(),
		distributed: make(map[string]*FeeDistribution),
		applied:     make(map[string]map[string]FeeShare),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FeePolicy returns the configured fee split.
func (p *Pipeline) FeePolicy() FeePolicy {
	return p.fees
}

// ProcessPayment debits the payer for a pending entry. On success the entry
// becomes processed and the cashier's counters advance. When the payer cannot
// cover the amount the entry becomes failed and the result carries the
// shortfall; that outcome is not an error. An empty payer means the entry's payer.
// Calls for the same entry run one at a time, so an entry is debited at most once.
func (p *Pipeline) ProcessPayment(
	ctx context.Context, cashier *Cashier, entryID, payer string,
) (*PaymentResult, error) {
	unlock := p.entries.lock(entryID)
	defer unlock()

	entry, err := p.lookup(ctx, entryID, "process payment")
	if err != nil {
		return nil, err
	}
	if payer == "" {
		payer = entry.Payer
	}
	cashierID := ""
	if cashier != nil {
		cashierID = cashier.ID
	}
	ctx = logger.WithPayer(logger.WithEntryID(ctx, entryID), payer)
	if entry.Status != ledger.StatusPending {
		return nil, fmt.Errorf("%w: payment requires a pending entry, %s is %s",
			ledger.ErrInvalidTransition, entryID, entry.Status)
	}

	res, err := p.wallet.ProcessIntent(ctx, wallet.Intent{
		Kind:     wallet.IntentDebit,
		Identity: payer,
		Amount:   entry.Amount,
		TxID:     entry.TxID,
		Reason:   "payment:" + entry.ServiceType,
		Metadata: map[string]any{"entryId": entry.EntryID, "cashierId": cashierID},
	})
	if insufficient, ok := wallet.AsInsufficientBalance(err); ok {
		return p.refuse(ctx, entry, payer, insufficient)
	}
	if err != nil {
		return nil, fmt.Errorf("debit %s for %s: %w", payer, entryID, err)
	}

	updated, err := p.ledger.UpdateStatus(ctx, entryID, ledger.StatusUpdate{
		Status:    ledger.StatusProcessed,
		CashierID: cashierID,
	})
	if err != nil {
		return nil, err
	}
	if cashier != nil {
		cashier.record(entry.Amount)
	}
	logger.InfoContext(ctx, "payment processed", "amount", entry.Amount, "balance", res.Balance, "cashier", cashierID)
	p.emitter.PaymentProcessed(entryID, payer, cashierID, entry.Amount, res.Balance)
	return &PaymentResult{
		Success:      true,
		Entry:        updated,
		CashierID:    cashierID,
		BalanceAfter: res.Balance,
	}, nil
}

func (p *Pipeline) refuse(
	ctx context.Context, entry *ledger.Entry, payer string, insufficient *wallet.InsufficientBalanceError,
) (*PaymentResult, error) {
	reason := insufficient.Error()
	updated, err := p.ledger.UpdateStatus(ctx, entry.EntryID, ledger.StatusUpdate{
		Status: ledger.StatusFailed,
		Reason: reason,
	})
	if err != nil {
		return nil, err
	}
	logger.WarnContext(ctx, "payment refused",
		"amount", entry.Amount, "balance", insufficient.Balance, "shortfall", insufficient.Shortfall())
	p.emitter.PaymentFailed(&events.PaymentFailedData{
		EntryID:   entry.EntryID,
		Payer:     payer,
		Amount:    entry.Amount,
		Balance:   insufficient.Balance,
		Shortfall: insufficient.Shortfall(),
		Reason:    reason,
	})
	return &PaymentResult{
		Success:      false,
		Entry:        updated,
		BalanceAfter: insufficient.Balance,
		Shortfall:    insufficient.Shortfall(),
		Reason:       reason,
	}, nil
}

// SettleEntry completes a processed entry, then reads it back from durable
// storage and rewrites it if the persisted status disagrees. A missing entry
// is an *workflow.ExecutionInvariantError and nothing is written.
func (p *Pipeline) SettleEntry(ctx context.Context, entryID string) (*ledger.Entry, error) {
	unlock := p.entries.lock(entryID)
	defer unlock()

	if _, err := p.lookup(ctx, entryID, "settle entry"); err != nil {
		return nil, err
	}
	ctx = logger.WithEntryID(ctx, entryID)
	settled, err := p.ledger.UpdateStatus(ctx, entryID, ledger.StatusUpdate{Status: ledger.StatusCompleted})
	if err != nil {
		return nil, err
	}
	corrected, err := p.ledger.VerifyPersisted(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("verify settled entry %s: %w", entryID, err)
	}
	logger.InfoContext(ctx, "ledger entry settled", "tx_id", settled.TxID, "corrected", corrected)
	p.emitter.LedgerEntrySettled(entryID, settled.TxID, string(settled.Status), corrected)
	return settled, nil
}

// UpdateBalances credits each party's share of an entry's fees. The garden is
// resolved through the directory from the entry's provider; without a match
// its share goes to the authority. Distributing the same entry twice returns
// the first distribution. When a credit fails the shares already credited are
// kept and recorded; a retry credits only the remaining parties.
func (p *Pipeline) UpdateBalances(ctx context.Context, entryID string) (*FeeDistribution, error) {
	unlock := p.entries.lock(entryID)
	defer unlock()

	entry, err := p.lookup(ctx, entryID, "update balances")
	if err != nil {
		return nil, err
	}
	ctx = logger.WithEntryID(ctx, entryID)
	if entry.Status == ledger.StatusFailed {
		return nil, fmt.Errorf("%w: cannot distribute fees for failed entry %s", ledger.ErrInvalidTransition, entryID)
	}

	if prior, ok := p.Distribution(entryID); ok {
		logger.WarnContext(ctx, "fees already distributed for entry")
		return prior, nil
	}

	fee := entry.FeeCost
	if fee.IsZero() {
		fee = sumFees(entry.Fees)
	}
	to := p.recipients(ctx, entry)
	shares, err := p.fees.Split(fee, to)
	if err != nil {
		return nil, fmt.Errorf("split fees for %s: %w", entryID, err)
	}

	dist := &FeeDistribution{EntryID: entryID, TxID: entry.TxID, Total: fee}
	for _, share := range shares {
		if share.Party == PartyTax {
			dist.Tax = share.Amount
		}
		if !share.Amount.IsPositive() {
			continue
		}
		if prior, ok := p.appliedShare(entryID, share.Party); ok {
			logger.DebugContext(ctx, "fee share already credited", "party", share.Party, "recipient", prior.Recipient)
			dist.Shares = append(dist.Shares, prior)
			continue
		}
		_, err := p.wallet.ProcessIntent(ctx, wallet.Intent{
			Kind:     wallet.IntentCredit,
			Identity: share.Recipient,
			Amount:   share.Amount,
			TxID:     entry.TxID,
			Reason:   "fee:" + share.Party,
			Metadata: map[string]any{"entryId": entryID, "party": share.Party},
		})
		if err != nil {
			return nil, fmt.Errorf("credit %s share to %s: %w", share.Party, share.Recipient, err)
		}
		p.recordShare(entryID, share)
		dist.Shares = append(dist.Shares, share)
	}
	p.mu.Lock()
	p.distributed[entryID] = dist
	delete(p.applied, entryID)
	p.mu.Unlock()

	logger.InfoContext(ctx, "fees distributed", "total", fee, "tax", dist.Tax, "shares", len(dist.Shares))
	p.emitter.FeesDistributed(entryID, fee, eventShares(dist.Shares))
	return dist, nil
}

// Distribution returns the recorded fee distribution for an entry.
func (p *Pipeline) Distribution(entryID string) (*FeeDistribution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.distributed[entryID]
	return d, ok
}

func (p *Pipeline) appliedShare(entryID, party string) (FeeShare, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	share, ok := p.applied[entryID][party]
	return share, ok
}

func (p *Pipeline) recordShare(entryID string, share FeeShare) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied[entryID] == nil {
		p.applied[entryID] = make(map[string]FeeShare)
	}
	p.applied[entryID][share.Party] = share
}

func (p *Pipeline) lookup(ctx context.Context, entryID, op string) (*ledger.Entry, error) {
	entry, err := p.ledger.FindByEntryID(entryID)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		logger.ErrorContext(ctx, "settlement target missing", "entry_id", entryID, "operation", op)
		return nil, &workflow.ExecutionInvariantError{
			Reason: op + " on unknown ledger entry " + entryID,
			Cause:  err,
		}
	}
	return entry, err
}

func (p *Pipeline) recipients(ctx context.Context, entry *ledger.Entry) Recipients {
	to := Recipients{
		Authority: p.fees.AuthorityID,
		Garden:    p.fees.AuthorityID,
		Provider:  entry.ProviderID,
	}
	if to.Provider == "" {
		to.Provider = entry.Merchant
	}
	if to.Provider == "" {
		to.Provider = p.fees.AuthorityID
	}
	if garden, ok := p.directory.GardenFor(ctx, entry.ProviderID); ok {
		to.Garden = garden
	} else {
		logger.WarnContext(ctx, "no garden for provider, authority keeps the garden share", "provider", entry.ProviderID)
	}
	return to
}

func sumFees(fees map[string]money.Amount) money.Amount {
	var total money.Amount
	for _, v := range fees {
		total += v
	}
	return total
}

func eventShares(shares []FeeShare) []events.FeeShare {
	out := make([]events.FeeShare, len(shares))
	for i, s := range shares {
		out[i] = events.FeeShare{Party: s.Party, Recipient: s.Recipient, Amount: s.Amount}
	}
	return out
}
