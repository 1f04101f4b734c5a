package actions

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/EdenKit/ledger"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/settlement"
	"github.com/AltairaLabs/EdenKit/template"
)

// Authority action tags.
const (
	TypeAddLedgerEntry = "add_ledger_entry"
	TypeProcessPayment = "process_payment"
	TypeSettleEntry    = "root_ca_settle_entry"
	TypeUpdateBalances = "root_ca_update_balances"
)

// Context keys the authority handlers write by default.
const (
	KeyLedgerEntry     = "ledgerEntry"
	KeyPaymentResult   = "paymentResult"
	KeyFeeDistribution = "feeDistribution"
)

// LedgerWriter creates ledger entries.
type LedgerWriter interface {
	AddEntry(ctx context.Context, req ledger.NewEntry) (*ledger.Entry, error)
}

// Settlement runs payment and settlement operations.
type Settlement interface {
	ProcessPayment(ctx context.Context, cashier *settlement.Cashier, entryID, payer string) (*settlement.PaymentResult, error)
	SettleEntry(ctx context.Context, entryID string) (*ledger.Entry, error)
	UpdateBalances(ctx context.Context, entryID string) (*settlement.FeeDistribution, error)
}

// AuthorityDeps are the collaborators of the authority handlers.
type AuthorityDeps struct {
	Ledger     LedgerWriter
	Settlement Settlement
	Cashier    *settlement.Cashier
}

// RegisterAuthority registers the ledger and settlement handlers on reg.
func RegisterAuthority(reg *Registry, deps AuthorityDeps) error {
	if deps.Ledger == nil || deps.Settlement == nil {
		return fmt.Errorf("authority handlers need a ledger and a settlement pipeline")
	}
	a := &authority{deps: deps}
	for tag, h := range map[string]HandlerFunc{
		TypeAddLedgerEntry: a.addLedgerEntry,
		TypeProcessPayment: a.processPayment,
		TypeSettleEntry:    a.settleEntry,
		TypeUpdateBalances: a.updateBalances,
	} {
		if err := reg.Register(tag, h); err != nil {
			return err
		}
	}
	return nil
}

type authority struct {
	deps AuthorityDeps
}

type addLedgerEntryParams struct {
	Snapshot       ledger.Snapshot `mapstructure:"snapshot"`
	Amount         money.Amount    `mapstructure:"amount"`
	ServiceType    string          `mapstructure:"serviceType"`
	FeeCost        money.Amount    `mapstructure:"feeCost"`
	Payer          string          `mapstructure:"payer"`
	Merchant       string          `mapstructure:"merchant"`
	ProviderID     string          `mapstructure:"providerId"`
	BookingDetails map[string]any  `mapstructure:"bookingDetails"`
	Output         string          `mapstructure:"output"`
}

func (a *authority) addLedgerEntry(ctx context.Context, call Call, _ map[string]any) (map[string]any, error) {
	var p addLedgerEntryParams
	if err := DecodeParams(call.Params, &p); err != nil {
		return nil, err
	}
	if p.Snapshot.Amount.IsZero() {
		p.Snapshot.Amount = p.Amount
	}
	entry, err := a.deps.Ledger.AddEntry(ctx, ledger.NewEntry{
		Snapshot:       p.Snapshot,
		ServiceType:    p.ServiceType,
		FeeCost:        p.FeeCost,
		Payer:          p.Payer,
		Merchant:       p.Merchant,
		ProviderID:     p.ProviderID,
		BookingDetails: p.BookingDetails,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{outputKey(p.Output, KeyLedgerEntry): plain(entry)}, nil
}

type entryParams struct {
	EntryID string `mapstructure:"entryId"`
	Payer   string `mapstructure:"payer"`
	Output  string `mapstructure:"output"`
}

func (a *authority) processPayment(ctx context.Context, call Call, vars map[string]any) (map[string]any, error) {
	p, err := decodeEntryParams(call, vars)
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Settlement.ProcessPayment(ctx, a.deps.Cashier, p.EntryID, p.Payer)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		outputKey(p.Output, KeyPaymentResult): plain(res),
		KeyLedgerEntry:                        plain(res.Entry),
	}, nil
}

func (a *authority) settleEntry(ctx context.Context, call Call, vars map[string]any) (map[string]any, error) {
	p, err := decodeEntryParams(call, vars)
	if err != nil {
		return nil, err
	}
	entry, err := a.deps.Settlement.SettleEntry(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	return map[string]any{outputKey(p.Output, KeyLedgerEntry): plain(entry)}, nil
}

func (a *authority) updateBalances(ctx context.Context, call Call, vars map[string]any) (map[string]any, error) {
	p, err := decodeEntryParams(call, vars)
	if err != nil {
		return nil, err
	}
	dist, err := a.deps.Settlement.UpdateBalances(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	return map[string]any{outputKey(p.Output, KeyFeeDistribution): plain(dist)}, nil
}

// decodeEntryParams reads entryId from params, falling back to the entry most
// recently written to the context.
func decodeEntryParams(call Call, vars map[string]any) (entryParams, error) {
	var p entryParams
	if err := DecodeParams(call.Params, &p); err != nil {
		return p, err
	}
	if p.EntryID == "" {
		if v, ok := template.Lookup(vars, KeyLedgerEntry+".entryId"); ok {
			p.EntryID = template.Text(v)
		}
	}
	if p.EntryID == "" {
		return p, fmt.Errorf("%w: %s requires an entryId", ErrInvalidParams, call.Type)
	}
	return p, nil
}

func outputKey(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
