package settlement

import (
	"errors"
	"fmt"

	"github.com/AltairaLabs/EdenKit/money"
)

// Fee parties.
const (
	PartyAuthority = "authority"
	PartyGarden    = "garden"
	PartyProvider  = "provider"
	PartyTax       = "tax"
)

// ErrInvalidFeePolicy is returned when basis points are out of range.
var ErrInvalidFeePolicy = errors.New("invalid fee policy")

// FeePolicy splits an entry's fee cost between the issuing authority, the
// garden owning the provider and the provider itself. The provider receives
// whatever the authority and garden shares leave, including rounding
// remainders. Tax is charged on top of the fee cost and goes to the authority.
type FeePolicy struct {
	AuthorityID  string `json:"authorityId" mapstructure:"authority_id"`
	AuthorityBps int64  `json:"authorityBps" mapstructure:"authority_bps"`
	GardenBps    int64  `json:"gardenBps" mapstructure:"garden_bps"`
	TaxBps       int64  `json:"taxBps" mapstructure:"tax_bps"`
}

// DefaultFeePolicy returns the split used when none is configured.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		AuthorityID:  "root-ca",
		AuthorityBps: 2000,
		GardenBps:    3000,
	}
}

// Validate checks the basis points.
func (p FeePolicy) Validate() error {
	switch {
	case p.AuthorityID == "":
		return fmt.Errorf("%w: authority id is required", ErrInvalidFeePolicy)
	case p.AuthorityBps < 0, p.GardenBps < 0, p.TaxBps < 0:
		return fmt.Errorf("%w: basis points must not be negative", ErrInvalidFeePolicy)
	case p.AuthorityBps+p.GardenBps > money.BasisPoints:
		return fmt.Errorf("%w: authority and garden shares exceed %d bps", ErrInvalidFeePolicy, money.BasisPoints)
	}
	return nil
}

// FeeShare is one credited portion of a distribution.
type FeeShare struct {
	Party     string       `json:"party"`
	Recipient string       `json:"recipient"`
	Amount    money.Amount `json:"amount"`
}

// FeeDistribution reports how an entry's fees were credited.
type FeeDistribution struct {
	EntryID string       `json:"entryId"`
	TxID    string       `json:"txId"`
	Total   money.Amount `json:"total"`
	Tax     money.Amount `json:"tax"`
	Shares  []FeeShare   `json:"shares"`
}

// Recipients maps each party to its recipient identity.
type Recipients struct {
	Authority string
	Garden    string
	Provider  string
}

// Split computes the shares of fee for the given recipients. The shares
// excluding tax always sum to fee.
func (p FeePolicy) Split(fee money.Amount, to Recipients) ([]FeeShare, error) {
	if fee.IsNegative() {
		return nil, fmt.Errorf("%w: negative fee %s", money.ErrInvalidAmount, fee)
	}
	providerBps := money.BasisPoints - p.AuthorityBps - p.GardenBps
	amounts, err := fee.Split(p.AuthorityBps, p.GardenBps, providerBps)
	if err != nil {
		return nil, err
	}
	shares := []FeeShare{
		{Party: PartyAuthority, Recipient: to.Authority, Amount: amounts[0]},
		{Party: PartyGarden, Recipient: to.Garden, Amount: amounts[1]},
		{Party: PartyProvider, Recipient: to.Provider, Amount: amounts[2]},
	}
	if tax := fee.MulBps(p.TaxBps); tax.IsPositive() {
		shares = append(shares, FeeShare{Party: PartyTax, Recipient: to.Authority, Amount: tax})
	}
	return shares, nil
}
