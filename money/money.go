// Package money provides the fixed-point amount type used by the wallet, ledger and
// settlement packages.
//
// Amounts are int64 counts of minor units (two decimal places). Proportional
// splits never lose value: the rounding remainder is assigned to the last share.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale is the number of minor units in one major unit.
const Scale = 100

// BasisPoints is the denominator used by MulBps.
const BasisPoints = 10000

var (
	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoWeights is returned when Split is called without weights.
	ErrNoWeights = errors.New("split requires at least one positive weight")
)

// Amount is a monetary value in minor units.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromMinor returns an Amount holding the given number of minor units.
func FromMinor(minor int64) Amount {
	return Amount(minor)
}

// FromFloat converts a major-unit float into an Amount, rounding half away from zero.
func FromFloat(v float64) Amount {
	return Amount(math.Round(v * Scale))
}

// Parse reads a decimal string ("12", "12.5", "-0.75") into an Amount.
// Only a leading sign is allowed. More than two fractional digits is an error
// rather than a silent rounding, and so is a value outside the int64 range.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	in := s
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, in)
	}
	if !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, in)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, in)
	}
	var major int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, in)
		}
		major = v
	}
	var minor int64
	for i := range 2 {
		minor *= 10
		if i < len(frac) {
			minor += int64(frac[i] - '0')
		}
	}
	if major > (math.MaxInt64-minor)/Scale {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, in)
	}
	total := major*Scale + minor
	if neg {
		total = -total
	}
	return Amount(total), nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Minor returns the raw number of minor units.
func (a Amount) Minor() int64 {
	return int64(a)
}

// Float returns the amount in major units. Only use for display and metrics.
func (a Amount) Float() float64 {
	return float64(a) / Scale
}

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool {
	return a > 0
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a == 0
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool {
	return a < 0
}

// String formats the amount with two decimal places.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/Scale, v%Scale)
}

// MulBps returns a * bps / 10000, truncated toward zero.
func (a Amount) MulBps(bps int64) Amount {
	return Amount(int64(a) * bps / BasisPoints)
}

// Split divides a proportionally across weights. Each share is truncated and the
// remainder is added to the last share, so the shares always sum to a.
func (a Amount) Split(weights ...int64) ([]Amount, error) {
	var total int64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %d", ErrNoWeights, w)
		}
		total += w
	}
	if total == 0 {
		return nil, ErrNoWeights
	}
	shares := make([]Amount, len(weights))
	var allocated int64
	for i, w := range weights {
		share := int64(a) * w / total
		shares[i] = Amount(share)
		allocated += share
	}
	shares[len(shares)-1] += Amount(int64(a) - allocated)
	return shares, nil
}

// Sum adds amounts together.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, v := range amounts {
		total += v
	}
	return total
}

// MarshalJSON encodes the amount as a decimal number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a decimal number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		v = FromFloat(f)
	}
	*a = v
	return nil
}

// FromAny converts decoded JSON/YAML values into an Amount. Integers are read as
// major units, matching how workflow definitions and CLI flags spell prices.
func FromAny(v any) (Amount, error) {
	switch n := v.(type) {
	case Amount:
		return n, nil
	case int:
		return Amount(int64(n) * Scale), nil
	case int64:
		return Amount(n * Scale), nil
	case int32:
		return Amount(int64(n) * Scale), nil
	case uint64:
		return Amount(int64(n) * Scale), nil
	case float64:
		return FromFloat(n), nil
	case float32:
		return FromFloat(float64(n)), nil
	case string:
		return Parse(n)
	case nil:
		return 0, fmt.Errorf("%w: nil", ErrInvalidAmount)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}
