// Package certificate implements the capability certificates that gate workflow
// execution: an Authority that signs and verifies them, and a Registry that
// issues, looks up, revokes and validates them by subject.
package certificate

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Well-known capabilities.
const (
	// CapabilityExecute allows driving workflow executions.
	CapabilityExecute = "workflow:execute"
	// CapabilitySettle allows running authority-level settlement steps.
	CapabilitySettle = "ledger:settle"
)

// Certificate is a signed, time-bounded capability grant tied to a subject.
type Certificate struct {
	ID           string            `json:"id"`
	Subject      string            `json:"subject"`
	Issuer       string            `json:"issuer"`
	Capabilities []string          `json:"capabilities"`
	Constraints  map[string]string `json:"constraints,omitempty"`
	IssuedAt     time.Time         `json:"issuedAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`

	// Signature is the issuer-signed compact token covering every field above.
	Signature string `json:"signature"`
}

// HasCapability reports whether the certificate grants capability.
func (c *Certificate) HasCapability(capability string) bool {
	if c == nil {
		return false
	}
	return sets.New(c.Capabilities...).Has(capability)
}

// ExpiredAt reports whether the certificate has expired at now.
func (c *Certificate) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IssueRequest describes a certificate to be issued.
type IssueRequest struct {
	Subject      string
	Capabilities []string
	Constraints  map[string]string
	TTL          time.Duration
}

// Authority signs and verifies certificates.
type Authority interface {
	// Issue creates a signed certificate for the request.
	Issue(ctx context.Context, req IssueRequest) (*Certificate, error)

	// Verify checks the certificate's signature and that the signed claims match
	// its fields. It does not check expiry.
	Verify(cert *Certificate) error
}
