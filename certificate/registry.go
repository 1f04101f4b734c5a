package certificate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/logger"
)

// Registry holds issued certificates by subject together with the revocation
// set. It is the gate the workflow engine validates against.
type Registry struct {
	mu        sync.RWMutex
	authority Authority
	certs     map[string]*Certificate
	revoked   sets.Set[string]
	now       func() time.Time
	emitter   *events.Emitter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithEmitter publishes issue and revoke notifications.
func WithEmitter(em *events.Emitter) RegistryOption {
	return func(r *Registry) {
		r.emitter = em
	}
}

// NewRegistry creates a registry backed by authority.
func NewRegistry(authority Authority, opts ...RegistryOption) *Registry {
	r := &Registry{
		authority: authority,
		certs:     make(map[string]*Certificate),
		revoked:   sets.New[string](),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue asks the authority for a certificate and registers it under its subject,
// replacing any earlier certificate. A revoked subject cannot be re-issued.
func (r *Registry) Issue(ctx context.Context, req IssueRequest) (*Certificate, error) {
	if r.IsRevoked(req.Subject) {
		return nil, deny(req.Subject, ErrRevoked)
	}
	cert, err := r.authority.Issue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("issue certificate for %s: %w", req.Subject, err)
	}

	r.mu.Lock()
	if r.revoked.Has(cert.Subject) {
		r.mu.Unlock()
		return nil, deny(cert.Subject, ErrRevoked)
	}
	r.certs[cert.Subject] = cert
	r.mu.Unlock()

	logger.InfoContext(ctx, "certificate issued",
		"subject", cert.Subject, "capabilities", cert.Capabilities, "expires_at", cert.ExpiresAt)
	r.emitter.CertificateIssued(cert.Subject, cert.Capabilities, cert.ExpiresAt)
	return cert, nil
}

// Lookup returns the certificate registered for subject.
func (r *Registry) Lookup(subject string) (*Certificate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, ok := r.certs[subject]
	return cert, ok
}

// Revoke adds subject to the revocation set. Revocation is permanent.
func (r *Registry) Revoke(ctx context.Context, subject, reason string) {
	r.mu.Lock()
	already := r.revoked.Has(subject)
	r.revoked.Insert(subject)
	r.mu.Unlock()
	if already {
		return
	}
	logger.WarnContext(ctx, "certificate revoked", "subject", subject, "reason", reason)
	r.emitter.CertificateRevoked(subject, reason)
}

// IsRevoked reports whether subject has been revoked.
func (r *Registry) IsRevoked(subject string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revoked.Has(subject)
}

// Validate checks, in order, that a certificate is registered for subject, that
// the subject is not revoked, that the signature verifies and that it has not
// expired. Failures are *AuthorizationError.
func (r *Registry) Validate(ctx context.Context, subject string) error {
	_, err := r.validate(ctx, subject)
	return err
}

// ValidateCapability is Validate plus a check that the certificate grants capability.
func (r *Registry) ValidateCapability(ctx context.Context, subject, capability string) error {
	cert, err := r.validate(ctx, subject)
	if err != nil {
		return err
	}
	if !cert.HasCapability(capability) {
		return deny(subject, fmt.Errorf("%w: %s", ErrMissingCapability, capability))
	}
	return nil
}

func (r *Registry) validate(ctx context.Context, subject string) (*Certificate, error) {
	r.mu.RLock()
	cert, ok := r.certs[subject]
	revoked := r.revoked.Has(subject)
	r.mu.RUnlock()

	if !ok {
		return nil, deny(subject, ErrNotIssued)
	}
	if revoked {
		return nil, deny(subject, ErrRevoked)
	}
	if err := r.authority.Verify(cert); err != nil {
		logger.WarnContext(ctx, "certificate signature rejected", "subject", subject, "error", err)
		return nil, deny(subject, err)
	}
	if cert.ExpiredAt(r.now()) {
		return nil, deny(subject, fmt.Errorf("%w at %s", ErrExpired, cert.ExpiresAt.Format(time.RFC3339)))
	}
	return cert, nil
}
