package certificate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"
)

// certificateClaims is the signed payload of a certificate.
type certificateClaims struct {
	jwt.RegisteredClaims
	Capabilities []string          `json:"cap,omitempty"`
	Constraints  map[string]string `json:"cst,omitempty"`
}

// JWTAuthority issues certificates signed as EdDSA JWTs.
type JWTAuthority struct {
	issuer string
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey
	now    func() time.Time
}

// JWTOption configures a JWTAuthority.
type JWTOption func(*JWTAuthority)

// WithAuthorityClock overrides the time source used for issued-at and expiry.
func WithAuthorityClock(now func() time.Time) JWTOption {
	return func(a *JWTAuthority) {
		if now != nil {
			a.now = now
		}
	}
}

// NewJWTAuthority creates an authority signing with key. A nil key generates a
// fresh ed25519 key pair.
func NewJWTAuthority(issuer string, key ed25519.PrivateKey, opts ...JWTOption) (*JWTAuthority, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("certificate authority issuer is required")
	}
	if key == nil {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate authority key: %w", err)
		}
		key = generated
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("authority private key must be %d bytes", ed25519.PrivateKeySize)
	}
	a := &JWTAuthority{
		issuer: issuer,
		key:    key,
		pub:    key.Public().(ed25519.PublicKey),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// PublicKey returns the key certificates are verified against.
func (a *JWTAuthority) PublicKey() ed25519.PublicKey {
	return a.pub
}

// Issuer returns the issuer name stamped on certificates.
func (a *JWTAuthority) Issuer() string {
	return a.issuer
}

// Issue signs a new certificate.
func (a *JWTAuthority) Issue(_ context.Context, req IssueRequest) (*Certificate, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	}
	if req.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidRequest)
	}

	now := a.now().UTC().Truncate(time.Second)
	caps := sets.List(sets.New(req.Capabilities...))
	cert := &Certificate{
		ID:           uuid.NewString(),
		Subject:      subject,
		Issuer:       a.issuer,
		Capabilities: caps,
		Constraints:  maps.Clone(req.Constraints),
		IssuedAt:     now,
		ExpiresAt:    now.Add(req.TTL),
	}
	claims := certificateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        cert.ID,
			Issuer:    cert.Issuer,
			Subject:   cert.Subject,
			IssuedAt:  jwt.NewNumericDate(cert.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cert.ExpiresAt),
		},
		Capabilities: caps,
		Constraints:  cert.Constraints,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.key)
	if err != nil {
		return nil, fmt.Errorf("sign certificate: %w", err)
	}
	cert.Signature = signed
	return cert, nil
}

// Verify checks the certificate against this authority's public key.
func (a *JWTAuthority) Verify(cert *Certificate) error {
	return VerifySignature(cert, a.pub)
}

// VerifySignature checks that cert was signed by the holder of key and that its
// fields match the signed claims.
func VerifySignature(cert *Certificate, key ed25519.PublicKey) error {
	if cert == nil || cert.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrBadSignature)
	}
	var parsed certificateClaims
	_, err := jwt.ParseWithClaims(cert.Signature, &parsed, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return mapJWTError(err)
	}

	switch {
	case parsed.ID != cert.ID:
		return fmt.Errorf("%w: id mismatch", ErrBadSignature)
	case parsed.Subject != cert.Subject:
		return fmt.Errorf("%w: subject mismatch", ErrBadSignature)
	case parsed.Issuer != cert.Issuer:
		return fmt.Errorf("%w: issuer mismatch", ErrBadSignature)
	case parsed.ExpiresAt == nil || !parsed.ExpiresAt.Time.Equal(cert.ExpiresAt.Truncate(jwt.TimePrecision)):
		return fmt.Errorf("%w: expiry mismatch", ErrBadSignature)
	case !slices.Equal(sets.List(sets.New(parsed.Capabilities...)), sets.List(sets.New(cert.Capabilities...))):
		return fmt.Errorf("%w: capability mismatch", ErrBadSignature)
	case !maps.Equal(parsed.Constraints, cert.Constraints):
		return fmt.Errorf("%w: constraint mismatch", ErrBadSignature)
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: malformed token", ErrBadSignature)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature does not verify", ErrBadSignature)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: unverifiable token", ErrBadSignature)
	default:
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
}

var _ Authority = (*JWTAuthority)(nil)
