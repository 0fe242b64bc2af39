package cnwlicense

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCredentialLifetime is the validity of an issued credential.
const DefaultCredentialLifetime = 365 * 10 * 24 * time.Hour

// Issuer signs and verifies activation credentials with an HMAC-SHA256 secret.
// The secret is fixed for the lifetime of the Issuer.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
	nowFn    func() time.Time
}

// NewIssuer creates an Issuer for the given signing secret.
// An empty secret returns ErrNotConfigured.
func NewIssuer(secret []byte, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty signing secret", ErrNotConfigured)
	}
	i := &Issuer{
		secret:   append([]byte(nil), secret...),
		lifetime: DefaultCredentialLifetime,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns a signed credential binding machineID to productKey.
func (i *Issuer) Issue(machineID, productKey string) (string, *Claims, error) {
	claims := &Claims{
		MachineID:  machineID,
		ProductKey: productKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(i.nowFn().UTC().Add(i.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign credential: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature and expiration of a credential and returns its claims.
//
// Only HS256 is accepted. A credential without exp is rejected.
func (i *Issuer) Verify(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowFn),
	)
	switch {
	case err == nil:
		return &claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrCredentialExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}
}
