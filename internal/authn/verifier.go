// Package authn verifies identity provider tokens. Token issuance and the
// provider protocol live elsewhere; this package only checks signatures and
// extracts who the caller is.
package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
)

// Claims are the identity provider claims the service reads.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Identity is a verified caller.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Options configures a Verifier. Exactly one of Secret or PublicKeyPEM is
// required.
type Options struct {
	Issuer       string
	Audience     string
	Secret       []byte
	PublicKeyPEM []byte
	Leeway       time.Duration
}

// Verifier validates bearer tokens issued by the identity provider.
type Verifier struct {
	parser *jwt.Parser
	key    any
}

// NewVerifier builds a verifier for HS256 when a secret is configured and
// RS256 when a public key is.
func NewVerifier(opts Options) (*Verifier, error) {
	var (
		method string
		key    any
	)
	switch {
	case len(opts.Secret) > 0 && len(opts.PublicKeyPEM) > 0:
		return nil, errors.New("authn: configure either a secret or a public key, not both")
	case len(opts.Secret) > 0:
		method, key = jwt.SigningMethodHS256.Alg(), opts.Secret
	case len(opts.PublicKeyPEM) > 0:
		pub, err := jwt.ParseRSAPublicKeyFromPEM(opts.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("authn: invalid public key: %w", err)
		}
		method, key = jwt.SigningMethodRS256.Alg(), pub
	default:
		return nil, errors.New("authn: no verification key configured")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	return &Verifier{parser: jwt.NewParser(parserOpts...), key: key}, nil
}

// Verify checks tokenStr and returns the identity it asserts. Every failure
// wraps apperr.ErrAuthentication; the cause is for logs only.
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, apperr.ErrAuthentication
	}

	// The parser pins the algorithm, so the key can be returned as is.
	token, err := v.parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", apperr.ErrAuthentication)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", apperr.ErrAuthentication)
	}

	return &Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
