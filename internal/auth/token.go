// Package auth turns session tokens into the opaque Identity the core
// compares for ownership. Tokens are HS256 JWTs issued by the sign-in layer
// (or by IssueToken for tooling and tests); their claims carry the identity
// fields verbatim.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

var (
	// ErrInvalidToken is returned when the token is malformed or badly signed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrNoSecret is returned when no signing secret is configured.
	ErrNoSecret = errors.New("auth secret not configured")
)

// Claims is the session token payload.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// Identity maps the claims onto the core identity; the subject is the id.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		ID:       c.Subject,
		Email:    c.Email,
		Name:     c.Name,
		Image:    c.Picture,
		Provider: c.Provider,
	}
}

// Verifier validates session tokens with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

// Parse validates token and returns the identity it carries.
func (v *Verifier) Parse(token string) (*domain.Identity, error) {
	if !v.Enabled() {
		return nil, ErrNoSecret
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	id := claims.Identity()
	if id.IsZero() {
		return nil, ErrInvalidToken
	}
	return &id, nil
}

// IssueToken signs a session token for id valid for ttl.
func (v *Verifier) IssueToken(id domain.Identity, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		Email:    id.Email,
		Name:     id.Name,
		Picture:  id.Image,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
