package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

const (
	// DefaultTTL is the lifetime of an issued token: "extend by 1 hour".
	DefaultTTL = time.Hour
	// DefaultRefreshWindow bounds how long a chain of refreshes may last.
	DefaultRefreshWindow = 24 * time.Hour
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64       `json:"oriat,omitempty"`
	Nombre       string      `json:"nombre,omitempty"`
	Email        string      `json:"email,omitempty"`
	Rol          domain.Role `json:"rol,omitempty"`
}

// User rebuilds the public user record carried by the claims.
func (c *Claims) User() domain.User {
	return domain.User{
		ID:     c.Subject,
		Nombre: c.Nombre,
		Email:  c.Email,
		Rol:    c.Rol,
	}
}

// IssuerConfig configures token signing.
type IssuerConfig struct {
	Secret        string
	Name          string
	TTL           time.Duration
	RefreshWindow time.Duration
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	key           []byte
	name          string
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

// NewIssuer creates an issuer. Zero durations fall back to the defaults.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret must be set")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = DefaultRefreshWindow
	}
	if cfg.Name == "" {
		cfg.Name = "aprendizaje"
	}
	return &Issuer{
		key:           []byte(cfg.Secret),
		name:          cfg.Name,
		ttl:           cfg.TTL,
		refreshWindow: cfg.RefreshWindow,
		now:           time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Sign issues a token for the user. origIssuedAt carries the start of a
// refresh chain; zero starts a new chain.
func (i *Issuer) Sign(u domain.User, origIssuedAt int64) (string, error) {
	now := i.now()
	if origIssuedAt == 0 {
		origIssuedAt = now.Unix()
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    i.name,
			Subject:   u.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(i.ttl).Unix(),
		},
		OrigIssuedAt: origIssuedAt,
		Nombre:       u.Nombre,
		Email:        u.Email,
		Rol:          u.Rol,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	if !claims.VerifyExpiresAt(i.now().Unix(), true) {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Refresh re-issues a verified token with a fresh expiry, keeping the
// original issued-at so the refresh chain stays bounded.
func (i *Issuer) Refresh(claims *Claims, u domain.User) (string, error) {
	orig := claims.OrigIssuedAt
	if orig == 0 {
		orig = claims.IssuedAt
	}
	if i.now().After(time.Unix(orig, 0).Add(i.refreshWindow)) {
		return "", ErrRefreshExpired
	}
	return i.Sign(u, orig)
}
