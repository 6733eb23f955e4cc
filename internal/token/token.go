// Package token encodes and decodes the bearer JWTs exchanged between the
// platform and its clients.
//
// Clients never hold the signing key, so they only read the expiry claim
// (Expiry). The auth service signs, verifies and re-issues tokens (Issuer).
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var (
	ErrMalformed      = errors.New("malformed token")
	ErrInvalid        = errors.New("invalid token")
	ErrRefreshExpired = errors.New("refresh has expired")
)

// Expiry returns the exp claim of a token without verifying its signature.
func Expiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	claims := jwt.MapClaims{}
	parser := &jwt.Parser{UseJSONNumber: true}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}

	var secs float64
	switch v := exp.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: exp is not numeric", ErrMalformed)
		}
		secs = f
	case float64:
		secs = v
	default:
		return time.Time{}, fmt.Errorf("%w: exp is not numeric", ErrMalformed)
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("%w: exp is not finite", ErrMalformed)
	}

	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), nil
}
