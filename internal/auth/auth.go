// Package auth issues and verifies the API's bearer tokens. Callers exchange
// the static API key for a short-lived HS256 JWT; every other endpoint
// requires the token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken marks a missing, malformed, expired, or mis-signed token.
var ErrInvalidToken = errors.New("invalid access token")

// ErrInvalidAPIKey marks a failed key exchange.
var ErrInvalidAPIKey = errors.New("invalid api key")

// Issuer exchanges API keys for signed bearer tokens.
type Issuer struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an issuer. A zero ttl defaults to 24 hours.
func NewIssuer(apiKey string, secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{apiKey: apiKey, secret: secret, ttl: ttl}
}

// Issue validates the API key and returns a signed token with its expiry.
func (i *Issuer) Issue(apiKey string) (token string, expiresAt time.Time, err error) {
	if i.apiKey == "" || apiKey != i.apiKey {
		return "", time.Time{}, ErrInvalidAPIKey
	}
	expiresAt = time.Now().Add(i.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "pulse-api",
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
	})
	token, err = tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates a bearer token.
func (i *Issuer) Verify(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
