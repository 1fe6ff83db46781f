// Package token inspects bearer credentials locally. The backend issues
// JWTs, so expiry and subject can be read client-side without a round-trip.
//
// Inspection never verifies the signature (only the server can do that),
// so results are advisory: suitable for "session expires soon" affordances,
// never for an authorization decision.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims the session core cares about.
// Zero-valued fields were absent from the token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Inspect decodes the credential's claims without verifying its signature.
// An opaque (non-JWT) credential is an error; callers should treat that as
// "no local information", not as an invalid session.
func Inspect(credential string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, mapClaims); err != nil {
		return nil, fmt.Errorf("credential is not an inspectable token: %w", err)
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

// Expired reports whether the token's recorded expiry has passed. Tokens
// without an expiry never report expired.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// TimeToExpiry returns how long until the recorded expiry, negative once
// past, and false when the token carries none.
func (c *Claims) TimeToExpiry(now time.Time) (time.Duration, bool) {
	if c.ExpiresAt.IsZero() {
		return 0, false
	}
	return c.ExpiresAt.Sub(now), true
}
