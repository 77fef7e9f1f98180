package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WithExpiry fills missing expiry times from the tokens' exp claims when the
// tokens are JWTs. Opaque tokens are left untouched.
func WithExpiry(creds Credentials) Credentials {
	if creds.AccessExpiresAt.IsZero() {
		creds.AccessExpiresAt = ExpiryOf(creds.Access)
	}
	if creds.RefreshExpiresAt.IsZero() {
		creds.RefreshExpiresAt = ExpiryOf(creds.Refresh)
	}
	return creds
}

// ExpiryOf reads the exp claim without verifying the signature; the server
// remains the authority on validity.
func ExpiryOf(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
