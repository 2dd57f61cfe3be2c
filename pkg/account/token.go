package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrOpaqueToken indicates a token that is not a JWT, so its lifetime cannot be determined
	// locally.
	ErrOpaqueToken = errors.New("token is not a JWT")
	// ErrNoExpiry indicates a JWT without an exp claim.
	ErrNoExpiry = errors.New("token has no expiry")
)

// TokenExpiry returns the exp claim of a JWT bearer token. The signature is not verified.
func TokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrOpaqueToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// TokenExpired reports whether token is a JWT whose exp claim is before now. Opaque tokens are
// never reported as expired.
func TokenExpired(token string, now time.Time) bool {
	expiry, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return expiry.Before(now)
}
