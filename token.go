package mgenclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims is the subset of the platform's access-token claims the
// client reads. Tokens are decoded without signature verification: the
// platform verifies them, the client only needs expiry and identity hints.
type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func decodeAccessClaims(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// tokenExpiry returns the exp claim. Opaque or claimless tokens report
// ok=false and are treated as non-expiring locally.
func tokenExpiry(token string) (time.Time, bool) {
	claims, err := decodeAccessClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
