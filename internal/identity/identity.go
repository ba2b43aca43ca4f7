// ABOUTME: Agent identity extracted from the backend-issued access token
// ABOUTME: Parses JWT claims without verification; the backend owns the auth protocol

package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is the opaque id of the signed-in support agent. It is
// established once at startup and immutable for the lifetime of the
// console; the Connection Manager keys its socket URL on it.
type Identity struct {
	AgentID   string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// FromToken extracts the agent identity from an access token issued by the
// backend's login flow. The signature is not verified here: the backend
// rejects forged tokens on every call, and the console never holds the
// signing secret.
func FromToken(tokenString string) (*Identity, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	id := &Identity{AgentID: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// Expired reports whether the token's expiry, if any, has passed.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
