package session

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenPayload captures the data available when minting a session JWT.
type TokenPayload struct {
	SessionID string
	Guest     bool
	UserID    string
	JTI       string
}

// TokenClaims is the typed JWT carried in the session cookie. Guest and
// signed-in sessions share the shape; Guest flips on sign-in/sign-out.
type TokenClaims struct {
	SessionID string `json:"session_id"`
	Guest     bool   `json:"guest"`
	UserID    string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}
