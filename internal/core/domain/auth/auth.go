package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeControl grants access to the /_engine control channel.
const ScopeControl = "engine:control"

// ControlToken is a freshly issued bearer token.
type ControlToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Claims identifies a foreground client allowed to talk to the engine.
type Claims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`

	jwt.RegisteredClaims
}
