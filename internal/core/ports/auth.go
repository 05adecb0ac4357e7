package ports

import "github.com/avatarctic/offline-sync-engine/internal/core/domain/auth"

// TokenService issues and validates control-channel tokens.
type TokenService interface {
	Issue(clientID string) (*auth.ControlToken, error)
	Validate(token string) (*auth.Claims, error)
}
