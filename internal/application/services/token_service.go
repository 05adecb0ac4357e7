package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/auth"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

const tokenIssuer = "offlined"

var ErrMissingSecret = errors.New("control token secret is not configured")

// TokenService signs HS256 control-channel tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.TokenService = (*TokenService)(nil)

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *TokenService) Issue(clientID string) (*auth.ControlToken, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	now := s.now()
	claims := &auth.Claims{
		ClientID: clientID,
		Scope:    auth.ScopeControl,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign control token: %w", err)
	}
	return &auth.ControlToken{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

func (s *TokenService) Validate(tokenString string) (*auth.Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*auth.Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Scope != auth.ScopeControl {
		return nil, fmt.Errorf("token scope %q does not grant control access", claims.Scope)
	}
	return claims, nil
}
