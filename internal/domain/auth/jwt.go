// Package auth validates bearer tokens issued by the identity service.
// Issuing lives here only so operators and tests can mint tokens with the
// shared secret.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "storeflow/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	Leeway   time.Duration // tolerated clock skew
}

// DefaultJWTConfig returns the configuration used by the API server.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:   secret,
		Issuer:   "storeflow",
		TokenTTL: 15 * time.Minute,
		Leeway:   30 * time.Second,
	}
}

// Identity is who a token speaks for: staff of a kitchen or a store.
type Identity struct {
	UserID    string
	Email     string
	Roles     []string // admin, kitchen, store
	Locations []string // kitchens or stores the user works at
}

// claims is the token payload. The subject is the user id.
type claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
	Locations []string `json:"loc,omitempty"`
}

// JWTService signs and validates HS256 access tokens.
type JWTService struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{
		config: config,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(config.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(config.Leeway),
		),
	}
}

// Issue signs a token for who, valid for the configured TTL.
func (s *JWTService) Issue(who Identity) (string, time.Time, error) {
	if who.UserID == "" {
		return "", time.Time{}, fmt.Errorf("issue token: empty user id")
	}
	now := time.Now()
	expiresAt := now.Add(s.config.TokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   who.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     who.Email,
		Roles:     who.Roles,
		Locations: who.Locations,
	})
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks signature, issuer and expiry and returns the caller.
func (s *JWTService) ValidateToken(raw string) (*appctx.UserContext, error) {
	var c claims
	if _, err := s.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &appctx.UserContext{
		UserID:      c.Subject,
		Email:       c.Email,
		Roles:       c.Roles,
		LocationIDs: c.Locations,
	}, nil
}
