// Package auth issues and verifies the bearer tokens that identify the user behind a
// mutating registry request. Tokens are HS256 JWTs whose subject is the username.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "npm-registry"

// DefaultTokenTTL is used when a TokenIssuer is created with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// ErrNoSecret is returned when no secret is configured outside dev mode.
var ErrNoSecret = errors.New("auth.jwt_secret is required; generate one with: openssl rand -hex 32")

// Claims represents the JWT claims structure
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates user tokens with a shared secret
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// NewTokenIssuer creates a token issuer. An empty secret is only accepted in dev mode,
// where a random per-process secret is generated instead.
func NewTokenIssuer(secret string, ttl time.Duration, devMode bool) (*TokenIssuer, error) {
	if secret == "" {
		if !devMode {
			return nil, ErrNoSecret
		}
		secret = generateRandomSecret()
		slog.Warn("auth.jwt_secret not set, using an auto-generated secret; tokens will not survive a restart")
	} else if len(secret) < 32 {
		slog.Warn("auth.jwt_secret is shorter than the recommended 32 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Generate creates a token for username
func (i *TokenIssuer) Generate(username string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}
	now := i.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate parses and validates a token, returning its claims
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Username == "" {
		return nil, errors.New("token carries no username")
	}
	return claims, nil
}
