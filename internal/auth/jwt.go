package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager issues and verifies signed bearer tokens. The signing key,
// algorithm and lifetime are process-wide configuration, fixed at startup.
type TokenManager struct {
	secretKey []byte
	method    jwt.SigningMethod
	lifetime  time.Duration
}

// NewTokenManager builds a TokenManager for a symmetric HMAC algorithm
// (e.g. "HS256").
func NewTokenManager(secretKey, algorithm string, lifetime time.Duration) (*TokenManager, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}
	return &TokenManager{
		secretKey: []byte(secretKey),
		method:    method,
		lifetime:  lifetime,
	}, nil
}

// Issue creates a signed token whose subject claim carries the given
// identity and whose expiration is issue time plus the configured lifetime.
func (m *TokenManager) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
	}
	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.secretKey)
}

// Verify checks the token's signature and expiration and returns the
// subject claim. Callers must not leak which check failed.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != m.method {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}
