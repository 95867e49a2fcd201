// Package auth issues and checks the operator tokens guarding the admin API.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "dispatcher"

// ScopeAdmin grants the chat, message and audit endpoints.
const ScopeAdmin = "admin"

type AdminClaims struct {
	Operator string `json:"op"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	expiry time.Duration
}

func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate signs an admin token for operator. A non-positive ttl uses the
// manager's default expiry.
func (m *JWTManager) Generate(operator string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = m.expiry
	}
	now := time.Now()
	expires := now.Add(ttl)

	claims := AdminClaims{
		Operator: operator,
		Scope:    ScopeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing admin token: %w", err)
	}
	return signed, expires, nil
}

// Validate checks signature, issuer and expiry. Scope is enforced by
// Middleware.
func (m *JWTManager) Validate(tokenStr string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AdminClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing admin token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	return claims, nil
}
