// Package security issues and verifies the bearer tokens accepted by the API.
package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants access to /v0/admin routes.
const RoleAdmin = "admin"

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("security: invalid token")

// Claims are the identity fields carried by an access token. Subject holds the
// identity provider's user id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Plan  string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants administrative access.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// IssueToken signs claims with HS256. A positive expiry sets ExpiresAt relative to now.
func IssueToken(secret string, claims Claims, expiry time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: empty jwt secret")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("security: empty subject")
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	if expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret, raw string) (*Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("security: empty jwt secret")
	}
	claims := &Claims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errParse != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, errParse)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
