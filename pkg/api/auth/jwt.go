// Package auth resolves a bearer token into the opaque user identity and
// project role the governance core accepts. ChronoVM's core treats
// identity as nothing more than a user-id string (spec Non-goals); this
// package is one possible host-side way of producing that string, by
// verifying a JWT and reading its subject and role claims.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chronolab/chronovm/pkg/governance/roles"
)

// Claims is the JWT payload a JWTService issues and validates. Subject
// carries the opaque user id the governance core operates on; Role is the
// project role used for the capability checks in pkg/governance/roles.
type Claims struct {
	jwt.RegisteredClaims
	Role roles.Role `json:"role"`
}

// IsOwner reports whether the token's role is RoleOwner.
func (c *Claims) IsOwner() bool {
	return c.Role == roles.RoleOwner
}

var (
	// ErrInvalidToken indicates a malformed or unparseable token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
)

// JWTService issues and validates HMAC-signed access tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService builds a JWTService. ttl is the lifetime of issued tokens;
// a zero ttl defaults to 24h.
func NewJWTService(secret []byte, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secret: secret, ttl: ttl}
}

// IssueToken creates a signed token for userId carrying role.
func (s *JWTService) IssueToken(userId string, role roles.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if !roles.IsValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
