package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/terracast/server/internal/config"
)

const issuer = "terracast-server"

// RoleAdmin is the only role the service issues. Admin endpoints require it.
const RoleAdmin = "admin"

// Claims is the payload of an operator token.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// TokenService issues and validates operator tokens. The shared admin secret
// both authorizes issuance and signs the tokens; there are no user accounts.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService creates a new token service with configuration
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Auth.AdminSecret),
		expiry: cfg.Auth.TokenExpiration,
	}
}

// VerifySecret compares a presented secret against the configured one in
// constant time.
func (s *TokenService) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), s.secret) == 1
}

// GenerateAdminToken issues a signed admin token
func (s *TokenService) GenerateAdminToken() (string, error) {
	now := time.Now()

	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        tokenID,
		},
		Role: RoleAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a token string and returns the claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if claims.Issuer != issuer {
		return nil, errors.New("invalid token issuer")
	}

	return claims, nil
}

// TokenExpiration returns the configured token lifetime
func (s *TokenService) TokenExpiration() time.Duration {
	return s.expiry
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
