package service

import (
	"alcyxob/fitness-share/internal/domain"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4" // Import JWT library
)

// --- Error Definitions ---
var (
	ErrTokenGeneration = errors.New("failed to generate authentication token")
	ErrInvalidToken    = errors.New("invalid token")
)

const tokenIssuer = "fitness-share"

// Claims is the JWT payload. The uid claim is the owner reference of shares
// created with the token.
type Claims struct {
	OwnerRef string      `json:"uid"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService mints and checks HS256 bearer tokens.
type TokenService interface {
	Issue(ownerRef string, role domain.Role) (string, error)
	Parse(tokenString string) (*Claims, error)
}

type tokenService struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, expiration time.Duration) TokenService {
	if secret == "" {
		panic("JWT secret cannot be empty") // Critical configuration
	}
	if expiration <= 0 {
		expiration = time.Hour * 1 // Default to 1 hour if not set properly
	}
	return &tokenService{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

// Issue creates a signed token for ownerRef with the given role.
func (s *tokenService) Issue(ownerRef string, role domain.Role) (string, error) {
	if ownerRef == "" || !role.Valid() {
		return "", fmt.Errorf("%w: owner and a valid role are required", ErrTokenGeneration)
	}

	now := s.now()
	claims := &Claims{
		OwnerRef: ownerRef,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerRef,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return signed, nil
}

// Parse validates tokenString and returns its claims. Expired tokens fail with
// an error matching jwt.ErrTokenExpired as well as ErrInvalidToken.
func (s *tokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.OwnerRef == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims, nil
}
