package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims defines the JWT claims (payload).
// We embed jwt.RegisteredClaims for standard claims like ExpiresAt, IssuedAt.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	TokenType string    `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login hands the client: a short-lived
// access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// JWTService signs and validates HS256 tokens with a single shared secret.
type JWTService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret:        []byte(secret),
		accessExpiry:  24 * time.Hour,
		refreshExpiry: 30 * 24 * time.Hour,
	}
}

// GenerateTokenPair issues an access and a refresh token for the user.
func (s *JWTService) GenerateTokenPair(user *db.User) (*TokenPair, error) {
	access, err := s.sign(user, TokenTypeAccess, s.accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenTypeRefresh, s.refreshExpiry)
	if err != nil {
		return nil, err
	}
	log.Debugf("Generated token pair for user %s", user.Email)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *JWTService) sign(user *db.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "manim-tutor-api",
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Errorf("Failed to sign JWT token for user %s: %v", user.Email, err)
		return "", err
	}
	return tokenString, nil
}

// ValidateToken validates a JWT token of the expected type and returns the
// claims if valid. Access tokens never pass where a refresh token is
// required, and vice versa.
func (s *JWTService) ValidateToken(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Verify the signing method is what we expect
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		log.Warnf("JWT validation failed: %v", err)
		return nil, err
	}
	if !token.Valid {
		log.Warn("Invalid JWT token.")
		return nil, jwt.ErrInvalidKey
	}
	if claims.TokenType != expectedType {
		log.Warnf("Token type %q presented where %q is required", claims.TokenType, expectedType)
		return nil, fmt.Errorf("token is not a %s token", expectedType)
	}
	return claims, nil
}
