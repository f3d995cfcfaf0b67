// Package auth implements the login and JWT surface (C11): WhatsApp-code
// login for end-users and phone/password login for admins, both issuing an
// access/refresh token pair. Grounded on the teacher's internal/core/auth
// package (jwt.go, password.go, middleware.go), narrowed to the claim shape
// this spec's single-tenant User model needs.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenDuration  = 15 * time.Minute
	refreshTokenDuration = 7 * 24 * time.Hour
)

// JWTService issues and validates HS256 access/refresh token pairs.
type JWTService struct {
	secretKey string
}

func NewJWTService(secretKey string) *JWTService {
	return &JWTService{secretKey: secretKey}
}

// Claims is what ValidateAccessToken extracts from a signed access token.
type Claims struct {
	UserID  uint
	IsAdmin bool
}

func (s *JWTService) GenerateAccessToken(userID uint, isAdmin bool) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(accessTokenDuration)

	claims := jwt.MapClaims{
		"user_id":  userID,
		"is_admin": isAdmin,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}
	return signed, int64(accessTokenDuration.Seconds()), nil
}

func (s *JWTService) GenerateRefreshToken(userID uint) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(refreshTokenDuration)

	claims := jwt.MapClaims{
		"user_id": userID,
		"type":    "refresh",
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid user_id in token")
	}
	isAdmin, _ := claims["is_admin"].(bool)

	return &Claims{UserID: uint(userID), IsAdmin: isAdmin}, nil
}

func (s *JWTService) ValidateRefreshToken(tokenString string) (uint, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, err
	}

	if tokenType, _ := claims["type"].(string); tokenType != "refresh" {
		return 0, fmt.Errorf("not a refresh token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user_id in token")
	}
	return uint(userID), nil
}

func (s *JWTService) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
