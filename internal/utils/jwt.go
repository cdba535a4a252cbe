package utils

import (
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "rpm-api"

// JWTManager manages JWT token operations
type JWTManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTokenExpiry, refreshTokenExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
	}
}

// GenerateAccessToken generates a new access token carrying the user's
// identity and role claims.
func (j *JWTManager) GenerateAccessToken(user *domain.User, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":       user.ID,
		"name":     user.Name,
		"username": user.Username,
		"email":    user.Email,
		"role":     role,
		"exp":      now.Add(j.accessTokenExpiry).Unix(),
		"iat":      now.Unix(),
		"iss":      tokenIssuer,
	}
	if user.Phone != nil {
		claims["phone"] = *user.Phone
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken generates a new refresh token. Refresh tokens carry
// only the user id, a type marker and a unique jti.
func (j *JWTManager) GenerateRefreshToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":   userID,
		"exp":  now.Add(j.refreshTokenExpiry).Unix(),
		"iat":  now.Unix(),
		"iss":  tokenIssuer,
		"type": "refresh",
		"jti":  uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, nil
}

func (j *JWTManager) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
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

// ValidateAccessToken validates an access token and returns its claims
func (j *JWTManager) ValidateAccessToken(tokenString string) (*domain.AccessClaims, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims["type"] == "refresh" {
		return nil, fmt.Errorf("refresh token presented as access token")
	}

	id, ok := claims["id"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid id in token")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid exp in token")
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid iat in token")
	}

	accessClaims := &domain.AccessClaims{
		UserID: int64(id),
		Exp:    int64(exp),
		Iat:    int64(iat),
	}
	accessClaims.Name, _ = claims["name"].(string)
	accessClaims.Username, _ = claims["username"].(string)
	accessClaims.Email, _ = claims["email"].(string)
	accessClaims.Role, _ = claims["role"].(string)
	if phone, ok := claims["phone"].(string); ok {
		accessClaims.Phone = &phone
	}

	if accessClaims.IsExpired() {
		return nil, fmt.Errorf("token is expired")
	}

	return accessClaims, nil
}

// ValidateRefreshToken validates a refresh token and returns the user ID
func (j *JWTManager) ValidateRefreshToken(tokenString string) (int64, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return 0, err
	}

	// Check token type
	if claims["type"] != "refresh" {
		return 0, fmt.Errorf("invalid token type")
	}

	id, ok := claims["id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid id in token")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid exp in token")
	}

	if time.Now().Unix() > int64(exp) {
		return 0, fmt.Errorf("token is expired")
	}

	return int64(id), nil
}

// GetAccessTokenExpiry returns the access token expiry duration in seconds
func (j *JWTManager) GetAccessTokenExpiry() int {
	return int(j.accessTokenExpiry.Seconds())
}

// GetRefreshTokenExpiry returns the refresh token expiry duration in seconds
func (j *JWTManager) GetRefreshTokenExpiry() int {
	return int(j.refreshTokenExpiry.Seconds())
}
