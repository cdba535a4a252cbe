package service

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/pkg/database"
)

// TokenBlacklistService voids access tokens ahead of their natural expiry,
// used on logout. Refresh-token validity is decided solely by the device
// session table, not here. Tokens are keyed by their SHA-256 hash so raw
// JWTs never land in Redis.
type TokenBlacklistService struct {
	redis *database.Redis
}

// NewTokenBlacklistService creates a new token blacklist service
func NewTokenBlacklistService(redis *database.Redis) *TokenBlacklistService {
	return &TokenBlacklistService{redis: redis}
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:token:%s", hashToken(token))
}

// AddToken adds a token to the blacklist for the given remaining lifetime
func (s *TokenBlacklistService) AddToken(ctx context.Context, token string, expiry time.Duration) error {
	if err := s.redis.Client.Set(ctx, blacklistKey(token), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token is in the blacklist
func (s *TokenBlacklistService) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := s.redis.Client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}
