package service

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/dto"
	"go.uber.org/zap"
)

// LoginResult is the outcome of a login request: either issued tokens or an
// acknowledgement that an OTP challenge is pending.
type LoginResult struct {
	OTPPending bool
	Auth       *AuthResult
}

// AuthResult contains the auth response plus the refresh token artifact,
// which the transport layer delivers separately (httpOnly cookie).
type AuthResult struct {
	AuthResponse     *dto.AuthResponse
	RefreshToken     string
	RefreshExpiresIn int // Refresh token expiry in seconds
}

// issueSession mints both tokens, binds the refresh token to the device by
// upserting the (user, fingerprint) session row, and stamps last_login.
func (s *authService) issueSession(ctx context.Context, user *domain.User, role string, device DeviceMeta) (*AuthResult, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	session := &domain.DeviceSession{
		UserID:            user.ID,
		DeviceFingerprint: device.Fingerprint,
		RefreshTokenHash:  hashToken(refreshToken),
		AbsoluteExpiresAt: time.Now().Add(s.refreshTokenExpiry),
	}
	if device.IPAddress != "" {
		session.IPAddress = &device.IPAddress
	}
	if device.UserAgent != "" {
		session.UserAgent = &device.UserAgent
	}

	if err := s.sessionRepo.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save device session: %w", err)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("last login update failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return s.buildAuthResult(user, role, accessToken, refreshToken), nil
}

func (s *authService) buildAuthResult(user *domain.User, role, accessToken, refreshToken string) *AuthResult {
	return &AuthResult{
		AuthResponse: &dto.AuthResponse{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   s.jwtManager.GetAccessTokenExpiry(),
			User: dto.UserInfo{
				ID:    user.ID,
				Email: user.Email,
				Role:  role,
			},
		},
		RefreshToken:     refreshToken,
		RefreshExpiresIn: int(s.refreshTokenExpiry.Seconds()),
	}
}
