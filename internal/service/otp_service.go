package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/repository"
	"go.uber.org/zap"
)

// otpService implements OTPService backed by the challenge table.
type otpService struct {
	otpRepo repository.OTPRepository
	sender  OTPSender
	ttl     time.Duration
	logger  *zap.Logger
}

// NewOTPService creates a new OTP challenge service
func NewOTPService(otpRepo repository.OTPRepository, sender OTPSender, ttl time.Duration, logger *zap.Logger) OTPService {
	return &otpService{
		otpRepo: otpRepo,
		sender:  sender,
		ttl:     ttl,
		logger:  logger,
	}
}

// Issue generates, persists and delivers a fresh code. Persisting first means
// a delivery failure leaves a challenge behind; it is superseded on the next
// attempt and expires on its own, so no cleanup pass is needed.
func (s *otpService) Issue(ctx context.Context, user *domain.User, purpose string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate otp code: %w", err)
	}

	challenge := &domain.OTPChallenge{
		UserID:  user.ID,
		Purpose: purpose,
		Code:    code,
	}
	if err := s.otpRepo.Create(ctx, challenge); err != nil {
		return fmt.Errorf("failed to store otp challenge: %w", err)
	}

	if err := s.sender.SendCode(ctx, user.Email, code); err != nil {
		s.logger.Warn("otp delivery failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrOTPDeliveryFailed, err)
	}

	return nil
}

// Verify consumes the challenge matching (user, purpose, code). The cutoff
// below makes expiry part of the same conditional update that flips the
// consumed flag, so replayed and raced verifications both miss.
func (s *otpService) Verify(ctx context.Context, userID int64, code, purpose string) error {
	notBefore := time.Now().Add(-s.ttl)

	err := s.otpRepo.Consume(ctx, userID, purpose, code, notBefore)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredOTP
		}
		return fmt.Errorf("failed to consume otp challenge: %w", err)
	}

	return nil
}

// generateCode returns a uniformly random six-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
