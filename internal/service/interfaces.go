package service

import (
	"context"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/dto"
)

// DeviceMeta carries the client signals bound to a session at issuance time.
type DeviceMeta struct {
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

// AuthService defines methods for authentication operations
type AuthService interface {
	// Login verifies credentials and either issues tokens directly
	// (username method) or starts an OTP challenge (email method).
	Login(ctx context.Context, req *dto.LoginRequest, device DeviceMeta) (*LoginResult, error)

	// VerifyOTP consumes a pending challenge and issues tokens exactly as
	// the direct login path would.
	VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, device DeviceMeta) (*AuthResult, error)

	// Refresh rotates the presented refresh token and mints a new access
	// token. The token is only honored together with the fingerprint it
	// was bound to.
	Refresh(ctx context.Context, refreshToken, fingerprint string) (*AuthResult, error)

	// Logout revokes the session owning the refresh token and voids the
	// presented access token. Always succeeds from the caller's view, no
	// matter how many times the same tokens are replayed. Returns the id
	// of the session owner when the refresh token still parses, 0
	// otherwise, so the transport layer can drop presence state.
	Logout(ctx context.Context, accessToken, refreshToken string) (int64, error)

	GetUser(ctx context.Context, userID int64) (*dto.UserResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.AccessClaims, error)
}

// OTPService defines methods for one-time-code challenges
type OTPService interface {
	// Issue generates a fresh six-digit code for the user, persists it
	// (superseding any earlier unconsumed code for the purpose) and hands
	// it to the delivery collaborator.
	Issue(ctx context.Context, user *domain.User, purpose string) error

	// Verify atomically checks and consumes the challenge. A code verifies
	// successfully exactly once.
	Verify(ctx context.Context, userID int64, code, purpose string) error
}

// OTPSender delivers a one-time code to a user out of band.
type OTPSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// TokenBlacklist voids access tokens ahead of their natural expiry.
type TokenBlacklist interface {
	AddToken(ctx context.Context, token string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}
