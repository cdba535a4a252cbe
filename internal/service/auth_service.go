package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/dto"
	"github.com/careloop/rpm-auth/internal/repository"
	"github.com/careloop/rpm-auth/internal/utils"
	"go.uber.org/zap"
)

// authService implements AuthService interface
type authService struct {
	userRepo           repository.UserRepository
	roleRepo           repository.RoleRepository
	sessionRepo        repository.DeviceSessionRepository
	otpService         OTPService
	jwtManager         *utils.JWTManager
	blacklistService   TokenBlacklist
	refreshTokenExpiry time.Duration
	logger             *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	sessionRepo repository.DeviceSessionRepository,
	otpService OTPService,
	jwtManager *utils.JWTManager,
	blacklistService TokenBlacklist,
	refreshTokenExpiry time.Duration,
	logger *zap.Logger,
) AuthService {
	return &authService{
		userRepo:           userRepo,
		roleRepo:           roleRepo,
		sessionRepo:        sessionRepo,
		otpService:         otpService,
		jwtManager:         jwtManager,
		blacklistService:   blacklistService,
		refreshTokenExpiry: refreshTokenExpiry,
		logger:             logger,
	}
}

// Login authenticates a user. The username method issues tokens directly;
// the email method starts an OTP challenge and returns no tokens.
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, device DeviceMeta) (*LoginResult, error) {
	user, err := s.verifyCredentials(ctx, req.Identifier, req.Password, req.Method)
	if err != nil {
		return nil, err
	}

	role, err := s.lookupRole(ctx, user.Username)
	if err != nil {
		return nil, err
	}

	if req.Method == dto.LoginMethodEmail {
		if err := s.otpService.Issue(ctx, user, domain.OTPPurposeLogin); err != nil {
			return nil, err
		}
		return &LoginResult{OTPPending: true}, nil
	}

	auth, err := s.issueSession(ctx, user, role, device)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Auth: auth}, nil
}

// VerifyOTP consumes a pending login challenge and issues tokens through the
// same path as a direct login.
func (s *authService) VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest, device DeviceMeta) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOrExpiredOTP
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.otpService.Verify(ctx, user.ID, req.Code, domain.OTPPurposeLogin); err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	role, err := s.lookupRole(ctx, user.Username)
	if err != nil {
		return nil, err
	}

	return s.issueSession(ctx, user, role, device)
}

// Refresh rotates the presented refresh token. Signature verification alone
// is never sufficient: the rotation statement cross-checks the stored session
// row against both the token hash and the device fingerprint, and rejects
// revoked or absolutely expired sessions, all in one conditional update.
func (s *authService) Refresh(ctx context.Context, refreshToken, fingerprint string) (*AuthResult, error) {
	userID, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	newRefreshToken, err := s.jwtManager.GenerateRefreshToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	session, err := s.sessionRepo.Rotate(ctx, hashToken(refreshToken), fingerprint, hashToken(newRefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	if session.UserID != userID {
		// Token claims disagree with the owning row; treat as forged.
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	role, err := s.lookupRole(ctx, user.Username)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return s.buildAuthResult(user, role, accessToken, newRefreshToken), nil
}

// Logout revokes the session owning the refresh token and voids the access
// token for its remaining lifetime. Revoking an already-revoked or unknown
// token is a no-op and blacklisting is repeatable, so replaying the same
// logout keeps succeeding; the caller always gets an ack.
func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) (int64, error) {
	var userID int64

	if refreshToken != "" {
		if id, err := s.jwtManager.ValidateRefreshToken(refreshToken); err == nil {
			userID = id
		}
		if err := s.sessionRepo.Revoke(ctx, hashToken(refreshToken)); err != nil {
			s.logger.Warn("session revoke failed during logout", zap.Error(err))
		}
	}

	if accessToken != "" {
		// An access token that no longer verifies cannot be presented
		// anyway, and the blacklist entry only needs to outlive the exp
		// claim, not the full configured lifetime.
		if claims, err := s.jwtManager.ValidateAccessToken(accessToken); err == nil {
			if ttl := time.Until(time.Unix(claims.Exp, 0)); ttl > 0 {
				if err := s.blacklistService.AddToken(ctx, accessToken, ttl); err != nil {
					s.logger.Warn("access token blacklisting failed during logout", zap.Error(err))
				}
			}
		}
	}

	return userID, nil
}

// GetUser gets user profile information
func (s *authService) GetUser(ctx context.Context, userID int64) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	response := &dto.UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
		Email:    user.Email,
		Phone:    user.Phone,
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response, nil
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AccessClaims, error) {
	isBlacklisted, err := s.blacklistService.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if isBlacklisted {
		return nil, fmt.Errorf("token is blacklisted")
	}

	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

// verifyCredentials resolves the identifier per the lookup method and checks
// the password. Unknown identifier and wrong password collapse into the same
// error, and an unknown identifier still pays the bcrypt cost.
func (s *authService) verifyCredentials(ctx context.Context, identifier, password, method string) (*domain.User, error) {
	var user *domain.User
	var err error

	switch method {
	case dto.LoginMethodEmail:
		email := utils.SanitizeEmail(identifier)
		if !utils.ValidateEmail(email) {
			utils.BurnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		user, err = s.userRepo.GetByEmail(ctx, email)
	default:
		user, err = s.userRepo.GetByUsername(ctx, utils.SanitizeIdentifier(identifier))
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.BurnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	return user, nil
}

func (s *authService) lookupRole(ctx context.Context, username string) (string, error) {
	role, err := s.roleRepo.GetRoleByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// hashToken hashes a token using SHA256 for at-rest storage and lookup.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
