package handler

import (
	"errors"
	"net/http"

	"github.com/careloop/rpm-auth/internal/dto"
	"github.com/careloop/rpm-auth/internal/realtime"
	"github.com/careloop/rpm-auth/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService service.AuthService
	presence    *realtime.Registry
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, presence *realtime.Registry, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		presence:    presence,
		logger:      logger,
	}
}

// Login handles user login
// @Summary Login user
// @Description Authenticate with identifier and password; username method returns tokens, email method starts an OTP challenge
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req, h.deviceMeta(c, req.DeviceFingerprint))
	if err != nil {
		h.rejectAuth(c, err)
		return
	}

	if result.OTPPending {
		c.JSON(http.StatusOK, dto.OTPPendingResponse{
			Message:    "OTP sent, please verify",
			OTPPending: true,
		})
		return
	}

	h.setRefreshCookie(c, result.Auth)
	c.JSON(http.StatusOK, result.Auth.AuthResponse)
}

// VerifyOTP handles OTP verification for the email login flow
// @Summary Verify login OTP
// @Description Exchange a pending one-time code for tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.VerifyOTPRequest true "OTP verification request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	auth, err := h.authService.VerifyOTP(c.Request.Context(), &req, h.deviceMeta(c, req.DeviceFingerprint))
	if err != nil {
		h.rejectAuth(c, err)
		return
	}

	h.setRefreshCookie(c, auth)
	c.JSON(http.StatusOK, auth.AuthResponse)
}

// Refresh handles token refresh
// @Summary Refresh tokens
// @Description Rotate the refresh token and mint a new access token; the token must be presented from the device it was issued to
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshRequest true "Refresh request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "Refresh token not found in cookie",
		})
		return
	}

	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
		return
	}

	auth, err := h.authService.Refresh(c.Request.Context(), refreshToken, req.DeviceFingerprint)
	if err != nil {
		h.rejectAuth(c, err)
		return
	}

	h.setRefreshCookie(c, auth)
	c.JSON(http.StatusOK, auth.AuthResponse)
}

// Logout handles user logout. The route carries no auth middleware: a replayed
// logout must keep succeeding even after the first call blacklisted the access
// token, so the tokens are taken as presented and revocation is best effort.
// @Summary Logout user
// @Description Revoke the device session and clear the refresh cookie; repeatable
// @Tags auth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshCookieName)
	accessToken := bearerToken(c)

	userID, err := h.authService.Logout(c.Request.Context(), accessToken, refreshToken)
	if err != nil {
		// Logout reports success regardless; the service already logged.
		h.logger.Warn("logout returned error", zap.Error(err))
	}

	if userID != 0 {
		h.presence.Unregister(userID)
	}

	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", true, true)

	c.JSON(http.StatusOK, dto.SuccessResponse{
		Message: "Logged out successfully",
	})
}

// GetMe handles getting current user profile
// @Summary Get current user profile
// @Description Get information about the current authenticated user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found in context",
		})
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load user profile", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to load profile",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) deviceMeta(c *gin.Context, fingerprint string) service.DeviceMeta {
	return service.DeviceMeta{
		Fingerprint: fingerprint,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, auth *service.AuthResult) {
	c.SetCookie(refreshCookieName, auth.RefreshToken, auth.RefreshExpiresIn, refreshCookiePath, "", true, true)
}

// rejectAuth maps service errors to HTTP responses. Authentication rejections
// are expected traffic; only infrastructure failures are logged as errors.
func (h *AuthHandler) rejectAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrRoleNotFound),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrInvalidOrExpiredOTP),
		errors.Is(err, service.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "Unauthorized",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrOTPDeliveryFailed):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "OTP delivery failed",
			Message: "Could not deliver the verification code, please retry",
		})
	default:
		h.logger.Error("authentication infrastructure failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Authentication backend unavailable",
		})
	}
}

func userIDFromContext(c *gin.Context) (int64, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	userID, ok := v.(int64)
	return userID, ok
}
