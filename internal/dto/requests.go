package dto

// Login methods select how the identifier is matched and which flow runs:
// username logins are issued tokens directly, email logins go through the
// one-time-code challenge.
const (
	LoginMethodUsername = "username"
	LoginMethodEmail    = "email"
)

// LoginRequest represents a login request.
type LoginRequest struct {
	Identifier        string `json:"identifier" binding:"required"`
	Password          string `json:"password" binding:"required"`
	Method            string `json:"method" binding:"required,oneof=username email"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
}

// VerifyOTPRequest represents an OTP verification request for the email flow.
type VerifyOTPRequest struct {
	Identifier        string `json:"identifier" binding:"required"`
	Code              string `json:"code" binding:"required,len=6"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
}

// RefreshRequest carries the device fingerprint presented with the refresh
// cookie. A refresh token is only honored together with the fingerprint it
// was issued against.
type RefreshRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
}

// AuthResponse represents a successful authentication response.
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        UserInfo `json:"user"`
}

// OTPPendingResponse acknowledges that a one-time code was sent. The code
// itself is never included.
type OTPPendingResponse struct {
	Message    string `json:"message"`
	OTPPending bool   `json:"otp_pending"`
}

// UserInfo represents user information in an auth response.
type UserInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserResponse represents a user profile response.
type UserResponse struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone"`
	LastLoginAt *string `json:"last_login_at"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
