package service

import "errors"

// Authentication failure kinds reported to the caller. Everything outside
// this set bubbling up from the repositories is an infrastructure failure
// and maps to a generic server error at the boundary.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong
	// password; the two are never distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRoleNotFound is returned when a user has no role mapping. Treated
	// as an authentication failure, not a server error.
	ErrRoleNotFound = errors.New("user role not found")

	// ErrAccountInactive is returned when the account is disabled.
	ErrAccountInactive = errors.New("user account is inactive")

	// ErrInvalidOrExpiredOTP is returned when no matching unconsumed,
	// unexpired challenge exists for the presented code.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")

	// ErrOTPDeliveryFailed is returned when the code could not be sent, so
	// the caller never believes a code is in flight when it is not.
	ErrOTPDeliveryFailed = errors.New("otp delivery failed")

	// ErrInvalidRefreshToken collapses every refresh rejection cause:
	// bad signature, token expiry, device-fingerprint mismatch, revoked
	// session and absolute session expiry.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)
