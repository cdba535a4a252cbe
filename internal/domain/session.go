package domain

import "time"

// DeviceSession is the persisted trust record for one (user, device) pair.
// There is exactly one live row per pair; a new login from the same device
// replaces the stored refresh token instead of inserting a second row.
// The refresh token itself is never stored, only its SHA-256 hash.
type DeviceSession struct {
	ID                int64     `json:"id" db:"id"`
	UserID            int64     `json:"user_id" db:"user_id"`
	DeviceFingerprint string    `json:"device_fingerprint" db:"device_fingerprint"`
	RefreshTokenHash  string    `json:"-" db:"refresh_token_hash"`
	IPAddress         *string   `json:"ip_address" db:"ip_address"`
	UserAgent         *string   `json:"user_agent" db:"user_agent"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at" db:"absolute_expires_at"`
	LastActivityAt    time.Time `json:"last_activity_at" db:"last_activity_at"`
	Revoked           bool      `json:"revoked" db:"revoked"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
