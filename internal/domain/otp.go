package domain

import "time"

// OTPPurposeLogin tags one-time codes issued for the email login flow.
const OTPPurposeLogin = "login"

// OTPChallenge is an ephemeral one-time code bound to a user and purpose.
// At most one unconsumed challenge per (user, purpose) is authoritative:
// issuing a new code supersedes any earlier one, and verification consumes
// the row in the same statement that checks it.
type OTPChallenge struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Purpose   string    `json:"purpose" db:"purpose"`
	Code      string    `json:"-" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Consumed  bool      `json:"consumed" db:"consumed"`
}
