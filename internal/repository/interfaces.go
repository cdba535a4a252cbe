package repository

import (
	"context"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
)

// UserRepository defines methods for user lookups. The auth core never
// creates or deletes users; it only reads them and stamps last_login.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID int64) error
}

// RoleRepository defines methods for role lookups.
type RoleRepository interface {
	GetRoleByUsername(ctx context.Context, username string) (string, error)
}

// DeviceSessionRepository defines methods for the per-device session rows.
// Rotate and Revoke operate on the SHA-256 hash of the presented refresh
// token, never on the token itself.
type DeviceSessionRepository interface {
	// Upsert installs a session for (userID, fingerprint), replacing the
	// stored token hash, network metadata and expiries if a row exists.
	Upsert(ctx context.Context, session *domain.DeviceSession) error

	// Rotate atomically swaps the stored token hash for newTokenHash and
	// bumps last_activity, but only if the row matching (tokenHash,
	// fingerprint) is unrevoked and not past its absolute expiry. Returns
	// ErrNotFound when no such row qualifies.
	Rotate(ctx context.Context, tokenHash, fingerprint, newTokenHash string) (*domain.DeviceSession, error)

	// Revoke marks the session owning tokenHash revoked. Revoking an
	// absent or already-revoked token is a no-op.
	Revoke(ctx context.Context, tokenHash string) error

	DeleteExpired(ctx context.Context) error
}

// OTPRepository defines methods for one-time-code challenges.
type OTPRepository interface {
	// Create persists a fresh challenge and supersedes any unconsumed
	// challenge for the same (user, purpose) in the same transaction.
	Create(ctx context.Context, challenge *domain.OTPChallenge) error

	// Consume marks the challenge matching (userID, purpose, code) consumed
	// and returns ErrNotFound if no unconsumed challenge created after
	// notBefore matches. Check and consume happen in a single statement so
	// concurrent verifications cannot both succeed.
	Consume(ctx context.Context, userID int64, purpose, code string, notBefore time.Time) error
}
