package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/pkg/database"
	"github.com/lib/pq"
)

// deviceSessionRepository implements DeviceSessionRepository interface
type deviceSessionRepository struct {
	db *database.Postgres
}

// NewDeviceSessionRepository creates a new device session repository
func NewDeviceSessionRepository(db *database.Postgres) DeviceSessionRepository {
	return &deviceSessionRepository{db: db}
}

const sessionColumns = `id, user_id, device_fingerprint, refresh_token_hash, ip_address, user_agent, absolute_expires_at, last_activity_at, revoked, created_at, updated_at`

func scanSession(scan func(dest ...interface{}) error) (*domain.DeviceSession, error) {
	session := &domain.DeviceSession{}
	var ipAddress, userAgent sql.NullString

	err := scan(
		&session.ID,
		&session.UserID,
		&session.DeviceFingerprint,
		&session.RefreshTokenHash,
		&ipAddress,
		&userAgent,
		&session.AbsoluteExpiresAt,
		&session.LastActivityAt,
		&session.Revoked,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ipAddress.Valid {
		session.IPAddress = &ipAddress.String
	}
	if userAgent.Valid {
		session.UserAgent = &userAgent.String
	}

	return session, nil
}

// Upsert installs the session row for (user_id, device_fingerprint). A second
// login from the same device replaces the stored token hash and metadata and
// clears the revoked flag instead of inserting a duplicate row.
func (r *deviceSessionRepository) Upsert(ctx context.Context, session *domain.DeviceSession) error {
	query := `
		INSERT INTO device_sessions (user_id, device_fingerprint, refresh_token_hash, ip_address, user_agent, absolute_expires_at, last_activity_at, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), FALSE, NOW(), NOW())
		ON CONFLICT (user_id, device_fingerprint) DO UPDATE
		SET refresh_token_hash = EXCLUDED.refresh_token_hash,
		    ip_address = EXCLUDED.ip_address,
		    user_agent = EXCLUDED.user_agent,
		    absolute_expires_at = EXCLUDED.absolute_expires_at,
		    last_activity_at = NOW(),
		    revoked = FALSE,
		    updated_at = NOW()
		RETURNING id, last_activity_at, created_at, updated_at
	`

	err := r.db.DB.QueryRowContext(ctx, query,
		session.UserID,
		session.DeviceFingerprint,
		session.RefreshTokenHash,
		session.IPAddress,
		session.UserAgent,
		session.AbsoluteExpiresAt,
	).Scan(
		&session.ID,
		&session.LastActivityAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("device session for user %d already exists: %w", session.UserID, ErrDuplicateSession)
			}
		}
		return fmt.Errorf("failed to upsert device session: %w", err)
	}

	return nil
}

// Rotate swaps the stored refresh token hash in a single conditional update.
// The row must match both the presented token hash and the device fingerprint
// and must be unrevoked and inside its absolute lifetime; otherwise zero rows
// match and ErrNotFound is returned. Two concurrent rotations of the same
// token cannot both succeed because the first one invalidates the predicate.
func (r *deviceSessionRepository) Rotate(ctx context.Context, tokenHash, fingerprint, newTokenHash string) (*domain.DeviceSession, error) {
	query := fmt.Sprintf(`
		UPDATE device_sessions
		SET refresh_token_hash = $3, last_activity_at = NOW(), updated_at = NOW()
		WHERE refresh_token_hash = $1
		  AND device_fingerprint = $2
		  AND revoked = FALSE
		  AND absolute_expires_at > NOW()
		RETURNING %s
	`, sessionColumns)

	row := r.db.DB.QueryRowContext(ctx, query, tokenHash, fingerprint, newTokenHash)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no live session for presented token and device: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return session, nil
}

// Revoke marks the session owning the token hash revoked. Zero affected rows
// means the token was already revoked or never existed, which is not an error.
func (r *deviceSessionRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE device_sessions
		SET revoked = TRUE, updated_at = NOW()
		WHERE refresh_token_hash = $1 AND revoked = FALSE
	`

	if _, err := r.db.DB.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to revoke device session: %w", err)
	}

	return nil
}

// DeleteExpired deletes all sessions past their absolute expiry
func (r *deviceSessionRepository) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM device_sessions WHERE absolute_expires_at < $1`

	if _, err := r.db.DB.ExecContext(ctx, query, time.Now()); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return nil
}
