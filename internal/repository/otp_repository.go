package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/pkg/database"
)

// otpRepository implements OTPRepository interface
type otpRepository struct {
	db *database.Postgres
}

// NewOTPRepository creates a new OTP challenge repository
func NewOTPRepository(db *database.Postgres) OTPRepository {
	return &otpRepository{db: db}
}

// Create inserts a fresh challenge. Any unconsumed challenge for the same
// (user, purpose) is consumed first inside the same transaction, so exactly
// one code is ever authoritative.
func (r *otpRepository) Create(ctx context.Context, challenge *domain.OTPChallenge) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	supersede := `
		UPDATE otp_challenges
		SET consumed = TRUE
		WHERE user_id = $1 AND purpose = $2 AND consumed = FALSE
	`
	if _, err := tx.ExecContext(ctx, supersede, challenge.UserID, challenge.Purpose); err != nil {
		return fmt.Errorf("failed to supersede prior challenges: %w", err)
	}

	insert := `
		INSERT INTO otp_challenges (user_id, purpose, code, created_at, consumed)
		VALUES ($1, $2, $3, NOW(), FALSE)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, insert,
		challenge.UserID,
		challenge.Purpose,
		challenge.Code,
	).Scan(&challenge.ID, &challenge.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit otp challenge: %w", err)
	}

	return nil
}

// Consume marks the matching challenge consumed in a single conditional
// update: code equality, expiry and consumed state are all part of the
// predicate, so a replayed or raced verification sees zero rows.
func (r *otpRepository) Consume(ctx context.Context, userID int64, purpose, code string, notBefore time.Time) error {
	query := `
		UPDATE otp_challenges
		SET consumed = TRUE
		WHERE user_id = $1
		  AND purpose = $2
		  AND code = $3
		  AND consumed = FALSE
		  AND created_at > $4
		RETURNING id
	`

	var id int64
	err := r.db.DB.QueryRowContext(ctx, query, userID, purpose, code, notBefore).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no valid otp challenge for user %d: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("failed to consume otp challenge: %w", err)
	}

	return nil
}
