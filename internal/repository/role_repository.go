package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/careloop/rpm-auth/pkg/database"
)

// roleRepository implements RoleRepository interface
type roleRepository struct {
	db *database.Postgres
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *database.Postgres) RoleRepository {
	return &roleRepository{db: db}
}

// GetRoleByUsername retrieves the role label for a username. The roles table
// joins on username rather than user id (legacy key); the newest assignment
// wins when a user has more than one row.
func (r *roleRepository) GetRoleByUsername(ctx context.Context, username string) (string, error) {
	query := `
		SELECT role_type
		FROM roles
		WHERE username = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var role string
	err := r.db.DB.QueryRowContext(ctx, query, username).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("role for username %s not found: %w", username, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get role by username: %w", err)
	}

	return role, nil
}
