package repository

import (
	"github.com/careloop/rpm-auth/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User          UserRepository
	Role          RoleRepository
	DeviceSession DeviceSessionRepository
	OTP           OTPRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Role:          NewRoleRepository(db),
		DeviceSession: NewDeviceSessionRepository(db),
		OTP:           NewOTPRepository(db),
	}
}
