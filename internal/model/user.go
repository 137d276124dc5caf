package model

import "time"

// Staff roles.  ADMIN manages availability windows and their plans,
// STAFF operates the booking desk and the daily queue.
const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
)

// User is a staff account as stored in the users table.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a row in refresh_tokens.  Only the SHA-256 hash of
// the raw token is persisted.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
