package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user account.
// Memberships, loans and transactions reference users by ID only.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Username is the unique handle used for invitations.
	Username string

	// Email is the user's email address (unique).
	// Used for login and invitations.
	Email string

	// DisplayName is the name shown to other members.
	DisplayName string

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string

	// CreatedAt is the Unix timestamp when the user account was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last profile change.
	UpdatedAt int64
}

// NewUser creates a user with a fresh ID and timestamps.
func NewUser(username, email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
