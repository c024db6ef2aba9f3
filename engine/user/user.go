package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/compozy/modelstore/engine/core"
)

// Role represents user access level
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid checks if the role is a valid value
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Status represents the lifecycle state of an account
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Domain errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// User is a system user stored in the users collection.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"                   validate:"required,email"`
	Name        string          `json:"name,omitempty"          validate:"omitempty,max=120"`
	Role        Role            `json:"role"                    validate:"required,oneof=admin user"`
	Status      Status          `json:"status"                  validate:"required,oneof=active suspended"`
	LoginCount  int             `json:"login_count"`
	CreatedAt   core.Timestamp  `json:"created_at"`
	LastLoginAt *core.Timestamp `json:"last_login_at,omitempty"`
}

// Validate enforces that stored emails are already normalized.
func (u *User) Validate(_ context.Context) error {
	if u.Email != NormalizeEmail(u.Email) {
		return fmt.Errorf("%w: email must be lower case without surrounding spaces", ErrInvalidEmail)
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
