package auth

import (
	"errors"
	"time"

	"github.com/hearth-cms/hearth/internal/access"
)

// User represents a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	Phone        string
	Nickname     string
	Role         access.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the access principal for u acting through session.
func (u User) Principal(session string) access.Principal {
	return access.Principal{ID: u.ID, Role: u.Role, Session: session}
}

// SignupInput carries the registration form.
type SignupInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=32"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Name            string `json:"name" validate:"required,max=10"`
	Phone           string `json:"phone" validate:"omitempty,numeric,min=9,max=15"`
	Nickname        string `json:"nickname" validate:"omitempty,min=2,max=20"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserNotFound is returned by repositories for unknown users.
	ErrUserNotFound = errors.New("auth: user not found")
)
