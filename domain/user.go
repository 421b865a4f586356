package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	StatusInactive = "inactive"
	StatusActive   = "active"
	StatusBlocked  = "blocked"
)

// User is an account owning tasks.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SetPassword stores the bcrypt hash of password.
func (u *User) SetPassword(password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashed)
	return nil
}

// CheckPassword returns nil when password matches the stored hash.
func (u User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u User) IsActive() bool { return u.Status == StatusActive }

// Credentials is the body of the register and login endpoints.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var (
	ErrInvalidUsername = errors.New("username must be 3-30 characters")
	ErrWeakPassword    = errors.New("password must be at least 6 characters")
)

// ValidateRegistration checks the constraints applied to new accounts.
func (c *Credentials) ValidateRegistration() error {
	c.Username = strings.TrimSpace(c.Username)
	if n := utf8.RuneCountInString(c.Username); n < 3 || n > 30 {
		return ErrInvalidUsername
	}
	if strings.ContainsAny(c.Username, "'/\\#?") {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(c.Password) < 6 {
		return ErrWeakPassword
	}
	return nil
}
