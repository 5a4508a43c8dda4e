package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":    true,
	"12345678":    true,
	"qwerty123":   true,
	"password123": true,
	"letmein1":    true,
	"welcome1":    true,
	"passw0rd":    true,
	"sunshine1":   true,
	"football1":   true,
	"trustno1":    true,
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// PasswordValidationError names the first strength rule the candidate
// password violated.
type PasswordValidationError struct {
	Rule string
}

func (e *PasswordValidationError) Error() string {
	return e.Rule
}

// ValidatePassword enforces password strength requirements: length bounds
// plus uppercase, lowercase, and digit character classes.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return &PasswordValidationError{Rule: fmt.Sprintf("password must be at least %d characters", MinPasswordLen)}
	}
	if len(password) > MaxPasswordLen {
		return &PasswordValidationError{Rule: fmt.Sprintf("password must be at most %d characters", MaxPasswordLen)}
	}

	hasUpper := false
	hasLower := false
	hasDigit := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return &PasswordValidationError{Rule: "password must contain at least one uppercase letter"}
	}
	if !hasLower {
		return &PasswordValidationError{Rule: "password must contain at least one lowercase letter"}
	}
	if !hasDigit {
		return &PasswordValidationError{Rule: "password must contain at least one digit"}
	}

	if commonPasswords[strings.ToLower(password)] {
		return &PasswordValidationError{Rule: "password is too common, please choose a more unique password"}
	}

	return nil
}
