package models

import (
	"time"
)

// Account is the durable identity record. Every account is keyed by a
// provider-qualified external id (e.g. "apple:<sub>", "email:<address>");
// email alone is never a lookup key because providers may omit it.
type Account struct {
	ID            string
	ExternalID    string
	Email         *string
	Name          string
	AvatarURL     *string
	PasswordHash  string // empty for provider-only accounts
	EmailVerified bool
	Admin         bool

	// Lockout state. LockedUntil is set only once FailedAttempts reaches
	// the configured threshold; a successful login clears both.
	FailedAttempts int
	LockedUntil    *time.Time

	// Email-verification token (hash at rest). A new token replaces the
	// previous one; consumption clears all three fields.
	VerificationTokenHash *string
	VerificationSentAt    *time.Time
	VerificationExpiresAt *time.Time

	// Password-reset token (hash at rest).
	ResetTokenHash    *string
	ResetExpiresAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account is currently locked out.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockRemaining returns how long until the lockout expires, or zero if the
// account is not locked.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.Locked(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// HasPassword reports whether a first-party password credential exists.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}
