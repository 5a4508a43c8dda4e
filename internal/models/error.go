package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and session errors
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrSessionExpired    = errors.New("session expired")
	ErrEmailNotVerified  = errors.New("email address not verified")

	// Single-use token lifecycle errors. Both are reported to the end
	// user as "invalid or expired link"; the split exists for logs and
	// metrics only.
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")

	// ErrDependencyUnavailable marks a provider endpoint or required
	// configuration that is unreachable or absent. A deployment problem,
	// not a caller problem.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// RateLimitedError is returned for lockouts and resend cooldowns. It carries
// a retry-after hint so handlers can tell the legitimate user how long to
// wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// ValidationError reports a malformed input together with the specific rule
// it violated.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return e.Rule
}
