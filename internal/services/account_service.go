package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/models"
	"github.com/stridefit/stride-auth/internal/provider"
	pkgauth "github.com/stridefit/stride-auth/pkg/auth"
	"github.com/stridefit/stride-auth/pkg/logger"
)

// dummyBcryptHash is compared against when an account has no password so a
// provider-only account takes as long to reject as a wrong password would.
// Hash of an unguessable random value, never a valid credential.
const dummyBcryptHash = "$2a$12$K3JNi5xUgVdkXBtgsDBeUuTE4kZ4p6a3Ee9U2hQFPqrAcgfjSM5nW"

// AccountService implements first-party email/password registration and
// login, including the failed-attempt lockout state machine.
type AccountService struct {
	accounts AccountRepository
	sessions *auth.SessionManager
	tokens   *TokenService
	timing   *auth.TimingDelay
	audit    *logger.AuditLogger
	logger   *slog.Logger

	lockoutThreshold int
	lockoutDuration  time.Duration
}

func NewAccountService(
	accounts AccountRepository,
	sessions *auth.SessionManager,
	tokens *TokenService,
	timing *auth.TimingDelay,
	audit *logger.AuditLogger,
	log *slog.Logger,
	lockoutThreshold int,
	lockoutDuration time.Duration,
) *AccountService {
	return &AccountService{
		accounts:         accounts,
		sessions:         sessions,
		tokens:           tokens,
		timing:           timing,
		audit:            audit,
		logger:           log,
		lockoutThreshold: lockoutThreshold,
		lockoutDuration:  lockoutDuration,
	}
}

// Register creates an unverified email account and sends the verification
// email. A duplicate registration succeeds from the caller's perspective;
// only the log records the conflict, so the endpoint cannot be used to probe
// which addresses exist.
func (s *AccountService) Register(ctx context.Context, email, password, name string) error {
	addr := normalizeEmail(email)

	if err := pkgauth.ValidatePassword(password); err != nil {
		return &models.ValidationError{Rule: err.Error()}
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ExternalID:    provider.ProviderEmail.QualifyID(addr),
		Email:         &addr,
		Name:          name,
		PasswordHash:  hash,
		EmailVerified: false,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("duplicate registration attempt",
				slog.String("email", logger.SanitizedEmail(addr)),
			)
			return nil
		}
		return err
	}

	if err := s.tokens.IssueVerification(ctx, created); err != nil {
		// The account exists; the user can request a resend.
		s.logger.Error("failed to issue verification after registration",
			slog.String("account_id", created.ID),
			slog.Any("error", err),
		)
	}

	s.audit.LogAccountAction("account_registered", created.ID, map[string]string{
		"email": logger.SanitizedEmail(addr),
	})
	return nil
}

// Login runs the email/password state machine: lookup, lockout check,
// verification check, password compare. Unknown email, provider-only
// account, and wrong password are indistinguishable to the caller; only
// lockout and unverified email get specific errors, both of which require a
// correct-looking attempt to matter.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	addr := normalizeEmail(email)

	account, err := s.lookupForLogin(ctx, addr)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn the same bcrypt cost as a real compare.
			_ = pkgauth.ComparePassword(dummyBcryptHash, password)
			s.failAudit("", "unknown email")
			s.timing.Wait(false)
			return nil, models.ErrInvalidCredential
		}
		return nil, err
	}

	now := time.Now()
	if account.Locked(now) {
		// No counter increment while locked; attempts during the window
		// do not extend it.
		s.failAudit(account.ID, "account locked")
		return nil, &models.RateLimitedError{RetryAfter: account.LockRemaining(now)}
	}

	if !account.HasPassword() {
		_ = pkgauth.ComparePassword(dummyBcryptHash, password)
		s.failAudit(account.ID, "provider-only account")
		s.timing.Wait(false)
		return nil, models.ErrInvalidCredential
	}

	// Checked before the password compare so an unverified user gets the
	// actionable error even with the right password.
	if !account.EmailVerified {
		s.failAudit(account.ID, "email not verified")
		return nil, models.ErrEmailNotVerified
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		attempts, lockedUntil, recErr := s.accounts.RecordLoginFailure(ctx, account.ID, s.lockoutThreshold, s.lockoutDuration)
		if recErr != nil {
			s.logger.Error("failed to record login failure", slog.Any("error", recErr))
		} else if lockedUntil != nil {
			s.logger.Warn("account locked after repeated failures",
				slog.String("account_id", account.ID),
				slog.Int("failed_attempts", attempts),
			)
		}
		s.failAudit(account.ID, "wrong password")
		s.timing.Wait(false)
		return nil, models.ErrInvalidCredential
	}

	if err := s.accounts.RecordLoginSuccess(ctx, account.ID); err != nil {
		s.logger.Error("failed to reset login failure counter", slog.Any("error", err))
	}

	token, err := s.sessions.Issue(account.ID, string(provider.ProviderEmail))
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "email_login",
		AccountID: account.ID,
		Provider:  string(provider.ProviderEmail),
		Success:   true,
	})

	account.FailedAttempts = 0
	account.LockedUntil = nil
	return &AuthResponse{Token: token, Account: account}, nil
}

// lookupForLogin finds the account for an email login attempt. The qualified
// external id is authoritative; the plain email fallback catches
// provider-created accounts, which then fail the dummy compare above rather
// than revealing they have no password.
func (s *AccountService) lookupForLogin(ctx context.Context, addr string) (*models.Account, error) {
	account, err := s.accounts.GetByExternalID(ctx, provider.ProviderEmail.QualifyID(addr))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.accounts.GetByEmail(ctx, addr)
}

func (s *AccountService) failAudit(accountID, reason string) {
	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "email_login",
		AccountID:     accountID,
		Provider:      string(provider.ProviderEmail),
		Success:       false,
		FailureReason: reason,
	})
}
