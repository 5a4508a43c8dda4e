package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stridefit/stride-auth/internal/models"
	"github.com/stridefit/stride-auth/internal/provider"
	"github.com/stridefit/stride-auth/pkg/auth"
	"github.com/stridefit/stride-auth/pkg/logger"
)

// tokenBytes is the entropy of a verification or reset token (32 bytes,
// base64url on the wire, SHA-256 hex at rest).
const tokenBytes = 32

// TokenService manages the single-use email-verification and password-reset
// tokens. Plain tokens exist only in outgoing email; the database sees
// hashes, so a leaked dump cannot be replayed against the consume endpoints.
type TokenService struct {
	accounts AccountRepository
	sender   Sender
	logger   *slog.Logger

	verificationExpiry time.Duration
	resetExpiry        time.Duration
	resendCooldown     time.Duration
}

func NewTokenService(accounts AccountRepository, sender Sender, verificationExpiry, resetExpiry, resendCooldown time.Duration, log *slog.Logger) *TokenService {
	return &TokenService{
		accounts:           accounts,
		sender:             sender,
		logger:             log,
		verificationExpiry: verificationExpiry,
		resetExpiry:        resetExpiry,
		resendCooldown:     resendCooldown,
	}
}

// generateToken returns a fresh plain token and its storage hash.
func generateToken() (plain string, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// IssueVerification creates a verification token for the account, replacing
// any outstanding one, and emails it.
func (s *TokenService) IssueVerification(ctx context.Context, account *models.Account) error {
	if account.Email == nil {
		return fmt.Errorf("%w: account has no email address", models.ErrBadRequest)
	}

	plain, hash, err := generateToken()
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.accounts.SetVerificationToken(ctx, account.ID, hash, now, now.Add(s.verificationExpiry)); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	if err := s.sender.SendVerificationEmail(ctx, *account.Email, plain); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification token issued",
		slog.String("account_id", account.ID),
		slog.String("email", logger.SanitizedEmail(*account.Email)),
	)
	return nil
}

// RequestVerification handles a resend request for an email address. Unknown
// and already-verified addresses return nil so the response shape cannot be
// used to probe which emails are registered. Requests inside the cooldown
// window fail rate-limited and leave the existing token in place.
func (s *TokenService) RequestVerification(ctx context.Context, email string) error {
	account, err := s.accounts.GetByExternalID(ctx, provider.ProviderEmail.QualifyID(normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if account.EmailVerified {
		return nil
	}

	if account.VerificationSentAt != nil {
		elapsed := time.Since(*account.VerificationSentAt)
		if elapsed < s.resendCooldown {
			return &models.RateLimitedError{RetryAfter: s.resendCooldown - elapsed}
		}
	}

	return s.IssueVerification(ctx, account)
}

// ConsumeVerification validates and spends a verification token, marking the
// account's email verified. Expired tokens are cleared on sight.
func (s *TokenService) ConsumeVerification(ctx context.Context, plainToken string) error {
	if plainToken == "" {
		return models.ErrTokenInvalid
	}

	hash := hashToken(plainToken)
	account, err := s.accounts.GetByVerificationTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenInvalid
		}
		return err
	}

	if account.VerificationExpiresAt == nil || time.Now().After(*account.VerificationExpiresAt) {
		if clearErr := s.accounts.ClearVerificationToken(ctx, account.ID); clearErr != nil {
			s.logger.Error("failed to clear expired verification token", slog.Any("error", clearErr))
		}
		return models.ErrTokenExpired
	}

	if err := s.accounts.ConsumeVerificationToken(ctx, account.ID, hash); err != nil {
		return err
	}

	s.logger.Info("email verified", slog.String("account_id", account.ID))
	return nil
}

// RequestReset creates a password-reset token for the address and emails it.
// Unknown addresses and provider-only accounts return nil for the same
// anti-enumeration reason as RequestVerification.
func (s *TokenService) RequestReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByExternalID(ctx, provider.ProviderEmail.QualifyID(normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if !account.HasPassword() || account.Email == nil {
		return nil
	}

	plain, hash, err := generateToken()
	if err != nil {
		return err
	}

	if err := s.accounts.SetResetToken(ctx, account.ID, hash, time.Now().Add(s.resetExpiry)); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.sender.SendPasswordResetEmail(ctx, *account.Email, plain); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	s.logger.Info("password reset requested",
		slog.String("account_id", account.ID),
		slog.String("email", logger.SanitizedEmail(*account.Email)),
	)
	return nil
}

// ConsumeReset validates and spends a reset token, applying the new
// password. Order matters: existence, then expiry, then password strength,
// so a weak password does not burn a valid token.
func (s *TokenService) ConsumeReset(ctx context.Context, plainToken, newPassword string) error {
	if plainToken == "" {
		return models.ErrTokenInvalid
	}

	hash := hashToken(plainToken)
	account, err := s.accounts.GetByResetTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenInvalid
		}
		return err
	}

	if account.ResetExpiresAt == nil || time.Now().After(*account.ResetExpiresAt) {
		if clearErr := s.accounts.ClearResetToken(ctx, account.ID); clearErr != nil {
			s.logger.Error("failed to clear expired reset token", slog.Any("error", clearErr))
		}
		return models.ErrTokenExpired
	}

	if err := auth.ValidatePassword(newPassword); err != nil {
		return &models.ValidationError{Rule: err.Error()}
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.accounts.ResetPassword(ctx, account.ID, hash, newHash); err != nil {
		return err
	}

	s.logger.Info("password reset completed", slog.String("account_id", account.ID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
