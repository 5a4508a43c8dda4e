package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/models"
)

func newTestTokenService(repo AccountRepository, sender Sender) *TokenService {
	return NewTokenService(repo, sender, 24*time.Hour, time.Hour, time.Minute, slog.Default())
}

func unverifiedAccount() *models.Account {
	return &models.Account{
		ID:           "acct-1",
		ExternalID:   "email:" + testEmail,
		Email:        strPtr(testEmail),
		PasswordHash: "some-bcrypt-hash",
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	account := unverifiedAccount()

	var storedHash string
	var consumed bool
	repo := &MockAccountRepository{
		SetVerificationTokenFunc: func(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error {
			storedHash = tokenHash
			account.VerificationTokenHash = &tokenHash
			account.VerificationSentAt = &sentAt
			account.VerificationExpiresAt = &expiresAt
			return nil
		},
		GetByVerificationTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			if account.VerificationTokenHash != nil && *account.VerificationTokenHash == tokenHash {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
		ConsumeVerificationTokenFunc: func(ctx context.Context, id, tokenHash string) error {
			if account.VerificationTokenHash == nil || *account.VerificationTokenHash != tokenHash {
				return models.ErrTokenInvalid
			}
			consumed = true
			account.EmailVerified = true
			account.VerificationTokenHash = nil
			return nil
		},
	}
	sender := &MockSender{}
	svc := newTestTokenService(repo, sender)

	require.NoError(t, svc.IssueVerification(context.Background(), account))
	require.Len(t, sender.VerificationEmails, 1)

	plain := sender.VerificationEmails[0].Token
	assert.NotEqual(t, plain, storedHash, "plain token must never be stored")

	require.NoError(t, svc.ConsumeVerification(context.Background(), plain))
	assert.True(t, consumed)

	// Single use: the same link fails the second time.
	err := svc.ConsumeVerification(context.Background(), plain)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestConsumeVerification_UnknownToken(t *testing.T) {
	svc := newTestTokenService(&MockAccountRepository{}, &MockSender{})

	err := svc.ConsumeVerification(context.Background(), "never-issued")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	err = svc.ConsumeVerification(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestConsumeVerification_ExpiredTokenCleared(t *testing.T) {
	account := unverifiedAccount()
	hash := hashToken("expired-token")
	account.VerificationTokenHash = &hash
	account.VerificationExpiresAt = timePtr(time.Now().Add(-time.Minute))

	var cleared bool
	repo := &MockAccountRepository{
		GetByVerificationTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			return account, nil
		},
		ClearVerificationTokenFunc: func(ctx context.Context, id string) error {
			cleared = true
			return nil
		},
	}
	svc := newTestTokenService(repo, &MockSender{})

	err := svc.ConsumeVerification(context.Background(), "expired-token")
	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.True(t, cleared)
}

func TestRequestVerification_CooldownKeepsToken(t *testing.T) {
	account := unverifiedAccount()
	hash := hashToken("existing-token")
	account.VerificationTokenHash = &hash
	account.VerificationSentAt = timePtr(time.Now().Add(-10 * time.Second))

	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		SetVerificationTokenFunc: func(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error {
			t.Fatal("cooldown hit must not rotate the token")
			return nil
		},
	}
	sender := &MockSender{}
	svc := newTestTokenService(repo, sender)

	err := svc.RequestVerification(context.Background(), testEmail)

	var rl *models.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rl.RetryAfter, time.Minute)
	assert.Empty(t, sender.VerificationEmails)
	assert.Equal(t, hash, *account.VerificationTokenHash)
}

func TestRequestVerification_AfterCooldownRotates(t *testing.T) {
	account := unverifiedAccount()
	oldHash := hashToken("existing-token")
	account.VerificationTokenHash = &oldHash
	account.VerificationSentAt = timePtr(time.Now().Add(-2 * time.Minute))

	var newHash string
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		SetVerificationTokenFunc: func(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error {
			newHash = tokenHash
			return nil
		},
	}
	sender := &MockSender{}
	svc := newTestTokenService(repo, sender)

	require.NoError(t, svc.RequestVerification(context.Background(), testEmail))
	assert.NotEmpty(t, newHash)
	assert.NotEqual(t, oldHash, newHash)
	assert.Len(t, sender.VerificationEmails, 1)
}

func TestRequestVerification_UnknownOrVerifiedLookLikeSuccess(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		svc := newTestTokenService(&MockAccountRepository{}, &MockSender{})
		assert.NoError(t, svc.RequestVerification(context.Background(), "nobody@example.com"))
	})

	t.Run("already verified", func(t *testing.T) {
		account := unverifiedAccount()
		account.EmailVerified = true
		repo := &MockAccountRepository{
			GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
				return account, nil
			},
		}
		sender := &MockSender{}
		svc := newTestTokenService(repo, sender)

		assert.NoError(t, svc.RequestVerification(context.Background(), testEmail))
		assert.Empty(t, sender.VerificationEmails)
	})
}

func TestResetRoundTrip(t *testing.T) {
	account := unverifiedAccount()
	account.EmailVerified = true

	var appliedHash string
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		SetResetTokenFunc: func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
			account.ResetTokenHash = &tokenHash
			account.ResetExpiresAt = &expiresAt
			return nil
		},
		GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			if account.ResetTokenHash != nil && *account.ResetTokenHash == tokenHash {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
		ResetPasswordFunc: func(ctx context.Context, id, tokenHash, newPasswordHash string) error {
			if account.ResetTokenHash == nil || *account.ResetTokenHash != tokenHash {
				return models.ErrTokenInvalid
			}
			appliedHash = newPasswordHash
			account.PasswordHash = newPasswordHash
			account.ResetTokenHash = nil
			return nil
		},
	}
	sender := &MockSender{}
	svc := newTestTokenService(repo, sender)

	require.NoError(t, svc.RequestReset(context.Background(), testEmail))
	require.Len(t, sender.ResetEmails, 1)

	plain := sender.ResetEmails[0].Token
	require.NoError(t, svc.ConsumeReset(context.Background(), plain, "Newpassword1"))
	assert.NotEmpty(t, appliedHash)
	assert.NotEqual(t, "Newpassword1", appliedHash)

	// The link is single use.
	err := svc.ConsumeReset(context.Background(), plain, "Newpassword2")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestConsumeReset_ExpiryBoundary(t *testing.T) {
	newAccountWithReset := func(expiresIn time.Duration) (*models.Account, *MockAccountRepository) {
		account := unverifiedAccount()
		hash := hashToken("reset-token")
		account.ResetTokenHash = &hash
		account.ResetExpiresAt = timePtr(time.Now().Add(expiresIn))

		repo := &MockAccountRepository{
			GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
				return account, nil
			},
		}
		return account, repo
	}

	t.Run("59 minutes old still works", func(t *testing.T) {
		_, repo := newAccountWithReset(time.Minute)
		svc := newTestTokenService(repo, &MockSender{})
		assert.NoError(t, svc.ConsumeReset(context.Background(), "reset-token", "Newpassword1"))
	})

	t.Run("61 minutes old is expired", func(t *testing.T) {
		_, repo := newAccountWithReset(-time.Minute)
		svc := newTestTokenService(repo, &MockSender{})
		err := svc.ConsumeReset(context.Background(), "reset-token", "Newpassword1")
		assert.ErrorIs(t, err, models.ErrTokenExpired)
	})
}

func TestConsumeReset_WeakPasswordDoesNotBurnToken(t *testing.T) {
	account := unverifiedAccount()
	hash := hashToken("reset-token")
	account.ResetTokenHash = &hash
	account.ResetExpiresAt = timePtr(time.Now().Add(30 * time.Minute))

	repo := &MockAccountRepository{
		GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			return account, nil
		},
		ResetPasswordFunc: func(ctx context.Context, id, tokenHash, newPasswordHash string) error {
			t.Fatal("weak password must not consume the token")
			return nil
		},
	}
	svc := newTestTokenService(repo, &MockSender{})

	err := svc.ConsumeReset(context.Background(), "reset-token", "weak")

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotNil(t, account.ResetTokenHash)
}

func TestRequestReset_UnknownAndProviderOnlyLookLikeSuccess(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		sender := &MockSender{}
		svc := newTestTokenService(&MockAccountRepository{}, sender)
		assert.NoError(t, svc.RequestReset(context.Background(), "nobody@example.com"))
		assert.Empty(t, sender.ResetEmails)
	})

	t.Run("provider-only account", func(t *testing.T) {
		account := unverifiedAccount()
		account.PasswordHash = ""
		repo := &MockAccountRepository{
			GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
				return account, nil
			},
		}
		sender := &MockSender{}
		svc := newTestTokenService(repo, sender)

		assert.NoError(t, svc.RequestReset(context.Background(), testEmail))
		assert.Empty(t, sender.ResetEmails)
	})
}

func TestGenerateToken_Properties(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		plain, hash, err := generateToken()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(plain), 43) // 32 bytes base64url
		assert.Len(t, hash, 64)                  // sha256 hex
		assert.False(t, seen[plain], "tokens must not repeat")
		seen[plain] = true
	}
}
