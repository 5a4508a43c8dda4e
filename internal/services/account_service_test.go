package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/models"
)

const (
	testEmail    = "runner@example.com"
	testPassword = "Abcdefg1"
)

func newTestAccountService(repo AccountRepository, sender Sender) *AccountService {
	sessions := auth.NewSessionManager("test-session-secret-at-least-32-chars!", time.Hour)
	tokens := NewTokenService(repo, sender, 24*time.Hour, time.Hour, time.Minute, slog.Default())
	timing := auth.NewTimingDelay(0, 0)
	return NewAccountService(repo, sessions, tokens, timing, testAuditLogger(), slog.Default(), 5, 15*time.Minute)
}

func verifiedAccount() *models.Account {
	return &models.Account{
		ID:            "acct-1",
		ExternalID:    "email:" + testEmail,
		Email:         strPtr(testEmail),
		PasswordHash:  mustHashPassword(testPassword),
		EmailVerified: true,
	}
}

func TestRegister_CreatesUnverifiedAccountAndSendsEmail(t *testing.T) {
	var created *models.Account
	repo := &MockAccountRepository{
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			account.ID = "acct-1"
			created = account
			return account, nil
		},
	}
	sender := &MockSender{}
	svc := newTestAccountService(repo, sender)

	err := svc.Register(context.Background(), "Runner@Example.com ", testPassword, "Test Runner")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "email:"+testEmail, created.ExternalID)
	assert.False(t, created.EmailVerified)
	assert.NotEmpty(t, created.PasswordHash)
	assert.NotEqual(t, testPassword, created.PasswordHash)

	require.Len(t, sender.VerificationEmails, 1)
	assert.Equal(t, testEmail, sender.VerificationEmails[0].To)
	assert.NotEmpty(t, sender.VerificationEmails[0].Token)
}

func TestRegister_DuplicateLooksLikeSuccess(t *testing.T) {
	repo := &MockAccountRepository{
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			return nil, models.ErrConflict
		},
	}
	sender := &MockSender{}
	svc := newTestAccountService(repo, sender)

	err := svc.Register(context.Background(), testEmail, testPassword, "Test Runner")
	assert.NoError(t, err)
	assert.Empty(t, sender.VerificationEmails)
}

func TestRegister_WeakPasswordRejected(t *testing.T) {
	svc := newTestAccountService(&MockAccountRepository{}, &MockSender{})

	err := svc.Register(context.Background(), testEmail, "short", "Test Runner")

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLogin_Success(t *testing.T) {
	account := verifiedAccount()
	account.FailedAttempts = 3

	var successRecorded bool
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			assert.Equal(t, "email:"+testEmail, externalID)
			return account, nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, id string) error {
			successRecorded = true
			return nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	resp, err := svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "acct-1", resp.Account.ID)
	assert.True(t, successRecorded, "success must reset the failure counter")
	assert.Zero(t, resp.Account.FailedAttempts)
}

func TestLogin_UnknownEmailIsGeneric(t *testing.T) {
	svc := newTestAccountService(&MockAccountRepository{}, &MockSender{})

	_, err := svc.Login(context.Background(), "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestLogin_WrongPasswordRecordsFailure(t *testing.T) {
	account := verifiedAccount()

	var recorded bool
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
			recorded = true
			assert.Equal(t, 5, threshold)
			assert.Equal(t, 15*time.Minute, lockDuration)
			return 1, nil, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	_, err := svc.Login(context.Background(), testEmail, "Wrongpass1")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.True(t, recorded)
}

func TestLogin_FifthFailureLocks(t *testing.T) {
	account := verifiedAccount()
	account.FailedAttempts = 4

	var lockedUntil *time.Time
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
			until := time.Now().Add(lockDuration)
			lockedUntil = &until
			return account.FailedAttempts + 1, &until, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	_, err := svc.Login(context.Background(), testEmail, "Wrongpass1")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	require.NotNil(t, lockedUntil)
}

func TestLogin_LockedAccountIsRateLimited(t *testing.T) {
	account := verifiedAccount()
	account.FailedAttempts = 5
	account.LockedUntil = timePtr(time.Now().Add(10 * time.Minute))

	var incremented bool
	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
			incremented = true
			return 0, nil, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	// Even the correct password is rejected while locked.
	_, err := svc.Login(context.Background(), testEmail, testPassword)

	var rl *models.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, 9*time.Minute)
	assert.False(t, incremented, "attempts while locked must not extend the lockout")
}

func TestLogin_ExpiredLockoutAllowsLogin(t *testing.T) {
	account := verifiedAccount()
	account.FailedAttempts = 5
	account.LockedUntil = timePtr(time.Now().Add(-time.Minute))

	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	resp, err := svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestLogin_UnverifiedEmailBeatsPasswordCheck(t *testing.T) {
	account := verifiedAccount()
	account.EmailVerified = false

	repo := &MockAccountRepository{
		GetByExternalIDFunc: func(ctx context.Context, externalID string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	// Correct password, still rejected with the actionable error.
	_, err := svc.Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, models.ErrEmailNotVerified)
}

func TestLogin_ProviderOnlyAccountIsGeneric(t *testing.T) {
	account := &models.Account{
		ID:            "acct-2",
		ExternalID:    "google:118200000000000000000",
		Email:         strPtr(testEmail),
		EmailVerified: true,
	}

	repo := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestAccountService(repo, &MockSender{})

	_, err := svc.Login(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}
