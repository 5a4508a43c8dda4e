package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/stridefit/stride-auth/internal/models"
	pkgauth "github.com/stridefit/stride-auth/pkg/auth"
	"github.com/stridefit/stride-auth/pkg/logger"
)

// MockAccountRepository implements AccountRepository with overridable
// function fields so each test wires only what it touches.
type MockAccountRepository struct {
	GetByIDFunc                    func(ctx context.Context, id string) (*models.Account, error)
	GetByExternalIDFunc            func(ctx context.Context, externalID string) (*models.Account, error)
	GetByEmailFunc                 func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                     func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateProfileFunc              func(ctx context.Context, id string, name string, avatarURL *string) error
	RecordLoginFailureFunc         func(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error)
	RecordLoginSuccessFunc         func(ctx context.Context, id string) error
	SetVerificationTokenFunc       func(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error
	GetByVerificationTokenHashFunc func(ctx context.Context, tokenHash string) (*models.Account, error)
	ConsumeVerificationTokenFunc   func(ctx context.Context, id, tokenHash string) error
	ClearVerificationTokenFunc     func(ctx context.Context, id string) error
	SetResetTokenFunc              func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetByResetTokenHashFunc        func(ctx context.Context, tokenHash string) (*models.Account, error)
	ResetPasswordFunc              func(ctx context.Context, id, tokenHash, newPasswordHash string) error
	ClearResetTokenFunc            func(ctx context.Context, id string) error
	CleanupExpiredTokensFunc       func(ctx context.Context) (int64, error)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, externalID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	account.ID = "mock-account-id"
	return account, nil
}

func (m *MockAccountRepository) UpdateProfile(ctx context.Context, id string, name string, avatarURL *string) error {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, name, avatarURL)
	}
	return nil
}

func (m *MockAccountRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, threshold, lockDuration)
	}
	return 1, nil, nil
}

func (m *MockAccountRepository) RecordLoginSuccess(ctx context.Context, id string) error {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error {
	if m.SetVerificationTokenFunc != nil {
		return m.SetVerificationTokenFunc(ctx, id, tokenHash, sentAt, expiresAt)
	}
	return nil
}

func (m *MockAccountRepository) GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	if m.GetByVerificationTokenHashFunc != nil {
		return m.GetByVerificationTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ConsumeVerificationToken(ctx context.Context, id, tokenHash string) error {
	if m.ConsumeVerificationTokenFunc != nil {
		return m.ConsumeVerificationTokenFunc(ctx, id, tokenHash)
	}
	return nil
}

func (m *MockAccountRepository) ClearVerificationToken(ctx context.Context, id string) error {
	if m.ClearVerificationTokenFunc != nil {
		return m.ClearVerificationTokenFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.SetResetTokenFunc != nil {
		return m.SetResetTokenFunc(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *MockAccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	if m.GetByResetTokenHashFunc != nil {
		return m.GetByResetTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ResetPassword(ctx context.Context, id, tokenHash, newPasswordHash string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, id, tokenHash, newPasswordHash)
	}
	return nil
}

func (m *MockAccountRepository) ClearResetToken(ctx context.Context, id string) error {
	if m.ClearResetTokenFunc != nil {
		return m.ClearResetTokenFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	if m.CleanupExpiredTokensFunc != nil {
		return m.CleanupExpiredTokensFunc(ctx)
	}
	return 0, nil
}

// MockSender records outgoing emails instead of sending them.
type MockSender struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string) error

	VerificationEmails []SentEmail
	ResetEmails        []SentEmail
}

type SentEmail struct {
	To    string
	Token string
}

func (m *MockSender) SendVerificationEmail(ctx context.Context, email, token string) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token)
	}
	m.VerificationEmails = append(m.VerificationEmails, SentEmail{To: email, Token: token})
	return nil
}

func (m *MockSender) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token)
	}
	m.ResetEmails = append(m.ResetEmails, SentEmail{To: email, Token: token})
	return nil
}

func testAuditLogger() *logger.AuditLogger {
	return logger.NewAuditLogger(slog.Default())
}

func mustHashPassword(password string) string {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
