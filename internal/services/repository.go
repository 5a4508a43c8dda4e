package services

import (
	"context"
	"time"

	"github.com/stridefit/stride-auth/internal/models"
)

// AccountRepository is the persistence surface the services need. The pgx
// implementation lives in internal/repositories; tests substitute
// function-field mocks.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, name string, avatarURL *string) error

	RecordLoginFailure(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id string) error

	SetVerificationToken(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error
	GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
	ConsumeVerificationToken(ctx context.Context, id, tokenHash string) error
	ClearVerificationToken(ctx context.Context, id string) error

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
	ResetPassword(ctx context.Context, id, tokenHash, newPasswordHash string) error
	ClearResetToken(ctx context.Context, id string) error

	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// AuthResponse is what every successful authentication path returns: a
// session token plus the account it belongs to.
type AuthResponse struct {
	Token   string
	Account *models.Account
}
