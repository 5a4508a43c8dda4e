package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stridefit/stride-auth/internal/database"
	"github.com/stridefit/stride-auth/internal/models"
)

const accountColumns = `id, external_id, email, name, avatar_url, password_hash,
	email_verified, admin, failed_attempts, locked_until,
	verification_token_hash, verification_sent_at, verification_expires_at,
	reset_token_hash, reset_expires_at, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner lets scanAccountRow work with both QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.ExternalID, &account.Email, &account.Name,
		&account.AvatarURL, &passwordHash,
		&account.EmailVerified, &account.Admin,
		&account.FailedAttempts, &account.LockedUntil,
		&account.VerificationTokenHash, &account.VerificationSentAt, &account.VerificationExpiresAt,
		&account.ResetTokenHash, &account.ResetExpiresAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, externalID))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

// Create inserts a new account. The unique index on external_id is the
// authority on duplicates; a violation surfaces as models.ErrConflict so the
// caller can fall back to a lookup.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	query := `
		INSERT INTO accounts (id, external_id, email, name, avatar_url, password_hash,
			email_verified, admin, failed_attempts,
			verification_token_hash, verification_sent_at, verification_expires_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.ExternalID, account.Email, account.Name,
		account.AvatarURL, passwordHash,
		account.EmailVerified, account.Admin,
		account.VerificationTokenHash, account.VerificationSentAt, account.VerificationExpiresAt,
		account.CreatedAt, account.UpdatedAt,
	))
}

// UpdateProfile refreshes the profile claims a provider supplied on login.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, name string, avatarURL *string) error {
	query := `UPDATE accounts SET name = $2, avatar_url = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, name, avatarURL)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordLoginFailure increments the failure counter and sets locked_until
// once the threshold is reached, in one statement so concurrent failures
// cannot lose updates. It returns the post-update lockout state.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockDuration time.Duration) (int, *time.Time, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
			locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3) ELSE locked_until END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, query, id, threshold, lockDuration.Seconds()).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}
	return attempts, lockedUntil, nil
}

// RecordLoginSuccess clears the failure counter and any lockout.
func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetVerificationToken stores a new verification token hash, replacing any
// previous one.
func (r *AccountRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, sentAt, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET verification_token_hash = $2, verification_sent_at = $3,
			verification_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, tokenHash, sentAt, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE verification_token_hash = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// ConsumeVerificationToken marks the email verified and clears the token in
// one guarded update. The WHERE clause on the hash makes consumption
// single-use: a concurrent consume of the same token loses the race and sees
// zero rows.
func (r *AccountRepository) ConsumeVerificationToken(ctx context.Context, id, tokenHash string) error {
	query := `
		UPDATE accounts
		SET email_verified = TRUE,
			verification_token_hash = NULL, verification_sent_at = NULL,
			verification_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND verification_token_hash = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, tokenHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTokenInvalid
	}
	return nil
}

// ClearVerificationToken nulls out an expired verification token.
func (r *AccountRepository) ClearVerificationToken(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET verification_token_hash = NULL, verification_sent_at = NULL,
			verification_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// SetResetToken stores a new password-reset token hash, replacing any
// previous one.
func (r *AccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET reset_token_hash = $2, reset_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE reset_token_hash = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// ResetPassword applies a new password hash, clears the reset token and any
// lockout, all guarded on the token hash so the link is single-use.
func (r *AccountRepository) ResetPassword(ctx context.Context, id, tokenHash, newPasswordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $3,
			reset_token_hash = NULL, reset_expires_at = NULL,
			failed_attempts = 0, locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND reset_token_hash = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, tokenHash, newPasswordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTokenInvalid
	}
	return nil
}

// ClearResetToken nulls out an expired reset token.
func (r *AccountRepository) ClearResetToken(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// CleanupExpiredTokens nulls verification and reset tokens that have passed
// their expiry. Returns the number of rows touched.
func (r *AccountRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	query := `
		UPDATE accounts
		SET verification_token_hash = CASE WHEN verification_expires_at < NOW() THEN NULL ELSE verification_token_hash END,
			verification_sent_at = CASE WHEN verification_expires_at < NOW() THEN NULL ELSE verification_sent_at END,
			verification_expires_at = CASE WHEN verification_expires_at < NOW() THEN NULL ELSE verification_expires_at END,
			reset_token_hash = CASE WHEN reset_expires_at < NOW() THEN NULL ELSE reset_token_hash END,
			reset_expires_at = CASE WHEN reset_expires_at < NOW() THEN NULL ELSE reset_expires_at END,
			updated_at = NOW()
		WHERE (verification_expires_at IS NOT NULL AND verification_expires_at < NOW())
			OR (reset_expires_at IS NOT NULL AND reset_expires_at < NOW())
	`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
