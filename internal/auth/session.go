package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stridefit/stride-auth/internal/models"
)

// SessionManager issues and verifies first-party session tokens. Tokens are
// HS256-signed and stateless: validity is determined entirely by signature
// and expiry, so there is nothing to revoke or look up per request.
type SessionManager struct {
	secret []byte
	expiry time.Duration
}

// NewSessionManager creates a SessionManager signing with the given secret.
func NewSessionManager(secret string, expiry time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue creates a session token for an account. The provider records which
// credential path produced the session; it is informational, not a
// permission.
func (sm *SessionManager) Issue(accountID string, provider string) (string, error) {
	now := time.Now()

	claims := &models.SessionClaims{
		AccountID: accountID,
		Provider:  provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(sm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Verify validates a session token and returns its claims. Expired tokens
// are distinguished from otherwise-invalid ones so callers can log the
// difference; both are authentication failures.
func (sm *SessionManager) Verify(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", models.ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, models.ErrUnauthenticated
	}

	return claims, nil
}
