package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/models"
)

const testSessionSecret = "test-session-secret-at-least-32-chars!"

func TestSessionManager_IssueAndVerify(t *testing.T) {
	sm := NewSessionManager(testSessionSecret, time.Hour)

	token, err := sm.Issue("account-123", "apple")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := sm.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "account-123", claims.AccountID)
	assert.Equal(t, "apple", claims.Provider)
	assert.NotEmpty(t, claims.ID)
}

func TestSessionManager_ExpiredToken(t *testing.T) {
	sm := NewSessionManager(testSessionSecret, -time.Minute)

	token, err := sm.Issue("account-123", "email")
	require.NoError(t, err)

	_, err = sm.Verify(token)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestSessionManager_WrongSecret(t *testing.T) {
	sm := NewSessionManager(testSessionSecret, time.Hour)
	other := NewSessionManager("a-completely-different-signing-secret", time.Hour)

	token, err := sm.Issue("account-123", "email")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestSessionManager_GarbageToken(t *testing.T) {
	sm := NewSessionManager(testSessionSecret, time.Hour)

	_, err := sm.Verify("not.a.jwt")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestSessionManager_TamperedToken(t *testing.T) {
	sm := NewSessionManager(testSessionSecret, time.Hour)

	token, err := sm.Issue("account-123", "email")
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = sm.Verify(tampered)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}
