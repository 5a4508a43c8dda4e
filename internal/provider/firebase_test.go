package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/models"
)

type stubIDTokenVerifier struct {
	VerifyIDTokenFunc func(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

func (s *stubIDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	return s.VerifyIDTokenFunc(ctx, idToken)
}

func TestFirebaseVerifier_ValidToken(t *testing.T) {
	verifier := &FirebaseVerifier{
		client: &stubIDTokenVerifier{
			VerifyIDTokenFunc: func(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
				return &firebaseauth.Token{
					UID: "firebase-uid-123",
					Claims: map[string]any{
						"email": "runner@example.com",
						"name":  "Test Runner",
					},
				}, nil
			},
		},
		logger: slog.Default(),
	}

	identity, err := verifier.Verify(context.Background(), "some-firebase-token")
	require.NoError(t, err)

	assert.Equal(t, ProviderFirebase, identity.Provider)
	assert.Equal(t, "firebase-uid-123", identity.Subject)
	assert.Equal(t, "runner@example.com", identity.Email)
}

func TestFirebaseVerifier_SDKErrorIsInvalidCredential(t *testing.T) {
	verifier := &FirebaseVerifier{
		client: &stubIDTokenVerifier{
			VerifyIDTokenFunc: func(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
				return nil, errors.New("ID token has expired")
			},
		},
		logger: slog.Default(),
	}

	_, err := verifier.Verify(context.Background(), "expired-token")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}
