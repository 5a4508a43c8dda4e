package provider

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stridefit/stride-auth/internal/models"
)

// idTokenVerifier wraps the Firebase Admin SDK verification call so tests
// can inject a stub that does not reach Firebase.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier delegates verification to the Firebase Admin SDK. This
// path exists only for backward compatibility with accounts created before
// provider-specific verification; new registrations never require it.
type FirebaseVerifier struct {
	client idTokenVerifier
	logger *slog.Logger
}

// NewFirebaseVerifier creates a FirebaseVerifier for the given project. The
// SDK picks up Application Default Credentials; no service-account file is
// needed on managed runtimes.
func NewFirebaseVerifier(ctx context.Context, projectID string, logger *slog.Logger) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is not set")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}

	return &FirebaseVerifier{client: client, logger: logger}, nil
}

// Verify validates the token against Firebase. Any SDK error (expired,
// malformed, wrong project) is normalized to an invalid credential.
func (v *FirebaseVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	t, err := v.client.VerifyIDToken(ctx, credential)
	if err != nil {
		v.logger.Info("firebase token verification failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: firebase verification failed", models.ErrInvalidCredential)
	}

	email, _ := t.Claims["email"].(string)
	name, _ := t.Claims["name"].(string)
	picture, _ := t.Claims["picture"].(string)

	return &Identity{
		Provider: ProviderFirebase,
		Subject:  t.UID,
		Email:    email,
		Name:     name,
		Picture:  picture,
	}, nil
}
