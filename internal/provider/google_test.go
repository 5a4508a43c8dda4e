package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/models"
)

const testGoogleClientID = "12345-stride.apps.googleusercontent.com"

func newTokenInfoServer(t *testing.T, status int, info googleTokenInfo) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.URL.Query().Get("id_token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(info)
	}))
}

func TestGoogleVerifier_ValidToken(t *testing.T) {
	server := newTokenInfoServer(t, http.StatusOK, googleTokenInfo{
		Aud:   testGoogleClientID,
		Sub:   "118200000000000000000",
		Email: "runner@gmail.com",
		Name:  "Test Runner",
	})
	defer server.Close()

	verifier := NewGoogleVerifier(server.URL, []string{testGoogleClientID}, nil, slog.Default())

	identity, err := verifier.Verify(context.Background(), "opaque-google-token")
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, identity.Provider)
	assert.Equal(t, "118200000000000000000", identity.Subject)
	assert.Equal(t, "runner@gmail.com", identity.Email)
}

func TestGoogleVerifier_AudienceNotAllowed(t *testing.T) {
	server := newTokenInfoServer(t, http.StatusOK, googleTokenInfo{
		Aud: "99999-someoneelse.apps.googleusercontent.com",
		Sub: "118200000000000000000",
	})
	defer server.Close()

	verifier := NewGoogleVerifier(server.URL, []string{testGoogleClientID}, nil, slog.Default())

	_, err := verifier.Verify(context.Background(), "opaque-google-token")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestGoogleVerifier_IntrospectionRejects(t *testing.T) {
	server := newTokenInfoServer(t, http.StatusBadRequest, googleTokenInfo{})
	defer server.Close()

	verifier := NewGoogleVerifier(server.URL, []string{testGoogleClientID}, nil, slog.Default())

	_, err := verifier.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestGoogleVerifier_MissingSubject(t *testing.T) {
	server := newTokenInfoServer(t, http.StatusOK, googleTokenInfo{
		Aud: testGoogleClientID,
	})
	defer server.Close()

	verifier := NewGoogleVerifier(server.URL, []string{testGoogleClientID}, nil, slog.Default())

	_, err := verifier.Verify(context.Background(), "opaque-google-token")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestGoogleVerifier_EndpointDown(t *testing.T) {
	server := newTokenInfoServer(t, http.StatusOK, googleTokenInfo{})
	server.Close()

	verifier := NewGoogleVerifier(server.URL, []string{testGoogleClientID}, nil, slog.Default())

	_, err := verifier.Verify(context.Background(), "opaque-google-token")
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
}
