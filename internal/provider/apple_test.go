package provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridefit/stride-auth/internal/models"
)

const testBundleID = "fit.stride.app"

// newJWKSServer serves a JWKS document for the given keys and counts fetches.
func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey, fetches *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}

		doc := jwksResponse{}
		for kid, key := range keys {
			doc.Keys = append(doc.Keys, jwkKey{
				Kty: "RSA",
				Kid: kid,
				N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

type appleClaims map[string]any

// signAppleToken builds an RS256 identity token the way Apple would.
func signAppleToken(t *testing.T, key *rsa.PrivateKey, kid string, override appleClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":   appleIssuer,
		"aud":   testBundleID,
		"sub":   "001234.abcdef",
		"email": "runner@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	for k, v := range override {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestAppleVerifier(t *testing.T, jwksURL string) *AppleVerifier {
	t.Helper()
	return NewAppleVerifier(testBundleID, jwksURL, 24*time.Hour, nil, slog.Default())
}

func TestAppleVerifier_ValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, key, "key-1", nil)

	identity, err := verifier.Verify(context.Background(), credential)
	require.NoError(t, err)

	assert.Equal(t, ProviderApple, identity.Provider)
	assert.Equal(t, "001234.abcdef", identity.Subject)
	assert.Equal(t, "runner@example.com", identity.Email)
}

func TestAppleVerifier_WrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, key, "key-1", appleClaims{"aud": "com.other.app"})

	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_WrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, key, "key-1", appleClaims{"iss": "https://evil.example.com"})

	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_TamperedSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// JWKS publishes key-1, but the token is signed with a different key
	// under the same kid.
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, otherKey, "key-1", nil)

	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_UnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, key, "rotated-away", nil)

	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_MissingKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	defer server.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": appleIssuer,
		"aud": testBundleID,
		"sub": "001234.abcdef",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	delete(token.Header, "kid")
	credential, err := token.SignedString(key)
	require.NoError(t, err)

	verifier := newTestAppleVerifier(t, server.URL)
	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_RejectsNonRS256(t *testing.T) {
	server := newJWKSServer(t, map[string]*rsa.PublicKey{}, nil)
	defer server.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": appleIssuer,
		"aud": testBundleID,
		"sub": "001234.abcdef",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	credential, err := token.SignedString([]byte("hmac-secret"))
	require.NoError(t, err)

	verifier := newTestAppleVerifier(t, server.URL)
	_, err = verifier.Verify(context.Background(), credential)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestAppleVerifier_KeyCacheAvoidsRefetch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var fetches atomic.Int64
	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, &fetches)
	defer server.Close()

	verifier := newTestAppleVerifier(t, server.URL)

	for i := 0; i < 3; i++ {
		credential := signAppleToken(t, key, "key-1", nil)
		_, err := verifier.Verify(context.Background(), credential)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), fetches.Load(), "cached keys should not be refetched")
}

func TestAppleVerifier_EndpointDown(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey}, nil)
	server.Close() // immediately unreachable

	verifier := newTestAppleVerifier(t, server.URL)
	credential := signAppleToken(t, key, "key-1", nil)

	_, err = verifier.Verify(context.Background(), credential)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDependencyUnavailable))
}
