package provider

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stridefit/stride-auth/internal/models"
)

const appleIssuer = "https://appleid.apple.com"

// maxJWKSResponseSize bounds the JWKS response body (1 MB).
const maxJWKSResponseSize = 1 << 20

// AppleVerifier validates Apple identity tokens: RS256 signature against
// Apple's published key set, issuer pinned to appleid.apple.com, audience
// pinned to the app bundle id. Keys are cached; a verification only reaches
// the network on a cache miss.
type AppleVerifier struct {
	bundleID string
	keys     *appleKeyCache
	logger   *slog.Logger
}

// NewAppleVerifier creates an AppleVerifier. jwksURL is Apple's key-set
// endpoint; ttl bounds how long fetched keys are trusted without a refresh.
func NewAppleVerifier(bundleID, jwksURL string, ttl time.Duration, client *http.Client, logger *slog.Logger) *AppleVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AppleVerifier{
		bundleID: bundleID,
		keys:     newAppleKeyCache(jwksURL, ttl, client),
		logger:   logger,
	}
}

// Verify validates an Apple identity token and extracts its subject and
// profile claims.
func (v *AppleVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%w: apple token header missing kid", models.ErrInvalidCredential)
		}
		return v.keys.getKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(appleIssuer),
		jwt.WithAudience(v.bundleID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, models.ErrDependencyUnavailable) {
			v.logger.Error("apple key fetch failed", slog.Any("error", err))
			return nil, err
		}
		v.logger.Info("apple token verification failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredential, err)
	}
	if !token.Valid {
		return nil, models.ErrInvalidCredential
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: apple token missing subject", models.ErrInvalidCredential)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &Identity{
		Provider: ProviderApple,
		Subject:  sub,
		Email:    email,
		Name:     name,
	}, nil
}

// appleKeyCache caches Apple's JWKS keys by kid. Read-mostly and safe for
// concurrent readers; a refresh on miss may race to redundant fetches but
// never blocks readers of the cached set.
type appleKeyCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	jwksURL string
	ttl     time.Duration
	client  *http.Client
}

func newAppleKeyCache(jwksURL string, ttl time.Duration, client *http.Client) *appleKeyCache {
	return &appleKeyCache{
		keys:    make(map[string]*rsa.PublicKey),
		jwksURL: jwksURL,
		ttl:     ttl,
		client:  client,
	}
}

// getKey returns the public key for kid, fetching the key set when the cache
// is cold, stale, or does not contain the kid (key rotation). A kid still
// unknown after a fresh fetch is an invalid credential, not a dependency
// failure.
func (c *appleKeyCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	if time.Since(c.fetchedAt) < c.ttl {
		if key, ok := c.keys[kid]; ok {
			c.mu.RUnlock()
			return key, nil
		}
	}
	c.mu.RUnlock()

	keys, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDependencyUnavailable, err)
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown apple key id %q", models.ErrInvalidCredential, kid)
	}
	return key, nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *appleKeyCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue // skip malformed keys
		}
		keys[k.Kid] = pubKey
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
