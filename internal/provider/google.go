package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/stridefit/stride-auth/internal/models"
)

// GoogleVerifier introspects opaque Google tokens via the tokeninfo
// endpoint. The returned audience must be one of the configured client ids
// for this app; any other audience fails closed so a token minted for an
// unrelated app cannot be replayed here.
type GoogleVerifier struct {
	tokenInfoURL string
	clientIDs    map[string]bool
	client       *http.Client
	logger       *slog.Logger
}

func NewGoogleVerifier(tokenInfoURL string, clientIDs []string, client *http.Client, logger *slog.Logger) *GoogleVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	allowed := make(map[string]bool, len(clientIDs))
	for _, id := range clientIDs {
		allowed[id] = true
	}
	return &GoogleVerifier{
		tokenInfoURL: tokenInfoURL,
		clientIDs:    allowed,
		client:       client,
		logger:       logger,
	}
}

type googleTokenInfo struct {
	Aud     string `json:"aud"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify introspects the token and checks the audience allow-list.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	endpoint := v.tokenInfoURL + "?id_token=" + url.QueryEscape(credential)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create tokeninfo request: %v", models.ErrDependencyUnavailable, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Error("google tokeninfo request failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: tokeninfo request failed: %v", models.ErrDependencyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		v.logger.Info("google token rejected by introspection", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: tokeninfo returned status %d", models.ErrInvalidCredential, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tokeninfo response: %v", models.ErrDependencyUnavailable, err)
	}

	var info googleTokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: malformed tokeninfo response", models.ErrInvalidCredential)
	}

	if info.Sub == "" {
		return nil, fmt.Errorf("%w: tokeninfo response missing subject", models.ErrInvalidCredential)
	}

	if !v.clientIDs[info.Aud] {
		v.logger.Warn("google token audience not in allow-list", slog.String("aud", info.Aud))
		return nil, fmt.Errorf("%w: audience %q not recognized", models.ErrInvalidCredential, info.Aud)
	}

	return &Identity{
		Provider: ProviderGoogle,
		Subject:  info.Sub,
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
	}, nil
}
