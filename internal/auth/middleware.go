package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	httputil "github.com/stridefit/stride-auth/pkg/http"

	"github.com/stridefit/stride-auth/internal/models"
	"github.com/stridefit/stride-auth/internal/provider"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AccountContextKey is the key for storing the authenticated account in
	// context.
	AccountContextKey contextKey = "account"
)

// AccountGetter is the subset of the account repository the middleware needs
// to map credentials to accounts.
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Account, error)
}

// Strategy authenticates a bearer credential and resolves it to an existing
// account. A strategy that cannot interpret the credential returns
// models.ErrUnauthenticated so the next strategy gets a chance.
type Strategy interface {
	Authenticate(ctx context.Context, credential string) (*models.Account, error)
}

// sessionStrategy verifies first-party session tokens. A valid signature is
// not enough: the referenced account must still exist.
type sessionStrategy struct {
	sessions *SessionManager
	accounts AccountGetter
}

func NewSessionStrategy(sessions *SessionManager, accounts AccountGetter) Strategy {
	return &sessionStrategy{sessions: sessions, accounts: accounts}
}

func (s *sessionStrategy) Authenticate(ctx context.Context, credential string) (*models.Account, error) {
	claims, err := s.sessions.Verify(credential)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

// firebaseStrategy accepts legacy Firebase id tokens from clients that have
// not yet exchanged them for a session. Lookup tries the qualified external
// id first and falls back to the bare uid for rows written before external
// ids carried a provider prefix.
type firebaseStrategy struct {
	verifier provider.Verifier
	accounts AccountGetter
}

func NewFirebaseStrategy(verifier provider.Verifier, accounts AccountGetter) Strategy {
	return &firebaseStrategy{verifier: verifier, accounts: accounts}
}

func (s *firebaseStrategy) Authenticate(ctx context.Context, credential string) (*models.Account, error) {
	identity, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, models.ErrUnauthenticated
	}

	account, err := s.accounts.GetByExternalID(ctx, provider.ProviderFirebase.QualifyID(identity.Subject))
	if errors.Is(err, models.ErrNotFound) {
		account, err = s.accounts.GetByExternalID(ctx, identity.Subject)
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	return account, nil
}

// Authenticator runs an ordered strategy chain over the bearer token. The
// first strategy to produce an account wins; when all fail the response is a
// uniform 401 that does not reveal which stage rejected the credential.
type Authenticator struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewAuthenticator(logger *slog.Logger, strategies ...Strategy) *Authenticator {
	return &Authenticator{strategies: strategies, logger: logger}
}

// Middleware authenticates the request and injects the account into context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, ok := extractBearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		var account *models.Account
		for _, s := range a.strategies {
			resolved, err := s.Authenticate(r.Context(), credential)
			if err == nil {
				account = resolved
				break
			}
			if errors.Is(err, models.ErrSessionExpired) {
				a.logger.Debug("expired session token presented")
			}
		}

		if account == nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), AccountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly gates a route on the shared admin secret, read from the
// X-Admin-Secret header. Wrong secret and unconfigured secret produce the
// same response; only the log distinguishes them.
func AdminOnly(gate *AdminGate) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := gate.Check(r.Header.Get("X-Admin-Secret")); err != nil {
				httputil.WriteUnauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(AccountContextKey).(*models.Account)
	return account, ok
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
