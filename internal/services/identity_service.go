package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/models"
	"github.com/stridefit/stride-auth/internal/provider"
	"github.com/stridefit/stride-auth/pkg/logger"
)

// IdentityService turns provider credentials into sessions. Verification is
// delegated to the provider registry; resolution maps the verified identity
// to an account, creating one on first sight.
type IdentityService struct {
	registry *provider.Registry
	accounts AccountRepository
	sessions *auth.SessionManager
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

func NewIdentityService(registry *provider.Registry, accounts AccountRepository, sessions *auth.SessionManager, audit *logger.AuditLogger, log *slog.Logger) *IdentityService {
	return &IdentityService{
		registry: registry,
		accounts: accounts,
		sessions: sessions,
		audit:    audit,
		logger:   log,
	}
}

// Login verifies a provider credential and returns a session for the account
// it resolves to.
func (s *IdentityService) Login(ctx context.Context, providerName, credential string) (*AuthResponse, error) {
	p, err := provider.ParseProvider(providerName)
	if err != nil {
		return nil, err
	}

	identity, err := s.registry.Verify(ctx, p, credential)
	if err != nil {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "provider_login",
			Provider:      providerName,
			Success:       false,
			FailureReason: "credential verification failed",
		})
		return nil, err
	}

	account, err := s.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Issue(account.ID, string(identity.Provider))
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "provider_login",
		AccountID: account.ID,
		Provider:  string(identity.Provider),
		Success:   true,
	})

	return &AuthResponse{Token: token, Account: account}, nil
}

// Resolve maps a verified identity to an account, get-or-create. Provider
// profile claims populate the account only at creation; later logins never
// overwrite what the user may have edited. A lost creation race is resolved
// by re-reading the winner's row.
func (s *IdentityService) Resolve(ctx context.Context, identity *provider.Identity) (*models.Account, error) {
	externalID := identity.Provider.QualifyID(identity.Subject)

	account, err := s.accounts.GetByExternalID(ctx, externalID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	// Rows written before external ids carried a provider prefix hold the
	// bare Firebase uid.
	if identity.Provider == provider.ProviderFirebase {
		account, err = s.accounts.GetByExternalID(ctx, identity.Subject)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	created, err := s.accounts.Create(ctx, newAccountFromIdentity(externalID, identity))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Concurrent first login for the same identity; the other
			// request created the row.
			return s.accounts.GetByExternalID(ctx, externalID)
		}
		return nil, err
	}

	s.logger.Info("account created from provider identity",
		slog.String("account_id", created.ID),
		slog.String("provider", string(identity.Provider)),
	)
	return created, nil
}

func newAccountFromIdentity(externalID string, identity *provider.Identity) *models.Account {
	account := &models.Account{
		ExternalID: externalID,
		Name:       identity.Name,
		// Provider-attested addresses count as verified; the provider
		// already confirmed ownership.
		EmailVerified: identity.Email != "",
	}
	if identity.Email != "" {
		email := identity.Email
		account.Email = &email
	}
	if identity.Picture != "" {
		picture := identity.Picture
		account.AvatarURL = &picture
	}
	return account
}
