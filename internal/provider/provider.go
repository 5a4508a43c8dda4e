package provider

import (
	"context"
	"fmt"

	"github.com/stridefit/stride-auth/internal/models"
)

// Provider identifies an external identity source. The set is closed: adding
// a provider means adding a Verifier variant and registering it, not
// branching at call sites.
type Provider string

const (
	// ProviderApple verifies RS256 identity tokens against Apple's
	// published JWKS key set.
	ProviderApple Provider = "apple"

	// ProviderGoogle introspects opaque tokens via Google's tokeninfo
	// endpoint.
	ProviderGoogle Provider = "google"

	// ProviderFirebase delegates to the Firebase Admin SDK. Kept only for
	// accounts created before provider-specific verification existed;
	// never required for new registrations.
	ProviderFirebase Provider = "firebase"

	// ProviderEmail is the first-party email/password path. It has no
	// Verifier; it exists so email accounts share the external-id
	// namespace.
	ProviderEmail Provider = "email"
)

// ParseProvider maps a wire value to a known Provider.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(raw) {
	case ProviderApple, ProviderGoogle, ProviderFirebase:
		return Provider(raw), nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", models.ErrInvalidCredential, raw)
}

// QualifyID builds the provider-qualified external id for a subject. This is
// the only key used to resolve credentials to accounts; namespacing keeps
// identical raw subjects from different providers from colliding.
func (p Provider) QualifyID(subject string) string {
	return string(p) + ":" + subject
}

// Identity is the result of a successful credential verification: the
// provider's stable subject plus whatever profile claims it supplied.
type Identity struct {
	Provider Provider
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// Verifier validates a provider-issued credential and extracts the identity
// it attests to. Implementations fail with models.ErrInvalidCredential for
// anything cryptographically or semantically wrong with the credential, and
// models.ErrDependencyUnavailable when the provider endpoint is unreachable.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// Registry dispatches verification to the registered Verifier for a
// provider.
type Registry struct {
	verifiers map[Provider]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[Provider]Verifier)}
}

// Register installs a verifier for a provider, replacing any previous one.
func (r *Registry) Register(p Provider, v Verifier) {
	r.verifiers[p] = v
}

// Verifier returns the verifier registered for a provider, if any.
func (r *Registry) Verifier(p Provider) (Verifier, bool) {
	v, ok := r.verifiers[p]
	return v, ok
}

// Verify validates a credential with the verifier registered for the
// provider.
func (r *Registry) Verify(ctx context.Context, p Provider, credential string) (*Identity, error) {
	v, ok := r.verifiers[p]
	if !ok {
		return nil, fmt.Errorf("%w: no verifier for provider %q", models.ErrDependencyUnavailable, p)
	}
	return v.Verify(ctx, credential)
}
