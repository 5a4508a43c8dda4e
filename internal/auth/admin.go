package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"

	"github.com/stridefit/stride-auth/internal/models"
)

// AdminGate checks the shared admin secret. Both sides are hashed before
// comparison so the compare is constant-time even when the presented value
// has a different length than the configured one.
type AdminGate struct {
	secret string
	logger *slog.Logger
}

func NewAdminGate(secret string, logger *slog.Logger) *AdminGate {
	return &AdminGate{secret: secret, logger: logger}
}

// Configured reports whether an admin secret is set for this deployment.
func (g *AdminGate) Configured() bool {
	return g.secret != ""
}

// Check validates a presented admin secret. An unconfigured gate denies
// everything and logs the configuration gap; the caller must respond
// identically to a wrong secret so probing cannot distinguish the two.
func (g *AdminGate) Check(presented string) error {
	if g.secret == "" {
		g.logger.Error("admin secret is not configured, denying admin request")
		return models.ErrDependencyUnavailable
	}

	expected := sha256.Sum256([]byte(g.secret))
	got := sha256.Sum256([]byte(presented))

	if subtle.ConstantTimeCompare(expected[:], got[:]) != 1 {
		return models.ErrUnauthenticated
	}
	return nil
}
