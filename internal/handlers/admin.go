package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stridefit/stride-auth/internal/models"
	pkghttp "github.com/stridefit/stride-auth/pkg/http"
)

// AccountReader is the lookup surface of the admin handler.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// AdminHandler serves the operator endpoints. Routes using it must sit
// behind auth.AdminOnly.
type AdminHandler struct {
	accounts AccountReader
}

func NewAdminHandler(accounts AccountReader) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// AdminAccountView exposes operational state the public view hides.
type AdminAccountView struct {
	ID             string     `json:"id"`
	ExternalID     string     `json:"external_id"`
	Email          *string    `json:"email,omitempty"`
	Name           string     `json:"name,omitempty"`
	EmailVerified  bool       `json:"email_verified"`
	Admin          bool       `json:"admin"`
	HasPassword    bool       `json:"has_password"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GetAccount returns the full operational view of an account.
func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "account not found")
			return
		}
		pkghttp.WriteInternalError(w, "lookup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AdminAccountView{
		ID:             account.ID,
		ExternalID:     account.ExternalID,
		Email:          account.Email,
		Name:           account.Name,
		EmailVerified:  account.EmailVerified,
		Admin:          account.Admin,
		HasPassword:    account.HasPassword(),
		FailedAttempts: account.FailedAttempts,
		LockedUntil:    account.LockedUntil,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	})
}
