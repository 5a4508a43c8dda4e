package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/models"
	"github.com/stridefit/stride-auth/internal/services"
	pkghttp "github.com/stridefit/stride-auth/pkg/http"
)

// IdentityServiceInterface is the provider-login surface of the handler.
type IdentityServiceInterface interface {
	Login(ctx context.Context, providerName, credential string) (*services.AuthResponse, error)
}

// AccountServiceInterface is the email/password surface of the handler.
type AccountServiceInterface interface {
	Register(ctx context.Context, email, password, name string) error
	Login(ctx context.Context, email, password string) (*services.AuthResponse, error)
}

// TokenServiceInterface is the verification and reset surface of the handler.
type TokenServiceInterface interface {
	RequestVerification(ctx context.Context, email string) error
	ConsumeVerification(ctx context.Context, plainToken string) error
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, plainToken, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	identity IdentityServiceInterface
	accounts AccountServiceInterface
	tokens   TokenServiceInterface
}

func NewAuthHandler(identity IdentityServiceInterface, accounts AccountServiceInterface, tokens TokenServiceInterface) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		accounts: accounts,
		tokens:   tokens,
	}
}

// Request DTOs

type ProviderLoginRequest struct {
	Provider   string `json:"provider" validate:"required,oneof=apple google firebase"`
	Credential string `json:"credential" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Response DTOs

type SessionResponse struct {
	Token   string      `json:"token"`
	Account AccountView `json:"account"`
}

type AccountView struct {
	ID            string    `json:"id"`
	Email         *string   `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func newSessionResponse(resp *services.AuthResponse) SessionResponse {
	return SessionResponse{
		Token:   resp.Token,
		Account: newAccountView(resp.Account),
	}
}

func newAccountView(account *models.Account) AccountView {
	return AccountView{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		AvatarURL:     account.AvatarURL,
		EmailVerified: account.EmailVerified,
		CreatedAt:     account.CreatedAt,
	}
}

// ProviderLogin exchanges a provider credential for a session.
func (h *AuthHandler) ProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req ProviderLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.identity.Login(r.Context(), req.Provider, req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDependencyUnavailable):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "provider_unavailable", "identity provider is temporarily unavailable")
		case errors.Is(err, models.ErrInvalidCredential):
			pkghttp.WriteUnauthorized(w, "invalid credential")
		default:
			pkghttp.WriteInternalError(w, "authentication failed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newSessionResponse(resp))
}

// Register creates an email/password account. The response is identical for
// new and already-registered addresses.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.accounts.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			pkghttp.WriteBadRequest(w, verr.Rule)
			return
		}
		pkghttp.WriteInternalError(w, "registration failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "check your email to verify your account",
	})
}

// Login authenticates an email/password credential.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newSessionResponse(resp))
}

// RequestVerification resends the verification email.
func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tokens.RequestVerification(r.Context(), req.Email); err != nil {
		var rl *models.RateLimitedError
		if errors.As(err, &rl) {
			writeRateLimited(w, rl)
			return
		}
		pkghttp.WriteInternalError(w, "could not send verification email")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "if that address needs verification, an email is on its way",
	})
}

// ConfirmVerification spends a verification token.
func (h *AuthHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tokens.ConsumeVerification(r.Context(), req.Token); err != nil {
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "email verified"})
}

// RequestReset sends a password-reset email.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tokens.RequestReset(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "could not send reset email")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "if that address has an account, a reset email is on its way",
	})
}

// ConfirmReset spends a reset token and applies the new password.
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.tokens.ConsumeReset(r.Context(), req.Token, req.Password); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			pkghttp.WriteBadRequest(w, verr.Rule)
			return
		}
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "unauthenticated")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newAccountView(account))
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

func writeLoginError(w http.ResponseWriter, err error) {
	var rl *models.RateLimitedError
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, rl)
	case errors.Is(err, models.ErrEmailNotVerified):
		pkghttp.WriteForbidden(w, "verify your email address before logging in")
	case errors.Is(err, models.ErrInvalidCredential):
		// One message for unknown email, wrong password, and provider-only
		// accounts.
		pkghttp.WriteUnauthorized(w, "invalid email or password")
	default:
		pkghttp.WriteInternalError(w, "login failed")
	}
}

func writeTokenError(w http.ResponseWriter, err error) {
	// Invalid and expired deliberately share one message.
	if errors.Is(err, models.ErrTokenInvalid) || errors.Is(err, models.ErrTokenExpired) {
		pkghttp.WriteBadRequest(w, "invalid or expired link")
		return
	}
	pkghttp.WriteInternalError(w, "could not process token")
}

func writeRateLimited(w http.ResponseWriter, rl *models.RateLimitedError) {
	retryAfter := int(rl.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	pkghttp.WriteTooManyRequests(w, fmt.Sprintf("too many attempts, retry in %d seconds", retryAfter))
}
