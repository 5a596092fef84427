package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/middleware"
	"github.com/VaibhavPrasad23/PayRs/internal/service"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// AuthHandler handles HTTP requests for login, sessions and password
// recovery.
type AuthHandler struct {
	auth    *service.AuthService
	guard   *middleware.Guard
	limiter *middleware.RateLimiter
	cfg     *config.Config
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.AuthService, guard *middleware.Guard, limiter *middleware.RateLimiter, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, guard: guard, limiter: limiter, cfg: cfg}
}

type loginRequest struct {
	EmailAddress string `json:"emailAddress"`
	Password     string `json:"password"`
}

type forgotPasswordRequest struct {
	EmailAddress  string `json:"emailAddress,omitempty"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	CountryPrefix string `json:"countryPrefix,omitempty"`
}

type verifyForgotPasswordRequest struct {
	OTP   string `json:"otp"`
	Token string `json:"token"`
}

type changePasswordRequest struct {
	Token       string `json:"token,omitempty"`
	OldPassword string `json:"oldPassword,omitempty"`
	NewPassword string `json:"newPassword"`
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.With(h.limiter.Limit("login", h.cfg.RateLimit.LoginLimit, h.cfg.RateLimit.LoginWindow)).
		Post("/login", h.Login)

	router.With(h.guard.Authenticate(middleware.GuardOptions{})).
		Get("/session", h.Session)
	router.With(h.guard.Authenticate(middleware.GuardOptions{AllowWithout2FA: true})).
		Get("/refresh", h.Refresh)
	router.With(h.guard.Authenticate(middleware.GuardOptions{AllowWithout2FA: true})).
		Get("/logout", h.Logout)

	router.With(h.limiter.Limit("forgot-password", h.cfg.RateLimit.SendOTPLimit, h.cfg.RateLimit.SendOTPWindow)).
		Post("/forgot-password", h.ForgotPassword)
	router.Post("/verify-forgot-password", h.VerifyForgotPassword)

	router.With(h.guard.Authenticate(middleware.GuardOptions{NoReject: true})).
		Patch("/password", h.ChangePassword)
}

// Login checks credentials and returns a session token. When the
// account has two-factor enabled the token is pending until the
// challenge is settled.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.EmailAddress = strings.TrimSpace(strings.ToLower(util.SanitizeInput(req.EmailAddress)))
	if req.EmailAddress == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "Email address and password are required")
		return
	}

	result, err := h.auth.LoginWithPassword(r.Context(), req.EmailAddress, req.Password, middleware.ClientIP(r))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}

	message := "Logged in successfully"
	if result.Pending2FA {
		message = "Two-factor verification required"
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, message))
}

// Session returns the authenticated account.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(account.Profile(), "Session is valid"))
}

// Refresh re-issues the session token once it is past the refresh
// threshold; before that the same token comes back.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	signed := middleware.BearerToken(r)
	fresh, rotated, err := h.auth.RefreshSession(signed)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to refresh session")
		return
	}

	message := "Session is still fresh"
	if rotated {
		message = "Session refreshed"
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"token":   fresh,
		"rotated": rotated,
	}, message))
}

// Logout clears the server-side session state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	if err := h.auth.Logout(r.Context(), account); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to log out")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out successfully"))
}

// ForgotPassword starts password recovery with an OTP to the given
// email address, or to a verified phone number.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.EmailAddress = strings.TrimSpace(strings.ToLower(util.SanitizeInput(req.EmailAddress)))
	req.PhoneNumber = strings.TrimSpace(util.SanitizeInput(req.PhoneNumber))
	if (req.EmailAddress == "") == (req.PhoneNumber == "") {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "Provide an email address or a phone number, not both")
		return
	}

	token, message, err := h.auth.ForgotPassword(r.Context(), service.RecoveryIdentifier{
		EmailAddress:  req.EmailAddress,
		PhoneNumber:   req.PhoneNumber,
		CountryPrefix: strings.TrimSpace(req.CountryPrefix),
	})
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to start password recovery")
		return
	}
	respondWithJSON(w, http.StatusAccepted, successResponse(map[string]string{"token": token}, message))
}

// VerifyForgotPassword trades the recovery OTP for a short-lived
// password reset token.
func (h *AuthHandler) VerifyForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req verifyForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OTP == "" || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "OTP and token are required")
		return
	}

	reset, err := h.auth.VerifyForgotPasswordOTP(r.Context(), req.OTP, req.Token)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to verify OTP")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": reset}, "OTP verified"))
}

// ChangePassword updates the password, either with a reset token from
// the recovery flow or with the current password on an authenticated
// session.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	params := &service.ChangePasswordParams{
		ResetToken:  req.Token,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	}
	if account, ok := middleware.AccountFromContext(r.Context()); ok && req.Token == "" {
		params.Account = account
	}
	if params.ResetToken == "" && params.Account == nil {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}

	if err := h.auth.ChangePassword(r.Context(), params); err != nil {
		if errors.Is(err, service.ErrForbidden) {
			respondWithError(w, http.StatusForbidden, err, "Old password does not match")
			return
		}
		respondWithError(w, getStatusCode(err), err, "Failed to change password")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password changed successfully"))
}
