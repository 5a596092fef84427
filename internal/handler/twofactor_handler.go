package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/VaibhavPrasad23/PayRs/internal/middleware"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/service"
)

// TwoFactorHandler handles HTTP requests for two-factor challenges and
// enrollment.
type TwoFactorHandler struct {
	twoFactor *service.TwoFactorService
	guard     *middleware.Guard
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(twoFactor *service.TwoFactorService, guard *middleware.Guard) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor, guard: guard}
}

type verifyChallengeRequest struct {
	OTP   string `json:"otp"`
	Token string `json:"token,omitempty"`
}

type enableRequest struct {
	Method model.TwoFactorMethod `json:"method"`
}

type confirmTotpRequest struct {
	OTP   string `json:"otp"`
	Token string `json:"token"`
}

// RegisterRoutes registers the /2fa and /totp route groups. Challenge
// routes accept sessions still pending verification; enrollment
// changes need a settled session.
func (h *TwoFactorHandler) RegisterRoutes(router chi.Router) {
	pending := h.guard.Authenticate(middleware.GuardOptions{AllowWithout2FA: true})
	settled := h.guard.Authenticate(middleware.GuardOptions{})

	router.Route("/2fa", func(r chi.Router) {
		r.With(pending).Get("/", h.RequestChallenge)
		r.With(pending).Post("/", h.VerifyChallenge)
		r.With(settled).Put("/", h.Enable)
		r.With(settled).Delete("/", h.Disable)
	})

	router.Route("/totp", func(r chi.Router) {
		r.With(settled).Get("/", h.ProvisionTotp)
		r.With(pending).Post("/", h.ConfirmTotp)
		r.With(settled).Delete("/", h.RevokeTotp)
	})
}

// RequestChallenge starts a challenge. The configured method and the
// primary contact are the defaults; ?method= and ?contactId= pick a
// different method or delivery contact.
func (h *TwoFactorHandler) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	method := model.TwoFactorMethod(r.URL.Query().Get("method"))
	contactID := r.URL.Query().Get("contactId")

	result, err := h.twoFactor.RequestChallenge(r.Context(), account, method, contactID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to start challenge")
		return
	}
	respondWithJSON(w, http.StatusAccepted, successResponse(result, result.Message))
}

// VerifyChallenge settles the challenge and returns a full session
// token.
func (h *TwoFactorHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	var req verifyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "OTP is required")
		return
	}

	session, err := h.twoFactor.VerifyChallenge(r.Context(), account, req.OTP, req.Token)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to verify challenge")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": session}, "Two-factor verified"))
}

// Enable switches the account to the requested method.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.twoFactor.Enable(r.Context(), account, req.Method); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to enable two-factor")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"method": string(req.Method)}, "Two-factor enabled"))
}

// Disable turns two-factor off.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	if err := h.twoFactor.Disable(r.Context(), account); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to disable two-factor")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Two-factor disabled"))
}

// ProvisionTotp generates an authenticator secret and QR code.
func (h *TwoFactorHandler) ProvisionTotp(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	provision, err := h.twoFactor.ProvisionTotpSecret(r.Context(), account)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to provision authenticator")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(provision, "Scan the QR code and confirm with a code"))
}

// ConfirmTotp stores the provisioned secret after a live code proves
// the client has it.
func (h *TwoFactorHandler) ConfirmTotp(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	var req confirmTotpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "OTP is required")
		return
	}

	session, err := h.twoFactor.ConfirmTotpSecret(r.Context(), account, req.OTP, req.Token)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to confirm authenticator")
		return
	}
	if session != "" {
		respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": session}, "Two-factor verified"))
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(nil, "Authenticator configured"))
}

// RevokeTotp discards the authenticator secret and reports the
// fallback method.
func (h *TwoFactorHandler) RevokeTotp(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	fallback, err := h.twoFactor.RevokeTotpSecret(r.Context(), account)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to revoke authenticator")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"method": string(fallback)}, "Authenticator revoked"))
}
