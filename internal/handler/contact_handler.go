package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/middleware"
	"github.com/VaibhavPrasad23/PayRs/internal/model"
	"github.com/VaibhavPrasad23/PayRs/internal/service"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// ContactHandler handles HTTP requests for phone and email contacts.
type ContactHandler struct {
	contacts *service.ContactService
	guard    *middleware.Guard
	limiter  *middleware.RateLimiter
	cfg      *config.Config
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contacts *service.ContactService, guard *middleware.Guard, limiter *middleware.RateLimiter, cfg *config.Config) *ContactHandler {
	return &ContactHandler{contacts: contacts, guard: guard, limiter: limiter, cfg: cfg}
}

type addContactRequest struct {
	Value         string `json:"value"`
	CountryPrefix string `json:"countryPrefix,omitempty"`
}

type confirmContactRequest struct {
	OTP   string `json:"otp"`
	Token string `json:"token"`
}

type selectContactRequest struct {
	ID string `json:"id"`
}

// RegisterRoutes registers the /phone and /email route groups.
func (h *ContactHandler) RegisterRoutes(router chi.Router) {
	for path, kind := range map[string]model.ContactKind{
		"/phone": model.ContactPhone,
		"/email": model.ContactEmail,
	} {
		kind := kind
		router.Route(path, func(r chi.Router) {
			r.Use(h.guard.Authenticate(middleware.GuardOptions{}))
			r.Get("/", h.list(kind))
			r.With(h.limiter.Limit("contact-add"+path, h.cfg.RateLimit.SendOTPLimit, h.cfg.RateLimit.SendOTPWindow)).
				Post("/", h.requestAdd(kind))
			r.Put("/", h.confirmAdd)
			r.Patch("/", h.makePrimary(kind))
			r.Delete("/", h.remove(kind))
		})
	}
}

func (h *ContactHandler) list(kind model.ContactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := middleware.AccountFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
			return
		}
		contacts, err := h.contacts.List(r.Context(), account, kind)
		if err != nil {
			respondWithError(w, getStatusCode(err), err, "Failed to list contacts")
			return
		}
		respondWithJSON(w, http.StatusOK, successResponse(contacts, ""))
	}
}

func (h *ContactHandler) requestAdd(kind model.ContactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := middleware.AccountFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
			return
		}
		var req addContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
			return
		}
		value := strings.TrimSpace(util.SanitizeInput(req.Value))
		if kind == model.ContactEmail {
			value = strings.ToLower(value)
		}

		result, err := h.contacts.RequestAdd(r.Context(), account, kind, value, req.CountryPrefix)
		if err != nil {
			respondWithError(w, getStatusCode(err), err, "Failed to start contact verification")
			return
		}
		respondWithJSON(w, http.StatusAccepted, successResponse(result, result.Message))
	}
}

func (h *ContactHandler) confirmAdd(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
		return
	}
	var req confirmContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OTP == "" || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "OTP and token are required")
		return
	}

	contact, err := h.contacts.ConfirmAdd(r.Context(), account, req.OTP, req.Token)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to verify contact")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(contact, "Contact verified"))
}

func (h *ContactHandler) makePrimary(kind model.ContactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := middleware.AccountFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
			return
		}
		var req selectContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
			return
		}
		if req.ID == "" {
			respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "Contact id is required")
			return
		}

		contact, err := h.contacts.MakePrimary(r.Context(), account, kind, req.ID)
		if err != nil {
			respondWithError(w, getStatusCode(err), err, "Failed to change primary contact")
			return
		}
		respondWithJSON(w, http.StatusResetContent, successResponse(contact, "Primary contact changed"))
	}
}

func (h *ContactHandler) remove(kind model.ContactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := middleware.AccountFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, service.ErrInvalidSession, "Not authenticated")
			return
		}
		var req selectContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
			return
		}
		if req.ID == "" {
			respondWithError(w, http.StatusBadRequest, service.ErrInvalidRequest, "Contact id is required")
			return
		}

		if err := h.contacts.Remove(r.Context(), account, kind, req.ID); err != nil {
			respondWithError(w, getStatusCode(err), err, "Failed to remove contact")
			return
		}
		respondWithJSON(w, http.StatusOK, successResponse(nil, "Contact removed"))
	}
}
