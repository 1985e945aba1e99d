package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/usecase"
)

// AuthHandler handles login, tenant onboarding and user registration.
type AuthHandler struct {
	auth   *usecase.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	TenantID string `json:"tenantId"`
}

// Login issues an access token for valid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Msg: "malformed JSON body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, &domain.ValidationError{Msg: "email and password are required"})
		return
	}

	token, tenantID, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", "email", req.Email, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, TenantID: tenantID})
}

type createTenantRequest struct {
	Name string `json:"name"`
}

// CreateTenant onboards a new tenant with default quota limits.
func (h *AuthHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Msg: "malformed JSON body"})
		return
	}

	tenant, err := h.auth.CreateTenant(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"tenant":  tenant,
	})
}

type registerUserRequest struct {
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUser creates a staff account within an existing tenant.
func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Msg: "malformed JSON body"})
		return
	}

	user, err := h.auth.RegisterUser(r.Context(), req.TenantID, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}
