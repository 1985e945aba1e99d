package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/medrecord-proxy/internal/adapter/ratelimit"
	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/usecase"
)

// AdminHandler exposes quota administration and rate-limit diagnostics.
type AdminHandler struct {
	quota         *usecase.QuotaService
	globalLimiter *ratelimit.Limiter
	tenantLimiter *ratelimit.Limiter
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(quota *usecase.QuotaService, global, tenant *ratelimit.Limiter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		quota:         quota,
		globalLimiter: global,
		tenantLimiter: tenant,
		logger:        logger,
	}
}

// HealthCheck reports liveness.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// GetLimits returns a tenant's quota ceilings, installing defaults on first
// read.
func (h *AdminHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	limits, err := h.quota.Limits(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"limits":  limits,
	})
}

type updateLimitsRequest struct {
	MaxDocuments   int64 `json:"max_documents"`
	MaxDataSizeKB  int64 `json:"max_data_size_kb"`
	MonthlyQueries int64 `json:"monthly_queries"`
}

// UpdateLimits overwrites a tenant's quota ceilings. Last writer wins.
func (h *AdminHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req updateLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Msg: "malformed JSON body"})
		return
	}
	if req.MaxDocuments < 0 || req.MaxDataSizeKB < 0 || req.MonthlyQueries < 0 {
		writeError(w, &domain.ValidationError{Msg: "limits must be non-negative"})
		return
	}

	limits := &domain.QuotaLimits{
		TenantID:       tenantID,
		MaxDocuments:   req.MaxDocuments,
		MaxDataSizeKB:  req.MaxDataSizeKB,
		MonthlyQueries: req.MonthlyQueries,
	}
	rc := domain.RequestContext{
		RequestID: requestID(r),
		Method:    r.Method,
		Path:      r.URL.Path,
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := h.quota.SetLimits(r.Context(), limits, rc); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"limits":  limits,
	})
}

// GetUsage returns a tenant's current consumption counters.
func (h *AdminHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	usage, err := h.quota.Usage(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"usage":   usage,
	})
}

// ResetQueries zeroes a tenant's monthly query counter.
func (h *AdminHandler) ResetQueries(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	if err := h.quota.ResetQueries(r.Context(), tenantID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RateLimitStats returns the active fixed windows of both limiters.
func (h *AdminHandler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"ip":      h.globalLimiter.Snapshot(),
		"tenant":  h.tenantLimiter.Snapshot(),
	})
}
