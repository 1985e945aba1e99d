package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/usecase"
)

// DataHandler handles the /data/{collection} proxy endpoint.
type DataHandler struct {
	proxy        *usecase.ProxyService
	metrics      domain.MetricsRecorder
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewDataHandler creates a new DataHandler. metrics may be nil.
func NewDataHandler(proxy *usecase.ProxyService, metrics domain.MetricsRecorder, logger *slog.Logger, maxBodyBytes int64) *DataHandler {
	return &DataHandler{
		proxy:        proxy,
		metrics:      metrics,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// successBody is the envelope for completed operations.
type successBody struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation"`
	TenantID  string `json:"tenantId"`
	Data      any    `json:"data"`
}

// ServeHTTP processes one proxied data operation.
func (h *DataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var op domain.OperationRequest
	bodyBytes, err := decodeBody(r, &op)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:   "PAYLOAD_TOO_LARGE",
				Message: "request body exceeds the configured maximum",
			})
			h.record("", "", "413", start)
			return
		}
		status := writeError(w, &domain.ValidationError{Msg: "malformed JSON body"})
		h.record("", "", statusLabel(status), start)
		return
	}

	req := &usecase.ProxyRequest{
		Collection:   chi.URLParam(r, "collection"),
		Op:           &op,
		BearerToken:  bearerToken(r),
		TenantHeader: r.Header.Get("X-Tenant-Id"),
		BodySizeKB:   (bodyBytes + 1023) / 1024,
		RequestID:    requestID(r),
		Method:       r.Method,
		Path:         r.URL.Path,
		RemoteIP:     remoteIP(r),
		UserAgent:    r.UserAgent(),
	}

	result, ident, err := h.proxy.Execute(r.Context(), req)
	tenantID := ""
	if ident != nil {
		tenantID = ident.TenantID
	}
	if err != nil {
		status := writeError(w, err)
		h.record(tenantID, op.Operation, statusLabel(status), start)
		return
	}

	writeJSON(w, http.StatusOK, successBody{
		Success:   true,
		Operation: result.Operation,
		TenantID:  tenantID,
		Data:      result.Data,
	})
	h.record(tenantID, result.Operation, "200", start)
}

func (h *DataHandler) record(tenantID, operation, status string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(tenantID, operation, status, time.Since(start))
	}
}

// decodeBody reads the full body so the handler knows the exact payload size
// the quota engine should account for.
func decodeBody(r *http.Request, op *domain.OperationRequest) (int64, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, errors.New("empty body")
	}
	if err := json.Unmarshal(raw, op); err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
