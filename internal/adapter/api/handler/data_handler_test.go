package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/domain/mocks"
	"github.com/user/medrecord-proxy/internal/usecase"
)

type fixedResolver struct {
	ident *domain.Identity
	err   error
}

func (f *fixedResolver) Resolve(ctx context.Context, bearerToken, tenantHeader string) (*domain.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ident, nil
}

type fixedAdmitter struct {
	err error
}

func (f *fixedAdmitter) Admit(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta int64, rc domain.RequestContext) error {
	return f.err
}

func (f *fixedAdmitter) Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error {
	return nil
}

func testRouter(resolver *fixedResolver, admitter *fixedAdmitter, store *mocks.MockDataStore, tenantLimiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := usecase.NewProxyService(
		resolver,
		admitter,
		mocks.AllowAllLimiter{},
		tenantLimiter,
		store,
		nil, nil, nil,
		5*time.Second,
		logger,
	)
	h := NewDataHandler(proxy, nil, logger, 1024*1024)

	r := chi.NewRouter()
	r.Post("/data/{collection}", h.ServeHTTP)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "hospital-a")
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDataHandler_ServeHTTP(t *testing.T) {
	ident := &domain.Identity{TenantID: "hospital-a", CallerID: "u1", Source: "header"}

	t.Run("Successful Operation", func(t *testing.T) {
		store := &mocks.MockDataStore{
			Result: &domain.OperationResult{Operation: domain.OpFind, Data: []map[string]any{{"name": "Ada"}}},
		}
		router := testRouter(&fixedResolver{ident: ident}, &fixedAdmitter{}, store, mocks.AllowAllLimiter{})

		rec := postJSON(t, router, "/data/patients", `{"operation":"find","filter":{"ward":"icu"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body successBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid response body: %v", err)
		}
		if !body.Success || body.Operation != domain.OpFind || body.TenantID != "hospital-a" {
			t.Errorf("unexpected envelope: %+v", body)
		}
		if len(store.Calls) != 1 || store.Calls[0].Collection != "patients" {
			t.Errorf("unexpected store call: %+v", store.Calls)
		}
	})

	t.Run("Authentication Failure Maps To 401", func(t *testing.T) {
		router := testRouter(
			&fixedResolver{err: &domain.AuthenticationError{Reason: "missing credentials"}},
			&fixedAdmitter{}, &mocks.MockDataStore{}, mocks.AllowAllLimiter{},
		)

		rec := postJSON(t, router, "/data/patients", `{"operation":"find"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}

		var body errorBody
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Error != "AUTHENTICATION_FAILED" {
			t.Errorf("unexpected error code %q", body.Error)
		}
	})

	t.Run("Rate Limit Maps To 429 With Retry After", func(t *testing.T) {
		router := testRouter(
			&fixedResolver{ident: ident},
			&fixedAdmitter{}, &mocks.MockDataStore{},
			mocks.DenyAllLimiter{RetryAfter: 30 * time.Second},
		)

		rec := postJSON(t, router, "/data/patients", `{"operation":"find"}`)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected a Retry-After header")
		}
	})

	t.Run("Quota Rejection Maps To 403", func(t *testing.T) {
		admitter := &fixedAdmitter{err: &domain.QuotaExceededError{
			Dimension: domain.DimensionDocuments,
			Current:   100, Limit: 100, Attempted: 1, Percentage: 101,
		}}
		router := testRouter(&fixedResolver{ident: ident}, admitter, &mocks.MockDataStore{}, mocks.AllowAllLimiter{})

		rec := postJSON(t, router, "/data/patients", `{"operation":"insertOne","document":{"name":"Ada"}}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}

		var body errorBody
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Error != "QUOTA_EXCEEDED" || body.Details["dimension"] != "documents" {
			t.Errorf("unexpected error body: %+v", body)
		}
	})

	t.Run("Unsupported Operation Maps To 400", func(t *testing.T) {
		router := testRouter(&fixedResolver{ident: ident}, &fixedAdmitter{}, &mocks.MockDataStore{}, mocks.AllowAllLimiter{})

		rec := postJSON(t, router, "/data/patients", `{"operation":"aggregate"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}

		var body errorBody
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Error != "UNSUPPORTED_OPERATION" {
			t.Errorf("unexpected error code %q", body.Error)
		}
	})

	t.Run("Malformed JSON Maps To 400", func(t *testing.T) {
		router := testRouter(&fixedResolver{ident: ident}, &fixedAdmitter{}, &mocks.MockDataStore{}, mocks.AllowAllLimiter{})

		rec := postJSON(t, router, "/data/patients", `{"operation":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("Infrastructure Failure Maps To 502", func(t *testing.T) {
		store := &mocks.MockDataStore{ExecErr: &domain.InfrastructureError{Op: "mongo.find"}}
		router := testRouter(&fixedResolver{ident: ident}, &fixedAdmitter{}, store, mocks.AllowAllLimiter{})

		rec := postJSON(t, router, "/data/patients", `{"operation":"find"}`)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("Oversized Body Maps To 413", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		proxy := usecase.NewProxyService(
			&fixedResolver{ident: ident}, &fixedAdmitter{},
			mocks.AllowAllLimiter{}, mocks.AllowAllLimiter{},
			&mocks.MockDataStore{}, nil, nil, nil,
			5*time.Second, logger,
		)
		h := NewDataHandler(proxy, nil, logger, 64) // tiny cap
		r := chi.NewRouter()
		r.Post("/data/{collection}", h.ServeHTTP)

		big := bytes.Repeat([]byte("a"), 256)
		rec := postJSON(t, r, "/data/patients", `{"operation":"insertOne","document":{"blob":"`+string(big)+`"}}`)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rec.Code)
		}
	})
}
