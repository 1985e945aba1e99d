package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/user/medrecord-proxy/internal/adapter/api/handler"
	"github.com/user/medrecord-proxy/internal/adapter/api/middleware"
	"github.com/user/medrecord-proxy/internal/adapter/ratelimit"
	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/pkg/config"
	"github.com/user/medrecord-proxy/internal/usecase"
)

// NewRouter creates and configures the main HTTP router for the proxy
// service.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	proxy *usecase.ProxyService,
	auth *usecase.AuthService,
	quota *usecase.QuotaService,
	metrics domain.MetricsRecorder,
	globalLimiter, tenantLimiter *ratelimit.Limiter,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(logger))

	dataHandler := handler.NewDataHandler(proxy, metrics, logger, cfg.MaxBodyBytes)
	authHandler := handler.NewAuthHandler(auth, logger)
	adminHandler := handler.NewAdminHandler(quota, globalLimiter, tenantLimiter, logger)

	// Every data operation carries its envelope in the body regardless of the
	// HTTP verb; the collection is the only routing input.
	r.Handle("/data/{collection}", dataHandler)

	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/register", authHandler.RegisterUser)
	r.Post("/tenants", authHandler.CreateTenant)

	r.Get("/limits/{tenantID}", adminHandler.GetLimits)
	r.Put("/limits/{tenantID}", adminHandler.UpdateLimits)
	r.Get("/limits/{tenantID}/usage", adminHandler.GetUsage)
	r.Post("/limits/{tenantID}/usage/reset-queries", adminHandler.ResetQueries)

	r.Get("/rate-limit-stats", adminHandler.RateLimitStats)

	r.Get("/health", adminHandler.HealthCheck)

	return r
}
