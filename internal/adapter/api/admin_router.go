package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAdminRouter creates the internal admin mux serving metrics and a health
// probe on the admin port.
func NewAdminRouter() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
