package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// NewRouter mounts the read API. Everything under /api is read-only.
func NewRouter(h *PortfolioHandler, limiter *rate.Limiter, allowedOrigins ...string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(EnableCORS(allowedOrigins...))
	r.Use(RateLimitMiddleware(limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, map[string]string{"message": "stakeledger is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Get("/transactions", h.HandleGetTransactions)
		r.Get("/balance/{symbol}", h.HandleGetBalance)
		r.Get("/rewards/{symbol}", h.HandleGetRewards)
		r.Get("/transfers/{symbol}", h.HandleGetTransfers)
		r.Get("/value/{symbol}", h.HandleGetValue)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			sendJSONError(w, r, "not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
	})
	return r
}
