// Package main provides the API router setup.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spherical-ai/spherical/libs/sales-engine/cmd/sales-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/sales-engine/cmd/sales-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/startup"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(app *startup.App, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"` + cfg.ServiceName + `"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.ReadyTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := app.Ready(ctx); err != nil {
			app.Logger.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "detail": err.Error()})
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if app.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	}

	conversationHandler := handlers.NewConversationHandler(app.Logger, app.Engine)
	quoteHandler := handlers.NewQuoteHandler(app.Logger, app.Quotes)
	pricingHandler := handlers.NewPricingHandler(app.Logger, app.Calculator, app.Resolver, app.Policy)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))

		r.Post("/conversations/{userId}/messages", conversationHandler.PostMessage)

		r.Get("/quotes/{quoteId}", quoteHandler.Get)
		r.Get("/users/{userId}/quotes", quoteHandler.ListByUser)

		r.Post("/pricing/calculate", pricingHandler.Calculate)
		r.Post("/pricing/validate", pricingHandler.Validate)
	})

	return r
}

// AppConfig holds router configuration.
type AppConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	ReadyTimeout   time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ServiceName:    "sales-engine",
		RequestTimeout: 30 * time.Second,
		ReadyTimeout:   2 * time.Second,
		AllowedOrigins: []string{"*"},
		AuthConfig: middleware.AuthConfig{
			Enabled: false,
		},
	}
}
