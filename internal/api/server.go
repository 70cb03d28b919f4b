// Package api exposes the HTTP surface: webhook ingestion, unsubscribe
// pages, cron triggers, and the admin endpoints for sends and
// suppression management.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/config"
	"github.com/jellyjelly/campaign-engine/internal/delivery"
	"github.com/jellyjelly/campaign-engine/internal/events"
	"github.com/jellyjelly/campaign-engine/internal/sequence"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	cfg          *config.Config
	campaigns    *campaign.Service
	scheduler    *sequence.Scheduler
	reconciler   *sequence.Reconciler
	ingestor     *events.Ingestor
	suppressions delivery.SuppressionStore

	httpServer *http.Server
}

// NewServer wires the HTTP server.
func NewServer(cfg *config.Config, campaigns *campaign.Service, scheduler *sequence.Scheduler,
	reconciler *sequence.Reconciler, ingestor *events.Ingestor, suppressions delivery.SuppressionStore) *Server {
	s := &Server{
		cfg:          cfg,
		campaigns:    campaigns,
		scheduler:    scheduler,
		reconciler:   reconciler,
		ingestor:     ingestor,
		suppressions: suppressions,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.Site.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Post("/api/webhooks/mailgun", s.handleWebhook)

	r.Get("/unsubscribe", s.handleUnsubscribePage)
	r.Post("/unsubscribe", s.handleUnsubscribe)

	r.Group(func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Get("/api/cron/send-scheduled", s.handleSendScheduled)
		r.Get("/api/cron/reconcile-outcomes", s.handleReconcileOutcomes)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdminKey)
		r.Post("/api/campaigns/{id}/send", s.handleSendCampaign)
		r.Get("/api/suppressions", s.handleListSuppressions)
		r.Delete("/api/suppressions/{email}", s.handleDeleteSuppression)
	})

	return r
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Printf("[API] shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
