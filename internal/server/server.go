package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/dirgate/dirgate/internal/actor"
	v1 "github.com/dirgate/dirgate/internal/api/v1"
	"github.com/dirgate/dirgate/internal/api/ws"
	"github.com/dirgate/dirgate/internal/config"
	"github.com/dirgate/dirgate/internal/gateway"
	"github.com/dirgate/dirgate/internal/obs"
	"github.com/dirgate/dirgate/internal/server/middleware"
	"github.com/dirgate/dirgate/internal/store/postgres"
	redisstore "github.com/dirgate/dirgate/internal/store/redis"
)

// Server wires the proxy surface, the read-only viewer APIs and the
// operational endpoints onto one router.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds background work
// owned by middleware (rate limiter cleanup).
func New(ctx context.Context, cfg *config.Config, store *postgres.Store, pubsub *redisstore.PubSub, resolver *actor.Resolver, proxy *gateway.Handler) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(obs.Instrument)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", actor.HeaderAPIKey, actor.HeaderActorName, actor.HeaderActorEmail, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", gateway.HeaderAuditID},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// The proxy surface: any method, any path under /proxy. Attribution is
	// resolved up front; everything else happens inside the handler.
	router.Route(gateway.PathPrefix, func(r chi.Router) {
		r.Use(middleware.Resolve(resolver))
		// The limiter keys on the resolved organization, so it cannot run
		// before Resolve. A caller being limited still costs one key lookup
		// per request; an IP-level pre-auth limiter would need to sit in
		// front of the service.
		r.Use(middleware.RateLimit(ctx, cfg.Server.RateLimit, cfg.Server.RateBurst))
		r.Handle("/*", proxy)
	})

	// Read-only viewer APIs, scoped to the resolved actor's organization.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Resolve(resolver))

		apiConfig := huma.DefaultConfig("Dirgate API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		v1.RegisterAuditRoutes(api, store)
		v1.RegisterMirrorRoutes(api, store)
	})

	// Live audit tail.
	hub := ws.NewHub(pubsub)
	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Resolve(resolver))
		r.Get("/audit", hub.ServeAudit)
	})

	// Health check and metrics (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", obs.Handler())

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
