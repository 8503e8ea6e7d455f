package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arb-monitor/internal/config"
)

// Server runs the HTTP/WebSocket API for the dashboard
type Server struct {
	cfg      config.DashboardConfig
	provider Provider
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	done     chan struct{}
	logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.DashboardConfig, provider Provider, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, cfg, hub, logger)

	s := &Server{
		cfg:      cfg,
		provider: provider,
		hub:      hub,
		handlers: handlers,
		done:     make(chan struct{}),
		logger:   logger.With("component", "api-server"),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(NewMockFeed(logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(mock http.Handler) http.Handler {
	h := s.handlers

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return isOriginAllowed(origin, s.cfg, r.Host)
		},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Long-lived streams stay outside the request timeout.
	r.Get("/ws", h.HandleWebSocket)
	r.Handle("/ws/opps", mock)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Get("/health", h.HandleHealth)
		r.Route("/api", func(r chi.Router) {
			r.Get("/snapshot", h.HandleSnapshot)
			r.Get("/board", h.HandleBoard)
			r.Get("/settings", h.HandleGetSettings)
			r.Put("/settings", h.HandlePutSettings)
			r.Post("/reconnect", h.HandleReconnect)
			r.Post("/recalculate", h.HandleRecalculate)
			r.Post("/alerts/clear", h.HandleClearAlerts)
			r.Post("/datasource/test", h.HandleTestDatasource)
		})
	})

	// Serve static files (web dashboard)
	r.Handle("/*", http.FileServer(http.Dir("web")))
	return r
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server and hub. It blocks until Stop.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	close(s.done)
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents reads events from the engine and broadcasts them
func (s *Server) consumeEvents() {
	events := s.provider.DashboardEvents()
	if events == nil {
		return
	}
	for {
		select {
		case <-s.done:
			return
		case evt := <-events:
			s.hub.BroadcastEvent(evt)
		}
	}
}
