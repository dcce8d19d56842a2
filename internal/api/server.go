package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shorelinehq/courier/internal/config"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/router"
	"github.com/shorelinehq/courier/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, rt *router.Router, store storage.Store, broker queue.Broker, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
	}
	s.router = s.buildRouter(rt, store, broker)
	return s
}

func (s *Server) buildRouter(rt *router.Router, store storage.Store, broker queue.Broker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	msgHandler := NewMessageHandler(rt, store)
	statsHandler := NewStatsHandler(store, broker)

	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", msgHandler.Send)
		r.Get("/messages", msgHandler.List)
		r.Get("/messages/{id}", msgHandler.Get)
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

// Handler exposes the assembled routes for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
