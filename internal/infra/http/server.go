package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-referral-rewards/internal/config"
	"telegram-referral-rewards/internal/infra/api"
	"telegram-referral-rewards/internal/infra/api/apiv1"
	"telegram-referral-rewards/internal/infra/metrics"
	"telegram-referral-rewards/internal/infra/web"
)

const requestTimeout = 15 * time.Second

// Server hosts the operator API, /metrics and /health on admin.port.
type Server struct {
	cfg     *config.AdminConfig
	handler http.Handler
	server  *http.Server
	log     *zerolog.Logger
}

func NewServer(cfg *config.AdminConfig, apiServer apiv1.ServerInterface, auth *web.AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "AdminHTTP").Logger()
	s := &Server{cfg: cfg, log: &l}
	s.handler = s.routes(apiServer, auth)
	return s
}

func (s *Server) routes(apiServer apiv1.ServerInterface, auth *web.AuthManager) http.Handler {
	r := chi.NewRouter()
	r.Use(api.TraceID(), api.RequestLog(s.log), api.Recover(s.log), api.Timeout(requestTimeout))

	r.Get("/health", s.handleHealthCheck)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/api/v1/auth/login", auth.LoginHandler())
	r.Post("/api/v1/auth/logout", auth.LogoutHandler())

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSession)
		apiv1.RegisterAPIV1(pr, apiServer)
	})
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("admin HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin http: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
