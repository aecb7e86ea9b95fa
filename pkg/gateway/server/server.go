// Package server assembles the relay gateway: routes, middleware chain and
// the wiring between the websocket handler, the relay core, rotation, the
// store and grading.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/k2ai/interview-relay/pkg/gateway/config"
	"github.com/k2ai/interview-relay/pkg/gateway/handlers"
	"github.com/k2ai/interview-relay/pkg/gateway/lifecycle"
	"github.com/k2ai/interview-relay/pkg/gateway/live/session"
	"github.com/k2ai/interview-relay/pkg/gateway/live/sessions"
	"github.com/k2ai/interview-relay/pkg/gateway/mw"
	"github.com/k2ai/interview-relay/pkg/grading"
	"github.com/k2ai/interview-relay/pkg/rotation"
	"github.com/k2ai/interview-relay/pkg/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store     *store.Store
	registry  *sessions.Registry
	lifecycle *lifecycle.Lifecycle
	relay     *session.Service
}

func New(cfg config.Config, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	liveRot := rotation.New(rotationConfig(cfg, []string{cfg.LiveModel}, logger))
	gradeRot := rotation.New(rotationConfig(cfg, cfg.GradingModels, logger))
	registry := sessions.NewRegistry()
	grader := grading.New(st, gradeRot, logger)

	relay := session.NewService(session.Deps{
		Store:            st,
		Grader:           grader,
		Rotation:         liveRot,
		RequireClientKey: cfg.Mode == config.ModeProd,
		BaseWSURL:        cfg.LiveWSBaseURL,
		HandshakeTimeout: cfg.LiveHandshakeTimeout,
		WriteTimeout:     cfg.WSWriteTimeout,
		PingInterval:     cfg.WSPingInterval,
		Logger:           logger,
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		store:     st,
		registry:  registry,
		lifecycle: &lifecycle.Lifecycle{},
		relay:     relay,
	}

	s.routes()
	return s
}

// rotationConfig maps the deployment mode onto a rotation policy over the
// given candidate models: one backend key in dev, client-supplied keys in
// prod, a key pool for reviewers. The live path and the grading path get
// separate policies because they rotate over different model lists.
func rotationConfig(cfg config.Config, models []string, logger *slog.Logger) rotation.Config {
	switch cfg.Mode {
	case config.ModeProd:
		return rotation.Config{
			Mode:   rotation.ModeUserKey,
			Models: models,
			Logger: logger,
		}
	case config.ModeReviewer:
		return rotation.Config{
			Mode:   rotation.ModePool,
			Pool:   cfg.ReviewerKeys,
			Models: models,
			Logger: logger,
		}
	default:
		return rotation.Config{
			Mode:       rotation.ModeSingle,
			Credential: cfg.GeminiAPIKey,
			Model:      models[0],
			Logger:     logger,
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/api/voices", handlers.VoicesHandler{})
	s.mux.Handle("/api/reports/", handlers.ReportsHandler{Store: s.store})
	s.mux.Handle("/ws/interview", handlers.InterviewHandler{
		Config:    s.cfg,
		Relay:     s.relay,
		Registry:  s.registry,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so load balancers stop sending new sessions.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WaitLiveSessions blocks until every live interview has finished or ctx
// expires.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.registry.Wait(ctx)
}

// CancelLiveSessions force-closes the interviews still running.
func (s *Server) CancelLiveSessions() int {
	return s.registry.CancelAll()
}
