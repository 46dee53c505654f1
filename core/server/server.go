// Package server exposes the experiment runner over HTTP. The surface is
// a thin JSON API for the page layer: participant entry, T0 capture,
// cycle execution, and progress. Rendering, auth, and i18n live
// elsewhere.
package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/adalundhe/sway/core/orchestrator"
	"github.com/adalundhe/sway/core/study"
)

// Config configures the server.
type Config struct {
	Study        *study.Study
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger // Optional, uses slog.Default() if nil
}

// Server wires the fiber app.
type Server struct {
	app    *fiber.App
	study  *study.Study
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// New creates the server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		app:    fiber.New(),
		study:  cfg.Study,
		orch:   cfg.Orchestrator,
		logger: cfg.Logger,
	}

	s.app.Post("/participants", s.EnterStudy)
	s.app.Post("/participants/:id/sessions/:key/t0", s.CaptureT0)
	s.app.Post("/participants/:id/sessions/:key/cycles/:cycle", s.RunCycle)
	s.app.Get("/participants/:id/sessions/:key/progress", s.Progress)
	s.app.Post("/participants/:id/finish", s.Finish)

	return s, nil
}

// Listen blocks serving on addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
