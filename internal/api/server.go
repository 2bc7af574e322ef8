// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/scheduler"
	"github.com/tamzrod/modbus-uplink/internal/status"
)

// Controller is the operator surface of the running core.
type Controller interface {
	RegisterDevice(ctx context.Context, id int) error
	RemoveDevice(id int) error
	Pause()
	Resume()
	Devices() []registry.Device
	Schedule() scheduler.Status
}

// StatusSource reports per-device health.
type StatusSource interface {
	Snapshot(deviceID uint8) (status.Snapshot, bool)
}

type Config struct {
	Listen    string
	JWTSecret string
}

// Server exposes health, metrics and the operator control API.
type Server struct {
	ctl     Controller
	status  StatusSource
	metrics http.Handler
	secret  []byte

	router chi.Router
	server *http.Server
}

// NewServer wires routes. status and metrics may be nil.
func NewServer(cfg Config, ctl Controller, st StatusSource, metrics http.Handler) *Server {
	s := &Server{
		ctl:     ctl,
		status:  st,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	if cfg.JWTSecret != "" {
		s.secret = []byte(cfg.JWTSecret)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.HandleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.secret != nil {
			r.Use(s.authMiddleware)
		}

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Post("/{id}", s.HandleRegisterDevice)
			r.Delete("/{id}", s.HandleRemoveDevice)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/", s.HandleSchedule)
			r.Post("/pause", s.HandlePause)
			r.Post("/resume", s.HandleResume)
		})
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is returned after Shutdown.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
