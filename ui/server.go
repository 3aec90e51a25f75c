// Package ui exposes the estimation service over HTTP. It is a thin layer:
// request decoding, design construction from the loaded table, and response
// encoding. Statistical behavior lives below the app service.
package ui

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bschneidr/srvyr/app"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/internal"
	"github.com/bschneidr/srvyr/ports"
)

// Server is the HTTP application
type Server struct {
	router *chi.Mux
	svc    *app.EstimationService
	reader ports.FrameReader
	log    *internal.Logger

	mu    sync.RWMutex
	table *frame.Table
}

func (s *Server) currentTable() *frame.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func (s *Server) setTable(t *frame.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
}

// NewServer creates the HTTP application around a preloaded survey table.
// The table may be nil when the deployment only serves stored runs.
func NewServer(svc *app.EstimationService, reader ports.FrameReader, table *frame.Table, log *internal.Logger) *Server {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	s := &Server{
		router: chi.NewRouter(),
		svc:    svc,
		reader: reader,
		table:  table,
		log:    log,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Post("/api/estimate", s.handleEstimate)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/runs/{id}/report", s.handleRunReport)

	s.router.Post("/api/data", s.handleDataUpload)
	s.router.Get("/api/data/columns", s.handleColumns)
	s.router.Get("/api/data/profile", s.handleProfile)
}

// Router returns the configured router for mounting or serving
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server on the given port
func (s *Server) Start(port string) error {
	s.log.Info("listening on :%s", port)
	return http.ListenAndServe(":"+port, s.router)
}
