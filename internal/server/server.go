package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mnemo-dev/mnemo/internal/memory"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// Server is the mnemo localhost HTTP API. Feature call sites POST events and
// facts to it; the prompting collaborator GETs the snapshot from it.
type Server struct {
	db      *store.DB
	mem     *memory.Memory
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over an open store and memory service.
func New(db *store.DB, mem *memory.Memory, version string) *Server {
	s := &Server{
		db:      db,
		mem:     mem,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/events", s.handleAppendEvent)
		r.Get("/events/recent", s.handleRecentEvents)

		r.Post("/facts", s.handleUpsertFact)
		r.Get("/facts", s.handleListFacts)

		r.Get("/snapshot", s.handleGetSnapshot)
		r.Post("/snapshot/rebuild", s.handleRebuild)

		r.Get("/profile", s.handleListProfile)
		r.Put("/profile/{key}", s.handleSetProfile)
		r.Delete("/profile/{key}", s.handleDeleteProfile)

		r.Post("/maintenance", s.handleMaintenance)
		r.Post("/forget", s.handleForget)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
