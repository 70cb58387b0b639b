package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/sitegest/internal/answer"
	"github.com/dgallion1/sitegest/internal/config"
	"github.com/dgallion1/sitegest/internal/pipeline"
	"github.com/dgallion1/sitegest/internal/store"
)

// Server is the HTTP API server for sitegest.
type Server struct {
	router chi.Router
	runner *pipeline.Runner
	pages  *store.PageStore
	chunks *store.ChunkStore
	claude *answer.ClaudeClient // nil when no answer model is configured
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(runner *pipeline.Runner, pages *store.PageStore, chunks *store.ChunkStore,
	claude *answer.ClaudeClient, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		runner: runner,
		pages:  pages,
		chunks: chunks,
		claude: claude,
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/runs/crawl", s.handleStartRun(pipeline.KindCrawl))
		r.Post("/api/runs/ingest", s.handleStartRun(pipeline.KindIngest))
		r.Get("/api/runs/{runID}", s.handleRunStatus)

		r.Get("/api/pages/{pageID}", s.handleGetPage)
		r.Get("/api/chunks/{hash}", s.handleGetChunk)

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
