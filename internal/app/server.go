package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/studyrag/internal/api/handlers"
	"github.com/markdave123-py/studyrag/internal/config"
	"github.com/markdave123-py/studyrag/internal/core"
	"github.com/markdave123-py/studyrag/internal/core/ingest"
	"github.com/markdave123-py/studyrag/internal/core/retrieval"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.ChunkStore, usage core.UsageLogger, coordinator *ingest.Coordinator, engine *retrieval.Engine, generator core.TextGenerator, objects core.ObjectStore, logger *slog.Logger) *Server {
	docHandler := handlers.NewDocumentHandler(store, coordinator, objects, logger)
	queryHandler := handlers.NewQueryHandler(engine, generator, usage, store, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		api.Post("/documents/upload", docHandler.Upload)
		api.Get("/uploads/{uploadID}", docHandler.UploadStatus)
		api.Delete("/uploads/{uploadID}", docHandler.EvictUpload)
		api.Get("/documents", docHandler.List)
		api.Delete("/documents/{documentID}", docHandler.Delete)
		api.Get("/documents/{documentID}/usage", queryHandler.Usage)
		api.Post("/chat/query", queryHandler.Query)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
