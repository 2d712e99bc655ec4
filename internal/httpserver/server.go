package httpserver

import (
	"context"
	"log"
	"net/http"

	"surveyflow/internal/store"
	"surveyflow/internal/workflow"
)

// HTTPServer represents the surveyflow HTTP API server.
type HTTPServer struct {
	mux     *http.ServeMux
	srv     *http.Server
	tokens  []string
	version string
	engine  *workflow.Engine
	store   *store.Store
}

// NewHTTPServer creates a new HTTP server instance over the given engine and
// store.
func NewHTTPServer(engine *workflow.Engine, st *store.Store, tokens []string, version string) *HTTPServer {
	s := &HTTPServer{
		mux:     http.NewServeMux(),
		tokens:  tokens,
		version: version,
		engine:  engine,
		store:   st,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes with middleware
func (s *HTTPServer) registerRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", loggingMiddleware(s.handleHealth))

	// Authenticated endpoints
	s.mux.HandleFunc("/workflow-submit", loggingMiddleware(s.authMiddleware(jsonContentTypeMiddleware(s.handleSubmit))))
	s.mux.HandleFunc("/ws/survey/", loggingMiddleware(s.authMiddleware(s.handleWorkflowSocket)))
	s.mux.HandleFunc("/survey/", loggingMiddleware(s.authMiddleware(s.handleGetSurvey)))
	s.mux.HandleFunc("/reviews/by-workflow/", loggingMiddleware(s.authMiddleware(s.handleReviewByWorkflow)))
	s.mux.HandleFunc("/reviews/", loggingMiddleware(s.authMiddleware(jsonContentTypeMiddleware(s.handleReviewAction))))
	s.mux.HandleFunc("/golden", loggingMiddleware(s.authMiddleware(jsonContentTypeMiddleware(s.handleGoldenCollection))))
	s.mux.HandleFunc("/golden/", loggingMiddleware(s.authMiddleware(jsonContentTypeMiddleware(s.handleGoldenItem))))
}

// Handler returns the underlying mux, for mounting or test servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address
func (s *HTTPServer) ListenAndServe(addr string) error {
	log.Printf("[HTTP] Starting server on %s", addr)
	log.Printf("[HTTP] Registered %d valid tokens", len(s.tokens))
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleHealth handles GET /health
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
	})
}
