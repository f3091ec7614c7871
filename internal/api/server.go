// Package api exposes the assistant over HTTP.
//
// Endpoints:
//
//	POST   /api/chat                         run one chat turn
//	POST   /api/ingest                       ingest URLs into a session
//	GET    /api/sessions                     list sessions
//	GET    /api/sessions/{id}                load a session with history
//	DELETE /api/sessions/{id}                delete a session
//	POST   /api/research                     create a research outline
//	GET    /api/research                     list researches
//	GET    /api/research/{id}                load a research
//	POST   /api/research/{id}/modify         revise the outline
//	POST   /api/research/{id}/sections/{sid} expand one section
//	GET    /api/research/{id}/map            mermaid mind map of the outline
//	DELETE /api/research/{id}                delete a research
//	GET    /health                           liveness probe
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quill0/quill/internal/chat"
	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/research"
	"github.com/quill0/quill/internal/session"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server is the HTTP front for the chat and research services.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

func NewServer(chatSvc *chat.Service, registry session.Registry, store docstore.Store, researchSvc *research.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{mux: mux, logger: logger}
	newChatHandler(chatSvc, logger).register(mux)
	newSessionHandler(registry, store, logger).register(mux)
	newResearchHandler(researchSvc, logger).register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

// Handler returns the full handler chain: recovery outermost, then request
// logging, then the routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
