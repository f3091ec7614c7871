package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/session"
)

type sessionHandler struct {
	registry session.Registry
	store    docstore.Store
	logger   *slog.Logger
}

func newSessionHandler(registry session.Registry, store docstore.Store, logger *slog.Logger) *sessionHandler {
	return &sessionHandler{registry: registry, store: store, logger: logger}
}

func (h *sessionHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	infos, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("listing sessions failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"sessions": infos})
}

type sessionResponse struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Messages []session.Message `json:"messages"`
	Sources  []string          `json:"sources"`
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Load(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("loading session failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "loading session failed")
		return
	}

	messages := s.Messages()
	if messages == nil {
		messages = []session.Message{}
	}
	sources := s.Sources()
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, sessionResponse{
		ID:       s.ID,
		Title:    s.Title,
		Messages: messages,
		Sources:  sources,
	})
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting session failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "deleting session failed")
		return
	}

	// The session row is gone; orphaned chunks only waste space, so a failed
	// clear is logged rather than surfaced.
	id := r.PathValue("id")
	if err := h.store.Clear(r.Context(), session.Namespace(id)); err != nil {
		h.logger.Warn("clearing session namespace failed", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
