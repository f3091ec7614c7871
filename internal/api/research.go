package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quill0/quill/internal/llm"
	"github.com/quill0/quill/internal/research"
)

type researchHandler struct {
	svc    *research.Service
	logger *slog.Logger
}

func newResearchHandler(svc *research.Service, logger *slog.Logger) *researchHandler {
	return &researchHandler{svc: svc, logger: logger}
}

func (h *researchHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/research", h.create)
	mux.HandleFunc("GET /api/research", h.list)
	mux.HandleFunc("GET /api/research/{id}", h.get)
	mux.HandleFunc("POST /api/research/{id}/modify", h.modify)
	mux.HandleFunc("POST /api/research/{id}/sections/{sid}", h.expand)
	mux.HandleFunc("GET /api/research/{id}/map", h.mindMap)
	mux.HandleFunc("DELETE /api/research/{id}", h.delete)
}

func (h *researchHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "topic is required")
		return
	}

	res, err := h.svc.Create(r.Context(), req.Topic)
	if err != nil {
		h.logger.Error("creating research failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "creating research failed")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, res)
}

func (h *researchHandler) list(w http.ResponseWriter, r *http.Request) {
	researches, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("listing researches failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "listing researches failed")
		return
	}
	if researches == nil {
		researches = []*research.Research{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"researches": researches})
}

func (h *researchHandler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if h.handleErr(w, err, "loading research failed") {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *researchHandler) modify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "instruction is required")
		return
	}

	res, err := h.svc.Modify(r.Context(), r.PathValue("id"), req.Instruction)
	if h.handleErr(w, err, "modifying research failed") {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *researchHandler) expand(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ExpandSection(r.Context(), r.PathValue("id"), r.PathValue("sid"))
	if h.handleErr(w, err, "expanding section failed") {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *researchHandler) mindMap(w http.ResponseWriter, r *http.Request) {
	src, err := h.svc.Map(r.Context(), r.PathValue("id"))
	if h.handleErr(w, err, "rendering map failed") {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"mermaid": src})
}

func (h *researchHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Delete(r.Context(), r.PathValue("id"))
	if h.handleErr(w, err, "deleting research failed") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleErr writes the right status for a service error and reports whether
// the request is finished.
func (h *researchHandler) handleErr(w http.ResponseWriter, err error, msg string) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, research.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, "research not found")
	case errors.Is(err, llm.ErrGenerationFailed):
		h.logger.Error(msg, "error", err)
		writeError(w, h.logger, http.StatusBadGateway, msg)
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, msg)
	}
	return true
}
