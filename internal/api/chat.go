package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quill0/quill/internal/chat"
	"github.com/quill0/quill/internal/llm"
)

const maxMessageLength = 32 << 10

type chatHandler struct {
	svc    *chat.Service
	logger *slog.Logger
}

func newChatHandler(svc *chat.Service, logger *slog.Logger) *chatHandler {
	return &chatHandler{svc: svc, logger: logger}
}

func (h *chatHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
	mux.HandleFunc("POST /api/ingest", h.ingest)
}

type chatRequest struct {
	Message        string `json:"message"`
	SessionID      string `json:"sessionId"`
	ForceWebSearch bool   `json:"forceWebSearch"`
}

type chatResponse struct {
	SessionID string   `json:"sessionId"`
	Title     string   `json:"title,omitempty"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
}

func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		writeError(w, h.logger, http.StatusBadRequest, "message too long")
		return
	}

	res, err := h.svc.Turn(r.Context(), chat.TurnRequest{
		SessionID:      req.SessionID,
		Message:        req.Message,
		ForceWebSearch: req.ForceWebSearch,
	})
	if err != nil {
		h.logger.Error("chat turn failed", "session", req.SessionID, "error", err)
		if errors.Is(err, llm.ErrGenerationFailed) {
			writeError(w, h.logger, http.StatusBadGateway, "answer generation failed")
			return
		}
		writeError(w, h.logger, http.StatusInternalServerError, "chat turn failed")
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, chatResponse{
		SessionID: res.SessionID,
		Title:     res.Title,
		Answer:    res.Answer,
		Sources:   sources,
	})
}

type ingestRequest struct {
	SessionID string   `json:"sessionId"`
	URLs      []string `json:"urls"`
}

type ingestResponse struct {
	SessionID string   `json:"sessionId"`
	Sources   []string `json:"sources"`
}

func (h *chatHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "urls are required")
		return
	}

	id, sources, err := h.svc.Ingest(r.Context(), req.SessionID, req.URLs)
	if err != nil {
		h.logger.Error("ingestion failed", "session", req.SessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "ingestion failed")
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, ingestResponse{SessionID: id, Sources: sources})
}
