// Package chat runs one conversation turn end to end: inline URL ingestion,
// query rewriting, evidence retrieval, answer generation, and history
// persistence.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quill0/quill/internal/compose"
	"github.com/quill0/quill/internal/ingest"
	"github.com/quill0/quill/internal/llm"
	"github.com/quill0/quill/internal/retrieval"
	"github.com/quill0/quill/internal/session"
)

// TurnRequest is one user message plus its per-turn switches.
type TurnRequest struct {
	SessionID      string
	Message        string
	ForceWebSearch bool
}

// TurnResult is the assistant's reply and its attribution.
type TurnResult struct {
	SessionID string
	Title     string
	Answer    string
	Sources   []string
	Ingested  int
}

// Service wires the per-turn pipeline. All fields are required except the
// logger.
type Service struct {
	registry   session.Registry
	detector   *ingest.Detector
	ingestor   *ingest.Ingestor
	rewriter   *llm.Rewriter
	intent     *llm.IntentDetector
	titler     *llm.Titler
	orch       *retrieval.Orchestrator
	answerer   llm.Generator
	webEnabled bool
	logger     *slog.Logger
}

func NewService(
	registry session.Registry,
	detector *ingest.Detector,
	ingestor *ingest.Ingestor,
	rewriter *llm.Rewriter,
	intent *llm.IntentDetector,
	titler *llm.Titler,
	orch *retrieval.Orchestrator,
	answerer llm.Generator,
	webEnabled bool,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:   registry,
		detector:   detector,
		ingestor:   ingestor,
		rewriter:   rewriter,
		intent:     intent,
		titler:     titler,
		orch:       orch,
		answerer:   answerer,
		webEnabled: webEnabled,
		logger:     logger,
	}
}

// Turn processes one user message. URLs mentioned in the message are
// ingested into the session namespace before retrieval, so a link pasted in
// the same turn is already retrievable when the question about it is
// answered. The only error Turn returns is a generation failure; every
// retrieval-side problem degrades to less evidence.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	sess, err := s.registry.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("resolving session: %w", err)
	}

	ingested := 0
	if urls := s.detector.Detect(ctx, req.Message); len(urls) > 0 {
		ingested = s.ingestor.IngestURLs(ctx, sess, urls)
	}

	query := s.rewriter.Rewrite(ctx, req.Message)

	// Intent detection only matters when web search could actually run.
	intentSignal := false
	if s.webEnabled && !req.ForceWebSearch {
		intentSignal = s.intent.NeedsWeb(ctx, req.Message)
	}

	rc := s.orch.Resolve(ctx, sess, retrieval.Request{
		Query:        query,
		ForceWeb:     req.ForceWebSearch,
		WebEnabled:   s.webEnabled,
		IntentSignal: intentSignal,
	})

	answer, err := s.answerer.Generate(ctx, compose.Prompt(rc, req.Message))
	if err != nil {
		return TurnResult{}, fmt.Errorf("generating answer: %w", err)
	}

	firstTurn := len(sess.Messages()) == 0
	sess.Append(session.RoleUser, req.Message)
	sess.Append(session.RoleAssistant, answer)
	if firstTurn && sess.Title == "" {
		sess.Title = s.titler.Title(ctx, req.Message)
	}

	if err := s.registry.Save(ctx, sess); err != nil {
		// The answer is already generated; losing persistence should not
		// lose the reply.
		s.logger.Warn("saving session failed", "session", sess.ID, "error", err)
	}

	return TurnResult{
		SessionID: sess.ID,
		Title:     sess.Title,
		Answer:    answer,
		Sources:   rc.Links,
		Ingested:  ingested,
	}, nil
}

// Ingest fetches and indexes the given URLs into the session without running
// a chat turn, returning the session's full source list afterwards.
func (s *Service) Ingest(ctx context.Context, sessionID string, urls []string) (string, []string, error) {
	sess, err := s.registry.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("resolving session: %w", err)
	}

	normalized := make([]string, 0, len(urls))
	for _, u := range urls {
		if n, ok := ingest.NormalizeURL(u); ok {
			normalized = append(normalized, n)
		}
	}
	s.ingestor.IngestURLs(ctx, sess, normalized)

	if err := s.registry.Save(ctx, sess); err != nil {
		s.logger.Warn("saving session failed", "session", sess.ID, "error", err)
	}
	return sess.ID, sess.Sources(), nil
}
