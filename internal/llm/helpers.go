package llm

import (
	"context"
	"log/slog"
	"strings"
)

// Instruction blocks for the pipeline helpers. Behaviors differ only in the
// prompt, never in code.
const (
	rewriteInstructions = `You reformulate questions to be precise and retrieval-friendly.
Rewrite the user's question to be specific, expand acronyms and technical
terms, and return ONLY the rewritten query with no extra text.`

	intentInstructions = `You judge whether a question needs live or current information from the
web (news, prices, weather, recent events, anything time-sensitive) rather
than static knowledge. Answer with exactly one word: yes or no.`

	titleInstructions = `You create short, descriptive titles. Read the query and return ONLY a
title of at most five words.`
)

// DefaultTitle is used when title generation fails.
const DefaultTitle = "Untitled Session"

// Rewriter reformulates user queries for retrieval quality.
type Rewriter struct {
	gen    Generator
	logger *slog.Logger
}

// NewRewriter creates a Rewriter over gen.
func NewRewriter(gen Generator, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{gen: gen, logger: logger}
}

// Rewrite returns the retrieval-optimized form of query. On any failure the
// original query comes back unchanged; a bad rewrite must never block a turn.
func (r *Rewriter) Rewrite(ctx context.Context, query string) string {
	out, err := r.gen.Generate(ctx, rewriteInstructions+"\n\nQuestion: "+query)
	if err != nil {
		r.logger.Warn("query rewrite failed, using original", "error", err)
		return query
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return query
	}
	return out
}

// IntentDetector judges whether a query needs live web information.
type IntentDetector struct {
	gen    Generator
	logger *slog.Logger
}

// NewIntentDetector creates an IntentDetector over gen.
func NewIntentDetector(gen Generator, logger *slog.Logger) *IntentDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentDetector{gen: gen, logger: logger}
}

// NeedsWeb reports whether query likely needs live information. Failures are
// conservative: no detection means no extra web search.
func (d *IntentDetector) NeedsWeb(ctx context.Context, query string) bool {
	out, err := d.gen.Generate(ctx, intentInstructions+"\n\nQuestion: "+query)
	if err != nil {
		d.logger.Warn("intent detection failed, assuming no", "error", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "yes")
}

// Titler generates short session titles.
type Titler struct {
	gen    Generator
	logger *slog.Logger
}

// NewTitler creates a Titler over gen.
func NewTitler(gen Generator, logger *slog.Logger) *Titler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Titler{gen: gen, logger: logger}
}

// Title returns a short title for the query, or DefaultTitle on failure.
func (t *Titler) Title(ctx context.Context, query string) string {
	out, err := t.gen.Generate(ctx, titleInstructions+"\n\nQuery: "+query)
	if err != nil {
		t.logger.Debug("title generation failed", "error", err)
		return DefaultTitle
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if title == "" {
		return DefaultTitle
	}
	// Hard cap so a rambling model cannot blow up listings.
	if words := strings.Fields(title); len(words) > 8 {
		title = strings.Join(words[:8], " ")
	}
	return title
}
