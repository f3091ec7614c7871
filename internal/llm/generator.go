// Package llm provides the generation capability and the small prompt-driven
// helpers built on it: query rewriting, search-intent detection, and session
// title generation.
//
// Generator is a single-method capability; distinct behaviors are distinct
// system instructions passed as data, not distinct types.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrGenerationFailed indicates the downstream model call failed. This is the
// only retrieval-pipeline failure surfaced to users, because no fallback
// answer exists. Checked with errors.Is().
var ErrGenerationFailed = errors.New("generation failed")

// Generator produces text from a prompt. Implementations are expected to be
// safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenkitGenerator runs prompts against a Genkit-registered model.
type GenkitGenerator struct {
	g      *genkit.Genkit
	model  string
	system string
	logger *slog.Logger
}

// NewGenkitGenerator creates a Generator bound to the named model. system is
// the instruction block prepended to every call; it may be empty.
func NewGenkitGenerator(g *genkit.Genkit, model, system string, logger *slog.Logger) (*GenkitGenerator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitGenerator{g: g, model: model, system: system, logger: logger}, nil
}

// Generate implements Generator.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(gg.model),
		ai.WithPrompt(prompt),
	}
	if gg.system != "" {
		opts = append(opts, ai.WithSystem(gg.system))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		gg.logger.Error("model call failed", "model", gg.model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	return text, nil
}
