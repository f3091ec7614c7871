package testutil

import (
	"context"
	"sync"
)

// StubGenerator is a scripted llm.Generator for tests.
//
// Responses are consumed in order; when exhausted, Fallback is returned.
// Err, when set, fails every call.
type StubGenerator struct {
	Responses []string
	Fallback  string
	Err       error

	mu      sync.Mutex
	prompts []string
}

// Generate implements llm.Generator.
func (g *StubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)

	if g.Err != nil {
		return "", g.Err
	}
	if n := len(g.prompts) - 1; n < len(g.Responses) {
		return g.Responses[n], nil
	}
	return g.Fallback, nil
}

// Prompts returns every prompt received so far.
func (g *StubGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}
