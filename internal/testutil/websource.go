package testutil

import (
	"context"
	"sync"
	"time"
)

// StubWebSource is a scripted web search source for tests.
type StubWebSource struct {
	// Text and Links are returned from every Search call.
	Text  string
	Links []string

	// Fail makes Search behave like a dead provider: empty results.
	Fail bool

	// Delay is slept (context permitting) before responding.
	Delay time.Duration

	mu      sync.Mutex
	queries []string
}

// Search implements retrieval.WebSource.
func (w *StubWebSource) Search(ctx context.Context, query string) (string, []string) {
	w.mu.Lock()
	w.queries = append(w.queries, query)
	w.mu.Unlock()

	if w.Delay > 0 {
		select {
		case <-time.After(w.Delay):
		case <-ctx.Done():
			return "", nil
		}
	}
	if w.Fail {
		return "", nil
	}
	return w.Text, w.Links
}

// Queries returns every query received so far.
func (w *StubWebSource) Queries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.queries))
	copy(out, w.queries)
	return out
}

// Calls reports how many searches ran.
func (w *StubWebSource) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queries)
}
