// Package testutil holds shared test doubles: a deterministic embedder, a
// scripted generator, and a scripted web search provider.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// StubEmbedder is a deterministic ai.Embedder for tests. The same text always
// embeds to the same vector, and different texts land far apart, so similarity
// assertions stay stable without a live provider.
//
// Configure Err to simulate provider failure, or Delay-like behavior by
// wrapping the context passed in.
type StubEmbedder struct {
	// Dim is the vector width. Defaults to 8 when zero.
	Dim int

	// Err, when non-nil, is returned by every Embed call.
	Err error

	mu    sync.Mutex
	calls int
}

// Name implements ai.Embedder.
func (e *StubEmbedder) Name() string { return "stub-embedder" }

// Register implements ai.Embedder. No-op for tests.
func (e *StubEmbedder) Register(api.Registry) {}

// Calls reports how many times Embed ran.
func (e *StubEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed implements ai.Embedder with a hash-seeded unit vector per input.
func (e *StubEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}

	dim := e.Dim
	if dim <= 0 {
		dim = 8
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: hashVector(text, dim),
		})
	}
	return resp, nil
}

// hashVector produces a normalized pseudo-random vector seeded by text.
func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
