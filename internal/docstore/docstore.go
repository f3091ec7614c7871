// Package docstore implements the namespaced vector index for document
// evidence.
//
// Namespaces partition the index per conversation session: chunks ingested
// under one namespace are never visible to retrieval under another. Embedding
// generation is delegated to an injected ai.Embedder so providers can be
// swapped and tests can use a stub.
//
// Two implementations exist: Postgres (pgvector, production) and Memory
// (tests and degraded single-process mode).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/quill0/quill/internal/evidence"
)

// VectorDimension is the embedding width stored in the index. The Gemini
// embedder supports output truncation, so the schema stays fixed even when
// the model's native dimensionality is larger.
const VectorDimension int32 = 768

// embedTimeout bounds a single embedding call.
const embedTimeout = 15 * time.Second

// retryDelay is the backoff before the single retry of a flaky embed call.
const retryDelay = 300 * time.Millisecond

// ErrUnavailable indicates the backing index cannot be reached. Callers treat
// this as non-fatal and degrade to other evidence sources.
var ErrUnavailable = errors.New("document store unavailable")

// Store is the namespaced vector index contract.
//
// Retrieve must only search within the given namespace; it returns an empty
// result, not an error, when nothing scores at or above threshold. Ranking is
// cosine similarity descending with ties broken by insertion order.
type Store interface {
	// Ingest upserts the chunks under namespace. The batch is atomic: either
	// every chunk is committed or none are.
	Ingest(ctx context.Context, namespace string, chunks []evidence.Chunk) error

	// Retrieve returns up to k chunks from namespace scoring >= threshold.
	Retrieve(ctx context.Context, namespace, query string, threshold float32, k int) (evidence.Result, error)

	// Count reports how many chunks namespace holds.
	Count(ctx context.Context, namespace string) (int, error)

	// Clear removes every chunk under namespace.
	Clear(ctx context.Context, namespace string) error
}

// embedText generates one embedding with a bounded timeout and a single
// retry. Embedding providers are flaky enough that one cheap retry pays for
// itself, but more would stall the turn.
func embedText(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	dim := VectorDimension

	var vec []float32
	err := retry.Do(
		func() error {
			embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
			defer cancel()

			resp, err := embedder.Embed(embedCtx, &ai.EmbedRequest{
				Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
				Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
			})
			if err != nil {
				return err
			}
			if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
				return errors.New("empty embedding response")
			}
			vec = resp.Embeddings[0].Embedding
			return nil
		},
		retry.Attempts(2),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}
