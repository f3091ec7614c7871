package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/quill0/quill/internal/evidence"
)

// memEntry is one stored chunk with its vector and insertion sequence.
type memEntry struct {
	chunk evidence.Chunk
	vec   []float32
	seq   int
}

// Memory is an in-process Store used in tests and when no Postgres backend
// is configured. It keeps per-namespace slices guarded by one mutex; the
// workloads it serves are small enough that finer locking buys nothing.
type Memory struct {
	embedder ai.Embedder
	logger   *slog.Logger

	mu         sync.RWMutex
	namespaces map[string][]memEntry
	nextSeq    int
}

// NewMemory creates an in-memory Store.
func NewMemory(embedder ai.Embedder, logger *slog.Logger) (*Memory, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		embedder:   embedder,
		logger:     logger,
		namespaces: make(map[string][]memEntry),
	}, nil
}

// Ingest embeds and stores the chunks under namespace. The batch is staged
// fully before the map is touched, so a failed embed commits nothing.
func (s *Memory) Ingest(ctx context.Context, namespace string, chunks []evidence.Chunk) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(chunks) == 0 {
		return nil
	}

	staged := make([]memEntry, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := embedText(ctx, s.embedder, ch.Text)
		if err != nil {
			return fmt.Errorf("chunk %q: %w", ch.ID, err)
		}
		staged = append(staged, memEntry{chunk: ch, vec: vec})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.namespaces[namespace]
	for _, e := range staged {
		// Upsert semantics match the Postgres implementation.
		replaced := false
		for i := range entries {
			if entries[i].chunk.ID == e.chunk.ID {
				e.seq = entries[i].seq
				entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			e.seq = s.nextSeq
			s.nextSeq++
			entries = append(entries, e)
		}
	}
	s.namespaces[namespace] = entries

	s.logger.Debug("ingested chunks", "namespace", namespace, "count", len(chunks))
	return nil
}

// Retrieve scores every chunk in namespace by cosine similarity and returns
// the top k at or above threshold, ties resolved by insertion order.
func (s *Memory) Retrieve(ctx context.Context, namespace, query string, threshold float32, k int) (evidence.Result, error) {
	if namespace == "" {
		return evidence.Result{}, fmt.Errorf("namespace is required")
	}
	if k <= 0 {
		return evidence.Result{}, nil
	}

	queryVec, err := embedText(ctx, s.embedder, query)
	if err != nil {
		return evidence.Result{}, err
	}

	s.mu.RLock()
	entries := s.namespaces[namespace]
	scored := make([]struct {
		entry memEntry
		score float32
	}, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, struct {
			entry memEntry
			score float32
		}{e, cosine(queryVec, e.vec)})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entry.seq < scored[j].entry.seq
	})

	var result evidence.Result
	for _, sc := range scored {
		if len(result.Chunks) >= k {
			break
		}
		if sc.score < threshold {
			continue
		}
		result.Chunks = append(result.Chunks, evidence.ScoredChunk{
			Chunk: sc.entry.chunk,
			Score: sc.score,
		})
	}
	return result, nil
}

// Count reports the chunk count for namespace.
func (s *Memory) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace]), nil
}

// Clear removes every chunk under namespace.
func (s *Memory) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// cosine computes cosine similarity between two vectors of equal length.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
