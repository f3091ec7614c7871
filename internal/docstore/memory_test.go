package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quill0/quill/internal/evidence"
	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/testutil"
)

func newTestStore(t *testing.T) *Memory {
	t.Helper()
	store, err := NewMemory(&testutil.StubEmbedder{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return store
}

func chunk(id, text, origin string) evidence.Chunk {
	return evidence.Chunk{
		ID:   id,
		Text: text,
		Metadata: evidence.Metadata{
			SourceType: evidence.SourceTypeDocument,
			Origin:     origin,
			IngestedAt: time.Now().UTC(),
		},
	}
}

func TestMemoryIngestAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Ingest(ctx, "session-x", []evidence.Chunk{
		chunk("a", "go concurrency patterns with channels", "guide.pdf"),
		chunk("b", "completely different cooking recipe", "recipes.pdf"),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// The deterministic embedder maps identical text to identical vectors,
	// so an exact-text query scores 1.0 on its chunk.
	res, err := store.Retrieve(ctx, "session-x", "go concurrency patterns with channels", 0.99, 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(res.Chunks))
	}
	if res.Chunks[0].ID != "a" {
		t.Errorf("got chunk %q, want %q", res.Chunks[0].ID, "a")
	}
	if len(res.Links) != 0 {
		t.Errorf("Links = %v, want none; citation links come from web search only", res.Links)
	}
}

func TestMemoryNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ingest(ctx, "session-a", []evidence.Chunk{chunk("a", "secret alpha content", "a.txt")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	res, err := store.Retrieve(ctx, "session-b", "secret alpha content", 0, 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Errorf("namespace b saw %d chunks from namespace a", len(res.Chunks))
	}
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []evidence.Chunk{chunk("a", "stable text", "doc.txt")}
	for range 2 {
		if err := store.Ingest(ctx, "ns", batch); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	n, err := store.Count(ctx, "ns")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after double ingest, want 1", n)
	}
}

func TestMemoryIngestFailedEmbedCommitsNothing(t *testing.T) {
	embedder := &testutil.StubEmbedder{Err: errors.New("provider down")}
	store, err := NewMemory(embedder, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	ctx := context.Background()

	err = store.Ingest(ctx, "ns", []evidence.Chunk{chunk("a", "text", "doc.txt")})
	if err == nil {
		t.Fatal("Ingest() succeeded with failing embedder")
	}

	n, _ := store.Count(ctx, "ns")
	if n != 0 {
		t.Errorf("Count() = %d after failed ingest, want 0", n)
	}
}

func TestMemoryRetrieveRespectsTopK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var chunks []evidence.Chunk
	for _, id := range []string{"a", "b", "c", "d"} {
		chunks = append(chunks, chunk(id, "shared topic "+id, "doc.txt"))
	}
	if err := store.Ingest(ctx, "ns", chunks); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	res, err := store.Retrieve(ctx, "ns", "shared topic a", -1, 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(res.Chunks))
	}
}

func TestMemoryClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ingest(ctx, "ns", []evidence.Chunk{chunk("a", "text", "doc.txt")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := store.Clear(ctx, "ns"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	n, _ := store.Count(ctx, "ns")
	if n != 0 {
		t.Errorf("Count() = %d after Clear, want 0", n)
	}
}
