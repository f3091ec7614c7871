// Package ingest turns URLs mentioned in a conversation into retrievable
// document chunks. It detects URLs in user messages, fetches and extracts
// their readable text, splits it into overlapping chunks, and writes the
// chunks into the session's document namespace.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/evidence"
	"github.com/quill0/quill/internal/session"
)

// maxConcurrentFetches bounds parallel URL ingestion within one message.
const maxConcurrentFetches = 3

// PageFetcher downloads a URL and extracts its readable text.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Ingestor ingests web pages into a session's document store namespace.
type Ingestor struct {
	fetcher   PageFetcher
	store     docstore.Store
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

func NewIngestor(fetcher PageFetcher, store docstore.Store, chunkSize, overlap int, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		fetcher:   fetcher,
		store:     store,
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}
}

// IngestURLs fetches and indexes each URL into sess's namespace. URLs the
// session has already ingested are skipped, making repeated mentions of the
// same link idempotent. Individual URL failures are logged and skipped; the
// remaining URLs still ingest. The returned count is the number of URLs newly
// ingested.
func (in *Ingestor) IngestURLs(ctx context.Context, sess *session.Session, urls []string) int {
	var fresh []string
	for _, u := range urls {
		if sess.HasSource(u) {
			in.logger.Debug("url already ingested, skipping", "url", u, "session", sess.ID)
			continue
		}
		fresh = append(fresh, u)
	}
	if len(fresh) == 0 {
		return 0
	}

	namespace := sess.Namespace()
	ingested := make([]bool, len(fresh))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, u := range fresh {
		g.Go(func() error {
			if err := in.ingestOne(gctx, namespace, u); err != nil {
				in.logger.Warn("url ingestion failed", "url", u, "error", err)
				return nil
			}
			ingested[i] = true
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for i, ok := range ingested {
		if ok {
			sess.AddSource(fresh[i])
			count++
		}
	}
	return count
}

func (in *Ingestor) ingestOne(ctx context.Context, namespace, rawURL string) error {
	page, err := in.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	parts := Chunk(page.Text, in.chunkSize, in.overlap)
	if len(parts) == 0 {
		return fmt.Errorf("no content extracted from %s", rawURL)
	}

	now := time.Now().UTC()
	chunks := make([]evidence.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = evidence.Chunk{
			ID:   chunkID(namespace, rawURL, i),
			Text: p,
			Metadata: evidence.Metadata{
				SourceType: evidence.SourceTypeWebPage,
				Origin:     rawURL,
				IngestedAt: now,
			},
		}
	}

	if err := in.store.Ingest(ctx, namespace, chunks); err != nil {
		return fmt.Errorf("storing chunks for %s: %w", rawURL, err)
	}

	in.logger.Debug("url ingested", "url", rawURL, "namespace", namespace, "chunks", len(chunks))
	return nil
}

// chunkID derives a stable ID from the namespace, origin and position so
// re-ingesting the same page upserts instead of duplicating.
func chunkID(namespace, origin string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s|%s|%d", namespace, origin, seq)).String()
}
