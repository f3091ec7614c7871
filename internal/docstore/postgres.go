package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/quill0/quill/internal/evidence"
)

const upsertChunkSQL = `INSERT INTO doc_chunks (id, namespace, content, embedding, metadata)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
		embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

// retrieveSQL orders by vector distance, then by insertion sequence so equal
// scores resolve deterministically.
const retrieveSQL = `SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
	FROM doc_chunks
	WHERE namespace = $2
	ORDER BY embedding <=> $1, seq
	LIMIT $3`

// Postgres is the pgvector-backed Store.
//
// Postgres is safe for concurrent use by multiple goroutines. All namespace
// scoping happens through query parameters; no client state is mutated per
// call, so one pool serves every session.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewPostgres creates a pgvector-backed Store.
func NewPostgres(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, embedder: embedder, logger: logger}, nil
}

// Ingest embeds the chunks, then commits them in a single transaction so a
// cancelled turn never leaves orphan chunks behind to pollute retrieval.
func (s *Postgres) Ingest(ctx context.Context, namespace string, chunks []evidence.Chunk) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(chunks) == 0 {
		return nil
	}

	// Embed outside the transaction; no connection held during slow calls.
	vectors := make([]pgvector.Vector, len(chunks))
	for i, ch := range chunks {
		vec, err := embedText(ctx, s.embedder, ch.Text)
		if err != nil {
			return fmt.Errorf("chunk %q: %w", ch.ID, err)
		}
		vectors[i] = pgvector.NewVector(vec)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, ch := range chunks {
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", ch.ID, err)
		}
		if _, err := tx.Exec(ctx, upsertChunkSQL, ch.ID, namespace, ch.Text, vectors[i], meta); err != nil {
			return fmt.Errorf("%w: upsert chunk %q: %v", ErrUnavailable, ch.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}

	s.logger.Debug("ingested chunks", "namespace", namespace, "count", len(chunks))
	return nil
}

// Retrieve searches namespace for the k nearest chunks scoring >= threshold.
func (s *Postgres) Retrieve(ctx context.Context, namespace, query string, threshold float32, k int) (evidence.Result, error) {
	if namespace == "" {
		return evidence.Result{}, fmt.Errorf("namespace is required")
	}
	if k <= 0 {
		return evidence.Result{}, nil
	}

	vec, err := embedText(ctx, s.embedder, query)
	if err != nil {
		return evidence.Result{}, err
	}

	rows, err := s.pool.Query(ctx, retrieveSQL, pgvector.NewVector(vec), namespace, k)
	if err != nil {
		return evidence.Result{}, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var result evidence.Result
	for rows.Next() {
		var (
			id, content string
			metaRaw     []byte
			similarity  float64
		)
		if err := rows.Scan(&id, &content, &metaRaw, &similarity); err != nil {
			return evidence.Result{}, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		if float32(similarity) < threshold {
			continue
		}

		var meta evidence.Metadata
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			s.logger.Warn("unparsable chunk metadata", "chunk_id", id, "error", err)
		}
		result.Chunks = append(result.Chunks, evidence.ScoredChunk{
			Chunk: evidence.Chunk{ID: id, Text: content, Metadata: meta},
			Score: float32(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return evidence.Result{}, fmt.Errorf("%w: rows: %v", ErrUnavailable, err)
	}

	s.logger.Debug("retrieved chunks", "namespace", namespace, "hits", len(result.Chunks))
	return result, nil
}

// Count reports the chunk count for namespace.
func (s *Postgres) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM doc_chunks WHERE namespace = $1`, namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Clear removes every chunk under namespace. Used when a session is deleted.
func (s *Postgres) Clear(ctx context.Context, namespace string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM doc_chunks WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrUnavailable, err)
	}
	s.logger.Debug("cleared namespace", "namespace", namespace)
	return nil
}
