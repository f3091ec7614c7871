// Package evidence defines the value types shared by every retrieval source.
//
// A Chunk is an immutable fragment of ingested material; a Result is the
// transient, per-turn collection of evidence a source returns. Both document
// retrieval and web search produce Results, which the retrieval orchestrator
// merges into a single bounded context.
package evidence

import "time"

// Source type values recorded in chunk metadata.
const (
	SourceTypeDocument = "document"
	SourceTypeImage    = "image"
	SourceTypeWebPage  = "web_page"
	SourceTypeCSV      = "csv"
)

// Metadata describes where a chunk came from.
type Metadata struct {
	// SourceType is one of the SourceType* constants.
	SourceType string `json:"source_type"`

	// Origin identifies the source: a filename or a URL.
	Origin string `json:"origin"`

	// IngestedAt is when the chunk entered the store.
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is a bounded text fragment produced by splitting a source for
// embedding and retrieval. Chunks are immutable after creation.
type Chunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// ScoredChunk pairs a chunk with its retrieval similarity. Chunk is embedded
// so its fields read directly off the scored value.
type ScoredChunk struct {
	Chunk
	// Score is cosine similarity in [0, 1].
	Score float32
}

// Result is the per-query output of an evidence source. It is constructed
// fresh each turn and never persisted.
type Result struct {
	// Chunks holds document evidence ranked by descending score.
	Chunks []ScoredChunk

	// Text holds freeform evidence (web search answers) when the source does
	// not produce discrete chunks.
	Text string

	// Links are citation URLs, deduplicated, first-seen order preserved.
	// Only web search populates them; document retrieval leaves the slice
	// empty because ingested origins are reported on the session instead.
	Links []string
}

// Empty reports whether the result carries no usable evidence.
func (r Result) Empty() bool {
	return len(r.Chunks) == 0 && r.Text == ""
}

// DedupeLinks returns links with duplicates removed, keeping the first
// occurrence of each. The input slice is not modified.
func DedupeLinks(links []string) []string {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
