// Package retrieval decides, per chat turn, which evidence sources to
// consult and merges their output into a single bounded context for answer
// generation.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/evidence"
	"github.com/quill0/quill/internal/session"
)

// Labels prefixing each evidence block in the merged context so the
// generation step can attribute claims to a source.
const (
	docLabel = "[Document context]"
	webLabel = "[Web context]"
)

// WebSource is the live search capability the orchestrator consults. A
// failed search reports empty results, never an error.
type WebSource interface {
	Search(ctx context.Context, query string) (text string, links []string)
}

// Request carries the per-turn retrieval inputs. Query is assumed to be
// already rewritten for retrieval quality.
type Request struct {
	Query        string
	ForceWeb     bool // user explicitly demanded a web search this turn
	WebEnabled   bool // session-level web search toggle
	IntentSignal bool // upstream classifier judged the query needs live information
}

// Context is the merged evidence handed to answer generation. An empty Text
// means no source produced evidence and the answer must come from general
// knowledge alone.
type Context struct {
	Text      string
	Links     []string
	DocChunks int
	WebUsed   bool
}

func (c Context) Empty() bool { return c.Text == "" }

// Orchestrator runs the per-turn evidence decision machine:
// force-web skips document lookup entirely; otherwise ingested content is
// retrieved first and web search supplements it when the session toggle and
// intent both ask for it, or replaces it when retrieval comes back empty.
type Orchestrator struct {
	store         docstore.Store
	web           WebSource
	threshold     float32
	topK          int
	maxRunes      int
	sourceTimeout time.Duration
	logger        *slog.Logger
}

func New(store docstore.Store, web WebSource, threshold float32, topK, maxRunes int, sourceTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	if maxRunes <= 0 {
		maxRunes = 8000
	}
	if sourceTimeout <= 0 {
		sourceTimeout = 20 * time.Second
	}
	return &Orchestrator{
		store:         store,
		web:           web,
		threshold:     threshold,
		topK:          topK,
		maxRunes:      maxRunes,
		sourceTimeout: sourceTimeout,
		logger:        logger,
	}
}

// Resolve gathers evidence for one query turn. It never returns an error:
// source failures are logged and collapse to empty evidence for that source,
// so a broken store or provider degrades the answer instead of blocking it.
// The orchestrator only reads; it never mutates session state.
func (o *Orchestrator) Resolve(ctx context.Context, sess *session.Session, req Request) Context {
	var (
		doc evidence.Result
		web evidence.Result
	)

	switch {
	case req.ForceWeb:
		web = o.lookupWeb(ctx, req.Query)

	case sess.HasDocuments():
		// Web search that is independently warranted runs concurrently
		// with retrieval; the empty-retrieval fallback cannot start until
		// the document result is known.
		webWarranted := req.WebEnabled && req.IntentSignal

		webDone := make(chan evidence.Result, 1)
		if webWarranted {
			go func() { webDone <- o.lookupWeb(ctx, req.Query) }()
		}

		doc = o.lookupDocs(ctx, sess.Namespace(), req.Query)

		if webWarranted {
			web = <-webDone
		} else if len(doc.Chunks) == 0 && req.WebEnabled {
			web = o.lookupWeb(ctx, req.Query)
		}

	default:
		if req.WebEnabled && req.IntentSignal {
			web = o.lookupWeb(ctx, req.Query)
		}
	}

	merged := o.merge(doc, web)
	o.logger.Debug("retrieval resolved",
		"session", sess.ID,
		"doc_chunks", merged.DocChunks,
		"web_used", merged.WebUsed,
		"links", len(merged.Links),
	)
	return merged
}

func (o *Orchestrator) lookupDocs(ctx context.Context, namespace, query string) evidence.Result {
	ctx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
	defer cancel()

	res, err := o.store.Retrieve(ctx, namespace, query, o.threshold, o.topK)
	if err != nil {
		o.logger.Warn("document lookup failed, continuing without it", "namespace", namespace, "error", err)
		return evidence.Result{}
	}
	return res
}

func (o *Orchestrator) lookupWeb(ctx context.Context, query string) evidence.Result {
	ctx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
	defer cancel()

	text, links := o.web.Search(ctx, query)
	return evidence.Result{Text: text, Links: links}
}

// merge assembles the labeled context: document evidence first, then web
// evidence. When the rune budget is exceeded, the lowest-scoring document
// chunks are dropped whole; chunk text is never cut mid-way.
func (o *Orchestrator) merge(doc, web evidence.Result) Context {
	budget := o.maxRunes

	webText := strings.TrimSpace(web.Text)
	if webText != "" {
		// Web text gets at most half the budget when documents also have
		// evidence, the whole budget otherwise.
		limit := budget
		if len(doc.Chunks) > 0 {
			limit = budget / 2
		}
		if r := []rune(webText); len(r) > limit {
			webText = string(r[:limit])
		}
	}

	docBudget := budget - len([]rune(webText))
	kept := make([]evidence.ScoredChunk, 0, len(doc.Chunks))
	used := 0
	// Chunks arrive ordered by descending score, so keeping a prefix drops
	// the lowest-relevance ones first.
	for _, sc := range doc.Chunks {
		n := len([]rune(sc.Chunk.Text))
		if used+n > docBudget {
			break
		}
		kept = append(kept, sc)
		used += n
	}

	var b strings.Builder
	if len(kept) > 0 {
		b.WriteString(docLabel)
		b.WriteString("\n")
		for i, sc := range kept {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(strings.TrimSpace(sc.Chunk.Text))
		}
	}
	if webText != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(webLabel)
		b.WriteString("\n")
		b.WriteString(webText)
	}

	// Only web results feed the citation list; document origins are already
	// visible on the session as its ingested sources.
	return Context{
		Text:      b.String(),
		Links:     evidence.DedupeLinks(web.Links),
		DocChunks: len(kept),
		WebUsed:   webText != "",
	}
}
