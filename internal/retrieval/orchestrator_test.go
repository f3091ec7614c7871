package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/evidence"
	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/session"
	"github.com/quill0/quill/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// trackingStore wraps a Store and records Retrieve calls, optionally failing
// or stalling them.
type trackingStore struct {
	docstore.Store
	retrieves int
	fail      bool
	delay     time.Duration
}

func (t *trackingStore) Retrieve(ctx context.Context, namespace, query string, threshold float32, k int) (evidence.Result, error) {
	t.retrieves++
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return evidence.Result{}, ctx.Err()
		}
	}
	if t.fail {
		return evidence.Result{}, errors.New("store down")
	}
	return t.Store.Retrieve(ctx, namespace, query, threshold, k)
}

func newMemoryStore(t *testing.T) *docstore.Memory {
	t.Helper()
	store, err := docstore.NewMemory(&testutil.StubEmbedder{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return store
}

// seedSession ingests one chunk whose text matches the query exactly, so the
// deterministic embedder scores it at the top of the similarity range.
func seedSession(t *testing.T, store docstore.Store, sess *session.Session, text, origin string) {
	t.Helper()
	err := store.Ingest(context.Background(), sess.Namespace(), []evidence.Chunk{{
		ID:   "c1",
		Text: text,
		Metadata: evidence.Metadata{
			SourceType: evidence.SourceTypeDocument,
			Origin:     origin,
			IngestedAt: time.Now().UTC(),
		},
	}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	sess.AddSource(origin)
}

func TestResolveForceWebSkipsDocLookup(t *testing.T) {
	store := &trackingStore{Store: newMemoryStore(t)}
	web := &testutil.StubWebSource{Text: "web answer", Links: []string{"https://a.example"}}
	sess := session.New("")
	seedSession(t, store.Store, sess, "the exact question", "doc.pdf")

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "the exact question", ForceWeb: true, WebEnabled: true,
	})

	if store.retrieves != 0 {
		t.Errorf("document lookup ran %d times with force web, want 0", store.retrieves)
	}
	if web.Calls() != 1 {
		t.Errorf("web search ran %d times, want 1", web.Calls())
	}
	if !strings.Contains(rc.Text, "web answer") {
		t.Errorf("context missing web evidence: %q", rc.Text)
	}
}

func TestResolveDocHitWithWebDisabledSkipsWeb(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{Text: "should not appear"}
	sess := session.New("")
	seedSession(t, store, sess, "kubernetes networking basics", "doc.pdf")

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "kubernetes networking basics", WebEnabled: false, IntentSignal: true,
	})

	if web.Calls() != 0 {
		t.Errorf("web search ran %d times with toggle off, want 0", web.Calls())
	}
	if rc.DocChunks == 0 {
		t.Error("expected document evidence")
	}
	if rc.WebUsed {
		t.Error("web evidence present despite disabled toggle")
	}
}

func TestResolveDocHitWithIntentAddsWeb(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{Text: "current info", Links: []string{"https://news.example"}}
	sess := session.New("")
	seedSession(t, store, sess, "release history of the library", "doc.pdf")

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "release history of the library", WebEnabled: true, IntentSignal: true,
	})

	if web.Calls() != 1 {
		t.Errorf("web search ran %d times, want 1", web.Calls())
	}
	if rc.DocChunks == 0 || !rc.WebUsed {
		t.Errorf("want both sources, got doc=%d web=%v", rc.DocChunks, rc.WebUsed)
	}
}

func TestResolveDocHitWithoutIntentSkipsWeb(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{Text: "should not appear"}
	sess := session.New("")
	seedSession(t, store, sess, "chapter two of the report", "report.pdf")

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "chapter two of the report", WebEnabled: true, IntentSignal: false,
	})

	if web.Calls() != 0 {
		t.Errorf("web search ran %d times without intent, want 0", web.Calls())
	}
	if rc.DocChunks == 0 {
		t.Error("expected document evidence")
	}
	// Citation links come from web search; a doc-only turn cites nothing.
	if len(rc.Links) != 0 {
		t.Errorf("Links = %v, want none for document-only evidence", rc.Links)
	}
}

func TestResolveEmptyRetrievalFallsBackToWeb(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{Text: "web fallback"}
	sess := session.New("")
	// Session has ingested content, but nothing matches the query above
	// threshold.
	seedSession(t, store, sess, "completely unrelated material", "doc.pdf")

	orch := New(store, web, 0.99, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "current exchange rate USD to EUR", WebEnabled: true, IntentSignal: false,
	})

	if web.Calls() != 1 {
		t.Errorf("web search ran %d times after empty retrieval, want 1", web.Calls())
	}
	if rc.DocChunks != 0 || !rc.WebUsed {
		t.Errorf("want web-only evidence, got doc=%d web=%v", rc.DocChunks, rc.WebUsed)
	}
}

func TestResolveNoContentNeedsIntentForWeb(t *testing.T) {
	store := newMemoryStore(t)
	sess := session.New("")

	tests := []struct {
		name     string
		req      Request
		wantWeb  int
		wantText string
	}{
		{
			name:     "intent triggers web",
			req:      Request{Query: "current weather", WebEnabled: true, IntentSignal: true},
			wantWeb:  1,
			wantText: "live data",
		},
		{
			name:    "no intent no web",
			req:     Request{Query: "what is a monad", WebEnabled: true},
			wantWeb: 0,
		},
		{
			name:    "toggle off blocks intent",
			req:     Request{Query: "current weather", WebEnabled: false, IntentSignal: true},
			wantWeb: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			web := &testutil.StubWebSource{Text: "live data"}
			orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
			rc := orch.Resolve(context.Background(), sess, tt.req)

			if web.Calls() != tt.wantWeb {
				t.Errorf("web calls = %d, want %d", web.Calls(), tt.wantWeb)
			}
			if tt.wantWeb == 0 && !rc.Empty() {
				t.Errorf("expected empty context, got %q", rc.Text)
			}
			if tt.wantText != "" && !strings.Contains(rc.Text, tt.wantText) {
				t.Errorf("context %q missing %q", rc.Text, tt.wantText)
			}
		})
	}
}

func TestResolveMergeOrderingAndLabels(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{Text: "fresh web facts", Links: []string{"https://a.example"}}
	sess := session.New("")
	seedSession(t, store, sess, "shared topic question", "doc.pdf")

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "shared topic question", WebEnabled: true, IntentSignal: true,
	})

	docIdx := strings.Index(rc.Text, docLabel)
	webIdx := strings.Index(rc.Text, webLabel)
	if docIdx < 0 || webIdx < 0 {
		t.Fatalf("context missing labels: %q", rc.Text)
	}
	if docIdx > webIdx {
		t.Errorf("document block at %d after web block at %d", docIdx, webIdx)
	}
}

func TestResolveBothSourcesFailReturnsEmptyInBoundedTime(t *testing.T) {
	store := &trackingStore{Store: newMemoryStore(t), fail: true, delay: 50 * time.Millisecond}
	web := &testutil.StubWebSource{Fail: true, Delay: 50 * time.Millisecond}
	sess := session.New("")
	sess.AddSource("doc.pdf")

	orch := New(store, web, 0.5, 5, 8000, 200*time.Millisecond, log.NewNop())

	start := time.Now()
	rc := orch.Resolve(context.Background(), sess, Request{
		Query: "anything", WebEnabled: true,
	})
	elapsed := time.Since(start)

	if !rc.Empty() {
		t.Errorf("expected empty context, got %q", rc.Text)
	}
	if len(rc.Links) != 0 {
		t.Errorf("expected no links, got %v", rc.Links)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Resolve took %v, want bounded completion", elapsed)
	}
}

func TestResolveNamespaceIsolation(t *testing.T) {
	store := newMemoryStore(t)
	web := &testutil.StubWebSource{}
	sessA := session.New("aaaa")
	sessB := session.New("bbbb")
	seedSession(t, store, sessA, "private notes of session A", "a.pdf")
	sessB.AddSource("b.pdf") // B believes it has content, but its namespace is empty

	orch := New(store, web, 0.5, 5, 8000, time.Second, log.NewNop())
	rc := orch.Resolve(context.Background(), sessB, Request{
		Query: "private notes of session A", WebEnabled: false,
	})

	if rc.DocChunks != 0 {
		t.Errorf("session B retrieved %d chunks from A's namespace", rc.DocChunks)
	}
}

func TestMergeDropsLowestScoredChunksFirst(t *testing.T) {
	orch := New(newMemoryStore(t), &testutil.StubWebSource{}, 0.5, 5, 30, time.Second, log.NewNop())

	doc := evidence.Result{
		Chunks: []evidence.ScoredChunk{
			{Chunk: evidence.Chunk{ID: "hi", Text: "high score text"}, Score: 0.9},
			{Chunk: evidence.Chunk{ID: "lo", Text: "low score text that is much too long for the remaining budget"}, Score: 0.6},
		},
	}

	rc := orch.merge(doc, evidence.Result{})
	if !strings.Contains(rc.Text, "high score text") {
		t.Errorf("highest-scored chunk missing from %q", rc.Text)
	}
	if strings.Contains(rc.Text, "low score") {
		t.Errorf("over-budget chunk should be dropped whole, got %q", rc.Text)
	}
	if rc.DocChunks != 1 {
		t.Errorf("DocChunks = %d, want 1", rc.DocChunks)
	}
}

func TestMergeKeepsStrictScorePrefix(t *testing.T) {
	orch := New(newMemoryStore(t), &testutil.StubWebSource{}, 0.5, 5, 10, time.Second, log.NewNop())

	// The middle chunk overflows the budget. The tiny low-scored chunk would
	// fit, but keeping it would rank it above better evidence that was
	// dropped, so the cut happens at the first overflow.
	doc := evidence.Result{
		Chunks: []evidence.ScoredChunk{
			{Chunk: evidence.Chunk{ID: "hi", Text: "hitexts1"}, Score: 0.9},
			{Chunk: evidence.Chunk{ID: "mid", Text: "midtexts"}, Score: 0.8},
			{Chunk: evidence.Chunk{ID: "lo", Text: "lo"}, Score: 0.5},
		},
	}

	rc := orch.merge(doc, evidence.Result{})
	if !strings.Contains(rc.Text, "hitexts1") {
		t.Errorf("highest-scored chunk missing from %q", rc.Text)
	}
	if strings.Contains(rc.Text, "midtexts") || rc.DocChunks != 1 {
		t.Errorf("want only the top chunk kept, got %d chunks in %q", rc.DocChunks, rc.Text)
	}
}

func TestMergeCitesWebLinksOnly(t *testing.T) {
	orch := New(newMemoryStore(t), &testutil.StubWebSource{}, 0.5, 5, 8000, time.Second, log.NewNop())

	doc := evidence.Result{
		Chunks: []evidence.ScoredChunk{{Chunk: evidence.Chunk{ID: "c", Text: "t"}, Score: 0.9}},
	}
	web := evidence.Result{Text: "w", Links: []string{
		"https://b.example", "https://c.example", "https://b.example",
	}}

	rc := orch.merge(doc, web)
	want := []string{"https://b.example", "https://c.example"}
	if len(rc.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", rc.Links, want)
	}
	for i := range want {
		if rc.Links[i] != want[i] {
			t.Errorf("Links[%d] = %q, want %q", i, rc.Links[i], want[i])
		}
	}
}
