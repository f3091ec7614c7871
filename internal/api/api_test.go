package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quill0/quill/internal/chat"
	"github.com/quill0/quill/internal/docstore"
	"github.com/quill0/quill/internal/ingest"
	"github.com/quill0/quill/internal/llm"
	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/research"
	"github.com/quill0/quill/internal/retrieval"
	"github.com/quill0/quill/internal/session"
	"github.com/quill0/quill/internal/testutil"
)

type noopFetcher struct{}

func (noopFetcher) Fetch(_ context.Context, rawURL string) (ingest.Page, error) {
	return ingest.Page{URL: rawURL, Text: "fetched page text"}, nil
}

func newTestServer(t *testing.T) (*Server, *session.MemoryRegistry, *testutil.StubGenerator) {
	t.Helper()

	store, err := docstore.NewMemory(&testutil.StubEmbedder{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	registry := session.NewMemoryRegistry()
	answerer := &testutil.StubGenerator{Fallback: "hello from quill"}
	helper := &testutil.StubGenerator{}

	orch := retrieval.New(store, &testutil.StubWebSource{}, 0.5, 5, 8000, time.Second, log.NewNop())
	chatSvc := chat.NewService(
		registry,
		ingest.NewDetector(nil, log.NewNop()),
		ingest.NewIngestor(noopFetcher{}, store, 200, 40, log.NewNop()),
		llm.NewRewriter(helper, log.NewNop()),
		llm.NewIntentDetector(helper, log.NewNop()),
		llm.NewTitler(helper, log.NewNop()),
		orch,
		answerer,
		false,
		log.NewNop(),
	)

	researchGen := &testutil.StubGenerator{Fallback: `{"overview":"o","sections":[{"title":"T","summary":"s"}]}`}
	researchSvc := research.NewService(researchGen, research.NewMemoryStore(), log.NewNop())

	return NewServer(chatSvc, registry, store, researchSvc, log.NewNop()), registry, answerer
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "hello from quill" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Error("no session id in response")
	}
	if resp.Sources == nil {
		t.Error("sources should be an empty list, not null")
	}
}

func TestChatEndpointValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty message", body: `{"message":"  "}`},
		{name: "bad json", body: `{`},
		{name: "oversized message", body: `{"message":"` + strings.Repeat("a", maxMessageLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChatEndpointGenerationFailure(t *testing.T) {
	srv, _, answerer := newTestServer(t)
	answerer.Err = llm.ErrGenerationFailed

	rec := doRequest(t, srv, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/ingest", `{"urls":["https://example.com/doc"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "https://example.com/doc" {
		t.Errorf("sources = %v", resp.Sources)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	ctx := context.Background()

	s, _ := registry.GetOrCreate(ctx, "")
	s.Title = "stored chat"
	s.Append(session.RoleUser, "hi")
	_ = registry.Save(ctx, s)

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), s.ID) {
		t.Errorf("listing missing session: %s", rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/"+s.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Title != "stored chat" || len(resp.Messages) != 1 {
		t.Errorf("session = %+v", resp)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/sessions/"+s.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/"+s.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestResearchEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/research", `{"topic":"Go"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created research.Research
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(created.Sections) != 1 {
		t.Fatalf("sections = %+v", created.Sections)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/research/"+created.ID+"/map", "")
	if rec.Code != http.StatusOK {
		t.Errorf("map status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/research/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/research/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
