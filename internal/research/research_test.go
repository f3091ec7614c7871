package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quill0/quill/internal/log"
	"github.com/quill0/quill/internal/testutil"
)

const outlineJSON = `{
	"overview": "An overview of Go.",
	"sections": [
		{"title": "Basics", "summary": "Syntax and tooling."},
		{"title": "Concurrency", "summary": "Goroutines and channels."}
	]
}`

func newTestService(gen *testutil.StubGenerator) *Service {
	return NewService(gen, NewMemoryStore(), log.NewNop())
}

func TestCreateParsesOutline(t *testing.T) {
	svc := newTestService(&testutil.StubGenerator{Responses: []string{outlineJSON}})

	r, err := svc.Create(context.Background(), "Go")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if r.Overview != "An overview of Go." {
		t.Errorf("Overview = %q", r.Overview)
	}
	if len(r.Sections) != 2 || r.Sections[0].Title != "Basics" || r.Sections[1].Seq != 1 {
		t.Errorf("Sections = %+v", r.Sections)
	}

	// Round-trips through the store.
	loaded, err := svc.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(loaded.Sections) != 2 {
		t.Errorf("loaded %d sections, want 2", len(loaded.Sections))
	}
}

func TestCreateStripsCodeFence(t *testing.T) {
	svc := newTestService(&testutil.StubGenerator{Responses: []string{"```json\n" + outlineJSON + "\n```"}})

	r, err := svc.Create(context.Background(), "Go")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(r.Sections) != 2 {
		t.Errorf("got %d sections, want 2", len(r.Sections))
	}
}

func TestCreateFallsBackOnGarbageOutput(t *testing.T) {
	svc := newTestService(&testutil.StubGenerator{Responses: []string{"sorry, I cannot do that"}})

	r, err := svc.Create(context.Background(), "Go")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(r.Sections) == 0 {
		t.Error("fallback outline has no sections")
	}
	if !strings.Contains(r.Overview, "Go") {
		t.Errorf("fallback overview %q does not mention the topic", r.Overview)
	}
}

func TestModifyKeepsExpandedContent(t *testing.T) {
	gen := &testutil.StubGenerator{Responses: []string{
		outlineJSON,
		"a full page about basics", // ExpandSection
		outlineJSON,                // Modify returns the same outline
	}}
	svc := newTestService(gen)
	ctx := context.Background()

	r, err := svc.Create(ctx, "Go")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	r, err = svc.ExpandSection(ctx, r.ID, r.Sections[0].ID)
	if err != nil {
		t.Fatalf("ExpandSection() error = %v", err)
	}

	r, err = svc.Modify(ctx, r.ID, "keep everything")
	if err != nil {
		t.Fatalf("Modify() error = %v", err)
	}
	if r.Sections[0].Content != "a full page about basics" {
		t.Errorf("expanded content lost across Modify: %q", r.Sections[0].Content)
	}
}

func TestExpandSectionUnknownID(t *testing.T) {
	svc := newTestService(&testutil.StubGenerator{Responses: []string{outlineJSON}})
	ctx := context.Background()

	r, err := svc.Create(ctx, "Go")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.ExpandSection(ctx, r.ID, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ExpandSection() error = %v, want ErrNotFound", err)
	}
}

func TestMapUsesModelOutput(t *testing.T) {
	gen := &testutil.StubGenerator{Responses: []string{
		outlineJSON,
		"mindmap\n  root((Go))\n    Basics",
	}}
	svc := newTestService(gen)
	ctx := context.Background()

	r, _ := svc.Create(ctx, "Go")
	src, err := svc.Map(ctx, r.ID)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if !strings.HasPrefix(src, "mindmap") {
		t.Errorf("Map() = %q, want mermaid mindmap source", src)
	}
}

func TestMapFallsBackOnBadModelOutput(t *testing.T) {
	gen := &testutil.StubGenerator{Responses: []string{
		outlineJSON,
		"here is your diagram: flowchart LR",
	}}
	svc := newTestService(gen)
	ctx := context.Background()

	r, _ := svc.Create(ctx, "Go")
	src, err := svc.Map(ctx, r.ID)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if !strings.HasPrefix(src, "mindmap") {
		t.Errorf("fallback Map() = %q, want deterministic mindmap", src)
	}
	if !strings.Contains(src, "Basics") {
		t.Errorf("fallback map missing outline sections: %q", src)
	}
}

func TestDeleteUnknownResearch(t *testing.T) {
	svc := newTestService(&testutil.StubGenerator{})
	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
