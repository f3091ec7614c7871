package session

import (
	"context"
	"errors"
	"testing"
)

func TestNamespaceIsPureAndDistinct(t *testing.T) {
	if Namespace("abc") != Namespace("abc") {
		t.Error("Namespace is not deterministic")
	}
	if Namespace("abc") == Namespace("abd") {
		t.Error("distinct session ids mapped to the same namespace")
	}

	s := New("abc")
	if s.Namespace() != Namespace("abc") {
		t.Errorf("method Namespace() = %q, package Namespace() = %q", s.Namespace(), Namespace("abc"))
	}
}

func TestNewGeneratesIDWhenEmpty(t *testing.T) {
	a := New("")
	b := New("")
	if a.ID == "" {
		t.Fatal("New(\"\") produced empty id")
	}
	if a.ID == b.ID {
		t.Error("two fresh sessions share an id")
	}
}

func TestAddSourceIsIdempotent(t *testing.T) {
	s := New("")

	if !s.AddSource("https://a.example") {
		t.Error("first AddSource returned false")
	}
	if s.AddSource("https://a.example") {
		t.Error("second AddSource returned true")
	}

	if got := s.Sources(); len(got) != 1 {
		t.Errorf("Sources() = %v, want one entry", got)
	}
	if !s.HasSource("https://a.example") {
		t.Error("HasSource() = false for added source")
	}
	if !s.HasDocuments() {
		t.Error("HasDocuments() = false with one source")
	}
}

func TestSourcesPreserveRegistrationOrder(t *testing.T) {
	s := New("")

	// Deliberately out of lexical order.
	for _, origin := range []string{"https://z.example", "https://a.example", "https://m.example"} {
		s.AddSource(origin)
	}

	want := []string{"https://z.example", "https://a.example", "https://m.example"}
	got := s.Sources()
	if len(got) != len(want) {
		t.Fatalf("Sources() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sources()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// A restore round-trip keeps the same order.
	restored := New(s.ID)
	restored.setSources(got)
	got = restored.Sources()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("restored Sources()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := New("")
	s.Append(RoleUser, "first")
	s.Append(RoleAssistant, "second")

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "first" {
		t.Errorf("messages[0] = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "second" {
		t.Errorf("messages[1] = %+v", msgs[1])
	}
}

func TestMemoryRegistryLifecycle(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	s, err := reg.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	s.Title = "my chat"
	s.Append(RoleUser, "hello")
	if err := reg.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := reg.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Title != "my chat" || len(loaded.Messages()) != 1 {
		t.Errorf("loaded session = %q with %d messages", loaded.Title, len(loaded.Messages()))
	}

	again, err := reg.GetOrCreate(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if again.ID != s.ID {
		t.Error("GetOrCreate with known id created a new session")
	}

	infos, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 || infos[0].ID != s.ID {
		t.Errorf("List() = %v", infos)
	}

	if err := reg.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := reg.Load(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: err = %v, want ErrNotFound", err)
	}
	if err := reg.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: err = %v, want ErrNotFound", err)
	}
}
