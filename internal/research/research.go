// Package research implements the knowledge generator: it expands a topic
// into a structured outline, lets the user iteratively reshape it, expands
// individual sections into full pages, and renders the outline as a mermaid
// mind map.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quill0/quill/internal/llm"
)

// ErrNotFound indicates the research or section does not exist.
var ErrNotFound = errors.New("research not found")

// Section is one outline entry, optionally expanded into full content.
type Section struct {
	ID      string `json:"id"`
	Seq     int    `json:"seq"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content,omitempty"`
}

// Research is a topic outline and its expanded sections.
type Research struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Overview  string    `json:"overview"`
	Sections  []Section `json:"sections"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists researches.
type Store interface {
	Save(ctx context.Context, r *Research) error
	Get(ctx context.Context, id string) (*Research, error)
	List(ctx context.Context) ([]*Research, error)
	Delete(ctx context.Context, id string) error
}

const outlineInstructions = `Create a learning outline for the topic below. Respond with JSON only, in this exact shape:
{"overview": "...", "sections": [{"title": "...", "summary": "..."}]}
Write 4 to 8 sections ordered from fundamentals to advanced material.`

const modifyInstructions = `Revise the learning outline below according to the user's instruction. Respond with JSON only, in the same shape:
{"overview": "...", "sections": [{"title": "...", "summary": "..."}]}
Keep sections the instruction does not touch.`

const sectionInstructions = `Write a thorough, self-contained explanation of the outline section below, in the context of its topic. Use plain prose with short headings where helpful. Do not restate the outline.`

const mapInstructions = `Render the outline below as a mermaid mindmap. Respond with the mermaid source only, starting with the word "mindmap". No code fences, no commentary.`

// outlineDoc is the JSON shape the model is asked to produce.
type outlineDoc struct {
	Overview string `json:"overview"`
	Sections []struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	} `json:"sections"`
}

// Service generates and stores researches.
type Service struct {
	gen    llm.Generator
	store  Store
	logger *slog.Logger
}

func NewService(gen llm.Generator, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, store: store, logger: logger}
}

// Create generates an outline for topic and persists it. If the model's
// output cannot be parsed, a minimal deterministic outline is stored instead
// so the research is always usable for section expansion.
func (s *Service) Create(ctx context.Context, topic string) (*Research, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	doc := s.generateOutline(ctx, outlineInstructions+"\n\nTopic: "+topic, topic)

	now := time.Now().UTC()
	r := &Research{
		ID:        uuid.NewString(),
		Topic:     topic,
		Overview:  doc.Overview,
		Sections:  sectionsFromDoc(doc),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("saving research: %w", err)
	}
	s.logger.Debug("research created", "id", r.ID, "topic", topic, "sections", len(r.Sections))
	return r, nil
}

// Modify regenerates the outline per the user's instruction. Already
// expanded section content is kept when the revised outline retains a
// section with the same title.
func (s *Service) Modify(ctx context.Context, id, instruction string) (*Research, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	current, _ := json.Marshal(outlineView(r))
	prompt := fmt.Sprintf("%s\n\nTopic: %s\n\nCurrent outline:\n%s\n\nInstruction: %s",
		modifyInstructions, r.Topic, current, instruction)

	doc := s.generateOutline(ctx, prompt, r.Topic)

	kept := make(map[string]string, len(r.Sections))
	for _, sec := range r.Sections {
		if sec.Content != "" {
			kept[sec.Title] = sec.Content
		}
	}

	r.Overview = doc.Overview
	r.Sections = sectionsFromDoc(doc)
	for i := range r.Sections {
		if content, ok := kept[r.Sections[i].Title]; ok {
			r.Sections[i].Content = content
		}
	}
	r.UpdatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("saving research: %w", err)
	}
	return r, nil
}

// ExpandSection generates full content for one section and persists it.
// Expansion is a hard failure: unlike retrieval, there is no useful degraded
// result for a page the user asked to read.
func (s *Service) ExpandSection(ctx context.Context, id, sectionID string) (*Research, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, sec := range r.Sections {
		if sec.ID == sectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("section %s: %w", sectionID, ErrNotFound)
	}

	sec := r.Sections[idx]
	prompt := fmt.Sprintf("%s\n\nTopic: %s\nSection: %s\nSummary: %s",
		sectionInstructions, r.Topic, sec.Title, sec.Summary)
	content, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("expanding section %q: %w", sec.Title, err)
	}

	r.Sections[idx].Content = strings.TrimSpace(content)
	r.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("saving research: %w", err)
	}
	return r, nil
}

// Map renders the research outline as mermaid mindmap source. The model
// renders it; if that fails, a deterministic rendering of the outline is
// returned instead.
func (s *Service) Map(ctx context.Context, id string) (string, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	current, _ := json.Marshal(outlineView(r))
	out, genErr := s.gen.Generate(ctx, mapInstructions+"\n\nOutline:\n"+string(current))
	if genErr == nil {
		out = stripCodeFence(out)
		if strings.HasPrefix(strings.TrimSpace(out), "mindmap") {
			return strings.TrimSpace(out), nil
		}
	} else {
		s.logger.Debug("mermaid generation failed, using fallback rendering", "id", id, "error", genErr)
	}
	return fallbackMap(r), nil
}

// Get returns the stored research.
func (s *Service) Get(ctx context.Context, id string) (*Research, error) {
	return s.store.Get(ctx, id)
}

// List returns all stored researches, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*Research, error) {
	return s.store.List(ctx)
}

// Delete removes a research.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) generateOutline(ctx context.Context, prompt, topic string) outlineDoc {
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("outline generation failed, using fallback outline", "topic", topic, "error", err)
		return fallbackOutline(topic)
	}
	doc, err := parseOutline(out)
	if err != nil {
		s.logger.Warn("outline parse failed, using fallback outline", "topic", topic, "error", err)
		return fallbackOutline(topic)
	}
	return doc
}

// parseOutline decodes the model's outline JSON, tolerating markdown code
// fences around it.
func parseOutline(out string) (outlineDoc, error) {
	var doc outlineDoc
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &doc); err != nil {
		return outlineDoc{}, fmt.Errorf("parsing outline: %w", err)
	}
	if len(doc.Sections) == 0 {
		return outlineDoc{}, errors.New("outline has no sections")
	}
	return doc, nil
}

func stripCodeFence(out string) string {
	out = strings.TrimSpace(out)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if i := strings.Index(out, "\n"); i >= 0 {
		out = out[i+1:]
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

func fallbackOutline(topic string) outlineDoc {
	var doc outlineDoc
	doc.Overview = "An introduction to " + topic + "."
	for _, title := range []string{"Fundamentals", "Core Concepts", "Practical Usage", "Advanced Topics"} {
		doc.Sections = append(doc.Sections, struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		}{Title: title, Summary: title + " of " + topic + "."})
	}
	return doc
}

func fallbackMap(r *Research) string {
	var b strings.Builder
	b.WriteString("mindmap\n")
	fmt.Fprintf(&b, "  root((%s))\n", r.Topic)
	for _, sec := range r.Sections {
		fmt.Fprintf(&b, "    %s\n", sec.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sectionsFromDoc(doc outlineDoc) []Section {
	sections := make([]Section, len(doc.Sections))
	for i, s := range doc.Sections {
		sections[i] = Section{
			ID:      uuid.NewString(),
			Seq:     i,
			Title:   strings.TrimSpace(s.Title),
			Summary: strings.TrimSpace(s.Summary),
		}
	}
	return sections
}

// outlineView is the outline without IDs or content, for prompt embedding.
func outlineView(r *Research) outlineDoc {
	var doc outlineDoc
	doc.Overview = r.Overview
	for _, sec := range r.Sections {
		doc.Sections = append(doc.Sections, struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		}{Title: sec.Title, Summary: sec.Summary})
	}
	return doc
}
