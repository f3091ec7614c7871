package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertResearchSQL = `
INSERT INTO researches (id, topic, overview, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	topic = EXCLUDED.topic,
	overview = EXCLUDED.overview,
	updated_at = EXCLUDED.updated_at`

const deleteSectionsSQL = `DELETE FROM research_sections WHERE research_id = $1`

const insertSectionSQL = `
INSERT INTO research_sections (id, research_id, seq, title, summary, content)
VALUES ($1, $2, $3, $4, $5, $6)`

const getResearchSQL = `
SELECT id, topic, overview, created_at, updated_at FROM researches WHERE id = $1`

const getSectionsSQL = `
SELECT id, seq, title, summary, content FROM research_sections
WHERE research_id = $1 ORDER BY seq`

const listResearchSQL = `
SELECT id, topic, overview, created_at, updated_at FROM researches
ORDER BY updated_at DESC`

const deleteResearchSQL = `DELETE FROM researches WHERE id = $1`

// PostgresStore persists researches in PostgreSQL. Sections are replaced
// wholesale on save inside one transaction, so a research is never stored
// with a half-updated outline.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Save implements Store.
func (p *PostgresStore) Save(ctx context.Context, r *Research) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertResearchSQL, r.ID, r.Topic, r.Overview, r.CreatedAt, r.UpdatedAt); err != nil {
		return fmt.Errorf("upserting research %s: %w", r.ID, err)
	}
	if _, err := tx.Exec(ctx, deleteSectionsSQL, r.ID); err != nil {
		return fmt.Errorf("clearing sections for %s: %w", r.ID, err)
	}
	for _, sec := range r.Sections {
		if _, err := tx.Exec(ctx, insertSectionSQL, sec.ID, r.ID, sec.Seq, sec.Title, sec.Summary, sec.Content); err != nil {
			return fmt.Errorf("inserting section %s: %w", sec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing research %s: %w", r.ID, err)
	}
	p.logger.Debug("research saved", "id", r.ID, "sections", len(r.Sections))
	return nil
}

// Get implements Store.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Research, error) {
	var r Research
	err := p.pool.QueryRow(ctx, getResearchSQL, id).
		Scan(&r.ID, &r.Topic, &r.Overview, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading research %s: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, getSectionsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading sections for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.Seq, &sec.Title, &sec.Summary, &sec.Content); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		r.Sections = append(r.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sections: %w", err)
	}
	return &r, nil
}

// List implements Store. Section content is not loaded for listings.
func (p *PostgresStore) List(ctx context.Context) ([]*Research, error) {
	rows, err := p.pool.Query(ctx, listResearchSQL)
	if err != nil {
		return nil, fmt.Errorf("listing researches: %w", err)
	}
	defer rows.Close()

	var out []*Research
	for rows.Next() {
		var r Research
		if err := rows.Scan(&r.ID, &r.Topic, &r.Overview, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning research: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading researches: %w", err)
	}
	return out, nil
}

// Delete implements Store. Sections cascade in the schema.
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, deleteResearchSQL, id)
	if err != nil {
		return fmt.Errorf("deleting research %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryStore is an in-process Store for tests and database-less runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Research
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Research)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, r *Research) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.Sections = append([]Section(nil), r.Sections...)
	m.data[r.ID] = &cp
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Sections = append([]Section(nil), r.Sections...)
	return &cp, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]*Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Research, 0, len(m.data))
	for _, r := range m.data {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}
