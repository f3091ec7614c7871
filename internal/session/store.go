package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL-backed Registry.
//
// Schema: sessions, session_messages (append-only, sequence-numbered) and
// session_sources (one row per ingested origin). Saves are transactional so
// a session never persists with half its messages.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a PostgreSQL-backed Registry.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// GetOrCreate implements Registry. Existing sessions are loaded in full;
// unknown or empty IDs create a fresh session that is persisted immediately
// so List observes it.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		sess, err := s.Load(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	sess := New(id)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Debug("created session", "id", sess.ID)
	return sess, nil
}

// Save implements Registry with last-write-wins semantics. Messages carry
// their position in history as sequence number; re-saving is idempotent.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}

	for seq, msg := range sess.Messages() {
		_, err = tx.Exec(ctx, `INSERT INTO session_messages (session_id, seq, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, seq) DO NOTHING`,
			sess.ID, seq, msg.Role, msg.Content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message %d for session %s: %w", seq, sess.ID, err)
		}
	}

	// Sources carry their registration position so Load restores them in the
	// order the session ingested them.
	for seq, origin := range sess.Sources() {
		_, err = tx.Exec(ctx, `INSERT INTO session_sources (session_id, origin, seq)
			VALUES ($1, $2, $3)
			ON CONFLICT (session_id, origin) DO NOTHING`,
			sess.ID, origin, seq)
		if err != nil {
			return fmt.Errorf("insert source for session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("saved session", "id", sess.ID, "messages", len(sess.Messages()))
	return nil
}

// Load implements Registry.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	sess := New(id)
	err := s.pool.QueryRow(ctx,
		`SELECT title, created_at, updated_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	msgs, err := s.loadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.setMessages(msgs)

	origins, err := s.loadSources(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.setSources(origins)

	return sess, nil
}

func (s *Store) loadMessages(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, created_at FROM session_messages
		 WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) loadSources(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT origin FROM session_sources WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load sources for %s: %w", id, err)
	}
	defer rows.Close()

	var origins []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}

// List implements Registry.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.ID, &info.Title); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete implements Registry. Messages and sources cascade in the schema.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}
