// Package store is the document store backing the embed API. Documents are
// owned by the publishing side; this service reads them and observes saves
// so the render cache can be invalidated.
package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/asembed/embed-server/internal/xerrors"
)

const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

type Document struct {
	ID          int64  `db:"id"`
	Status      string `db:"status"`
	Content     string `db:"content"`
	BuilderHTML string `db:"builder_html"`
	UpdatedAt   int64  `db:"updated_at"`
}

// Published reports whether the document may be served publicly.
func (d *Document) Published() bool { return d != nil && d.Status == StatusPublished }

// SaveInfo describes the circumstances of a save. The cache-invalidation
// policy (skip autosaves, require edit rights) is enforced by the hook
// caller, not by the store.
type SaveInfo struct {
	Autosave     bool
	ActorCanEdit bool
}

// SavedHook observes completed saves.
type SavedHook func(id int64, info SaveInfo)

type Store struct {
	db *sqlx.DB

	mu    sync.RWMutex
	hooks []SavedHook
}

// New wraps an open database handle. Use Open to create one with the
// expected pragmas and schema.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

// OnSaved registers fn to run after every successful Save.
func (s *Store) OnSaved(fn SavedHook) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Get returns the document with the given id, or (nil, nil) when the id is
// non-positive or no such row exists. Errors are I/O only.
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	if id <= 0 {
		return nil, nil
	}

	var doc Document
	err := s.db.GetContext(ctx, &doc,
		`SELECT id, status, content, builder_html, updated_at FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "get document %d", id)
	}
	return &doc, nil
}

// Save upserts the document and fires registered saved hooks. Hooks run
// synchronously in registration order.
func (s *Store) Save(ctx context.Context, doc Document, info SaveInfo) error {
	if doc.ID <= 0 {
		return xerrors.Newf("invalid document id %d", doc.ID)
	}
	if doc.UpdatedAt == 0 {
		doc.UpdatedAt = time.Now().UTC().Unix()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO documents (id, status, content, builder_html, updated_at)
		VALUES (:id, :status, :content, :builder_html, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			content      = excluded.content,
			builder_html = excluded.builder_html,
			updated_at   = excluded.updated_at`, doc)
	if err != nil {
		return xerrors.Wrapf(err, "save document %d", doc.ID)
	}

	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(doc.ID, info)
	}
	return nil
}

// Ping verifies the underlying database is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }
