package store

import (
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/asembed/embed-server/internal/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           INTEGER PRIMARY KEY,
	status       TEXT    NOT NULL DEFAULT 'draft',
	content      TEXT    NOT NULL DEFAULT '',
	builder_html TEXT    NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL DEFAULT 0
);`

// pragmas applied on every open: WAL for concurrent readers during admin
// writes, busy_timeout so a slow checkpoint does not surface as an error.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// Open opens (creating if needed) the SQLite document database at path and
// applies pragmas and schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open sqlite db %q", path)
	}

	// modernc.org/sqlite handles are not safe for concurrent writes on
	// multiple connections to :memory:; a single connection is plenty for
	// this read-mostly workload either way.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, xerrors.Wrapf(err, "apply %q", p)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerrors.Wrap(err, "apply schema")
	}

	return New(db), nil
}
