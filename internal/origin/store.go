package origin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/asembed/embed-server/internal/log"
	"github.com/asembed/embed-server/internal/xerrors"
)

// Store holds the active allow-list snapshot, backed by a plain text file
// (one origin per line). Reads are lock-free; the gate takes a snapshot per
// request so a reload mid-request cannot produce a torn decision.
type Store struct {
	path   string
	logger log.Logger

	cur    atomic.Pointer[Allowlist]
	loaded atomic.Bool

	// serializes Replace writers; Load remains safe to call concurrently
	writeMu sync.Mutex

	// OnSwap observes every snapshot swap (Load or Replace). May be nil.
	// Set before the watcher starts; not synchronized after that.
	OnSwap func(origins, rejected int)
}

func NewStore(path string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{path: path, logger: logger}
	empty := Allowlist{members: map[string]struct{}{}}
	s.cur.Store(&empty)
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Snapshot returns the current allow-list. Never nil.
func (s *Store) Snapshot() Allowlist { return *s.cur.Load() }

// Load reads and parses the backing file into the active snapshot.
// A missing file is an empty allow-list, not an error.
func (s *Store) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Wrapf(err, "read allow-list %q", s.path)
	}

	a, rejected := ParseAllowlist(string(data))

	// Replace writes the canonical form and swaps the snapshot itself, so
	// the watcher-triggered reload of that write parses back identical.
	// Skip the redundant swap to keep reload observers quiet.
	if s.loaded.Load() && a.String() == s.cur.Load().String() {
		return nil
	}

	for _, line := range rejected {
		s.logger.Warn(ctx, "ignoring malformed allow-list entry", "line", line)
	}

	s.cur.Store(&a)
	s.loaded.Store(true)
	if s.OnSwap != nil {
		s.OnSwap(a.Len(), len(rejected))
	}
	s.logger.Info(ctx, "allow-list loaded", "origins", a.Len(), "rejected", len(rejected))
	return nil
}

// Replace normalizes text, writes it to the backing file atomically, and
// swaps the active snapshot. Returns the normalized list and the rejected
// input lines.
func (s *Store) Replace(ctx context.Context, text string) (Allowlist, []string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	a, rejected := ParseAllowlist(text)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".allowlist-*")
	if err != nil {
		return Allowlist{}, nil, xerrors.Wrap(err, "create temp allow-list")
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(a.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Allowlist{}, nil, xerrors.Wrap(err, "write temp allow-list")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Allowlist{}, nil, xerrors.Wrap(err, "close temp allow-list")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return Allowlist{}, nil, xerrors.Wrapf(err, "rename allow-list into %q", s.path)
	}

	s.cur.Store(&a)
	s.loaded.Store(true)
	if s.OnSwap != nil {
		s.OnSwap(a.Len(), len(rejected))
	}
	s.logger.Info(ctx, "allow-list replaced", "origins", a.Len(), "rejected", len(rejected))
	return a, rejected, nil
}

// Ready reports whether an initial load has completed, for readiness probes.
func (s *Store) Ready() error {
	if !s.loaded.Load() {
		return xerrors.New("allow-list not loaded yet")
	}
	return nil
}
