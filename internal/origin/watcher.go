package origin

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asembed/embed-server/internal/log"
	"github.com/asembed/embed-server/internal/xerrors"
)

// Watcher reloads the allow-list store when its backing file changes, so an
// operator edit (or a config-management push) takes effect without a
// restart.
type Watcher struct {
	store    *Store
	logger   log.Logger
	debounce time.Duration

	// called after every successful reload, for metrics
	OnReload func()
}

type WatcherOptions struct {
	Store    *Store
	Logger   log.Logger
	Debounce time.Duration // default 100ms
	OnReload func()
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Store == nil {
		return nil, xerrors.New("watcher needs a store")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	return &Watcher{
		store:    opts.Store,
		logger:   opts.Logger,
		debounce: opts.Debounce,
		OnReload: opts.OnReload,
	}, nil
}

// Run blocks until ctx is done. It watches the directory rather than the
// file itself because editors and atomic writers replace the inode.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "create fsnotify watcher")
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.Path())
	if err := fw.Add(dir); err != nil {
		return xerrors.Wrapf(err, "watch %q", dir)
	}

	target := filepath.Clean(w.store.Path())

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// collapse bursts (atomic replace fires several events)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, err, "allow-list watcher error")

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.store.Load(ctx); err != nil {
				w.logger.Error(ctx, err, "allow-list reload failed")
				continue
			}
			if w.OnReload != nil {
				w.OnReload()
			}
		}
	}
}
