package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BookChange reports that a stored book document changed on disk
type BookChange struct {
	BookID  string
	Removed bool
	At      time.Time
}

// Watcher reports edits made to book documents by other processes. Rapid
// writes to the same book are collapsed into one change.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	onChange func(BookChange)
	pending  map[string]BookChange
	quiet    time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *slog.Logger
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithQuietPeriod sets how long a book must be still before its change is reported
func WithQuietPeriod(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.quiet = d }
}

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher watches the books directory of fs
func NewWatcher(fs *FileSystem, onChange func(BookChange), opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		dir:      filepath.Join(fs.Dir(), booksDir),
		onChange: onChange,
		pending:  make(map[string]BookChange),
		quiet:    300 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "book_watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating books directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Debug("watching books", "dir", w.dir)

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.quiet / 3)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		case now := <-tick.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	id, ok := BookIDFromKey(filepath.ToSlash(filepath.Join(booksDir, filepath.Base(event.Name))))
	if !ok {
		return
	}

	var removed bool
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		removed = true
	default:
		return
	}

	w.mu.Lock()
	w.pending[id] = BookChange{BookID: id, Removed: removed, At: time.Now()}
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	var ready []BookChange

	w.mu.Lock()
	for id, ch := range w.pending {
		if now.Sub(ch.At) < w.quiet {
			continue
		}
		delete(w.pending, id)
		ready = append(ready, ch)
	}
	w.mu.Unlock()

	for _, ch := range ready {
		// a rename onto the path is how Save lands; check what is there now
		if ch.Removed {
			if _, err := os.Stat(filepath.Join(w.dir, ch.BookID+".json")); err == nil {
				ch.Removed = false
			}
		}
		w.logger.Debug("book changed on disk", "book_id", ch.BookID, "removed", ch.Removed)
		w.onChange(ch)
	}
}
