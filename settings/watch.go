package settings

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of filesystem events an editor emits
// for one logical save.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configures file watching behavior.
type WatchOptions struct {
	// Debounce is how long to wait after the last event before reloading.
	// Values below zero disable debouncing; zero uses DefaultDebounce.
	Debounce time.Duration

	// OnError receives reload failures (parse errors, transient reads of a
	// half-written file). Nil drops them; the watcher keeps running either
	// way and retries on the next event.
	OnError func(error)
}

// DefaultWatchOptions returns sensible defaults for file watching.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{Debounce: DefaultDebounce}
}

// Watcher reloads a settings file whenever it changes on disk and pushes the
// resulting property changes through the store's change listeners.
type Watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	path     string
	opts     WatchOptions
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// Watch loads path into the store, then starts watching it; every on-disk
// change triggers a debounced reload, and listeners are notified for each
// property whose value differs after the reload.
//
// Reloads run on the watcher's goroutine, so change listeners fire there
// too. Hosts that require single-threaded dispatch (a UI event loop binding
// observers through propbind) marshal onto their own thread inside the
// listener; the store does not do it for them.
func (s *Store) Watch(path string, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}

	if err := s.LoadFile(path); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("settings: failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: editors and atomic savers replace
	// the file by rename, which drops a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("settings: failed to watch %q: %w", dir, err)
	}

	w := &Watcher{
		store: s,
		fsw:   fsw,
		path:  filepath.Clean(path),
		opts:  opts,
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher. Pending debounced reloads are cancelled.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(fmt.Errorf("settings: watch error: %w", err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	if w.opts.Debounce < 0 {
		w.reload()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.store.LoadFile(w.path); err != nil {
		w.reportError(err)
	}
}

func (w *Watcher) reportError(err error) {
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}
