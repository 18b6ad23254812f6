package pairing

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/pairlink/internal/logging"
)

// DefaultDebounce is how long the Watcher waits after the last write to a
// file before reporting it. File copies usually arrive as several writes.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports pairing files created or written in an inbox directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	accepts  func(path string) bool
	onFile   func(path string)
	debounce time.Duration
	logger   *logging.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the inbox directory. It is created if missing.
	Dir string
	// Accepts filters reported files, typically Store.Accepts.
	Accepts func(path string) bool
	// OnFile is called from the watcher goroutine for each settled file.
	OnFile   func(path string)
	Debounce time.Duration
	Logger   *logging.Logger
}

// NewWatcher creates a Watcher on cfg.Dir. Call Start to begin delivering
// files and Stop to release the underlying watch.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.OnFile == nil {
		return nil, fmt.Errorf("pairing watcher requires an OnFile callback")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(cfg.Dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}

	accepts := cfg.Accepts
	if accepts == nil {
		accepts = func(string) bool { return true }
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Watcher{
		watcher:  fw,
		dir:      cfg.Dir,
		accepts:  accepts,
		onFile:   cfg.OnFile,
		debounce: debounce,
		logger:   logger.WithComponent("pairing-inbox"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Dir returns the watched inbox directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.logger.Info("watching pairing inbox", "dir", w.dir)
	go w.loop()
}

// Stop stops the watcher and waits for the loop to exit. Files still in
// the debounce window are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	if w.started.Load() {
		<-w.doneCh
	}
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.accepts(ev.Name) {
				w.logger.Debug("ignoring inbox file", "path", ev.Name)
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			for path := range pending {
				if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
					continue
				}
				w.logger.Info("pairing file dropped in inbox", "path", filepath.Base(path))
				w.onFile(path)
			}
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", "error", err.Error())
		}
	}
}
