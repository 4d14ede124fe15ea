package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RulesWatcher rebuilds the Manager's RulesIndex from a rules directory's
// documents whenever a file under it changes, debounced to collapse bursts
// of saves into one reindex. Each reindex replaces the previous chunk set.
type RulesWatcher struct {
	dir     string
	manager *Manager
	log     *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRulesWatcher builds a watcher for dir, reindexing into manager.
func NewRulesWatcher(dir string, manager *Manager, log *slog.Logger) *RulesWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &RulesWatcher{dir: dir, manager: manager, log: log, debounce: 250 * time.Millisecond}
}

// Start loads the directory once synchronously, then watches it for
// changes until ctx is cancelled or Close is called.
func (w *RulesWatcher) Start(ctx context.Context) error {
	if err := w.reload(ctx); err != nil {
		w.log.Warn("rules watcher: initial load failed", slog.Any("error", err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.watcher = watcher
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *RulesWatcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *RulesWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if err := w.reload(context.Background()); err != nil {
				w.log.Warn("rules watcher: reload failed", slog.Any("error", err))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("rules watcher: fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *RulesWatcher) reload(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	var docs []RuleDocument
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			w.log.Warn("rules watcher: read failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		docs = append(docs, RuleDocument{Source: e.Name(), Content: string(content)})
	}
	// Build the new chunk set in a fresh index and swap it in whole, so a
	// reload replaces the previous corpus rather than appending to it.
	idx := w.manager.rules
	fresh := NewRulesIndex(idx.embedder, w.log)
	if err := fresh.IngestRules(ctx, docs); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.chunks = fresh.chunks
	idx.mu.Unlock()
	return nil
}
