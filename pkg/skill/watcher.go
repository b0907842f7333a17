package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ternarybob/sidekick/internal/logger"
)

// Watcher monitors the skills directory and notifies subscribers when the
// skill set changes. Detection always reloads from disk, so the watcher is a
// notification surface for hosts (re-highlighting, listings), not a cache.
type Watcher struct {
	registry   *Registry
	watcher    *fsnotify.Watcher
	debounceMs int

	running bool
	stopCh  chan struct{}
	mu      sync.RWMutex
	wg      sync.WaitGroup

	// Debouncing state
	pending   map[string]time.Time
	pendingMu sync.Mutex

	changeCh chan string
}

// NewWatcher creates a watcher for the registry's skills directory.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &Watcher{
		registry:   registry,
		watcher:    fsWatcher,
		debounceMs: 250,
		stopCh:     make(chan struct{}),
		pending:    make(map[string]time.Time),
		changeCh:   make(chan string, 16),
	}, nil
}

// Changes returns the channel of changed skill ids. A drained or full
// channel drops notifications; subscribers reload anyway.
func (w *Watcher) Changes() <-chan string {
	return w.changeCh
}

// Start begins watching the skills root and its skill subdirectories.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return fmt.Errorf("add directories: %w", err)
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()

	logger.GetLogger().Debug().Str("root", w.registry.Root()).Msg("Skills watcher started")
	return nil
}

// Stop halts watching and closes the change channel, ending any
// range loop over Changes.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	err := w.watcher.Close()
	w.mu.Unlock()

	// Both event goroutines must be gone before the channel closes; they
	// only ever send with a non-blocking select, so this cannot deadlock.
	w.wg.Wait()
	close(w.changeCh)
	return err
}

// addDirectories registers the root and each skill subdirectory.
func (w *Watcher) addDirectories() error {
	root := w.registry.Root()
	if err := w.watcher.Add(root); err != nil {
		return err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			// Best effort; a vanished subdirectory is not fatal.
			_ = w.watcher.Add(filepath.Join(root, entry.Name()))
		}
	}
	return nil
}

// processEvents consumes raw fsnotify events and records pending changes.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.GetLogger().Warn().Err(err).Msg("Skills watcher error")
		}
	}
}

// handleEvent records a pending change for a skill document event and tracks
// new skill subdirectories.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
	}

	if filepath.Base(event.Name) != DocumentName {
		return
	}

	id := w.skillID(event.Name)
	if id == "" {
		return
	}

	w.pendingMu.Lock()
	w.pending[id] = time.Now()
	w.pendingMu.Unlock()
}

// skillID derives the skill id from a document path under the root.
func (w *Watcher) skillID(path string) string {
	rel, err := filepath.Rel(w.registry.Root(), path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// processPending flushes debounced changes to subscribers.
func (w *Watcher) processPending() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Duration(w.debounceMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	cutoff := time.Now().Add(-time.Duration(w.debounceMs) * time.Millisecond)

	w.pendingMu.Lock()
	var ready []string
	for id, at := range w.pending {
		if at.Before(cutoff) {
			ready = append(ready, id)
			delete(w.pending, id)
		}
	}
	w.pendingMu.Unlock()

	for _, id := range ready {
		logger.GetLogger().Debug().Str("skill", id).Msg("Skill document changed")
		select {
		case w.changeCh <- id:
		default:
		}
	}
}
