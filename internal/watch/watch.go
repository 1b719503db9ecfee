// Package watch reports changes to the set of repositories under a base
// directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long events must settle before a notification is sent.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the direct children of a directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *log.Logger
}

// New creates a watcher for dir. A zero debounce selects DefaultDebounce.
func New(dir string, debounce time.Duration, logger *log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{dir: dir, debounce: debounce, logger: logger}
}

// Run sends on notify after entries are created, removed or renamed in the
// watched directory. Sends never block; a pending notification absorbs later
// ones. Run returns when ctx is done or the watcher fails.
func (w *Watcher) Run(ctx context.Context, notify chan<- struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Debug("watching repositories", "dir", w.dir)

	// Rapid bursts (clone, mv, rm -r) collapse into one notification.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("repository change", "op", event.Op.String(), "path", event.Name)
			timer.Reset(w.debounce)
		case <-timer.C:
			select {
			case notify <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}
