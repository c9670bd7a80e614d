// Package intake watches an inbox directory for session files and hands each
// one to a handler once it has stopped changing. Handled files are moved to
// processed/ or failed/ below the inbox so a restart does not replay them.
package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultSettle is how long a file must go without writes before it is handled.
const DefaultSettle = 500 * time.Millisecond

// Handler processes one session file.
type Handler func(ctx context.Context, path string) error

// Watcher feeds *.json files dropped into Dir to Handle, one at a time and in
// name order when several settle together.
type Watcher struct {
	Dir    string
	Handle Handler
	Settle time.Duration
	Clock  timeutil.Clock
}

// NewWatcher creates a Watcher with the default settle time.
func NewWatcher(dir string, h Handler) *Watcher {
	return &Watcher{Dir: dir, Handle: h, Settle: DefaultSettle, Clock: timeutil.RealClock{}}
}

func (w *Watcher) clock() timeutil.Clock {
	if w.Clock == nil {
		return timeutil.RealClock{}
	}
	return w.Clock
}

func (w *Watcher) settle() time.Duration {
	if w.Settle <= 0 {
		return DefaultSettle
	}
	return w.Settle
}

// Run handles the files already in the inbox, then watches it until ctx is
// done. Handler errors are logged and the file is moved to failed/; only
// setup failures are returned. A file whose handler is interrupted by ctx
// stays in the inbox for the next run.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}
	monitoring.Logf("[intake] watching %s", w.Dir)

	existing, err := filepath.Glob(filepath.Join(w.Dir, "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(existing)
	for _, path := range existing {
		if ctx.Err() != nil {
			return nil
		}
		w.handle(ctx, path)
	}

	settle := w.settle()
	clock := w.clock()
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	// pending maps a file to the time of its last write.
	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[intake] stopped watching %s", w.Dir)
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isSessionFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = clock.Now()
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("[intake] watcher error: %v", err)

		case <-ticker.C:
			var ready []string
			for path, last := range pending {
				if clock.Since(last) >= settle {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				if ctx.Err() != nil {
					break
				}
				delete(pending, path)
				w.handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return
	}

	dest := ProcessedDir
	err := w.Handle(ctx, path)
	if ctx.Err() != nil {
		monitoring.Logf("[intake] %s interrupted, left in inbox", filepath.Base(path))
		return
	}
	if err != nil {
		monitoring.Logf("[intake] %s failed: %v", filepath.Base(path), err)
		dest = FailedDir
	}
	target := filepath.Join(w.Dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		monitoring.Logf("[intake] move %s to %s: %v", filepath.Base(path), dest, err)
	}
}

func isSessionFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
