package seed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce groups the bursts of events editors produce on save
const DefaultDebounce = 250 * time.Millisecond

// ApplyFunc receives a manifest that changed on disk
type ApplyFunc func(ctx context.Context, m *Manifest) error

// Watcher re-applies manifests when they are written
type Watcher struct {
	loader   *Loader
	log      *logrus.Logger
	debounce time.Duration
}

// NewWatcher creates a Watcher. A zero debounce means DefaultDebounce.
func NewWatcher(loader *Loader, log *logrus.Logger, debounce time.Duration) *Watcher {
	if log == nil {
		log = logrus.New()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{loader: loader, log: log, debounce: debounce}
}

// Watch calls fn with every manifest of dir written or created until ctx is
// done. Invalid manifests and failed applies are logged, not returned.
func (w *Watcher) Watch(ctx context.Context, dir string, fn ApplyFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Infof("Watching manifests in %s", dir)

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		changed = make(chan string)
		stop    = make(chan struct{})
	)
	defer close(stop)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsManifest(event.Name) {
				continue
			}
			path := event.Name
			mu.Lock()
			if t, ok := pending[path]; ok {
				t.Reset(w.debounce)
			} else {
				pending[path] = time.AfterFunc(w.debounce, func() {
					mu.Lock()
					delete(pending, path)
					mu.Unlock()
					select {
					case changed <- path:
					case <-stop:
					}
				})
			}
			mu.Unlock()
		case path := <-changed:
			w.apply(ctx, path, fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, path string, fn ApplyFunc) {
	m, err := w.loader.LoadFile(path)
	if err != nil {
		w.log.Warnf("Skipping manifest: %v", err)
		return
	}
	if err := fn(ctx, m); err != nil {
		w.log.WithError(err).Errorf("Failed to apply %s", path)
		return
	}
	w.log.Infof("Re-applied %s", path)
}
