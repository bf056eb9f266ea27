// ABOUTME: Filesystem watcher invalidating the song cache
// ABOUTME: Debounces bursts of fsnotify events under the library root
package library

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/julienbrs/blindtest-sub003/pkg/audio/decode"
)

// Invalidator is what the watcher refreshes
type Invalidator interface {
	Invalidate()
}

// Watcher invalidates a cache when audio files under root change
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   Invalidator
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	pending *time.Timer
	closed  chan struct{}
	once    sync.Once
}

// WatcherConfig configures a Watcher
type WatcherConfig struct {
	Root   string
	Target Invalidator
	// Debounce groups events into one invalidation (default 500ms)
	Debounce time.Duration
	// OnChange runs after each invalidation
	OnChange func()
}

// NewWatcher watches every directory under config.Root
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Debounce == 0 {
		config.Debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		target:   config.Target,
		debounce: config.Debounce,
		onChange: config.OnChange,
		closed:   make(chan struct{}),
	}

	if err := w.addTree(config.Root); err != nil {
		fw.Close()
		return nil, err
	}

	go w.watchLoop()
	return w, nil
}

// addTree watches dir and its subdirectories; fsnotify is not recursive
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				// New folders need their own watch
				if err := w.addTree(event.Name); err != nil {
					log.Printf("Library: watcher error: %v", err)
				}
			}
			if decode.FormatForPath(event.Name) == "" && !isCover(event.Name) && event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Library: watcher error: %v", err)
		}
	}
}

func isCover(path string) bool {
	base := filepath.Base(path)
	for _, name := range coverNames {
		if base == name {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.closed:
		return
	default:
	}

	log.Printf("Library: change detected, invalidating song cache")
	w.target.Invalidate()
	if w.onChange != nil {
		w.onChange()
	}
}

// Close stops watching
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.closed)
		w.mu.Lock()
		if w.pending != nil {
			w.pending.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
		log.Printf("Library: watcher stopped")
	})
}
