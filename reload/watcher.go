package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before applying.
const DefaultDebounce = 200 * time.Millisecond

// ApplyFunc is called with the watched path after it changed.
type ApplyFunc func(ctx context.Context, path string) error

// Watcher re-applies a file on change. Applies run sequentially on the
// goroutine calling Run.
type Watcher struct {
	path     string
	apply    ApplyFunc
	debounce time.Duration
	initial  bool
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithInitialApply makes Run apply the file once at start when it exists.
func WithInitialApply() Option { return func(w *Watcher) { w.initial = true } }

// WithLogger sets the watcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New starts watching path. The file's directory must exist; the file
// itself may appear later. Events are only consumed by Run.
func New(path string, apply ApplyFunc, opts ...Option) (*Watcher, error) {
	if apply == nil {
		return nil, errors.New("reload: apply is nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: abs, apply: apply, debounce: DefaultDebounce, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	// watch the directory so atomic replace (write temp + rename) is seen
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("reload: watch %s: %w", filepath.Dir(abs), err)
	}
	w.watcher = fw
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher) Path() string { return w.path }

// Run applies the file after each settled change until ctx ends, then stops
// watching. Apply failures are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	if w.initial {
		if _, err := os.Stat(w.path); err == nil {
			w.run(ctx)
		}
	}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.String("path", w.path), zap.Error(err))
		case <-timer.C:
			w.run(ctx)
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	started := time.Now()
	if err := w.apply(ctx, w.path); err != nil {
		w.logger.Error("reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("reloaded", zap.String("path", w.path), zap.Duration("elapsed", time.Since(started)))
}

// Loader loads a model file, such as *svm.SVM.
type Loader interface {
	Load(ctx context.Context, path string) (bool, error)
}

// LoadInto returns an ApplyFunc that loads the file into m while holding mu.
// Pass the lock that serializes the caller's other use of m.
func LoadInto(m Loader, mu sync.Locker) ApplyFunc {
	return func(ctx context.Context, path string) error {
		mu.Lock()
		defer mu.Unlock()
		ok, err := m.Load(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reload: engine could not load %s", path)
		}
		return nil
	}
}

// Close stops watching without running. Run closes the watcher itself.
func (w *Watcher) Close() error { return w.watcher.Close() }
