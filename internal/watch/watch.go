// Package watch reports edits to a single file, typically the agent prompt.
// The prompt is re-read every iteration anyway; the watcher only announces
// that the next iteration will see new content.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces editor save bursts (write, chmod, rename) into
// one notification.
const DefaultDebounce = 300 * time.Millisecond

// File watches one file by watching its parent directory, so editors that
// replace the file via rename are still seen.
type File struct {
	path     string
	base     string
	onChange func(path string)
	debounce time.Duration
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	firing  sync.WaitGroup // onChange calls in flight
}

// Option configures a File watcher.
type Option func(*File)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(f *File) { f.debounce = d }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a watcher for path. onChange runs on the watcher's timer
// goroutine after each debounced burst of changes.
func New(path string, onChange func(path string), opts ...Option) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	f := &File{
		path:     abs,
		base:     filepath.Base(abs),
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start begins watching. It returns an error if the parent directory cannot
// be watched.
func (f *File) Start(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := f.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.loop(ctx)

	f.logger.Debug("watch: started", "path", f.path)
	return nil
}

// Stop shuts down the watcher. Pending notifications are dropped and a
// callback already running is waited for, so onChange never runs after Stop
// returns. Stop is safe to call more than once.
func (f *File) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.fsw.Close()

	f.mu.Lock()
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	f.firing.Wait()
}

func (f *File) loop(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-f.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != f.base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				f.schedule()
			}

		case err, ok := <-f.fsw.Errors:
			if !ok {
				return
			}
			f.logger.Warn("watch: error", "path", f.path, "err", err)
		}
	}
}

func (f *File) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, f.fire)
}

func (f *File) fire() {
	f.mu.Lock()
	if f.stopped || f.onChange == nil {
		f.mu.Unlock()
		return
	}
	f.firing.Add(1)
	f.mu.Unlock()
	defer f.firing.Done()
	f.onChange(f.path)
}
