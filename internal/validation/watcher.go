package validation

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a validator's schema set when its YAML file changes on
// disk. Rapid editor saves are coalesced into a single reload after the
// burst settles, so the reload always sees the final file contents; a file
// that fails to parse leaves the previous schema set in place.
type Watcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	validator *Validator
	path      string
	debounce  time.Duration
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *zap.Logger

	// Reloads counts successful schema swaps, for tests and stats.
	reloads int
}

// NewWatcher creates a schema file watcher for the given validator.
func NewWatcher(path string, validator *Validator, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:   fsw,
		validator: validator,
		path:      path,
		debounce:  250 * time.Millisecond,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger,
	}, nil
}

// Start begins watching the schema file's directory. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

// Reloads returns the number of successful schema reloads.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	// Trailing-edge debounce: every matching event resets the timer, and the
	// reload fires once the burst has been quiet for the debounce window.
	var timer *time.Timer
	var timerCh <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("schema watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	schemas, err := LoadSchemas(w.path)
	if err != nil {
		w.logger.Warn("schema reload failed, keeping previous set",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.validator.SetSchemas(schemas); err != nil {
		w.logger.Warn("schema reload rejected, keeping previous set",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info("validation schemas reloaded",
		zap.String("path", w.path), zap.Int("schemas", len(schemas)))
}
