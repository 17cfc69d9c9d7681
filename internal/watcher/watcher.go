// Package watcher renders decks dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one deck file.
type Handler func(ctx context.Context, path string) error

type Options struct {
	MaxConcurrent int
	// Settle is how long a file must go without writes before it is handled.
	Settle time.Duration
	// Existing handles decks already in the directory at start.
	Existing bool
}

type Watcher struct {
	dir     string
	handler Handler
	opts    Options
	logger  *slog.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	sem     chan struct{}
	wg      sync.WaitGroup
}

func New(dir string, handler Handler, opts Options, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}

	return &Watcher{
		dir:     dir,
		handler: handler,
		opts:    opts,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		sem:     make(chan struct{}, opts.MaxConcurrent),
	}, nil
}

// Run watches until ctx is done, then waits for in-flight decks.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Info("watching for decks", "dir", w.dir, "max_concurrent", w.opts.MaxConcurrent)

	if w.opts.Existing {
		if err := w.scanExisting(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			w.logger.Info("waiting for in-flight decks")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsDeck(event.Name) {
				w.logger.Debug("ignoring file", "path", event.Name)
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read input dir: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && IsDeck(e.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

// schedule (re)arms the settle timer for path; a copy in progress keeps
// pushing the deadline back.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.opts.Settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.opts.Settle, func() {
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) process(ctx context.Context, path string) {
	defer w.wg.Done()

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-w.sem }()

	w.logger.Info("deck detected", "path", path)
	start := time.Now()
	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("deck failed", "path", path, "error", err)
		return
	}
	w.logger.Info("deck done", "path", path, "took", time.Since(start).Round(time.Millisecond))
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// IsDeck reports whether path looks like a PowerPoint deck, skipping the
// "~$" lock files PowerPoint leaves next to open decks.
func IsDeck(path string) bool {
	base := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(base), ".pptx") && !strings.HasPrefix(base, "~$") && !strings.HasPrefix(base, ".")
}
