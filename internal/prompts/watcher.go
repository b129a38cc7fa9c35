package prompts

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Builder when its template file changes. Editors often
// replace files instead of writing them in place, so the parent directory
// is watched and events are filtered by name.
type Watcher struct {
	path     string
	builder  *Builder
	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func NewWatcher(path string, builder *Builder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		builder:  builder,
		debounce: 300 * time.Millisecond,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("prompt watcher error", "error", err)
		case <-fire:
			fire = nil
			if err := w.builder.Load(w.path); err != nil {
				slog.Error("prompt reload failed, keeping previous template", "path", w.path, "error", err)
				continue
			}
			slog.Info("system prompt reloaded", "path", w.path)
		}
	}
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} { return w.done }
