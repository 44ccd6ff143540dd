package config

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last write before it
// reloads. Editors often save a file in several writes, and every reload
// of a changed model costs a full solve.
const DefaultDebounce = 250 * time.Millisecond

// WatchOptions controls Watch.
type WatchOptions struct {
	Debounce time.Duration // <= 0 → DefaultDebounce
}

// Watch monitors path and calls onChange with the newly loaded Config each
// time the model it describes changes. It runs until ctx is cancelled.
//
// Writes are coalesced until the file has been quiet for opts.Debounce. A
// revision that fails to load is logged and skipped, and a revision equal to
// the last one loaded (a touch, or an edit of comments only) is dropped, so
// onChange only ever sees valid, changed configurations.
func Watch(ctx context.Context, path string, opts WatchOptions, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	r := &reloader{
		path:     path,
		debounce: opts.Debounce,
		onChange: onChange,
		// The inode may have changed under an atomic save.
		rearm: func() { _ = watcher.Add(path) },
	}
	if r.debounce <= 0 {
		r.debounce = DefaultDebounce
	}
	// A file that does not load yet has no baseline; its first valid
	// revision is always reported.
	r.last, _ = Load(path)

	slog.Info("config: watching for changes", "path", path, "debounce", r.debounce)
	return r.run(ctx, watcher.Events, watcher.Errors)
}

// reloader turns a stream of file events into debounced model reloads.
type reloader struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	rearm    func()
	last     *Config
}

func (r *reloader) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			// Atomic-save editors replace the file, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending++
			timer.Reset(r.debounce)

		case <-timer.C:
			r.reload(pending)
			pending = 0

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reload loads the file once for a burst of write events and hands it on
// when the model differs from the previous revision.
func (r *reloader) reload(writes int) {
	if r.rearm != nil {
		r.rearm()
	}
	cfg, err := Load(r.path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous model",
			"path", r.path, "err", err)
		return
	}
	if r.last != nil && reflect.DeepEqual(r.last, cfg) {
		slog.Debug("config: unchanged, skipping solve", "path", r.path, "writes", writes)
		return
	}
	r.last = cfg

	slog.Info("config: reloaded", "path", r.path, "writes", writes, "components", len(cfg.Components))
	r.onChange(cfg)
}
