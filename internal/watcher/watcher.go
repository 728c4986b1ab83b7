// Package watcher detects source file changes and turns them into
// generation triggers. Filesystem notifications drive the common path; a
// periodic rescan catches anything the notifications missed.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/events"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
)

// ChangeRecord is one observed filesystem change, kept in a bounded ring
// for the status surface.
type ChangeRecord struct {
	Path string    `json:"path"`
	Op   string    `json:"op"`
	At   time.Time `json:"at"`
}

// Status describes the watcher for the HTTP status endpoint.
type Status struct {
	Running       bool           `json:"running"`
	StartedAt     time.Time      `json:"started_at,omitempty"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	EventsSeen    uint64         `json:"events_seen"`
	Triggers      uint64         `json:"triggers"`
	Pending       int            `json:"pending"`
	Recent        []ChangeRecord `json:"recent,omitempty"`
}

const recentSize = 20

// Watcher owns the fsnotify subscription and the per-file debouncer.
type Watcher struct {
	dir    string
	cfg    config.WatchConfig
	filter Filter
	bus    *events.Broadcaster

	// onChange fires after a file's quiet window elapses; onRemove fires
	// immediately when a tracked file disappears.
	onChange func(path string)
	onRemove func(path string)

	fsw *fsnotify.Watcher
	deb *Debouncer

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	seen      uint64
	triggers  uint64
	recent    []ChangeRecord
}

// New creates a watcher for dir. onChange and onRemove must be non-nil.
func New(dir string, cfg config.WatchConfig, bus *events.Broadcaster, onChange, onRemove func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create filesystem watcher").Build()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve source directory").Build()
	}

	w := &Watcher{
		dir:      abs,
		cfg:      cfg,
		filter:   NewFilter(cfg),
		bus:      bus,
		onChange: onChange,
		onRemove: onRemove,
		fsw:      fsw,
		stopChan: make(chan struct{}),
	}
	w.deb = NewDebouncer(cfg.DebounceInterval(), w.fire)
	return w, nil
}

// Start registers the directory watches and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatches(); err != nil {
		w.fsw.Close()
		return err
	}

	w.mu.Lock()
	w.running = true
	w.startedAt = time.Now().UTC()
	w.mu.Unlock()

	slog.Info("watching source directory", "dir", w.dir,
		slog.Duration("debounce", w.cfg.DebounceInterval()), "recursive", w.cfg.Recursive)
	w.publishStatus("watching")

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop cancels pending debounce triggers and closes the watch.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.deb.Stop()
		if err := w.fsw.Close(); err != nil {
			slog.Warn("error closing filesystem watcher", logfields.Error(err))
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.publishStatus("stopped")
	})
	w.wg.Wait()
}

// Status returns a snapshot for the status endpoint.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		Running:    w.running,
		StartedAt:  w.startedAt,
		EventsSeen: w.seen,
		Triggers:   w.triggers,
		Pending:    w.deb.Pending(),
	}
	if w.running {
		st.UptimeSeconds = time.Since(w.startedAt).Seconds()
	}
	st.Recent = make([]ChangeRecord, len(w.recent))
	copy(st.Recent, w.recent)
	return st
}

func (w *Watcher) addWatches() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIO, "watch source directory").
			WithContext("dir", w.dir).Build()
	}
	if !w.cfg.Recursive {
		return nil
	}
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == w.dir {
			return err
		}
		if werr := w.fsw.Add(path); werr != nil {
			slog.Warn("failed to watch subdirectory", "dir", path, logfields.Error(werr))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("filesystem watch error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	// New subdirectories need their own watch when running recursively.
	if w.cfg.Recursive && evt.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(evt.Name); err == nil && fi.IsDir() {
			if werr := w.fsw.Add(evt.Name); werr != nil {
				slog.Warn("failed to watch new subdirectory", "dir", evt.Name, logfields.Error(werr))
			}
			return
		}
	}

	if !w.filter.Match(evt.Name) {
		return
	}

	w.record(evt)

	switch {
	case evt.Op.Has(fsnotify.Remove) || evt.Op.Has(fsnotify.Rename):
		// A rename away from the watched name is a removal for our purposes;
		// the new name arrives as its own Create event.
		w.deb.Cancel(evt.Name)
		slog.Info("source file removed", logfields.File(evt.Name))
		w.onRemove(evt.Name)
	case evt.Op.Has(fsnotify.Write) || evt.Op.Has(fsnotify.Create):
		slog.Debug("source file changed", logfields.File(evt.Name), logfields.EventKind(evt.Op.String()))
		w.deb.Notify(evt.Name)
	}
}

// fire is the debounce callback: the file has been quiet for the window.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	w.triggers++
	w.mu.Unlock()
	w.onChange(path)
}

func (w *Watcher) record(evt fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen++
	w.recent = append(w.recent, ChangeRecord{
		Path: evt.Name,
		Op:   evt.Op.String(),
		At:   time.Now().UTC(),
	})
	if len(w.recent) > recentSize {
		copy(w.recent, w.recent[len(w.recent)-recentSize:])
		w.recent = w.recent[:recentSize]
	}
}

func (w *Watcher) publishStatus(status string) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.New(events.TypeWatcherStatus, "", map[string]string{"status": status}))
}
