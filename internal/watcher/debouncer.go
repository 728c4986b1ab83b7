package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of change notifications per file into a single
// trigger after a quiet window. Each file debounces independently, so edits
// to one file never delay another.
type Debouncer struct {
	window  time.Duration
	trigger func(path string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that calls trigger once a file has been
// quiet for the given window.
func NewDebouncer(window time.Duration, trigger func(path string)) *Debouncer {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Debouncer{
		window:  window,
		trigger: trigger,
		timers:  make(map[string]*time.Timer),
	}
}

// Notify records a change to path, restarting its quiet window. A fresh
// timer replaces any previous one: resetting a timer that has already fired
// would let its pending callback race the replacement, so the callback only
// triggers while it is still the registered timer for the path.
func (d *Debouncer) Notify(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.timers[path]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped || d.timers[path] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, path)
		d.mu.Unlock()
		d.trigger(path)
	})
	d.timers[path] = t
}

// Cancel drops any pending trigger for path without firing it.
func (d *Debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Stop()
		delete(d.timers, path)
	}
}

// Pending reports how many files are waiting out their quiet window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels all pending triggers and ignores further notifications.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
