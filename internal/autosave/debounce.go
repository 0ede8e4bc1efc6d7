package autosave

import (
	"sync"
	"time"
)

// Debouncer runs a function once a key has been quiet for a given duration.
// Each key owns at most one pending timer; scheduling again replaces it.
type Debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDebouncer creates an empty debouncer
func NewDebouncer() *Debouncer {
	return &Debouncer{timers: make(map[string]*time.Timer)}
}

// Debounce schedules fn to run after d unless key is debounced or cancelled again first
func (d *Debouncer) Debounce(key string, after time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		d.mu.Lock()
		if d.timers[key] != t {
			// replaced or cancelled between firing and acquiring the lock
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = t
}

// Cancel drops the pending call for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, key)
	return true
}

// Pending reports whether key has a scheduled call
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Immediate cancels any pending call for key and runs fn on the caller's goroutine
func (d *Debouncer) Immediate(key string, fn func()) {
	d.Cancel(key)
	fn()
}

// Stop cancels every pending call
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
