// Package autosave keeps a local editable copy of an entity in step with its
// canonical copy and persists local edits after a quiet period.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dotcommander/scribe/internal/core"
)

const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultLongFormWindow = 20 * time.Minute
	DefaultEchoGrace      = 150 * time.Millisecond
	DefaultSaveTimeout    = 30 * time.Second
)

// ErrLockUnsupported is returned by SetLocked for entity kinds without a lock flag
var ErrLockUnsupported = errors.New("entity kind has no lock flag")

// Field is one independently synced field of T
type Field[T any] struct {
	Name string
	// LongForm fields use the long-form window instead of the short debounce
	LongForm bool
	Equal    func(a, b *T) bool
	Copy     func(dst, src *T)
}

// FieldOf builds a Field from an accessor returning a pointer into T. Values are
// compared with cmp.Equal.
func FieldOf[T, V any](name string, at func(*T) *V) Field[T] {
	return Field[T]{
		Name:  name,
		Equal: func(a, b *T) bool { return cmp.Equal(*at(a), *at(b)) },
		Copy:  func(dst, src *T) { *at(dst) = *at(src) },
	}
}

// LongFormOf is FieldOf for large text fields
func LongFormOf[T, V any](name string, at func(*T) *V) Field[T] {
	f := FieldOf(name, at)
	f.LongForm = true
	return f
}

// Spec describes an entity kind to the reconciler
type Spec[T any] struct {
	Kind   string
	ID     func(T) string
	Clone  func(T) T
	Fields []Field[T]

	// Locked and SetLocked are nil for kinds without a lock flag
	Locked    func(T) bool
	SetLocked func(*T, bool)

	// Derive recomputes derived fields after every local edit
	Derive func(*T)

	// Save commits the entity and returns the canonical result
	Save func(ctx context.Context, v T) (T, error)
}

// Option configures a Reconciler
type Option func(*options)

type options struct {
	debounce    time.Duration
	longForm    time.Duration
	echoGrace   time.Duration
	saveTimeout time.Duration
	status      *StatusTracker
	logger      *slog.Logger
}

func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

func WithLongFormWindow(d time.Duration) Option {
	return func(o *options) { o.longForm = d }
}

func WithEchoGrace(d time.Duration) Option {
	return func(o *options) { o.echoGrace = d }
}

func WithSaveTimeout(d time.Duration) Option {
	return func(o *options) { o.saveTimeout = d }
}

func WithStatus(s *StatusTracker) Option {
	return func(o *options) { o.status = s }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Reconciler owns the local editable copy of whichever entity is selected.
//
// Inbound canonical updates are merged field by field against the last synced
// value, so a field the user is editing is only overwritten when the canonical
// value of that same field moved. Outbound commits are debounced per entity id,
// never overlap for one reconciler, and are suppressed entirely while the entity
// is locked.
type Reconciler[T any] struct {
	spec Spec[T]
	opts options

	mu       sync.Mutex
	selected bool
	id       string
	gen      uint64
	local    T
	synced   T
	pending  bool
	window   time.Duration
	rearm    bool

	// inFlight is set while a commit runs; flightGen is the selection it
	// belongs to and flightDone closes when it resolves
	inFlight   bool
	flightGen  uint64
	flightDone chan struct{}

	graceEnd time.Time
	closed   bool

	timers *Debouncer
	wg     sync.WaitGroup
}

// New creates a reconciler with nothing selected
func New[T any](spec Spec[T], opts ...Option) (*Reconciler[T], error) {
	if spec.ID == nil || spec.Clone == nil || spec.Save == nil {
		return nil, fmt.Errorf("autosave: spec for %q needs ID, Clone and Save", spec.Kind)
	}

	o := options{
		debounce:    DefaultDebounce,
		longForm:    DefaultLongFormWindow,
		echoGrace:   DefaultEchoGrace,
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "autosave", "kind", spec.Kind)
	}

	return &Reconciler[T]{
		spec:   spec,
		opts:   o,
		timers: NewDebouncer(),
	}, nil
}

// Sync feeds the current canonical entity, or nil when nothing is selected.
func (r *Reconciler[T]) Sync(canonical *T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if canonical == nil {
		if r.selected {
			r.deselect()
		}
		return
	}

	id := r.spec.ID(*canonical)
	if !r.selected || id != r.id {
		if r.selected {
			r.deselect()
		}
		r.selected = true
		r.id = id
		r.local = r.spec.Clone(*canonical)
		r.synced = r.spec.Clone(*canonical)
		r.opts.logger.Debug("entity selected", "entity_id", id)
		return
	}

	if (r.inFlight && r.flightGen == r.gen) || time.Now().Before(r.graceEnd) {
		r.opts.logger.Debug("ignoring echo of own save", "entity_id", id)
		return
	}

	incoming := r.spec.Clone(*canonical)
	changed := 0
	for _, f := range r.spec.Fields {
		if !f.Equal(&incoming, &r.synced) {
			f.Copy(&r.local, &incoming)
			changed++
		}
	}
	if r.spec.Locked != nil && r.spec.Locked(incoming) != r.spec.Locked(r.synced) {
		r.spec.SetLocked(&r.local, r.spec.Locked(incoming))
		changed++
	}
	if changed > 0 && r.spec.Derive != nil {
		r.spec.Derive(&r.local)
	}
	r.synced = r.spec.Clone(incoming)

	if changed > 0 {
		r.opts.logger.Debug("merged external update", "entity_id", id, "fields", changed)
	}
}

// deselect cancels the pending commit of the tracked id and forgets it. Caller holds mu.
func (r *Reconciler[T]) deselect() {
	if r.timers.Cancel(r.id) {
		r.opts.logger.Debug("cancelled pending save on deselect", "entity_id", r.id)
	}
	var zero T
	r.selected = false
	r.id = ""
	r.gen++
	r.local = zero
	r.synced = zero
	r.pending = false
	r.window = 0
	r.rearm = false
	r.graceEnd = time.Time{}
}

// Update applies mutate to the local copy and schedules a debounced commit.
// It fails with core.ErrLocked while the entity is locked; the lock flag itself
// cannot be changed through Update.
func (r *Reconciler[T]) Update(mutate func(*T)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.selected || r.closed {
		return core.ErrNoSelection
	}
	if r.isLocked() {
		r.opts.logger.Debug("edit rejected, entity locked", "entity_id", r.id)
		return fmt.Errorf("%s %s: %w", r.spec.Kind, r.id, core.ErrLocked)
	}

	before := r.spec.Clone(r.local)
	mutate(&r.local)
	if r.spec.SetLocked != nil {
		r.spec.SetLocked(&r.local, false)
	}
	if r.spec.Derive != nil {
		r.spec.Derive(&r.local)
	}

	window := time.Duration(0)
	for _, f := range r.spec.Fields {
		if f.Equal(&before, &r.local) {
			continue
		}
		w := r.opts.debounce
		if f.LongForm {
			w = r.opts.longForm
		}
		if window == 0 || w < window {
			window = w
		}
	}
	if window == 0 {
		return nil
	}

	if !r.pending || r.window == 0 || window < r.window {
		r.window = window
	}
	r.pending = true
	r.schedule(r.window)
	return nil
}

// SetLocked flips the lock flag and commits it immediately through the save
// path, carrying any pending edits with it.
func (r *Reconciler[T]) SetLocked(ctx context.Context, locked bool) error {
	r.mu.Lock()
	if err := r.awaitIdle(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	if !r.selected || r.closed {
		r.mu.Unlock()
		return core.ErrNoSelection
	}
	if r.spec.SetLocked == nil || r.spec.Locked == nil {
		r.mu.Unlock()
		return ErrLockUnsupported
	}
	if r.spec.Locked(r.local) == locked {
		r.mu.Unlock()
		return nil
	}
	r.spec.SetLocked(&r.local, locked)
	r.pending = true
	r.timers.Cancel(r.id)
	r.rearm = false
	return r.run(ctx)
}

// ToggleLock inverts the lock flag
func (r *Reconciler[T]) ToggleLock(ctx context.Context) error {
	r.mu.Lock()
	if !r.selected || r.spec.Locked == nil {
		r.mu.Unlock()
		if !r.selected {
			return core.ErrNoSelection
		}
		return ErrLockUnsupported
	}
	locked := r.spec.Locked(r.local)
	r.mu.Unlock()
	return r.SetLocked(ctx, !locked)
}

// Flush commits pending edits now. It backs the explicit "Save" action for
// long-form fields. A commit already in flight is waited for first.
func (r *Reconciler[T]) Flush(ctx context.Context) error {
	r.mu.Lock()
	if err := r.awaitIdle(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	if !r.selected || r.closed || !r.pending {
		r.mu.Unlock()
		return nil
	}
	r.timers.Cancel(r.id)
	r.rearm = false
	return r.run(ctx)
}

// Local returns a copy of the local editable state
func (r *Reconciler[T]) Local() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.selected {
		var zero T
		return zero, false
	}
	return r.spec.Clone(r.local), true
}

// Pending reports whether there are local edits not yet committed
func (r *Reconciler[T]) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Locked reports the lock flag of the local copy
func (r *Reconciler[T]) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isLocked()
}

// Close cancels pending timers and waits for an in-flight commit to finish
func (r *Reconciler[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.timers.Stop()
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reconciler[T]) isLocked() bool {
	return r.selected && r.spec.Locked != nil && r.spec.Locked(r.local)
}

// awaitIdle blocks until no commit is in flight. Caller holds mu, and holds it
// again on return.
func (r *Reconciler[T]) awaitIdle(ctx context.Context) error {
	for r.inFlight {
		done := r.flightDone
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			r.mu.Lock()
			return ctx.Err()
		}
		r.mu.Lock()
	}
	return nil
}

// schedule arms the debounce timer of the current id. Caller holds mu.
func (r *Reconciler[T]) schedule(after time.Duration) {
	if r.closed || !r.selected {
		return
	}
	if after <= 0 {
		after = r.opts.debounce
	}
	r.timers.Debounce(r.id, after, func() {
		if err := r.commit(context.Background()); err != nil {
			r.opts.logger.Debug("debounced save failed", "error", err)
		}
	})
}

func (r *Reconciler[T]) commit(ctx context.Context) error {
	r.mu.Lock()
	if !r.selected || r.closed || !r.pending {
		r.mu.Unlock()
		return nil
	}
	if r.inFlight {
		// one commit at a time; the pending edits go out once this one resolves,
		// whichever selection it belongs to
		r.rearm = true
		r.mu.Unlock()
		return nil
	}
	return r.run(ctx)
}

// run sends the local copy. Caller holds mu with nothing in flight; run
// releases it.
func (r *Reconciler[T]) run(ctx context.Context) error {
	payload := r.spec.Clone(r.local)
	id, gen := r.id, r.gen
	done := make(chan struct{})
	r.inFlight = true
	r.flightGen = gen
	r.flightDone = done
	r.pending = false
	r.window = 0
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	if r.opts.status != nil {
		r.opts.status.Begin(r.spec.Kind, id)
	}

	saveCtx, cancel := context.WithTimeout(ctx, r.opts.saveTimeout)
	start := time.Now()
	result, err := r.spec.Save(saveCtx, payload)
	cancel()

	r.mu.Lock()
	r.inFlight = false
	r.flightDone = nil
	if gen == r.gen {
		r.graceEnd = time.Now().Add(r.opts.echoGrace)
		if err != nil {
			// edits stay pending; the next edit or Flush re-arms the commit
			r.pending = true
		} else {
			r.applyResult(payload, result)
		}
	}
	if r.rearm {
		r.rearm = false
		if r.pending {
			r.schedule(r.window)
		}
	}
	close(done)
	r.mu.Unlock()

	if r.opts.status != nil {
		r.opts.status.End(r.spec.Kind, id, err)
	}

	if err != nil {
		r.opts.logger.Warn("save failed",
			"entity_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
			"retryable", core.IsRetryable(err),
			"error", err,
		)
		return fmt.Errorf("saving %s %s: %w", r.spec.Kind, id, err)
	}
	r.opts.logger.Debug("saved", "entity_id", id, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// applyResult adopts the canonical result for every field the user has not
// touched since the payload was taken. Caller holds mu.
func (r *Reconciler[T]) applyResult(payload, result T) {
	for _, f := range r.spec.Fields {
		if f.Equal(&r.local, &payload) {
			f.Copy(&r.local, &result)
		}
	}
	if r.spec.Derive != nil {
		r.spec.Derive(&r.local)
	}
	r.synced = r.spec.Clone(result)
}
