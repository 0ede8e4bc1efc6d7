// Package editor binds the autosave reconciler to a workspace for each editable
// entity kind and keeps the selected entity in step with workspace events.
package editor

import (
	"context"
	"sync"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
)

// binding tracks which entity of one kind is open and routes canonical changes
// for it into the reconciler
type binding[T any] struct {
	rec    *autosave.Reconciler[T]
	lookup func(id string) (T, error)

	mu       sync.Mutex
	selected string
}

func newBinding[T any](spec autosave.Spec[T], lookup func(string) (T, error), opts []autosave.Option) (*binding[T], error) {
	rec, err := autosave.New(spec, opts...)
	if err != nil {
		return nil, err
	}
	return &binding[T]{rec: rec, lookup: lookup}, nil
}

// Select opens the entity with id for editing. A pending save of the previously
// open entity is cancelled.
func (b *binding[T]) Select(id string) error {
	v, err := b.lookup(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.selected = id
	b.mu.Unlock()
	b.rec.Sync(&v)
	return nil
}

// Deselect closes the open entity, dropping edits not yet saved
func (b *binding[T]) Deselect() {
	b.mu.Lock()
	b.selected = ""
	b.mu.Unlock()
	b.rec.Sync(nil)
}

// Selected returns the id of the open entity, or ""
func (b *binding[T]) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Update applies an arbitrary edit to the local copy
func (b *binding[T]) Update(mutate func(*T)) error {
	return b.rec.Update(mutate)
}

// Flush saves pending edits now
func (b *binding[T]) Flush(ctx context.Context) error {
	return b.rec.Flush(ctx)
}

// Local returns the local editable copy
func (b *binding[T]) Local() (T, bool) {
	return b.rec.Local()
}

// Pending reports whether edits are waiting to be saved
func (b *binding[T]) Pending() bool {
	return b.rec.Pending()
}

// refresh feeds the canonical state of id to the reconciler if id is open.
// removed, or an entity the workspace no longer has, closes it.
func (b *binding[T]) refresh(id string, removed bool) {
	b.mu.Lock()
	selected := b.selected
	b.mu.Unlock()
	if selected == "" || (id != "" && id != selected) {
		return
	}

	if removed {
		b.Deselect()
		return
	}
	v, err := b.lookup(selected)
	if core.IsNotFound(err) {
		b.Deselect()
		return
	}
	if err != nil {
		return
	}
	b.rec.Sync(&v)
}

func (b *binding[T]) close() {
	b.rec.Close()
}
