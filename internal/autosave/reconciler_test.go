package autosave

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dotcommander/scribe/internal/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type note struct {
	ID     string
	Title  string
	Body   string
	Words  int
	Locked bool
}

type recordingStore struct {
	mu      sync.Mutex
	saves   []note
	err     error
	gate    chan struct{}
	active  atomic.Int32
	overlap atomic.Bool
	onSave  func(note)
}

func (s *recordingStore) save(ctx context.Context, n note) (note, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)

	if s.onSave != nil {
		s.onSave(n)
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return note{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, n)
	if s.err != nil {
		return note{}, s.err
	}
	return n, nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *recordingStore) last() note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[len(s.saves)-1]
}

func noteSpec(store *recordingStore) Spec[note] {
	return Spec[note]{
		Kind:  "note",
		ID:    func(n note) string { return n.ID },
		Clone: func(n note) note { return n },
		Fields: []Field[note]{
			FieldOf("title", func(n *note) *string { return &n.Title }),
			LongFormOf("body", func(n *note) *string { return &n.Body }),
		},
		Locked:    func(n note) bool { return n.Locked },
		SetLocked: func(n *note, v bool) { n.Locked = v },
		Derive:    func(n *note) { n.Words = len(strings.Fields(n.Body)) },
		Save:      store.save,
	}
}

func newNoteReconciler(t *testing.T, store *recordingStore, opts ...Option) *Reconciler[note] {
	t.Helper()
	base := []Option{
		WithDebounce(30 * time.Millisecond),
		WithLongFormWindow(time.Hour),
		WithEchoGrace(20 * time.Millisecond),
	}
	r, err := New(noteSpec(store), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRapidEditsCommitOnceWithFinalValue(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "draft"})

	for i := 0; i < 10; i++ {
		title := fmt.Sprintf("title %d", i)
		require.NoError(t, r.Update(func(n *note) { n.Title = title }))
	}

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 1, store.count())
	assert.Equal(t, "title 9", store.last().Title)
	assert.False(t, r.Pending())
}

func TestLockedEntityNeverCommits(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "draft", Locked: true})

	for i := 0; i < 5; i++ {
		err := r.Update(func(n *note) { n.Title = "changed" })
		require.ErrorIs(t, err, core.ErrLocked)
	}
	require.NoError(t, r.Flush(context.Background()))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, store.count())

	local, ok := r.Local()
	require.True(t, ok)
	assert.Equal(t, "draft", local.Title)

	// unlocking commits the flag through the save path
	require.NoError(t, r.SetLocked(context.Background(), false))
	require.Equal(t, 1, store.count())
	assert.False(t, store.last().Locked)

	time.Sleep(30 * time.Millisecond) // past the echo grace
	require.NoError(t, r.Update(func(n *note) { n.Title = "unlocked edit" }))
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "unlocked edit", store.last().Title)
}

func TestUpdateCannotFlipLock(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.Update(func(n *note) { n.Locked = true }))
	assert.False(t, r.Locked())
	assert.False(t, r.Pending())
}

func TestToggleLock(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.ToggleLock(context.Background()))
	assert.True(t, r.Locked())
	require.Equal(t, 1, store.count())
	assert.True(t, store.last().Locked)
}

func TestDeselectCancelsPendingCommit(t *testing.T) {
	tests := []struct {
		name string
		next *note
	}{
		{name: "nothing selected", next: nil},
		{name: "another entity", next: &note{ID: "n2", Title: "other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			r := newNoteReconciler(t, store)
			r.Sync(&note{ID: "n1", Title: "draft"})

			require.NoError(t, r.Update(func(n *note) { n.Title = "edited" }))
			r.Sync(tt.next)

			time.Sleep(80 * time.Millisecond)
			assert.Zero(t, store.count())
		})
	}
}

func TestExternalUpdateOnlyOverwritesMovedFields(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "draft", Body: "old body"})

	require.NoError(t, r.Update(func(n *note) { n.Body = "typing in progress" }))

	// another client renamed the note; body is unchanged on the canonical side
	r.Sync(&note{ID: "n1", Title: "renamed elsewhere", Body: "old body"})

	local, ok := r.Local()
	require.True(t, ok)
	assert.Equal(t, "renamed elsewhere", local.Title)
	assert.Equal(t, "typing in progress", local.Body)
	assert.True(t, r.Pending())
}

func TestEchoDuringCommitIsIgnored(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "draft", Body: "body"})

	// a stale canonical copy arrives while the save is in flight
	store.onSave = func(note) {
		r.Sync(&note{ID: "n1", Title: "stale", Body: "stale"})
	}

	require.NoError(t, r.Update(func(n *note) { n.Body = "fresh body" }))
	require.NoError(t, r.Flush(context.Background()))

	// and again inside the grace window after it resolved
	r.Sync(&note{ID: "n1", Title: "stale", Body: "stale"})

	local, _ := r.Local()
	assert.Equal(t, "draft", local.Title)
	assert.Equal(t, "fresh body", local.Body)
}

func TestDerivedFieldsRecomputedOnEdit(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.Update(func(n *note) { n.Body = "three small words" }))
	local, _ := r.Local()
	assert.Equal(t, 3, local.Words)

	require.NoError(t, r.Flush(context.Background()))
	require.Equal(t, 1, store.count())
	assert.Equal(t, 3, store.last().Words)
}

func TestLongFormWaitsForFlush(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.Update(func(n *note) { n.Body = "chapter text" }))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, store.count())
	assert.True(t, r.Pending())

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, 1, store.count())
	assert.False(t, r.Pending())
}

func TestShortFieldWinsOverLongForm(t *testing.T) {
	store := &recordingStore{}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.Update(func(n *note) { n.Body = "chapter text" }))
	require.NoError(t, r.Update(func(n *note) { n.Title = "title" }))

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "chapter text", store.last().Body)
	assert.Equal(t, "title", store.last().Title)
}

func TestEditsDuringCommitAreDeferred(t *testing.T) {
	store := &recordingStore{gate: make(chan struct{})}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1"})

	require.NoError(t, r.Update(func(n *note) { n.Title = "first" }))

	done := make(chan error, 1)
	go func() { done <- r.Flush(context.Background()) }()
	require.Eventually(t, func() bool { return store.active.Load() == 1 }, time.Second, time.Millisecond)

	// the debounce for this edit fires while the first save is blocked
	require.NoError(t, r.Update(func(n *note) { n.Title = "second" }))
	time.Sleep(60 * time.Millisecond)

	close(store.gate)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", store.last().Title)
	assert.False(t, store.overlap.Load())
}

func TestEditOfNewSelectionSurvivesStaleSave(t *testing.T) {
	store := &recordingStore{gate: make(chan struct{})}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "a1"})
	require.NoError(t, r.Update(func(n *note) { n.Title = "a2" }))

	done := make(chan error, 1)
	go func() { done <- r.Flush(context.Background()) }()
	require.Eventually(t, func() bool { return store.active.Load() == 1 }, time.Second, time.Millisecond)

	// switch entities while the save of n1 is still blocked
	r.Sync(&note{ID: "n2", Title: "b1"})
	require.NoError(t, r.Update(func(n *note) { n.Title = "b2" }))

	// a remote change to n2 is merged, not mistaken for an echo of n1's save
	r.Sync(&note{ID: "n2", Title: "b1", Body: "remote"})
	local, _ := r.Local()
	assert.Equal(t, "b2", local.Title)
	assert.Equal(t, "remote", local.Body)

	time.Sleep(60 * time.Millisecond)
	close(store.gate)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	last := store.last()
	assert.Equal(t, "n2", last.ID)
	assert.Equal(t, "b2", last.Title)
	assert.Equal(t, "remote", last.Body)
	assert.False(t, r.Pending())
	assert.False(t, store.overlap.Load())
}

func TestFlushWaitsForInFlightCommit(t *testing.T) {
	store := &recordingStore{gate: make(chan struct{})}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "a1"})

	// debounced save blocks on the gate
	require.NoError(t, r.Update(func(n *note) { n.Title = "a2" }))
	require.Eventually(t, func() bool { return store.active.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Update(func(n *note) { n.Title = "a3" }))

	flushed := make(chan error, 1)
	go func() { flushed <- r.Flush(context.Background()) }()

	select {
	case err := <-flushed:
		t.Fatalf("Flush returned %v while a save was in flight", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	select {
	case err := <-flushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Flush did not return")
	}

	r.Close()
	assert.Equal(t, 2, store.count())
	assert.Equal(t, "a3", store.last().Title)
	assert.False(t, r.Pending())
	assert.False(t, store.overlap.Load())
}

func TestFlushHonoursContextWhileWaiting(t *testing.T) {
	store := &recordingStore{gate: make(chan struct{})}
	r := newNoteReconciler(t, store)
	r.Sync(&note{ID: "n1", Title: "a1"})

	require.NoError(t, r.Update(func(n *note) { n.Title = "a2" }))
	require.Eventually(t, func() bool { return store.active.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Update(func(n *note) { n.Title = "a3" }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Flush(ctx), context.DeadlineExceeded)
	assert.True(t, r.Pending())

	close(store.gate)
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a3", store.last().Title)
}

func TestSaveFailureReportsStatus(t *testing.T) {
	store := &recordingStore{err: fmt.Errorf("dial backend: %w", core.ErrNetwork)}
	status := NewStatusTracker()

	var events []StatusEvent
	var mu sync.Mutex
	status.OnChange(func(ev StatusEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	r := newNoteReconciler(t, store, WithStatus(status))
	r.Sync(&note{ID: "n1"})
	require.NoError(t, r.Update(func(n *note) { n.Title = "x" }))

	err := r.Flush(context.Background())
	require.ErrorIs(t, err, core.ErrNetwork)
	assert.True(t, core.IsRetryable(err))

	st, lastErr := status.Status()
	assert.Equal(t, StatusError, st)
	assert.ErrorIs(t, lastErr, core.ErrNetwork)
	assert.True(t, r.Pending(), "failed edits stay pending until the next edit or flush")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, StatusSaving, events[0].Status)
	assert.Equal(t, StatusError, events[1].Status)
	assert.Equal(t, "n1", events[1].EntityID)
}

func TestUpdateWithoutSelection(t *testing.T) {
	r := newNoteReconciler(t, &recordingStore{})
	err := r.Update(func(n *note) { n.Title = "x" })
	assert.ErrorIs(t, err, core.ErrNoSelection)
	_, ok := r.Local()
	assert.False(t, ok)
}

func TestNewRequiresCallbacks(t *testing.T) {
	_, err := New(Spec[note]{Kind: "note"})
	assert.Error(t, err)
}
