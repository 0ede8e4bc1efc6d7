// Package history records the pre-change state of every committed edit to a book and
// the impacts computed for it. A Log belongs to exactly one book.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/impact"
)

// DefaultMaxEntries is how many snapshots a log keeps after cleanup
const DefaultMaxEntries = 100

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotSealed   = errors.New("snapshot already analyzed")
	ErrBookMismatch     = errors.New("history belongs to another book")
)

// Snapshot is the record of one intended change
type Snapshot struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	EntityType    book.EntityType `json:"entityType"`
	EntityID      string          `json:"entityId"`
	PreviousState json.RawMessage `json:"previousState"`
	Changes       json.RawMessage `json:"changes,omitempty"`
	Dependencies  []string        `json:"dependencies"`
	Impact        []impact.Impact `json:"impact,omitempty"`
	Analyzed      bool            `json:"analyzed"`
}

// BookSource exposes the current state of the book a log belongs to
type BookSource interface {
	Book() *book.Book
}

// Log is an append-only, size-bounded list of snapshots for one book
type Log struct {
	mu         sync.RWMutex
	bookID     string
	source     BookSource
	snapshots  []*Snapshot
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Log
type Option func(*Log)

// WithMaxEntries overrides the cleanup bound
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New creates an empty log for the book identified by bookID
func New(bookID string, source BookSource, opts ...Option) *Log {
	l := &Log{
		bookID:     bookID,
		source:     source,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		logger:     slog.Default().With("component", "history"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BookID returns the id of the book this log belongs to
func (l *Log) BookID() string {
	return l.bookID
}

// CreateSnapshot records previous as the state of (kind, id) before an edit and
// computes its dependents against the current book. It returns the snapshot id.
func (l *Log) CreateSnapshot(kind book.EntityType, id string, previous any) (string, error) {
	previous = deref(previous)
	state, err := json.Marshal(previous)
	if err != nil {
		return "", fmt.Errorf("marshaling previous state: %w", err)
	}

	var deps []string
	if l.source != nil {
		deps = impact.ResolveState(l.source.Book(), previous)
	}

	snap := &Snapshot{
		ID:            book.NewID(),
		Timestamp:     l.now(),
		EntityType:    kind,
		EntityID:      id,
		PreviousState: state,
		Dependencies:  deps,
	}

	l.mu.Lock()
	l.snapshots = append(l.snapshots, snap)
	over := len(l.snapshots) > l.maxEntries
	l.mu.Unlock()

	if over {
		l.Cleanup()
	}

	l.logger.Debug("snapshot created",
		"book_id", l.bookID,
		"snapshot_id", snap.ID,
		"entity_type", kind,
		"entity_id", id,
		"dependency_count", len(deps))
	return snap.ID, nil
}

// UpdateSnapshot attaches the committed change to a snapshot, runs the impact
// analysis and seals the snapshot. changes is the entity's state after the edit.
func (l *Log) UpdateSnapshot(id string, changes any) ([]impact.Impact, error) {
	changes = deref(changes)
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshaling changes: %w", err)
	}

	l.mu.RLock()
	snap := l.find(id)
	var (
		kind     book.EntityType
		entityID string
		prevRaw  json.RawMessage
		deps     []string
		sealed   bool
	)
	if snap != nil {
		kind, entityID, prevRaw, deps, sealed = snap.EntityType, snap.EntityID, snap.PreviousState, snap.Dependencies, snap.Analyzed
	}
	l.mu.RUnlock()

	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if sealed {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotSealed, id)
	}

	previous, err := decodeState(kind, prevRaw)
	if err != nil {
		return nil, err
	}

	var current *book.Book
	if l.source != nil {
		current = l.source.Book()
	}
	impacts := impact.Analyze(current, impact.Change{
		EntityType:   kind,
		EntityID:     entityID,
		Before:       previous,
		After:        changes,
		Dependencies: deps,
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	// the snapshot may have been trimmed or sealed while analyzing
	snap = l.find(id)
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if snap.Analyzed {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotSealed, id)
	}
	snap.Changes = raw
	snap.Impact = impacts
	snap.Analyzed = true

	return cloneImpacts(impacts), nil
}

// Get returns a copy of the snapshot with id
func (l *Log) Get(id string) (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := l.find(id)
	if snap == nil {
		return Snapshot{}, false
	}
	return snap.clone(), true
}

// EntityHistory returns the snapshots of one entity, newest first
func (l *Log) EntityHistory(entityID string) []Snapshot {
	return l.collect(func(s *Snapshot) bool { return s.EntityID == entityID })
}

// RelevantChanges returns committed snapshots whose dependency list includes
// entityID, newest first. Snapshots of saves that never went through are left
// out since nothing changed.
func (l *Log) RelevantChanges(entityID string) []Snapshot {
	return l.collect(func(s *Snapshot) bool {
		if !s.Analyzed {
			return false
		}
		for _, dep := range s.Dependencies {
			if dep == entityID {
				return true
			}
		}
		return false
	})
}

// All returns every snapshot, newest first
func (l *Log) All() []Snapshot {
	return l.collect(func(*Snapshot) bool { return true })
}

// Len returns the number of retained snapshots
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.snapshots)
}

// Cleanup trims the log to the most recent snapshots by timestamp and returns how
// many were dropped.
func (l *Log) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	over := len(l.snapshots) - l.maxEntries
	if over <= 0 {
		return 0
	}
	sort.SliceStable(l.snapshots, func(i, j int) bool {
		return l.snapshots[i].Timestamp.Before(l.snapshots[j].Timestamp)
	})
	kept := make([]*Snapshot, l.maxEntries)
	copy(kept, l.snapshots[over:])
	l.snapshots = kept

	l.logger.Debug("history trimmed",
		"book_id", l.bookID,
		"dropped", over,
		"retained", len(kept))
	return over
}

type exported struct {
	BookID    string     `json:"bookId"`
	Snapshots []Snapshot `json:"snapshots"`
}

// Export writes the log as a JSON document, oldest snapshot first
func (l *Log) Export(w io.Writer) error {
	l.mu.RLock()
	doc := exported{BookID: l.bookID, Snapshots: make([]Snapshot, 0, len(l.snapshots))}
	for _, s := range l.snapshots {
		doc.Snapshots = append(doc.Snapshots, s.clone())
	}
	l.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return nil
}

// Import replaces the log's contents with an exported document of the same book
func (l *Log) Import(r io.Reader) error {
	var doc exported
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decoding history: %w", err)
	}
	if doc.BookID != l.bookID {
		return fmt.Errorf("%w: got %q, want %q", ErrBookMismatch, doc.BookID, l.bookID)
	}

	snaps := make([]*Snapshot, 0, len(doc.Snapshots))
	for i := range doc.Snapshots {
		s := doc.Snapshots[i]
		snaps = append(snaps, &s)
	}

	l.mu.Lock()
	l.snapshots = snaps
	l.mu.Unlock()

	l.Cleanup()
	return nil
}

func (l *Log) find(id string) *Snapshot {
	for _, s := range l.snapshots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (l *Log) collect(keep func(*Snapshot) bool) []Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Snapshot
	for i := len(l.snapshots) - 1; i >= 0; i-- {
		if keep(l.snapshots[i]) {
			out = append(out, l.snapshots[i].clone())
		}
	}
	return out
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	out.PreviousState = append(json.RawMessage(nil), s.PreviousState...)
	out.Changes = append(json.RawMessage(nil), s.Changes...)
	out.Dependencies = append([]string(nil), s.Dependencies...)
	out.Impact = cloneImpacts(s.Impact)
	return out
}

func cloneImpacts(in []impact.Impact) []impact.Impact {
	if in == nil {
		return nil
	}
	out := make([]impact.Impact, len(in))
	for i, im := range in {
		im.TargetIDs = append([]string(nil), im.TargetIDs...)
		im.SuggestedActions = append([]string(nil), im.SuggestedActions...)
		out[i] = im
	}
	return out
}

// decodeState restores a typed entity value from a snapshot's previous state
func decodeState(kind book.EntityType, raw json.RawMessage) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case book.EntityCharacter:
		var c book.Character
		err = json.Unmarshal(raw, &c)
		v = c
	case book.EntityChapter:
		var c book.Chapter
		err = json.Unmarshal(raw, &c)
		v = c
	case book.EntityPlotPoint:
		var p book.PlotPoint
		err = json.Unmarshal(raw, &p)
		v = p
	case book.EntityMetadata:
		var m book.Metadata
		err = json.Unmarshal(raw, &m)
		v = m
	default:
		return nil, fmt.Errorf("unknown entity type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s state: %w", kind, err)
	}
	return v, nil
}

func deref(v any) any {
	switch p := v.(type) {
	case *book.Character:
		if p != nil {
			return *p
		}
	case *book.Chapter:
		if p != nil {
			return *p
		}
	case *book.PlotPoint:
		if p != nil {
			return *p
		}
	case *book.Metadata:
		if p != nil {
			return *p
		}
	}
	return v
}
