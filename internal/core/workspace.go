package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/history"
	"github.com/dotcommander/scribe/internal/impact"
)

var _ history.BookSource = (*Workspace)(nil)

// Workspace owns the canonical copy of one book. Every change goes through an
// update operation that persists via the Gateway, records a snapshot and
// publishes the result on the bus.
type Workspace struct {
	mu      sync.RWMutex
	book    *book.Book
	gateway domain.Gateway
	history *history.Log
	bus     *events.Bus
	logger  *slog.Logger
	now     func() time.Time

	// serializes read-modify-write of book-level fields
	projectMu sync.Mutex

	historyOpts []history.Option
}

// WorkspaceOption configures a Workspace
type WorkspaceOption func(*Workspace)

func WithLogger(logger *slog.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = logger }
}

// WithBus publishes workspace events on bus
func WithBus(bus *events.Bus) WorkspaceOption {
	return func(w *Workspace) { w.bus = bus }
}

func WithClock(now func() time.Time) WorkspaceOption {
	return func(w *Workspace) { w.now = now }
}

// WithHistoryOptions configures the workspace's snapshot log
func WithHistoryOptions(opts ...history.Option) WorkspaceOption {
	return func(w *Workspace) { w.historyOpts = append(w.historyOpts, opts...) }
}

// NewWorkspace wraps an already loaded book. gateway may be nil for a read-only
// workspace; updates then fail with ErrNoGateway.
func NewWorkspace(b *book.Book, gateway domain.Gateway, opts ...WorkspaceOption) (*Workspace, error) {
	if err := book.ValidateStructure(b); err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	w := &Workspace{
		book:    b.Clone(),
		gateway: gateway,
		logger:  slog.Default().With("component", "workspace"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.history = history.New(b.ID, w, w.historyOpts...)
	return w, nil
}

// Open loads bookID through gateway
func Open(ctx context.Context, gateway domain.Gateway, bookID string, opts ...WorkspaceOption) (*Workspace, error) {
	if gateway == nil {
		return nil, ErrNoGateway
	}
	b, err := gateway.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("loading book %s: %w", bookID, err)
	}
	w, err := NewWorkspace(b, gateway, opts...)
	if err != nil {
		return nil, err
	}
	w.publish(ctx, events.TypeBookLoaded, bookID, w.Book())
	return w, nil
}

// ID returns the id of the book
func (w *Workspace) ID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.book.ID
}

// Book returns a deep copy of the canonical book
func (w *Workspace) Book() *book.Book {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.book.Clone()
}

// History returns the snapshot log of this book
func (w *Workspace) History() *history.Log {
	return w.history
}

// Character returns the canonical character with id
func (w *Workspace) Character(id string) (book.Character, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.book.Character(id)
	if !ok {
		return book.Character{}, NewNotFoundError("character", id)
	}
	return c.Clone(), nil
}

// Chapter returns the canonical chapter with id
func (w *Workspace) Chapter(id string) (book.Chapter, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ch, ok := w.book.Chapter(id)
	if !ok {
		return book.Chapter{}, NewNotFoundError("chapter", id)
	}
	return ch.Clone(), nil
}

// PlotPoint returns the canonical plot point with id
func (w *Workspace) PlotPoint(id string) (book.PlotPoint, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.book.PlotPoint(id)
	if !ok {
		return book.PlotPoint{}, NewNotFoundError("plotpoint", id)
	}
	return p.Clone(), nil
}

// Dependencies resolves the entities currently referencing (kind, id)
func (w *Workspace) Dependencies(kind book.EntityType, id string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return impact.Resolve(w.book, kind, id)
}

// Reload replaces the canonical book with the gateway's copy
func (w *Workspace) Reload(ctx context.Context) error {
	if w.gateway == nil {
		return ErrNoGateway
	}
	b, err := w.gateway.GetBook(ctx, w.ID())
	if err != nil {
		return fmt.Errorf("reloading book: %w", err)
	}
	return w.Replace(ctx, b)
}

// Replace swaps in a book changed outside this workspace, e.g. on disk
func (w *Workspace) Replace(ctx context.Context, b *book.Book) error {
	if err := book.ValidateStructure(b); err != nil {
		return fmt.Errorf("replacing book: %w", err)
	}
	w.mu.Lock()
	if b.ID != w.book.ID {
		w.mu.Unlock()
		return NewValidationError("book", "id", "does not match the open book", b.ID)
	}
	w.book = b.Clone()
	w.mu.Unlock()

	w.logger.Info("book replaced", "book_id", b.ID)
	w.publish(ctx, events.TypeBookReplaced, b.ID, b.Clone())
	return nil
}

// =============================================================================
// Characters
// =============================================================================

// CreateCharacter persists a new character and adds it to the book
func (w *Workspace) CreateCharacter(ctx context.Context, c book.Character) (book.Character, error) {
	if w.gateway == nil {
		return book.Character{}, ErrNoGateway
	}
	if c.Relationships == nil {
		c.Relationships = []book.Relationship{}
	}
	if c.Type == "" {
		c.Type = book.CharacterSecondary
	}

	saved, err := w.gateway.CreateCharacter(ctx, w.ID(), c)
	if err != nil {
		return book.Character{}, fmt.Errorf("creating character: %w", err)
	}

	w.mu.Lock()
	w.book.Characters = append(w.book.Characters, saved.Clone())
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.logger.Info("character created", "book_id", w.ID(), "entity_id", saved.ID)
	w.publish(ctx, events.TypeCharacterCreated, saved.ID, saved.Clone())
	return saved, nil
}

// UpdateCharacter commits c over the canonical character with the same id. A
// locked character only accepts a change of its lock flag.
func (w *Workspace) UpdateCharacter(ctx context.Context, c book.Character) (book.Character, error) {
	if w.gateway == nil {
		return book.Character{}, ErrNoGateway
	}
	prev, err := w.Character(c.ID)
	if err != nil {
		return book.Character{}, err
	}
	if characterLocked(prev, c) {
		return book.Character{}, fmt.Errorf("updating character %s: %w", c.ID, ErrLocked)
	}
	if c.Relationships == nil {
		c.Relationships = []book.Relationship{}
	}

	snapID := w.snapshot(book.EntityCharacter, c.ID, prev)

	saved, err := w.gateway.UpdateCharacter(ctx, w.ID(), c)
	if err != nil {
		return book.Character{}, fmt.Errorf("updating character %s: %w", c.ID, err)
	}

	w.mu.Lock()
	if i := w.book.CharacterIndex(saved.ID); i >= 0 {
		w.book.Characters[i] = saved.Clone()
	}
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.publish(ctx, events.TypeCharacterUpdated, saved.ID, saved.Clone())
	w.analyze(ctx, snapID, saved.ID, saved)
	return saved, nil
}

// DeleteCharacter removes the character. Relationship edges pointing at it are
// left dangling.
func (w *Workspace) DeleteCharacter(ctx context.Context, id string) error {
	if w.gateway == nil {
		return ErrNoGateway
	}
	prev, err := w.Character(id)
	if err != nil {
		return err
	}
	if prev.Locked {
		return fmt.Errorf("deleting character %s: %w", id, ErrLocked)
	}

	if err := w.gateway.DeleteCharacter(ctx, w.ID(), id); err != nil && !IsNotFound(err) {
		return fmt.Errorf("deleting character %s: %w", id, err)
	}

	w.mu.Lock()
	if i := w.book.CharacterIndex(id); i >= 0 {
		w.book.Characters = slices.Delete(w.book.Characters, i, i+1)
	}
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.logger.Info("character deleted", "book_id", w.ID(), "entity_id", id)
	w.publish(ctx, events.TypeCharacterDeleted, id, prev)
	return nil
}

// =============================================================================
// Chapters
// =============================================================================

// CreateChapter persists a new chapter at the end of the reading order unless an
// order is given
func (w *Workspace) CreateChapter(ctx context.Context, ch book.Chapter) (book.Chapter, error) {
	if w.gateway == nil {
		return book.Chapter{}, ErrNoGateway
	}
	if ch.Order == 0 {
		w.mu.RLock()
		for _, existing := range w.book.Chapters {
			if existing.Order >= ch.Order {
				ch.Order = existing.Order + 1
			}
		}
		w.mu.RUnlock()
	}
	ch.Versions = nil
	ch.Recount()

	saved, err := w.gateway.CreateChapter(ctx, w.ID(), ch)
	if err != nil {
		return book.Chapter{}, fmt.Errorf("creating chapter: %w", err)
	}

	w.mu.Lock()
	w.book.Chapters = append(w.book.Chapters, saved.Clone())
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.logger.Info("chapter created", "book_id", w.ID(), "entity_id", saved.ID)
	w.publish(ctx, events.TypeChapterCreated, saved.ID, saved.Clone())
	return saved, nil
}

// UpdateChapter commits ch over the canonical chapter. When the content or title
// changes, the canonical pre-change pair is appended to the version list. The
// word count is always recomputed.
func (w *Workspace) UpdateChapter(ctx context.Context, ch book.Chapter) (book.Chapter, error) {
	if w.gateway == nil {
		return book.Chapter{}, ErrNoGateway
	}
	prev, err := w.Chapter(ch.ID)
	if err != nil {
		return book.Chapter{}, err
	}
	if chapterLocked(prev, ch) {
		return book.Chapter{}, fmt.Errorf("updating chapter %s: %w", ch.ID, ErrLocked)
	}

	ch.Versions = slices.Clone(prev.Versions)
	if ch.ProseChanged(prev) || ch.Title != prev.Title {
		ch.RecordVersion(prev, w.now())
	}
	ch.Recount()

	snapID := w.snapshot(book.EntityChapter, ch.ID, prev)

	saved, err := w.gateway.UpdateChapter(ctx, w.ID(), ch)
	if err != nil {
		return book.Chapter{}, fmt.Errorf("updating chapter %s: %w", ch.ID, err)
	}

	w.mu.Lock()
	if i := w.book.ChapterIndex(saved.ID); i >= 0 {
		w.book.Chapters[i] = saved.Clone()
	}
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.publish(ctx, events.TypeChapterUpdated, saved.ID, saved.Clone())
	w.analyze(ctx, snapID, saved.ID, saved)
	return saved, nil
}

func (w *Workspace) DeleteChapter(ctx context.Context, id string) error {
	if w.gateway == nil {
		return ErrNoGateway
	}
	prev, err := w.Chapter(id)
	if err != nil {
		return err
	}
	if prev.Locked {
		return fmt.Errorf("deleting chapter %s: %w", id, ErrLocked)
	}

	if err := w.gateway.DeleteChapter(ctx, w.ID(), id); err != nil && !IsNotFound(err) {
		return fmt.Errorf("deleting chapter %s: %w", id, err)
	}

	w.mu.Lock()
	if i := w.book.ChapterIndex(id); i >= 0 {
		w.book.Chapters = slices.Delete(w.book.Chapters, i, i+1)
	}
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.logger.Info("chapter deleted", "book_id", w.ID(), "entity_id", id)
	w.publish(ctx, events.TypeChapterDeleted, id, prev)
	return nil
}

// ReorderChapters sets each listed chapter's Order to its position in ids.
// Chapters not listed keep their order.
func (w *Workspace) ReorderChapters(ctx context.Context, ids []string) error {
	if w.gateway == nil {
		return ErrNoGateway
	}
	if len(ids) == 0 {
		return NewValidationError("chapter", "chapterIds", "at least one id is required", ids)
	}
	w.mu.RLock()
	for _, id := range ids {
		if w.book.ChapterIndex(id) < 0 {
			w.mu.RUnlock()
			return NewNotFoundError("chapter", id)
		}
	}
	w.mu.RUnlock()

	if err := w.gateway.ReorderChapters(ctx, w.ID(), ids); err != nil {
		return fmt.Errorf("reordering chapters: %w", err)
	}

	w.mu.Lock()
	for pos, id := range ids {
		if i := w.book.ChapterIndex(id); i >= 0 {
			w.book.Chapters[i].Order = pos
		}
	}
	w.book.Touch(w.now())
	w.mu.Unlock()

	w.publish(ctx, events.TypeChapterReordered, "", slices.Clone(ids))
	return nil
}

// =============================================================================
// Book-level fields
// =============================================================================

// UpdateMetadata commits the book's descriptive fields
func (w *Workspace) UpdateMetadata(ctx context.Context, m book.Metadata) (book.Metadata, error) {
	if m.Themes == nil {
		m.Themes = []string{}
	}
	if m.TargetWordCount < 0 {
		return book.Metadata{}, NewValidationError("metadata", "targetWordCount", "must not be negative", m.TargetWordCount)
	}

	w.mu.RLock()
	prev := w.book.Metadata.Clone()
	w.mu.RUnlock()
	snapID := w.snapshot(book.EntityMetadata, w.ID(), prev)

	err := w.updateProject(ctx, func(b *book.Book) error {
		b.Metadata = m.Clone()
		return nil
	})
	if err != nil {
		return book.Metadata{}, fmt.Errorf("updating metadata: %w", err)
	}

	w.publish(ctx, events.TypeMetadataUpdated, w.ID(), m.Clone())
	w.analyze(ctx, snapID, w.ID(), m)
	return m, nil
}

// CreatePlotPoint adds a plot point. Missing ids and categories are filled in.
func (w *Workspace) CreatePlotPoint(ctx context.Context, p book.PlotPoint) (book.PlotPoint, error) {
	if p.ID == "" {
		p.ID = book.NewID()
	}
	if p.Category == "" {
		p.Category = book.PlotOther
	}
	err := w.updateProject(ctx, func(b *book.Book) error {
		if b.PlotPointIndex(p.ID) >= 0 {
			return NewValidationError("plotpoint", "id", "already exists", p.ID)
		}
		b.PlotPoints = append(b.PlotPoints, p.Clone())
		return nil
	})
	if err != nil {
		return book.PlotPoint{}, fmt.Errorf("creating plot point: %w", err)
	}
	w.publish(ctx, events.TypePlotPointCreated, p.ID, p.Clone())
	return p, nil
}

// UpdatePlotPoint replaces the plot point with the same id
func (w *Workspace) UpdatePlotPoint(ctx context.Context, p book.PlotPoint) (book.PlotPoint, error) {
	prev, err := w.PlotPoint(p.ID)
	if err != nil {
		return book.PlotPoint{}, err
	}
	snapID := w.snapshot(book.EntityPlotPoint, p.ID, prev)

	err = w.updateProject(ctx, func(b *book.Book) error {
		i := b.PlotPointIndex(p.ID)
		if i < 0 {
			return NewNotFoundError("plotpoint", p.ID)
		}
		b.PlotPoints[i] = p.Clone()
		return nil
	})
	if err != nil {
		return book.PlotPoint{}, fmt.Errorf("updating plot point: %w", err)
	}

	w.publish(ctx, events.TypePlotPointUpdated, p.ID, p.Clone())
	w.analyze(ctx, snapID, p.ID, p)
	return p, nil
}

func (w *Workspace) DeletePlotPoint(ctx context.Context, id string) error {
	var prev book.PlotPoint
	err := w.updateProject(ctx, func(b *book.Book) error {
		i := b.PlotPointIndex(id)
		if i < 0 {
			return NewNotFoundError("plotpoint", id)
		}
		prev = b.PlotPoints[i]
		b.PlotPoints = slices.Delete(b.PlotPoints, i, i+1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting plot point: %w", err)
	}
	w.publish(ctx, events.TypePlotPointDeleted, id, prev)
	return nil
}

// AddTimelineEvent appends an event to the in-world chronology
func (w *Workspace) AddTimelineEvent(ctx context.Context, ev book.TimelineEvent) (book.TimelineEvent, error) {
	if ev.ID == "" {
		ev.ID = book.NewID()
	}
	ev.CharacterIDs = slices.Clone(ev.CharacterIDs)
	err := w.updateProject(ctx, func(b *book.Book) error {
		if slices.ContainsFunc(b.Timeline.Events, func(e book.TimelineEvent) bool { return e.ID == ev.ID }) {
			return NewValidationError("timeline", "id", "already exists", ev.ID)
		}
		b.Timeline.Events = append(b.Timeline.Events, ev)
		return nil
	})
	if err != nil {
		return book.TimelineEvent{}, fmt.Errorf("adding timeline event: %w", err)
	}
	w.publish(ctx, events.TypeTimelineUpdated, ev.ID, ev)
	return ev, nil
}

func (w *Workspace) RemoveTimelineEvent(ctx context.Context, id string) error {
	err := w.updateProject(ctx, func(b *book.Book) error {
		i := slices.IndexFunc(b.Timeline.Events, func(e book.TimelineEvent) bool { return e.ID == id })
		if i < 0 {
			return NewNotFoundError("timeline event", id)
		}
		b.Timeline.Events = slices.Delete(b.Timeline.Events, i, i+1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing timeline event: %w", err)
	}
	w.publish(ctx, events.TypeTimelineUpdated, id, nil)
	return nil
}

// updateProject applies fn to a copy of the book, persists the copy's
// book-level fields and then adopts them
func (w *Workspace) updateProject(ctx context.Context, fn func(*book.Book) error) error {
	if w.gateway == nil {
		return ErrNoGateway
	}
	w.projectMu.Lock()
	defer w.projectMu.Unlock()

	next := w.Book()
	if err := fn(next); err != nil {
		return err
	}
	next.Touch(w.now())

	if err := w.gateway.UpdateProject(ctx, next); err != nil {
		return err
	}

	w.mu.Lock()
	w.book.Metadata = next.Metadata
	w.book.PlotPoints = next.PlotPoints
	w.book.Timeline = next.Timeline
	w.book.Settings = next.Settings
	w.book.Touch(next.UpdatedAt)
	w.mu.Unlock()
	return nil
}

// =============================================================================
// Snapshots and events
// =============================================================================

// snapshot records the pre-change state. A failure only costs the history entry.
func (w *Workspace) snapshot(kind book.EntityType, id string, previous any) string {
	snapID, err := w.history.CreateSnapshot(kind, id, previous)
	if err != nil {
		w.logger.Warn("snapshot failed", "book_id", w.ID(), "entity_type", kind, "entity_id", id, "error", err)
		return ""
	}
	return snapID
}

// analyze seals the snapshot with the committed state and publishes any impacts
func (w *Workspace) analyze(ctx context.Context, snapID, entityID string, changes any) []impact.Impact {
	if snapID == "" {
		return nil
	}
	impacts, err := w.history.UpdateSnapshot(snapID, changes)
	if err != nil {
		w.logger.Warn("impact analysis failed", "book_id", w.ID(), "snapshot_id", snapID, "error", err)
		return nil
	}
	if len(impacts) == 0 {
		return nil
	}

	w.logger.Info("impacts detected",
		"book_id", w.ID(),
		"entity_id", entityID,
		"count", len(impacts),
		"severity", impact.HighestSeverity(impacts))
	w.publish(ctx, events.TypeImpactDetected, entityID, ImpactReport{
		SnapshotID: snapID,
		EntityID:   entityID,
		Impacts:    impacts,
	})
	return impacts
}

// ImpactReport is the payload of an impact.detected event
type ImpactReport struct {
	SnapshotID string          `json:"snapshotId"`
	EntityID   string          `json:"entityId"`
	Impacts    []impact.Impact `json:"impacts"`
}

func (w *Workspace) publish(ctx context.Context, eventType, entityID string, data any) {
	if w.bus == nil {
		return
	}
	err := w.bus.Publish(ctx, events.Event{
		Type:      eventType,
		BookID:    w.ID(),
		EntityID:  entityID,
		Timestamp: w.now(),
		Data:      data,
	})
	if err != nil {
		w.logger.Debug("event not published", "type", eventType, "error", err)
	}
}
