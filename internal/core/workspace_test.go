package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/impact"
	"github.com/dotcommander/scribe/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func aliceBook() *book.Book {
	b := book.New("Wonderland", "Carroll")
	b.Characters = []book.Character{
		{ID: "alice", Name: "Alice", Type: book.CharacterMain, Relationships: []book.Relationship{}},
		{ID: "rabbit", Name: "White Rabbit", Relationships: []book.Relationship{
			{TargetCharacterID: "alice", RelationshipType: "guide"},
		}},
	}
	b.Chapters = []book.Chapter{
		{ID: "ch1", Title: "Down the Rabbit-Hole", Content: "Alice was beginning to get very tired.", Order: 0},
		{ID: "ch2", Title: "The Pool of Tears", Content: "Curiouser and curiouser!", Order: 1},
	}
	return b
}

func openWorkspace(t *testing.T) (*core.Workspace, *recorder) {
	t.Helper()
	store := storage.NewLocalStore(storage.NewFileSystem(t.TempDir()))
	gw := storage.NewLocalGateway(store)
	b := aliceBook()
	require.NoError(t, gw.UpdateProject(context.Background(), b))

	bus := events.NewBus(nil)
	t.Cleanup(bus.Stop)
	rec := &recorder{}
	_, err := bus.Subscribe(events.PatternAll, rec.handle)
	require.NoError(t, err)

	ws, err := core.Open(context.Background(), gw, b.ID, core.WithBus(bus))
	require.NoError(t, err)
	return ws, rec
}

func impactsOf(t *testing.T, rec *recorder) []impact.Impact {
	t.Helper()
	var out []impact.Impact
	for _, e := range rec.ofType(events.TypeImpactDetected) {
		report, ok := e.Data.(core.ImpactReport)
		require.True(t, ok)
		out = append(out, report.Impacts...)
	}
	return out
}

func countSeverity(impacts []impact.Impact, s impact.Severity) int {
	n := 0
	for _, im := range impacts {
		if im.Severity == s {
			n++
		}
	}
	return n
}

func TestWorkspaceCharacterRename(t *testing.T) {
	ws, rec := openWorkspace(t)
	ctx := context.Background()

	alice, err := ws.Character("alice")
	require.NoError(t, err)
	alice.Name = "Alicia"

	saved, err := ws.UpdateCharacter(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", saved.Name)

	got, err := ws.Character("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.Name)

	impacts := impactsOf(t, rec)
	assert.Equal(t, 1, countSeverity(impacts, impact.SeverityHigh))
	assert.Len(t, rec.ofType(events.TypeCharacterUpdated), 1)

	hist := ws.History().EntityHistory("alice")
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Analyzed)
	assert.Contains(t, hist[0].Dependencies, "ch1")
}

func TestWorkspaceBiographyEditIsMedium(t *testing.T) {
	ws, rec := openWorkspace(t)

	alice, err := ws.Character("alice")
	require.NoError(t, err)
	alice.Biography = "A curious girl."

	_, err = ws.UpdateCharacter(context.Background(), alice)
	require.NoError(t, err)

	impacts := impactsOf(t, rec)
	assert.Equal(t, 1, countSeverity(impacts, impact.SeverityMedium))
	assert.Zero(t, countSeverity(impacts, impact.SeverityHigh))
}

func TestWorkspaceRenameKeepsRelevantChanges(t *testing.T) {
	ws, _ := openWorkspace(t)

	alice, err := ws.Character("alice")
	require.NoError(t, err)
	alice.Name = "Bob"
	_, err = ws.UpdateCharacter(context.Background(), alice)
	require.NoError(t, err)

	assert.NotContains(t, ws.Dependencies(book.EntityCharacter, "alice"), "ch1",
		"the chapter no longer mentions the current name")

	relevant := ws.History().RelevantChanges("ch1")
	require.Len(t, relevant, 1)
	assert.Equal(t, "alice", relevant[0].EntityID)
}

func TestWorkspaceChapterVersionsAreBounded(t *testing.T) {
	ws, _ := openWorkspace(t)
	ctx := context.Background()

	ch, err := ws.Chapter("ch2")
	require.NoError(t, err)
	ch.Content = "v0"
	_, err = ws.UpdateChapter(ctx, ch)
	require.NoError(t, err)

	for i := 1; i <= book.MaxVersions+1; i++ {
		ch, err = ws.Chapter("ch2")
		require.NoError(t, err)
		ch.Content = fmt.Sprintf("v%d", i)
		_, err = ws.UpdateChapter(ctx, ch)
		require.NoError(t, err)
	}

	got, err := ws.Chapter("ch2")
	require.NoError(t, err)
	require.Len(t, got.Versions, book.MaxVersions)
	assert.Equal(t, "v1", got.Versions[0].Content, "oldest version evicted")
	assert.Equal(t, fmt.Sprintf("v%d", book.MaxVersions), got.Versions[book.MaxVersions-1].Content)
	assert.Equal(t, 1, got.WordCount)
}

func TestWorkspaceChapterUpdateRecountsWithoutVersionForNotes(t *testing.T) {
	ws, rec := openWorkspace(t)

	ch, err := ws.Chapter("ch1")
	require.NoError(t, err)
	ch.Notes = "check the tea party"
	ch.WordCount = 999

	saved, err := ws.UpdateChapter(context.Background(), ch)
	require.NoError(t, err)
	assert.Empty(t, saved.Versions)
	assert.Equal(t, 7, saved.WordCount)
	assert.Empty(t, impactsOf(t, rec))
}

func TestWorkspaceLockGate(t *testing.T) {
	ws, _ := openWorkspace(t)
	ctx := context.Background()

	alice, err := ws.Character("alice")
	require.NoError(t, err)
	alice.Locked = true
	_, err = ws.UpdateCharacter(ctx, alice)
	require.NoError(t, err, "locking always passes the gate")

	alice.Name = "Alicia"
	_, err = ws.UpdateCharacter(ctx, alice)
	assert.ErrorIs(t, err, core.ErrLocked)

	err = ws.DeleteCharacter(ctx, "alice")
	assert.ErrorIs(t, err, core.ErrLocked)

	got, _ := ws.Character("alice")
	assert.Equal(t, "Alice", got.Name)

	alice.Locked = false
	saved, err := ws.UpdateCharacter(ctx, alice)
	require.NoError(t, err, "unlocking passes the gate")
	assert.Equal(t, "Alicia", saved.Name)
	assert.False(t, saved.Locked)
}

func TestWorkspaceCreateAndDelete(t *testing.T) {
	ws, rec := openWorkspace(t)
	ctx := context.Background()

	hatter, err := ws.CreateCharacter(ctx, book.Character{Name: "Hatter"})
	require.NoError(t, err)
	require.NotEmpty(t, hatter.ID)
	assert.Equal(t, book.CharacterSecondary, hatter.Type)

	ch, err := ws.CreateChapter(ctx, book.Chapter{Title: "A Mad Tea-Party", Content: "There was a table set out"})
	require.NoError(t, err)
	assert.Equal(t, 2, ch.Order)
	assert.Equal(t, 6, ch.WordCount)

	require.NoError(t, ws.DeleteCharacter(ctx, hatter.ID))
	require.NoError(t, ws.DeleteChapter(ctx, ch.ID))

	_, err = ws.Character(hatter.ID)
	assert.True(t, core.IsNotFound(err))
	assert.Len(t, rec.ofType(events.TypeCharacterCreated), 1)
	assert.Len(t, rec.ofType(events.TypeCharacterDeleted), 1)
	assert.Len(t, rec.ofType(events.TypeChapterDeleted), 1)
}

func TestWorkspaceReorderChapters(t *testing.T) {
	ws, rec := openWorkspace(t)
	ctx := context.Background()

	require.NoError(t, ws.ReorderChapters(ctx, []string{"ch2", "ch1"}))
	order := ws.Book().ChaptersInReadingOrder()
	assert.Equal(t, "ch2", order[0].ID)
	assert.Len(t, rec.ofType(events.TypeChapterReordered), 1)

	err := ws.ReorderChapters(ctx, []string{"ch9"})
	assert.True(t, core.IsNotFound(err))
	err = ws.ReorderChapters(ctx, nil)
	assert.True(t, core.IsValidationError(err))
}

func TestWorkspaceBookLevelFields(t *testing.T) {
	ws, rec := openWorkspace(t)
	ctx := context.Background()

	meta := ws.Book().Metadata
	meta.Genre = "fantasy"
	meta.TargetWordCount = 30000
	_, err := ws.UpdateMetadata(ctx, meta)
	require.NoError(t, err)
	assert.Equal(t, "fantasy", ws.Book().Metadata.Genre)

	meta.TargetWordCount = -1
	_, err = ws.UpdateMetadata(ctx, meta)
	assert.True(t, core.IsValidationError(err))

	p, err := ws.CreatePlotPoint(ctx, book.PlotPoint{Title: "Falls down the hole", ChapterID: "ch1"})
	require.NoError(t, err)
	assert.Equal(t, book.PlotOther, p.Category)

	p.Category = book.PlotSetup
	_, err = ws.UpdatePlotPoint(ctx, p)
	require.NoError(t, err)
	got, err := ws.PlotPoint(p.ID)
	require.NoError(t, err)
	assert.Equal(t, book.PlotSetup, got.Category)

	ev, err := ws.AddTimelineEvent(ctx, book.TimelineEvent{Title: "Tea time", Date: "Day 1"})
	require.NoError(t, err)
	assert.Len(t, ws.Book().Timeline.Events, 1)
	require.NoError(t, ws.RemoveTimelineEvent(ctx, ev.ID))
	assert.Empty(t, ws.Book().Timeline.Events)

	require.NoError(t, ws.DeletePlotPoint(ctx, p.ID))
	_, err = ws.PlotPoint(p.ID)
	assert.True(t, core.IsNotFound(err))

	assert.Len(t, rec.ofType(events.TypeMetadataUpdated), 1)
	assert.Len(t, rec.ofType(events.TypeTimelineUpdated), 2)

	// book-level edits survive a reload from the gateway
	require.NoError(t, ws.Reload(ctx))
	assert.Equal(t, "fantasy", ws.Book().Metadata.Genre)
	assert.Len(t, ws.Book().Characters, 2)
}

type failingGateway struct {
	domain.Gateway
	err error
}

func (g failingGateway) UpdateCharacter(context.Context, string, book.Character) (book.Character, error) {
	return book.Character{}, g.err
}

func TestWorkspaceFailedSaveKeepsCanonical(t *testing.T) {
	boom := fmt.Errorf("put: %w", core.ErrNetwork)
	ws, err := core.NewWorkspace(aliceBook(), failingGateway{err: boom})
	require.NoError(t, err)

	alice, _ := ws.Character("alice")
	alice.Name = "Alicia"
	_, err = ws.UpdateCharacter(context.Background(), alice)
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))

	got, _ := ws.Character("alice")
	assert.Equal(t, "Alice", got.Name)

	hist := ws.History().EntityHistory("alice")
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Analyzed)
	assert.Empty(t, ws.History().RelevantChanges("ch1"))
}

func TestWorkspaceWithoutGateway(t *testing.T) {
	ws, err := core.NewWorkspace(aliceBook(), nil)
	require.NoError(t, err)

	_, err = ws.UpdateCharacter(context.Background(), book.Character{ID: "alice"})
	assert.True(t, errors.Is(err, core.ErrNoGateway))
	assert.ErrorIs(t, ws.Reload(context.Background()), core.ErrNoGateway)
}

func TestWorkspaceReplace(t *testing.T) {
	ws, rec := openWorkspace(t)

	other := aliceBook()
	err := ws.Replace(context.Background(), other)
	assert.True(t, core.IsValidationError(err))

	same := ws.Book()
	same.Characters = same.Characters[:1]
	require.NoError(t, ws.Replace(context.Background(), same))
	assert.Len(t, ws.Book().Characters, 1)
	assert.Len(t, rec.ofType(events.TypeBookReplaced), 1)
}
