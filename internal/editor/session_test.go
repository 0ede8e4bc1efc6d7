package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	ws      *core.Workspace
	session *Session
	log     *eventLog
}

func newFixture(t *testing.T, opts ...autosave.Option) *fixture {
	t.Helper()
	gw := storage.NewLocalGateway(storage.NewLocalStore(storage.NewFileSystem(t.TempDir())))

	b := book.New("Wonderland", "Carroll")
	b.Characters = []book.Character{
		{ID: "alice", Name: "Alice", Type: book.CharacterMain, Relationships: []book.Relationship{}},
	}
	b.Chapters = []book.Chapter{
		{ID: "ch1", Title: "Down the Rabbit-Hole", Content: "Alice was tired.", WordCount: 3},
	}
	require.NoError(t, gw.UpdateProject(context.Background(), b))

	bus := events.NewBus(nil)
	log := &eventLog{}
	_, err := bus.Subscribe(events.PatternAll, log.handle)
	require.NoError(t, err)

	ws, err := core.Open(context.Background(), gw, b.ID, core.WithBus(bus))
	require.NoError(t, err)

	defaults := []autosave.Option{
		autosave.WithDebounce(30 * time.Millisecond),
		autosave.WithEchoGrace(10 * time.Millisecond),
		autosave.WithLongFormWindow(time.Hour),
	}
	session, err := NewSession(ws, bus, WithAutosave(append(defaults, opts...)...))
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
		bus.Stop()
	})
	return &fixture{ws: ws, session: session, log: log}
}

func TestCharacterEditsCollapseIntoOneSave(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Characters
	require.NoError(t, ed.Select("alice"))

	for _, name := range []string{"A", "Al", "Ali", "Alicia"} {
		require.NoError(t, ed.SetName(name))
	}

	require.Eventually(t, func() bool {
		c, _ := f.ws.Character("alice")
		return c.Name == "Alicia"
	}, time.Second, 10*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 1, f.log.count(events.TypeCharacterUpdated))
	assert.Equal(t, 1, f.log.count(events.TypeImpactDetected), "rename of a character mentioned in a chapter")
	assert.GreaterOrEqual(t, f.log.count(events.TypeSaveStatus), 2)

	status, err := f.session.Status()
	assert.NoError(t, err)
	assert.Equal(t, autosave.StatusSaved, status)
	assert.False(t, ed.Pending())
}

func TestLockedCharacterRejectsEdits(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Characters
	ctx := context.Background()
	require.NoError(t, ed.Select("alice"))

	require.NoError(t, ed.ToggleLock(ctx))
	c, _ := f.ws.Character("alice")
	assert.True(t, c.Locked)
	assert.True(t, ed.Locked())

	err := ed.SetName("Alicia")
	assert.ErrorIs(t, err, core.ErrLocked)

	require.NoError(t, ed.SetLocked(ctx, false))
	require.NoError(t, ed.SetName("Alicia"))
	require.Eventually(t, func() bool {
		c, _ := f.ws.Character("alice")
		return c.Name == "Alicia" && !c.Locked
	}, time.Second, 10*time.Millisecond)
}

func TestExternalUpdateMergesIntoOpenCharacter(t *testing.T) {
	f := newFixture(t, autosave.WithDebounce(time.Hour))
	ed := f.session.Characters
	require.NoError(t, ed.Select("alice"))
	require.NoError(t, ed.SetName("Alicia"))

	other, _ := f.ws.Character("alice")
	other.Biography = "Fell down a rabbit hole."
	_, err := f.ws.UpdateCharacter(context.Background(), other)
	require.NoError(t, err)

	local, ok := ed.Local()
	require.True(t, ok)
	assert.Equal(t, "Alicia", local.Name, "unsaved edit kept")
	assert.Equal(t, "Fell down a rabbit hole.", local.Biography, "external change merged")

	require.NoError(t, ed.Flush(context.Background()))
	c, _ := f.ws.Character("alice")
	assert.Equal(t, "Alicia", c.Name)
	assert.Equal(t, "Fell down a rabbit hole.", c.Biography)
}

func TestDeletedCharacterIsDeselected(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Characters
	require.NoError(t, ed.Select("alice"))
	require.NoError(t, ed.SetName("Alicia"))

	require.NoError(t, f.ws.DeleteCharacter(context.Background(), "alice"))

	assert.Empty(t, ed.Selected())
	_, ok := ed.Local()
	assert.False(t, ok)
	assert.ErrorIs(t, ed.SetName("x"), core.ErrNoSelection)
}

func TestChapterContentWaitsForFlush(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Chapters
	require.NoError(t, ed.Select("ch1"))

	require.NoError(t, ed.SetContent("Alice was beginning to get very tired."))
	assert.Equal(t, 7, ed.WordCount(), "derived count updates with the edit")

	time.Sleep(80 * time.Millisecond)
	c, _ := f.ws.Chapter("ch1")
	assert.Equal(t, "Alice was tired.", c.Content, "long-form edits are not saved on the short debounce")
	assert.True(t, ed.Pending())

	require.NoError(t, ed.Flush(context.Background()))
	c, _ = f.ws.Chapter("ch1")
	assert.Equal(t, "Alice was beginning to get very tired.", c.Content)
	assert.Equal(t, 7, c.WordCount)
	require.Len(t, c.Versions, 1)
	assert.Equal(t, "Alice was tired.", c.Versions[0].Content)
}

func TestChapterTitleSavesOnShortWindow(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Chapters
	require.NoError(t, ed.Select("ch1"))

	require.NoError(t, ed.SetContent("Alice was very tired."))
	require.NoError(t, ed.SetTitle("Down the Hole"))

	require.Eventually(t, func() bool {
		c, _ := f.ws.Chapter("ch1")
		return c.Title == "Down the Hole" && c.Content == "Alice was very tired."
	}, time.Second, 10*time.Millisecond, "the shortest window of the dirty fields wins")
}

func TestChapterSections(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Chapters
	require.NoError(t, ed.Select("ch1"))

	id, err := ed.AddSection("Opening")
	require.NoError(t, err)
	require.NoError(t, ed.SetSectionContent(id, "Once upon a time"))
	assert.Equal(t, 4, ed.WordCount())

	require.NoError(t, f.session.FlushAll(context.Background()))
	c, _ := f.ws.Chapter("ch1")
	require.Len(t, c.Sections, 1)
	assert.Equal(t, "Once upon a time", c.FlattenText())
}

func TestMetadataEditor(t *testing.T) {
	f := newFixture(t)
	ed := f.session.Metadata
	require.NoError(t, ed.Open())

	require.NoError(t, ed.SetGenre("fantasy"))
	require.NoError(t, ed.SetTargetWordCount(27000))

	require.Eventually(t, func() bool {
		m := f.ws.Book().Metadata
		return m.Genre == "fantasy" && m.TargetWordCount == 27000
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.log.count(events.TypeMetadataUpdated))
}

func TestSelectingAnotherEntityCancelsPendingSave(t *testing.T) {
	f := newFixture(t, autosave.WithDebounce(50*time.Millisecond))
	ed := f.session.Characters

	created, err := f.ws.CreateCharacter(context.Background(), book.Character{Name: "Hatter"})
	require.NoError(t, err)

	require.NoError(t, ed.Select("alice"))
	require.NoError(t, ed.SetName("Alicia"))
	require.NoError(t, ed.Select(created.ID))

	time.Sleep(150 * time.Millisecond)
	c, _ := f.ws.Character("alice")
	assert.Equal(t, "Alice", c.Name)
	assert.Zero(t, f.log.count(events.TypeCharacterUpdated))
}
