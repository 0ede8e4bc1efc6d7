package history

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/impact"
)

type staticSource struct {
	b *book.Book
}

func (s staticSource) Book() *book.Book { return s.b.Clone() }

// steppingClock advances one second per call so snapshot timestamps are distinct
func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func aliceBook() *book.Book {
	b := book.New("Draft", "Me")
	b.Characters = []book.Character{{ID: "a", Name: "Alice", Biography: "bio"}}
	b.Chapters = []book.Chapter{{ID: "c1", Title: "One", Content: "Alice walked home."}}
	return b
}

func TestCreateAndUpdateSnapshot(t *testing.T) {
	b := aliceBook()
	log := New(b.ID, staticSource{b}, WithClock(steppingClock()))

	before := b.Characters[0]
	id, err := log.CreateSnapshot(book.EntityCharacter, "a", before)
	require.NoError(t, err)

	snap, ok := log.Get(id)
	require.True(t, ok)
	assert.Equal(t, []string{"c1"}, snap.Dependencies)
	assert.False(t, snap.Analyzed)

	after := before
	after.Name = "Alicia"
	impacts, err := log.UpdateSnapshot(id, &after)
	require.NoError(t, err)
	require.Len(t, impacts, 1)
	assert.Equal(t, impact.SeverityHigh, impacts[0].Severity)

	_, err = log.UpdateSnapshot(id, after)
	assert.True(t, errors.Is(err, ErrSnapshotSealed))

	_, err = log.UpdateSnapshot("missing", after)
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestRenameSnapshotStaysRelevantToChapter(t *testing.T) {
	b := aliceBook()
	log := New(b.ID, staticSource{b}, WithClock(steppingClock()))

	before := b.Characters[0]
	id, err := log.CreateSnapshot(book.EntityCharacter, "a", before)
	require.NoError(t, err)

	b.Characters[0].Name = "Bob"
	_, err = log.UpdateSnapshot(id, b.Characters[0])
	require.NoError(t, err)

	relevant := log.RelevantChanges("c1")
	require.Len(t, relevant, 1)
	assert.Equal(t, id, relevant[0].ID)
}

func TestUncommittedSnapshotNotRelevant(t *testing.T) {
	b := aliceBook()
	log := New(b.ID, staticSource{b}, WithClock(steppingClock()))

	// the save behind this snapshot failed, so it is never sealed
	failed, err := log.CreateSnapshot(book.EntityCharacter, "a", b.Characters[0])
	require.NoError(t, err)
	assert.Empty(t, log.RelevantChanges("c1"))

	id, err := log.CreateSnapshot(book.EntityCharacter, "a", b.Characters[0])
	require.NoError(t, err)
	_, err = log.UpdateSnapshot(id, b.Characters[0])
	require.NoError(t, err)

	relevant := log.RelevantChanges("c1")
	require.Len(t, relevant, 1)
	assert.Equal(t, id, relevant[0].ID)

	// still listed in the entity's own history
	assert.Len(t, log.EntityHistory("a"), 2)
	_, ok := log.Get(failed)
	assert.True(t, ok)
}

func TestHistoryNewestFirst(t *testing.T) {
	b := aliceBook()
	log := New(b.ID, staticSource{b}, WithClock(steppingClock()))

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := log.CreateSnapshot(book.EntityCharacter, "a", b.Characters[0])
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := log.CreateSnapshot(book.EntityChapter, "c1", b.Chapters[0])
	require.NoError(t, err)

	hist := log.EntityHistory("a")
	require.Len(t, hist, 3)
	assert.Equal(t, ids[2], hist[0].ID)
	assert.Equal(t, ids[0], hist[2].ID)
	assert.Len(t, log.All(), 4)
}

func TestCleanupKeepsMostRecent(t *testing.T) {
	b := aliceBook()
	log := New(b.ID, staticSource{b}, WithClock(steppingClock()))

	var ids []string
	for i := 0; i < DefaultMaxEntries+5; i++ {
		id, err := log.CreateSnapshot(book.EntityChapter, fmt.Sprintf("c%d", i), b.Chapters[0])
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, DefaultMaxEntries, log.Len())
	_, ok := log.Get(ids[4])
	assert.False(t, ok, "oldest snapshots are dropped")
	_, ok = log.Get(ids[5])
	assert.True(t, ok)
	assert.Zero(t, log.Cleanup())
}

func TestExportImport(t *testing.T) {
	b := aliceBook()
	src := New(b.ID, staticSource{b}, WithClock(steppingClock()))
	id, err := src.CreateSnapshot(book.EntityCharacter, "a", b.Characters[0])
	require.NoError(t, err)
	after := b.Characters[0]
	after.Biography = "new"
	_, err = src.UpdateSnapshot(id, after)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst := New(b.ID, staticSource{b})
	require.NoError(t, dst.Import(bytes.NewReader(buf.Bytes())))
	want, got := src.All(), dst.All()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Dependencies, got[i].Dependencies)
		assert.Equal(t, want[i].Impact, got[i].Impact)
		assert.JSONEq(t, string(want[i].PreviousState), string(got[i].PreviousState))
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}

	other := New("another-book", staticSource{b})
	err = other.Import(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, ErrBookMismatch))
	assert.Zero(t, other.Len())
}
