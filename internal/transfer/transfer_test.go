package transfer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scribe/internal/client"
	"github.com/dotcommander/scribe/internal/client/clienttest"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/storage"
	"github.com/dotcommander/scribe/internal/wire"
)

const token = "secret"

func setup(t *testing.T) (*clienttest.Backend, *client.Client, *storage.LocalStore) {
	t.Helper()
	backend := clienttest.NewBackend(token)
	t.Cleanup(backend.Close)

	c := client.NewClient(backend.URL(), client.WithToken(token), client.WithTimeout(2*time.Second))
	local := storage.NewLocalStore(storage.NewFileSystem(t.TempDir()))
	return backend, c, local
}

func seed(backend *clienttest.Backend) {
	backend.PutProject(wire.Project{ID: "b1", Metadata: wire.Metadata{Title: "Wonderland", Author: "Carroll"}})
	backend.PutCharacter(wire.Character{ID: "c1", ProjectID: "b1", Name: "Alice", Type: "main",
		Relationships: wire.Relationships{{CharacterID: "c2", Type: "friend"}}})
	backend.PutCharacter(wire.Character{ID: "c2", ProjectID: "b1", Name: "Hatter"})
	backend.PutChapter(wire.Chapter{ID: "ch1", ProjectID: "b1", Title: "Down the Rabbit Hole", Content: "Alice fell.", Order: 0})
	backend.PutChapter(wire.Chapter{ID: "ch2", ProjectID: "b1", Title: "Pool of Tears", Order: 1})
}

func TestPull(t *testing.T) {
	backend, c, local := setup(t)
	seed(backend)
	ctx := context.Background()

	res, err := Pull(ctx, c, local, "b1")
	require.NoError(t, err)
	assert.Empty(t, res.BackupKey, "nothing stored locally yet")
	assert.Len(t, res.Book.Characters, 2)

	b, err := local.LoadBook(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Wonderland", b.Metadata.Title)
	assert.Len(t, b.Chapters, 2)

	res, err = Pull(ctx, c, local, "b1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.BackupKey)

	backups, err := local.Backups(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{res.BackupKey}, backups)
}

func TestPullMissingBook(t *testing.T) {
	_, c, local := setup(t)

	_, err := Pull(context.Background(), c, local, "nope")
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
	assert.False(t, local.HasBook(context.Background(), "nope"))
}

func TestPushNewBook(t *testing.T) {
	backend, c, local := setup(t)
	ctx := context.Background()

	b := book.New("Sylvie and Bruno", "Carroll")
	b.Characters = []book.Character{
		{ID: "sylvie", Name: "Sylvie", Type: book.CharacterMain, Relationships: []book.Relationship{}},
		{ID: "bruno", Name: "Bruno", Relationships: []book.Relationship{{TargetCharacterID: "sylvie", RelationshipType: "sibling"}}},
	}
	b.Chapters = []book.Chapter{
		{ID: "two", Title: "Second", Order: 5},
		{ID: "one", Title: "First", Order: 1},
	}
	require.NoError(t, local.SaveBook(ctx, b))

	res, err := Push(ctx, local, c, b.ID, WithConcurrency(2))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Zero(t, res.Updated)

	p, ok := backend.Project(b.ID)
	require.True(t, ok)
	assert.Equal(t, "Sylvie and Bruno", p.Metadata.Title)

	bruno, ok := backend.Character("bruno")
	require.True(t, ok)
	require.Len(t, bruno.Relationships, 1)
	assert.Equal(t, "sylvie", bruno.Relationships[0].CharacterID)

	first, _ := backend.Chapter("one")
	second, _ := backend.Chapter("two")
	assert.Equal(t, 0, first.Order)
	assert.Equal(t, 1, second.Order)
}

func TestPushExistingBookWithPrune(t *testing.T) {
	backend, c, local := setup(t)
	seed(backend)
	ctx := context.Background()

	_, err := Pull(ctx, c, local, "b1")
	require.NoError(t, err)

	b, err := local.LoadBook(ctx, "b1")
	require.NoError(t, err)
	b.Characters = b.Characters[:1]
	b.Characters[0].Name = "Alicia"
	b.Chapters = append(b.Chapters, book.Chapter{ID: "ch3", Title: "A Caucus-Race", Order: 2})
	require.NoError(t, local.SaveBook(ctx, b))

	res, err := Push(ctx, local, c, "b1", WithPrune(true))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.Updated)
	assert.Equal(t, 1, res.Deleted)

	alice, ok := backend.Character(b.Characters[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Alicia", alice.Name)
	_, ok = backend.Character("c2")
	assert.False(t, ok, "pruned")
	_, ok = backend.Chapter("ch3")
	assert.True(t, ok)
}

func TestPushWithoutPruneKeepsRemoteExtras(t *testing.T) {
	backend, c, local := setup(t)
	seed(backend)
	ctx := context.Background()

	_, err := Pull(ctx, c, local, "b1")
	require.NoError(t, err)
	b, _ := local.LoadBook(ctx, "b1")
	b.Characters = b.Characters[:1]
	require.NoError(t, local.SaveBook(ctx, b))

	res, err := Push(ctx, local, c, "b1")
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	_, ok := backend.Character("c2")
	assert.True(t, ok)
}

func TestPushServerFailure(t *testing.T) {
	backend, c, local := setup(t)
	seed(backend)
	ctx := context.Background()

	_, err := Pull(ctx, c, local, "b1")
	require.NoError(t, err)

	backend.FailNext(http.MethodPut, 1)
	_, err = Push(ctx, local, c, "b1")
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
}
