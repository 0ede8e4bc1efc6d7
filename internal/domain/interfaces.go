package domain

import (
	"context"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// Gateway persists book entities. It is implemented by the REST client for the
// remote backend and by the local store for offline mode.
type Gateway interface {
	// GetBook loads a whole book aggregate
	GetBook(ctx context.Context, bookID string) (*book.Book, error)

	// UpdateProject persists book-level fields: metadata, plot points, timeline, settings
	UpdateProject(ctx context.Context, b *book.Book) error

	CreateCharacter(ctx context.Context, bookID string, c book.Character) (book.Character, error)
	UpdateCharacter(ctx context.Context, bookID string, c book.Character) (book.Character, error)
	DeleteCharacter(ctx context.Context, bookID, characterID string) error

	CreateChapter(ctx context.Context, bookID string, c book.Chapter) (book.Chapter, error)
	UpdateChapter(ctx context.Context, bookID string, c book.Chapter) (book.Chapter, error)
	DeleteChapter(ctx context.Context, bookID, chapterID string) error

	// ReorderChapters assigns Order = position for each id in chapterIDs
	ReorderChapters(ctx context.Context, bookID string, chapterIDs []string) error
}

// Storage is a flat key/value byte store
type Storage interface {
	// Save stores data with the given key
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves data by key
	Load(ctx context.Context, key string) ([]byte, error)

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) bool

	// Delete removes data by key
	Delete(ctx context.Context, key string) error

	// List returns all keys matching a glob pattern
	List(ctx context.Context, pattern string) ([]string, error)
}
