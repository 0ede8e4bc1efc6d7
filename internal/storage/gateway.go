package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
)

var _ domain.Gateway = (*LocalGateway)(nil)

// LocalGateway is the offline Gateway: every mutation rewrites the whole book
// document in the LocalStore. Ids for new entities are generated locally.
type LocalGateway struct {
	mu    sync.Mutex
	store *LocalStore
	now   func() time.Time
}

func NewLocalGateway(store *LocalStore) *LocalGateway {
	return &LocalGateway{store: store, now: time.Now}
}

func (g *LocalGateway) GetBook(ctx context.Context, bookID string) (*book.Book, error) {
	return g.store.LoadBook(ctx, bookID)
}

// UpdateProject replaces the book-level fields, keeping the stored characters
// and chapters. A book not stored yet is created.
func (g *LocalGateway) UpdateProject(ctx context.Context, b *book.Book) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored, err := g.store.LoadBook(ctx, b.ID)
	if core.IsNotFound(err) {
		return g.store.SaveBook(ctx, b)
	}
	if err != nil {
		return err
	}

	next := b.Clone()
	next.Characters = stored.Characters
	next.Chapters = stored.Chapters
	return g.store.SaveBook(ctx, next)
}

func (g *LocalGateway) CreateCharacter(ctx context.Context, bookID string, c book.Character) (book.Character, error) {
	var out book.Character
	err := g.mutate(ctx, bookID, func(b *book.Book) error {
		if c.ID == "" {
			c.ID = book.NewID()
		}
		if b.CharacterIndex(c.ID) >= 0 {
			return core.NewValidationError("character", "id", "already exists", c.ID)
		}
		g.stamp(&c.CreatedAt, &c.UpdatedAt)
		b.Characters = append(b.Characters, c.Clone())
		out = c
		return nil
	})
	return out, err
}

func (g *LocalGateway) UpdateCharacter(ctx context.Context, bookID string, c book.Character) (book.Character, error) {
	var out book.Character
	err := g.mutate(ctx, bookID, func(b *book.Book) error {
		i := b.CharacterIndex(c.ID)
		if i < 0 {
			return core.NewNotFoundError("character", c.ID)
		}
		c.CreatedAt = b.Characters[i].CreatedAt
		c.UpdatedAt = g.now()
		b.Characters[i] = c.Clone()
		out = c
		return nil
	})
	return out, err
}

func (g *LocalGateway) DeleteCharacter(ctx context.Context, bookID, characterID string) error {
	return g.mutate(ctx, bookID, func(b *book.Book) error {
		i := b.CharacterIndex(characterID)
		if i < 0 {
			return core.NewNotFoundError("character", characterID)
		}
		b.Characters = append(b.Characters[:i], b.Characters[i+1:]...)
		return nil
	})
}

func (g *LocalGateway) CreateChapter(ctx context.Context, bookID string, c book.Chapter) (book.Chapter, error) {
	var out book.Chapter
	err := g.mutate(ctx, bookID, func(b *book.Book) error {
		if c.ID == "" {
			c.ID = book.NewID()
		}
		if b.ChapterIndex(c.ID) >= 0 {
			return core.NewValidationError("chapter", "id", "already exists", c.ID)
		}
		g.stamp(&c.CreatedAt, &c.UpdatedAt)
		b.Chapters = append(b.Chapters, c.Clone())
		out = c
		return nil
	})
	return out, err
}

func (g *LocalGateway) UpdateChapter(ctx context.Context, bookID string, c book.Chapter) (book.Chapter, error) {
	var out book.Chapter
	err := g.mutate(ctx, bookID, func(b *book.Book) error {
		i := b.ChapterIndex(c.ID)
		if i < 0 {
			return core.NewNotFoundError("chapter", c.ID)
		}
		c.CreatedAt = b.Chapters[i].CreatedAt
		c.UpdatedAt = g.now()
		b.Chapters[i] = c.Clone()
		out = c
		return nil
	})
	return out, err
}

func (g *LocalGateway) DeleteChapter(ctx context.Context, bookID, chapterID string) error {
	return g.mutate(ctx, bookID, func(b *book.Book) error {
		i := b.ChapterIndex(chapterID)
		if i < 0 {
			return core.NewNotFoundError("chapter", chapterID)
		}
		b.Chapters = append(b.Chapters[:i], b.Chapters[i+1:]...)
		return nil
	})
}

func (g *LocalGateway) ReorderChapters(ctx context.Context, bookID string, chapterIDs []string) error {
	return g.mutate(ctx, bookID, func(b *book.Book) error {
		for pos, id := range chapterIDs {
			i := b.ChapterIndex(id)
			if i < 0 {
				return core.NewNotFoundError("chapter", id)
			}
			b.Chapters[i].Order = pos
		}
		return nil
	})
}

func (g *LocalGateway) mutate(ctx context.Context, bookID string, fn func(*book.Book) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.store.LoadBook(ctx, bookID)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	b.Touch(g.now())
	if err := g.store.SaveBook(ctx, b); err != nil {
		return fmt.Errorf("persisting book %s: %w", bookID, err)
	}
	return nil
}

func (g *LocalGateway) stamp(created, updated *time.Time) {
	now := g.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
