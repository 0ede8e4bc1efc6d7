// Package transfer copies whole books between the remote backend and the local
// store.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/storage"
)

// DefaultConcurrency bounds parallel entity requests during Push
const DefaultConcurrency = 4

// Remote is a Gateway that can also create whole projects
type Remote interface {
	domain.Gateway
	CreateProject(ctx context.Context, b *book.Book) (string, error)
}

type Option func(*options)

type options struct {
	concurrency int
	prune       bool
	logger      *slog.Logger
}

// WithConcurrency bounds parallel requests during Push
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPrune makes Push delete remote characters and chapters the local copy no
// longer has
func WithPrune(prune bool) Option {
	return func(o *options) { o.prune = prune }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		concurrency: DefaultConcurrency,
		logger:      slog.Default().With("component", "transfer"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PullResult describes a completed Pull
type PullResult struct {
	Book *book.Book
	// BackupKey names the copy of the previous local version, "" if there was none
	BackupKey string
}

// Pull replaces the local copy of bookID with the remote one. The previous local
// copy is backed up first.
func Pull(ctx context.Context, remote domain.Gateway, local *storage.LocalStore, bookID string, opts ...Option) (*PullResult, error) {
	o := buildOptions(opts)

	b, err := remote.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("pulling book %s: %w", bookID, err)
	}

	backup, err := local.Backup(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("pulling book %s: %w", bookID, err)
	}
	if err := local.SaveBook(ctx, b); err != nil {
		return nil, fmt.Errorf("pulling book %s: %w", bookID, err)
	}

	o.logger.Info("book pulled",
		"book_id", bookID,
		"characters", len(b.Characters),
		"chapters", len(b.Chapters),
		"backup", backup)
	return &PullResult{Book: b, BackupKey: backup}, nil
}

// PushResult counts the entity requests of a completed Push
type PushResult struct {
	BookID  string
	Created int
	Updated int
	Deleted int
}

// Push writes the local copy of bookID to the remote backend, creating the
// project when the backend does not know it
func Push(ctx context.Context, local *storage.LocalStore, remote Remote, bookID string, opts ...Option) (*PushResult, error) {
	o := buildOptions(opts)

	b, err := local.LoadBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("pushing book %s: %w", bookID, err)
	}

	existing, err := remote.GetBook(ctx, bookID)
	switch {
	case core.IsNotFound(err):
		id, err := remote.CreateProject(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("pushing book %s: %w", bookID, err)
		}
		b.ID = id
		existing = &book.Book{ID: id}
	case err != nil:
		return nil, fmt.Errorf("pushing book %s: %w", bookID, err)
	default:
		if err := remote.UpdateProject(ctx, b); err != nil {
			return nil, fmt.Errorf("pushing book %s: %w", bookID, err)
		}
	}

	var created, updated, deleted atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, c := range b.Characters {
		g.Go(func() error {
			if existing.CharacterIndex(c.ID) >= 0 {
				updated.Add(1)
				_, err := remote.UpdateCharacter(gctx, b.ID, c)
				return err
			}
			created.Add(1)
			_, err := remote.CreateCharacter(gctx, b.ID, c)
			return err
		})
	}
	for _, ch := range b.Chapters {
		g.Go(func() error {
			if existing.ChapterIndex(ch.ID) >= 0 {
				updated.Add(1)
				_, err := remote.UpdateChapter(gctx, b.ID, ch)
				return err
			}
			created.Add(1)
			_, err := remote.CreateChapter(gctx, b.ID, ch)
			return err
		})
	}

	if o.prune {
		for _, c := range existing.Characters {
			if b.CharacterIndex(c.ID) >= 0 {
				continue
			}
			id := c.ID
			g.Go(func() error {
				deleted.Add(1)
				return remote.DeleteCharacter(gctx, b.ID, id)
			})
		}
		for _, ch := range existing.Chapters {
			if b.ChapterIndex(ch.ID) >= 0 {
				continue
			}
			id := ch.ID
			g.Go(func() error {
				deleted.Add(1)
				return remote.DeleteChapter(gctx, b.ID, id)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pushing book %s: %w", bookID, err)
	}

	if len(b.Chapters) > 0 {
		order := b.ChaptersInReadingOrder()
		ids := make([]string, len(order))
		for i, ch := range order {
			ids[i] = ch.ID
		}
		if err := remote.ReorderChapters(ctx, b.ID, ids); err != nil {
			return nil, fmt.Errorf("pushing chapter order: %w", err)
		}
	}

	res := &PushResult{
		BookID:  b.ID,
		Created: int(created.Load()),
		Updated: int(updated.Load()),
		Deleted: int(deleted.Load()),
	}
	o.logger.Info("book pushed",
		"book_id", res.BookID,
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted)
	return res, nil
}
