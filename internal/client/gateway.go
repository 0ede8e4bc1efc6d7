package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/wire"
)

var _ domain.Gateway = (*Client)(nil)

// ProjectSummary is one entry of the project listing
type ProjectSummary struct {
	ID        string
	Title     string
	Author    string
	UpdatedAt time.Time
}

// ListProjects returns the projects visible to the current token
func (c *Client) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	var projects []wire.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectSummary{
			ID:        p.Identity(),
			Title:     p.Metadata.Title,
			Author:    p.Metadata.Author,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

// GetBook fetches the project and its characters and chapters concurrently
func (c *Client) GetBook(ctx context.Context, bookID string) (*book.Book, error) {
	var (
		project    wire.Project
		characters []wire.Character
		chapters   []wire.Chapter
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.do(gctx, http.MethodGet, itemPath("projects", bookID), nil, &project)
	})
	g.Go(func() error {
		return c.do(gctx, http.MethodGet, scopedPath("characters", bookID), nil, &characters)
	})
	g.Go(func() error {
		return c.do(gctx, http.MethodGet, scopedPath("chapters", bookID), nil, &chapters)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading book %s: %w", bookID, err)
	}

	b := project.ToBook(characters, chapters)
	if b.ID == "" {
		b.ID = bookID
	}
	if err := book.ValidateStructure(b); err != nil {
		return nil, fmt.Errorf("loading book %s: %w", bookID, err)
	}
	return b, nil
}

// CreateProject creates the project-level document for b and returns the id the
// backend assigned
func (c *Client) CreateProject(ctx context.Context, b *book.Book) (string, error) {
	body := wire.FromBook(b)
	if err := wire.Validate("project", body); err != nil {
		return "", err
	}
	var created wire.Project
	if err := c.do(ctx, http.MethodPost, "/projects", body, &created); err != nil {
		return "", fmt.Errorf("creating project: %w", err)
	}
	if id := created.Identity(); id != "" {
		return id, nil
	}
	return b.ID, nil
}

func (c *Client) UpdateProject(ctx context.Context, b *book.Book) error {
	body := wire.FromBook(b)
	if err := wire.Validate("project", body); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPut, itemPath("projects", b.ID), body, nil); err != nil {
		return fmt.Errorf("updating project %s: %w", b.ID, err)
	}
	return nil
}

func (c *Client) DeleteProject(ctx context.Context, bookID string) error {
	if err := c.do(ctx, http.MethodDelete, itemPath("projects", bookID), nil, nil); err != nil {
		return fmt.Errorf("deleting project %s: %w", bookID, err)
	}
	return nil
}

func (c *Client) CreateCharacter(ctx context.Context, bookID string, ch book.Character) (book.Character, error) {
	body := wire.FromCharacter(bookID, ch)
	if err := wire.Validate("character", body); err != nil {
		return book.Character{}, err
	}
	var created wire.Character
	if err := c.do(ctx, http.MethodPost, "/characters", body, &created); err != nil {
		return book.Character{}, fmt.Errorf("creating character: %w", err)
	}
	return orCharacter(created, body), nil
}

func (c *Client) UpdateCharacter(ctx context.Context, bookID string, ch book.Character) (book.Character, error) {
	body := wire.FromCharacter(bookID, ch)
	if err := wire.Validate("character", body); err != nil {
		return book.Character{}, err
	}
	var updated wire.Character
	if err := c.do(ctx, http.MethodPut, itemPath("characters", ch.ID), body, &updated); err != nil {
		return book.Character{}, fmt.Errorf("updating character %s: %w", ch.ID, err)
	}
	return orCharacter(updated, body), nil
}

func (c *Client) DeleteCharacter(ctx context.Context, bookID, characterID string) error {
	if err := c.do(ctx, http.MethodDelete, itemPath("characters", characterID), nil, nil); err != nil {
		return fmt.Errorf("deleting character %s: %w", characterID, err)
	}
	return nil
}

func (c *Client) CreateChapter(ctx context.Context, bookID string, ch book.Chapter) (book.Chapter, error) {
	body := wire.FromChapter(bookID, ch)
	if err := wire.Validate("chapter", body); err != nil {
		return book.Chapter{}, err
	}
	var created wire.Chapter
	if err := c.do(ctx, http.MethodPost, "/chapters", body, &created); err != nil {
		return book.Chapter{}, fmt.Errorf("creating chapter: %w", err)
	}
	return orChapter(created, body), nil
}

func (c *Client) UpdateChapter(ctx context.Context, bookID string, ch book.Chapter) (book.Chapter, error) {
	body := wire.FromChapter(bookID, ch)
	if err := wire.Validate("chapter", body); err != nil {
		return book.Chapter{}, err
	}
	var updated wire.Chapter
	if err := c.do(ctx, http.MethodPut, itemPath("chapters", ch.ID), body, &updated); err != nil {
		return book.Chapter{}, fmt.Errorf("updating chapter %s: %w", ch.ID, err)
	}
	return orChapter(updated, body), nil
}

func (c *Client) DeleteChapter(ctx context.Context, bookID, chapterID string) error {
	if err := c.do(ctx, http.MethodDelete, itemPath("chapters", chapterID), nil, nil); err != nil {
		return fmt.Errorf("deleting chapter %s: %w", chapterID, err)
	}
	return nil
}

func (c *Client) ReorderChapters(ctx context.Context, bookID string, chapterIDs []string) error {
	body := wire.ReorderRequest{ProjectID: bookID, ChapterIDs: chapterIDs}
	if err := wire.Validate("reorder", body); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPut, "/chapters/reorder", body, nil); err != nil {
		return fmt.Errorf("reordering chapters: %w", err)
	}
	return nil
}

// orCharacter prefers the backend's echo and falls back to what was sent when
// the response carried no entity
func orCharacter(resp, sent wire.Character) book.Character {
	if resp.Identity() == "" {
		return sent.ToModel()
	}
	return resp.ToModel()
}

func orChapter(resp, sent wire.Chapter) book.Chapter {
	if resp.Identity() == "" {
		return sent.ToModel()
	}
	return resp.ToModel()
}
