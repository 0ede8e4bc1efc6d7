package editor

import (
	"context"
	"slices"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
)

// ChapterEditor edits one chapter at a time. Prose fields wait for the long-form
// window or an explicit Flush; the rest save after the short debounce.
type ChapterEditor struct {
	*binding[book.Chapter]
}

func newChapterEditor(ws *core.Workspace, opts []autosave.Option) (*ChapterEditor, error) {
	spec := autosave.Spec[book.Chapter]{
		Kind:  string(book.EntityChapter),
		ID:    func(c book.Chapter) string { return c.ID },
		Clone: func(c book.Chapter) book.Chapter { return c.Clone() },
		Fields: []autosave.Field[book.Chapter]{
			autosave.FieldOf("title", func(c *book.Chapter) *string { return &c.Title }),
			autosave.FieldOf("synopsis", func(c *book.Chapter) *string { return &c.Synopsis }),
			autosave.FieldOf("notes", func(c *book.Chapter) *string { return &c.Notes }),
			autosave.LongFormOf("content", func(c *book.Chapter) *string { return &c.Content }),
			autosave.LongFormOf("sections", func(c *book.Chapter) *[]book.Section { return &c.Sections }),
		},
		Locked:    func(c book.Chapter) bool { return c.Locked },
		SetLocked: func(c *book.Chapter, locked bool) { c.Locked = locked },
		Derive:    func(c *book.Chapter) { c.Recount() },
		Save:      ws.UpdateChapter,
	}
	b, err := newBinding(spec, ws.Chapter, opts)
	if err != nil {
		return nil, err
	}
	return &ChapterEditor{binding: b}, nil
}

func (e *ChapterEditor) SetTitle(title string) error {
	return e.Update(func(c *book.Chapter) { c.Title = title })
}

func (e *ChapterEditor) SetSynopsis(s string) error {
	return e.Update(func(c *book.Chapter) { c.Synopsis = s })
}

func (e *ChapterEditor) SetNotes(s string) error {
	return e.Update(func(c *book.Chapter) { c.Notes = s })
}

// SetContent replaces the legacy single-blob prose
func (e *ChapterEditor) SetContent(s string) error {
	return e.Update(func(c *book.Chapter) { c.Content = s })
}

// SetSectionContent replaces the prose of one section. Unknown ids are ignored.
func (e *ChapterEditor) SetSectionContent(sectionID, content string) error {
	return e.Update(func(c *book.Chapter) {
		i := slices.IndexFunc(c.Sections, func(s book.Section) bool { return s.ID == sectionID })
		if i < 0 {
			return
		}
		c.Sections = slices.Clone(c.Sections)
		c.Sections[i].Content = content
	})
}

// AddSection appends a section after the existing ones and returns its id
func (e *ChapterEditor) AddSection(title string) (string, error) {
	id := book.NewID()
	err := e.Update(func(c *book.Chapter) {
		order := 0
		for _, s := range c.Sections {
			if s.Order >= order {
				order = s.Order + 1
			}
		}
		c.Sections = append(slices.Clone(c.Sections), book.Section{ID: id, Title: title, Order: order})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// WordCount is the derived count of the local copy
func (e *ChapterEditor) WordCount() int {
	c, _ := e.Local()
	return c.WordCount
}

func (e *ChapterEditor) ToggleLock(ctx context.Context) error {
	return e.rec.ToggleLock(ctx)
}

func (e *ChapterEditor) SetLocked(ctx context.Context, locked bool) error {
	return e.rec.SetLocked(ctx, locked)
}

func (e *ChapterEditor) Locked() bool {
	return e.rec.Locked()
}
