package editor

import (
	"slices"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
)

// MetadataEditor edits the book-level descriptive fields. Metadata has no lock.
type MetadataEditor struct {
	*binding[book.Metadata]
	bookID string
}

func newMetadataEditor(ws *core.Workspace, opts []autosave.Option) (*MetadataEditor, error) {
	bookID := ws.ID()
	spec := autosave.Spec[book.Metadata]{
		Kind:  string(book.EntityMetadata),
		ID:    func(book.Metadata) string { return bookID },
		Clone: func(m book.Metadata) book.Metadata { return m.Clone() },
		Fields: []autosave.Field[book.Metadata]{
			autosave.FieldOf("title", func(m *book.Metadata) *string { return &m.Title }),
			autosave.FieldOf("author", func(m *book.Metadata) *string { return &m.Author }),
			autosave.FieldOf("genre", func(m *book.Metadata) *string { return &m.Genre }),
			autosave.FieldOf("synopsis", func(m *book.Metadata) *string { return &m.Synopsis }),
			autosave.FieldOf("themes", func(m *book.Metadata) *[]string { return &m.Themes }),
			autosave.FieldOf("targetWordCount", func(m *book.Metadata) *int { return &m.TargetWordCount }),
			autosave.FieldOf("coverImage", func(m *book.Metadata) *string { return &m.CoverImage }),
		},
		Save: ws.UpdateMetadata,
	}
	lookup := func(string) (book.Metadata, error) {
		return ws.Book().Metadata, nil
	}
	b, err := newBinding(spec, lookup, opts)
	if err != nil {
		return nil, err
	}
	return &MetadataEditor{binding: b, bookID: bookID}, nil
}

// Open selects the book's metadata for editing
func (e *MetadataEditor) Open() error {
	return e.Select(e.bookID)
}

func (e *MetadataEditor) SetTitle(s string) error {
	return e.Update(func(m *book.Metadata) { m.Title = s })
}

func (e *MetadataEditor) SetAuthor(s string) error {
	return e.Update(func(m *book.Metadata) { m.Author = s })
}

func (e *MetadataEditor) SetGenre(s string) error {
	return e.Update(func(m *book.Metadata) { m.Genre = s })
}

func (e *MetadataEditor) SetSynopsis(s string) error {
	return e.Update(func(m *book.Metadata) { m.Synopsis = s })
}

func (e *MetadataEditor) SetThemes(themes []string) error {
	themes = slices.Clone(themes)
	if themes == nil {
		themes = []string{}
	}
	return e.Update(func(m *book.Metadata) { m.Themes = themes })
}

func (e *MetadataEditor) SetTargetWordCount(n int) error {
	return e.Update(func(m *book.Metadata) { m.TargetWordCount = n })
}
