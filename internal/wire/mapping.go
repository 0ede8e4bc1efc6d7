package wire

import (
	"slices"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// FromCharacter maps a model character to its wire body
func FromCharacter(bookID string, c book.Character) Character {
	rels := make(Relationships, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		rels = append(rels, Relationship{
			CharacterID: r.TargetCharacterID,
			Type:        r.RelationshipType,
			Description: r.Description,
		})
	}
	return Character{
		ID:               c.ID,
		ProjectID:        bookID,
		Name:             c.Name,
		Type:             string(c.Type),
		QuickDescription: c.Description,
		FullBio:          c.Biography,
		Arc:              c.Arc,
		Age:              c.Age,
		Role:             c.Role,
		Relationships:    rels,
		Locked:           c.Locked,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// ToModel maps a wire character back to the model
func (c Character) ToModel() book.Character {
	rels := make([]book.Relationship, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		rels = append(rels, book.Relationship{
			TargetCharacterID: r.CharacterID,
			RelationshipType:  r.Type,
			Description:       r.Description,
		})
	}
	return book.Character{
		ID:            c.Identity(),
		Name:          c.Name,
		Type:          book.CharacterType(c.Type),
		Description:   c.QuickDescription,
		Biography:     c.FullBio,
		Arc:           c.Arc,
		Age:           c.Age,
		Role:          c.Role,
		Relationships: rels,
		Locked:        c.Locked,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// FromChapter maps a model chapter to its wire body
func FromChapter(bookID string, c book.Chapter) Chapter {
	out := Chapter{
		ID:        c.ID,
		ProjectID: bookID,
		Title:     c.Title,
		Content:   c.Content,
		Order:     c.Order,
		Synopsis:  c.Synopsis,
		Notes:     c.Notes,
		WordCount: c.WordCount,
		Locked:    c.Locked,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Sections != nil {
		out.Sections = make([]Section, len(c.Sections))
		for i, s := range c.Sections {
			out.Sections[i] = Section(s)
		}
	}
	if c.Versions != nil {
		out.Versions = make([]Version, len(c.Versions))
		for i, v := range c.Versions {
			out.Versions[i] = Version(v)
		}
	}
	return out
}

// ToModel maps a wire chapter back to the model
func (c Chapter) ToModel() book.Chapter {
	out := book.Chapter{
		ID:        c.Identity(),
		Title:     c.Title,
		Content:   c.Content,
		Order:     c.Order,
		Synopsis:  c.Synopsis,
		Notes:     c.Notes,
		WordCount: c.WordCount,
		Locked:    c.Locked,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Sections != nil {
		out.Sections = make([]book.Section, len(c.Sections))
		for i, s := range c.Sections {
			out.Sections[i] = book.Section(s)
		}
	}
	if c.Versions != nil {
		out.Versions = make([]book.Version, len(c.Versions))
		for i, v := range c.Versions {
			out.Versions[i] = book.Version(v)
		}
	}
	return out
}

// FromBook maps the project-level fields of b. Characters and chapters travel
// through their own endpoints.
func FromBook(b *book.Book) Project {
	p := Project{
		ID: b.ID,
		Metadata: Metadata{
			Title:           b.Metadata.Title,
			Author:          b.Metadata.Author,
			Genre:           b.Metadata.Genre,
			Synopsis:        b.Metadata.Synopsis,
			Themes:          slices.Clone(b.Metadata.Themes),
			TargetWordCount: b.Metadata.TargetWordCount,
			CoverImage:      b.Metadata.CoverImage,
		},
		PlotPoints: make([]PlotPoint, len(b.PlotPoints)),
		Timeline:   Timeline{Events: make([]TimelineEvent, len(b.Timeline.Events))},
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	for i, pp := range b.PlotPoints {
		p.PlotPoints[i] = PlotPoint{
			ID:           pp.ID,
			Title:        pp.Title,
			Description:  pp.Description,
			ChapterID:    pp.ChapterID,
			CharacterIDs: slices.Clone(pp.CharacterIDs),
			Order:        pp.Order,
			Category:     string(pp.Category),
		}
	}
	for i, ev := range b.Timeline.Events {
		p.Timeline.Events[i] = TimelineEvent(ev)
		p.Timeline.Events[i].CharacterIDs = slices.Clone(ev.CharacterIDs)
	}
	if b.Settings != nil {
		s := *b.Settings
		p.Settings = &s
	}
	return p
}

// ToBook assembles a book aggregate from a project body and its child entities
func (p Project) ToBook(characters []Character, chapters []Chapter) *book.Book {
	b := &book.Book{
		ID: p.Identity(),
		Metadata: book.Metadata{
			Title:           p.Metadata.Title,
			Author:          p.Metadata.Author,
			Genre:           p.Metadata.Genre,
			Synopsis:        p.Metadata.Synopsis,
			Themes:          slices.Clone(p.Metadata.Themes),
			TargetWordCount: p.Metadata.TargetWordCount,
			CoverImage:      p.Metadata.CoverImage,
		},
		Characters: make([]book.Character, 0, len(characters)),
		Chapters:   make([]book.Chapter, 0, len(chapters)),
		PlotPoints: make([]book.PlotPoint, 0, len(p.PlotPoints)),
		Timeline:   book.Timeline{Events: make([]book.TimelineEvent, 0, len(p.Timeline.Events))},
		Settings:   p.Settings,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if b.Metadata.Themes == nil {
		b.Metadata.Themes = []string{}
	}
	for _, c := range characters {
		b.Characters = append(b.Characters, c.ToModel())
	}
	for _, c := range chapters {
		b.Chapters = append(b.Chapters, c.ToModel())
	}
	for _, pp := range p.PlotPoints {
		b.PlotPoints = append(b.PlotPoints, book.PlotPoint{
			ID:           pp.ID,
			Title:        pp.Title,
			Description:  pp.Description,
			ChapterID:    pp.ChapterID,
			CharacterIDs: slices.Clone(pp.CharacterIDs),
			Order:        pp.Order,
			Category:     book.PlotCategory(pp.Category),
		})
	}
	for _, ev := range p.Timeline.Events {
		ev.CharacterIDs = slices.Clone(ev.CharacterIDs)
		b.Timeline.Events = append(b.Timeline.Events, book.TimelineEvent(ev))
	}
	return b
}
