package impact

import (
	"slices"
	"strings"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// Resolve returns the ids of entities in b that reference the entity (kind, id) in its
// current state. Text references are found by case-insensitive substring search, so
// nicknames are missed and coincidental matches are reported. The result keeps book
// order and may contain duplicates.
func Resolve(b *book.Book, kind book.EntityType, id string) []string {
	if b == nil {
		return nil
	}
	switch kind {
	case book.EntityCharacter:
		c, ok := b.Character(id)
		if !ok {
			return nil
		}
		return ResolveCharacter(b, c)
	case book.EntityChapter:
		ch, ok := b.Chapter(id)
		if !ok {
			return nil
		}
		return ResolveChapter(b, ch)
	case book.EntityPlotPoint:
		p, ok := b.PlotPoint(id)
		if !ok {
			return nil
		}
		return ResolvePlotPoint(p)
	}
	return nil
}

// ResolveCharacter resolves dependents of c as given, which need not be the state
// stored in b. Snapshots resolve with the pre-change state so a rename still finds
// chapters that mention the old name.
func ResolveCharacter(b *book.Book, c book.Character) []string {
	var deps []string
	for _, ch := range b.Chapters {
		if mentions(ch.FlattenText(), c.Name) {
			deps = append(deps, ch.ID)
		}
	}
	for _, other := range b.Characters {
		targets := slices.ContainsFunc(other.Relationships, func(r book.Relationship) bool {
			return r.TargetCharacterID == c.ID
		})
		if targets {
			deps = append(deps, other.ID)
		}
	}
	return deps
}

// ResolveChapter returns the characters whose names appear in the chapter's text
func ResolveChapter(b *book.Book, ch book.Chapter) []string {
	text := ch.FlattenText()
	var deps []string
	for _, c := range b.Characters {
		if mentions(text, c.Name) {
			deps = append(deps, c.ID)
		}
	}
	return deps
}

// ResolvePlotPoint returns the chapter and characters a plot point references directly
func ResolvePlotPoint(p book.PlotPoint) []string {
	var deps []string
	if p.ChapterID != "" {
		deps = append(deps, p.ChapterID)
	}
	return append(deps, p.CharacterIDs...)
}

// ResolveState dispatches on the concrete entity value
func ResolveState(b *book.Book, state any) []string {
	if b == nil {
		return nil
	}
	switch v := state.(type) {
	case book.Character:
		return ResolveCharacter(b, v)
	case book.Chapter:
		return ResolveChapter(b, v)
	case book.PlotPoint:
		return ResolvePlotPoint(v)
	}
	return nil
}

func mentions(text, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(name))
}
