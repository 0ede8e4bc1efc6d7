// Package book defines the Book aggregate and the entities it owns.
package book

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh entity identifier
func NewID() string {
	return uuid.New().String()
}

// New creates an empty book with the given title
func New(title, author string) *Book {
	now := time.Now()
	return &Book{
		ID: NewID(),
		Metadata: Metadata{
			Title:  title,
			Author: author,
			Themes: []string{},
		},
		Characters: []Character{},
		Chapters:   []Chapter{},
		PlotPoints: []PlotPoint{},
		Timeline:   Timeline{Events: []TimelineEvent{}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch bumps UpdatedAt. Every child-entity mutation calls it.
func (b *Book) Touch(now time.Time) {
	b.UpdatedAt = now
}

// Clone returns a deep copy of the book
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	out := *b
	out.Metadata = b.Metadata.Clone()
	out.Characters = make([]Character, len(b.Characters))
	for i := range b.Characters {
		out.Characters[i] = b.Characters[i].Clone()
	}
	out.Chapters = make([]Chapter, len(b.Chapters))
	for i := range b.Chapters {
		out.Chapters[i] = b.Chapters[i].Clone()
	}
	out.PlotPoints = make([]PlotPoint, len(b.PlotPoints))
	for i := range b.PlotPoints {
		out.PlotPoints[i] = b.PlotPoints[i].Clone()
	}
	out.Timeline.Events = make([]TimelineEvent, len(b.Timeline.Events))
	for i, ev := range b.Timeline.Events {
		ev.CharacterIDs = slices.Clone(ev.CharacterIDs)
		out.Timeline.Events[i] = ev
	}
	if b.Settings != nil {
		s := *b.Settings
		out.Settings = &s
	}
	return &out
}

// Clone returns a deep copy of the metadata
func (m Metadata) Clone() Metadata {
	m.Themes = slices.Clone(m.Themes)
	return m
}

// Clone returns a deep copy of the character
func (c Character) Clone() Character {
	c.Relationships = slices.Clone(c.Relationships)
	return c
}

// Clone returns a deep copy of the chapter
func (c Chapter) Clone() Chapter {
	c.Sections = slices.Clone(c.Sections)
	c.Versions = slices.Clone(c.Versions)
	return c
}

// Clone returns a deep copy of the plot point
func (p PlotPoint) Clone() PlotPoint {
	p.CharacterIDs = slices.Clone(p.CharacterIDs)
	return p
}

// CharacterIndex returns the position of the character with id, or -1
func (b *Book) CharacterIndex(id string) int {
	return slices.IndexFunc(b.Characters, func(c Character) bool { return c.ID == id })
}

// ChapterIndex returns the position of the chapter with id, or -1
func (b *Book) ChapterIndex(id string) int {
	return slices.IndexFunc(b.Chapters, func(c Chapter) bool { return c.ID == id })
}

// PlotPointIndex returns the position of the plot point with id, or -1
func (b *Book) PlotPointIndex(id string) int {
	return slices.IndexFunc(b.PlotPoints, func(p PlotPoint) bool { return p.ID == id })
}

// Character looks up a character by id
func (b *Book) Character(id string) (Character, bool) {
	i := b.CharacterIndex(id)
	if i < 0 {
		return Character{}, false
	}
	return b.Characters[i], true
}

// Chapter looks up a chapter by id
func (b *Book) Chapter(id string) (Chapter, bool) {
	i := b.ChapterIndex(id)
	if i < 0 {
		return Chapter{}, false
	}
	return b.Chapters[i], true
}

// PlotPoint looks up a plot point by id
func (b *Book) PlotPoint(id string) (PlotPoint, bool) {
	i := b.PlotPointIndex(id)
	if i < 0 {
		return PlotPoint{}, false
	}
	return b.PlotPoints[i], true
}

// ResolvedRelationship pairs an edge with the character it points at
type ResolvedRelationship struct {
	Relationship
	Target Character
}

// ResolvedRelationships returns the character's edges whose target exists in the book.
// Edges to unknown characters are dropped silently.
func (b *Book) ResolvedRelationships(c Character) []ResolvedRelationship {
	out := make([]ResolvedRelationship, 0, len(c.Relationships))
	for _, rel := range c.Relationships {
		target, ok := b.Character(rel.TargetCharacterID)
		if !ok {
			continue
		}
		out = append(out, ResolvedRelationship{Relationship: rel, Target: target})
	}
	return out
}

// ChaptersInReadingOrder returns the chapters sorted by Order. Duplicate orders keep
// their stored relative position.
func (b *Book) ChaptersInReadingOrder() []Chapter {
	out := slices.Clone(b.Chapters)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// TotalWordCount sums the derived word counts of all chapters
func (b *Book) TotalWordCount() int {
	total := 0
	for _, ch := range b.Chapters {
		total += ch.WordCount
	}
	return total
}

// Progress reports the share of the target word count written so far, in [0,1].
// A book without a target reports 0.
func (b *Book) Progress() float64 {
	if b.Metadata.TargetWordCount <= 0 {
		return 0
	}
	p := float64(b.TotalWordCount()) / float64(b.Metadata.TargetWordCount)
	if p > 1 {
		return 1
	}
	return p
}
