package impact

import (
	"fmt"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// Analyze classifies the effects of a change on the rest of the book. The result is
// advisory only; an empty slice means no rule applies.
//
// Rules: a character rename is high severity for chapters, a biography or description
// edit is medium for chapters, a chapter content edit is medium for characters and a
// chapter title edit is low for the plot points referencing it. Reordering,
// relationship edits and plot point edits produce nothing.
func Analyze(b *book.Book, ch Change) []Impact {
	switch before := ch.Before.(type) {
	case book.Character:
		after, ok := ch.After.(book.Character)
		if !ok {
			return nil
		}
		return analyzeCharacter(b, before, after, ch.Dependencies)
	case book.Chapter:
		after, ok := ch.After.(book.Chapter)
		if !ok {
			return nil
		}
		return analyzeChapter(b, before, after, ch.Dependencies)
	}
	return nil
}

func analyzeCharacter(b *book.Book, before, after book.Character, deps []string) []Impact {
	chapters := filterKind(b, deps, book.EntityChapter)
	impacts := []Impact{}

	if before.Name != after.Name {
		impacts = append(impacts, Impact{
			TargetType: book.EntityChapter,
			TargetIDs:  chapters,
			Severity:   SeverityHigh,
			Description: fmt.Sprintf("Character renamed from %q to %q; chapters may still use the old name",
				before.Name, after.Name),
			SuggestedActions: []string{
				fmt.Sprintf("Review all chapters for mentions of %q", before.Name),
				fmt.Sprintf("Update mentions to %q where appropriate", after.Name),
				"Check dialogue and narration for nicknames derived from the old name",
			},
		})
	}

	if before.Biography != after.Biography || before.Description != after.Description {
		impacts = append(impacts, Impact{
			TargetType:  book.EntityChapter,
			TargetIDs:   chapters,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("Background of %q changed; earlier chapters may contradict it", after.Name),
			SuggestedActions: []string{
				"Review chapters featuring this character for consistency",
				"Check that described traits and history still match",
			},
		})
	}
	return impacts
}

func analyzeChapter(b *book.Book, before, after book.Chapter, deps []string) []Impact {
	impacts := []Impact{}

	if before.ProseChanged(after) {
		impacts = append(impacts, Impact{
			TargetType:  book.EntityCharacter,
			TargetIDs:   filterKind(b, deps, book.EntityCharacter),
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("Content of chapter %q changed; character arcs may be affected", after.Title),
			SuggestedActions: []string{
				"Review character arcs for continuity with the new content",
				"Check the timeline for events moved or removed by this edit",
			},
		})
	}

	if before.Title != after.Title {
		var plotPoints []string
		if b != nil {
			for _, p := range b.PlotPoints {
				if p.ChapterID == after.ID {
					plotPoints = append(plotPoints, p.ID)
				}
			}
		}
		impacts = append(impacts, Impact{
			TargetType:  book.EntityPlotPoint,
			TargetIDs:   plotPoints,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("Chapter retitled from %q to %q", before.Title, after.Title),
			SuggestedActions: []string{
				"Update plot point references to the new chapter title",
			},
		})
	}
	return impacts
}

// filterKind keeps the ids in deps that name an entity of kind in b, dropping
// duplicates and preserving order.
func filterKind(b *book.Book, deps []string, kind book.EntityType) []string {
	if b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(deps))
	var out []string
	for _, id := range deps {
		if _, dup := seen[id]; dup {
			continue
		}
		var ok bool
		switch kind {
		case book.EntityChapter:
			ok = b.ChapterIndex(id) >= 0
		case book.EntityCharacter:
			ok = b.CharacterIndex(id) >= 0
		case book.EntityPlotPoint:
			ok = b.PlotPointIndex(id) >= 0
		}
		if ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
