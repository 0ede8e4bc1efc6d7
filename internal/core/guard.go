package core

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// Fields that never count as an edit of a locked entity: the lock flag itself,
// server timestamps and values derived on commit.
var (
	characterEditable = cmp.Options{
		cmpopts.IgnoreFields(book.Character{}, "Locked", "CreatedAt", "UpdatedAt"),
		cmpopts.EquateEmpty(),
	}
	chapterEditable = cmp.Options{
		cmpopts.IgnoreFields(book.Chapter{}, "Locked", "CreatedAt", "UpdatedAt", "Versions", "WordCount"),
		cmpopts.EquateEmpty(),
	}
)

// characterLocked reports whether next edits a character that stays locked
func characterLocked(prev, next book.Character) bool {
	return prev.Locked && next.Locked && !cmp.Equal(prev, next, characterEditable)
}

// chapterLocked reports whether next edits a chapter that stays locked
func chapterLocked(prev, next book.Chapter) bool {
	return prev.Locked && next.Locked && !cmp.Equal(prev, next, chapterEditable)
}
