package book

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// MaxVersions is how many prior versions a chapter retains
const MaxVersions = 50

// FlattenText returns the chapter's prose: its sections joined in order when it has
// any, the legacy content blob otherwise.
func (c Chapter) FlattenText() string {
	if len(c.Sections) == 0 {
		return c.Content
	}
	sections := slices.Clone(c.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.Content)
	}
	return sb.String()
}

// CountWords counts whitespace separated words
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Recount recomputes the derived word count from the chapter's text
func (c *Chapter) Recount() {
	c.WordCount = CountWords(c.FlattenText())
}

// ProseChanged reports whether other differs from c in content or sections
func (c Chapter) ProseChanged(other Chapter) bool {
	return c.Content != other.Content || !slices.Equal(c.Sections, other.Sections)
}

// RecordVersion appends the pre-change content and title of prev to c's version list,
// evicting the oldest entries beyond MaxVersions.
func (c *Chapter) RecordVersion(prev Chapter, at time.Time) {
	c.Versions = append(c.Versions, Version{
		Content:   prev.FlattenText(),
		Title:     prev.Title,
		Timestamp: at,
	})
	if over := len(c.Versions) - MaxVersions; over > 0 {
		c.Versions = slices.Clone(c.Versions[over:])
	}
}
