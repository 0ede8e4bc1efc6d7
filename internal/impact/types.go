// Package impact finds which entities of a book reference a given entity and turns a
// before/after pair into advisory notes for the author. Nothing here mutates a book.
package impact

import "github.com/dotcommander/scribe/internal/domain/book"

// Severity grades how likely a change is to need follow-up work elsewhere
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Impact is an advisory note that a change may require attention to other entities
type Impact struct {
	TargetType       book.EntityType `json:"entityType"`
	TargetIDs        []string        `json:"entityIds"`
	Severity         Severity        `json:"severity"`
	Description      string          `json:"description"`
	SuggestedActions []string        `json:"suggestedActions"`
}

// Change is a committed edit of one entity. Before and After hold entity values
// (book.Character, book.Chapter, book.PlotPoint or book.Metadata).
type Change struct {
	EntityType   book.EntityType
	EntityID     string
	Before       any
	After        any
	Dependencies []string
}

// HighestSeverity returns the most severe level present, or "" for no impacts
func HighestSeverity(impacts []Impact) Severity {
	var top Severity
	for _, im := range impacts {
		if rank(im.Severity) > rank(top) {
			top = im.Severity
		}
	}
	return top
}

func rank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}
