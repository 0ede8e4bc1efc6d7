package main

import (
	"testing"

	"github.com/dotcommander/scribe/internal/domain/book"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    book.EntityType
		wantErr bool
	}{
		{"character", book.EntityCharacter, false},
		{"Chapter", book.EntityChapter, false},
		{"plotpoint", book.EntityPlotPoint, false},
		{"metadata", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReferenceProblems(t *testing.T) {
	b := book.New("Wonderland", "Carroll")
	b.Characters = []book.Character{
		{ID: "alice", Name: "Alice", Relationships: []book.Relationship{
			{TargetCharacterID: "rabbit"},
			{TargetCharacterID: "ghost"},
		}},
		{ID: "rabbit", Name: "White Rabbit", Relationships: []book.Relationship{}},
	}
	b.Chapters = []book.Chapter{{ID: "ch1", Title: "One"}}
	b.PlotPoints = []book.PlotPoint{
		{ID: "p1", ChapterID: "ch1", CharacterIDs: []string{"alice"}},
		{ID: "p2", ChapterID: "ch9", CharacterIDs: []string{"hatter"}},
	}
	b.Timeline.Events = []book.TimelineEvent{{ID: "e1", ChapterID: "ch9"}}

	problems := referenceProblems(b)
	if len(problems) != 4 {
		t.Fatalf("got %d problems, want 4: %q", len(problems), problems)
	}

	b.Characters[0].Relationships = b.Characters[0].Relationships[:1]
	b.PlotPoints = b.PlotPoints[:1]
	b.Timeline.Events = nil
	if problems := referenceProblems(b); len(problems) != 0 {
		t.Errorf("clean book reported %q", problems)
	}
}

func TestDescribe(t *testing.T) {
	b := book.New("Wonderland", "Carroll")
	b.Characters = []book.Character{{ID: "alice", Name: "Alice"}}
	b.Chapters = []book.Chapter{{ID: "ch1", Title: "Down the Rabbit-Hole"}}

	if got := describe(b, "alice"); got != "character Alice" {
		t.Errorf("describe(alice) = %q", got)
	}
	if got := describe(b, "ch1"); got != "chapter Down the Rabbit-Hole" {
		t.Errorf("describe(ch1) = %q", got)
	}
	if got := describe(b, "nope"); got != "unknown" {
		t.Errorf("describe(nope) = %q", got)
	}
}
