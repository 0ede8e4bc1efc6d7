package book

import "time"

// EntityType identifies the kind of entity a snapshot, dependency or impact refers to
type EntityType string

const (
	EntityCharacter EntityType = "character"
	EntityChapter   EntityType = "chapter"
	EntityPlotPoint EntityType = "plotpoint"
	EntityMetadata  EntityType = "metadata"
)

// CharacterType ranks a character's importance to the story
type CharacterType string

const (
	CharacterMain      CharacterType = "main"
	CharacterSecondary CharacterType = "secondary"
	CharacterTertiary  CharacterType = "tertiary"
)

// PlotCategory places a plot point in the story structure
type PlotCategory string

const (
	PlotSetup      PlotCategory = "setup"
	PlotConflict   PlotCategory = "conflict"
	PlotClimax     PlotCategory = "climax"
	PlotResolution PlotCategory = "resolution"
	PlotOther      PlotCategory = "other"
)

// Book is the aggregate root: one author's manuscript in progress
type Book struct {
	ID         string           `json:"id"`
	Metadata   Metadata         `json:"metadata"`
	Characters []Character      `json:"characters"`
	Chapters   []Chapter        `json:"chapters"`
	PlotPoints []PlotPoint      `json:"plotPoints"`
	Timeline   Timeline         `json:"timeline"`
	Settings   *ProjectSettings `json:"settings,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Metadata holds the book-level descriptive fields
type Metadata struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	Genre           string   `json:"genre"`
	Synopsis        string   `json:"synopsis"`
	Themes          []string `json:"themes"`
	TargetWordCount int      `json:"targetWordCount"`
	CoverImage      string   `json:"coverImage,omitempty"`
}

// ProjectSettings configures the writing assistant for a book
type ProjectSettings struct {
	AIProvider string `json:"aiProvider"`
	AIModel    string `json:"aiModel"`
	APIKey     string `json:"apiKey,omitempty"`
}

// Character is a person in the story
type Character struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          CharacterType  `json:"type"`
	Description   string         `json:"description"`
	Biography     string         `json:"biography"`
	Arc           string         `json:"arc,omitempty"`
	Age           string         `json:"age,omitempty"`
	Role          string         `json:"role,omitempty"`
	Relationships []Relationship `json:"relationships"`
	Locked        bool           `json:"locked"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Relationship is a directed edge from the owning character to another one.
// The target is not guaranteed to exist.
type Relationship struct {
	TargetCharacterID string `json:"targetCharacterId"`
	RelationshipType  string `json:"relationshipType"`
	Description       string `json:"description"`
}

// Chapter holds prose either as a legacy single Content blob or as ordered Sections
type Chapter struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Sections  []Section `json:"sections,omitempty"`
	Order     int       `json:"order"`
	Synopsis  string    `json:"synopsis,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	WordCount int       `json:"wordCount"`
	Locked    bool      `json:"locked"`
	Versions  []Version `json:"versions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Section is one titled part of a chapter
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// Version is a prior content/title pair of a chapter
type Version struct {
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// PlotPoint is a story beat that may reference a chapter and characters directly
type PlotPoint struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ChapterID    string       `json:"chapterId,omitempty"`
	CharacterIDs []string     `json:"characterIds,omitempty"`
	Order        int          `json:"order"`
	Category     PlotCategory `json:"category"`
}

// Timeline is the in-world chronology of the book
type Timeline struct {
	Events []TimelineEvent `json:"events"`
}

// TimelineEvent is one entry of the in-world chronology
type TimelineEvent struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Date         string   `json:"date"`
	ChapterID    string   `json:"chapterId,omitempty"`
	CharacterIDs []string `json:"characterIds,omitempty"`
}
