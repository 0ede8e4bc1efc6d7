// Package wire holds the request and response bodies of the storage backend
// and the mapping between them and the book model.
package wire

import (
	"time"

	"github.com/dotcommander/scribe/internal/domain/book"
)

// Project is the body of /projects endpoints
type Project struct {
	ID         string                `json:"id,omitempty"`
	MongoID    string                `json:"_id,omitempty"`
	Metadata   Metadata              `json:"metadata"`
	PlotPoints []PlotPoint           `json:"plotPoints" validate:"dive"`
	Timeline   Timeline              `json:"timeline"`
	Settings   *book.ProjectSettings `json:"settings,omitempty"`
	CreatedAt  time.Time             `json:"createdAt,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt,omitempty"`
}

// Metadata is the book-level descriptive block of a project
type Metadata struct {
	Title           string   `json:"title" validate:"required"`
	Author          string   `json:"author"`
	Genre           string   `json:"genre"`
	Synopsis        string   `json:"synopsis"`
	Themes          []string `json:"themes"`
	TargetWordCount int      `json:"targetWordCount" validate:"gte=0"`
	CoverImage      string   `json:"coverImage,omitempty"`
}

// PlotPoint is a plot point embedded in a project body
type PlotPoint struct {
	ID           string   `json:"id" validate:"required"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ChapterID    string   `json:"chapterId,omitempty"`
	CharacterIDs []string `json:"characterIds,omitempty"`
	Order        int      `json:"order"`
	Category     string   `json:"category" validate:"omitempty,oneof=setup conflict climax resolution other"`
}

// Timeline is the chronology embedded in a project body
type Timeline struct {
	Events []TimelineEvent `json:"events" validate:"dive"`
}

// TimelineEvent is one timeline entry
type TimelineEvent struct {
	ID           string   `json:"id" validate:"required"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Date         string   `json:"date"`
	ChapterID    string   `json:"chapterId,omitempty"`
	CharacterIDs []string `json:"characterIds,omitempty"`
}

// Character is the body of /characters endpoints. The backend names the short
// description quickDescription and the biography fullBio.
type Character struct {
	ID               string        `json:"id,omitempty"`
	MongoID          string        `json:"_id,omitempty"`
	ProjectID        string        `json:"projectId" validate:"required"`
	Name             string        `json:"name" validate:"required"`
	Type             string        `json:"type" validate:"omitempty,oneof=main secondary tertiary"`
	QuickDescription string        `json:"quickDescription"`
	FullBio          string        `json:"fullBio"`
	Arc              string        `json:"arc,omitempty"`
	Age              string        `json:"age,omitempty"`
	Role             string        `json:"role,omitempty"`
	Relationships    Relationships `json:"relationships" validate:"dive"`
	Locked           bool          `json:"locked"`
	CreatedAt        time.Time     `json:"createdAt,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt,omitempty"`
}

// Relationship is one relationship edge as the backend stores it
type Relationship struct {
	CharacterID string `json:"characterId" validate:"required"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Chapter is the body of /chapters endpoints
type Chapter struct {
	ID        string    `json:"id,omitempty"`
	MongoID   string    `json:"_id,omitempty"`
	ProjectID string    `json:"projectId" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Content   string    `json:"content"`
	Sections  []Section `json:"sections,omitempty" validate:"dive"`
	Order     int       `json:"order"`
	Synopsis  string    `json:"synopsis,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	WordCount int       `json:"wordCount" validate:"gte=0"`
	Locked    bool      `json:"locked"`
	Versions  []Version `json:"versions,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Section is one chapter section
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// Version is one retained prior version of a chapter
type Version struct {
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// ReorderRequest is the body of PUT /chapters/reorder
type ReorderRequest struct {
	ProjectID  string   `json:"projectId" validate:"required"`
	ChapterIDs []string `json:"chapterIds" validate:"required,min=1,dive,required"`
}

// Identity returns the entity id, falling back to the document _id
func (p Project) Identity() string { return identity(p.ID, p.MongoID) }

// Identity returns the entity id, falling back to the document _id
func (c Character) Identity() string { return identity(c.ID, c.MongoID) }

// Identity returns the entity id, falling back to the document _id
func (c Chapter) Identity() string { return identity(c.ID, c.MongoID) }

func identity(id, mongoID string) string {
	if id != "" {
		return id
	}
	return mongoID
}
