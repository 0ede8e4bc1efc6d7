package book

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every structural validation failure
var ErrMalformed = errors.New("malformed book")

// StructureError describes why a serialized book was rejected
type StructureError struct {
	Field  string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("malformed book: %s %s", e.Field, e.Reason)
}

func (e *StructureError) Unwrap() error {
	return ErrMalformed
}

var requiredArrays = []string{"characters", "chapters"}

var optionalArrays = []string{"plotPoints"}

// Decode parses a serialized book and runs the structural check before returning it.
// Missing optional collections are normalized to empty slices.
func Decode(data []byte) (*Book, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &StructureError{Field: "document", Reason: "is not a JSON object"}
	}

	for _, key := range []string{"id", "metadata"} {
		if v, ok := raw[key]; !ok || isNull(v) {
			return nil, &StructureError{Field: key, Reason: "is required"}
		}
	}
	for _, key := range requiredArrays {
		v, ok := raw[key]
		if !ok {
			return nil, &StructureError{Field: key, Reason: "is required"}
		}
		if !isArray(v) {
			return nil, &StructureError{Field: key, Reason: "must be an array"}
		}
	}
	for _, key := range optionalArrays {
		if v, ok := raw[key]; ok && !isNull(v) && !isArray(v) {
			return nil, &StructureError{Field: key, Reason: "must be an array"}
		}
	}

	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &StructureError{Field: "document", Reason: err.Error()}
	}
	b.normalize()

	if err := ValidateStructure(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ValidateStructure checks an in-memory book for the invariants the rest of the
// system relies on: identifiers present and unique per collection.
func ValidateStructure(b *Book) error {
	if b == nil {
		return &StructureError{Field: "book", Reason: "is nil"}
	}
	if strings.TrimSpace(b.ID) == "" {
		return &StructureError{Field: "id", Reason: "is required"}
	}
	if err := uniqueIDs("characters", len(b.Characters), func(i int) string { return b.Characters[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("chapters", len(b.Chapters), func(i int) string { return b.Chapters[i].ID }); err != nil {
		return err
	}
	return uniqueIDs("plotPoints", len(b.PlotPoints), func(i int) string { return b.PlotPoints[i].ID })
}

func uniqueIDs(field string, n int, id func(int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return &StructureError{Field: fmt.Sprintf("%s[%d].id", field, i), Reason: "is required"}
		}
		if _, dup := seen[v]; dup {
			return &StructureError{Field: fmt.Sprintf("%s[%d].id", field, i), Reason: fmt.Sprintf("duplicates %q", v)}
		}
		seen[v] = struct{}{}
	}
	return nil
}

func (b *Book) normalize() {
	if b.Characters == nil {
		b.Characters = []Character{}
	}
	if b.Chapters == nil {
		b.Chapters = []Chapter{}
	}
	if b.PlotPoints == nil {
		b.PlotPoints = []PlotPoint{}
	}
	if b.Timeline.Events == nil {
		b.Timeline.Events = []TimelineEvent{}
	}
	if b.Metadata.Themes == nil {
		b.Metadata.Themes = []string{}
	}
	for i := range b.Characters {
		if b.Characters[i].Relationships == nil {
			b.Characters[i].Relationships = []Relationship{}
		}
	}
}

func isArray(v json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(v), []byte("["))
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
