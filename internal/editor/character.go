package editor

import (
	"context"
	"slices"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
)

// CharacterEditor edits one character at a time. Every field is short: edits
// are saved after the debounce window.
type CharacterEditor struct {
	*binding[book.Character]
}

func newCharacterEditor(ws *core.Workspace, opts []autosave.Option) (*CharacterEditor, error) {
	spec := autosave.Spec[book.Character]{
		Kind:  string(book.EntityCharacter),
		ID:    func(c book.Character) string { return c.ID },
		Clone: func(c book.Character) book.Character { return c.Clone() },
		Fields: []autosave.Field[book.Character]{
			autosave.FieldOf("name", func(c *book.Character) *string { return &c.Name }),
			autosave.FieldOf("type", func(c *book.Character) *book.CharacterType { return &c.Type }),
			autosave.FieldOf("description", func(c *book.Character) *string { return &c.Description }),
			autosave.FieldOf("biography", func(c *book.Character) *string { return &c.Biography }),
			autosave.FieldOf("arc", func(c *book.Character) *string { return &c.Arc }),
			autosave.FieldOf("age", func(c *book.Character) *string { return &c.Age }),
			autosave.FieldOf("role", func(c *book.Character) *string { return &c.Role }),
			autosave.FieldOf("relationships", func(c *book.Character) *[]book.Relationship { return &c.Relationships }),
		},
		Locked:    func(c book.Character) bool { return c.Locked },
		SetLocked: func(c *book.Character, locked bool) { c.Locked = locked },
		Save:      ws.UpdateCharacter,
	}
	b, err := newBinding(spec, ws.Character, opts)
	if err != nil {
		return nil, err
	}
	return &CharacterEditor{binding: b}, nil
}

func (e *CharacterEditor) SetName(name string) error {
	return e.Update(func(c *book.Character) { c.Name = name })
}

func (e *CharacterEditor) SetType(t book.CharacterType) error {
	return e.Update(func(c *book.Character) { c.Type = t })
}

func (e *CharacterEditor) SetDescription(s string) error {
	return e.Update(func(c *book.Character) { c.Description = s })
}

func (e *CharacterEditor) SetBiography(s string) error {
	return e.Update(func(c *book.Character) { c.Biography = s })
}

func (e *CharacterEditor) SetArc(s string) error {
	return e.Update(func(c *book.Character) { c.Arc = s })
}

// SetRelationships replaces the relationship edges
func (e *CharacterEditor) SetRelationships(rels []book.Relationship) error {
	rels = slices.Clone(rels)
	if rels == nil {
		rels = []book.Relationship{}
	}
	return e.Update(func(c *book.Character) { c.Relationships = rels })
}

// AddRelationship appends an edge to another character. The target need not exist.
func (e *CharacterEditor) AddRelationship(rel book.Relationship) error {
	return e.Update(func(c *book.Character) {
		c.Relationships = append(slices.Clone(c.Relationships), rel)
	})
}

// ToggleLock flips the lock and saves immediately
func (e *CharacterEditor) ToggleLock(ctx context.Context) error {
	return e.rec.ToggleLock(ctx)
}

func (e *CharacterEditor) SetLocked(ctx context.Context, locked bool) error {
	return e.rec.SetLocked(ctx, locked)
}

func (e *CharacterEditor) Locked() bool {
	return e.rec.Locked()
}
