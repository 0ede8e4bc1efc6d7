package history

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dotcommander/scribe/internal/domain"
)

// Checkpointer persists snapshot logs through a key/value Storage, one document per book
type Checkpointer struct {
	storage domain.Storage
}

func NewCheckpointer(storage domain.Storage) *Checkpointer {
	return &Checkpointer{
		storage: storage,
	}
}

func checkpointKey(bookID string) string {
	return fmt.Sprintf("history/%s.json", bookID)
}

// Save writes the whole log
func (c *Checkpointer) Save(ctx context.Context, log *Log) error {
	var buf bytes.Buffer
	if err := log.Export(&buf); err != nil {
		return err
	}
	if err := c.storage.Save(ctx, checkpointKey(log.BookID()), buf.Bytes()); err != nil {
		return fmt.Errorf("saving history checkpoint: %w", err)
	}
	return nil
}

// Restore loads the saved log of log's book into log. A book without a checkpoint
// leaves the log untouched.
func (c *Checkpointer) Restore(ctx context.Context, log *Log) error {
	key := checkpointKey(log.BookID())
	if !c.storage.Exists(ctx, key) {
		return nil
	}
	data, err := c.storage.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("loading history checkpoint: %w", err)
	}
	return log.Import(bytes.NewReader(data))
}

// Delete removes the saved log of a book
func (c *Checkpointer) Delete(ctx context.Context, bookID string) error {
	return c.storage.Delete(ctx, checkpointKey(bookID))
}

// List returns the ids of books with a saved log
func (c *Checkpointer) List(ctx context.Context) ([]string, error) {
	files, err := c.storage.List(ctx, "history/*.json")
	if err != nil {
		return nil, fmt.Errorf("listing history checkpoints: %w", err)
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, strings.TrimSuffix(filepath.Base(f), ".json"))
	}
	return ids, nil
}
