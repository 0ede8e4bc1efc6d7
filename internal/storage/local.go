package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/domain/book"
)

const booksDir = "books"

// BookKey is the storage key of a book document
func BookKey(bookID string) string {
	return path.Join(booksDir, bookID+".json")
}

// BookIDFromKey reverses BookKey. It reports false for keys of other documents.
func BookIDFromKey(key string) (string, bool) {
	key = strings.ReplaceAll(key, "\\", "/")
	dir, file := path.Split(key)
	if strings.Trim(dir, "/") != booksDir || !strings.HasSuffix(file, ".json") || strings.HasPrefix(file, ".") {
		return "", false
	}
	return strings.TrimSuffix(file, ".json"), true
}

// LocalStore keeps whole books as JSON documents in a Storage. Loaded documents
// pass the structural check before they are returned.
type LocalStore struct {
	storage domain.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// LocalOption configures a LocalStore
type LocalOption func(*LocalStore)

func WithStoreLogger(logger *slog.Logger) LocalOption {
	return func(s *LocalStore) { s.logger = logger }
}

func NewLocalStore(storage domain.Storage, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		storage: storage,
		logger:  slog.Default().With("component", "local_store"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveBook validates and writes the whole book
func (s *LocalStore) SaveBook(ctx context.Context, b *book.Book) error {
	if err := book.ValidateStructure(b); err != nil {
		return fmt.Errorf("saving book: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding book %s: %w", b.ID, err)
	}
	if err := s.storage.Save(ctx, BookKey(b.ID), data); err != nil {
		return fmt.Errorf("saving book %s: %w", b.ID, err)
	}
	s.logger.Debug("book saved", "book_id", b.ID, "bytes", len(data))
	return nil
}

// LoadBook reads and structurally validates a book. A missing book is a
// *core.NotFoundError; a malformed one wraps book.ErrMalformed.
func (s *LocalStore) LoadBook(ctx context.Context, bookID string) (*book.Book, error) {
	data, err := s.storage.Load(ctx, BookKey(bookID))
	if errors.Is(err, ErrNotFound) {
		return nil, core.NewNotFoundError("book", bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading book %s: %w", bookID, err)
	}

	b, err := book.Decode(data)
	if err != nil {
		s.logger.Warn("rejected malformed local book", "book_id", bookID, "error", err)
		return nil, fmt.Errorf("loading book %s: %w", bookID, err)
	}
	return b, nil
}

// HasBook reports whether a document exists for the book
func (s *LocalStore) HasBook(ctx context.Context, bookID string) bool {
	return s.storage.Exists(ctx, BookKey(bookID))
}

// DeleteBook removes the book document
func (s *LocalStore) DeleteBook(ctx context.Context, bookID string) error {
	err := s.storage.Delete(ctx, BookKey(bookID))
	if errors.Is(err, ErrNotFound) {
		return core.NewNotFoundError("book", bookID)
	}
	return err
}

// ListBooks returns the ids of all stored books, sorted
func (s *LocalStore) ListBooks(ctx context.Context) ([]string, error) {
	keys, err := s.storage.List(ctx, path.Join(booksDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := BookIDFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Backup writes a timestamped copy of the stored book, if there is one, and
// returns its key
func (s *LocalStore) Backup(ctx context.Context, bookID string) (string, error) {
	data, err := s.storage.Load(ctx, BookKey(bookID))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("backing up book %s: %w", bookID, err)
	}

	var head struct {
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	}
	_ = json.Unmarshal(data, &head)

	key := backupKey(bookID, head.Metadata.Title, s.now())
	if err := s.storage.Save(ctx, key, data); err != nil {
		return "", fmt.Errorf("backing up book %s: %w", bookID, err)
	}
	s.logger.Info("book backed up", "book_id", bookID, "key", key)
	return key, nil
}

// Backups lists the backup keys of a book, oldest first
func (s *LocalStore) Backups(ctx context.Context, bookID string) ([]string, error) {
	keys, err := s.storage.List(ctx, path.Join("backups", bookID, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
