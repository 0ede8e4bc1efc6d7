package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dotcommander/scribe/internal/autosave"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/events"
)

// Session is the editing surface of one open workspace: one editor per entity
// kind sharing a save status
type Session struct {
	Characters *CharacterEditor
	Chapters   *ChapterEditor
	Metadata   *MetadataEditor

	ws     *core.Workspace
	bus    *events.Bus
	status *autosave.StatusTracker
	subs   []string
	logger *slog.Logger
}

// Option configures a Session
type Option func(*sessionOptions)

type sessionOptions struct {
	autosave []autosave.Option
	logger   *slog.Logger
}

// WithAutosave passes options to every reconciler of the session
func WithAutosave(opts ...autosave.Option) Option {
	return func(o *sessionOptions) { o.autosave = append(o.autosave, opts...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// NewSession binds editors to ws. bus must be the bus ws publishes on; the
// session listens on it for canonical changes and publishes save status to it.
func NewSession(ws *core.Workspace, bus *events.Bus, opts ...Option) (*Session, error) {
	if bus == nil {
		return nil, fmt.Errorf("editor session needs an event bus")
	}
	o := sessionOptions{logger: slog.Default().With("component", "editor")}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		ws:     ws,
		bus:    bus,
		status: autosave.NewStatusTracker(),
		logger: o.logger,
	}
	recOpts := append([]autosave.Option{autosave.WithStatus(s.status)}, o.autosave...)

	var err error
	if s.Characters, err = newCharacterEditor(ws, recOpts); err != nil {
		return nil, err
	}
	if s.Chapters, err = newChapterEditor(ws, recOpts); err != nil {
		return nil, err
	}
	if s.Metadata, err = newMetadataEditor(ws, recOpts); err != nil {
		return nil, err
	}

	s.status.OnChange(s.publishStatus)
	if err := s.subscribe(); err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Debug("editor session opened", "book_id", ws.ID())
	return s, nil
}

func (s *Session) subscribe() error {
	routes := []struct {
		pattern string
		handle  events.Handler
	}{
		{events.PatternCharacters, func(_ context.Context, e events.Event) error {
			s.Characters.refresh(e.EntityID, e.Type == events.TypeCharacterDeleted)
			return nil
		}},
		{events.PatternChapters, func(_ context.Context, e events.Event) error {
			s.Chapters.refresh(e.EntityID, e.Type == events.TypeChapterDeleted)
			return nil
		}},
		{`^metadata\.updated$`, func(_ context.Context, e events.Event) error {
			s.Metadata.refresh(e.EntityID, false)
			return nil
		}},
		{`^book\.(replaced|loaded)$`, func(_ context.Context, _ events.Event) error {
			s.Characters.refresh("", false)
			s.Chapters.refresh("", false)
			s.Metadata.refresh("", false)
			return nil
		}},
	}

	for _, r := range routes {
		sub, err := s.bus.Subscribe(r.pattern, r.handle, events.SubscriptionOptions{Priority: 10})
		if err != nil {
			return fmt.Errorf("subscribing editors: %w", err)
		}
		s.subs = append(s.subs, sub.ID)
	}
	return nil
}

func (s *Session) publishStatus(ev autosave.StatusEvent) {
	err := s.bus.Publish(context.Background(), events.Event{
		Type:      events.TypeSaveStatus,
		BookID:    s.ws.ID(),
		EntityID:  ev.EntityID,
		Timestamp: ev.At,
		Data:      ev,
	})
	if err != nil {
		s.logger.Debug("save status not published", "error", err)
	}
}

// Status is the combined save indicator of all editors
func (s *Session) Status() (autosave.Status, error) {
	return s.status.Status()
}

// FlushAll saves every editor's pending edits, e.g. before quitting
func (s *Session) FlushAll(ctx context.Context) error {
	return errors.Join(
		s.Characters.Flush(ctx),
		s.Chapters.Flush(ctx),
		s.Metadata.Flush(ctx),
	)
}

// Close stops listening and cancels pending saves. Call FlushAll first to keep
// pending edits.
func (s *Session) Close() {
	for _, id := range s.subs {
		if err := s.bus.Unsubscribe(id); err != nil {
			s.logger.Debug("unsubscribe failed", "subscription_id", id, "error", err)
		}
	}
	s.subs = nil
	s.Characters.close()
	s.Chapters.close()
	s.Metadata.close()
}
