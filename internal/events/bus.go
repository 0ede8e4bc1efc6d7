// Package events carries change notifications between the workspace, the
// editors and anything else interested in book mutations.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus is not running")

// Event is one notification published on the bus
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	BookID    string         `json:"bookId,omitempty"`
	EntityID  string         `json:"entityId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Handler processes one event
type Handler func(ctx context.Context, event Event) error

// Subscription is an active registration on the bus
type Subscription struct {
	ID       string
	Pattern  string
	Handler  Handler
	Options  SubscriptionOptions
	compiled *regexp.Regexp
}

// SubscriptionOptions configure delivery to one subscription
type SubscriptionOptions struct {
	// Async runs the handler on its own goroutine
	Async bool

	// Timeout bounds one handler call; zero means no timeout
	Timeout time.Duration

	// Filter narrows delivery beyond the type pattern
	Filter func(Event) bool

	// Priority orders synchronous delivery, higher first
	Priority int
}

// DefaultSubscriptionOptions deliver synchronously with a 10 second handler budget
var DefaultSubscriptionOptions = SubscriptionOptions{
	Timeout: 10 * time.Second,
}

// Metrics counts bus activity
type Metrics struct {
	Published    int64
	Delivered    int64
	Failed       int64
	LastActivity time.Time
}

// Bus routes events to subscriptions whose pattern matches the event type
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	running       bool
	logger        *slog.Logger
	wg            sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

// NewBus creates a running bus
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscriptions: make(map[string]*Subscription),
		running:       true,
		logger:        logger.With("component", "events"),
	}
}

// Subscribe registers handler for events whose type matches the regular expression pattern
func (b *Bus) Subscribe(pattern string, handler Handler, options ...SubscriptionOptions) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	opts := DefaultSubscriptionOptions
	if len(options) > 0 {
		opts = options[0]
	}

	sub := &Subscription{
		ID:       "sub_" + uuid.NewString(),
		Pattern:  pattern,
		Handler:  handler,
		Options:  opts,
		compiled: compiled,
	}

	b.mu.Lock()
	b.subscriptions[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscription created",
		"subscription_id", sub.ID,
		"pattern", pattern,
		"async", opts.Async,
	)
	return sub, nil
}

// Unsubscribe removes a subscription
func (b *Bus) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("subscription %q not found", subscriptionID)
	}
	delete(b.subscriptions, subscriptionID)
	return nil
}

// Publish delivers event to every matching subscription. Handler failures are
// logged and counted, never returned: publishers do not depend on listeners.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return ErrBusStopped
	}

	if event.ID == "" {
		event.ID = "evt_" + uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.updateMetrics(func(m *Metrics) {
		m.Published++
		m.LastActivity = time.Now()
	})

	matching := b.matching(event)
	if len(matching) == 0 {
		return nil
	}

	for _, sub := range matching {
		if sub.Options.Async {
			b.wg.Add(1)
			go func(sub *Subscription) {
				defer b.wg.Done()
				b.deliver(ctx, event, sub)
			}(sub)
			continue
		}
		b.deliver(ctx, event, sub)
	}
	return nil
}

func (b *Bus) matching(event Event) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	for _, sub := range b.subscriptions {
		if !sub.compiled.MatchString(event.Type) {
			continue
		}
		if sub.Options.Filter != nil && !sub.Options.Filter(event) {
			continue
		}
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Options.Priority > out[j].Options.Priority })
	return out
}

func (b *Bus) deliver(ctx context.Context, event Event, sub *Subscription) {
	handlerCtx := ctx
	if sub.Options.Timeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, sub.Options.Timeout)
		defer cancel()
	}

	if err := b.safeHandle(handlerCtx, event, sub); err != nil {
		b.logger.Warn("event handler failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"subscription_id", sub.ID,
			"error", err,
		)
		b.updateMetrics(func(m *Metrics) { m.Failed++ })
		return
	}
	b.updateMetrics(func(m *Metrics) { m.Delivered++ })
}

func (b *Bus) safeHandle(ctx context.Context, event Event, sub *Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.Handler(ctx, event)
}

// Stop rejects further publishes and waits for async handlers to return
func (b *Bus) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Debug("event bus stopped")
}

// Metrics returns a copy of the bus counters
func (b *Bus) Metrics() Metrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.metrics
}

// Subscriptions returns the number of active subscriptions
func (b *Bus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

func (b *Bus) updateMetrics(update func(*Metrics)) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	update(&b.metrics)
}
