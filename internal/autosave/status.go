package autosave

import (
	"sync"
	"time"
)

// Status is the global save indicator shown to the user
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// StatusEvent describes one transition of a single entity's save
type StatusEvent struct {
	Kind     string    `json:"kind"`
	EntityID string    `json:"entityId"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// StatusTracker folds the saves of every reconciler into one tri-state status.
// It reports saving while any commit is in flight, otherwise the outcome of the
// most recent commit.
type StatusTracker struct {
	mu        sync.Mutex
	inFlight  int
	last      Status
	lastErr   error
	listeners []func(StatusEvent)
}

// NewStatusTracker creates a tracker in the idle state
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{last: StatusIdle}
}

// OnChange registers fn to receive every transition. Listeners run synchronously
// and must not call back into the tracker.
func (s *StatusTracker) OnChange(fn func(StatusEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Begin records that a commit for the entity has started
func (s *StatusTracker) Begin(kind, id string) {
	s.mu.Lock()
	s.inFlight++
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, StatusEvent{Kind: kind, EntityID: id, Status: StatusSaving, At: time.Now()})
}

// End records the outcome of a commit started with Begin
func (s *StatusTracker) End(kind, id string, err error) {
	ev := StatusEvent{Kind: kind, EntityID: id, Status: StatusSaved, At: time.Now()}
	if err != nil {
		ev.Status = StatusError
		ev.Error = err.Error()
	}

	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.last = ev.Status
	s.lastErr = err
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, ev)
}

// Status returns the current indicator and, in the error state, the failure
func (s *StatusTracker) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		return StatusSaving, nil
	}
	return s.last, s.lastErr
}

func notify(listeners []func(StatusEvent), ev StatusEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}
