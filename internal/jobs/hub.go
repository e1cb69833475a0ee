package jobs

import (
	"context"
	"sync"
	"time"
)

const defaultHubCapacity = 4096

// EventType classifies an entry in a job's event stream.
type EventType string

const (
	EventOutput    EventType = "output"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventError     EventType = "error"
)

// Terminal reports whether this event ends the stream.
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed || t == EventError
}

// Event is one element of a job's live output sequence.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Line      string    `json:"line,omitempty"`
	Percent   float64   `json:"progress"`
	Stage     string    `json:"stage,omitempty"`
}

// Hub is a bounded fan-out buffer for one job's output events. The collector
// is the only publisher; any number of subscribers read with independent
// cursors, so concurrent stream consumers never race for the same bytes.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	closed   bool
}

// NewHub constructs a hub retaining at most capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends an event, assigning its sequence number. Publishing a
// terminal event closes the hub; further publishes are dropped.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	if evt.Type.Terminal() {
		h.closed = true
	}
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Close marks the hub finished without a terminal event, waking all waiters.
// Used when a job is deleted outright.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns buffered events with sequence greater than since. When none
// are pending it blocks until an event arrives, the hub closes, or the
// context ends. done reports that no further events will ever arrive.
func (h *Hub) Fetch(ctx context.Context, since uint64) (events []Event, done bool, err error) {
	if h == nil {
		return nil, true, nil
	}

	cancelWait := make(chan struct{})
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		pending := h.pendingLocked(since)
		if len(pending) > 0 {
			return pending, false, nil
		}
		if h.closed {
			return nil, true, nil
		}
		if ctx != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, false, ctxErr
			}
		}
		h.cond.Wait()
	}
}

func (h *Hub) pendingLocked(since uint64) []Event {
	if len(h.buffer) == 0 {
		return nil
	}
	startIdx := -1
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}
	out := make([]Event, len(h.buffer)-startIdx)
	copy(out, h.buffer[startIdx:])
	return out
}
