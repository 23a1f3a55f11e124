// Package toast keeps the short-lived notifications shown to one client.
// Each toast removes itself after the queue's TTL.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind of a toast.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Toast is one notification.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue is safe for concurrent use.
type Queue struct {
	ttl time.Duration

	mu     sync.Mutex
	items  []Toast
	timers map[string]*time.Timer
	closed bool
}

// New returns a queue whose toasts expire after ttl; ttl <= 0 keeps them
// until removed.
func New(ttl time.Duration) *Queue {
	return &Queue{ttl: ttl, timers: map[string]*time.Timer{}}
}

// Add appends a toast and returns its id.  Unknown kinds become Info.
func (q *Queue) Add(message string, kind Kind) string {
	switch kind {
	case Success, Error, Info:
	default:
		kind = Info
	}
	t := Toast{ID: uuid.NewString(), Message: message, Kind: kind, CreatedAt: time.Now().UTC()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return t.ID
	}
	q.items = append(q.items, t)
	if q.ttl > 0 {
		id := t.ID
		q.timers[id] = time.AfterFunc(q.ttl, func() { q.Remove(id) })
	}
	return t.ID
}

// Remove drops a toast; unknown ids are ignored.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tm, ok := q.timers[id]; ok {
		tm.Stop()
		delete(q.timers, id)
	}
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the current toasts, oldest first.
func (q *Queue) List() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Toast{}, q.items...)
}

// Close stops every pending timer and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, tm := range q.timers {
		tm.Stop()
		delete(q.timers, id)
	}
	q.items = nil
	q.closed = true
}
