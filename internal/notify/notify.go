package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/internhub/reportwatch/internal/metrics"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a user-facing toast.
type Notification struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	JobID   string    `json:"jobId,omitempty"`
	At      time.Time `json:"at"`
}

// Sink receives every published notification in addition to subscribers.
type Sink interface {
	Deliver(n Notification)
}

const (
	subscriberBuffer = 64
	recentSize       = 50
)

// Hub fans notifications out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Notification]struct{}
	recent []Notification
	sinks  []Sink
	now    func() time.Time
}

// NewHub creates a Hub that also forwards to sinks.
func NewHub(sinks ...Sink) *Hub {
	return &Hub{
		subs:  make(map[chan Notification]struct{}),
		sinks: sinks,
		now:   time.Now,
	}
}

func (h *Hub) Success(jobID, message string) Notification {
	return h.Publish(Notification{Kind: KindSuccess, JobID: jobID, Message: message})
}

func (h *Hub) Error(jobID, message string) Notification {
	return h.Publish(Notification{Kind: KindError, JobID: jobID, Message: message})
}

// Publish stamps n with an id and time and delivers it.
func (h *Hub) Publish(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = h.now().UTC()
	}

	h.mu.Lock()
	h.recent = append(h.recent, n)
	if len(h.recent) > recentSize {
		h.recent = h.recent[len(h.recent)-recentSize:]
	}
	h.mu.Unlock()

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			slog.Warn("notify: subscriber buffer full, dropping", "id", n.ID)
		}
	}
	h.mu.RUnlock()

	for _, s := range h.sinks {
		s.Deliver(n)
	}

	metrics.IncNotification(string(n.Kind))
	slog.Info("notify: "+string(n.Kind), "job_id", n.JobID, "message", n.Message)
	return n
}

// Subscribe registers a buffered channel receiving future notifications.
func (h *Hub) Subscribe() chan Notification {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(ch chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
}

// Recent returns up to the last 50 notifications, oldest first.
func (h *Hub) Recent() []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Notification, len(h.recent))
	copy(out, h.recent)
	return out
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
