// Package notify keeps the short-lived notifications shown next to the quiz.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/timed"
)

// Kind is the severity of a notification.
type Kind string

const (
	Success Kind = "success"
	Warning Kind = "warning"
	Info    Kind = "info"
)

// Notification is a single transient message.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// notifications are dropped for it.
const subscriberBuffer = 16

// Notifier holds active notifications and dismisses them after a TTL.
type Notifier struct {
	ttl time.Duration
	log zerolog.Logger

	mu     sync.Mutex
	active []Notification
	timers map[string]*time.Timer
	subs   map[int]chan Notification
	nextID int
	closed bool
}

// New creates a Notifier. A ttl <= 0 keeps notifications until dismissed.
func New(ttl time.Duration, log zerolog.Logger) *Notifier {
	return &Notifier{
		ttl:    ttl,
		log:    log.With().Str("component", "notify").Logger(),
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]chan Notification),
	}
}

// Push adds a notification and fans it out to subscribers.
func (n *Notifier) Push(kind Kind, title, description string) Notification {
	item := Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return item
	}

	n.active = append(n.active, item)
	if n.ttl > 0 {
		id := item.ID
		n.timers[id] = time.AfterFunc(n.ttl, func() { n.Dismiss(id) })
	}
	for _, ch := range n.subs {
		select {
		case ch <- item:
		default:
			n.log.Debug().Str("id", item.ID).Msg("Subscriber full, notification dropped")
		}
	}

	n.log.Debug().Str("kind", string(kind)).Str("title", title).Msg("Notification pushed")
	return item
}

// Dismiss removes a notification. It reports whether it was still active.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	for i, item := range n.active {
		if item.ID == id {
			n.active = append(n.active[:i], n.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the notifications currently shown, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.active))
	copy(out, n.active)
	return out
}

// Subscribe returns a channel receiving every new notification and a
// function that ends the subscription. The producer never blocks on it.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

// Close stops every pending auto-dismiss and closes all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

// Describer is implemented by errors that carry a message meant for the student.
type Describer interface {
	Describe() string
}

// Describe turns an error into a notification description.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var d Describer
	if errors.As(err, &d) {
		if msg := d.Describe(); msg != "" {
			return msg
		}
	}
	switch {
	case timed.IsTimeout(err):
		return "The server took too long to respond. Please try again."
	case timed.IsAborted(err):
		return "The request was cancelled."
	}
	return err.Error()
}
