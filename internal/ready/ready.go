// Package ready signals when an include run has finished.
//
// Each run gets a Token, a future that settles exactly once with the run's
// result. A Registry tracks the newest token and broadcasts an Event to
// subscribers after every successful run.
package ready

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/stitch/internal/logging"
)

// EventName is the name of the event published after a successful run.
const EventName = "includes:ready"

// Event announces that a run installed all of its fragments.
type Event struct {
	Name      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Token is the completion future of one include run.
type Token struct {
	ID string

	once sync.Once
	done chan struct{}
	err  error
}

// NewToken returns a pending token with a fresh ID.
func NewToken() *Token {
	return &Token{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// Settle resolves the token with err. Only the first call has an effect.
func (t *Token) Settle(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed once the token has settled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Err returns the run's error. It is nil until the token settles.
func (t *Token) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Settled reports whether the token has settled.
func (t *Token) Settled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the token settles or ctx is done.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry holds the current token and the event subscribers.
type Registry struct {
	mu      sync.RWMutex
	current *Token
	subs    map[int]chan Event
	nextID  int
	logger  logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		subs:   make(map[int]chan Event),
		logger: logger.WithComponent("ready"),
	}
}

// Begin creates a token and makes it current.
func (r *Registry) Begin() *Token {
	t := NewToken()
	r.mu.Lock()
	r.current = t
	r.mu.Unlock()
	return t
}

// Current returns the newest token, or nil before the first run.
func (r *Registry) Current() *Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers a subscriber with a buffer of buf events. The returned
// function unsubscribes and closes the channel.
func (r *Registry) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (r *Registry) Publish(ev Event) {
	if ev.Name == "" {
		ev.Name = EventName
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Warn(context.Background(), nil, "Dropping ready event for slow subscriber",
				"subscriber", id, "run_id", ev.RunID)
		}
	}
}
