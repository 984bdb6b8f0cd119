// Package dedupe tracks idempotency keys so a retried submission is applied once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// State describes what the tracker knows about a key.
type State int

// Key states.
const (
	// StateNew means the key was unknown and is now recorded as pending.
	StateNew State = iota
	// StatePending means another request holding the key has not completed yet.
	StatePending
	// StateDone means the key completed and its result is available.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Tracker records idempotency keys and the result stored for each one.
type Tracker[V any] interface {
	// SeenAndRecord atomically checks key and records it as pending if unknown.
	// For StateDone the stored result is returned.
	SeenAndRecord(ctx context.Context, key string) (State, V)

	// Complete stores the result for a recorded key. Unknown keys are ignored.
	Complete(ctx context.Context, key string, v V)

	// Lookup returns the stored result for a completed key.
	Lookup(ctx context.Context, key string) (V, bool)

	// Unrecord forgets key so a failed request can be retried under it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry[V any] struct {
	key   string
	done  bool
	value V
}

// inMemoryTracker keeps keys in a map plus an insertion-ordered list.
// When bounded (maxSize > 0) the oldest key is evicted first.
type inMemoryTracker[V any] struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int        // <= 0 means unbounded
	size    atomic.Int64
}

// NewInMemory creates an in-memory tracker.
func NewInMemory[V any](opts ...Option) Tracker[V] {
	cfg := config{maxSize: 50000}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryTracker[V]{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: cfg.maxSize,
	}
}

func (t *inMemoryTracker[V]) SeenAndRecord(_ context.Context, key string) (State, V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.seen[key]; ok {
		e := el.Value.(*entry[V])
		if e.done {
			return StateDone, e.value
		}
		var zero V
		return StatePending, zero
	}

	if t.maxSize > 0 {
		for len(t.seen) >= t.maxSize {
			t.evictOldest()
		}
	}
	t.seen[key] = t.order.PushBack(&entry[V]{key: key})
	t.size.Add(1)

	var zero V
	return StateNew, zero
}

func (t *inMemoryTracker[V]) Complete(_ context.Context, key string, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.seen[key]; ok {
		e := el.Value.(*entry[V])
		e.done = true
		e.value = v
	}
}

func (t *inMemoryTracker[V]) Lookup(_ context.Context, key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.seen[key]; ok {
		if e := el.Value.(*entry[V]); e.done {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

func (t *inMemoryTracker[V]) Unrecord(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.seen[key]; ok {
		t.order.Remove(el)
		delete(t.seen, key)
		t.size.Add(-1)
	}
}

// evictOldest must be called with t.mu held.
func (t *inMemoryTracker[V]) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	t.order.Remove(front)
	delete(t.seen, front.Value.(*entry[V]).key)
	t.size.Add(-1)
}

func (t *inMemoryTracker[V]) Size() int64 {
	return t.size.Load()
}

// ScopedKey namespaces an idempotency key by the submitting user.
func ScopedKey(userID, key string) string {
	return userID + "\x00" + key
}
