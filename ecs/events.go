package ecs

// CollisionEventKind identifies collision event types.
type CollisionEventKind uint8

const (
	CollisionStarted CollisionEventKind = iota + 1
	CollisionStopped
)

func (k CollisionEventKind) String() string {
	switch k {
	case CollisionStarted:
		return "started"
	case CollisionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CollisionEvent is emitted when the touching state of two entities changes.
// A is always the lower entity so a pair reads the same in both events.
type CollisionEvent struct {
	Kind CollisionEventKind
	A    Entity
	B    Entity
}

// Involves reports whether e is one of the pair.
func (c CollisionEvent) Involves(e Entity) bool {
	return c.A == e || c.B == e
}

// Diagnostic reports a non-fatal per-entity problem raised by a system.
type Diagnostic struct {
	Entity Entity
	Source string
	Err    error
}

// EventQueue is a simple FIFO queue.
type EventQueue[T any] struct {
	items []T
}

// Push adds an event.
func (q *EventQueue[T]) Push(evt T) {
	if q == nil {
		return
	}
	q.items = append(q.items, evt)
}

// Drain returns all events and clears the queue.
func (q *EventQueue[T]) Drain() []T {
	if q == nil || len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued events.
func (q *EventQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

func (q *EventQueue[T]) flush() {
	if q == nil {
		return
	}
	q.items = nil
}
