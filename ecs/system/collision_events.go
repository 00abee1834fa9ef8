package system

import (
	"sort"

	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// ContactState is the touching state of an entity pair.
type ContactState uint8

const (
	NotTouching ContactState = iota
	Touching
)

func (s ContactState) String() string {
	if s == Touching {
		return "touching"
	}
	return "not touching"
}

// EntityPair is an unordered pair of entities, stored lower entity first.
type EntityPair struct {
	A ecs.Entity
	B ecs.Entity
}

// NewEntityPair orders a and b.
func NewEntityPair(a, b ecs.Entity) EntityPair {
	if b < a {
		a, b = b, a
	}
	return EntityPair{A: a, B: b}
}

type colliderPair struct {
	a, b physics.ColliderHandle
}

func newColliderPair(a, b physics.ColliderHandle) colliderPair {
	if b < a {
		a, b = b, a
	}
	return colliderPair{a: a, b: b}
}

// CollisionEventState tracks one touching entity pair. It records every
// collider pair currently reported in contact, so bodies with several
// colliders stop touching only when the last one separates.
type CollisionEventState struct {
	State    ContactState
	contacts map[colliderPair]struct{}
}

// Contacts returns how many collider pairs of the entity pair touch.
func (s *CollisionEventState) Contacts() int {
	return len(s.contacts)
}

// CollisionTranslator turns raw collider contacts into entity level
// collision events, one per state transition.
type CollisionTranslator struct {
	logger   *zap.Logger
	states   map[EntityPair]*CollisionEventState
	byEntity map[ecs.Entity]map[EntityPair]struct{}
	// suspended pairs were touching when one side was rebuilt. They stop
	// at the next Translate unless the rebuilt colliders touch again.
	suspended map[EntityPair]struct{}
	out       []ecs.CollisionEvent
}

func NewCollisionTranslator(logger *zap.Logger) *CollisionTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollisionTranslator{
		logger:    logger,
		states:    make(map[EntityPair]*CollisionEventState),
		byEntity:  make(map[ecs.Entity]map[EntityPair]struct{}),
		suspended: make(map[EntityPair]struct{}),
	}
}

// Drain consumes the engine's queue and pushes the resulting events to the
// world. It returns how many events were emitted.
func (t *CollisionTranslator) Drain(w *ecs.World, eng physics.Engine, index *EntityIndex) int {
	if eng == nil {
		return 0
	}
	events := t.Translate(eng.DrainContactEvents(), index)
	if w != nil {
		q := w.CollisionEvents()
		for _, evt := range events {
			q.Push(evt)
		}
	}
	return len(events)
}

// Translate applies raw contacts in order and returns the events emitted by
// them together with any events queued by Purge since the last call.
// Suspended pairs that did not touch again stop last.
// Contacts whose handles no longer resolve are dropped.
func (t *CollisionTranslator) Translate(raw []physics.ContactEvent, index *EntityIndex) []ecs.CollisionEvent {
	for _, c := range raw {
		if index == nil {
			break
		}
		a, okA := index.EntityForCollider(c.A)
		b, okB := index.EntityForCollider(c.B)
		if !okA || !okB || a == b {
			continue
		}
		pair := NewEntityPair(a, b)
		switch c.Kind {
		case physics.ContactBegan:
			t.begin(pair, newColliderPair(c.A, c.B))
		case physics.ContactEnded:
			t.end(pair, newColliderPair(c.A, c.B))
		}
	}
	t.releaseSuspended()

	if len(t.out) == 0 {
		return nil
	}
	out := t.out
	t.out = nil
	return out
}

func (t *CollisionTranslator) begin(pair EntityPair, contact colliderPair) {
	st, ok := t.states[pair]
	if ok {
		st.contacts[contact] = struct{}{}
		return
	}
	t.states[pair] = &CollisionEventState{
		State:    Touching,
		contacts: map[colliderPair]struct{}{contact: {}},
	}
	t.link(pair.A, pair)
	t.link(pair.B, pair)
	if _, resumed := t.suspended[pair]; resumed {
		delete(t.suspended, pair)
		return
	}
	t.emit(ecs.CollisionStarted, pair)
}

func (t *CollisionTranslator) end(pair EntityPair, contact colliderPair) {
	st, ok := t.states[pair]
	if !ok || st.State != Touching {
		return
	}
	delete(st.contacts, contact)
	if len(st.contacts) > 0 {
		return
	}
	st.State = NotTouching
	t.drop(pair)
	t.emit(ecs.CollisionStopped, pair)
}

// Purge ends every pair that involves e. Touching pairs produce a stopped
// event, returned by the next Translate.
func (t *CollisionTranslator) Purge(e ecs.Entity) int {
	return t.release(e, func(p EntityPair) {
		t.emit(ecs.CollisionStopped, p)
	})
}

// Suspend forgets the colliders of e while its body is rebuilt. Touching
// pairs stay touching if the new colliders report contact in the next
// Translate, and stop otherwise.
func (t *CollisionTranslator) Suspend(e ecs.Entity) int {
	return t.release(e, func(p EntityPair) {
		t.suspended[p] = struct{}{}
	})
}

func (t *CollisionTranslator) release(e ecs.Entity, touching func(EntityPair)) int {
	pairs := t.byEntity[e]
	if len(pairs) == 0 {
		return 0
	}
	ordered := make([]EntityPair, 0, len(pairs))
	for p := range pairs {
		ordered = append(ordered, p)
	}
	sortPairs(ordered)

	for _, p := range ordered {
		st := t.states[p]
		t.drop(p)
		if st != nil && st.State == Touching {
			st.State = NotTouching
			touching(p)
		}
	}
	return len(ordered)
}

func (t *CollisionTranslator) releaseSuspended() {
	if len(t.suspended) == 0 {
		return
	}
	ordered := make([]EntityPair, 0, len(t.suspended))
	for p := range t.suspended {
		ordered = append(ordered, p)
	}
	sortPairs(ordered)
	for _, p := range ordered {
		delete(t.suspended, p)
		t.emit(ecs.CollisionStopped, p)
	}
}

// State returns the touching state of a and b.
func (t *CollisionTranslator) State(a, b ecs.Entity) ContactState {
	if st, ok := t.states[NewEntityPair(a, b)]; ok {
		return st.State
	}
	return NotTouching
}

// Lookup returns the tracked state of a and b, if any.
func (t *CollisionTranslator) Lookup(a, b ecs.Entity) (*CollisionEventState, bool) {
	st, ok := t.states[NewEntityPair(a, b)]
	return st, ok
}

// Pairs returns how many entity pairs are touching.
func (t *CollisionTranslator) Pairs() int {
	return len(t.states)
}

func (t *CollisionTranslator) emit(kind ecs.CollisionEventKind, pair EntityPair) {
	t.out = append(t.out, ecs.CollisionEvent{Kind: kind, A: pair.A, B: pair.B})
	t.logger.Debug("collision", zap.Stringer("kind", kind), zap.Stringer("a", pair.A), zap.Stringer("b", pair.B))
}

func (t *CollisionTranslator) link(e ecs.Entity, pair EntityPair) {
	set := t.byEntity[e]
	if set == nil {
		set = make(map[EntityPair]struct{})
		t.byEntity[e] = set
	}
	set[pair] = struct{}{}
}

func (t *CollisionTranslator) drop(pair EntityPair) {
	delete(t.states, pair)
	for _, e := range [2]ecs.Entity{pair.A, pair.B} {
		set := t.byEntity[e]
		delete(set, pair)
		if len(set) == 0 {
			delete(t.byEntity, e)
		}
	}
}

func sortPairs(list []EntityPair) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].A != list[j].A {
			return list[i].A < list[j].A
		}
		return list[i].B < list[j].B
	})
}
