package system

import (
	"errors"
	"fmt"

	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/physics"
)

// ErrAlreadyMapped is returned by EntityIndex.Insert when the entity already
// has a mapping. Callers must Remove first.
var ErrAlreadyMapped = errors.New("physics system: entity already mapped")

// HandleMapping relates one entity to the engine body and colliders built
// for it. It owns neither side.
type HandleMapping struct {
	Entity    ecs.Entity
	Body      physics.BodyHandle
	Colliders []physics.ColliderHandle
}

// EntityIndex is the bidirectional entity <-> handle lookup. It is mutated
// only by the Reconciler; other stages may read it concurrently.
type EntityIndex struct {
	byEntity   map[ecs.Entity]*HandleMapping
	byBody     map[physics.BodyHandle]ecs.Entity
	byCollider map[physics.ColliderHandle]ecs.Entity
}

func NewEntityIndex() *EntityIndex {
	return &EntityIndex{
		byEntity:   make(map[ecs.Entity]*HandleMapping),
		byBody:     make(map[physics.BodyHandle]ecs.Entity),
		byCollider: make(map[physics.ColliderHandle]ecs.Entity),
	}
}

// Insert records the mapping for e. It fails without touching the index if
// e, the body or any collider is already mapped.
func (ix *EntityIndex) Insert(e ecs.Entity, body physics.BodyHandle, colliders ...physics.ColliderHandle) (*HandleMapping, error) {
	if _, ok := ix.byEntity[e]; ok {
		return nil, fmt.Errorf("physics system: insert %s: %w", e, ErrAlreadyMapped)
	}
	if other, ok := ix.byBody[body]; ok {
		return nil, fmt.Errorf("physics system: insert %s: %s owned by %s: %w", e, body, other, ErrAlreadyMapped)
	}
	for _, c := range colliders {
		if other, ok := ix.byCollider[c]; ok {
			return nil, fmt.Errorf("physics system: insert %s: %s owned by %s: %w", e, c, other, ErrAlreadyMapped)
		}
	}

	m := &HandleMapping{
		Entity:    e,
		Body:      body,
		Colliders: append([]physics.ColliderHandle(nil), colliders...),
	}
	ix.byEntity[e] = m
	ix.byBody[body] = e
	for _, c := range colliders {
		ix.byCollider[c] = e
	}
	return m, nil
}

// Remove drops e's mapping. Removing an unmapped entity is a no-op that
// reports false.
func (ix *EntityIndex) Remove(e ecs.Entity) (*HandleMapping, bool) {
	m, ok := ix.byEntity[e]
	if !ok {
		return nil, false
	}
	delete(ix.byEntity, e)
	delete(ix.byBody, m.Body)
	for _, c := range m.Colliders {
		delete(ix.byCollider, c)
	}
	return m, true
}

// Mapping returns e's mapping.
func (ix *EntityIndex) Mapping(e ecs.Entity) (*HandleMapping, bool) {
	m, ok := ix.byEntity[e]
	return m, ok
}

// HandleFor returns the body handle of e.
func (ix *EntityIndex) HandleFor(e ecs.Entity) (physics.BodyHandle, bool) {
	m, ok := ix.byEntity[e]
	if !ok {
		return 0, false
	}
	return m.Body, true
}

// EntityForBody resolves a body handle.
func (ix *EntityIndex) EntityForBody(h physics.BodyHandle) (ecs.Entity, bool) {
	e, ok := ix.byBody[h]
	return e, ok
}

// EntityForCollider resolves a collider handle.
func (ix *EntityIndex) EntityForCollider(h physics.ColliderHandle) (ecs.Entity, bool) {
	e, ok := ix.byCollider[h]
	return e, ok
}

func (ix *EntityIndex) Len() int {
	return len(ix.byEntity)
}

// Each visits every mapping in unspecified order.
func (ix *EntityIndex) Each(fn func(*HandleMapping)) {
	for _, m := range ix.byEntity {
		fn(m)
	}
}
