package ecs

import "github.com/milk9111/physbridge/ecs/component"

// ChangeTick returns the tick of the most recent write in the world. A
// system that remembers this value can later ask what changed after it.
func ChangeTick(w *World) uint64 {
	if w == nil {
		return 0
	}
	return w.tick
}

// AddedSince reports whether e's component was inserted after tick.
func AddedSince[T any](w *World, e Entity, kind component.ComponentKind[T], tick uint64) bool {
	s := w.store(kind.ID(), false)
	if s == nil {
		return false
	}
	at, ok := s.addedAt(e)
	return ok && at > tick
}

// ChangedSince reports whether e's component was inserted or written after
// tick.
func ChangedSince[T any](w *World, e Entity, kind component.ComponentKind[T], tick uint64) bool {
	s := w.store(kind.ID(), false)
	if s == nil {
		return false
	}
	at, ok := s.changedAt(e)
	return ok && at > tick
}

// RemovedSince lists entities that lost the component after tick, either
// through Remove or DestroyEntity. An entity may appear more than once.
func RemovedSince[T any](w *World, kind component.ComponentKind[T], tick uint64) []Entity {
	s := w.store(kind.ID(), false)
	if s == nil {
		return nil
	}
	return collectSince(s.removed, tick)
}

// DestroyedSince lists entities destroyed after tick.
func DestroyedSince(w *World, tick uint64) []Entity {
	if w == nil {
		return nil
	}
	return collectSince(w.destroyed, tick)
}

func collectSince(log []removal, tick uint64) []Entity {
	var out []Entity
	for i := len(log) - 1; i >= 0 && log[i].tick > tick; i-- {
		out = append(out, log[i].entity)
	}
	return out
}
