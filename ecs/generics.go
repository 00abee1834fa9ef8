package ecs

import "github.com/milk9111/physbridge/ecs/component"

func CreateEntity(w *World) Entity {
	return w.CreateEntity()
}

func DestroyEntity(w *World, e Entity) bool {
	return w.DestroyEntity(e)
}

func IsAlive(w *World, e Entity) bool {
	return w.IsAlive(e)
}

// Entities returns every live entity in slot order.
func Entities(w *World) []Entity {
	if w == nil {
		return nil
	}
	out := make([]Entity, 0, w.entities.count)
	w.entities.each(func(e Entity) { out = append(out, e) })
	return out
}

// Add inserts or overwrites a component. Overwriting counts as a change.
func Add[T any](w *World, e Entity, kind component.ComponentKind[T], value *T) error {
	if value == nil {
		return component.ErrNilComponent
	}
	return w.addComponent(e, kind.ID(), value)
}

func Remove[T any](w *World, e Entity, kind component.ComponentKind[T]) bool {
	return w.removeComponent(e, kind.ID())
}

func Has[T any](w *World, e Entity, kind component.ComponentKind[T]) bool {
	s := w.store(kind.ID(), false)
	return s != nil && s.has(e)
}

// Get returns the stored pointer. Mutating it in place does not count as a
// change; call Add or MarkChanged afterwards to publish the write.
func Get[T any](w *World, e Entity, kind component.ComponentKind[T]) (*T, bool) {
	s := w.store(kind.ID(), false)
	if s == nil {
		return nil, false
	}
	v, ok := s.get(e)
	if !ok {
		return nil, false
	}
	cast, ok := v.(*T)
	return cast, ok
}

// MarkChanged stamps the component of e with a fresh change tick.
func MarkChanged[T any](w *World, e Entity, kind component.ComponentKind[T]) bool {
	s := w.store(kind.ID(), false)
	if s == nil || !w.IsAlive(e) {
		return false
	}
	return s.touch(e, w.nextTick())
}

// Count returns how many entities carry the component.
func Count[T any](w *World, kind component.ComponentKind[T]) int {
	s := w.store(kind.ID(), false)
	if s == nil {
		return 0
	}
	return s.len()
}
