package ecs

import "github.com/milk9111/physbridge/ecs/component"

// snapshot copies the dense entity list so callbacks may add, remove or
// destroy while iterating.
func snapshot(s *sparseSet) []Entity {
	if s == nil || len(s.entities) == 0 {
		return nil
	}
	return append([]Entity(nil), s.entities...)
}

func ForEach[A any](w *World, ka component.ComponentKind[A], fn func(Entity, *A)) {
	if w == nil || fn == nil {
		return
	}
	for _, e := range snapshot(w.store(ka.ID(), false)) {
		a, ok := Get(w, e, ka)
		if !ok {
			continue
		}
		fn(e, a)
	}
}

func ForEach2[A, B any](w *World, ka component.ComponentKind[A], kb component.ComponentKind[B], fn func(Entity, *A, *B)) {
	if w == nil || fn == nil {
		return
	}
	sa, sb := w.store(ka.ID(), false), w.store(kb.ID(), false)
	if sa == nil || sb == nil {
		return
	}
	// iterate smaller set
	base := sa
	if sb.len() < sa.len() {
		base = sb
	}
	for _, e := range snapshot(base) {
		a, okA := Get(w, e, ka)
		b, okB := Get(w, e, kb)
		if !okA || !okB {
			continue
		}
		fn(e, a, b)
	}
}

func ForEach3[A, B, C any](w *World, ka component.ComponentKind[A], kb component.ComponentKind[B], kc component.ComponentKind[C], fn func(Entity, *A, *B, *C)) {
	if w == nil || fn == nil {
		return
	}
	ForEach2(w, ka, kb, func(e Entity, a *A, b *B) {
		c, ok := Get(w, e, kc)
		if !ok {
			return
		}
		fn(e, a, b, c)
	})
}
