package ecs

import (
	"fmt"

	"github.com/milk9111/physbridge/ecs/component"
)

// System updates a world each frame. A non-nil error stops the frame.
type System interface {
	Update(w *World) error
}

// World owns entities, components, per-frame events and system order.
type World struct {
	entities entityStore
	stores   map[component.ComponentID]*sparseSet
	systems  []System

	// tick is bumped by every component write; see ChangeTick.
	tick          uint64
	lastFrameTick uint64
	destroyed     []removal

	collisions  EventQueue[CollisionEvent]
	diagnostics EventQueue[Diagnostic]
}

// NewWorld creates an empty ECS world.
func NewWorld() *World {
	return &World{stores: make(map[component.ComponentID]*sparseSet)}
}

// CreateEntity allocates a new entity.
func (w *World) CreateEntity() Entity {
	return w.entities.create()
}

// DestroyEntity removes every component of e and marks it dead.
func (w *World) DestroyEntity(e Entity) bool {
	if !w.entities.isAlive(e) {
		return false
	}
	tick := w.nextTick()
	for _, s := range w.stores {
		s.remove(e, tick)
	}
	w.destroyed = append(w.destroyed, removal{entity: e, tick: tick})
	return w.entities.destroy(e)
}

// IsAlive reports whether an entity handle is valid.
func (w *World) IsAlive(e Entity) bool {
	if w == nil {
		return false
	}
	return w.entities.isAlive(e)
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.entities.count
}

// AddSystem appends a system to the update order.
func (w *World) AddSystem(s System) {
	if s == nil {
		return
	}
	w.systems = append(w.systems, s)
}

// Update runs all systems once, in order. Events from the previous frame
// are flushed first so callers can drain this frame's events afterwards.
func (w *World) Update() error {
	if w == nil {
		return nil
	}
	w.collisions.flush()
	w.diagnostics.flush()
	w.trimLogs(w.lastFrameTick)
	w.lastFrameTick = w.tick

	for _, s := range w.systems {
		if err := s.Update(w); err != nil {
			return fmt.Errorf("ecs: update %T: %w", s, err)
		}
	}
	return nil
}

// CollisionEvents returns the collision event queue.
func (w *World) CollisionEvents() *EventQueue[CollisionEvent] {
	if w == nil {
		return nil
	}
	return &w.collisions
}

// Diagnostics returns the non-fatal diagnostic queue.
func (w *World) Diagnostics() *EventQueue[Diagnostic] {
	if w == nil {
		return nil
	}
	return &w.diagnostics
}

func (w *World) nextTick() uint64 {
	w.tick++
	return w.tick
}

func (w *World) store(id component.ComponentID, create bool) *sparseSet {
	s := w.stores[id]
	if s == nil && create {
		s = &sparseSet{}
		w.stores[id] = s
	}
	return s
}

func (w *World) addComponent(e Entity, id component.ComponentID, v any) error {
	if !w.IsAlive(e) {
		return component.ErrEntityNotAlive
	}
	if id == 0 {
		return component.ErrInvalidComponentKind
	}
	if v == nil {
		return component.ErrNilComponent
	}
	w.store(id, true).set(e, v, w.nextTick())
	return nil
}

func (w *World) removeComponent(e Entity, id component.ComponentID) bool {
	s := w.store(id, false)
	if s == nil || !w.IsAlive(e) {
		return false
	}
	return s.remove(e, w.nextTick())
}

// trimLogs drops removal and destroy records at or before tick.
func (w *World) trimLogs(tick uint64) {
	if tick == 0 {
		return
	}
	for _, s := range w.stores {
		s.removed = trimRemovals(s.removed, tick)
	}
	w.destroyed = trimRemovals(w.destroyed, tick)
}

func trimRemovals(log []removal, tick uint64) []removal {
	i := 0
	for i < len(log) && log[i].tick <= tick {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}
