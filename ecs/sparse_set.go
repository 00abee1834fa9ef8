package ecs

// sparseSet is a cache-friendly component storage keyed by entity slot.
// Each dense slot carries the change ticks used for change detection.
type sparseSet struct {
	entities []Entity
	values   []any
	added    []uint64
	changed  []uint64
	sparse   []int32

	// removed logs every removal with the tick it happened at.
	removed []removal
}

type removal struct {
	entity Entity
	tick   uint64
}

func (s *sparseSet) index(e Entity) int {
	id := int(e.id())
	if id >= len(s.sparse) {
		return -1
	}
	idx := int(s.sparse[id])
	if idx < 0 || idx >= len(s.entities) || s.entities[idx] != e {
		return -1
	}
	return idx
}

func (s *sparseSet) has(e Entity) bool {
	return s.index(e) >= 0
}

func (s *sparseSet) get(e Entity) (any, bool) {
	idx := s.index(e)
	if idx < 0 {
		return nil, false
	}
	return s.values[idx], true
}

// set inserts or overwrites the value and reports whether it was new.
func (s *sparseSet) set(e Entity, v any, tick uint64) bool {
	if idx := s.index(e); idx >= 0 {
		s.values[idx] = v
		s.changed[idx] = tick
		return false
	}
	id := int(e.id())
	for id >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
	s.entities = append(s.entities, e)
	s.values = append(s.values, v)
	s.added = append(s.added, tick)
	s.changed = append(s.changed, tick)
	s.sparse[id] = int32(len(s.entities) - 1)
	return true
}

func (s *sparseSet) touch(e Entity, tick uint64) bool {
	idx := s.index(e)
	if idx < 0 {
		return false
	}
	s.changed[idx] = tick
	return true
}

func (s *sparseSet) remove(e Entity, tick uint64) bool {
	idx := s.index(e)
	if idx < 0 {
		return false
	}
	last := len(s.entities) - 1
	moved := s.entities[last]

	s.entities[idx] = moved
	s.values[idx] = s.values[last]
	s.added[idx] = s.added[last]
	s.changed[idx] = s.changed[last]
	s.sparse[moved.id()] = int32(idx)

	s.entities = s.entities[:last]
	s.values[last] = nil
	s.values = s.values[:last]
	s.added = s.added[:last]
	s.changed = s.changed[:last]
	s.sparse[e.id()] = -1

	s.removed = append(s.removed, removal{entity: e, tick: tick})
	return true
}

func (s *sparseSet) addedAt(e Entity) (uint64, bool) {
	idx := s.index(e)
	if idx < 0 {
		return 0, false
	}
	return s.added[idx], true
}

func (s *sparseSet) changedAt(e Entity) (uint64, bool) {
	idx := s.index(e)
	if idx < 0 {
		return 0, false
	}
	return s.changed[idx], true
}

func (s *sparseSet) len() int {
	return len(s.entities)
}
