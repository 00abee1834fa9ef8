package component

// CollisionLayers allows entities to declare a collision category and mask
// so the engine can selectively enable/disable collisions between groups
// of bodies. It applies to every collider of the body.
type CollisionLayers struct {
	// Category is a bitmask of this entity's collision category. If zero,
	// it is treated as category 1.
	Category uint32 `yaml:"category,omitempty"`
	// Mask is a bitmask of categories this entity should collide with. If
	// zero, it is treated as all-bits set (collide with all).
	Mask uint32 `yaml:"mask,omitempty"`
}

var CollisionLayersComponent = NewComponent[CollisionLayers]()

// Resolved returns the category and mask with zero values defaulted.
func (l CollisionLayers) Resolved() (category, mask uint32) {
	category, mask = l.Category, l.Mask
	if category == 0 {
		category = 1
	}
	if mask == 0 {
		mask = ^uint32(0)
	}
	return category, mask
}
