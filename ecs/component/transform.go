package component

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is the entity's world-space placement. The physics engine is
// planar: it reads and writes X, Y and the rotation about Z, and leaves
// Translation.Z untouched.
type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

var TransformComponent = NewComponent[Transform]()

// NewTransform places an entity at (x, y, z) with no rotation.
func NewTransform(x, y, z float64) *Transform {
	return &Transform{
		Translation: mgl64.Vec3{x, y, z},
		Rotation:    mgl64.QuatIdent(),
		Scale:       mgl64.Vec3{1, 1, 1},
	}
}

// Angle returns the rotation about the Z axis in radians.
func (t *Transform) Angle() float64 {
	if t == nil {
		return 0
	}
	q := t.Rotation
	if q.W == 0 && q.V.Len() == 0 {
		return 0
	}
	q = q.Normalize()
	return 2 * math.Atan2(q.V[2], q.W)
}

// SetAngle replaces the rotation with a rotation of angle radians about Z.
func (t *Transform) SetAngle(angle float64) {
	if t == nil {
		return
	}
	t.Rotation = mgl64.QuatRotate(angle, mgl64.Vec3{0, 0, 1})
}
