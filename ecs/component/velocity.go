package component

import "github.com/go-gl/mathgl/mgl64"

// AxisAngle is an angular velocity: the direction is the rotation axis
// and the length is the speed in radians per second.
type AxisAngle mgl64.Vec3

// NewAxisAngle builds an angular velocity of angle radians per second about
// axis. A zero axis yields no rotation.
func NewAxisAngle(axis mgl64.Vec3, angle float64) AxisAngle {
	if axis.Len() == 0 {
		return AxisAngle{}
	}
	return AxisAngle(axis.Normalize().Mul(angle))
}

// Z returns the signed rotation speed about the Z axis, the only axis the
// planar engine simulates.
func (a AxisAngle) Z() float64 {
	return a[2]
}

// Velocity is the linear and angular velocity of a body.
type Velocity struct {
	Linear  mgl64.Vec3
	Angular AxisAngle
}

var VelocityComponent = NewComponent[Velocity]()

// NewVelocity returns a velocity with the given linear part.
func NewVelocity(x, y, z float64) *Velocity {
	return &Velocity{Linear: mgl64.Vec3{x, y, z}}
}

// WithAngular returns a copy spinning at angle radians per second about Z.
func (v Velocity) WithAngular(angle float64) *Velocity {
	v.Angular = AxisAngle{0, 0, angle}
	return &v
}
