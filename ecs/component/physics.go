package component

import "github.com/go-gl/mathgl/mgl64"

// ShapeKind selects the collider geometry.
type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota + 1
	ShapeCapsule
	ShapeCuboid
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	case ShapeCuboid:
		return "cuboid"
	default:
		return "unknown"
	}
}

// Shape is a collider geometry. A sphere is a circle in the planar
// engine, a capsule runs along the local Y axis, and the Z half extent of a
// cuboid is ignored.
type Shape struct {
	Kind ShapeKind
	// Radius of a sphere, or of a capsule's hemispheres.
	Radius float64
	// HalfSegment is the distance from a capsule's center to the center of
	// either hemisphere.
	HalfSegment float64
	// HalfExtents of a cuboid.
	HalfExtents mgl64.Vec3
	// Offset from the body center, in body space.
	Offset mgl64.Vec2
}

func Sphere(radius float64) Shape {
	return Shape{Kind: ShapeSphere, Radius: radius}
}

func Capsule(halfSegment, radius float64) Shape {
	return Shape{Kind: ShapeCapsule, HalfSegment: halfSegment, Radius: radius}
}

func Cuboid(halfExtents mgl64.Vec3) Shape {
	return Shape{Kind: ShapeCuboid, HalfExtents: halfExtents}
}

// At returns a copy of the shape offset from the body center.
func (s Shape) At(x, y float64) Shape {
	s.Offset = mgl64.Vec2{x, y}
	return s
}

// Body makes an entity subject to physics and collision. Together with a
// Transform it is the defining component set.
type Body struct {
	Shape Shape
	// Extra colliders attached to the same rigid body.
	Extra []Shape
}

var BodyComponent = NewComponent[Body]()

// Shapes returns the primary shape followed by any extra shapes.
func (b *Body) Shapes() []Shape {
	if b == nil {
		return nil
	}
	out := make([]Shape, 0, 1+len(b.Extra))
	out = append(out, b.Shape)
	return append(out, b.Extra...)
}

// BodyType defines how forces affect a body. Dynamic is the default when
// the component is absent.
type BodyType uint8

const (
	// Dynamic bodies are moved by forces and push other bodies.
	Dynamic BodyType = iota
	// Static bodies never move on their own but block other bodies.
	Static
	// Sensor bodies neither move nor block; they only report collisions.
	Sensor
)

func (t BodyType) String() string {
	switch t {
	case Dynamic:
		return "dynamic"
	case Static:
		return "static"
	case Sensor:
		return "sensor"
	default:
		return "unknown"
	}
}

var BodyTypeComponent = NewComponent[BodyType]()

const (
	// PerfectlyInelasticRestitution loses all energy on impact.
	PerfectlyInelasticRestitution = 0.0
	// PerfectlyElasticRestitution keeps all energy on impact.
	PerfectlyElasticRestitution = 1.0
)

// PhysicMaterial holds the surface and mass properties of a body.
type PhysicMaterial struct {
	// Restitution is the bounciness, typically between 0 and 1.
	Restitution float64
	// Density must be > 0 for dynamic bodies. It is ignored otherwise.
	Density float64
	// Friction coefficient of the surface.
	Friction float64
}

var PhysicMaterialComponent = NewComponent[PhysicMaterial]()

// DefaultPhysicMaterial is used when an entity has no PhysicMaterial.
func DefaultPhysicMaterial() PhysicMaterial {
	return PhysicMaterial{
		Restitution: PerfectlyInelasticRestitution,
		Density:     1,
	}
}
