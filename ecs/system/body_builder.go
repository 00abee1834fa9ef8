package system

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
)

var (
	ErrMissingComponent = errors.New("physics system: missing required component")
	ErrInvalidShape     = errors.New("physics system: invalid shape")
	ErrInvalidMaterial  = errors.New("physics system: invalid material")
)

// ConstructionError reports why an entity could not be turned into a body.
// It is non-fatal: the entity is skipped until its components change.
type ConstructionError struct {
	Entity ecs.Entity
	Reason string
	Err    error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("physics system: build body for %s: %s: %v", e.Entity, e.Reason, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// BodySnapshot is the physics-relevant component state of one entity. Body
// and Transform are required; everything else is optional.
type BodySnapshot struct {
	Body         *component.Body
	Transform    *component.Transform
	BodyType     *component.BodyType
	Velocity     *component.Velocity
	Material     *component.PhysicMaterial
	GravityScale *component.GravityScale
	Layers       *component.CollisionLayers
}

// SnapshotOf reads e's components from w.
func SnapshotOf(w *ecs.World, e ecs.Entity) BodySnapshot {
	var snap BodySnapshot
	snap.Body, _ = ecs.Get(w, e, component.BodyComponent.Kind())
	snap.Transform, _ = ecs.Get(w, e, component.TransformComponent.Kind())
	snap.BodyType, _ = ecs.Get(w, e, component.BodyTypeComponent.Kind())
	snap.Velocity, _ = ecs.Get(w, e, component.VelocityComponent.Kind())
	snap.Material, _ = ecs.Get(w, e, component.PhysicMaterialComponent.Kind())
	snap.GravityScale, _ = ecs.Get(w, e, component.GravityScaleComponent.Kind())
	snap.Layers, _ = ecs.Get(w, e, component.CollisionLayersComponent.Kind())
	return snap
}

// PendingBody is a construction request for one entity, consumed in the
// same frame it is built.
type PendingBody struct {
	Entity    ecs.Entity
	Type      component.BodyType
	Body      physics.BodyDesc
	Colliders []physics.ColliderDesc
}

// BuildBody translates a component snapshot into engine descriptors. It
// does not touch the engine or the index.
func BuildBody(e ecs.Entity, snap BodySnapshot) (PendingBody, error) {
	if snap.Body == nil {
		return PendingBody{}, &ConstructionError{Entity: e, Reason: "body", Err: ErrMissingComponent}
	}
	if snap.Transform == nil {
		return PendingBody{}, &ConstructionError{Entity: e, Reason: "transform", Err: ErrMissingComponent}
	}

	bodyType := component.Dynamic
	if snap.BodyType != nil {
		bodyType = *snap.BodyType
	}
	material := component.DefaultPhysicMaterial()
	if snap.Material != nil {
		material = *snap.Material
	}
	if bodyType == component.Dynamic && !(material.Density > 0) {
		return PendingBody{}, &ConstructionError{Entity: e, Reason: fmt.Sprintf("density %v", material.Density), Err: ErrInvalidMaterial}
	}
	if !isFinite(material.Restitution, material.Friction) || material.Restitution < 0 || material.Friction < 0 {
		return PendingBody{}, &ConstructionError{Entity: e, Reason: fmt.Sprintf("restitution %v friction %v", material.Restitution, material.Friction), Err: ErrInvalidMaterial}
	}

	t := snap.Transform
	if !isFinite(t.Translation.X(), t.Translation.Y(), t.Angle()) {
		return PendingBody{}, &ConstructionError{Entity: e, Reason: "non-finite transform", Err: ErrInvalidShape}
	}

	desc := physics.BodyDesc{
		Kind:         physics.BodyDynamic,
		Pose:         poseOf(t),
		GravityScale: 1,
	}
	if bodyType != component.Dynamic {
		desc.Kind = physics.BodyStatic
	}
	if snap.Velocity != nil && bodyType == component.Dynamic {
		desc.Motion = motionOf(snap.Velocity)
	}
	if snap.GravityScale != nil {
		desc.GravityScale = snap.GravityScale.Scale
	}

	var category, mask uint32
	if snap.Layers != nil {
		category, mask = snap.Layers.Resolved()
	}

	shapes := snap.Body.Shapes()
	colliders := make([]physics.ColliderDesc, 0, len(shapes))
	for i, s := range shapes {
		cd, err := colliderDesc(s)
		if err != nil {
			return PendingBody{}, &ConstructionError{Entity: e, Reason: fmt.Sprintf("shape %d (%s)", i, s.Kind), Err: err}
		}
		cd.Density = material.Density
		cd.Restitution = material.Restitution
		cd.Friction = material.Friction
		cd.Sensor = bodyType == component.Sensor
		cd.Category = category
		cd.Mask = mask
		colliders = append(colliders, cd)
	}

	return PendingBody{Entity: e, Type: bodyType, Body: desc, Colliders: colliders}, nil
}

func colliderDesc(s component.Shape) (physics.ColliderDesc, error) {
	cd := physics.ColliderDesc{Offset: s.Offset}
	if !isFinite(s.Offset.X(), s.Offset.Y()) {
		return cd, fmt.Errorf("offset %v: %w", s.Offset, ErrInvalidShape)
	}
	switch s.Kind {
	case component.ShapeSphere:
		if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
			return cd, fmt.Errorf("radius %v: %w", s.Radius, ErrInvalidShape)
		}
		cd.Shape = physics.ColliderCircle
		cd.Radius = s.Radius
	case component.ShapeCapsule:
		if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
			return cd, fmt.Errorf("radius %v: %w", s.Radius, ErrInvalidShape)
		}
		if !(s.HalfSegment >= 0) || math.IsInf(s.HalfSegment, 0) {
			return cd, fmt.Errorf("half segment %v: %w", s.HalfSegment, ErrInvalidShape)
		}
		cd.Shape = physics.ColliderCapsule
		cd.Radius = s.Radius
		cd.HalfSegment = s.HalfSegment
	case component.ShapeCuboid:
		hx, hy := s.HalfExtents.X(), s.HalfExtents.Y()
		if !(hx > 0) || !(hy > 0) || math.IsInf(hx, 0) || math.IsInf(hy, 0) {
			return cd, fmt.Errorf("half extents %v: %w", s.HalfExtents, ErrInvalidShape)
		}
		cd.Shape = physics.ColliderBox
		cd.HalfExtents = mgl64.Vec2{hx, hy}
	default:
		return cd, fmt.Errorf("kind %d: %w", s.Kind, ErrInvalidShape)
	}
	return cd, nil
}

func poseOf(t *component.Transform) physics.Pose {
	return physics.Pose{
		Translation: mgl64.Vec2{t.Translation.X(), t.Translation.Y()},
		Angle:       t.Angle(),
	}
}

func motionOf(v *component.Velocity) physics.Motion {
	return physics.Motion{
		Linear:  mgl64.Vec2{v.Linear.X(), v.Linear.Y()},
		Angular: v.Angular.Z(),
	}
}

func isFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
