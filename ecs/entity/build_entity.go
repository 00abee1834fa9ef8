package entity

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/prefabs"
)

var (
	ErrNoComponents     = errors.New("build entity: prefab does not define components")
	ErrUnknownComponent = errors.New("build entity: no builder for component")
)

type buildContext struct {
	PrefabPath string
}

type componentBuildFn func(w *ecs.World, e ecs.Entity, raw any, ctx *buildContext) error

var componentRegistry = map[string]componentBuildFn{
	"transform":        addTransform,
	"velocity":         addVelocity,
	"body":             addBody,
	"body_type":        addBodyType,
	"material":         addMaterial,
	"gravity_scale":    addGravityScale,
	"collision_layers": addCollisionLayers,
}

// Body and Transform go last so an entity only qualifies for physics once
// its modifiers are in place.
var componentBuildOrder = []string{
	"body_type",
	"material",
	"gravity_scale",
	"collision_layers",
	"velocity",
	"transform",
	"body",
}

func BuildEntity(w *ecs.World, prefabPath string) (ecs.Entity, error) {
	if w == nil {
		return 0, fmt.Errorf("build entity: world is nil")
	}

	spec, err := prefabs.LoadEntityBuildSpec(prefabPath)
	if err != nil {
		return 0, fmt.Errorf("build entity: load %q: %w", prefabPath, err)
	}
	return BuildEntityFromSpec(w, spec, prefabPath)
}

// BuildEntityFromSpec creates an entity from an already decoded spec.
// source names the spec in errors.
func BuildEntityFromSpec(w *ecs.World, spec prefabs.EntityBuildSpec, source string) (ecs.Entity, error) {
	if w == nil {
		return 0, fmt.Errorf("build entity: world is nil")
	}
	if len(spec.Components) == 0 {
		return 0, fmt.Errorf("build entity: %q: %w", source, ErrNoComponents)
	}

	// Reject unknown keys before touching the world.
	names := make([]string, 0, len(spec.Components))
	for name := range spec.Components {
		if _, ok := componentRegistry[name]; !ok {
			return 0, fmt.Errorf("build entity: %q: %w %q", source, ErrUnknownComponent, name)
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return buildRank(names[i]) < buildRank(names[j]) })

	e := ecs.CreateEntity(w)
	ctx := &buildContext{PrefabPath: source}
	for _, name := range names {
		if err := componentRegistry[name](w, e, spec.Components[name], ctx); err != nil {
			ecs.DestroyEntity(w, e)
			return 0, fmt.Errorf("build entity: %q: add %q: %w", source, name, err)
		}
	}
	return e, nil
}

func buildRank(name string) int {
	for i, n := range componentBuildOrder {
		if n == name {
			return i
		}
	}
	return len(componentBuildOrder)
}

// BuildScene instantiates every entity of a scene. Named entities are
// returned by name. On error the entities built so far are destroyed.
func BuildScene(w *ecs.World, scenePath string) (map[string]ecs.Entity, error) {
	scene, err := prefabs.LoadSceneSpec(scenePath)
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}

	built := make([]ecs.Entity, 0, len(scene.Entities))
	named := make(map[string]ecs.Entity, len(scene.Entities))
	fail := func(err error) (map[string]ecs.Entity, error) {
		for _, e := range built {
			ecs.DestroyEntity(w, e)
		}
		return nil, err
	}

	for i, ent := range scene.Entities {
		spec := prefabs.EntityBuildSpec{Name: ent.Name, Components: map[string]any{}}
		source := fmt.Sprintf("%s#%d", scenePath, i)
		if ent.Prefab != "" {
			base, err := prefabs.LoadEntityBuildSpec(ent.Prefab)
			if err != nil {
				return fail(fmt.Errorf("build scene: entity %d: %w", i, err))
			}
			maps.Copy(spec.Components, base.Components)
			source = ent.Prefab
		}
		maps.Copy(spec.Components, ent.Components)

		e, err := BuildEntityFromSpec(w, spec, source)
		if err != nil {
			return fail(fmt.Errorf("build scene: entity %d (%q): %w", i, ent.Name, err))
		}
		built = append(built, e)
		if ent.Name != "" {
			if _, dup := named[ent.Name]; dup {
				return fail(fmt.Errorf("build scene: duplicate entity name %q", ent.Name))
			}
			named[ent.Name] = e
		}
	}
	return named, nil
}

// SetEntityTransform moves e, creating its Transform when missing. The
// write is seen by the physics system as a gameplay write.
func SetEntityTransform(w *ecs.World, e ecs.Entity, x, y, rotation float64) error {
	t, ok := ecs.Get(w, e, component.TransformComponent.Kind())
	if !ok || t == nil {
		t = component.NewTransform(0, 0, 0)
	}
	t.Translation = mgl64.Vec3{x, y, t.Translation.Z()}
	t.SetAngle(rotation)
	return ecs.Add(w, e, component.TransformComponent.Kind(), t)
}

type transformSpec = prefabs.TransformComponentSpec

func addTransform(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[transformSpec](raw)
	if err != nil {
		return fmt.Errorf("decode transform spec: %w", err)
	}
	t := component.NewTransform(spec.X, spec.Y, spec.Z)
	t.SetAngle(spec.Rotation)
	return ecs.Add(w, e, component.TransformComponent.Kind(), t)
}

type velocitySpec = prefabs.VelocityComponentSpec

func addVelocity(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[velocitySpec](raw)
	if err != nil {
		return fmt.Errorf("decode velocity spec: %w", err)
	}
	v := component.NewVelocity(spec.X, spec.Y, spec.Z).WithAngular(spec.Angular)
	return ecs.Add(w, e, component.VelocityComponent.Kind(), v)
}

type bodySpec = prefabs.BodyComponentSpec

func addBody(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[bodySpec](raw)
	if err != nil {
		return fmt.Errorf("decode body spec: %w", err)
	}
	shape, err := decodeShape(spec.ShapeSpec)
	if err != nil {
		return err
	}
	body := &component.Body{Shape: shape}
	for i, extra := range spec.Extra {
		s, err := decodeShape(extra)
		if err != nil {
			return fmt.Errorf("extra %d: %w", i, err)
		}
		body.Extra = append(body.Extra, s)
	}
	return ecs.Add(w, e, component.BodyComponent.Kind(), body)
}

func decodeShape(spec prefabs.ShapeSpec) (component.Shape, error) {
	var s component.Shape
	switch strings.ToLower(spec.Kind) {
	case "sphere", "circle":
		s = component.Sphere(spec.Radius)
	case "capsule":
		s = component.Capsule(spec.HalfSegment, spec.Radius)
	case "cuboid", "box":
		s = component.Cuboid(mgl64.Vec3{spec.HalfExtents.X, spec.HalfExtents.Y, spec.HalfExtents.Z})
	default:
		return s, fmt.Errorf("unknown shape kind %q", spec.Kind)
	}
	return s.At(spec.OffsetX, spec.OffsetY), nil
}

func addBodyType(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	name, err := prefabs.DecodeComponentSpec[string](raw)
	if err != nil {
		return fmt.Errorf("decode body type spec: %w", err)
	}
	var bt component.BodyType
	switch strings.ToLower(name) {
	case "", "dynamic":
		bt = component.Dynamic
	case "static":
		bt = component.Static
	case "sensor":
		bt = component.Sensor
	default:
		return fmt.Errorf("unknown body type %q", name)
	}
	return ecs.Add(w, e, component.BodyTypeComponent.Kind(), &bt)
}

type materialSpec = prefabs.PhysicMaterialComponentSpec

func addMaterial(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[materialSpec](raw)
	if err != nil {
		return fmt.Errorf("decode material spec: %w", err)
	}
	m := component.DefaultPhysicMaterial()
	if spec.Restitution != nil {
		m.Restitution = *spec.Restitution
	}
	if spec.Density != nil {
		m.Density = *spec.Density
	}
	m.Friction = spec.Friction
	return ecs.Add(w, e, component.PhysicMaterialComponent.Kind(), &m)
}

type gravityScaleSpec = prefabs.GravityScaleComponentSpec

func addGravityScale(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[gravityScaleSpec](raw)
	if err != nil {
		return fmt.Errorf("decode gravity scale spec: %w", err)
	}
	return ecs.Add(w, e, component.GravityScaleComponent.Kind(), &component.GravityScale{Scale: spec.Scale})
}

type collisionLayerSpec = prefabs.CollisionLayerComponentSpec

func addCollisionLayers(w *ecs.World, e ecs.Entity, raw any, _ *buildContext) error {
	spec, err := prefabs.DecodeComponentSpec[collisionLayerSpec](raw)
	if err != nil {
		return fmt.Errorf("decode collision layer spec: %w", err)
	}
	return ecs.Add(w, e, component.CollisionLayersComponent.Kind(), &component.CollisionLayers{Category: spec.Category, Mask: spec.Mask})
}
