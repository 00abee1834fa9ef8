package prefabs

import "gopkg.in/yaml.v3"

type EntityBuildSpec struct {
	Name       string         `yaml:"name"`
	Components map[string]any `yaml:"components"`
}

func LoadEntityBuildSpec(filename string) (EntityBuildSpec, error) {
	return LoadSpec[EntityBuildSpec](filename)
}

func DecodeComponentSpec[T any](raw any) (T, error) {
	var zero T
	if raw == nil {
		return zero, nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return zero, err
	}
	var out T
	if err := yaml.Unmarshal(b, &out); err != nil {
		return zero, err
	}
	return out, nil
}

type Vector3Spec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type TransformComponentSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
	// Rotation about Z in radians.
	Rotation float64 `yaml:"rotation"`
}

type VelocityComponentSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
	// Angular speed about Z in radians per second.
	Angular float64 `yaml:"angular"`
}

type ShapeSpec struct {
	Kind        string      `yaml:"kind"`
	Radius      float64     `yaml:"radius"`
	HalfSegment float64     `yaml:"half_segment"`
	HalfExtents Vector3Spec `yaml:"half_extents"`
	OffsetX     float64     `yaml:"offset_x"`
	OffsetY     float64     `yaml:"offset_y"`
}

type BodyComponentSpec struct {
	ShapeSpec `yaml:",inline"`
	Extra     []ShapeSpec `yaml:"extra"`
}

type PhysicMaterialComponentSpec struct {
	Restitution *float64 `yaml:"restitution"`
	Density     *float64 `yaml:"density"`
	Friction    float64  `yaml:"friction"`
}

type CollisionLayerComponentSpec struct {
	Category uint32 `yaml:"category"`
	Mask     uint32 `yaml:"mask"`
}

type GravityScaleComponentSpec struct {
	Scale float64 `yaml:"scale"`
}
