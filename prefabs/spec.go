package prefabs

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func LoadSpec[T any](filename string) (T, error) {
	var zero T
	data, err := Load(filename)
	if err != nil {
		return zero, fmt.Errorf("prefabs: load %s: %w", filename, err)
	}

	var spec T
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return zero, fmt.Errorf("prefabs: unmarshal %s: %w", filename, err)
	}

	return spec, nil
}

// SceneSpec lists the entities of a scene. Each entry instantiates a prefab
// and may override some of its components.
type SceneSpec struct {
	Name     string            `yaml:"name"`
	Entities []SceneEntitySpec `yaml:"entities"`
}

type SceneEntitySpec struct {
	Name   string `yaml:"name"`
	Prefab string `yaml:"prefab"`
	// Components replace the prefab's components of the same key.
	Components map[string]any `yaml:"components"`
}

func LoadSceneSpec(filename string) (SceneSpec, error) {
	spec, err := LoadSpec[SceneSpec](filename)
	if err != nil {
		return SceneSpec{}, err
	}
	for i, ent := range spec.Entities {
		if ent.Prefab == "" && len(ent.Components) == 0 {
			return SceneSpec{}, fmt.Errorf("prefabs: scene %s: entity %d (%q) has neither prefab nor components", filename, i, ent.Name)
		}
	}
	return spec, nil
}
