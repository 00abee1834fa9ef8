package prefabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	for _, name := range []string{"ball.yaml", "prefabs/ball.yaml"} {
		data, err := Load(name)
		require.NoError(t, err, name)
		assert.Contains(t, string(data), "kind: sphere")
	}

	_, err := Load("missing.yaml")
	assert.Error(t, err)
}

func TestLoadEntityBuildSpec(t *testing.T) {
	spec, err := LoadEntityBuildSpec("ground.yaml")
	require.NoError(t, err)
	assert.Equal(t, "ground", spec.Name)
	assert.Contains(t, spec.Components, "body")
	assert.Equal(t, "static", spec.Components["body_type"])
}

func TestLoadSceneSpec(t *testing.T) {
	scene, err := LoadSceneSpec("scene_drop.yaml")
	require.NoError(t, err)
	assert.Equal(t, "drop", scene.Name)
	require.Len(t, scene.Entities, 6)
	assert.Equal(t, "ball.yaml", scene.Entities[5].Prefab)
	assert.Contains(t, scene.Entities[5].Components, "transform")
}

func TestDecodeComponentSpec(t *testing.T) {
	raw := map[string]any{
		"kind":         "cuboid",
		"half_extents": map[string]any{"x": 2, "y": 0.5},
		"extra": []any{
			map[string]any{"kind": "sphere", "radius": 0.1, "offset_y": -1},
		},
	}
	body, err := DecodeComponentSpec[BodyComponentSpec](raw)
	require.NoError(t, err)
	assert.Equal(t, "cuboid", body.Kind)
	assert.Equal(t, Vector3Spec{X: 2, Y: 0.5}, body.HalfExtents)
	require.Len(t, body.Extra, 1)
	assert.Equal(t, -1.0, body.Extra[0].OffsetY)

	m, err := DecodeComponentSpec[PhysicMaterialComponentSpec](map[string]any{"friction": 0.3})
	require.NoError(t, err)
	assert.Nil(t, m.Density, "absent keys stay unset")
	assert.Equal(t, 0.3, m.Friction)

	zero, err := DecodeComponentSpec[TransformComponentSpec](nil)
	require.NoError(t, err)
	assert.Equal(t, TransformComponentSpec{}, zero)

	_, err = DecodeComponentSpec[TransformComponentSpec](map[string]any{"x": "left"})
	assert.Error(t, err)
}
