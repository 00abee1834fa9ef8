package system

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostStepWriteIsNotPushedBack(t *testing.T) {
	h := newHarness(t)
	e := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 10, 0}, withVelocity(0, 0))

	h.steps(2)
	assert.Equal(t, 1, h.ps.Stats().Pulled)
	assert.False(t, ecs.ChangedSince(h.w, e, component.TransformComponent.Kind(), h.ps.lastTick))
	assert.False(t, ecs.ChangedSince(h.w, e, component.VelocityComponent.Kind(), h.ps.lastTick))

	poses, vels := h.engine.poseWrites, h.engine.velocityWrites
	h.steps(5)
	assert.Equal(t, poses, h.engine.poseWrites, "engine-originated writes must not be pushed")
	assert.Equal(t, vels, h.engine.velocityWrites)
	assert.Zero(t, h.ps.Stats().Pushed)

	// The entity kept falling under gravity the whole time.
	assert.Less(t, transformOf(t, h.w, e).Translation.Y(), 10.0)
}

func TestGameplayWriteIsPushed(t *testing.T) {
	h := newHarness(t)
	e := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 10, 0}, withVelocity(0, 0))
	h.steps(3)

	poses := h.engine.poseWrites
	tr := transformOf(t, h.w, e)
	tr.Translation = mgl64.Vec3{100, 50, 0}
	require.NoError(t, ecs.Add(h.w, e, component.TransformComponent.Kind(), tr))

	h.step()
	assert.Equal(t, poses+1, h.engine.poseWrites)
	assert.Equal(t, 1, h.ps.Stats().Pushed)

	got := transformOf(t, h.w, e).Translation
	assert.InDelta(t, 100, got.X(), 1e-9)
	assert.InDelta(t, 50, got.Y(), 0.1, "one step of gravity from the written position")

	t.Run("velocity_only", func(t *testing.T) {
		poses, vels := h.engine.poseWrites, h.engine.velocityWrites
		v, _ := ecs.Get(h.w, e, component.VelocityComponent.Kind())
		v.Linear = mgl64.Vec3{3, 0, 0}
		ecs.MarkChanged(h.w, e, component.VelocityComponent.Kind())

		h.step()
		assert.Equal(t, poses, h.engine.poseWrites)
		assert.Equal(t, vels+1, h.engine.velocityWrites)
		v, _ = ecs.Get(h.w, e, component.VelocityComponent.Kind())
		assert.InDelta(t, 3, v.Linear.X(), 1e-9)
	})
}

func TestVelocityPushedWhenPoseWriteFails(t *testing.T) {
	h := newHarness(t)
	e := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 10, 0}, withVelocity(0, 0))
	h.step()

	h.engine.poseErr = errors.New("pose rejected")
	tr := transformOf(t, h.w, e)
	tr.Translation = mgl64.Vec3{7, 7, 0}
	require.NoError(t, ecs.Add(h.w, e, component.TransformComponent.Kind(), tr))
	require.NoError(t, ecs.Add(h.w, e, component.VelocityComponent.Kind(), component.NewVelocity(4, 0, 0)))

	vels := h.engine.velocityWrites
	h.step()
	assert.Equal(t, vels+1, h.engine.velocityWrites)
	assert.Equal(t, 1, h.ps.Stats().Pushed)

	v, _ := ecs.Get(h.w, e, component.VelocityComponent.Kind())
	assert.InDelta(t, 4, v.Linear.X(), 1e-9)
	assert.InDelta(t, 0, transformOf(t, h.w, e).Translation.X(), 0.1, "the rejected pose is replaced by the engine's")
}

func TestStaticBodyRoundTrip(t *testing.T) {
	h := newHarness(t)
	pos := mgl64.Vec3{1.5, -2, 3}
	e := spawn(t, h.w, component.Cuboid(mgl64.Vec3{10, 0.5, 1}), pos, withBodyType(component.Static))
	tr := transformOf(t, h.w, e)
	tr.SetAngle(0.25)
	require.NoError(t, ecs.Add(h.w, e, component.TransformComponent.Kind(), tr))

	h.steps(10)
	got := transformOf(t, h.w, e)
	assert.InDelta(t, pos.X(), got.Translation.X(), 1e-9)
	assert.InDelta(t, pos.Y(), got.Translation.Y(), 1e-9)
	assert.InDelta(t, pos.Z(), got.Translation.Z(), 1e-9)
	assert.InDelta(t, 0.25, got.Angle(), 1e-9)
	assert.Zero(t, h.ps.Stats().Pulled)
}

func TestSleepingBodiesAreSkipped(t *testing.T) {
	h := newHarness(t)
	e := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 3, 0})
	h.step()

	body, _ := h.ps.Index().HandleFor(e)
	h.engine.bodies[body].sleeping = true
	before := transformOf(t, h.w, e).Translation
	tick := ecs.ChangeTick(h.w)

	h.steps(3)
	assert.Zero(t, h.ps.Stats().Pulled)
	assert.Equal(t, before, transformOf(t, h.w, e).Translation)
	assert.False(t, ecs.ChangedSince(h.w, e, component.TransformComponent.Kind(), tick))
}

func TestPullPreservesDepth(t *testing.T) {
	h := newHarness(t)
	e := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 3, -4}, withVelocity(0, 0))
	v, _ := ecs.Get(h.w, e, component.VelocityComponent.Kind())
	v.Linear = mgl64.Vec3{0, 0, 7}

	h.steps(3)
	assert.Equal(t, -4.0, transformOf(t, h.w, e).Translation.Z())
	v, _ = ecs.Get(h.w, e, component.VelocityComponent.Kind())
	assert.Equal(t, 7.0, v.Linear.Z())
}

func TestParallelSyncMatchesSerial(t *testing.T) {
	run := func(workers int) []mgl64.Vec3 {
		settings := config.Default()
		settings.Timestep = testDt
		settings.Workers = workers
		h := newHarness(t, WithSettings(settings))

		var ents []ecs.Entity
		for i := 0; i < 64; i++ {
			ents = append(ents, spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{float64(i), float64(i % 7), 0}, withVelocity(float64(i%3), 1)))
		}
		h.steps(10)

		// gameplay write on every fourth entity
		for i := 0; i < len(ents); i += 4 {
			tr := transformOf(t, h.w, ents[i])
			tr.Translation = tr.Translation.Add(mgl64.Vec3{0, 1, 0})
			ecs.MarkChanged(h.w, ents[i], component.TransformComponent.Kind())
		}
		h.steps(10)

		out := make([]mgl64.Vec3, len(ents))
		for i, e := range ents {
			out[i] = transformOf(t, h.w, e).Translation
		}
		return out
	}

	serial := run(1)
	parallel := run(4)
	require.Len(t, parallel, len(serial))
	for i := range serial {
		assert.InDelta(t, serial[i].X(), parallel[i].X(), 1e-9, "entity %d", i)
		assert.InDelta(t, serial[i].Y(), parallel[i].Y(), 1e-9, "entity %d", i)
	}
}

func TestForChunks(t *testing.T) {
	cases := []struct {
		name    string
		workers int
		n       int
	}{
		{"empty", 4, 0},
		{"serial", 1, 10},
		{"small_batch", 8, 9},
		{"uneven", 3, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			seen := make([]int, c.n)
			err := forChunks(c.workers, c.n, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					seen[i]++
				}
				return nil
			})
			require.NoError(t, err)
			for i, v := range seen {
				assert.Equal(t, 1, v, "index %d", i)
			}
		})
	}
}
