package system

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/stretchr/testify/require"
)

const testDt = 1.0 / 60.0

type harness struct {
	t      *testing.T
	w      *ecs.World
	engine *fakeEngine
	ps     *PhysicsSystem
	frame  int
	// events and diags collected per frame, indexed from 1.
	events map[int][]ecs.CollisionEvent
	diags  map[int][]ecs.Diagnostic
}

func newHarness(t *testing.T, opts ...PhysicsOption) *harness {
	t.Helper()
	settings := config.Default()
	settings.Timestep = testDt
	w := ecs.NewWorld()
	eng := newFakeEngine()
	ps := NewPhysicsSystem(eng, append([]PhysicsOption{WithSettings(settings)}, opts...)...)
	w.AddSystem(ps)
	return &harness{
		t:      t,
		w:      w,
		engine: eng,
		ps:     ps,
		events: make(map[int][]ecs.CollisionEvent),
		diags:  make(map[int][]ecs.Diagnostic),
	}
}

func (h *harness) step() {
	h.t.Helper()
	h.frame++
	require.NoError(h.t, h.w.Update(), "frame %d", h.frame)
	h.events[h.frame] = h.w.CollisionEvents().Drain()
	h.diags[h.frame] = h.w.Diagnostics().Drain()
}

func (h *harness) steps(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.step()
	}
}

func (h *harness) allEvents() []ecs.CollisionEvent {
	var out []ecs.CollisionEvent
	for f := 1; f <= h.frame; f++ {
		out = append(out, h.events[f]...)
	}
	return out
}

type spawnOption func(w *ecs.World, e ecs.Entity) error

func withBodyType(bt component.BodyType) spawnOption {
	return func(w *ecs.World, e ecs.Entity) error {
		return ecs.Add(w, e, component.BodyTypeComponent.Kind(), &bt)
	}
}

func withVelocity(x, y float64) spawnOption {
	return func(w *ecs.World, e ecs.Entity) error {
		return ecs.Add(w, e, component.VelocityComponent.Kind(), component.NewVelocity(x, y, 0))
	}
}

func withExtra(shapes ...component.Shape) spawnOption {
	return func(w *ecs.World, e ecs.Entity) error {
		b, _ := ecs.Get(w, e, component.BodyComponent.Kind())
		b.Extra = append(b.Extra, shapes...)
		return nil
	}
}

// spawn creates an entity with Body and Transform plus opts.
func spawn(t *testing.T, w *ecs.World, shape component.Shape, pos mgl64.Vec3, opts ...spawnOption) ecs.Entity {
	t.Helper()
	e := ecs.CreateEntity(w)
	require.NoError(t, ecs.Add(w, e, component.TransformComponent.Kind(), component.NewTransform(pos.X(), pos.Y(), pos.Z())))
	require.NoError(t, ecs.Add(w, e, component.BodyComponent.Kind(), &component.Body{Shape: shape}))
	for _, opt := range opts {
		require.NoError(t, opt(w, e))
	}
	return e
}

func transformOf(t *testing.T, w *ecs.World, e ecs.Entity) *component.Transform {
	t.Helper()
	tr, ok := ecs.Get(w, e, component.TransformComponent.Kind())
	require.True(t, ok)
	return tr
}
