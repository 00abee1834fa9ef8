package system

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func began(a, b physics.ColliderHandle) physics.ContactEvent {
	return physics.ContactEvent{Kind: physics.ContactBegan, A: a, B: b}
}

func ended(a, b physics.ColliderHandle) physics.ContactEvent {
	return physics.ContactEvent{Kind: physics.ContactEnded, A: a, B: b}
}

func colliderOf(t *testing.T, h *harness, e ecs.Entity, i int) physics.ColliderHandle {
	t.Helper()
	m, ok := h.ps.Index().Mapping(e)
	require.True(t, ok)
	require.Greater(t, len(m.Colliders), i)
	return m.Colliders[i]
}

func countKind(events []ecs.CollisionEvent, kind ecs.CollisionEventKind) int {
	n := 0
	for _, evt := range events {
		if evt.Kind == kind {
			n++
		}
	}
	return n
}

func TestCollisionEventsFireOncePerTransition(t *testing.T) {
	h := newHarness(t)
	a := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 1, 0})
	b := spawn(t, h.w, component.Cuboid(mgl64.Vec3{5, 0.5, 1}), mgl64.Vec3{0, 0, 0}, withBodyType(component.Static))

	h.step()
	ca, cb := colliderOf(t, h, a, 0), colliderOf(t, h, b, 0)

	// Frames 2..9: overlapping on 3 through 7, several contact reports each.
	h.engine.script = [][]physics.ContactEvent{
		nil,                                           // frame 2
		{began(ca, cb), began(cb, ca), began(ca, cb)}, // frame 3
		{began(ca, cb), began(ca, cb)},                // frame 4
		{began(cb, ca)},                               // frame 5
		nil,                                           // frame 6
		{began(ca, cb)},                               // frame 7
		{ended(ca, cb), ended(cb, ca), ended(ca, cb)}, // frame 8
		nil,                                           // frame 9
	}
	h.steps(8)

	pair := NewEntityPair(a, b)
	for f := 1; f <= h.frame; f++ {
		switch f {
		case 3:
			require.Len(t, h.events[f], 1)
			assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStarted, A: pair.A, B: pair.B}, h.events[f][0])
		case 8:
			require.Len(t, h.events[f], 1)
			assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStopped, A: pair.A, B: pair.B}, h.events[f][0])
		default:
			assert.Empty(t, h.events[f], "frame %d", f)
		}
	}
	assert.Equal(t, NotTouching, h.ps.Contacts().State(a, b))
	assert.Zero(t, h.ps.Contacts().Pairs())
}

func TestCollisionEventsAcrossSeveralColliders(t *testing.T) {
	h := newHarness(t)
	a := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 1, 0}, withExtra(component.Sphere(0.25).At(1, 0)))
	b := spawn(t, h.w, component.Cuboid(mgl64.Vec3{5, 0.5, 1}), mgl64.Vec3{0, 0, 0}, withBodyType(component.Static))
	h.step()

	a0, a1, cb := colliderOf(t, h, a, 0), colliderOf(t, h, a, 1), colliderOf(t, h, b, 0)
	h.engine.script = [][]physics.ContactEvent{
		{began(a0, cb)},
		{began(a1, cb)},
		{ended(a0, cb)},
		{ended(a1, cb)},
	}

	h.step()
	assert.Equal(t, 1, countKind(h.events[h.frame], ecs.CollisionStarted))
	h.step()
	assert.Empty(t, h.events[h.frame])
	st, ok := h.ps.Contacts().Lookup(a, b)
	require.True(t, ok)
	assert.Equal(t, 2, st.Contacts())

	h.step()
	assert.Empty(t, h.events[h.frame], "one collider still touches")
	assert.Equal(t, Touching, h.ps.Contacts().State(b, a))

	h.step()
	assert.Equal(t, 1, countKind(h.events[h.frame], ecs.CollisionStopped))
}

func TestCollisionStoppedOnDestruction(t *testing.T) {
	h := newHarness(t)
	a := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 1, 0})
	b := spawn(t, h.w, component.Cuboid(mgl64.Vec3{5, 0.5, 1}), mgl64.Vec3{0, 0, 0}, withBodyType(component.Static))
	c := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{3, 1, 0})
	h.step()

	ca, cb, cc := colliderOf(t, h, a, 0), colliderOf(t, h, b, 0), colliderOf(t, h, c, 0)
	h.engine.script = [][]physics.ContactEvent{
		{began(ca, cb), began(cc, cb)},
		// late reports for the destroyed entity's collider
		{ended(ca, cb), began(ca, cc)},
		nil,
	}
	h.step()
	require.Len(t, h.events[h.frame], 2)

	ecs.DestroyEntity(h.w, a)
	h.step()
	require.Len(t, h.events[h.frame], 1)
	pair := NewEntityPair(a, b)
	assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStopped, A: pair.A, B: pair.B}, h.events[h.frame][0])

	h.step()
	assert.Empty(t, h.events[h.frame])
	assert.Equal(t, Touching, h.ps.Contacts().State(b, c), "unrelated pair keeps its state")
	assert.Equal(t, 1, h.ps.Contacts().Pairs())
}

func TestTranslateDropsUnresolvedContacts(t *testing.T) {
	ix := NewEntityIndex()
	_, err := ix.Insert(1, 100, 11, 12)
	require.NoError(t, err)
	_, err = ix.Insert(2, 200, 21)
	require.NoError(t, err)

	tr := NewCollisionTranslator(nil)
	out := tr.Translate([]physics.ContactEvent{
		began(11, 99), // unknown handle
		began(11, 12), // same entity
		ended(11, 21), // end without begin
	}, ix)
	assert.Empty(t, out)
	assert.Zero(t, tr.Pairs())

	out = tr.Translate([]physics.ContactEvent{began(21, 11)}, ix)
	require.Len(t, out, 1)
	assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStarted, A: 1, B: 2}, out[0])
	assert.Equal(t, Touching, tr.State(2, 1))
}

func TestPurgeWithoutContactsIsSilent(t *testing.T) {
	tr := NewCollisionTranslator(nil)
	assert.Zero(t, tr.Purge(5))
	assert.Empty(t, tr.Translate(nil, NewEntityIndex()))
}

func TestSuspendedPairs(t *testing.T) {
	touching := func(t *testing.T) (*EntityIndex, *CollisionTranslator) {
		ix := NewEntityIndex()
		_, err := ix.Insert(1, 100, 11)
		require.NoError(t, err)
		_, err = ix.Insert(2, 200, 21)
		require.NoError(t, err)
		tr := NewCollisionTranslator(nil)
		require.Len(t, tr.Translate([]physics.ContactEvent{began(11, 21)}, ix), 1)
		return ix, tr
	}
	rebuild := func(t *testing.T, ix *EntityIndex, collider physics.ColliderHandle) {
		ix.Remove(1)
		_, err := ix.Insert(1, 101, collider)
		require.NoError(t, err)
	}

	t.Run("resumed_contact_is_silent", func(t *testing.T) {
		ix, tr := touching(t)
		assert.Equal(t, 1, tr.Suspend(1))
		assert.Zero(t, tr.Pairs())
		rebuild(t, ix, 12)

		assert.Empty(t, tr.Translate([]physics.ContactEvent{ended(11, 21), began(12, 21)}, ix))
		assert.Equal(t, Touching, tr.State(1, 2))

		out := tr.Translate([]physics.ContactEvent{ended(12, 21)}, ix)
		require.Len(t, out, 1)
		assert.Equal(t, ecs.CollisionStopped, out[0].Kind)
	})

	t.Run("lost_contact_stops", func(t *testing.T) {
		ix, tr := touching(t)
		tr.Suspend(1)
		rebuild(t, ix, 13)

		out := tr.Translate(nil, ix)
		require.Len(t, out, 1)
		assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStopped, A: 1, B: 2}, out[0])
		assert.Empty(t, tr.Translate(nil, ix), "the stop is emitted once")
	})

	t.Run("resumed_then_ended_in_one_drain", func(t *testing.T) {
		ix, tr := touching(t)
		tr.Suspend(1)
		rebuild(t, ix, 14)

		out := tr.Translate([]physics.ContactEvent{began(14, 21), ended(14, 21)}, ix)
		require.Len(t, out, 1)
		assert.Equal(t, ecs.CollisionStopped, out[0].Kind)
		assert.Equal(t, NotTouching, tr.State(1, 2))
	})
}

func TestRebuildDuringContactKeepsPairTouching(t *testing.T) {
	h := newHarness(t)
	a := spawn(t, h.w, component.Sphere(0.5), mgl64.Vec3{0, 1, 0})
	b := spawn(t, h.w, component.Cuboid(mgl64.Vec3{5, 0.5, 1}), mgl64.Vec3{0, 0, 0}, withBodyType(component.Static))
	h.step()

	cb := colliderOf(t, h, b, 0)
	h.engine.script = [][]physics.ContactEvent{{began(colliderOf(t, h, a, 0), cb)}}
	h.step()
	require.Equal(t, 1, countKind(h.events[h.frame], ecs.CollisionStarted))

	// The rebuilt collider keeps touching: the engine reports a fresh
	// contact on the new handle in the same step.
	touching := true
	h.engine.onStep = func() {
		if !touching {
			return
		}
		if m, ok := h.ps.Index().Mapping(a); ok {
			h.engine.events = append(h.engine.events, began(m.Colliders[0], cb))
		}
	}
	require.NoError(t, ecs.Add(h.w, a, component.PhysicMaterialComponent.Kind(), &component.PhysicMaterial{Density: 4}))
	h.step()
	assert.Equal(t, 1, h.ps.Stats().Rebuilt)
	assert.Empty(t, h.events[h.frame], "a rebuild is not a state transition")
	assert.Equal(t, Touching, h.ps.Contacts().State(a, b))

	// Without a fresh contact the pair stops, once.
	touching = false
	require.NoError(t, ecs.Add(h.w, a, component.PhysicMaterialComponent.Kind(), &component.PhysicMaterial{Density: 2}))
	h.step()
	require.Len(t, h.events[h.frame], 1)
	pair := NewEntityPair(a, b)
	assert.Equal(t, ecs.CollisionEvent{Kind: ecs.CollisionStopped, A: pair.A, B: pair.B}, h.events[h.frame][0])

	h.step()
	assert.Empty(t, h.events[h.frame])
}
