package system

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

type fakeBody struct {
	desc      physics.BodyDesc
	pose      physics.Pose
	motion    physics.Motion
	colliders []physics.ColliderHandle
	sleeping  bool
}

// fakeEngine integrates dynamic bodies with explicit Euler and replays
// scripted contacts, so tests control exactly what each step reports.
type fakeEngine struct {
	next      uint64
	bodies    map[physics.BodyHandle]*fakeBody
	colliders map[physics.ColliderHandle]physics.BodyHandle

	// script is consumed one entry per step.
	script [][]physics.ContactEvent
	// onStep runs at the end of every step, for contacts on handles that
	// do not exist yet when the script is written.
	onStep  func()
	events  []physics.ContactEvent
	steps   int
	stepErr error
	// bodyErr and colliderErr are returned by CreateBody and
	// CreateCollider when set.
	bodyErr     error
	colliderErr error
	// poseErr is returned by SetBodyPose when set.
	poseErr error

	poseWrites     int
	velocityWrites int
	lastGravity    mgl64.Vec2
	lastDt         float64
}

var _ physics.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		bodies:    make(map[physics.BodyHandle]*fakeBody),
		colliders: make(map[physics.ColliderHandle]physics.BodyHandle),
	}
}

func (f *fakeEngine) CreateBody(desc physics.BodyDesc) (physics.BodyHandle, error) {
	if f.bodyErr != nil {
		return 0, f.bodyErr
	}
	f.next++
	h := physics.BodyHandle(f.next)
	f.bodies[h] = &fakeBody{desc: desc, pose: desc.Pose, motion: desc.Motion}
	return h, nil
}

func (f *fakeEngine) CreateCollider(body physics.BodyHandle, desc physics.ColliderDesc) (physics.ColliderHandle, error) {
	if f.colliderErr != nil {
		return 0, f.colliderErr
	}
	b, ok := f.bodies[body]
	if !ok {
		return 0, fmt.Errorf("fake: %s: %w", body, physics.ErrHandleNotFound)
	}
	f.next++
	h := physics.ColliderHandle(f.next)
	f.colliders[h] = body
	b.colliders = append(b.colliders, h)
	return h, nil
}

func (f *fakeEngine) RemoveCollider(h physics.ColliderHandle) error {
	body, ok := f.colliders[h]
	if !ok {
		return fmt.Errorf("fake: %s: %w", h, physics.ErrHandleNotFound)
	}
	delete(f.colliders, h)
	if b, ok := f.bodies[body]; ok {
		for i, c := range b.colliders {
			if c == h {
				b.colliders = append(b.colliders[:i], b.colliders[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (f *fakeEngine) RemoveBody(h physics.BodyHandle) error {
	b, ok := f.bodies[h]
	if !ok {
		return fmt.Errorf("fake: %s: %w", h, physics.ErrHandleNotFound)
	}
	for _, c := range b.colliders {
		delete(f.colliders, c)
	}
	delete(f.bodies, h)
	return nil
}

func (f *fakeEngine) SetBodyPose(h physics.BodyHandle, pose physics.Pose) error {
	if f.poseErr != nil {
		return f.poseErr
	}
	b, ok := f.bodies[h]
	if !ok {
		return fmt.Errorf("fake: %s: %w", h, physics.ErrHandleNotFound)
	}
	f.poseWrites++
	b.pose = pose
	b.sleeping = false
	return nil
}

func (f *fakeEngine) SetBodyVelocity(h physics.BodyHandle, motion physics.Motion) error {
	b, ok := f.bodies[h]
	if !ok {
		return fmt.Errorf("fake: %s: %w", h, physics.ErrHandleNotFound)
	}
	f.velocityWrites++
	if b.desc.Kind == physics.BodyDynamic {
		b.motion = motion
		b.sleeping = false
	}
	return nil
}

func (f *fakeEngine) BodyState(h physics.BodyHandle) (physics.Pose, physics.Motion, error) {
	b, ok := f.bodies[h]
	if !ok {
		return physics.Pose{}, physics.Motion{}, fmt.Errorf("fake: %s: %w", h, physics.ErrHandleNotFound)
	}
	return b.pose, b.motion, nil
}

func (f *fakeEngine) ActiveBodies() []physics.BodyHandle {
	var out []physics.BodyHandle
	for h, b := range f.bodies {
		if b.desc.Kind == physics.BodyDynamic && !b.sleeping {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeEngine) Step(gravity mgl64.Vec2, dt float64) error {
	f.steps++
	f.lastGravity, f.lastDt = gravity, dt
	if f.stepErr != nil {
		return f.stepErr
	}
	for _, b := range f.bodies {
		if b.desc.Kind != physics.BodyDynamic || b.sleeping {
			continue
		}
		b.motion.Linear = b.motion.Linear.Add(gravity.Mul(dt * b.desc.GravityScale))
		b.pose.Translation = b.pose.Translation.Add(b.motion.Linear.Mul(dt))
		b.pose.Angle += b.motion.Angular * dt
	}
	if len(f.script) > 0 {
		f.events = append(f.events, f.script[0]...)
		f.script = f.script[1:]
	}
	if f.onStep != nil {
		f.onStep()
	}
	return nil
}

func (f *fakeEngine) DrainContactEvents() []physics.ContactEvent {
	out := f.events
	f.events = nil
	return out
}

// collidersOf returns the colliders of the body mapped to h.
func (f *fakeEngine) collidersOf(h physics.BodyHandle) []physics.ColliderHandle {
	if b, ok := f.bodies[h]; ok {
		return b.colliders
	}
	return nil
}
