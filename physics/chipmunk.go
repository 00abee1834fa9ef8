package physics

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
)

// Every collider shares one collision type so a single handler sees all
// contacts; filtering is done with shape filters.
const collisionTypeCollider cp.CollisionType = 1

// ChipmunkOptions tunes the underlying space.
type ChipmunkOptions struct {
	// Iterations of the solver per step. Zero keeps the chipmunk default.
	Iterations int
	// CollisionSlop is the overlap allowed between shapes. Zero keeps the
	// chipmunk default.
	CollisionSlop float64
	// SleepTimeThreshold is how long a body must be idle before it sleeps.
	// Zero disables sleeping.
	SleepTimeThreshold float64
}

// ChipmunkEngine implements Engine on top of a Chipmunk2D space.
type ChipmunkEngine struct {
	space *cp.Space
	next  uint64

	bodies       map[BodyHandle]*chipmunkBody
	colliders    map[ColliderHandle]*chipmunkCollider
	shapeHandles map[*cp.Shape]ColliderHandle

	// dynamic keeps dynamic handles in creation order for ActiveBodies.
	dynamic    []BodyHandle
	dynamicIdx map[BodyHandle]int

	events []ContactEvent
}

type chipmunkBody struct {
	body      *cp.Body
	static    bool
	mass      float64
	moment    float64
	colliders map[ColliderHandle]struct{}
}

type chipmunkCollider struct {
	shape  *cp.Shape
	body   BodyHandle
	sensor bool
}

var _ Engine = (*ChipmunkEngine)(nil)

// NewChipmunkEngine creates an empty space configured by opts.
func NewChipmunkEngine(opts ChipmunkOptions) *ChipmunkEngine {
	space := cp.NewSpace()
	if opts.Iterations > 0 {
		space.Iterations = uint(opts.Iterations)
	}
	if opts.CollisionSlop > 0 {
		space.SetCollisionSlop(opts.CollisionSlop)
	}
	if opts.SleepTimeThreshold > 0 {
		space.SleepTimeThreshold = opts.SleepTimeThreshold
	}

	e := &ChipmunkEngine{
		space:        space,
		bodies:       make(map[BodyHandle]*chipmunkBody),
		colliders:    make(map[ColliderHandle]*chipmunkCollider),
		shapeHandles: make(map[*cp.Shape]ColliderHandle),
		dynamicIdx:   make(map[BodyHandle]int),
	}
	e.setupHandlers()
	return e
}

// Space returns the underlying Chipmunk space, for debug drawing.
func (e *ChipmunkEngine) Space() *cp.Space {
	if e == nil {
		return nil
	}
	return e.space
}

func (e *ChipmunkEngine) setupHandlers() {
	handler := e.space.NewCollisionHandler(collisionTypeCollider, collisionTypeCollider)
	handler.UserData = e
	handler.BeginFunc = func(arb *cp.Arbiter, space *cp.Space, userData interface{}) bool {
		eng, ok := userData.(*ChipmunkEngine)
		if !ok || eng == nil {
			return true
		}
		eng.queueContact(ContactBegan, arb)
		return true
	}
	handler.SeparateFunc = func(arb *cp.Arbiter, space *cp.Space, userData interface{}) {
		eng, ok := userData.(*ChipmunkEngine)
		if !ok || eng == nil {
			return
		}
		eng.queueContact(ContactEnded, arb)
	}
}

func (e *ChipmunkEngine) queueContact(kind ContactKind, arb *cp.Arbiter) {
	shapeA, shapeB := arb.Shapes()
	a, okA := e.shapeHandles[shapeA]
	b, okB := e.shapeHandles[shapeB]
	if !okA || !okB {
		return
	}
	sensor := e.colliders[a].sensor || e.colliders[b].sensor
	e.events = append(e.events, ContactEvent{Kind: kind, A: a, B: b, Sensor: sensor})
}

func (e *ChipmunkEngine) CreateBody(desc BodyDesc) (BodyHandle, error) {
	var body *cp.Body
	static := desc.Kind == BodyStatic
	if static {
		body = cp.NewStaticBody()
	} else {
		// Placeholder mass until colliders are attached.
		body = cp.NewBody(1, 1)
	}
	body.SetPosition(toVector(desc.Pose.Translation))
	body.SetAngle(desc.Pose.Angle)
	if !static {
		body.SetVelocityVector(toVector(desc.Motion.Linear))
		body.SetAngularVelocity(desc.Motion.Angular)
		if desc.GravityScale != 1 {
			scale := desc.GravityScale
			body.SetVelocityUpdateFunc(func(b *cp.Body, gravity cp.Vector, damping float64, dt float64) {
				cp.BodyUpdateVelocity(b, gravity.Mult(scale), damping, dt)
			})
		}
	}
	e.space.AddBody(body)

	e.next++
	h := BodyHandle(e.next)
	e.bodies[h] = &chipmunkBody{
		body:      body,
		static:    static,
		colliders: make(map[ColliderHandle]struct{}),
	}
	if !static {
		e.dynamicIdx[h] = len(e.dynamic)
		e.dynamic = append(e.dynamic, h)
	}
	return h, nil
}

func (e *ChipmunkEngine) CreateCollider(bh BodyHandle, desc ColliderDesc) (ColliderHandle, error) {
	entry, ok := e.bodies[bh]
	if !ok {
		return 0, fmt.Errorf("physics: create collider on %s: %w", bh, ErrHandleNotFound)
	}

	offset := toVector(desc.Offset)
	var (
		shape  *cp.Shape
		area   float64
		moment func(mass float64) float64
	)
	switch desc.Shape {
	case ColliderCircle:
		if desc.Radius <= 0 {
			return 0, fmt.Errorf("physics: circle radius %v: %w", desc.Radius, ErrInvalidDesc)
		}
		shape = cp.NewCircle(entry.body, desc.Radius, offset)
		area = math.Pi * desc.Radius * desc.Radius
		moment = func(m float64) float64 { return cp.MomentForCircle(m, 0, desc.Radius, offset) }
	case ColliderCapsule:
		if desc.Radius <= 0 || desc.HalfSegment < 0 {
			return 0, fmt.Errorf("physics: capsule radius %v half segment %v: %w", desc.Radius, desc.HalfSegment, ErrInvalidDesc)
		}
		a := offset.Add(cp.Vector{X: 0, Y: -desc.HalfSegment})
		b := offset.Add(cp.Vector{X: 0, Y: desc.HalfSegment})
		shape = cp.NewSegment(entry.body, a, b, desc.Radius)
		area = 4*desc.HalfSegment*desc.Radius + math.Pi*desc.Radius*desc.Radius
		moment = func(m float64) float64 { return cp.MomentForSegment(m, a, b, desc.Radius) }
	case ColliderBox:
		hx, hy := desc.HalfExtents.X(), desc.HalfExtents.Y()
		if hx <= 0 || hy <= 0 {
			return 0, fmt.Errorf("physics: box half extents %v: %w", desc.HalfExtents, ErrInvalidDesc)
		}
		bb := cp.BB{L: offset.X - hx, B: offset.Y - hy, R: offset.X + hx, T: offset.Y + hy}
		shape = cp.NewBox2(entry.body, bb, 0)
		area = 4 * hx * hy
		moment = func(m float64) float64 { return cp.MomentForBox2(m, bb) }
	default:
		return 0, fmt.Errorf("physics: collider shape %d: %w", desc.Shape, ErrInvalidDesc)
	}

	shape.SetElasticity(desc.Restitution)
	shape.SetFriction(desc.Friction)
	shape.SetSensor(desc.Sensor)
	shape.SetCollisionType(collisionTypeCollider)
	category, mask := desc.Category, desc.Mask
	if category == 0 {
		category = 1
	}
	if mask == 0 {
		mask = math.MaxUint32
	}
	shape.SetFilter(cp.NewShapeFilter(0, uint(category), uint(mask)))

	if !entry.static && !desc.Sensor {
		if desc.Density <= 0 {
			return 0, fmt.Errorf("physics: density %v: %w", desc.Density, ErrInvalidDesc)
		}
		m := desc.Density * area
		entry.mass += m
		entry.moment += moment(m)
		entry.body.SetMass(entry.mass)
		entry.body.SetMoment(entry.moment)
	}

	e.space.AddShape(shape)

	e.next++
	h := ColliderHandle(e.next)
	e.colliders[h] = &chipmunkCollider{shape: shape, body: bh, sensor: desc.Sensor}
	e.shapeHandles[shape] = h
	entry.colliders[h] = struct{}{}
	return h, nil
}

func (e *ChipmunkEngine) RemoveCollider(h ColliderHandle) error {
	c, ok := e.colliders[h]
	if !ok {
		return fmt.Errorf("physics: remove %s: %w", h, ErrHandleNotFound)
	}
	// Removing the shape may fire separate callbacks, which still need the
	// handle lookup.
	e.space.RemoveShape(c.shape)
	delete(e.shapeHandles, c.shape)
	delete(e.colliders, h)
	if entry, ok := e.bodies[c.body]; ok {
		delete(entry.colliders, h)
	}
	return nil
}

func (e *ChipmunkEngine) RemoveBody(h BodyHandle) error {
	entry, ok := e.bodies[h]
	if !ok {
		return fmt.Errorf("physics: remove %s: %w", h, ErrHandleNotFound)
	}
	for ch := range entry.colliders {
		_ = e.RemoveCollider(ch)
	}
	e.space.RemoveBody(entry.body)
	delete(e.bodies, h)

	if idx, ok := e.dynamicIdx[h]; ok {
		last := len(e.dynamic) - 1
		moved := e.dynamic[last]
		e.dynamic[idx] = moved
		e.dynamicIdx[moved] = idx
		e.dynamic = e.dynamic[:last]
		delete(e.dynamicIdx, h)
	}
	return nil
}

func (e *ChipmunkEngine) SetBodyPose(h BodyHandle, pose Pose) error {
	entry, ok := e.bodies[h]
	if !ok {
		return fmt.Errorf("physics: set pose %s: %w", h, ErrHandleNotFound)
	}
	if entry.static {
		// Wake whatever rests on the old position.
		entry.body.ActivateStatic(nil)
	}
	entry.body.SetPosition(toVector(pose.Translation))
	entry.body.SetAngle(pose.Angle)
	if entry.static {
		e.reindexStatic(entry)
	}
	return nil
}

// reindexStatic refreshes the bounding boxes of a moved static body. The
// static index never updates on its own, and removing the shapes would end
// their arbiters, so the body is cycled through kinematic instead. That
// moves each shape between the two indexes and leaves arbiters alone.
func (e *ChipmunkEngine) reindexStatic(entry *chipmunkBody) {
	for ch := range entry.colliders {
		e.colliders[ch].shape.CacheBB()
	}
	entry.body.SetType(cp.BODY_KINEMATIC)
	entry.body.SetType(cp.BODY_STATIC)
}

func (e *ChipmunkEngine) SetBodyVelocity(h BodyHandle, motion Motion) error {
	entry, ok := e.bodies[h]
	if !ok {
		return fmt.Errorf("physics: set velocity %s: %w", h, ErrHandleNotFound)
	}
	if entry.static {
		return nil
	}
	entry.body.SetVelocityVector(toVector(motion.Linear))
	entry.body.SetAngularVelocity(motion.Angular)
	return nil
}

func (e *ChipmunkEngine) BodyState(h BodyHandle) (Pose, Motion, error) {
	entry, ok := e.bodies[h]
	if !ok {
		return Pose{}, Motion{}, fmt.Errorf("physics: body state %s: %w", h, ErrHandleNotFound)
	}
	b := entry.body
	pose := Pose{Translation: fromVector(b.Position()), Angle: b.Angle()}
	motion := Motion{Linear: fromVector(b.Velocity()), Angular: b.AngularVelocity()}
	return pose, motion, nil
}

func (e *ChipmunkEngine) ActiveBodies() []BodyHandle {
	out := make([]BodyHandle, 0, len(e.dynamic))
	for _, h := range e.dynamic {
		if e.bodies[h].body.IsSleeping() {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (e *ChipmunkEngine) Step(gravity mgl64.Vec2, dt float64) error {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return fmt.Errorf("physics: step dt %v: %w", dt, ErrInvalidDesc)
	}
	// SetGravity wakes every sleeping body.
	if g := toVector(gravity); g != e.space.Gravity() {
		e.space.SetGravity(g)
	}
	e.space.Step(dt)
	return e.checkFinite()
}

// checkFinite reports a numerical blow-up: any dynamic body whose state
// stopped being finite.
func (e *ChipmunkEngine) checkFinite() error {
	var bad []BodyHandle
	for _, h := range e.dynamic {
		b := e.bodies[h].body
		p, v := b.Position(), b.Velocity()
		if finite(p.X, p.Y, v.X, v.Y, b.Angle(), b.AngularVelocity()) {
			continue
		}
		bad = append(bad, h)
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	return fmt.Errorf("physics: non-finite state on %d bodies (first %s): %w", len(bad), bad[0], ErrEngineInternal)
}

func (e *ChipmunkEngine) DrainContactEvents() []ContactEvent {
	if len(e.events) == 0 {
		return nil
	}
	out := e.events
	e.events = nil
	return out
}

// BodyCount returns the number of live bodies.
func (e *ChipmunkEngine) BodyCount() int {
	return len(e.bodies)
}

// ColliderCount returns the number of live colliders.
func (e *ChipmunkEngine) ColliderCount() int {
	return len(e.colliders)
}

func toVector(v mgl64.Vec2) cp.Vector {
	return cp.Vector{X: v.X(), Y: v.Y()}
}

func fromVector(v cp.Vector) mgl64.Vec2 {
	return mgl64.Vec2{v.X, v.Y}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
