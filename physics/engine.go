// Package physics defines the contract between the ECS sync layer and a
// rigid-body engine, plus a chipmunk-backed implementation of it.
package physics

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrHandleNotFound is returned when a handle does not name a live
	// body or collider. Callers racing removals treat it as success.
	ErrHandleNotFound = errors.New("physics: handle not found")
	// ErrEngineInternal marks an unrecoverable fault inside the engine.
	// The world must not be stepped again after it.
	ErrEngineInternal = errors.New("physics: engine internal error")
	// ErrInvalidDesc is returned for descriptors the engine cannot build.
	ErrInvalidDesc = errors.New("physics: invalid descriptor")
)

// BodyHandle is an opaque engine-issued body identifier.
type BodyHandle uint64

// ColliderHandle is an opaque engine-issued collider identifier.
type ColliderHandle uint64

func (h BodyHandle) String() string     { return fmt.Sprintf("body#%d", uint64(h)) }
func (h ColliderHandle) String() string { return fmt.Sprintf("collider#%d", uint64(h)) }

// BodyKind selects how the engine integrates a body.
type BodyKind uint8

const (
	BodyDynamic BodyKind = iota
	BodyStatic
)

// Pose is a planar placement: translation plus rotation about Z.
type Pose struct {
	Translation mgl64.Vec2
	Angle       float64
}

// Motion is a planar velocity.
type Motion struct {
	Linear  mgl64.Vec2
	Angular float64
}

// BodyDesc describes a body to create.
type BodyDesc struct {
	Kind         BodyKind
	Pose         Pose
	Motion       Motion
	GravityScale float64
}

// ColliderShape is the engine-side geometry of a collider.
type ColliderShape uint8

const (
	ColliderCircle ColliderShape = iota + 1
	ColliderCapsule
	ColliderBox
)

// ColliderDesc describes a collider attached to a body.
type ColliderDesc struct {
	Shape       ColliderShape
	Radius      float64
	HalfSegment float64
	HalfExtents mgl64.Vec2
	Offset      mgl64.Vec2

	Density     float64
	Restitution float64
	Friction    float64
	Sensor      bool

	Category uint32
	Mask     uint32
}

// ContactKind tells whether a contact began or ended.
type ContactKind uint8

const (
	ContactBegan ContactKind = iota + 1
	ContactEnded
)

func (k ContactKind) String() string {
	switch k {
	case ContactBegan:
		return "began"
	case ContactEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ContactEvent is a raw engine report about a collider pair. Sensor is set
// when either collider is a sensor (a proximity event).
type ContactEvent struct {
	Kind   ContactKind
	A      ColliderHandle
	B      ColliderHandle
	Sensor bool
}

// Engine is the rigid-body engine as seen by the sync layer. It is not safe
// for concurrent mutation; BodyState may be called concurrently between
// steps.
type Engine interface {
	CreateBody(desc BodyDesc) (BodyHandle, error)
	CreateCollider(body BodyHandle, desc ColliderDesc) (ColliderHandle, error)
	RemoveCollider(h ColliderHandle) error
	// RemoveBody removes the body and any collider still attached to it.
	RemoveBody(h BodyHandle) error

	SetBodyPose(h BodyHandle, pose Pose) error
	SetBodyVelocity(h BodyHandle, motion Motion) error
	BodyState(h BodyHandle) (Pose, Motion, error)

	// ActiveBodies lists the bodies the last step may have moved: dynamic
	// and awake.
	ActiveBodies() []BodyHandle

	// Step advances the world by dt. A returned error wrapping
	// ErrEngineInternal is fatal.
	Step(gravity mgl64.Vec2, dt float64) error

	// DrainContactEvents returns and clears the contacts queued by Step.
	DrainContactEvents() []ContactEvent
}
