package system

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// ErrWorldFailed is returned by every Update after the engine reported an
// internal error. The world must be rebuilt.
var ErrWorldFailed = errors.New("physics system: world failed")

// PhysicsStats counts the work done by the last Update.
type PhysicsStats struct {
	Frame   uint64
	Created int
	Rebuilt int
	Removed int
	Failed  int
	Pushed  int
	Pulled  int
	Events  int
	Mapped  int
	// Steps and Elapsed are totals since the system was created.
	Steps   uint64
	Elapsed float64
}

type PhysicsOption func(*PhysicsSystem)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) PhysicsOption {
	return func(ps *PhysicsSystem) {
		if logger != nil {
			ps.logger = logger
		}
	}
}

// WithSettings sets gravity, timestep and workers.
func WithSettings(s config.Settings) PhysicsOption {
	return func(ps *PhysicsSystem) {
		ps.gravity = s.Gravity.Vec3()
		ps.timestep = s.Timestep
		ps.workers = s.Workers
	}
}

// PhysicsSystem keeps one physics engine in sync with the world. Each
// Update reconciles bodies, pushes gameplay writes, steps once, pulls moved
// bodies back and publishes collision events.
type PhysicsSystem struct {
	id     string
	logger *zap.Logger
	engine physics.Engine

	index      *EntityIndex
	reconciler *Reconciler
	pre        *PreStepSync
	driver     *StepDriver
	post       *PostStepSync
	contacts   *CollisionTranslator

	gravity  mgl64.Vec3
	timestep float64
	workers  int

	mu      sync.Mutex
	pending *config.Settings

	// lastTick is the world change tick right after the previous
	// PostStepSync. Writes after it are gameplay writes.
	lastTick uint64
	failed   error
	stats    PhysicsStats
}

func NewPhysicsSystem(engine physics.Engine, opts ...PhysicsOption) *PhysicsSystem {
	defaults := config.Default()
	ps := &PhysicsSystem{
		id:       uuid.NewString(),
		logger:   zap.NewNop(),
		engine:   engine,
		index:    NewEntityIndex(),
		driver:   NewStepDriver(),
		gravity:  defaults.Gravity.Vec3(),
		timestep: defaults.Timestep,
		workers:  defaults.Workers,
	}
	for _, opt := range opts {
		opt(ps)
	}
	ps.logger = ps.logger.With(zap.String("world", ps.id))
	ps.reconciler = NewReconciler(ps.logger)
	ps.pre = NewPreStepSync(ps.logger, ps.workers)
	ps.post = NewPostStepSync(ps.logger, ps.workers)
	ps.contacts = NewCollisionTranslator(ps.logger)
	return ps
}

// ID returns the world id used in log lines.
func (ps *PhysicsSystem) ID() string {
	return ps.id
}

func (ps *PhysicsSystem) Engine() physics.Engine {
	return ps.engine
}

func (ps *PhysicsSystem) Index() *EntityIndex {
	return ps.index
}

func (ps *PhysicsSystem) Contacts() *CollisionTranslator {
	return ps.contacts
}

func (ps *PhysicsSystem) Stats() PhysicsStats {
	return ps.stats
}

// Apply queues new settings for the next frame boundary. It is safe to call
// from another goroutine. Engine tuning keys need a new engine and are
// ignored here.
func (ps *PhysicsSystem) Apply(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	ps.mu.Lock()
	ps.pending = &s
	ps.mu.Unlock()
	return nil
}

func (ps *PhysicsSystem) applyPending() {
	ps.mu.Lock()
	s := ps.pending
	ps.pending = nil
	ps.mu.Unlock()
	if s == nil {
		return
	}

	ps.gravity = s.Gravity.Vec3()
	ps.timestep = s.Timestep
	ps.workers = s.Workers
	ps.pre.workers = s.Workers
	ps.post.workers = s.Workers
	ps.logger.Info("physics settings applied",
		zap.Float64s("gravity", ps.gravity[:]),
		zap.Float64("timestep", ps.timestep),
		zap.Int("workers", ps.workers),
	)
}

func (ps *PhysicsSystem) Update(w *ecs.World) error {
	if ps == nil || w == nil || ps.engine == nil {
		return nil
	}
	if ps.failed != nil {
		return fmt.Errorf("%w: %w", ErrWorldFailed, ps.failed)
	}
	ps.applyPending()

	stats := PhysicsStats{Frame: ps.stats.Frame + 1}

	res, err := ps.reconciler.Reconcile(w, ps.engine, ps.index, ps.contacts, ps.lastTick)
	stats.Created, stats.Rebuilt, stats.Removed, stats.Failed = res.Created, res.Rebuilt, res.Removed, len(res.Failures)
	for _, cerr := range res.Failures {
		ps.logger.Warn("physics body construction failed", zap.Stringer("entity", cerr.Entity), zap.Error(cerr))
		w.Diagnostics().Push(ecs.Diagnostic{Entity: cerr.Entity, Source: "physics", Err: cerr})
	}
	if err != nil {
		return ps.fail(err)
	}

	if stats.Pushed, err = ps.pre.Push(w, ps.engine, ps.index, ps.lastTick); err != nil {
		return ps.fail(err)
	}

	if err := ps.driver.Step(ps.engine, ps.gravity, ps.timestep); err != nil {
		return ps.fail(err)
	}

	if stats.Pulled, err = ps.post.Pull(w, ps.engine, ps.index); err != nil {
		return ps.fail(err)
	}
	ps.lastTick = ecs.ChangeTick(w)

	stats.Events = ps.contacts.Drain(w, ps.engine, ps.index)
	stats.Mapped = ps.index.Len()
	stats.Steps, stats.Elapsed = ps.driver.Steps(), ps.driver.Elapsed()
	ps.stats = stats
	return nil
}

// fail records fatal engine errors so the world is never stepped again.
// Anything else is returned as is.
func (ps *PhysicsSystem) fail(err error) error {
	if errors.Is(err, physics.ErrEngineInternal) {
		ps.failed = err
		ps.logger.Error("physics world failed", zap.Error(err))
	}
	return err
}
