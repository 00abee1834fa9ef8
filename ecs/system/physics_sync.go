package system

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// forChunks splits [0, n) into at most workers contiguous chunks and runs fn
// on each. fn must only touch its own indexes of any shared output.
func forChunks(workers, n int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 1 || n < workers*2 {
		return fn(0, n)
	}

	size := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}

type pushRequest struct {
	entity  ecs.Entity
	body    physics.BodyHandle
	pose    *physics.Pose
	motion  *physics.Motion
	pending bool
}

// PreStepSync pushes gameplay writes of Transform and Velocity into the
// engine. It never reads engine state.
type PreStepSync struct {
	logger  *zap.Logger
	workers int
	scratch []pushRequest
}

func NewPreStepSync(logger *zap.Logger, workers int) *PreStepSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreStepSync{logger: logger, workers: workers}
}

// Push writes the pose and motion of every mapped entity whose Transform or
// Velocity changed after since. It returns how many bodies were touched.
func (s *PreStepSync) Push(w *ecs.World, eng physics.Engine, index *EntityIndex, since uint64) (int, error) {
	if w == nil || eng == nil || index == nil || index.Len() == 0 {
		return 0, nil
	}

	reqs := s.scratch[:0]
	index.Each(func(m *HandleMapping) {
		reqs = append(reqs, pushRequest{entity: m.Entity, body: m.Body})
	})

	err := forChunks(s.workers, len(reqs), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			readPush(w, &reqs[i], since)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pushed := 0
	for i := range reqs {
		req := &reqs[i]
		if !req.pending {
			continue
		}
		// A failed pose write does not hold back the velocity write.
		wrote := false
		if req.pose != nil {
			if err := eng.SetBodyPose(req.body, *req.pose); err != nil {
				if errors.Is(err, physics.ErrEngineInternal) {
					return pushed, fmt.Errorf("physics system: push pose %s: %w", req.entity, err)
				}
				s.skip(req.entity, "push pose", err)
			} else {
				wrote = true
			}
		}
		if req.motion != nil {
			if err := eng.SetBodyVelocity(req.body, *req.motion); err != nil {
				if errors.Is(err, physics.ErrEngineInternal) {
					return pushed, fmt.Errorf("physics system: push velocity %s: %w", req.entity, err)
				}
				s.skip(req.entity, "push velocity", err)
			} else {
				wrote = true
			}
		}
		if wrote {
			pushed++
		}
	}

	clear(reqs)
	s.scratch = reqs[:0]
	return pushed, nil
}

func (s *PreStepSync) skip(e ecs.Entity, op string, err error) {
	if errors.Is(err, physics.ErrHandleNotFound) {
		return
	}
	s.logger.Warn(op, zap.Stringer("entity", e), zap.Error(err))
}

func readPush(w *ecs.World, req *pushRequest, since uint64) {
	e := req.entity
	if ecs.ChangedSince(w, e, component.TransformComponent.Kind(), since) {
		if t, ok := ecs.Get(w, e, component.TransformComponent.Kind()); ok {
			pose := poseOf(t)
			if isFinite(pose.Translation.X(), pose.Translation.Y(), pose.Angle) {
				req.pose = &pose
			}
		}
	}
	if ecs.ChangedSince(w, e, component.VelocityComponent.Kind(), since) {
		if v, ok := ecs.Get(w, e, component.VelocityComponent.Kind()); ok {
			motion := motionOf(v)
			if isFinite(motion.Linear.X(), motion.Linear.Y(), motion.Angular) {
				req.motion = &motion
			}
		}
	}
	req.pending = req.pose != nil || req.motion != nil
}

type pullResult struct {
	entity ecs.Entity
	pose   physics.Pose
	motion physics.Motion
	ok     bool
}

// PostStepSync copies the state of bodies the engine moved back into
// Transform and Velocity.
type PostStepSync struct {
	logger  *zap.Logger
	workers int
	scratch []pullResult
}

func NewPostStepSync(logger *zap.Logger, workers int) *PostStepSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostStepSync{logger: logger, workers: workers}
}

// Pull reads every active body and writes its entity's components. Sleeping
// and static bodies are skipped. It returns how many entities were written.
func (s *PostStepSync) Pull(w *ecs.World, eng physics.Engine, index *EntityIndex) (int, error) {
	if w == nil || eng == nil || index == nil {
		return 0, nil
	}
	active := eng.ActiveBodies()
	if len(active) == 0 {
		return 0, nil
	}

	results := s.scratch[:0]
	if cap(results) < len(active) {
		results = make([]pullResult, len(active))
	} else {
		results = results[:len(active)]
	}

	err := forChunks(s.workers, len(active), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			e, ok := index.EntityForBody(active[i])
			if !ok {
				continue
			}
			pose, motion, err := eng.BodyState(active[i])
			if err != nil {
				if errors.Is(err, physics.ErrEngineInternal) {
					return fmt.Errorf("physics system: read %s: %w", active[i], err)
				}
				if !errors.Is(err, physics.ErrHandleNotFound) {
					s.logger.Warn("read body state", zap.Stringer("entity", e), zap.Error(err))
				}
				continue
			}
			results[i] = pullResult{entity: e, pose: pose, motion: motion, ok: true}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	pulled := 0
	for i := range results {
		r := &results[i]
		if !r.ok {
			continue
		}
		if writeBack(w, r) {
			pulled++
		}
	}

	clear(results)
	s.scratch = results[:0]
	return pulled, nil
}

// writeBack updates the planar part of the entity's components in place
// and stamps them as changed. Translation.Z and Linear.Z are preserved.
func writeBack(w *ecs.World, r *pullResult) bool {
	t, ok := ecs.Get(w, r.entity, component.TransformComponent.Kind())
	if !ok {
		return false
	}
	t.Translation = mgl64.Vec3{r.pose.Translation.X(), r.pose.Translation.Y(), t.Translation.Z()}
	t.SetAngle(r.pose.Angle)
	ecs.MarkChanged(w, r.entity, component.TransformComponent.Kind())

	if v, ok := ecs.Get(w, r.entity, component.VelocityComponent.Kind()); ok {
		v.Linear = mgl64.Vec3{r.motion.Linear.X(), r.motion.Linear.Y(), v.Linear.Z()}
		v.Angular = component.AxisAngle{0, 0, r.motion.Angular}
		ecs.MarkChanged(w, r.entity, component.VelocityComponent.Kind())
	}
	return true
}
