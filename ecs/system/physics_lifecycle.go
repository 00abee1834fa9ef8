package system

import (
	"errors"
	"fmt"
	"sort"

	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// ReconcileResult summarizes one Reconciler pass.
type ReconcileResult struct {
	Created  int
	Removed  int
	Rebuilt  int
	Failures []*ConstructionError
}

// Reconciler keeps the engine's bodies in step with the entities that carry
// Body and Transform. It is the only stage that mutates the EntityIndex.
type Reconciler struct {
	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger}
}

// Reconcile runs removals, then rebuilds, then creations, considering every
// component change after since. Per-entity problems are collected in the
// result; only an engine internal error is returned.
func (r *Reconciler) Reconcile(w *ecs.World, eng physics.Engine, index *EntityIndex, contacts *CollisionTranslator, since uint64) (ReconcileResult, error) {
	var res ReconcileResult
	if w == nil || eng == nil || index == nil {
		return res, nil
	}

	removedModifiers := removedModifierSet(w, since)

	var remove, rebuild []ecs.Entity
	index.Each(func(m *HandleMapping) {
		e := m.Entity
		switch {
		case !qualifies(w, e):
			remove = append(remove, e)
		case modifiersChanged(w, e, since) || removedModifiers[e]:
			rebuild = append(rebuild, e)
		}
	})
	sortEntities(remove)
	sortEntities(rebuild)

	for _, e := range remove {
		if r.removeEntity(eng, index, e) && contacts != nil {
			contacts.Purge(e)
		}
		res.Removed++
	}

	attempted := make(map[ecs.Entity]struct{}, len(rebuild))
	for _, e := range rebuild {
		attempted[e] = struct{}{}
		if r.removeEntity(eng, index, e) && contacts != nil {
			contacts.Suspend(e)
		}
		ok, cerr, err := r.createEntity(w, eng, index, e)
		if err != nil {
			return res, err
		}
		if cerr != nil {
			res.Failures = append(res.Failures, cerr)
			continue
		}
		if ok {
			res.Rebuilt++
		}
	}

	var create []ecs.Entity
	ecs.ForEach2(w, component.BodyComponent.Kind(), component.TransformComponent.Kind(), func(e ecs.Entity, _ *component.Body, _ *component.Transform) {
		if _, mapped := index.Mapping(e); mapped {
			return
		}
		if _, ok := attempted[e]; ok {
			return
		}
		if definingChanged(w, e, since) || modifiersChanged(w, e, since) {
			create = append(create, e)
		}
	})

	for _, e := range create {
		ok, cerr, err := r.createEntity(w, eng, index, e)
		if err != nil {
			return res, err
		}
		if cerr != nil {
			res.Failures = append(res.Failures, cerr)
			continue
		}
		if ok {
			res.Created++
		}
	}

	return res, nil
}

// removeEntity tears down colliders then the body, then the mapping. It
// reports whether e was mapped. Missing handles count as removed.
func (r *Reconciler) removeEntity(eng physics.Engine, index *EntityIndex, e ecs.Entity) bool {
	m, ok := index.Mapping(e)
	if !ok {
		return false
	}
	for _, c := range m.Colliders {
		if err := eng.RemoveCollider(c); err != nil && !errors.Is(err, physics.ErrHandleNotFound) {
			r.logger.Warn("remove collider", zap.Stringer("entity", e), zap.Stringer("collider", c), zap.Error(err))
		}
	}
	if err := eng.RemoveBody(m.Body); err != nil && !errors.Is(err, physics.ErrHandleNotFound) {
		r.logger.Warn("remove body", zap.Stringer("entity", e), zap.Stringer("body", m.Body), zap.Error(err))
	}
	index.Remove(e)
	r.logger.Debug("physics body removed", zap.Stringer("entity", e), zap.Stringer("body", m.Body))
	return true
}

// createEntity builds and inserts e. It reports a construction error for
// bad component data and a plain error only for engine faults.
func (r *Reconciler) createEntity(w *ecs.World, eng physics.Engine, index *EntityIndex, e ecs.Entity) (bool, *ConstructionError, error) {
	pending, err := BuildBody(e, SnapshotOf(w, e))
	if err != nil {
		var cerr *ConstructionError
		if errors.As(err, &cerr) {
			return false, cerr, nil
		}
		return false, &ConstructionError{Entity: e, Reason: "build", Err: err}, nil
	}

	body, err := eng.CreateBody(pending.Body)
	if err != nil {
		cerr, ferr := r.engineFailure(e, "create body", err)
		return false, cerr, ferr
	}
	colliders := make([]physics.ColliderHandle, 0, len(pending.Colliders))
	for i, desc := range pending.Colliders {
		ch, err := eng.CreateCollider(body, desc)
		if err != nil {
			r.rollback(eng, body, colliders)
			cerr, ferr := r.engineFailure(e, fmt.Sprintf("create collider %d", i), err)
			return false, cerr, ferr
		}
		colliders = append(colliders, ch)
	}

	if _, err := index.Insert(e, body, colliders...); err != nil {
		r.rollback(eng, body, colliders)
		r.logger.Error("index insert", zap.Stringer("entity", e), zap.Error(err))
		return false, nil, nil
	}

	r.logger.Debug("physics body created",
		zap.Stringer("entity", e),
		zap.Stringer("body", body),
		zap.Stringer("type", pending.Type),
		zap.Int("colliders", len(colliders)),
	)
	return true, nil, nil
}

func (r *Reconciler) engineFailure(e ecs.Entity, reason string, err error) (*ConstructionError, error) {
	if errors.Is(err, physics.ErrEngineInternal) {
		return nil, fmt.Errorf("physics system: %s for %s: %w", reason, e, err)
	}
	return &ConstructionError{Entity: e, Reason: reason, Err: err}, nil
}

func (r *Reconciler) rollback(eng physics.Engine, body physics.BodyHandle, colliders []physics.ColliderHandle) {
	for _, c := range colliders {
		_ = eng.RemoveCollider(c)
	}
	_ = eng.RemoveBody(body)
}

// qualifies is the defining-component check: a live entity with Body and
// Transform.
func qualifies(w *ecs.World, e ecs.Entity) bool {
	return w.IsAlive(e) &&
		ecs.Has(w, e, component.BodyComponent.Kind()) &&
		ecs.Has(w, e, component.TransformComponent.Kind())
}

func definingChanged(w *ecs.World, e ecs.Entity, since uint64) bool {
	return ecs.ChangedSince(w, e, component.BodyComponent.Kind(), since) ||
		ecs.ChangedSince(w, e, component.TransformComponent.Kind(), since)
}

// modifiersChanged covers the components baked into a body at creation.
// Transform and Velocity are pushed by PreStepSync instead.
func modifiersChanged(w *ecs.World, e ecs.Entity, since uint64) bool {
	return ecs.ChangedSince(w, e, component.BodyComponent.Kind(), since) ||
		ecs.ChangedSince(w, e, component.BodyTypeComponent.Kind(), since) ||
		ecs.ChangedSince(w, e, component.PhysicMaterialComponent.Kind(), since) ||
		ecs.ChangedSince(w, e, component.GravityScaleComponent.Kind(), since) ||
		ecs.ChangedSince(w, e, component.CollisionLayersComponent.Kind(), since)
}

func removedModifierSet(w *ecs.World, since uint64) map[ecs.Entity]bool {
	out := make(map[ecs.Entity]bool)
	for _, list := range [][]ecs.Entity{
		ecs.RemovedSince(w, component.BodyTypeComponent.Kind(), since),
		ecs.RemovedSince(w, component.PhysicMaterialComponent.Kind(), since),
		ecs.RemovedSince(w, component.GravityScaleComponent.Kind(), since),
		ecs.RemovedSince(w, component.CollisionLayersComponent.Kind(), since),
	} {
		for _, e := range list {
			out[e] = true
		}
	}
	return out
}

func sortEntities(list []ecs.Entity) {
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
}
