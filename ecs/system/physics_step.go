package system

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

// StepDriver advances the engine by one fixed increment per call.
type StepDriver struct {
	steps   uint64
	elapsed float64
}

func NewStepDriver() *StepDriver {
	return &StepDriver{}
}

// Step hands gravity and dt to the engine. The engine is planar, so the Z
// component of gravity is ignored.
func (d *StepDriver) Step(eng physics.Engine, gravity mgl64.Vec3, dt float64) error {
	if err := eng.Step(mgl64.Vec2{gravity.X(), gravity.Y()}, dt); err != nil {
		return fmt.Errorf("physics system: step %d: %w", d.steps+1, err)
	}
	d.steps++
	d.elapsed += dt
	return nil
}

// Steps returns how many steps completed.
func (d *StepDriver) Steps() uint64 {
	return d.steps
}

// Elapsed returns the simulated time in seconds.
func (d *StepDriver) Elapsed() float64 {
	return d.elapsed
}
