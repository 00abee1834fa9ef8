// Package config loads the physics world settings from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSettings = errors.New("config: invalid settings")

// Vector is a YAML friendly 3D vector.
type Vector struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (v Vector) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// Settings configures one physics world.
type Settings struct {
	Gravity Vector `yaml:"gravity"`
	// Timestep is the fixed step length in seconds.
	Timestep float64 `yaml:"timestep"`

	Iterations         int     `yaml:"iterations"`
	CollisionSlop      float64 `yaml:"collision_slop"`
	SleepTimeThreshold float64 `yaml:"sleep_time_threshold"`

	// Workers bounds the goroutines used by the sync stages. 0 or 1 runs
	// them serially.
	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
}

// Default returns earth gravity at 60 steps per second.
func Default() Settings {
	return Settings{
		Gravity:       Vector{Y: -9.8},
		Timestep:      1.0 / 60.0,
		Iterations:    10,
		CollisionSlop: 0.01,
		Workers:       1,
		LogLevel:      "info",
	}
}

// Parse decodes YAML over the defaults, so omitted keys keep their default.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses the settings file at path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch {
	case !finite(s.Gravity.X, s.Gravity.Y, s.Gravity.Z):
		return fmt.Errorf("gravity %+v: %w", s.Gravity, ErrInvalidSettings)
	case !(s.Timestep > 0) || math.IsInf(s.Timestep, 0):
		return fmt.Errorf("timestep %v: %w", s.Timestep, ErrInvalidSettings)
	case s.Iterations < 0:
		return fmt.Errorf("iterations %d: %w", s.Iterations, ErrInvalidSettings)
	case s.CollisionSlop < 0 || !finite(s.CollisionSlop):
		return fmt.Errorf("collision_slop %v: %w", s.CollisionSlop, ErrInvalidSettings)
	case s.SleepTimeThreshold < 0 || !finite(s.SleepTimeThreshold):
		return fmt.Errorf("sleep_time_threshold %v: %w", s.SleepTimeThreshold, ErrInvalidSettings)
	case s.Workers < 0:
		return fmt.Errorf("workers %d: %w", s.Workers, ErrInvalidSettings)
	}
	return nil
}

// ChipmunkOptions maps the engine tuning keys.
func (s Settings) ChipmunkOptions() physics.ChipmunkOptions {
	return physics.ChipmunkOptions{
		Iterations:         s.Iterations,
		CollisionSlop:      s.CollisionSlop,
		SleepTimeThreshold: s.SleepTimeThreshold,
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
