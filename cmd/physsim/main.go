package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/milk9111/physbridge/common"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/ecs/entity"
	"github.com/milk9111/physbridge/ecs/system"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "settings file (yaml); defaults when empty")
	scenePath := flag.String("scene", "scene_drop.yaml", "scene prefab to load")
	frames := flag.Int("frames", 600, "number of frames to simulate")
	watch := flag.Bool("watch", false, "reload the settings file when it changes")
	logLevel := flag.String("log", "", "log level, overrides the settings file")
	flag.Parse()

	if err := run(*configPath, *scenePath, *frames, *watch, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "physsim:", err)
		if errors.Is(err, physics.ErrEngineInternal) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath, scenePath string, frames int, watch bool, logLevel string) error {
	settings := config.Default()
	if configPath != "" {
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = s
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}

	logger, err := common.NewLogger(settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	w := ecs.NewWorld()
	named, err := entity.BuildScene(w, scenePath)
	if err != nil {
		return err
	}
	names := make(map[ecs.Entity]string, len(named))
	for name, e := range named {
		names[e] = name
	}

	engine := physics.NewChipmunkEngine(settings.ChipmunkOptions())
	ps := system.NewPhysicsSystem(engine, system.WithLogger(logger), system.WithSettings(settings))
	w.AddSystem(ps)
	logger.Info("scene loaded",
		zap.String("scene", scenePath),
		zap.String("world", ps.ID()),
		zap.Int("entities", w.Len()),
	)

	var updates <-chan config.Settings
	if watch && configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			return err
		}
		defer watcher.Close()
		updates = watcher.Events
		go func() {
			for err := range watcher.Errors {
				logger.Warn("settings reload", zap.Error(err))
			}
		}()
	}

	apply := func(s config.Settings) bool {
		if err := ps.Apply(s); err != nil {
			logger.Warn("settings rejected", zap.Error(err))
			return false
		}
		return true
	}

	// With -watch, frames run in real time so reloads land mid-run.
	var tick <-chan time.Time
	var ticker *time.Ticker
	if updates != nil {
		ticker = time.NewTicker(frameInterval(settings.Timestep))
		defer ticker.Stop()
		tick = ticker.C
	}

	for frame := 1; frame <= frames; frame++ {
	wait:
		for tick != nil {
			select {
			case s, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				if apply(s) {
					ticker.Reset(frameInterval(s.Timestep))
				}
			case <-tick:
				break wait
			}
		}

		if err := w.Update(); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}

		for _, evt := range w.CollisionEvents().Drain() {
			logger.Info("collision",
				zap.Int("frame", frame),
				zap.Stringer("kind", evt.Kind),
				zap.String("a", label(names, evt.A)),
				zap.String("b", label(names, evt.B)),
			)
		}
		for _, d := range w.Diagnostics().Drain() {
			logger.Warn("diagnostic", zap.Int("frame", frame), zap.String("entity", label(names, d.Entity)), zap.String("source", d.Source), zap.Error(d.Err))
		}
	}

	stats := ps.Stats()
	logger.Info("simulation done",
		zap.Int("frames", frames),
		zap.Int("bodies", stats.Mapped),
		zap.Float64("simulated_seconds", stats.Elapsed),
	)
	printTransforms(w, named)
	return nil
}

func frameInterval(timestep float64) time.Duration {
	d := time.Duration(timestep * float64(time.Second))
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func label(names map[ecs.Entity]string, e ecs.Entity) string {
	if n, ok := names[e]; ok {
		return n
	}
	return e.String()
}

func printTransforms(w *ecs.World, named map[string]ecs.Entity) {
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, name := range keys {
		t, ok := ecs.Get(w, named[name], component.TransformComponent.Kind())
		if !ok {
			continue
		}
		fmt.Printf("%-10s x=%8.3f y=%8.3f angle=%7.3f\n", name, t.Translation.X(), t.Translation.Y(), t.Angle())
	}
}
