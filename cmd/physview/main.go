package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/milk9111/physbridge/common"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/entity"
	"github.com/milk9111/physbridge/ecs/system"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

const (
	screenWidth  = 960
	screenHeight = 540
	maxEventLog  = 8
)

type viewer struct {
	scene    string
	settings config.Settings
	logger   *zap.Logger

	world  *ecs.World
	engine *physics.ChipmunkEngine
	ps     *system.PhysicsSystem
	names  map[ecs.Entity]string

	paused bool
	frame  int
	events []string
	err    error
}

func newViewer(scene string, settings config.Settings, logger *zap.Logger) (*viewer, error) {
	v := &viewer{scene: scene, settings: settings, logger: logger}
	if err := v.reset(); err != nil {
		return nil, err
	}
	return v, nil
}

// reset rebuilds the world and its engine from the scene.
func (v *viewer) reset() error {
	w := ecs.NewWorld()
	named, err := entity.BuildScene(w, v.scene)
	if err != nil {
		return err
	}
	v.names = make(map[ecs.Entity]string, len(named))
	for name, e := range named {
		v.names[e] = name
	}
	v.world = w
	v.engine = physics.NewChipmunkEngine(v.settings.ChipmunkOptions())
	v.ps = system.NewPhysicsSystem(v.engine, system.WithLogger(v.logger), system.WithSettings(v.settings))
	w.AddSystem(v.ps)
	v.frame = 0
	v.events = nil
	v.err = nil
	return nil
}

func (v *viewer) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.paused = !v.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		if err := v.reset(); err != nil {
			return err
		}
	}
	step := !v.paused || inpututil.IsKeyJustPressed(ebiten.KeyPeriod)
	if !step || v.err != nil {
		return nil
	}

	if err := v.world.Update(); err != nil {
		// keep the window open on the last good frame
		v.err = err
		v.logger.Error("world update", zap.Error(err))
		return nil
	}
	v.frame++

	for _, evt := range v.world.CollisionEvents().Drain() {
		line := fmt.Sprintf("%5d %-7s %s / %s", v.frame, evt.Kind, v.label(evt.A), v.label(evt.B))
		fmt.Println(line)
		v.events = append(v.events, line)
		if len(v.events) > maxEventLog {
			v.events = v.events[len(v.events)-maxEventLog:]
		}
	}
	for _, d := range v.world.Diagnostics().Drain() {
		v.logger.Warn("diagnostic", zap.String("entity", v.label(d.Entity)), zap.Error(d.Err))
	}
	return nil
}

func (v *viewer) label(e ecs.Entity) string {
	if n, ok := v.names[e]; ok {
		return n
	}
	return e.String()
}

func (v *viewer) Draw(screen *ebiten.Image) {
	drawSpace(v.engine.Space(), view{camY: 4, zoom: 30, width: screenWidth, height: screenHeight}, screen)

	stats := v.ps.Stats()
	hud := fmt.Sprintf("frame %d  t %.2fs  bodies %d  pulled %d  fps %.1f\n[space] pause  [.] step  [r] reset",
		v.frame, stats.Elapsed, stats.Mapped, stats.Pulled, ebiten.ActualFPS())
	if v.err != nil {
		hud += "\nhalted: " + v.err.Error()
	}
	ebitenutil.DebugPrintAt(screen, hud, 10, 10)
	ebitenutil.DebugPrintAt(screen, strings.Join(v.events, "\n"), 10, screenHeight-16*maxEventLog-10)
}

func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	configPath := flag.String("config", "", "settings file (yaml); defaults when empty")
	scenePath := flag.String("scene", "scene_drop.yaml", "scene prefab to load")
	flag.Parse()

	settings := config.Default()
	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		settings = s
	}
	logger, err := common.NewLogger(settings.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	v, err := newViewer(*scenePath, settings, logger)
	if err != nil {
		log.Fatal(err)
	}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("physview")
	ebiten.SetTPS(int(1/settings.Timestep + 0.5))
	if err := ebiten.RunGame(v); err != nil {
		log.Fatal(err)
	}
}
