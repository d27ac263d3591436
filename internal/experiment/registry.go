package experiment

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/controllers"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/metrics"
	"github.com/san-kum/rigidsim/internal/sim"
)

// DriverFactory builds the scripted driver of a scene for the resolved
// scenario targets.
type DriverFactory func(cfg *config.Config, targets []dynamo.BodyHandle) (controllers.Driver, error)

type Registry struct {
	drivers map[string]DriverFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		drivers: make(map[string]DriverFactory),
	}

	r.drivers["none"] = func(*config.Config, []dynamo.BodyHandle) (controllers.Driver, error) {
		return controllers.NewNone(), nil
	}
	r.drivers["oscillate"] = func(cfg *config.Config, targets []dynamo.BodyHandle) (controllers.Driver, error) {
		sc := cfg.Scenario
		amp := mgl64.Vec2{1, 1}
		freq := mgl64.Vec2{1, 1}
		if len(sc.Amplitude) > 0 {
			amp = mgl64.Vec2{config.Component(sc.Amplitude, 0), config.Component(sc.Amplitude, 1)}
		}
		if len(sc.Frequency) > 0 {
			freq = mgl64.Vec2{config.Component(sc.Frequency, 0), config.Component(sc.Frequency, 1)}
		}
		return controllers.NewOscillator(targets, amp, freq, cfg.Dt), nil
	}
	r.drivers["hold"] = func(cfg *config.Config, targets []dynamo.BodyHandle) (controllers.Driver, error) {
		g := cfg.Scenario.Gains
		if len(g) != 3 {
			return nil, fmt.Errorf("hold driver needs gains [kp, ki, kd], got %v", g)
		}
		return controllers.NewAngleHold(targets, g[0], g[1], g[2], cfg.Scenario.Setpoint, cfg.Dt), nil
	}

	return r
}

// Register adds or replaces a driver.
func (r *Registry) Register(name string, f DriverFactory) {
	r.drivers[name] = f
}

func (r *Registry) GetDriver(name string) (DriverFactory, error) {
	fn, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver: %s", name)
	}
	return fn, nil
}

func (r *Registry) ListDrivers() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh metrics suited to the scene.
func (r *Registry) DefaultMetrics(cfg *config.Config) []sim.Metric {
	settle := int(0.5/cfg.Dt) + 1
	ms := []sim.Metric{
		metrics.NewEnergy(),
		metrics.NewEnergyDrift(),
		metrics.NewStability(100),
		metrics.NewPenetration(settle),
		metrics.NewContactLoad(),
		metrics.NewRest(cfg.Solver.LinearSleepTolerance),
	}
	if len(cfg.Joints) > 0 {
		ms = append(ms, metrics.NewLimitViolation())
		for _, j := range cfg.Joints {
			ms = append(ms, metrics.NewJointAngle(j.Name))
		}
	}
	return ms
}
