// Package experiment turns scene configs into worlds and runs them.
package experiment

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/sim"
)

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	scene     Scene
	simulator *sim.Simulator
	log       logr.Logger
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Experiment{
		cfg:      cfg,
		registry: registry,
		log:      logr.Discard(),
	}
}

func (e *Experiment) SetLogger(l logr.Logger) { e.log = l }

// Setup builds the scene and a simulator carrying the given metrics.
func (e *Experiment) Setup(metrics []sim.Metric) error {
	scene, err := Build(e.cfg, e.registry, e.log)
	if err != nil {
		return err
	}
	e.scene = scene
	e.simulator = sim.New()
	e.simulator.SetLogger(e.log)
	for _, m := range metrics {
		e.simulator.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	simCfg := sim.Config{
		Duration:    e.cfg.Duration,
		SampleEvery: e.cfg.SampleEvery,
	}

	return e.simulator.Run(ctx, e.scene, simCfg)
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Scene() Scene { return e.scene }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// NewJob builds cfg into an ensemble job carrying the registry's default
// metrics. Every job owns its world.
func NewJob(name string, cfg *config.Config, registry *Registry, log logr.Logger) (sim.Job, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	scene, err := Build(cfg, registry, log)
	if err != nil {
		return sim.Job{}, fmt.Errorf("%s: %w", name, err)
	}
	return sim.Job{
		Name:    name,
		Stepper: scene,
		Config:  sim.Config{Duration: cfg.Duration, SampleEvery: cfg.SampleEvery},
		Metrics: registry.DefaultMetrics(cfg),
	}, nil
}
