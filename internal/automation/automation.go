// Package automation runs scripted batches, parameter sweeps and Monte Carlo
// trials over scene configs.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/sim"
	"github.com/san-kum/rigidsim/internal/storage"
	"gopkg.in/yaml.v3"
)

// Batch is a named sequence of runs loaded from YAML.
type Batch struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Runs        []BatchRun `yaml:"runs"`
}

// BatchRun selects a scene either by preset or by config file and applies
// overrides on top of it.
type BatchRun struct {
	Scene   string `yaml:"scene"`
	Variant string `yaml:"variant"`
	// Config is a scene file; relative paths resolve against the batch file.
	Config   string             `yaml:"config"`
	Dt       float64            `yaml:"dt"`
	Duration float64            `yaml:"duration"`
	Params   map[string]float64 `yaml:"params"`
	Save     bool               `yaml:"save"`
}

// Outcome is the result of one batch run. RunID is empty unless the run
// was saved.
type Outcome struct {
	Name   string
	RunID  string
	Result *sim.Result
}

func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	if len(batch.Runs) == 0 {
		return nil, fmt.Errorf("batch %s has no runs", path)
	}

	dir := filepath.Dir(path)
	for i := range batch.Runs {
		r := &batch.Runs[i]
		if r.Config != "" && !filepath.IsAbs(r.Config) {
			r.Config = filepath.Join(dir, r.Config)
		}
	}
	return &batch, nil
}

// Resolve loads the run's scene and applies its overrides.
func (r BatchRun) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case r.Config != "":
		c, err := config.Load(r.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case r.Scene != "":
		variant := r.Variant
		if variant == "" {
			variant = config.DefaultVariant
		}
		cfg = config.GetPreset(r.Scene, variant)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %s/%s", r.Scene, variant)
		}
	default:
		return nil, errors.New("run needs a scene or a config file")
	}

	if r.Dt > 0 {
		cfg.Dt = r.Dt
	}
	if r.Duration > 0 {
		cfg.Duration = r.Duration
	}
	for name, v := range r.Params {
		if err := cfg.SetParam(name, v); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// RunBatch executes the runs in order. It stops at the first failure and
// returns the outcomes gathered so far. A nil store disables saving.
func RunBatch(ctx context.Context, batch *Batch, registry *experiment.Registry, store *storage.Store, log logr.Logger) ([]Outcome, error) {
	if registry == nil {
		registry = experiment.NewRegistry()
	}
	outcomes := make([]Outcome, 0, len(batch.Runs))

	for i, run := range batch.Runs {
		cfg, err := run.Resolve()
		if err != nil {
			return outcomes, fmt.Errorf("run %d: %w", i+1, err)
		}
		name := cfg.Scene
		if cfg.Variant != "" {
			name += "/" + cfg.Variant
		}
		log.Info("batch run", "index", i+1, "of", len(batch.Runs), "scene", name)

		exp := experiment.New(cfg, registry)
		exp.SetLogger(log.WithValues("run", i+1))
		if err := exp.Setup(registry.DefaultMetrics(cfg)); err != nil {
			return outcomes, fmt.Errorf("run %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return outcomes, fmt.Errorf("run %d: %w", i+1, err)
		}

		out := Outcome{Name: name, Result: result}
		if run.Save && store != nil {
			id, err := store.Save(cfg, result)
			if err != nil {
				return outcomes, fmt.Errorf("run %d save: %w", i+1, err)
			}
			out.RunID = id
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}

// Sweep varies one config parameter over an evenly spaced range.
type Sweep struct {
	Base     *config.Config
	Param    string
	Min, Max float64
	NumSteps int
	Workers  int
}

// Values returns the parameter values the sweep visits.
func (s *Sweep) Values() []float64 {
	if s.NumSteps <= 1 {
		return []float64{s.Min}
	}
	vals := make([]float64, s.NumSteps)
	step := (s.Max - s.Min) / float64(s.NumSteps-1)
	for i := range vals {
		vals[i] = s.Min + float64(i)*step
	}
	return vals
}

// SweepResult holds one point of a sweep. Err records a failed step without
// aborting the sweep.
type SweepResult struct {
	Value   float64
	Metrics map[string]float64
	Final   sim.Frame
	Err     error
}

func RunSweep(ctx context.Context, sweep *Sweep, registry *experiment.Registry, log logr.Logger) ([]SweepResult, error) {
	if sweep.Base == nil {
		return nil, errors.New("sweep has no base config")
	}
	values := sweep.Values()

	jobs := make([]sim.Job, len(values))
	for i, v := range values {
		cfg, err := sweep.Base.Clone()
		if err != nil {
			return nil, err
		}
		if err := cfg.SetParam(sweep.Param, v); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		jobs[i], err = experiment.NewJob(fmt.Sprintf("%s=%g", sweep.Param, v), cfg, registry, log)
		if err != nil {
			return nil, err
		}
	}

	ens := sim.NewEnsemble(sim.New(), sweep.Workers)
	runs, errs := ens.RunEach(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(values))
	for i, v := range values {
		results[i] = SweepResult{Value: v, Err: errs[i]}
		if runs[i] != nil {
			results[i].Metrics = runs[i].Metrics
			results[i].Final, _ = runs[i].Final()
		}
		log.V(1).Info("sweep point", "param", sweep.Param, "value", v, "err", errs[i])
	}
	return results, nil
}

// MonteCarloConfig perturbs the initial positions of every dynamic body by
// a uniform offset in [-Perturbation, Perturbation] per axis.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	// Seed of zero seeds from the clock.
	Seed    int64
	Workers int
	// PenetrationLimit marks a trial unstable when exceeded. Zero uses 0.1.
	PenetrationLimit float64
}

type MonteCarloResult struct {
	Trial   int
	Offsets map[string][]float64
	Metrics map[string]float64
	Stable  bool
	Err     error
}

func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry, log logr.Logger) ([]MonteCarloResult, error) {
	if cfg.Base == nil {
		return nil, errors.New("monte carlo has no base config")
	}
	if cfg.NumTrials < 1 {
		return nil, fmt.Errorf("need at least one trial, got %d", cfg.NumTrials)
	}
	limit := cfg.PenetrationLimit
	if limit <= 0 {
		limit = 0.1
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	results := make([]MonteCarloResult, cfg.NumTrials)
	jobs := make([]sim.Job, cfg.NumTrials)
	for trial := range jobs {
		c, err := cfg.Base.Clone()
		if err != nil {
			return nil, err
		}
		offsets := make(map[string][]float64)
		for i := range c.Bodies {
			b := &c.Bodies[i]
			if b.Type != "dynamic" {
				continue
			}
			off := make([]float64, len(b.Position))
			for k := range b.Position {
				off[k] = (rng.Float64() - 0.5) * 2 * cfg.Perturbation
				b.Position[k] += off[k]
			}
			offsets[b.Name] = off
		}
		results[trial] = MonteCarloResult{Trial: trial, Offsets: offsets}

		jobs[trial], err = experiment.NewJob(fmt.Sprintf("trial%d", trial), c, registry, log)
		if err != nil {
			return nil, err
		}
	}

	runs, errs := sim.NewEnsemble(sim.New(), cfg.Workers).RunEach(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		r := &results[i]
		r.Err = errs[i]
		if runs[i] == nil {
			continue
		}
		r.Metrics = runs[i].Metrics
		final, ok := runs[i].Final()
		r.Stable = r.Err == nil && ok && final.IsValid() && !(r.Metrics["max_penetration"] > limit)
		if (i+1)%10 == 0 {
			log.V(1).Info("monte carlo progress", "done", i+1, "trials", cfg.NumTrials)
		}
	}
	return results, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}

// Spread returns the mean and standard deviation of a metric over the
// trials that reported it.
func Spread(results []MonteCarloResult, metric string) (mean, stddev float64) {
	var n int
	for _, r := range results {
		if v, ok := r.Metrics[metric]; ok && !math.IsNaN(v) {
			mean += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean /= float64(n)
	for _, r := range results {
		if v, ok := r.Metrics[metric]; ok && !math.IsNaN(v) {
			stddev += (v - mean) * (v - mean)
		}
	}
	return mean, math.Sqrt(stddev / float64(n))
}
