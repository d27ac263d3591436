package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/go-logr/logr"
)

type Simulator struct {
	metrics   []Metric
	observers []Observer
	log       logr.Logger
}

func New() *Simulator {
	return &Simulator{
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		log:       logr.Discard(),
	}
}

func (s *Simulator) AddMetric(m Metric)      { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)  { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l logr.Logger) { s.log = l.WithName("sim") }

// Steps is the number of fixed steps needed to cover cfg.Duration.
func Steps(cfg Config, dt float64) int {
	return int(math.Round(cfg.Duration / dt))
}

// Run steps st until cfg.Duration is covered. A step error ends the run; the
// partial result is returned together with the error.
func (s *Simulator) Run(ctx context.Context, st Stepper, cfg Config) (*Result, error) {
	if err := validateConfig(cfg, st.Dt()); err != nil {
		return nil, err
	}
	every := cfg.SampleEvery
	if every <= 0 {
		every = 1
	}

	steps := Steps(cfg, st.Dt())
	result := &Result{
		Frames:  make([]Frame, 0, steps/every+2),
		Metrics: make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	var f Frame
	st.Snapshot(&f)
	result.Frames = append(result.Frames, f.Clone())

	var runErr error
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}

		rep, err := st.Step()
		if err != nil {
			runErr = err
			break
		}
		result.StepsTaken++
		result.Diagnostics = append(result.Diagnostics, rep.Diagnostics...)

		st.Snapshot(&f)
		f.Diagnostics = len(rep.Diagnostics)
		for _, m := range s.metrics {
			m.Observe(&f)
		}
		for _, obs := range s.observers {
			obs.OnFrame(&f)
		}

		if (i+1)%every == 0 || i == steps-1 {
			result.Frames = append(result.Frames, f.Clone())
		}
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.log.V(1).Info("run finished", "steps", result.StepsTaken, "frames", len(result.Frames),
		"diagnostics", len(result.Diagnostics))

	return result, runErr
}

func validateConfig(cfg Config, dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("dt must be positive, got %f", dt)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.SampleEvery < 0 {
		return fmt.Errorf("sample interval must not be negative, got %d", cfg.SampleEvery)
	}
	return nil
}

// RunWithCallback steps st and hands every published frame to callback until
// the duration is covered or callback returns false. A zero duration runs
// until the callback stops it or ctx is cancelled. The frame is reused
// between calls.
func (s *Simulator) RunWithCallback(ctx context.Context, st Stepper, cfg Config, callback func(*Frame) bool) error {
	if cfg.Duration != 0 {
		if err := validateConfig(cfg, st.Dt()); err != nil {
			return err
		}
	}
	steps := Steps(cfg, st.Dt())

	var f Frame
	st.Snapshot(&f)
	if !callback(&f) {
		return nil
	}
	for i := 0; cfg.Duration == 0 || i < steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rep, err := st.Step()
		if err != nil {
			return err
		}
		st.Snapshot(&f)
		f.Diagnostics = len(rep.Diagnostics)
		for _, obs := range s.observers {
			obs.OnFrame(&f)
		}
		if !f.IsValid() {
			return fmt.Errorf("invalid state at t=%.4f", f.Time)
		}
		if !callback(&f) {
			return nil
		}
	}

	return nil
}
