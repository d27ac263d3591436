package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one independent run of an Ensemble. Worlds are not safe for
// concurrent use, so every job owns its stepper and metrics.
type Job struct {
	Name    string
	Stepper Stepper
	Config  Config
	Metrics []Metric
}

type Ensemble struct {
	base    *Simulator
	workers int
}

// NewEnsemble runs jobs with the observers of s, at most workers at a time.
func NewEnsemble(s *Simulator, workers int) *Ensemble {
	if workers < 1 {
		workers = 1
	}
	return &Ensemble{base: s, workers: workers}
}

func (e *Ensemble) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := e.run(ctx, job)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunEach runs every job to completion, collecting per-job errors instead of
// cancelling the rest. Only ctx stops the whole ensemble.
func (e *Ensemble) RunEach(ctx context.Context, jobs []Job) ([]*Result, []error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, job := range jobs {
		g.Go(func() error {
			results[i], errs[i] = e.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

func (e *Ensemble) run(ctx context.Context, job Job) (*Result, error) {
	sim := New()
	sim.log = e.base.log.WithValues("job", job.Name)
	for _, m := range job.Metrics {
		sim.AddMetric(m)
	}
	return sim.Run(ctx, job.Stepper, job.Config)
}
