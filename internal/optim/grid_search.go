// Package optim tunes scene parameters by exhaustive search.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/sim"
)

// ErrNoCandidate is returned when every grid point failed or lacked the metric.
var ErrNoCandidate = errors.New("optim: no grid point produced the metric")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}
}

func (g *GridSearch) SetWorkers(n int) { g.workers = n }

// Evaluation is one grid point. Failed points score +Inf.
type Evaluation struct {
	Params map[string]float64
	Value  float64
	Err    error
}

func (e Evaluation) String() string {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, e.Params[k])
	}
	return strings.Join(parts, " ")
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		g.collect(depth+1, current, out)
	}
	delete(current, name)
}

// Search runs base with every grid point applied and returns the point that
// minimises metricName along with all evaluations in grid order.
func (g *GridSearch) Search(
	ctx context.Context,
	base *config.Config,
	registry *experiment.Registry,
	metricName string,
	log logr.Logger,
) (Evaluation, []Evaluation, error) {
	if len(g.paramNames) == 0 || len(g.paramNames) != len(g.ranges) {
		return Evaluation{}, nil, fmt.Errorf("optim: %d params with %d ranges", len(g.paramNames), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return Evaluation{}, nil, fmt.Errorf("optim: empty range for %s", g.paramNames[i])
		}
	}

	points := g.Points()
	evals := make([]Evaluation, len(points))
	jobs := make([]sim.Job, 0, len(points))
	index := make([]int, 0, len(points))

	for i, p := range points {
		evals[i] = Evaluation{Params: p, Value: math.Inf(1)}
		cfg, err := apply(base, p)
		if err == nil {
			var job sim.Job
			job, err = experiment.NewJob(evals[i].String(), cfg, registry, log)
			if err == nil {
				jobs = append(jobs, job)
				index = append(index, i)
				continue
			}
		}
		evals[i].Err = err
	}

	results, errs := sim.NewEnsemble(sim.New(), g.workers).RunEach(ctx, jobs)
	if err := ctx.Err(); err != nil {
		return Evaluation{}, nil, err
	}

	best := -1
	for j, i := range index {
		e := &evals[i]
		if errs[j] != nil {
			e.Err = errs[j]
			continue
		}
		v, ok := results[j].Metrics[metricName]
		if !ok {
			e.Err = fmt.Errorf("metric %q not reported", metricName)
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		e.Value = v
		if best < 0 || v < evals[best].Value {
			best = i
		}
		log.V(1).Info("grid point", "params", e.String(), metricName, v)
	}

	if best < 0 {
		return Evaluation{}, evals, ErrNoCandidate
	}
	return evals[best], evals, nil
}

func apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg, err := base.Clone()
	if err != nil {
		return nil, err
	}
	for k, v := range params {
		if err := cfg.SetParam(k, v); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// ParseRange reads "name=v1,v2,..." into a parameter name and its values.
func ParseRange(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("optim: want name=v1,v2,... got %q", s)
	}
	var vals []float64
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		var v float64
		if _, err := fmt.Sscan(f, &v); err != nil {
			return "", nil, fmt.Errorf("optim: bad value %q for %s: %w", f, name, err)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return "", nil, fmt.Errorf("optim: no values for %s", name)
	}
	return name, vals, nil
}
