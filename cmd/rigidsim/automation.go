package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/rigidsim/internal/analysis"
	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/export"
	"github.com/san-kum/rigidsim/internal/optim"
	"github.com/san-kum/rigidsim/internal/sim"
	"github.com/san-kum/rigidsim/internal/storage"
	"github.com/san-kum/rigidsim/internal/viz"
)

var (
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int

	trials     int
	perturb    float64
	seed       int64
	tuneParams []string
	tuneMetric string
	parallel   int

	snapAt    float64
	svgWidth  int
	svgHeight int
	braille   bool
	phaseSVG  string
)

func runBatch(cmd *cobra.Command, args []string) error {
	batch, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	if batch.Name != "" {
		fmt.Printf("batch %s: %s\n\n", batch.Name, batch.Description)
	}
	outcomes, err := automation.RunBatch(ctx, batch, experiment.NewRegistry(), storage.New(dataDir), newLogger())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCENE\tSTEPS\tENERGY_DRIFT\tMAX_PEN\tRUN")
	for i, o := range outcomes {
		m := o.Result.Metrics
		id := o.RunID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2e\t%.2e\t%s\n", i+1, o.Name, o.Result.StepsTaken, m["energy_drift"], m["max_penetration"], id)
	}
	w.Flush()
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(args)
	if err != nil {
		return err
	}
	sweep := &automation.Sweep{
		Base:     base,
		Param:    sweepParam,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepSteps,
		Workers:  parallel,
	}

	ctx, stop := interruptible()
	defer stop()

	results, err := automation.RunSweep(ctx, sweep, experiment.NewRegistry(), newLogger())
	if err != nil {
		return err
	}

	fmt.Printf("sweeping %s over [%g, %g] on %s\n\n", sweepParam, sweepMin, sweepMax, base.Scene)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tENERGY_DRIFT\tMAX_PEN\tSTABILITY\tREST_TIME\tERROR\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		msg := "-"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		m := r.Metrics
		fmt.Fprintf(w, "%g\t%.2e\t%.2e\t%.3f\t%.2f\t%s\n", r.Value, m["energy_drift"], m["max_penetration"], m["stability"], m["rest_time"], msg)
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:         base,
		Perturbation: perturb,
		NumTrials:    trials,
		Seed:         seed,
		Workers:      parallel,
	}, experiment.NewRegistry(), newLogger())
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("monte carlo on %s: %d trials, perturbation %g\n\n", base.Scene, trials, perturb)
	fmt.Printf("stable:   %d\n", stable)
	fmt.Printf("unstable: %d\n\n", unstable)
	for _, name := range []string{"energy", "energy_drift", "max_penetration", "rest_time"} {
		mean, sd := automation.Spread(results, name)
		fmt.Printf("%-16s %12.4e ± %.2e\n", name, mean, sd)
	}
	return nil
}

func tuneScene(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(args)
	if err != nil {
		return err
	}
	if len(tuneParams) == 0 {
		return fmt.Errorf("no --param given")
	}

	names := make([]string, len(tuneParams))
	ranges := make([][]float64, len(tuneParams))
	for i, p := range tuneParams {
		if names[i], ranges[i], err = optim.ParseRange(p); err != nil {
			return err
		}
	}
	g := optim.NewGridSearch(names, ranges)
	g.SetWorkers(parallel)

	ctx, stop := interruptible()
	defer stop()

	best, all, err := g.Search(ctx, base, experiment.NewRegistry(), tuneMetric, newLogger())
	for _, e := range all {
		mark := " "
		if e.Err == nil && e.String() == best.String() {
			mark = "*"
		}
		switch {
		case e.Err != nil:
			fmt.Printf("%s %-40s  failed: %v\n", mark, e, e.Err)
		case math.IsInf(e.Value, 1):
			fmt.Printf("%s %-40s  %s is NaN\n", mark, e, tuneMetric)
		default:
			fmt.Printf("%s %-40s  %s = %.4e\n", mark, e, tuneMetric, e.Value)
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: %s (%s = %.4e)\n", best, tuneMetric, best.Value)
	return nil
}

func snapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	scene, err := experiment.Build(cfg, experiment.NewRegistry(), newLogger())
	if err != nil {
		return err
	}

	if snapAt > 0 {
		ctx, stop := interruptible()
		defer stop()
		s := sim.New()
		s.SetLogger(newLogger())
		if _, err := s.Run(ctx, scene, sim.Config{Duration: snapAt}); err != nil {
			return err
		}
	}

	segs := viz.Outline(scene)
	var svg string
	if braille {
		cv := viz.NewCanvas(svgWidth/8, svgHeight/16)
		cam := viz.NewCamera()
		pw, ph := cv.PixelSize()
		cam.Fit(segs, pw, ph)
		viz.Render(cv, segs, cam)
		svg = export.CanvasToSVG(cv, 4, viz.ThemeCyberpunk)
	} else {
		cam := viz.NewCamera()
		cam.Fit(segs, svgWidth, svgHeight)
		svg = export.SegmentsToSVG(segs, cam, svgWidth, svgHeight, string(viz.ThemeCyberpunk.Primary))
	}
	return writeOutput(svg)
}

func writePhaseSVG(points []analysis.Point) error {
	svg := export.TrajectoryToSVG(points, svgWidth, svgHeight, string(viz.ThemeCyberpunk.Accent))
	if svg == "" {
		return fmt.Errorf("need at least two samples for an svg")
	}
	return os.WriteFile(phaseSVG, []byte(svg), 0644)
}

func writeOutput(s string) error {
	w, done, err := outputWriter()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, s); err != nil {
		done()
		return err
	}
	return done()
}
