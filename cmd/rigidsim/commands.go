package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/san-kum/rigidsim/internal/analysis"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/sim"
	"github.com/san-kum/rigidsim/internal/storage"
	"github.com/san-kum/rigidsim/internal/viz"
)

// loadConfig resolves the scene from --config or the preset, then applies
// flag overrides. Every call returns a fresh config.
func loadConfig(args []string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	} else {
		scene := config.DefaultScene
		if len(args) > 0 {
			scene = args[0]
		}
		variant := preset
		if variant == "" {
			variant = config.DefaultVariant
		}
		cfg = config.GetPreset(scene, variant)
		if cfg == nil {
			if len(config.ListPresets(scene)) == 0 {
				return nil, fmt.Errorf("unknown scene: %s (available: %v)", scene, config.ListScenes())
			}
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", variant, config.ListPresets(scene))
		}
	}

	if dt > 0 {
		cfg.Dt = dt
	}
	if duration > 0 {
		cfg.Duration = duration
	}
	if sampleEvery >= 0 {
		cfg.SampleEvery = sampleEvery
	}
	if workers >= 0 {
		cfg.Solver.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printMetrics(w io.Writer, metrics map[string]float64) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %.6f\n", name, metrics[name])
	}
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	log := newLogger()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	exp := experiment.New(cfg, registry)
	exp.SetLogger(log)
	if err := exp.Setup(registry.DefaultMetrics(cfg)); err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	fmt.Printf("running %s simulation...\n", cfg.Scene)
	start := time.Now()
	result, runErr := exp.Run(ctx)
	elapsed := time.Since(start)
	if result == nil {
		return runErr
	}

	runID, err := st.Save(cfg, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d (%d frames)\n", result.StepsTaken, len(result.Frames))
	if n := len(result.Diagnostics); n > 0 {
		fmt.Printf("diagnostics: %d\n", n)
		for _, d := range result.Diagnostics[:min(n, 5)] {
			fmt.Printf("  %v\n", d)
		}
	}
	fmt.Println("\nmetrics:")
	printMetrics(os.Stdout, result.Metrics)

	// A failed step still stores the partial run.
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	return viz.RunLive(cfg, experiment.NewRegistry(), newLogger(), exitWhenDone)
}

// ensembleJobs builds one job per config with the default metrics.
func ensembleJobs(cfgs []*config.Config, names []string) ([]sim.Job, error) {
	registry := experiment.NewRegistry()
	jobs := make([]sim.Job, len(cfgs))
	for i, cfg := range cfgs {
		job, err := experiment.NewJob(names[i], cfg, registry, newLogger())
		if err != nil {
			return nil, err
		}
		jobs[i] = job
	}
	return jobs, nil
}

func benchScene(cmd *cobra.Command, args []string) error {
	switch profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(dataDir)).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(dataDir)).Stop()
	case "block":
		defer profile.Start(profile.BlockProfile, profile.ProfilePath(dataDir)).Stop()
	default:
		return fmt.Errorf("unknown profile mode: %s (want cpu, mem or block)", profileMode)
	}

	base, err := loadConfig(args)
	if err != nil {
		return err
	}

	dts := []float64{base.Dt, base.Dt / 2, base.Dt / 4}
	cfgs := make([]*config.Config, len(dts))
	names := make([]string, len(dts))
	for i, d := range dts {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		cfg.Dt = d
		// Throughput only needs the final frame.
		cfg.SampleEvery = math.MaxInt32
		cfgs[i], names[i] = cfg, fmt.Sprintf("dt=%.5f", d)
	}

	jobs, err := ensembleJobs(cfgs, names)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	fmt.Printf("benchmarking %s (%d bodies, %.1fs)\n\n", base.Scene, len(base.Bodies), base.Duration)
	start := time.Now()
	results, err := sim.NewEnsemble(sim.New(), benchJobs).Run(ctx, jobs)
	wall := time.Since(start)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTEPS\tENERGY_DRIFT\tMAX_PEN\tSTEPS/SEC")
	total := 0
	for i, r := range results {
		total += r.StepsTaken
		fmt.Fprintf(w, "%s\t%d\t%.2e\t%.2e\t%.0f\n",
			names[i], r.StepsTaken, r.Metrics["energy_drift"], r.Metrics["max_penetration"],
			float64(r.StepsTaken)/wall.Seconds())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d steps in %v (%.0f steps/sec overall)\n", total, wall, float64(total)/wall.Seconds())
	return nil
}

func compareSolvers(cmd *cobra.Command, args []string) error {
	if len(iterations) == 0 {
		return fmt.Errorf("no iteration counts given")
	}

	cfgs := make([]*config.Config, len(iterations))
	names := make([]string, len(iterations))
	for i, n := range iterations {
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		cfg.Solver.VelocityIterations = n
		if err := cfg.Validate(); err != nil {
			return err
		}
		cfgs[i], names[i] = cfg, fmt.Sprintf("iters=%d", n)
	}

	jobs, err := ensembleJobs(cfgs, names)
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	results, err := sim.NewEnsemble(sim.New(), compareJobs).Run(ctx, jobs)
	if err != nil {
		return err
	}

	fmt.Printf("comparing solver iterations for %s (dt=%.4f, duration=%.1fs)\n\n", cfgs[0].Scene, cfgs[0].Dt, cfgs[0].Duration)
	fmt.Printf("%-10s  %-12s  %-12s  %-12s  %-10s\n", "solver", "energy_drift", "max_pen", "stability", "rest_time")
	fmt.Println(strings.Repeat("-", 62))
	for i, r := range results {
		m := r.Metrics
		fmt.Printf("%-10s  %12.2e  %12.2e  %12.3f  %10.2f\n", names[i], m["energy_drift"], m["max_penetration"], m["stability"], m["rest_time"])
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENE\tVARIANT\tDIM\tTIME\tDURATION\tDT\tFRAMES\tDIAG")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dd\t%s\t%.2fs\t%.4fs\t%d\t%d\n",
			run.ID,
			run.Scene,
			run.Variant,
			run.Dimension,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Frames,
			run.Diagnostics,
		)
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("scenes:")
		for _, scene := range config.ListScenes() {
			fmt.Printf("  %-12s %s\n", scene, strings.Join(config.ListPresets(scene), ", "))
		}
		return nil
	}

	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for scene: %s\n", args[0])
		return nil
	}
	fmt.Printf("presets for %s:\n", args[0])
	for _, p := range presets {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

// loadRun returns the metadata and frames of a stored run.
func loadRun(runID string) (*storage.RunMetadata, []sim.Frame, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	frames, err := st.LoadFrames(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("no data in run %s", runID)
	}
	return meta, frames, nil
}

// pickBody returns the requested body, or the first dynamic one.
func pickBody(frames []sim.Frame, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	for _, b := range frames[0].Bodies {
		if b.Type == "dynamic" {
			return b.Name, nil
		}
	}
	return "", fmt.Errorf("run has no dynamic body, pass --body")
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, frames, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("samples: %d\n\n", len(frames))

	energy, err := analysis.FrameSeries(frames, "energy")
	if err != nil {
		return err
	}
	fmt.Println(asciigraph.Plot(energy, asciigraph.Height(10), asciigraph.Width(plotWidth), asciigraph.Caption("energy")))
	fmt.Println()

	var bodies []string
	if bodyName != "" {
		bodies = []string{bodyName}
	} else {
		for _, b := range frames[0].Bodies {
			if b.Type == "dynamic" {
				bodies = append(bodies, b.Name)
			}
		}
	}

	const maxPlots = 6
	if len(bodies) > maxPlots {
		fmt.Printf("(plotting %d of %d bodies, use --body)\n\n", maxPlots, len(bodies))
		bodies = bodies[:maxPlots]
	}

	for _, name := range bodies {
		data, err := analysis.Series(frames, name, plotField)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(fmt.Sprintf("%s.%s vs time", name, plotField)),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, frames, err := loadRun(args[0])
	if err != nil {
		return err
	}
	name, err := pickBody(frames, bodyName)
	if err != nil {
		return err
	}
	data, err := analysis.Series(frames, name, analyzeField)
	if err != nil {
		return err
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("scene: %s, trace: %s.%s\n\n", meta.Scene, name, analyzeField)

	ps := analysis.PowerSpectrum(data)
	if len(ps) < 2 {
		return fmt.Errorf("not enough samples")
	}
	graph := asciigraph.Plot(ps[:max(2, len(ps)/4)],
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("power spectrum (%s.%s)", name, analyzeField)),
	)
	fmt.Println(graph)
	fmt.Println()

	freq, _ := analysis.DominantFrequency(data, analysis.SampleInterval(frames))
	fmt.Printf("dominant frequency: %.3f hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1.0/freq)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, frames, err := loadRun(args[0])
	if err != nil {
		return err
	}
	name, err := pickBody(frames, bodyName)
	if err != nil {
		return err
	}
	xs, err := analysis.Series(frames, name, xField)
	if err != nil {
		return err
	}
	ys, err := analysis.Series(frames, name, yField)
	if err != nil {
		return err
	}

	portrait := analysis.NewPhasePortrait(xs, ys)
	if len(portrait.Points) == 0 {
		return fmt.Errorf("no finite samples for %s", name)
	}

	fmt.Printf("phase space plot: %s\n", meta.ID)
	fmt.Printf("body: %s, x: %s, y: %s\n\n", name, xField, yField)

	_, _, minY, maxY := portrait.Bounds()
	fmt.Printf("%10.2f\n", maxY)
	fmt.Print(portrait.ToASCII(70, 20))
	fmt.Printf("%10.2f\n", minY)
	fmt.Printf("\nLegend: . = early, o = middle, ● = late\n")

	if phaseSVG != "" {
		return writePhaseSVG(portrait.Points)
	}
	return nil
}

// outputWriter returns stdout or the --output file.
func outputWriter() (io.Writer, func() error, error) {
	if output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, frames, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, done, err := outputWriter()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, *meta, frames); err != nil {
		done()
		return err
	}
	return done()
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, frames, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, done, err := outputWriter()
	if err != nil {
		return err
	}
	if err := storage.ExportCSV(w, frames); err != nil {
		done()
		return err
	}
	return done()
}
