package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/viz"
)

var (
	dataDir string
	verbose int

	// scene selection, shared by run, live, bench and compare
	preset      string
	configFile  string
	dt          float64
	duration    float64
	sampleEvery int
	workers     int

	// run inspection
	bodyName     string
	plotField    string
	analyzeField string
	xField       string
	yField       string
	output       string
	plotWidth    int

	profileMode  string
	benchJobs    int
	compareJobs  int
	iterations   []int
	exitWhenDone bool
)

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbose})
}

// sceneFlags registers the flags that pick and override a scene.
func sceneFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&preset, "preset", "", "scene variant (default \"default\")")
	cmd.Flags().StringVar(&configFile, "config", "", "scene file (yaml), overrides the preset")
	cmd.Flags().Float64Var(&dt, "dt", 0, "timestep override")
	cmd.Flags().Float64Var(&duration, "time", 0, "duration override")
	cmd.Flags().IntVar(&sampleEvery, "sample-every", -1, "record every n-th frame")
	cmd.Flags().IntVar(&workers, "workers", -1, "engine worker count (0 = GOMAXPROCS)")
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "rigidsim",
		Short:         "rigid-body physics testbed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunInteractive(experiment.NewRegistry(), newLogger())
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rigidsim", "data directory")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", 0, "log verbosity")

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a scene and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	sceneFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live [scene]",
		Short: "run a scene in the live monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	sceneFlags(liveCmd)
	liveCmd.Flags().BoolVar(&exitWhenDone, "exit", false, "quit when the duration has run")

	benchCmd := &cobra.Command{
		Use:   "bench [scene]",
		Short: "measure step throughput across timesteps",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchScene,
	}
	sceneFlags(benchCmd)
	benchCmd.Flags().StringVar(&profileMode, "profile", "", "write a profile: cpu, mem or block")
	benchCmd.Flags().IntVar(&benchJobs, "jobs", 1, "scenes run concurrently")

	compareCmd := &cobra.Command{
		Use:   "compare [scene]",
		Short: "compare solver iteration counts on the same scene",
		Args:  cobra.MaximumNArgs(1),
		RunE:  compareSolvers,
	}
	sceneFlags(compareCmd)
	compareCmd.Flags().IntSliceVar(&iterations, "iterations", []int{1, 2, 4, 8}, "velocity iteration counts")
	compareCmd.Flags().IntVar(&compareJobs, "jobs", 4, "scenes run concurrently")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [scene]",
		Short: "list scenes or the presets of a scene",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&bodyName, "body", "", "plot one body (default: every dynamic body)")
	plotCmd.Flags().StringVar(&plotField, "field", "y", "body field to plot")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a body trace",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&bodyName, "body", "", "body to analyze (default: first dynamic body)")
	analyzeCmd.Flags().StringVar(&analyzeField, "field", "angle", "body field to analyze")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase space plot of a body",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&bodyName, "body", "", "body to plot (default: first dynamic body)")
	phaseCmd.Flags().StringVar(&xField, "x", "angle", "field for the x axis")
	phaseCmd.Flags().StringVar(&yField, "y", "omega", "field for the y axis")
	phaseCmd.Flags().StringVar(&phaseSVG, "svg", "", "also write the trajectory to an svg file")
	phaseCmd.Flags().IntVar(&svgWidth, "svg-width", 640, "svg width")
	phaseCmd.Flags().IntVar(&svgHeight, "svg-height", 480, "svg height")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export body states to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run the scenes listed in a batch file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene]",
		Short: "vary one parameter over a range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sceneFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "baumgarte", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.05, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.5, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().IntVar(&parallel, "jobs", 4, "scenes run concurrently")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [scene]",
		Short: "perturb initial positions and count stable outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	sceneFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.05, "position perturbation per axis")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = clock)")
	monteCarloCmd.Flags().IntVar(&parallel, "jobs", 4, "scenes run concurrently")

	tuneCmd := &cobra.Command{
		Use:   "tune [scene]",
		Short: "grid search parameters minimising a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneScene,
	}
	sceneFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "max_penetration", "metric to minimise")
	tuneCmd.Flags().IntVar(&parallel, "jobs", 4, "scenes run concurrently")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot [scene]",
		Short: "write the scene outline at a given time as svg",
		Args:  cobra.MaximumNArgs(1),
		RunE:  snapshot,
	}
	sceneFlags(snapshotCmd)
	snapshotCmd.Flags().Float64Var(&snapAt, "at", 0, "simulated time of the snapshot")
	snapshotCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	snapshotCmd.Flags().IntVar(&svgWidth, "width", 640, "svg width")
	snapshotCmd.Flags().IntVar(&svgHeight, "height", 480, "svg height")
	snapshotCmd.Flags().BoolVar(&braille, "braille", false, "render through the terminal canvas")

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, compareCmd, listCmd, presetsCmd, plotCmd, analyzeCmd, phaseCmd,
		exportJSONCmd, exportCSVCmd, batchCmd, sweepCmd, monteCarloCmd, tuneCmd, snapshotCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
