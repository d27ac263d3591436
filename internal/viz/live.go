package viz

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	frameRate       = 60
	maxStepsPerTick = 64
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Monitor steps a scene in real time and renders it with live metrics.
type Monitor struct {
	cfg      *config.Config
	registry *experiment.Registry
	log      logr.Logger

	scene   experiment.Scene
	frame   sim.Frame
	metrics []sim.Metric
	err     error

	canvas       *Canvas
	camera       *Camera
	theme        Theme
	energy       []float64
	running      bool
	stepsPerTick int
	showHelp     bool
	// quitOnDone makes the program exit once the configured duration has run.
	quitOnDone bool
}

// NewMonitor builds the scene described by cfg. A nil registry uses the
// default drivers.
func NewMonitor(cfg *config.Config, reg *experiment.Registry, log logr.Logger) (*Monitor, error) {
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	m := &Monitor{
		cfg:          cfg,
		registry:     reg,
		log:          log.WithName("viz"),
		canvas:       NewCanvas(width/2+8, height-4),
		camera:       NewCamera(),
		theme:        Themes[0],
		running:      true,
		stepsPerTick: stepsForRealTime(cfg.Dt),
	}
	if err := m.reset(); err != nil {
		return nil, err
	}
	return m, nil
}

// stepsForRealTime is the number of steps per frame that keeps simulated
// time close to wall time.
func stepsForRealTime(dt float64) int {
	if !(dt > 0) {
		return 1
	}
	n := int(math.Round(1 / (frameRate * dt)))
	if n < 1 {
		return 1
	}
	return min(n, maxStepsPerTick)
}

func (m *Monitor) reset() error {
	scene, err := experiment.Build(m.cfg, m.registry, m.log)
	if err != nil {
		return err
	}
	m.scene = scene
	m.err = nil
	m.metrics = m.registry.DefaultMetrics(m.cfg)
	m.energy = m.energy[:0]
	m.scene.Snapshot(&m.frame)
	m.observe()

	sw, sh := m.canvas.PixelSize()
	rx, ry := m.camera.RotX, m.camera.RotY
	m.camera.Fit(Outline(m.scene), sw, sh)
	m.camera.RotX, m.camera.RotY = rx, ry
	return nil
}

func (m *Monitor) observe() {
	for _, mt := range m.metrics {
		mt.Observe(&m.frame)
	}
	m.energy = append(m.energy, m.frame.Energy())
	if len(m.energy) > historyCapacity {
		m.energy = m.energy[1:]
	}
}

// Done reports whether the configured duration has elapsed.
func (m *Monitor) Done() bool {
	return m.cfg.Duration > 0 && m.frame.Time >= m.cfg.Duration-m.cfg.Dt/2
}

func (m *Monitor) Frame() *sim.Frame { return &m.frame }

func (m *Monitor) Err() error { return m.err }

// Advance performs n steps, stopping early on a step error or at the end of
// the configured duration.
func (m *Monitor) Advance(n int) {
	for i := 0; i < n && m.err == nil && !m.Done(); i++ {
		report, err := m.scene.Step()
		if err != nil {
			m.err = err
			m.running = false
			m.log.Error(err, "step failed", "time", m.frame.Time)
			return
		}
		m.scene.Snapshot(&m.frame)
		if report != nil {
			m.frame.Diagnostics = len(report.Diagnostics)
			for _, d := range report.Diagnostics {
				m.log.V(1).Info("step diagnostic", "step", m.frame.Step, "err", d)
			}
		}
		m.observe()
	}
}

func (m *Monitor) Init() tea.Cmd { return tick() }

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case TickMsg:
		if m.running {
			m.Advance(m.stepsPerTick)
			if m.Done() {
				m.running = false
				if m.quitOnDone {
					return m, tea.Quit
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m *Monitor) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case " ", "space":
		m.running = !m.running && m.err == nil
	case ".":
		if !m.running {
			m.Advance(1)
		}
	case "r":
		if err := m.reset(); err != nil {
			m.err = err
		}
	case "t":
		m.theme = NextTheme(m.theme)
	case "[":
		m.stepsPerTick = max(1, m.stepsPerTick/2)
	case "]":
		m.stepsPerTick = min(maxStepsPerTick, m.stepsPerTick*2)
	case "+", "=":
		m.camera.ZoomIn()
	case "-", "_":
		m.camera.ZoomOut()
	case "x":
		m.camera.RotateX(0.1)
	case "X":
		m.camera.RotateX(-0.1)
	case "y":
		m.camera.RotateY(0.1)
	case "Y":
		m.camera.RotateY(-0.1)
	case "?":
		m.showHelp = !m.showHelp
	}
	return nil
}

func (m *Monitor) status(st styles) string {
	switch {
	case m.err != nil:
		var se *dynamo.StepError
		if errors.As(m.err, &se) {
			return st.failed.Render("FAILED at step " + fmt.Sprint(se.Step))
		}
		return st.failed.Render("FAILED")
	case m.Done():
		return st.paused.Render("DONE")
	case !m.running:
		return st.paused.Render("PAUSED")
	}
	return st.running.Render("RUNNING")
}

func (m *Monitor) View() string {
	st := newStyles(m.theme)

	m.canvas.Clear()
	Render(m.canvas, Outline(m.scene), m.camera)
	canvasView := st.canvas.Render(m.canvas.String())

	title := m.cfg.Scene
	if m.cfg.Variant != "" && m.cfg.Variant != config.DefaultVariant {
		title += "/" + m.cfg.Variant
	}

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(title)) + "\n")
	s.WriteString(m.status(st) + "\n\n")
	if m.cfg.Duration > 0 {
		s.WriteString(st.muted.Render(ProgressBar(m.frame.Time/m.cfg.Duration, 30)) + "\n\n")
	}

	if len(m.energy) > 1 {
		chart := asciigraph.Plot(m.energy, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy"))
		s.WriteString(st.graph.Render(chart) + "\n\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.2fs", m.frame.Time))
	row("Step", fmt.Sprint(m.frame.Step))
	row("Speed", fmt.Sprintf("%d steps/frame", m.stepsPerTick))
	row("Bodies", fmt.Sprintf("%d (%d asleep)", len(m.frame.Bodies), m.frame.Sleeping))
	row("Contacts", fmt.Sprint(m.frame.Contacts))
	row("Energy", fmt.Sprintf("%.3f", m.frame.Energy()))
	if m.frame.Diagnostics > 0 {
		row("Diagnostics", fmt.Sprint(m.frame.Diagnostics))
	}

	s.WriteString("\n" + st.header.Render("METRICS") + "\n")
	names := make([]string, 0, len(m.metrics))
	values := make(map[string]float64, len(m.metrics))
	for _, mt := range m.metrics {
		names = append(names, mt.Name())
		values[mt.Name()] = mt.Value()
	}
	sort.Strings(names)
	for _, name := range names {
		row(name, fmt.Sprintf("%.4g", values[name]))
	}

	if m.err != nil {
		s.WriteString("\n" + st.failed.Render(m.err.Error()) + "\n")
	}

	s.WriteString(st.muted.Render("\n" + Separator(21) + "\nSP:Pause R:Reset Q:Quit\nT:Theme  [ ]:Speed ?:Help"))
	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.panel.Render(s.String()))

	if m.showHelp {
		return helpText + "\n\n" + main
	}
	return main
}

const helpText = `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume simulation  ║
║  .        - Single step (paused)     ║
║  R        - Rebuild scene            ║
║  Q        - Quit                     ║
║  [ / ]    - Slower / faster          ║
║  + / -    - Zoom in / out            ║
║  x X y Y  - Rotate camera            ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝`

// RunLive opens the monitor for cfg and blocks until the user quits, or until
// the configured duration has run when exitWhenDone is set.
func RunLive(cfg *config.Config, reg *experiment.Registry, log logr.Logger, exitWhenDone bool) error {
	m, err := NewMonitor(cfg, reg, log)
	if err != nil {
		return err
	}
	m.quitOnDone = exitWhenDone
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	return m.err
}
