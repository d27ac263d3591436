package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
)

var sceneInfo = map[string]string{
	"drop":        "box or ball settling on the ground",
	"stack":       "resting contact in a column",
	"platform":    "kinematic platforms carrying boxes",
	"joint_motor": "revolute motors and limits",
	"restitution": "3d bouncing balls",
	"pendulum":    "hinged chain under gravity",
}

type entry struct {
	scene, variant string
}

// picker lists every preset and opens a Monitor for the chosen one.
type picker struct {
	entries  []entry
	cursor   int
	registry *experiment.Registry
	log      logr.Logger
	theme    Theme
	monitor  *Monitor
	err      error
}

func newPicker(reg *experiment.Registry, log logr.Logger) *picker {
	p := &picker{registry: reg, log: log, theme: Themes[0]}
	for _, scene := range config.ListScenes() {
		for _, variant := range config.ListPresets(scene) {
			p.entries = append(p.entries, entry{scene, variant})
		}
	}
	return p
}

func (p *picker) Init() tea.Cmd { return nil }

func (p *picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.monitor != nil {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			p.monitor = nil
			return p, nil
		}
		_, cmd := p.monitor.Update(msg)
		return p, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch k.String() {
	case "q", "ctrl+c":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.entries)-1 {
			p.cursor++
		}
	case "enter", " ":
		return p, p.open(p.entries[p.cursor])
	}
	return p, nil
}

func (p *picker) open(e entry) tea.Cmd {
	cfg := config.GetPreset(e.scene, e.variant)
	if cfg == nil {
		p.err = fmt.Errorf("unknown preset %s/%s", e.scene, e.variant)
		return nil
	}
	m, err := NewMonitor(cfg, p.registry, p.log)
	if err != nil {
		p.err = err
		return nil
	}
	m.theme = p.theme
	p.monitor, p.err = m, nil
	return m.Init()
}

func (p *picker) View() string {
	if p.monitor != nil {
		return p.monitor.View()
	}

	st := newStyles(p.theme)
	var b strings.Builder
	b.WriteString("\n\n    " + st.header.Render("RIGIDSIM") + "\n    " + st.muted.Render("rigid-body scene monitor") + "\n    " + st.muted.Render(Separator(25)) + "\n\n")

	for i, e := range p.entries {
		name := fmt.Sprintf("%-12s %-9s", e.scene, e.variant)
		if i == p.cursor {
			b.WriteString("    " + st.cursor.Render("▸ "+name) + "  " + st.value.Render(sceneInfo[e.scene]) + "\n")
		} else {
			b.WriteString("      " + st.muted.Render(name) + "\n")
		}
	}
	if p.err != nil {
		b.WriteString("\n    " + st.failed.Render(p.err.Error()) + "\n")
	}
	b.WriteString("\n    " + st.muted.Render("j/k navigate  enter open  esc back  q quit") + "\n")
	return b.String()
}

// RunInteractive lets the user browse presets and watch them run.
func RunInteractive(reg *experiment.Registry, log logr.Logger) error {
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	_, err := tea.NewProgram(newPicker(reg, log), tea.WithAltScreen()).Run()
	return err
}
