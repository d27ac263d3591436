package export

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/analysis"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/viz"
)

func TestCanvasToSVG(t *testing.T) {
	if CanvasToSVG(nil, 2, viz.ThemeMinimal) != "" {
		t.Error("nil canvas should render nothing")
	}

	cv := viz.NewCanvas(4, 2)
	cv.Set(0, 0)
	cv.Set(7, 7)
	svg := CanvasToSVG(cv, 2, viz.ThemeCyberpunk)

	if n := strings.Count(svg, "<circle"); n != 2 {
		t.Errorf("expected 2 dots, got %d", n)
	}
	if !strings.Contains(svg, `width="16" height="16"`) {
		t.Errorf("unexpected size in %q", svg[:120])
	}
	if !strings.Contains(svg, `fill="#00ffff"`) {
		t.Error("theme colour missing")
	}
	if !strings.Contains(svg, `cx="15.0" cy="15.0"`) {
		t.Error("corner dot misplaced")
	}
}

func TestSegmentsToSVG(t *testing.T) {
	cfg := config.GetPreset("drop", "default")
	if cfg == nil {
		t.Fatal("missing drop preset")
	}
	scene, err := experiment.Build(cfg, nil, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	segs := viz.Outline(scene)
	cam := viz.NewCamera()
	cam.Fit(segs, 400, 300)

	svg := SegmentsToSVG(segs, cam, 400, 300, "#ffffff")
	if n := strings.Count(svg, "<line"); n != len(segs) {
		t.Errorf("expected %d lines, got %d", len(segs), n)
	}
	if !strings.HasSuffix(svg, "</svg>") {
		t.Error("document not closed")
	}

	one := []viz.Segment{{A: mgl64.Vec3{0, 0, 0}, B: mgl64.Vec3{1, 0, 0}}}
	svg = SegmentsToSVG(one, nil, 100, 100, "red")
	if !strings.Contains(svg, `x1="50" y1="50" x2="58" y2="50"`) {
		t.Errorf("default camera projection wrong: %s", svg)
	}
}

func TestTrajectoryToSVG(t *testing.T) {
	if TrajectoryToSVG([]analysis.Point{{X: 1, Y: 1}}, 100, 100, "red") != "" {
		t.Error("single point should render nothing")
	}

	pts := []analysis.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}
	svg := TrajectoryToSVG(pts, 120, 120, "#00ff00")
	if strings.Count(svg, " L") != 2 {
		t.Errorf("expected 2 line commands in %s", svg)
	}
	// x spans [-0.2, 2.2] and y spans [-0.1, 1.1], so (0,0) maps to (10, 110).
	if !strings.Contains(svg, `d="M10.0,110.0`) {
		t.Errorf("unexpected start point in %s", svg)
	}
}
