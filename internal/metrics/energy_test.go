package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/rigidsim/internal/sim"
)

func frame(t, ke, pe float64) *sim.Frame {
	return &sim.Frame{Time: t, Kinetic: ke, Potential: pe}
}

func TestEnergyMean(t *testing.T) {
	m := NewEnergy()

	m.Observe(frame(0, 0, 10))
	m.Observe(frame(1, 4, 4))
	if got := m.Value(); math.Abs(got-9) > 1e-12 {
		t.Errorf("expected mean energy 9, got %f", got)
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergyDrift(t *testing.T) {
	tests := []struct {
		name   string
		frames []*sim.Frame
		want   float64
	}{
		{"conserved", []*sim.Frame{frame(0, 0, 10), frame(1, 5, 5), frame(2, 10, 0)}, 0},
		{"dissipating", []*sim.Frame{frame(0, 0, 10), frame(1, 2, 5), frame(2, 0, 0)}, 1},
		{"gaining", []*sim.Frame{frame(0, 0, 10), frame(1, 2, 10)}, 0.2},
		{"zero initial energy", []*sim.Frame{frame(0, 0, 0), frame(1, 0.5, 0)}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEnergyDrift()
			for _, f := range tt.frames {
				m.Observe(f)
			}
			if got := m.Value(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("drift = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStability(t *testing.T) {
	m := NewStability(10)
	if m.Value() != 1 {
		t.Error("no samples should report full stability")
	}

	m.Observe(&sim.Frame{Bodies: []sim.BodyState{{VX: 1}}})
	m.Observe(&sim.Frame{Bodies: []sim.BodyState{{VX: 20}}})
	m.Observe(&sim.Frame{Bodies: []sim.BodyState{{VY: math.NaN()}}})
	m.Observe(&sim.Frame{Bodies: []sim.BodyState{{VY: 9}, {VZ: 3}}})

	if got := m.Value(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("stability = %v, want 0.5", got)
	}
}
