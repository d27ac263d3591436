package sim

import (
	"math"
	"testing"
)

func TestBodyStateIsValid(t *testing.T) {
	tests := []struct {
		name  string
		state BodyState
		valid bool
	}{
		{"zero", BodyState{}, true},
		{"normal", BodyState{X: 1, Y: 2, VX: 3}, true},
		{"with NaN", BodyState{Y: math.NaN()}, false},
		{"with +Inf", BodyState{Omega: math.Inf(1)}, false},
		{"with -Inf", BodyState{VZ: math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestBodyStateSpeed(t *testing.T) {
	tests := []struct {
		state    BodyState
		expected float64
	}{
		{BodyState{VX: 3, VY: 4}, 5},
		{BodyState{VZ: -2}, 2},
		{BodyState{}, 0},
	}

	for _, tt := range tests {
		if got := tt.state.Speed(); math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("Speed(%+v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestFrameClone(t *testing.T) {
	f := Frame{
		Bodies: []BodyState{{Name: "a", X: 1}},
		Joints: []JointState{{Name: "j", Angle: 0.5}},
	}
	c := f.Clone()
	c.Bodies[0].X = 99
	c.Joints[0].Angle = 99

	if f.Bodies[0].X != 1 || f.Joints[0].Angle != 0.5 {
		t.Error("Clone shares slices with the original")
	}
	if b, ok := c.Body("a"); !ok || b.X != 99 {
		t.Errorf("Body lookup failed: %+v %v", b, ok)
	}
	if _, ok := c.Body("missing"); ok {
		t.Error("unexpected body")
	}
}

func TestFrameEnergy(t *testing.T) {
	f := Frame{Kinetic: 2, Potential: 3}
	if f.Energy() != 5 {
		t.Errorf("Energy() = %v, want 5", f.Energy())
	}
	f.Kinetic = math.NaN()
	if f.IsValid() {
		t.Error("NaN kinetic energy should be invalid")
	}
}
