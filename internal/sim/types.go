package sim

import (
	"math"

	"github.com/san-kum/rigidsim/internal/dynamo"
)

// BodyState is the sampled state of one body. Planar scenes leave Z and VZ
// at zero; for 3D scenes Angle is the rotation angle of the orientation
// quaternion and Omega the angular speed.
type BodyState struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Angle    float64 `json:"angle"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	VZ       float64 `json:"vz"`
	Omega    float64 `json:"omega"`
	Sleeping bool    `json:"sleeping"`
}

func (b BodyState) Speed() float64 {
	return math.Sqrt(b.VX*b.VX + b.VY*b.VY + b.VZ*b.VZ)
}

func (b BodyState) IsValid() bool {
	for _, v := range [...]float64{b.X, b.Y, b.Z, b.Angle, b.VX, b.VY, b.VZ, b.Omega} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// JointState is the sampled state of a revolute joint.
type JointState struct {
	Name      string  `json:"name"`
	Angle     float64 `json:"angle"`
	Speed     float64 `json:"speed"`
	HasLimits bool    `json:"has_limits"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// Frame is the published world state after one step.
type Frame struct {
	Step   int          `json:"step"`
	Time   float64      `json:"time"`
	Bodies []BodyState  `json:"bodies"`
	Joints []JointState `json:"joints,omitempty"`

	Contacts int `json:"contacts"`
	Sleeping int `json:"sleeping"`
	// MaxPenetration is the deepest overlap among published contact points.
	MaxPenetration float64 `json:"max_penetration"`
	NormalImpulse  float64 `json:"normal_impulse"`
	Kinetic        float64 `json:"kinetic"`
	Potential      float64 `json:"potential"`
	Diagnostics    int     `json:"diagnostics"`
}

func (f *Frame) Energy() float64 { return f.Kinetic + f.Potential }

func (f *Frame) Clone() Frame {
	c := *f
	c.Bodies = append([]BodyState(nil), f.Bodies...)
	c.Joints = append([]JointState(nil), f.Joints...)
	return c
}

func (f *Frame) IsValid() bool {
	for _, b := range f.Bodies {
		if !b.IsValid() {
			return false
		}
	}
	return !math.IsNaN(f.Kinetic) && !math.IsInf(f.Kinetic, 0)
}

// Body returns the state of the named body.
func (f *Frame) Body(name string) (BodyState, bool) {
	for _, b := range f.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodyState{}, false
}

// Stepper advances a world one fixed step at a time.
type Stepper interface {
	Step() (*dynamo.StepReport, error)
	// Snapshot fills f with the current published state, reusing its slices.
	Snapshot(f *Frame)
	Dt() float64
}

type Metric interface {
	Name() string
	Observe(f *Frame)
	Value() float64
	Reset()
}

type Observer interface {
	OnFrame(f *Frame)
}

type Config struct {
	Duration float64
	// SampleEvery keeps every n-th frame in the result; the final frame is always kept.
	SampleEvery int
}

type Result struct {
	Frames      []Frame
	Metrics     map[string]float64
	StepsTaken  int
	Diagnostics []error
}

// Final returns the last sampled frame.
func (r *Result) Final() (Frame, bool) {
	if len(r.Frames) == 0 {
		return Frame{}, false
	}
	return r.Frames[len(r.Frames)-1], true
}
