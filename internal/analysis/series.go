package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/rigidsim/internal/sim"
)

var ErrUnknownField = errors.New("analysis: unknown field")

// BodyFields lists the per-body quantities Series understands.
var BodyFields = []string{"x", "y", "z", "angle", "vx", "vy", "vz", "omega", "speed"}

// FrameFields lists the per-frame quantities FrameSeries understands.
var FrameFields = []string{"energy", "kinetic", "potential", "contacts", "sleeping", "penetration", "impulse"}

func bodyField(b sim.BodyState, field string) (float64, bool) {
	switch field {
	case "x":
		return b.X, true
	case "y":
		return b.Y, true
	case "z":
		return b.Z, true
	case "angle":
		return b.Angle, true
	case "vx":
		return b.VX, true
	case "vy":
		return b.VY, true
	case "vz":
		return b.VZ, true
	case "omega":
		return b.Omega, true
	case "speed":
		return b.Speed(), true
	}
	return 0, false
}

// Series returns field of the named body across frames. Frames missing the
// body contribute NaN.
func Series(frames []sim.Frame, body, field string) ([]float64, error) {
	if _, ok := bodyField(sim.BodyState{}, field); !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownField, field, BodyFields)
	}

	out := make([]float64, len(frames))
	found := false
	for i := range frames {
		b, ok := frames[i].Body(body)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		found = true
		out[i], _ = bodyField(b, field)
	}
	if !found && len(frames) > 0 {
		return nil, fmt.Errorf("analysis: body %q not recorded", body)
	}
	return out, nil
}

// FrameSeries returns a per-frame quantity across frames.
func FrameSeries(frames []sim.Frame, field string) ([]float64, error) {
	var get func(f *sim.Frame) float64
	switch field {
	case "energy":
		get = func(f *sim.Frame) float64 { return f.Energy() }
	case "kinetic":
		get = func(f *sim.Frame) float64 { return f.Kinetic }
	case "potential":
		get = func(f *sim.Frame) float64 { return f.Potential }
	case "contacts":
		get = func(f *sim.Frame) float64 { return float64(f.Contacts) }
	case "sleeping":
		get = func(f *sim.Frame) float64 { return float64(f.Sleeping) }
	case "penetration":
		get = func(f *sim.Frame) float64 { return f.MaxPenetration }
	case "impulse":
		get = func(f *sim.Frame) float64 { return f.NormalImpulse }
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownField, field, FrameFields)
	}

	out := make([]float64, len(frames))
	for i := range frames {
		out[i] = get(&frames[i])
	}
	return out, nil
}

// SampleInterval returns the mean time between consecutive frames.
func SampleInterval(frames []sim.Frame) float64 {
	if len(frames) < 2 {
		return 0
	}
	return (frames[len(frames)-1].Time - frames[0].Time) / float64(len(frames)-1)
}
