package metrics

import (
	"math"

	"github.com/san-kum/rigidsim/internal/sim"
)

// Rest reports the time after which every dynamic body stayed slower than
// the tolerance, or -1 if the scene was still moving in the last frame.
type Rest struct {
	tolerance float64
	since     float64
	resting   bool
}

func NewRest(tolerance float64) *Rest {
	return &Rest{tolerance: tolerance, since: -1}
}

func (r *Rest) Name() string { return "rest_time" }

func (r *Rest) Observe(f *sim.Frame) {
	still := true
	for _, b := range f.Bodies {
		if b.Type != "dynamic" {
			continue
		}
		if !b.IsValid() || b.Speed() >= r.tolerance || math.Abs(b.Omega) >= r.tolerance {
			still = false
			break
		}
	}

	switch {
	case still && !r.resting:
		r.resting = true
		r.since = f.Time
	case !still:
		r.resting = false
		r.since = -1
	}
}

func (r *Rest) Value() float64 { return r.since }

func (r *Rest) Reset() {
	r.since = -1
	r.resting = false
}
