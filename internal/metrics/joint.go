package metrics

import (
	"math"

	"github.com/san-kum/rigidsim/internal/sim"
)

// JointAngle reports the last observed angle of the named joint.
type JointAngle struct {
	joint string
	angle float64
	found bool
}

func NewJointAngle(joint string) *JointAngle {
	return &JointAngle{joint: joint}
}

func (j *JointAngle) Name() string { return "angle:" + j.joint }

func (j *JointAngle) Observe(f *sim.Frame) {
	for _, js := range f.Joints {
		if js.Name == j.joint {
			j.angle = js.Angle
			j.found = true
			return
		}
	}
}

func (j *JointAngle) Value() float64 {
	if !j.found {
		return math.NaN()
	}
	return j.angle
}

func (j *JointAngle) Reset() {
	j.angle = 0
	j.found = false
}

// LimitViolation is the largest distance any limited joint angle strayed
// outside its bounds.
type LimitViolation struct {
	worst float64
}

func NewLimitViolation() *LimitViolation { return &LimitViolation{} }

func (l *LimitViolation) Name() string { return "limit_violation" }

func (l *LimitViolation) Observe(f *sim.Frame) {
	for _, js := range f.Joints {
		if !js.HasLimits {
			continue
		}
		switch {
		case js.Angle < js.Lower:
			l.worst = math.Max(l.worst, js.Lower-js.Angle)
		case js.Angle > js.Upper:
			l.worst = math.Max(l.worst, js.Angle-js.Upper)
		}
	}
}

func (l *LimitViolation) Value() float64 { return l.worst }
func (l *LimitViolation) Reset()         { l.worst = 0 }
