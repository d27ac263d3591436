package dynamo

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/arena"
)

type MotorMode int

const (
	MotorNone MotorMode = iota
	// MotorPosition drives the joint angle toward TargetAngle.
	MotorPosition
	// MotorVelocity drives the relative angular speed toward TargetSpeed.
	MotorVelocity
)

func (m MotorMode) String() string {
	switch m {
	case MotorPosition:
		return "position"
	case MotorVelocity:
		return "velocity"
	default:
		return "none"
	}
}

// MotorModel selects how stiffness and damping are interpreted.
type MotorModel int

const (
	// AccelerationBased scales stiffness and damping by the effective
	// inertia of the joint, so the response does not depend on body masses.
	AccelerationBased MotorModel = iota
	// ForceBased uses stiffness and damping as torque gains.
	ForceBased
)

func (m MotorModel) String() string {
	if m == ForceBased {
		return "force"
	}
	return "acceleration"
}

func ParseMotorModel(s string) (MotorModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "acceleration":
		return AccelerationBased, nil
	case "force":
		return ForceBased, nil
	}
	return AccelerationBased, fmt.Errorf("unknown motor model %q", s)
}

// Motor is an implicit spring-damper on the joint angle. The torque it
// applies never exceeds MaxForce.
type Motor struct {
	Mode        MotorMode
	TargetAngle float64
	TargetSpeed float64
	Stiffness   float64
	Damping     float64
	MaxForce    float64
	Model       MotorModel
}

func PositionMotor(target, stiffness, damping float64) *Motor {
	return &Motor{
		Mode:        MotorPosition,
		TargetAngle: target,
		Stiffness:   stiffness,
		Damping:     damping,
		MaxForce:    math.Inf(1),
	}
}

func VelocityMotor(speed, damping float64) *Motor {
	return &Motor{
		Mode:        MotorVelocity,
		TargetSpeed: speed,
		Damping:     damping,
		MaxForce:    math.Inf(1),
	}
}

func (m *Motor) WithMaxForce(f float64) *Motor {
	m.MaxForce = f
	return m
}

func (m *Motor) WithModel(model MotorModel) *Motor {
	m.Model = model
	return m
}

func (m *Motor) Validate() error {
	if m == nil {
		return nil
	}
	if m.Stiffness < 0 || m.Damping < 0 || m.MaxForce < 0 ||
		math.IsNaN(m.Stiffness) || math.IsNaN(m.Damping) || math.IsNaN(m.MaxForce) {
		return fmt.Errorf("%w: stiffness=%v damping=%v max_force=%v",
			ErrInvalidMotor, m.Stiffness, m.Damping, m.MaxForce)
	}
	return nil
}

// Limits bound the joint angle to [Lower, Upper].
type Limits struct {
	Lower, Upper float64
}

func (l *Limits) Validate() error {
	if l == nil {
		return nil
	}
	if !(l.Lower <= l.Upper) {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidLimits, l.Lower, l.Upper)
	}
	return nil
}

// RevoluteJoint pins an anchor of body A to an anchor of body B, leaving
// the relative rotation free. The joint angle is the relative rotation of B
// with respect to A minus ReferenceAngle, wrapped into (-π, π].
type RevoluteJoint struct {
	BodyA, BodyB   BodyHandle
	LocalAnchorA   mgl64.Vec2
	LocalAnchorB   mgl64.Vec2
	ReferenceAngle float64
	Motor          *Motor
	Limits         *Limits

	// accumulated impulses, reused to warm start the next step
	impulse      mgl64.Vec2
	motorImpulse float64
	lowerImpulse float64
	upperImpulse float64
}

type JointDesc struct {
	BodyA, BodyB   BodyHandle
	LocalAnchorA   mgl64.Vec2
	LocalAnchorB   mgl64.Vec2
	ReferenceAngle float64
	Motor          *Motor
	Limits         *Limits
}

func (d JointDesc) validate() error {
	if d.BodyA == d.BodyB {
		return ErrInvalidJoint
	}
	if err := d.Motor.Validate(); err != nil {
		return err
	}
	return d.Limits.Validate()
}

// Impulses returns the accumulated point, motor and limit impulses of the last step.
func (j *RevoluteJoint) Impulses() (point mgl64.Vec2, motor, lower, upper float64) {
	return j.impulse, j.motorImpulse, j.lowerImpulse, j.upperImpulse
}

func (j *RevoluteJoint) resetImpulses() {
	j.impulse = mgl64.Vec2{}
	j.motorImpulse = 0
	j.lowerImpulse = 0
	j.upperImpulse = 0
}

// JointSet stores the joints of a world.
type JointSet struct {
	arena *arena.Arena[RevoluteJoint]
}

func newJointSet() *JointSet {
	return &JointSet{arena: arena.New[RevoluteJoint](8)}
}

func (s *JointSet) Get(h JointHandle) (RevoluteJoint, bool) {
	j, ok := s.arena.Get(h.Handle)
	if !ok {
		return RevoluteJoint{}, false
	}
	return *j, true
}

func (s *JointSet) get(h JointHandle) (*RevoluteJoint, bool) { return s.arena.Get(h.Handle) }

func (s *JointSet) Contains(h JointHandle) bool { return s.arena.Contains(h.Handle) }
func (s *JointSet) Len() int                    { return s.arena.Len() }

func (s *JointSet) Iter(fn func(JointHandle, *RevoluteJoint) bool) {
	s.arena.Iter(func(h arena.Handle, j *RevoluteJoint) bool {
		return fn(JointHandle{h}, j)
	})
}

func (s *JointSet) Handles() []JointHandle {
	hs := s.arena.Handles()
	out := make([]JointHandle, len(hs))
	for i, h := range hs {
		out[i] = JointHandle{h}
	}
	return out
}
