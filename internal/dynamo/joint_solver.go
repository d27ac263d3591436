package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// jointConstraint is the per-step solver view of a revolute joint.
type jointConstraint struct {
	handle JointHandle
	joint  *RevoluteJoint
	a, b   int

	rA, rB mgl64.Vec2
	K      mgl64.Mat2

	axialMass float64
	angle     float64

	motorActive bool
	motorMass   float64
	motorGamma  float64
	motorBias   float64
	motorSpeed  float64
	maxMotor    float64

	diverged bool
}

// jointAngle returns the wrapped relative angle of body B to body A.
func jointAngle(angleA, angleB, reference float64) float64 {
	return geom.WrapAngle(angleB - angleA - reference)
}

func pointMass(mA, iA, mB, iB float64, rA, rB mgl64.Vec2) mgl64.Mat2 {
	// column major
	k11 := mA + mB + rA[1]*rA[1]*iA + rB[1]*rB[1]*iB
	k12 := -rA[1]*rA[0]*iA - rB[1]*rB[0]*iB
	k22 := mA + mB + rA[0]*rA[0]*iA + rB[0]*rB[0]*iB
	return mgl64.Mat2{k11, k12, k12, k22}
}

func (jc *jointConstraint) who() string {
	return "joint " + jc.handle.String()
}

func (jc *jointConstraint) prepare(s *solverContext) {
	j := jc.joint
	bA, bB := &s.bodies[jc.a], &s.bodies[jc.b]
	mA, iA := bA.invMass, bA.invInertia
	mB, iB := bB.invMass, bB.invInertia

	jc.rA = geom.NewRot(bA.a).Apply(j.LocalAnchorA.Sub(bA.localCenter))
	jc.rB = geom.NewRot(bB.a).Apply(j.LocalAnchorB.Sub(bB.localCenter))
	jc.K = pointMass(mA, iA, mB, iB, jc.rA, jc.rB)

	jc.axialMass = 0
	if iA+iB > 0 {
		jc.axialMass = 1 / (iA + iB)
	}
	jc.angle = jointAngle(bA.a, bB.a, j.ReferenceAngle)

	jc.motorActive = false
	if m := j.Motor; m != nil && m.Mode != MotorNone && jc.axialMass > 0 {
		k, c := m.Stiffness, m.Damping
		if m.Mode == MotorVelocity {
			k = 0
		}
		if m.Model == AccelerationBased {
			k *= jc.axialMass
			c *= jc.axialMass
		}
		h := s.dt
		if g := h * (c + h*k); g > 0 {
			jc.motorActive = true
			jc.motorGamma = 1 / g
			jc.motorMass = 1 / (iA + iB + jc.motorGamma)

			jc.motorBias = 0
			if m.Mode == MotorPosition {
				C := geom.WrapAngle(jc.angle - m.TargetAngle)
				jc.motorBias = C * h * k * jc.motorGamma
			}
			jc.motorSpeed = m.TargetSpeed
			jc.maxMotor = m.MaxForce * h
		}
	}
	if !jc.motorActive {
		j.motorImpulse = 0
	}
	if j.Limits == nil {
		j.lowerImpulse, j.upperImpulse = 0, 0
	}
	if !s.params.WarmStarting {
		j.resetImpulses()
	}
}

func (jc *jointConstraint) warmStart(s *solverContext) {
	j := jc.joint
	bA, bB := &s.bodies[jc.a], &s.bodies[jc.b]
	axial := j.motorImpulse + j.lowerImpulse - j.upperImpulse

	bA.v = bA.v.Sub(j.impulse.Mul(bA.invMass))
	bA.w -= bA.invInertia * (geom.Cross(jc.rA, j.impulse) + axial)
	bB.v = bB.v.Add(j.impulse.Mul(bB.invMass))
	bB.w += bB.invInertia * (geom.Cross(jc.rB, j.impulse) + axial)
}

func (jc *jointConstraint) applyAngular(s *solverContext, lambda float64) {
	s.bodies[jc.a].w -= s.bodies[jc.a].invInertia * lambda
	s.bodies[jc.b].w += s.bodies[jc.b].invInertia * lambda
}

// solveVelocity solves the point lock, then the motor, then the limits, so
// the limits get the last word within each iteration.
func (jc *jointConstraint) solveVelocity(s *solverContext) {
	j := jc.joint
	bA, bB := &s.bodies[jc.a], &s.bodies[jc.b]

	cdot := bB.velocityAt(jc.rB).Sub(bA.velocityAt(jc.rA))
	impulse := geom.Solve22(jc.K, cdot.Mul(-1))
	j.impulse = j.impulse.Add(impulse)
	j.impulse[0] = s.clamp(j.impulse[0], &jc.diverged, jc.who)
	j.impulse[1] = s.clamp(j.impulse[1], &jc.diverged, jc.who)
	bA.applyImpulse(impulse.Mul(-1), jc.rA)
	bB.applyImpulse(impulse, jc.rB)

	if jc.motorActive {
		wdot := bB.w - bA.w - jc.motorSpeed
		lambda := -jc.motorMass * (wdot + jc.motorBias + jc.motorGamma*j.motorImpulse)
		old := j.motorImpulse
		j.motorImpulse = math.Max(-jc.maxMotor, math.Min(old+lambda, jc.maxMotor))
		j.motorImpulse = s.clamp(j.motorImpulse, &jc.diverged, jc.who)
		jc.applyAngular(s, j.motorImpulse-old)
	}

	if l := j.Limits; l != nil && jc.axialMass > 0 {
		// lower: speculative while above the bound, restoring once past it
		lambda := -jc.axialMass * (bB.w - bA.w + jc.limitBias(s, jc.angle-l.Lower))
		old := j.lowerImpulse
		j.lowerImpulse = s.clamp(math.Max(old+lambda, 0), &jc.diverged, jc.who)
		jc.applyAngular(s, j.lowerImpulse-old)

		lambda = -jc.axialMass * (bA.w - bB.w + jc.limitBias(s, l.Upper-jc.angle))
		old = j.upperImpulse
		j.upperImpulse = s.clamp(math.Max(old+lambda, 0), &jc.diverged, jc.who)
		jc.applyAngular(s, -(j.upperImpulse - old))
	}
}

// limitBias turns the distance C to a bound into a velocity bias. A violated
// bound (C < 0) is pushed back by the Baumgarte fraction of C each step.
func (jc *jointConstraint) limitBias(s *solverContext, C float64) float64 {
	if C < 0 {
		return s.params.Baumgarte * C * s.invDt
	}
	return C * s.invDt
}

// solvePosition corrects limit violation and anchor drift. Within AngularSlop
// of a bound the angle and the anchor are solved as one block, which keeps
// the angle on the bound. It returns the remaining linear error.
func (jc *jointConstraint) solvePosition(s *solverContext) float64 {
	j := jc.joint
	bA, bB := &s.bodies[jc.a], &s.bodies[jc.b]
	mA, iA := bA.invMass, bA.invInertia
	mB, iB := bB.invMass, bB.invInertia
	p := s.params

	angular, atLimit := 0.0, false
	if l := j.Limits; l != nil && jc.axialMass > 0 {
		angle := jointAngle(bA.a, bB.a, j.ReferenceAngle)
		switch {
		case math.Abs(l.Upper-l.Lower) < 2*p.AngularSlop:
			angular, atLimit = angle-l.Lower, true
		case angle >= l.Upper-p.AngularSlop:
			angular, atLimit = math.Max(angle-l.Upper, 0), true
		case angle <= l.Lower+p.AngularSlop:
			angular, atLimit = math.Min(angle-l.Lower, 0), true
		}
		angular = math.Max(-p.MaxAngularCorrection, math.Min(angular, p.MaxAngularCorrection))
	}

	rA := geom.NewRot(bA.a).Apply(j.LocalAnchorA.Sub(bA.localCenter))
	rB := geom.NewRot(bB.a).Apply(j.LocalAnchorB.Sub(bB.localCenter))
	C := bB.c.Add(rB).Sub(bA.c).Sub(rA)
	K := pointMass(mA, iA, mB, iB, rA, rB)

	var impulse mgl64.Vec2
	axial := 0.0
	if atLimit {
		k13 := -rA[1]*iA - rB[1]*iB
		k23 := rA[0]*iA + rB[0]*iB
		K3 := mgl64.Mat3{
			K[0], K[1], k13,
			K[2], K[3], k23,
			k13, k23, iA + iB,
		}
		x := geom.Solve33(K3, mgl64.Vec3{C[0], C[1], angular})
		impulse, axial = mgl64.Vec2{-x[0], -x[1]}, -x[2]
	} else {
		impulse = geom.Solve22(K, C).Mul(-1)
	}

	bA.c = bA.c.Sub(impulse.Mul(mA))
	bA.a -= iA * (geom.Cross(rA, impulse) + axial)
	bB.c = bB.c.Add(impulse.Mul(mB))
	bB.a += iB * (geom.Cross(rB, impulse) + axial)

	return C.Len()
}
