package dynamo

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// solverBody is the per-step working copy of a body. Bodies that the solver
// may not move (fixed, kinematic, sleeping, non-physical) have zero inverse
// mass; kinematic bodies still carry their velocity.
type solverBody struct {
	handle BodyHandle

	v mgl64.Vec2
	w float64

	// velocity before external forces, used for restitution
	vPre mgl64.Vec2
	wPre float64

	// centre of mass and angle, advanced by integration and position correction
	c           mgl64.Vec2
	a           float64
	localCenter mgl64.Vec2

	invMass    float64
	invInertia float64
	moving     bool
}

func (b *solverBody) pose() geom.Pose {
	rot := geom.NewRot(b.a)
	return geom.Pose{Translation: b.c.Sub(rot.Apply(b.localCenter)), Rotation: b.a}
}

// velocityAt returns the velocity of a point at offset r from the centre of mass.
func (b *solverBody) velocityAt(r mgl64.Vec2) mgl64.Vec2 {
	return b.v.Add(geom.CrossSV(b.w, r))
}

func (b *solverBody) preVelocityAt(r mgl64.Vec2) mgl64.Vec2 {
	return b.vPre.Add(geom.CrossSV(b.wPre, r))
}

func (b *solverBody) applyImpulse(p, r mgl64.Vec2) {
	b.v = b.v.Add(p.Mul(b.invMass))
	b.w += b.invInertia * geom.Cross(r, p)
}

// solverContext holds what every constraint needs during one step.
type solverContext struct {
	params IntegrationParameters
	dt     float64
	invDt  float64
	bodies []solverBody

	diagnostics []error
}

// clamp bounds an accumulated impulse by MaxImpulse. The first violation of a
// constraint in a step is reported.
func (s *solverContext) clamp(v float64, reported *bool, who func() string) float64 {
	if math.Abs(v) <= s.params.MaxImpulse {
		return v
	}
	if !*reported {
		*reported = true
		s.diagnostics = append(s.diagnostics, &EntityError{
			Entity:  who(),
			Wrapped: fmt.Errorf("%w: |%g| > %g", ErrSolverDivergence, v, s.params.MaxImpulse),
		})
	}
	if math.IsNaN(v) {
		return 0
	}
	return math.Copysign(s.params.MaxImpulse, v)
}
