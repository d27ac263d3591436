package dynamo3d

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/collision"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/integrators"
)

type solverBody struct {
	v, w       mgl64.Vec3
	vPre, wPre mgl64.Vec3

	c           mgl64.Vec3
	q           mgl64.Quat
	localCenter mgl64.Vec3

	invMass float64
	invI    mgl64.Mat3 // world frame, fixed for the step
	moving  bool
}

func (b *solverBody) pose() Pose {
	return Pose{Translation: b.c.Sub(b.q.Rotate(b.localCenter)), Rotation: b.q}
}

func (b *solverBody) velocityAt(r mgl64.Vec3) mgl64.Vec3    { return b.v.Add(b.w.Cross(r)) }
func (b *solverBody) preVelocityAt(r mgl64.Vec3) mgl64.Vec3 { return b.vPre.Add(b.wPre.Cross(r)) }

func (b *solverBody) applyImpulse(p, r mgl64.Vec3) {
	b.v = b.v.Add(p.Mul(b.invMass))
	b.w = b.w.Add(b.invI.Mul3x1(r.Cross(p)))
}

// effectiveMass returns the inverse of the impulse response along d at rA/rB.
func effectiveMass(a, b *solverBody, rA, rB, d mgl64.Vec3) float64 {
	ra, rb := rA.Cross(d), rB.Cross(d)
	k := a.invMass + b.invMass + ra.Dot(a.invI.Mul3x1(ra)) + rb.Dot(b.invI.Mul3x1(rb))
	if k > 0 {
		return 1 / k
	}
	return 0
}

type solverContext struct {
	params dynamo.IntegrationParameters
	dt     float64
	invDt  float64
	integ  *integrators.Euler
	bodies []solverBody

	diagnostics []error
}

func (s *solverContext) clamp(v float64, reported *bool, who func() string) float64 {
	if math.Abs(v) <= s.params.MaxImpulse {
		return v
	}
	if !*reported {
		*reported = true
		s.diagnostics = append(s.diagnostics, &dynamo.EntityError{
			Entity:  who(),
			Wrapped: fmt.Errorf("%w: |%g| > %g", dynamo.ErrSolverDivergence, v, s.params.MaxImpulse),
		})
	}
	if math.IsNaN(v) {
		return 0
	}
	return math.Copysign(s.params.MaxImpulse, v)
}

// tangentBasis returns two unit vectors orthogonal to n and to each other.
func tangentBasis(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var t mgl64.Vec3
	if math.Abs(n[0]) >= 0.57735 {
		t = mgl64.Vec3{n[1], -n[0], 0}.Normalize()
	} else {
		t = mgl64.Vec3{0, n[2], -n[1]}.Normalize()
	}
	return t, n.Cross(t)
}

type contactKey struct {
	pair    collision.PairKey
	feature uint32
}

type cachedImpulse struct {
	normal  float64
	tangent [2]float64
}

type contactConstraint struct {
	a, b      int
	key       collision.PairKey
	colliderA ColliderHandle
	colliderB ColliderHandle
	bodyA     BodyHandle
	bodyB     BodyHandle
	shapeA    Shape
	shapeB    Shape
	localA    Pose
	localB    Pose

	normal     mgl64.Vec3
	tangents   [2]mgl64.Vec3
	point      mgl64.Vec3
	rA, rB     mgl64.Vec3
	separation float64
	feature    uint32

	friction         float64
	restitution      float64
	bias             float64
	relativeVelocity float64

	normalMass     float64
	tangentMass    [2]float64
	normalImpulse  float64
	tangentImpulse [2]float64

	diverged bool
}

func (cc *contactConstraint) who() string {
	return "contact " + cc.colliderA.String() + "/" + cc.colliderB.String()
}

func (cc *contactConstraint) prepare(s *solverContext, c contact, cache map[contactKey]cachedImpulse) bool {
	if !finite3(c.normal) || !finite3(c.point) || math.IsNaN(c.separation) {
		return false
	}
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	cc.normal = c.normal
	cc.tangents[0], cc.tangents[1] = tangentBasis(c.normal)
	cc.point = c.point
	cc.separation = c.separation
	cc.feature = c.feature
	cc.rA = c.point.Sub(bA.c)
	cc.rB = c.point.Sub(bB.c)

	cc.normalMass = effectiveMass(bA, bB, cc.rA, cc.rB, cc.normal)
	for i, t := range cc.tangents {
		cc.tangentMass[i] = effectiveMass(bA, bB, cc.rA, cc.rB, t)
	}
	if cc.separation > 0 {
		cc.bias = cc.separation * s.invDt
	}
	cc.relativeVelocity = cc.normal.Dot(bB.preVelocityAt(cc.rB).Sub(bA.preVelocityAt(cc.rA)))

	if s.params.WarmStarting {
		if ci, ok := cache[contactKey{pair: cc.key, feature: cc.feature}]; ok {
			cc.normalImpulse = ci.normal
			cc.tangentImpulse = ci.tangent
		}
	}
	return true
}

func (cc *contactConstraint) impulse(normal float64, tangent [2]float64) mgl64.Vec3 {
	return cc.normal.Mul(normal).Add(cc.tangents[0].Mul(tangent[0])).Add(cc.tangents[1].Mul(tangent[1]))
}

func (cc *contactConstraint) apply(s *solverContext, p mgl64.Vec3) {
	s.bodies[cc.a].applyImpulse(p.Mul(-1), cc.rA)
	s.bodies[cc.b].applyImpulse(p, cc.rB)
}

func (cc *contactConstraint) warmStart(s *solverContext) {
	cc.apply(s, cc.impulse(cc.normalImpulse, cc.tangentImpulse))
}

func (cc *contactConstraint) relativeVelocityNow(s *solverContext) mgl64.Vec3 {
	return s.bodies[cc.b].velocityAt(cc.rB).Sub(s.bodies[cc.a].velocityAt(cc.rA))
}

func (cc *contactConstraint) solveVelocity(s *solverContext) {
	// friction: both directions together, clamped to the friction disc
	dv := cc.relativeVelocityNow(s)
	old := cc.tangentImpulse
	next := [2]float64{
		old[0] - cc.tangentMass[0]*dv.Dot(cc.tangents[0]),
		old[1] - cc.tangentMass[1]*dv.Dot(cc.tangents[1]),
	}
	maxFriction := cc.friction * cc.normalImpulse
	if l := math.Hypot(next[0], next[1]); l > maxFriction {
		scale := 0.0
		if l > 0 {
			scale = maxFriction / l
		}
		next[0] *= scale
		next[1] *= scale
	}
	cc.tangentImpulse = next
	cc.apply(s, cc.impulse(0, [2]float64{next[0] - old[0], next[1] - old[1]}))

	dv = cc.relativeVelocityNow(s)
	lambda := -cc.normalMass * (dv.Dot(cc.normal) + cc.bias)
	n := s.clamp(math.Max(cc.normalImpulse+lambda, 0), &cc.diverged, cc.who)
	lambda = n - cc.normalImpulse
	cc.normalImpulse = n
	cc.apply(s, cc.normal.Mul(lambda))
}

func (cc *contactConstraint) applyRestitution(s *solverContext) {
	if cc.restitution == 0 || cc.relativeVelocity > -s.params.RestitutionThreshold || cc.normalImpulse == 0 {
		return
	}
	dv := cc.relativeVelocityNow(s)
	lambda := -cc.normalMass * (dv.Dot(cc.normal) + cc.restitution*cc.relativeVelocity)
	n := s.clamp(math.Max(cc.normalImpulse+lambda, 0), &cc.diverged, cc.who)
	lambda = n - cc.normalImpulse
	cc.normalImpulse = n
	cc.apply(s, cc.normal.Mul(lambda))
}

// solvePosition pushes penetrating bodies apart using the current poses.
// A point whose feature vanished under the new poses is skipped.
func (cc *contactConstraint) solvePosition(s *solverContext) {
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	m := collide(cc.shapeA, bA.pose().Mul(cc.localA), cc.shapeB, bB.pose().Mul(cc.localB), math.Inf(1))
	c, ok := m.match(cc.feature)
	if !ok {
		return
	}
	p := s.params
	C := math.Max(-p.MaxLinearCorrection, math.Min(p.Baumgarte*(c.separation+p.LinearSlop), 0))
	if C == 0 {
		return
	}
	rA, rB := c.point.Sub(bA.c), c.point.Sub(bB.c)
	k := effectiveMass(bA, bB, rA, rB, c.normal)
	P := c.normal.Mul(-k * C)

	if bA.invMass > 0 {
		bA.c = bA.c.Sub(P.Mul(bA.invMass))
		bA.q = s.integ.Orientation(bA.q, bA.invI.Mul3x1(rA.Cross(P)).Mul(-1), 1)
	}
	if bB.invMass > 0 {
		bB.c = bB.c.Add(P.Mul(bB.invMass))
		bB.q = s.integ.Orientation(bB.q, bB.invI.Mul3x1(rB.Cross(P)), 1)
	}
}

func (cc *contactConstraint) store(cache map[contactKey]cachedImpulse) {
	cache[contactKey{pair: cc.key, feature: cc.feature}] = cachedImpulse{normal: cc.normalImpulse, tangent: cc.tangentImpulse}
}
