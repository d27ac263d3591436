package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/collision"
	"github.com/san-kum/rigidsim/internal/geom"
)

type contactKey struct {
	pair    collision.PairKey
	feature uint32
}

type cachedImpulse struct {
	normal, tangent float64
}

type contactPoint struct {
	id    uint32
	point mgl64.Vec2
	rA    mgl64.Vec2
	rB    mgl64.Vec2

	separation       float64
	relativeVelocity float64
	bias             float64

	normalMass     float64
	tangentMass    float64
	normalImpulse  float64
	tangentImpulse float64
}

type contactConstraint struct {
	a, b      int
	key       collision.PairKey
	colliderA ColliderHandle
	colliderB ColliderHandle
	bodyA     BodyHandle
	bodyB     BodyHandle

	manifold collision.Manifold
	localA   geom.Pose
	localB   geom.Pose
	radiusA  float64
	radiusB  float64

	normal      mgl64.Vec2
	friction    float64
	restitution float64

	points [collision.MaxManifoldPoints]contactPoint
	count  int

	diverged bool
}

func finiteVec(v mgl64.Vec2) bool {
	return !math.IsNaN(v[0]) && !math.IsNaN(v[1]) && !math.IsInf(v[0], 0) && !math.IsInf(v[1], 0)
}

func (cc *contactConstraint) evaluate(s *solverContext) collision.WorldManifold {
	pa := s.bodies[cc.a].pose().Mul(cc.localA)
	pb := s.bodies[cc.b].pose().Mul(cc.localB)
	return cc.manifold.Evaluate(pa, cc.radiusA, pb, cc.radiusB)
}

// prepare computes anchors and effective masses at the start-of-step poses.
// It returns false when the manifold geometry is not finite.
func (cc *contactConstraint) prepare(s *solverContext, cache map[contactKey]cachedImpulse) bool {
	wm := cc.evaluate(s)
	if !finiteVec(wm.Normal) {
		return false
	}
	for i := 0; i < wm.Count; i++ {
		if !finiteVec(wm.Points[i]) || math.IsNaN(wm.Separations[i]) {
			return false
		}
	}

	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	mA, iA := bA.invMass, bA.invInertia
	mB, iB := bB.invMass, bB.invInertia

	n := wm.Normal
	t := geom.CrossVS(n, 1)
	cc.normal = n
	cc.count = wm.Count

	for i := 0; i < wm.Count; i++ {
		p := &cc.points[i]
		*p = contactPoint{
			id:         cc.manifold.Points[i].ID.Key(),
			point:      wm.Points[i],
			separation: wm.Separations[i],
		}
		p.rA = p.point.Sub(bA.c)
		p.rB = p.point.Sub(bB.c)

		rnA, rnB := geom.Cross(p.rA, n), geom.Cross(p.rB, n)
		if k := mA + mB + iA*rnA*rnA + iB*rnB*rnB; k > 0 {
			p.normalMass = 1 / k
		}
		rtA, rtB := geom.Cross(p.rA, t), geom.Cross(p.rB, t)
		if k := mA + mB + iA*rtA*rtA + iB*rtB*rtB; k > 0 {
			p.tangentMass = 1 / k
		}

		// speculative: allow closing the gap within this step, no more
		if p.separation > 0 {
			p.bias = p.separation * s.invDt
		}
		p.relativeVelocity = n.Dot(bB.preVelocityAt(p.rB).Sub(bA.preVelocityAt(p.rA)))

		if s.params.WarmStarting {
			if c, ok := cache[contactKey{pair: cc.key, feature: p.id}]; ok {
				p.normalImpulse = c.normal
				p.tangentImpulse = c.tangent
			}
		}
	}
	return true
}

func (cc *contactConstraint) warmStart(s *solverContext) {
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	t := geom.CrossVS(cc.normal, 1)
	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		P := cc.normal.Mul(p.normalImpulse).Add(t.Mul(p.tangentImpulse))
		bA.applyImpulse(P.Mul(-1), p.rA)
		bB.applyImpulse(P, p.rB)
	}
}

func (cc *contactConstraint) who() string {
	return "contact " + cc.colliderA.String() + "/" + cc.colliderB.String()
}

func (cc *contactConstraint) solveVelocity(s *solverContext) {
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	n := cc.normal
	t := geom.CrossVS(n, 1)

	// friction first so the normal constraint has the last word
	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		dv := bB.velocityAt(p.rB).Sub(bA.velocityAt(p.rA))
		lambda := -p.tangentMass * dv.Dot(t)

		maxFriction := cc.friction * p.normalImpulse
		next := math.Max(-maxFriction, math.Min(p.tangentImpulse+lambda, maxFriction))
		lambda = next - p.tangentImpulse
		p.tangentImpulse = next

		P := t.Mul(lambda)
		bA.applyImpulse(P.Mul(-1), p.rA)
		bB.applyImpulse(P, p.rB)
	}

	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		dv := bB.velocityAt(p.rB).Sub(bA.velocityAt(p.rA))
		lambda := -p.normalMass * (dv.Dot(n) + p.bias)

		next := math.Max(p.normalImpulse+lambda, 0)
		next = s.clamp(next, &cc.diverged, cc.who)
		lambda = next - p.normalImpulse
		p.normalImpulse = next

		P := n.Mul(lambda)
		bA.applyImpulse(P.Mul(-1), p.rA)
		bB.applyImpulse(P, p.rB)
	}
}

// applyRestitution drives the separating speed of each point that was
// approaching faster than the threshold, and that carries load, to at least
// restitution times the approach speed.
func (cc *contactConstraint) applyRestitution(s *solverContext) {
	if cc.restitution == 0 {
		return
	}
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	n := cc.normal
	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		if p.relativeVelocity > -s.params.RestitutionThreshold || p.normalImpulse == 0 {
			continue
		}
		dv := bB.velocityAt(p.rB).Sub(bA.velocityAt(p.rA))
		lambda := -p.normalMass * (dv.Dot(n) + cc.restitution*p.relativeVelocity)

		next := math.Max(p.normalImpulse+lambda, 0)
		next = s.clamp(next, &cc.diverged, cc.who)
		lambda = next - p.normalImpulse
		p.normalImpulse = next

		P := n.Mul(lambda)
		bA.applyImpulse(P.Mul(-1), p.rA)
		bB.applyImpulse(P, p.rB)
	}
}

// solvePosition pushes penetrating bodies apart with non-linear Gauss-Seidel
// and returns the smallest separation seen.
func (cc *contactConstraint) solvePosition(s *solverContext) float64 {
	bA, bB := &s.bodies[cc.a], &s.bodies[cc.b]
	mA, iA := bA.invMass, bA.invInertia
	mB, iB := bB.invMass, bB.invInertia

	minSep := 0.0
	for i := 0; i < cc.count; i++ {
		wm := cc.evaluate(s)
		n := wm.Normal
		rA := wm.Points[i].Sub(bA.c)
		rB := wm.Points[i].Sub(bB.c)
		sep := wm.Separations[i]
		minSep = math.Min(minSep, sep)

		C := math.Max(-s.params.MaxLinearCorrection, math.Min(s.params.Baumgarte*(sep+s.params.LinearSlop), 0))
		rnA, rnB := geom.Cross(rA, n), geom.Cross(rB, n)
		k := mA + mB + iA*rnA*rnA + iB*rnB*rnB
		if k <= 0 || C == 0 {
			continue
		}
		P := n.Mul(-C / k)

		bA.c = bA.c.Sub(P.Mul(mA))
		bA.a -= iA * geom.Cross(rA, P)
		bB.c = bB.c.Add(P.Mul(mB))
		bB.a += iB * geom.Cross(rB, P)
	}
	return minSep
}

func (cc *contactConstraint) store(cache map[contactKey]cachedImpulse) {
	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		cache[contactKey{pair: cc.key, feature: p.id}] = cachedImpulse{normal: p.normalImpulse, tangent: p.tangentImpulse}
	}
}
