package dynamo3d

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/arena"
	"github.com/san-kum/rigidsim/internal/collision"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/geom"
	"golang.org/x/sync/errgroup"
)

// ContactManifold is one published contact point. Normal points from A to B.
// Cuboid pairs publish up to four points sharing the same colliders.
type ContactManifold struct {
	ColliderA, ColliderB ColliderHandle
	BodyA, BodyB         BodyHandle
	Normal               mgl64.Vec3
	Point                mgl64.Vec3
	Separation           float64
	NormalImpulse        float64
	TangentImpulse       [2]float64
}

type placement struct {
	handle   ColliderHandle
	collider *Collider
	body     int
	pose     Pose
	aabb     AABB
	motion   float64
}

type bodyIndex struct {
	handles []BodyHandle
	bodies  []*Body
	index   map[BodyHandle]int
}

func (w *World) StepDefault() (*dynamo.StepReport, error) {
	return w.Step(w.params.Dt, w.gravity)
}

// Step advances the world by dt. A collider whose parent was removed
// abandons the step before anything is mutated.
func (w *World) Step(dt float64, gravity mgl64.Vec3) (*dynamo.StepReport, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, w.abandon(fmt.Errorf("%w: dt=%v", dynamo.ErrInvalidParameters, dt))
	}
	if !finite3(gravity) {
		return nil, w.abandon(fmt.Errorf("%w: gravity=%v", dynamo.ErrInvalidParameters, gravity))
	}
	defer func() { w.state = dynamo.Idle }()

	if err := w.validate(); err != nil {
		return nil, w.abandon(err)
	}
	report := &dynamo.StepReport{Step: w.steps + 1, Dt: dt}

	w.state = dynamo.DetectingContacts
	bi := w.indexBodies()
	placements := w.placeColliders(bi, dt, gravity.Len())
	pairs := w.broadPhase(bi, placements)
	contacts, found := w.narrowPhase(placements, pairs)
	w.wakeTouching(bi, placements, pairs, found)
	report.Pairs = len(pairs)

	w.state = dynamo.Solving
	s := &solverContext{params: w.params, dt: dt, invDt: 1 / dt, integ: w.integ}
	w.gatherBodies(s, bi, dt, gravity)
	constraints := w.buildContacts(s, bi, placements, pairs, contacts, found)
	w.solveVelocities(s, constraints)

	w.state = dynamo.Integrating
	for i := range s.bodies {
		sb := &s.bodies[i]
		if !sb.moving {
			continue
		}
		if b := bi.bodies[i]; b.bodyType == dynamo.KinematicPositionBased {
			sb.c = b.nextPose.Apply(b.localCenter)
			sb.q = b.nextPose.Rotation
			continue
		}
		sb.c = w.integ.Position3(sb.c, sb.v, dt)
		sb.q = w.integ.Orientation(sb.q, sb.w, dt)
	}
	for i := 0; i < w.params.PositionIterations; i++ {
		for k := range constraints {
			constraints[k].solvePosition(s)
		}
	}

	w.commit(s, bi, dt, report)
	w.publish(constraints)
	for _, p := range placements {
		p.collider.pose = p.pose
		p.collider.aabb = p.collider.shape.computeAABB(p.pose)
	}

	w.time += dt
	w.steps++
	w.state = dynamo.Published
	report.Time = w.time
	report.Contacts = len(w.contacts)
	report.Diagnostics = append(report.Diagnostics, s.diagnostics...)
	for _, d := range report.Diagnostics {
		if errors.Is(d, dynamo.ErrSolverDivergence) {
			w.log.Info("solver diagnostic", "step", report.Step, "error", d.Error())
		}
	}
	w.log.V(1).Info("step", "step", report.Step, "time", report.Time, "contacts", report.Contacts)

	for _, o := range w.observers {
		o.OnStep(w, report)
	}
	return report, nil
}

func (w *World) abandon(err error) error {
	se := &dynamo.StepError{Step: w.steps + 1, Time: w.time, Wrapped: err}
	w.state = dynamo.Idle
	w.log.Error(se, "step abandoned")
	return se
}

func (w *World) validate() error {
	var err error
	w.colliders.Iter(func(h arena.Handle, c *Collider) bool {
		if !w.bodies.Contains(c.parent.Handle) {
			err = &dynamo.EntityError{
				Entity:  "collider " + h.String(),
				Wrapped: fmt.Errorf("%w: parent body %v: %w", dynamo.ErrStaleReference, c.parent, dynamo.ErrInvalidHandle),
			}
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	w.bodies.Iter(func(h arena.Handle, b *Body) bool {
		if !b.pose.finite() || !finite3(b.vel.Linear) || !finite3(b.vel.Angular) {
			err = bodyErr(BodyHandle{h}, dynamo.ErrNonFiniteState)
			return false
		}
		return true
	})
	return err
}

func (w *World) indexBodies() *bodyIndex {
	bi := &bodyIndex{index: make(map[BodyHandle]int, w.bodies.Len())}
	w.bodies.Iter(func(h arena.Handle, b *Body) bool {
		bi.index[BodyHandle{h}] = len(bi.handles)
		bi.handles = append(bi.handles, BodyHandle{h})
		bi.bodies = append(bi.bodies, b)
		return true
	})
	return bi
}

func (w *World) speedBound(b *Body, dt, gravity float64) (float64, float64) {
	switch {
	case b.bodyType == dynamo.Fixed, b.sleeping:
		return 0, 0
	case b.bodyType == dynamo.KinematicPositionBased:
		if !b.hasNextPose {
			return 0, 0
		}
		v := w.integ.ImpliedVelocity3(b.WorldCenter(), b.nextPose.Apply(b.localCenter), b.pose.Rotation, b.nextPose.Rotation, dt)
		return v.Linear.Len(), v.Angular.Len()
	}
	lin, ang := b.vel.Linear.Len(), b.vel.Angular.Len()
	if b.bodyType == dynamo.Dynamic && !b.nonPhysical {
		lin += (gravity*math.Abs(b.gravityScale) + b.force.Len()*b.invMass) * dt
		ang += b.worldInvInertia(b.pose.Rotation).Mul3x1(b.torque).Len() * dt
	}
	return lin, ang
}

func (w *World) placeColliders(bi *bodyIndex, dt, gravity float64) []placement {
	placements := make([]placement, 0, w.colliders.Len())
	w.colliders.Iter(func(h arena.Handle, c *Collider) bool {
		placements = append(placements, placement{handle: ColliderHandle{h}, collider: c, body: bi.index[c.parent]})
		return true
	})
	half := w.params.PredictionDistance / 2
	for i := range placements {
		p := &placements[i]
		b := bi.bodies[p.body]
		lin, ang := w.speedBound(b, dt, gravity)
		p.pose = b.pose.Mul(p.collider.localPose)
		reach := p.pose.Translation.Sub(b.WorldCenter()).Len() + p.collider.shape.reach()
		p.motion = (lin + ang*reach) * dt
		p.aabb = p.collider.shape.computeAABB(p.pose).Expand(p.motion + half)
	}
	return placements
}

// broadPhase sweeps the xy projection of the AABBs and filters on z.
func (w *World) broadPhase(bi *bodyIndex, placements []placement) []collision.Pair {
	proxies := make([]collision.Proxy, len(placements))
	for i, p := range placements {
		proxies[i] = collision.Proxy{
			ID:  i,
			Key: p.handle.Key(),
			AABB: geom.AABB{
				Min: mgl64.Vec2{p.aabb.Min[0], p.aabb.Min[1]},
				Max: mgl64.Vec2{p.aabb.Max[0], p.aabb.Max[1]},
			},
		}
	}
	active := func(b *Body) bool {
		return (b.bodyType == dynamo.Dynamic && !b.sleeping) || b.bodyType.IsKinematic()
	}
	return collision.SweepAndPrune(proxies, func(a, b int) bool {
		pa, pb := &placements[a], &placements[b]
		if pa.body == pb.body || !pa.aabb.Overlaps(pb.aabb) {
			return false
		}
		ba, bb := bi.bodies[pa.body], bi.bodies[pb.body]
		if ba.bodyType != dynamo.Dynamic && bb.bodyType != dynamo.Dynamic {
			return false
		}
		return active(ba) || active(bb)
	})
}

// narrowPhase runs the pair tests on a bounded worker pool. Each pair
// writes only its own slot.
func (w *World) narrowPhase(placements []placement, pairs []collision.Pair) ([]manifold, []bool) {
	contacts := make([]manifold, len(pairs))
	found := make([]bool, len(pairs))
	run := func(start, end int) {
		for i := start; i < end; i++ {
			pa, pb := &placements[pairs[i].A], &placements[pairs[i].B]
			margin := w.params.PredictionDistance + pa.motion + pb.motion
			contacts[i] = collide(pa.collider.shape, pa.pose, pb.collider.shape, pb.pose, margin)
			found[i] = contacts[i].count > 0
		}
	}

	workers := w.workers()
	const minChunk = 32
	if workers <= 1 || len(pairs) <= minChunk {
		run(0, len(pairs))
		return contacts, found
	}
	size := max((len(pairs)+workers-1)/workers, minChunk)
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		g.Go(func() error {
			run(start, end)
			return nil
		})
	}
	_ = g.Wait()
	return contacts, found
}

func (w *World) wakeTouching(bi *bodyIndex, placements []placement, pairs []collision.Pair, found []bool) {
	waker := func(b *Body) bool {
		if b.bodyType == dynamo.Dynamic {
			return !b.sleeping
		}
		return (b.bodyType == dynamo.KinematicVelocityBased && (b.vel.Linear.LenSqr() > 0 || b.vel.Angular.LenSqr() > 0)) ||
			(b.bodyType == dynamo.KinematicPositionBased && b.hasNextPose)
	}
	for changed := true; changed; {
		changed = false
		for i, ok := range found {
			if !ok {
				continue
			}
			a, b := bi.bodies[placements[pairs[i].A].body], bi.bodies[placements[pairs[i].B].body]
			if a.sleeping && waker(b) {
				a.WakeUp()
				changed = true
			}
			if b.sleeping && waker(a) {
				b.WakeUp()
				changed = true
			}
		}
	}
}

func (w *World) gatherBodies(s *solverContext, bi *bodyIndex, dt float64, gravity mgl64.Vec3) {
	s.bodies = make([]solverBody, len(bi.bodies))
	for i, b := range bi.bodies {
		sb := &s.bodies[i]
		sb.c = b.WorldCenter()
		sb.q = b.pose.Rotation
		sb.localCenter = b.localCenter

		switch {
		case b.bodyType == dynamo.Dynamic && !b.sleeping:
			sb.moving = true
			sb.vPre, sb.wPre = b.vel.Linear, b.vel.Angular
			v := b.vel
			if !b.nonPhysical {
				sb.invMass = b.invMass
				sb.invI = b.worldInvInertia(b.pose.Rotation)
				acc := gravity.Mul(b.gravityScale).Add(b.force.Mul(b.invMass))
				v = w.integ.Accelerate3(v, acc, sb.invI.Mul3x1(b.torque), b.linearDamping, b.angularDamping, dt)
			}
			sb.v, sb.w = v.Linear, v.Angular
		case b.bodyType == dynamo.KinematicVelocityBased:
			sb.moving = true
			sb.v, sb.w = b.vel.Linear, b.vel.Angular
			sb.vPre, sb.wPre = sb.v, sb.w
		case b.bodyType == dynamo.KinematicPositionBased && b.hasNextPose:
			sb.moving = true
			v := w.integ.ImpliedVelocity3(sb.c, b.nextPose.Apply(b.localCenter), b.pose.Rotation, b.nextPose.Rotation, dt)
			sb.v, sb.w = v.Linear, v.Angular
			sb.vPre, sb.wPre = sb.v, sb.w
		}
	}
}

func (w *World) buildContacts(s *solverContext, bi *bodyIndex, placements []placement, pairs []collision.Pair, contacts []manifold, found []bool) []contactConstraint {
	out := make([]contactConstraint, 0, len(pairs))
	for i, ok := range found {
		if !ok {
			continue
		}
		pa, pb := &placements[pairs[i].A], &placements[pairs[i].B]
		ma, mb := pa.collider.material, pb.collider.material
		cc := contactConstraint{
			a:           pa.body,
			b:           pb.body,
			key:         pairs[i].Key,
			colliderA:   pa.handle,
			colliderB:   pb.handle,
			bodyA:       bi.handles[pa.body],
			bodyB:       bi.handles[pb.body],
			shapeA:      pa.collider.shape,
			shapeB:      pb.collider.shape,
			localA:      pa.collider.localPose,
			localB:      pb.collider.localPose,
			friction:    dynamo.EffectiveRule(ma.FrictionRule, mb.FrictionRule, w.params.FrictionRule).Combine(ma.Friction, mb.Friction),
			restitution: dynamo.EffectiveRule(ma.RestitutionRule, mb.RestitutionRule, w.params.RestitutionRule).Combine(ma.Restitution, mb.Restitution),
		}
		m := &contacts[i]
		for _, c := range m.points[:m.count] {
			pc := cc
			if !pc.prepare(s, c, w.cache) {
				s.diagnostics = append(s.diagnostics, &dynamo.EntityError{Entity: pc.who(), Wrapped: dynamo.ErrMalformedContact})
				continue
			}
			out = append(out, pc)
		}
	}
	return out
}

func (w *World) solveVelocities(s *solverContext, cs []contactConstraint) {
	if w.params.WarmStarting {
		for k := range cs {
			cs[k].warmStart(s)
		}
	}
	for it := 0; it < w.params.VelocityIterations; it++ {
		for k := range cs {
			cs[k].solveVelocity(s)
		}
	}
	for k := range cs {
		cs[k].applyRestitution(s)
	}
	cache := make(map[contactKey]cachedImpulse, len(cs))
	for k := range cs {
		cs[k].store(cache)
	}
	w.cache = cache
}

func (w *World) commit(s *solverContext, bi *bodyIndex, dt float64, report *dynamo.StepReport) {
	p := w.params
	for i, b := range bi.bodies {
		sb := &s.bodies[i]
		switch b.bodyType {
		case dynamo.Dynamic:
			if sb.moving {
				b.pose = sb.pose()
				b.vel = Velocity{Linear: sb.v, Angular: sb.w}
				if b.canSleep {
					restless := b.vel.Linear.LenSqr() > p.LinearSleepTolerance*p.LinearSleepTolerance ||
						b.vel.Angular.LenSqr() > p.AngularSleepTolerance*p.AngularSleepTolerance
					if restless {
						b.sleepTimer = 0
					} else {
						b.sleepTimer += dt
					}
					if p.TimeToSleep > 0 && b.sleepTimer >= p.TimeToSleep {
						b.Sleep()
					}
				}
			}
			if b.sleeping {
				report.Sleeping++
			}
		case dynamo.KinematicVelocityBased:
			b.pose = sb.pose()
		case dynamo.KinematicPositionBased:
			if b.hasNextPose {
				b.pose = b.nextPose
				b.hasNextPose = false
				b.vel = Velocity{Linear: sb.v, Angular: sb.w}
			} else {
				b.vel = Velocity{}
			}
		}
		b.force, b.torque = mgl64.Vec3{}, mgl64.Vec3{}
	}
}

func (w *World) publish(cs []contactConstraint) {
	out := make([]ContactManifold, len(cs))
	for k := range cs {
		cc := &cs[k]
		out[k] = ContactManifold{
			ColliderA:      cc.colliderA,
			ColliderB:      cc.colliderB,
			BodyA:          cc.bodyA,
			BodyB:          cc.bodyB,
			Normal:         cc.normal,
			Point:          cc.point,
			Separation:     cc.separation,
			NormalImpulse:  cc.normalImpulse,
			TangentImpulse: cc.tangentImpulse,
		}
	}
	w.contacts = out
}
