package dynamo

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/collision"
)

// StepState is the phase of the step pipeline.
type StepState int

const (
	Idle StepState = iota
	DetectingContacts
	Solving
	Integrating
	Published
)

func (s StepState) String() string {
	switch s {
	case DetectingContacts:
		return "detecting_contacts"
	case Solving:
		return "solving"
	case Integrating:
		return "integrating"
	case Published:
		return "published"
	default:
		return "idle"
	}
}

// StepReport summarizes one published step.
type StepReport struct {
	Step     int
	Time     float64
	Dt       float64
	Pairs    int
	Contacts int
	Joints   int
	Sleeping int
	// Diagnostics collects per-entity problems that did not stop the step.
	Diagnostics []error
}

// Observer is notified after every published step.
type Observer interface {
	OnStep(w *World, r *StepReport)
}

type ContactPoint struct {
	Point          mgl64.Vec2
	Separation     float64
	NormalImpulse  float64
	TangentImpulse float64
	FeatureID      uint32
}

// ContactManifold is a published contact between two colliders. Normal
// points from A to B.
type ContactManifold struct {
	ColliderA, ColliderB ColliderHandle
	BodyA, BodyB         BodyHandle
	Normal               mgl64.Vec2
	Points               []ContactPoint
}

// StepDefault steps with the configured dt and gravity.
func (w *World) StepDefault() (*StepReport, error) {
	return w.Step(w.params.Dt, w.gravity)
}

// Step advances the world by dt. Hooks run first and their queued commands
// are applied once all of them return. The graph is validated before
// anything is mutated: a collider or joint that references a removed body
// abandons the step with ErrStaleReference and leaves the published state
// untouched.
func (w *World) Step(dt float64, gravity mgl64.Vec2) (*StepReport, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, w.abandon(fmt.Errorf("%w: dt=%v", ErrInvalidParameters, dt))
	}
	if !finiteVec(gravity) {
		return nil, w.abandon(fmt.Errorf("%w: gravity=%v", ErrInvalidParameters, gravity))
	}
	defer func() { w.state = Idle }()

	m := &BodyMutator{bodies: w.bodies}
	for _, hook := range w.hooks {
		hook(w.time, m)
	}

	if err := w.validate(); err != nil {
		return nil, w.abandon(err)
	}

	report := &StepReport{Step: w.steps + 1, Dt: dt}
	report.Diagnostics = append(report.Diagnostics, m.apply()...)

	w.state = DetectingContacts
	bi := w.indexBodies()
	placements, err := w.placeColliders(bi, dt, gravity.Len())
	if err != nil {
		return nil, w.abandon(err)
	}
	pairs := w.broadPhase(bi, placements)
	manifolds, err := w.narrowPhase(placements, pairs)
	if err != nil {
		return nil, w.abandon(err)
	}
	w.wakeTouching(bi, placements, pairs, manifolds)
	report.Pairs = len(pairs)

	w.state = Solving
	s := &solverContext{params: w.params, dt: dt, invDt: 1 / dt}
	w.gatherBodies(s, bi, dt, gravity)

	contacts := w.buildContacts(s, bi, placements, pairs, manifolds)
	joints := w.buildJoints(s, bi)
	w.solveVelocities(s, contacts, joints)

	w.state = Integrating
	w.integratePositions(s, bi, dt)
	for i := 0; i < w.params.PositionIterations; i++ {
		for k := range joints {
			joints[k].solvePosition(s)
		}
		for k := range contacts {
			contacts[k].solvePosition(s)
		}
	}

	w.commit(s, bi, dt, report)
	w.publishContacts(contacts)
	for _, p := range placements {
		p.collider.pose = p.pose
		p.collider.aabb = p.collider.shape.ComputeAABB(p.pose)
	}

	w.time += dt
	w.steps++
	w.state = Published

	report.Time = w.time
	report.Contacts = len(w.contacts)
	report.Joints = len(joints)
	report.Diagnostics = append(report.Diagnostics, s.diagnostics...)
	for _, d := range report.Diagnostics {
		if errors.Is(d, ErrSolverDivergence) {
			w.log.Info("solver diagnostic", "step", report.Step, "error", d.Error())
		} else {
			w.log.V(1).Info("step diagnostic", "step", report.Step, "error", d.Error())
		}
	}
	w.log.V(1).Info("step", "step", report.Step, "time", report.Time,
		"pairs", report.Pairs, "contacts", report.Contacts, "sleeping", report.Sleeping)

	for _, o := range w.observers {
		o.OnStep(w, report)
	}
	return report, nil
}

func (w *World) abandon(err error) error {
	se := &StepError{Step: w.steps + 1, Time: w.time, Wrapped: err}
	w.state = Idle
	w.log.Error(se, "step abandoned")
	return se
}

// validate checks every cross reference and body state without mutating anything.
func (w *World) validate() error {
	var err error
	w.colliders.Iter(func(h ColliderHandle, c *Collider) bool {
		if !w.bodies.Contains(c.parent) {
			err = entityErr("collider", h, fmt.Errorf("%w: parent body %v: %w", ErrStaleReference, c.parent, ErrInvalidHandle))
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	w.joints.Iter(func(h JointHandle, j *RevoluteJoint) bool {
		for _, bh := range []BodyHandle{j.BodyA, j.BodyB} {
			if !w.bodies.Contains(bh) {
				err = entityErr("joint", h, fmt.Errorf("%w: body %v: %w", ErrStaleReference, bh, ErrInvalidHandle))
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	w.bodies.Iter(func(h BodyHandle, b *RigidBody) bool {
		if !finitePose(b.pose) || !finiteVelocity(b.vel) {
			err = entityErr("body", h, ErrNonFiniteState)
			return false
		}
		return true
	})
	return err
}

// gatherBodies builds solver bodies and applies external forces, gravity
// and damping to awake dynamic bodies.
func (w *World) gatherBodies(s *solverContext, bi *bodyIndex, dt float64, gravity mgl64.Vec2) {
	s.bodies = make([]solverBody, len(bi.bodies))
	for i, b := range bi.bodies {
		sb := &s.bodies[i]
		sb.handle = bi.handles[i]
		sb.localCenter = b.mass.LocalCenter
		sb.c = b.WorldCenter()
		sb.a = b.pose.Rotation

		switch {
		case b.bodyType == Dynamic && !b.sleeping:
			sb.moving = true
			sb.vPre, sb.wPre = b.vel.Linear, b.vel.Angular
			v := b.vel
			if !b.nonPhysical {
				sb.invMass, sb.invInertia = b.invMass, b.invInertia
				acc := gravity.Mul(b.gravityScale).Add(b.force.Mul(b.invMass))
				v = w.integ.Accelerate(v, acc, b.torque*b.invInertia, b.linearDamping, b.angularDamping, dt)
			}
			sb.v, sb.w = v.Linear, v.Angular
		case b.bodyType == KinematicVelocityBased:
			sb.moving = true
			sb.v, sb.w = b.vel.Linear, b.vel.Angular
			sb.vPre, sb.wPre = sb.v, sb.w
		case b.bodyType == KinematicPositionBased && b.hasNextPose:
			sb.moving = true
			v := w.integ.ImpliedVelocity(b.pose, b.nextPose, b.mass.LocalCenter, dt)
			sb.v, sb.w = v.Linear, v.Angular
			sb.vPre, sb.wPre = sb.v, sb.w
		}
	}
}

func (w *World) buildContacts(s *solverContext, bi *bodyIndex, placements []placement, pairs []collision.Pair, manifolds []collision.Manifold) []contactConstraint {
	contacts := make([]contactConstraint, 0, len(pairs))
	for i, m := range manifolds {
		if m.Count == 0 {
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
			manifold:    m,
			localA:      pa.collider.localPose,
			localB:      pb.collider.localPose,
			radiusA:     collision.RoundingRadius(pa.collider.shape),
			radiusB:     collision.RoundingRadius(pb.collider.shape),
			friction:    EffectiveRule(ma.FrictionRule, mb.FrictionRule, w.params.FrictionRule).Combine(ma.Friction, mb.Friction),
			restitution: EffectiveRule(ma.RestitutionRule, mb.RestitutionRule, w.params.RestitutionRule).Combine(ma.Restitution, mb.Restitution),
		}
		if !cc.prepare(s, w.cache) {
			s.diagnostics = append(s.diagnostics, &EntityError{Entity: cc.who(), Wrapped: ErrMalformedContact})
			continue
		}
		contacts = append(contacts, cc)
	}
	return contacts
}

func (w *World) buildJoints(s *solverContext, bi *bodyIndex) []jointConstraint {
	joints := make([]jointConstraint, 0, w.joints.Len())
	w.joints.Iter(func(h JointHandle, j *RevoluteJoint) bool {
		a, b := bi.index[j.BodyA], bi.index[j.BodyB]
		if !s.bodies[a].moving && !s.bodies[b].moving {
			return true
		}
		jc := jointConstraint{handle: h, joint: j, a: a, b: b}
		jc.prepare(s)
		joints = append(joints, jc)
		return true
	})
	return joints
}

func (w *World) solveVelocities(s *solverContext, contacts []contactConstraint, joints []jointConstraint) {
	if w.params.WarmStarting {
		for k := range joints {
			joints[k].warmStart(s)
		}
		for k := range contacts {
			contacts[k].warmStart(s)
		}
	}
	for it := 0; it < w.params.VelocityIterations; it++ {
		for k := range joints {
			joints[k].solveVelocity(s)
		}
		for k := range contacts {
			contacts[k].solveVelocity(s)
		}
	}
	for k := range contacts {
		contacts[k].applyRestitution(s)
	}

	// rebuilding the cache drops pairs that are no longer in contact
	cache := make(map[contactKey]cachedImpulse, len(contacts)*2)
	for k := range contacts {
		contacts[k].store(cache)
	}
	w.cache = cache
}

func (w *World) integratePositions(s *solverContext, bi *bodyIndex, dt float64) {
	for i := range s.bodies {
		sb := &s.bodies[i]
		if !sb.moving {
			continue
		}
		b := bi.bodies[i]
		if b.bodyType == KinematicPositionBased {
			sb.c = b.nextPose.Apply(b.mass.LocalCenter)
			sb.a = b.nextPose.Rotation
			continue
		}
		next := w.integ.Advance(sb.pose(), sb.localCenter, Velocity{Linear: sb.v, Angular: sb.w}, dt)
		sb.c = next.Apply(sb.localCenter)
		sb.a = next.Rotation
	}
}

// commit writes solver results back to the bodies and updates sleep state.
func (w *World) commit(s *solverContext, bi *bodyIndex, dt float64, report *StepReport) {
	p := w.params
	for i, b := range bi.bodies {
		sb := &s.bodies[i]
		switch b.bodyType {
		case Dynamic:
			if sb.moving {
				b.pose = sb.pose()
				b.vel = Velocity{Linear: sb.v, Angular: sb.w}
				if b.canSleep {
					restless := b.vel.Linear.LenSqr() > p.LinearSleepTolerance*p.LinearSleepTolerance ||
						b.vel.Angular*b.vel.Angular > p.AngularSleepTolerance*p.AngularSleepTolerance
					if restless {
						b.sleepTimer = 0
					} else {
						b.sleepTimer += dt
					}
					if b.sleepTimer >= p.TimeToSleep && p.TimeToSleep > 0 {
						b.Sleep()
					}
				}
			}
			if b.sleeping {
				report.Sleeping++
			}
		case KinematicVelocityBased:
			b.pose = sb.pose()
		case KinematicPositionBased:
			if b.hasNextPose {
				b.pose = b.nextPose
				b.hasNextPose = false
				b.vel = Velocity{Linear: sb.v, Angular: sb.w}
			} else {
				b.vel = Velocity{}
			}
		}
		b.clearForces()
	}
}

func (w *World) publishContacts(contacts []contactConstraint) {
	out := make([]ContactManifold, 0, len(contacts))
	for k := range contacts {
		cc := &contacts[k]
		cm := ContactManifold{
			ColliderA: cc.colliderA,
			ColliderB: cc.colliderB,
			BodyA:     cc.bodyA,
			BodyB:     cc.bodyB,
			Normal:    cc.normal,
			Points:    make([]ContactPoint, cc.count),
		}
		for i := 0; i < cc.count; i++ {
			p := &cc.points[i]
			cm.Points[i] = ContactPoint{
				Point:          p.point,
				Separation:     p.separation,
				NormalImpulse:  p.normalImpulse,
				TangentImpulse: p.tangentImpulse,
				FeatureID:      p.id,
			}
		}
		out = append(out, cm)
	}
	w.contacts = out
}
