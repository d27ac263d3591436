package dynamo

import (
	"fmt"
	"math"

	"github.com/san-kum/rigidsim/internal/collision"
	"github.com/san-kum/rigidsim/internal/geom"
)

// placement is a collider positioned for the current step.
type placement struct {
	handle   ColliderHandle
	collider *Collider
	body     int
	pose     geom.Pose
	aabb     geom.AABB
	// motion bounds how far any point of the collider can travel this step
	motion float64
}

// bodyIndex maps live bodies to dense indices in slot order.
type bodyIndex struct {
	handles []BodyHandle
	bodies  []*RigidBody
	index   map[BodyHandle]int
}

func (w *World) indexBodies() *bodyIndex {
	bi := &bodyIndex{
		handles: make([]BodyHandle, 0, w.bodies.Len()),
		bodies:  make([]*RigidBody, 0, w.bodies.Len()),
		index:   make(map[BodyHandle]int, w.bodies.Len()),
	}
	w.bodies.Iter(func(h BodyHandle, b *RigidBody) bool {
		bi.index[h] = len(bi.handles)
		bi.handles = append(bi.handles, h)
		bi.bodies = append(bi.bodies, b)
		return true
	})
	return bi
}

func isDynamicAwake(b *RigidBody) bool {
	return b.bodyType == Dynamic && !b.sleeping
}

// movingKinematic reports a kinematic body that will move this step.
func movingKinematic(b *RigidBody) bool {
	switch b.bodyType {
	case KinematicVelocityBased:
		return b.vel.Linear.LenSqr() > 0 || b.vel.Angular != 0
	case KinematicPositionBased:
		return b.hasNextPose
	}
	return false
}

// speedBound returns upper bounds of the linear and angular speed of b
// during a step of length dt.
func (w *World) speedBound(b *RigidBody, dt float64, gravity float64) (float64, float64) {
	switch {
	case b.bodyType == Fixed, b.sleeping:
		return 0, 0
	case b.bodyType == KinematicPositionBased:
		if !b.hasNextPose {
			return 0, 0
		}
		v := w.integ.ImpliedVelocity(b.pose, b.nextPose, b.mass.LocalCenter, dt)
		return v.Linear.Len(), math.Abs(v.Angular)
	}
	lin := b.vel.Linear.Len()
	ang := math.Abs(b.vel.Angular)
	if b.bodyType == Dynamic && !b.nonPhysical {
		lin += (gravity*math.Abs(b.gravityScale) + b.force.Len()*b.invMass) * dt
		ang += math.Abs(b.torque) * b.invInertia * dt
	}
	return lin, ang
}

func shapeRadius(s geom.Shape) float64 {
	if s.Kind == geom.ShapeBall {
		return s.Radius
	}
	return s.HalfExtents.Len()
}

// placeColliders computes world poses and fattened AABBs of every collider.
func (w *World) placeColliders(bi *bodyIndex, dt, gravity float64) ([]placement, error) {
	placements := make([]placement, 0, w.colliders.Len())
	w.colliders.Iter(func(h ColliderHandle, c *Collider) bool {
		placements = append(placements, placement{handle: h, collider: c, body: bi.index[c.parent]})
		return true
	})

	lin := make([]float64, len(bi.bodies))
	ang := make([]float64, len(bi.bodies))
	for i, b := range bi.bodies {
		lin[i], ang[i] = w.speedBound(b, dt, gravity)
	}

	half := w.params.PredictionDistance / 2
	err := parallelFor(len(placements), 64, w.params.workers(), func(start, end int) error {
		for i := start; i < end; i++ {
			p := &placements[i]
			b := bi.bodies[p.body]
			p.pose = b.pose.Mul(p.collider.localPose)
			if !finitePose(p.pose) {
				return entityErr("collider", p.handle, fmt.Errorf("%w: world pose", ErrNonFiniteState))
			}
			reach := p.pose.Translation.Sub(b.WorldCenter()).Len() + shapeRadius(p.collider.shape)
			p.motion = (lin[p.body] + ang[p.body]*reach) * dt
			p.aabb = p.collider.shape.ComputeAABB(p.pose).Expand(p.motion + half)
		}
		return nil
	})
	return placements, err
}

// broadPhase finds overlapping placements that can exchange impulses: the
// colliders must sit on different bodies, at least one of which is dynamic,
// and at least one body must be an awake dynamic or a kinematic body.
func (w *World) broadPhase(bi *bodyIndex, placements []placement) []collision.Pair {
	proxies := make([]collision.Proxy, len(placements))
	for i := range placements {
		proxies[i] = collision.Proxy{ID: i, Key: placements[i].handle.Key(), AABB: placements[i].aabb}
	}
	active := func(b *RigidBody) bool { return isDynamicAwake(b) || b.bodyType.IsKinematic() }

	return collision.SweepAndPrune(proxies, func(a, b int) bool {
		ia, ib := placements[a].body, placements[b].body
		if ia == ib {
			return false
		}
		ba, bb := bi.bodies[ia], bi.bodies[ib]
		if ba.bodyType != Dynamic && bb.bodyType != Dynamic {
			return false
		}
		return active(ba) || active(bb)
	})
}

func (w *World) narrowPhase(placements []placement, pairs []collision.Pair) ([]collision.Manifold, error) {
	manifolds := make([]collision.Manifold, len(pairs))
	err := parallelFor(len(pairs), 32, w.params.workers(), func(start, end int) error {
		for i := start; i < end; i++ {
			pa, pb := &placements[pairs[i].A], &placements[pairs[i].B]
			margin := w.params.PredictionDistance + pa.motion + pb.motion
			manifolds[i] = collision.Collide(pa.collider.shape, pa.pose, pb.collider.shape, pb.pose, margin)
		}
		return nil
	})
	return manifolds, err
}

// wakeTouching wakes sleeping bodies in contact with, or jointed to, an
// awake dynamic body or a moving kinematic body. Waking propagates until
// nothing changes.
func (w *World) wakeTouching(bi *bodyIndex, placements []placement, pairs []collision.Pair, manifolds []collision.Manifold) {
	waker := func(b *RigidBody) bool { return isDynamicAwake(b) || movingKinematic(b) }

	for changed := true; changed; {
		changed = false
		link := func(a, b *RigidBody) {
			if a.sleeping && waker(b) {
				a.WakeUp()
				changed = true
			}
			if b.sleeping && waker(a) {
				b.WakeUp()
				changed = true
			}
		}
		for i, m := range manifolds {
			if m.Count == 0 {
				continue
			}
			link(bi.bodies[placements[pairs[i].A].body], bi.bodies[placements[pairs[i].B].body])
		}
		w.joints.Iter(func(_ JointHandle, j *RevoluteJoint) bool {
			link(bi.bodies[bi.index[j.BodyA]], bi.bodies[bi.index[j.BodyB]])
			return true
		})
	}
}
