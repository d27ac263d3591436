package dynamo

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/integrators"
)

// World owns bodies, colliders and joints and advances them in fixed steps.
// A World is not safe for concurrent use: graph edits and Step calls must be
// serialized by the caller.
type World struct {
	bodies    *BodySet
	colliders *ColliderSet
	joints    *JointSet

	params  IntegrationParameters
	gravity mgl64.Vec2
	integ   *integrators.Euler
	log     logr.Logger

	hooks     []Hook
	observers []Observer

	state StepState
	time  float64
	steps int

	cache    map[contactKey]cachedImpulse
	contacts []ContactManifold
}

func NewWorld(params IntegrationParameters) (*World, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &World{
		bodies:    newBodySet(),
		colliders: newColliderSet(),
		joints:    newJointSet(),
		params:    params,
		gravity:   mgl64.Vec2{0, -9.81},
		integ:     integrators.NewEuler(),
		log:       logr.Discard(),
		cache:     make(map[contactKey]cachedImpulse),
	}, nil
}

func (w *World) SetLogger(l logr.Logger) { w.log = l.WithName("dynamo") }

func (w *World) Params() IntegrationParameters { return w.params }

func (w *World) SetParams(p IntegrationParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w.params = p
	return nil
}

func (w *World) Gravity() mgl64.Vec2 { return w.gravity }

func (w *World) SetGravity(g mgl64.Vec2) { w.gravity = g }

func (w *World) Bodies() *BodySet        { return w.bodies }
func (w *World) Colliders() *ColliderSet { return w.colliders }
func (w *World) Joints() *JointSet       { return w.joints }
func (w *World) State() StepState        { return w.state }
func (w *World) Time() float64           { return w.time }
func (w *World) StepCount() int          { return w.steps }

// AddHook registers a callback run at the start of every step.
func (w *World) AddHook(h Hook) { w.hooks = append(w.hooks, h) }

func (w *World) AddObserver(o Observer) { w.observers = append(w.observers, o) }

// NewBody inserts a body with default damping and gravity scale.
func (w *World) NewBody(t BodyType, pose geom.Pose, vel Velocity, canSleep bool) (BodyHandle, error) {
	d := NewBodyDesc(t)
	d.Pose = pose
	d.Velocity = vel
	d.CanSleep = canSleep
	return w.InsertBody(d)
}

// InsertBody adds a body. A dynamic body whose MassOverride is degenerate is
// still inserted and flagged non-physical; its handle comes back together
// with ErrDegenerateMassProperties.
func (w *World) InsertBody(d BodyDesc) (BodyHandle, error) {
	if !finitePose(d.Pose) || !finiteVelocity(d.Velocity) {
		return BodyHandle{}, fmt.Errorf("%w: initial pose or velocity", ErrNonFiniteState)
	}
	b := newRigidBody(d)
	massErr := b.setMass(w.massOf(&b))
	h, err := w.bodies.arena.Insert(b)
	if err != nil {
		return BodyHandle{}, err
	}
	bh := BodyHandle{h}
	if massErr != nil && d.MassOverride != nil {
		return bh, entityErr("body", bh, massErr)
	}
	return bh, nil
}

// Removal lists the handles that depended on a removed body.
type Removal struct {
	Colliders []ColliderHandle
	Joints    []JointHandle
}

// RemoveBody deletes a body and every joint attached to it. Its colliders are
// deleted when removeAttached is set; otherwise they stay in the collider set
// referencing the dead body and the next step fails with ErrStaleReference
// until they are removed.
func (w *World) RemoveBody(h BodyHandle, removeAttached bool) (Removal, error) {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return Removal{}, entityErr("body", h, ErrInvalidHandle)
	}
	r := Removal{Colliders: b.Colliders()}

	w.joints.Iter(func(jh JointHandle, j *RevoluteJoint) bool {
		if j.BodyA == h || j.BodyB == h {
			r.Joints = append(r.Joints, jh)
		}
		return true
	})
	for _, jh := range r.Joints {
		w.removeJoint(jh)
	}

	if removeAttached {
		for _, ch := range r.Colliders {
			w.colliders.arena.Remove(ch.Handle)
		}
	}
	w.bodies.arena.Remove(h.Handle)
	return r, nil
}

func (w *World) Body(h BodyHandle) (RigidBody, error) {
	b, ok := w.bodies.Get(h)
	if !ok {
		return RigidBody{}, entityErr("body", h, ErrInvalidHandle)
	}
	return b, nil
}

func (w *World) Pose(h BodyHandle) (geom.Pose, error) {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return geom.Pose{}, entityErr("body", h, ErrInvalidHandle)
	}
	return b.pose, nil
}

func (w *World) Velocity(h BodyHandle) (Velocity, error) {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return Velocity{}, entityErr("body", h, ErrInvalidHandle)
	}
	return b.vel, nil
}

func (w *World) SetKinematicVelocityTarget(h BodyHandle, v Velocity) error {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return entityErr("body", h, ErrInvalidHandle)
	}
	if err := b.setKinematicVelocity(v); err != nil {
		return entityErr("body", h, err)
	}
	return nil
}

func (w *World) SetKinematicPositionTarget(h BodyHandle, p geom.Pose) error {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return entityErr("body", h, ErrInvalidHandle)
	}
	if err := b.setKinematicPose(p); err != nil {
		return entityErr("body", h, err)
	}
	return nil
}

// SetMassOverride replaces (or with nil, restores) the collider-derived mass of a body.
func (w *World) SetMassOverride(h BodyHandle, mp *geom.MassProperties) error {
	b, ok := w.bodies.GetMut(h)
	if !ok {
		return entityErr("body", h, ErrInvalidHandle)
	}
	b.massOverride = mp
	b.WakeUp()
	if err := b.setMass(w.massOf(b)); err != nil {
		return entityErr("body", h, err)
	}
	return nil
}

func (w *World) massOf(b *RigidBody) geom.MassProperties {
	if b.massOverride != nil {
		return *b.massOverride
	}
	parts := make([]geom.MassProperties, 0, len(b.colliders))
	for _, ch := range b.colliders {
		if c, ok := w.colliders.get(ch); ok {
			parts = append(parts, c.massProperties())
		}
	}
	return geom.Aggregate(parts)
}

// NewCollider attaches a collider with the given shape and material to parent.
func (w *World) NewCollider(shape geom.Shape, material Material, parent BodyHandle) (ColliderHandle, error) {
	return w.InsertCollider(ColliderDesc{Shape: shape, Material: material}, parent)
}

// InsertCollider attaches a collider to parent and recomputes the parent's
// mass. When the parent is dynamic and its mass becomes degenerate the handle
// is still returned together with ErrDegenerateMassProperties.
func (w *World) InsertCollider(d ColliderDesc, parent BodyHandle) (ColliderHandle, error) {
	if err := d.Material.Validate(); err != nil {
		return ColliderHandle{}, err
	}
	if !finitePose(d.LocalPose) {
		return ColliderHandle{}, fmt.Errorf("%w: collider local pose %v", ErrNonFiniteState, d.LocalPose)
	}
	b, ok := w.bodies.GetMut(parent)
	if !ok {
		return ColliderHandle{}, entityErr("body", parent, ErrInvalidHandle)
	}
	c := Collider{
		shape:     d.Shape,
		material:  d.Material,
		localPose: d.LocalPose,
		parent:    parent,
	}
	c.pose = b.pose.Mul(c.localPose)
	c.aabb = c.shape.ComputeAABB(c.pose)

	h, err := w.colliders.arena.Insert(c)
	if err != nil {
		return ColliderHandle{}, err
	}
	ch := ColliderHandle{h}

	b.colliders = append(b.colliders, ch)
	b.WakeUp()
	if err := b.setMass(w.massOf(b)); err != nil {
		return ch, entityErr("body", parent, err)
	}
	return ch, nil
}

// RemoveCollider detaches and deletes a collider. Colliders left behind by
// RemoveBody can be removed this way as well.
func (w *World) RemoveCollider(h ColliderHandle) (Collider, error) {
	c, ok := w.colliders.arena.Remove(h.Handle)
	if !ok {
		return Collider{}, entityErr("collider", h, ErrInvalidHandle)
	}
	b, ok := w.bodies.GetMut(c.parent)
	if !ok {
		return c, nil
	}
	for i, ch := range b.colliders {
		if ch == h {
			b.colliders = append(b.colliders[:i], b.colliders[i+1:]...)
			break
		}
	}
	b.WakeUp()
	if err := b.setMass(w.massOf(b)); err != nil && len(b.colliders) > 0 {
		return c, entityErr("body", c.parent, err)
	}
	return c, nil
}

// NewJoint connects two bodies with a revolute joint. Anchors are in the
// local frames of their bodies; motor and limits may be nil.
func (w *World) NewJoint(a, b BodyHandle, anchorA, anchorB mgl64.Vec2, motor *Motor, limits *Limits) (JointHandle, error) {
	return w.InsertJoint(JointDesc{
		BodyA:        a,
		BodyB:        b,
		LocalAnchorA: anchorA,
		LocalAnchorB: anchorB,
		Motor:        motor,
		Limits:       limits,
	})
}

func (w *World) InsertJoint(d JointDesc) (JointHandle, error) {
	if err := d.validate(); err != nil {
		return JointHandle{}, err
	}
	ba, ok := w.bodies.GetMut(d.BodyA)
	if !ok {
		return JointHandle{}, entityErr("body", d.BodyA, ErrInvalidHandle)
	}
	ba.WakeUp()
	bb, ok := w.bodies.GetMut(d.BodyB)
	if !ok {
		return JointHandle{}, entityErr("body", d.BodyB, ErrInvalidHandle)
	}
	bb.WakeUp()

	h, err := w.joints.arena.Insert(RevoluteJoint{
		BodyA:          d.BodyA,
		BodyB:          d.BodyB,
		LocalAnchorA:   d.LocalAnchorA,
		LocalAnchorB:   d.LocalAnchorB,
		ReferenceAngle: d.ReferenceAngle,
		Motor:          d.Motor,
		Limits:         d.Limits,
	})
	if err != nil {
		return JointHandle{}, err
	}
	return JointHandle{h}, nil
}

func (w *World) RemoveJoint(h JointHandle) (RevoluteJoint, error) {
	j, ok := w.removeJoint(h)
	if !ok {
		return RevoluteJoint{}, entityErr("joint", h, ErrInvalidHandle)
	}
	return j, nil
}

func (w *World) removeJoint(h JointHandle) (RevoluteJoint, bool) {
	j, ok := w.joints.arena.Remove(h.Handle)
	if !ok {
		return j, false
	}
	for _, bh := range []BodyHandle{j.BodyA, j.BodyB} {
		if b, ok := w.bodies.GetMut(bh); ok {
			b.WakeUp()
		}
	}
	return j, true
}

func (w *World) Joint(h JointHandle) (RevoluteJoint, error) {
	j, ok := w.joints.Get(h)
	if !ok {
		return RevoluteJoint{}, entityErr("joint", h, ErrInvalidHandle)
	}
	return j, nil
}

// SetMotor replaces the motor of a joint; nil removes it.
func (w *World) SetMotor(h JointHandle, m *Motor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	j, ok := w.joints.get(h)
	if !ok {
		return entityErr("joint", h, ErrInvalidHandle)
	}
	j.Motor = m
	j.motorImpulse = 0
	w.wakeJointBodies(j)
	return nil
}

func (w *World) SetLimits(h JointHandle, l *Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	j, ok := w.joints.get(h)
	if !ok {
		return entityErr("joint", h, ErrInvalidHandle)
	}
	j.Limits = l
	j.lowerImpulse, j.upperImpulse = 0, 0
	w.wakeJointBodies(j)
	return nil
}

func (w *World) wakeJointBodies(j *RevoluteJoint) {
	for _, bh := range []BodyHandle{j.BodyA, j.BodyB} {
		if b, ok := w.bodies.GetMut(bh); ok {
			b.WakeUp()
		}
	}
}

// JointAngle returns the wrapped relative angle of a joint.
func (w *World) JointAngle(h JointHandle) (float64, error) {
	j, ok := w.joints.get(h)
	if !ok {
		return 0, entityErr("joint", h, ErrInvalidHandle)
	}
	a, okA := w.bodies.GetMut(j.BodyA)
	b, okB := w.bodies.GetMut(j.BodyB)
	if !okA || !okB {
		return 0, entityErr("joint", h, ErrStaleReference)
	}
	return jointAngle(a.pose.Rotation, b.pose.Rotation, j.ReferenceAngle), nil
}

// JointSpeed returns the relative angular speed of a joint.
func (w *World) JointSpeed(h JointHandle) (float64, error) {
	j, ok := w.joints.get(h)
	if !ok {
		return 0, entityErr("joint", h, ErrInvalidHandle)
	}
	a, okA := w.bodies.GetMut(j.BodyA)
	b, okB := w.bodies.GetMut(j.BodyB)
	if !okA || !okB {
		return 0, entityErr("joint", h, ErrStaleReference)
	}
	return b.vel.Angular - a.vel.Angular, nil
}

// Contacts returns the manifolds of the last published step.
func (w *World) Contacts() []ContactManifold {
	out := make([]ContactManifold, len(w.contacts))
	copy(out, w.contacts)
	return out
}

func finitePose(p geom.Pose) bool {
	return finiteVec(p.Translation) && !math.IsNaN(p.Rotation) && !math.IsInf(p.Rotation, 0)
}

func finiteVelocity(v Velocity) bool {
	return finiteVec(v.Linear) && !math.IsNaN(v.Angular) && !math.IsInf(v.Angular, 0)
}
