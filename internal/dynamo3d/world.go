package dynamo3d

import (
	"fmt"
	"runtime"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/arena"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/integrators"
)

// Observer is notified after every published step.
type Observer interface {
	OnStep(w *World, r *dynamo.StepReport)
}

// World is the 3D counterpart of dynamo.World for balls and cuboids. It has
// no joints.
type World struct {
	bodies    *arena.Arena[Body]
	colliders *arena.Arena[Collider]

	params  dynamo.IntegrationParameters
	gravity mgl64.Vec3
	integ   *integrators.Euler
	log     logr.Logger

	observers []Observer

	state dynamo.StepState
	time  float64
	steps int

	cache    map[contactKey]cachedImpulse
	contacts []ContactManifold
}

func NewWorld(params dynamo.IntegrationParameters) (*World, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &World{
		bodies:    arena.New[Body](0),
		colliders: arena.New[Collider](0),
		params:    params,
		gravity:   mgl64.Vec3{0, -9.81, 0},
		integ:     integrators.NewEuler(),
		log:       logr.Discard(),
		cache:     make(map[contactKey]cachedImpulse),
	}, nil
}

func (w *World) SetLogger(l logr.Logger) { w.log = l.WithName("dynamo3d") }

func (w *World) Params() dynamo.IntegrationParameters { return w.params }
func (w *World) Gravity() mgl64.Vec3                  { return w.gravity }
func (w *World) SetGravity(g mgl64.Vec3)              { w.gravity = g }
func (w *World) State() dynamo.StepState              { return w.state }
func (w *World) Time() float64                        { return w.time }
func (w *World) StepCount() int                       { return w.steps }

func (w *World) AddObserver(o Observer) { w.observers = append(w.observers, o) }

func (w *World) workers() int {
	if w.params.Workers > 0 {
		return w.params.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func bodyErr(h BodyHandle, err error) error {
	return &dynamo.EntityError{Entity: "body " + h.String(), Wrapped: err}
}

func (w *World) NewBody(t dynamo.BodyType, pose Pose, vel Velocity, canSleep bool) (BodyHandle, error) {
	d := NewBodyDesc(t)
	d.Pose = pose
	d.Velocity = vel
	d.CanSleep = canSleep
	return w.InsertBody(d)
}

func (w *World) InsertBody(d BodyDesc) (BodyHandle, error) {
	if !d.Pose.finite() || !finite3(d.Velocity.Linear) || !finite3(d.Velocity.Angular) {
		return BodyHandle{}, fmt.Errorf("%w: initial pose or velocity", dynamo.ErrNonFiniteState)
	}
	b := Body{
		bodyType:       d.Type,
		pose:           d.Pose.normalized(),
		canSleep:       d.CanSleep,
		gravityScale:   d.GravityScale,
		linearDamping:  d.LinearDamping,
		angularDamping: d.AngularDamping,
	}
	if d.Type != dynamo.Fixed && d.Type != dynamo.KinematicPositionBased {
		b.vel = d.Velocity
	}
	_ = b.setMass(0, mgl64.Vec3{}, mgl64.Mat3{})
	h, err := w.bodies.Insert(b)
	if err != nil {
		return BodyHandle{}, err
	}
	return BodyHandle{h}, nil
}

// RemoveBody deletes a body. Its colliders are deleted with it when
// removeAttached is set and otherwise left dangling until removed, which
// fails every step with dynamo.ErrStaleReference.
func (w *World) RemoveBody(h BodyHandle, removeAttached bool) ([]ColliderHandle, error) {
	b, ok := w.bodies.Get(h.Handle)
	if !ok {
		return nil, bodyErr(h, dynamo.ErrInvalidHandle)
	}
	cs := b.Colliders()
	if removeAttached {
		for _, ch := range cs {
			w.colliders.Remove(ch.Handle)
		}
	}
	w.bodies.Remove(h.Handle)
	return cs, nil
}

func (w *World) Body(h BodyHandle) (Body, error) {
	b, ok := w.bodies.Get(h.Handle)
	if !ok {
		return Body{}, bodyErr(h, dynamo.ErrInvalidHandle)
	}
	return *b, nil
}

// BodyMut returns the live body for direct edits between steps.
func (w *World) BodyMut(h BodyHandle) (*Body, error) {
	b, ok := w.bodies.Get(h.Handle)
	if !ok {
		return nil, bodyErr(h, dynamo.ErrInvalidHandle)
	}
	return b, nil
}

func (w *World) Bodies() []BodyHandle {
	hs := w.bodies.Handles()
	out := make([]BodyHandle, len(hs))
	for i, h := range hs {
		out[i] = BodyHandle{h}
	}
	return out
}

func (w *World) Pose(h BodyHandle) (Pose, error) {
	b, err := w.BodyMut(h)
	if err != nil {
		return Pose{}, err
	}
	return b.pose, nil
}

func (w *World) Velocity(h BodyHandle) (Velocity, error) {
	b, err := w.BodyMut(h)
	if err != nil {
		return Velocity{}, err
	}
	return b.vel, nil
}

func (w *World) SetKinematicVelocityTarget(h BodyHandle, v Velocity) error {
	b, err := w.BodyMut(h)
	if err != nil {
		return err
	}
	if b.bodyType != dynamo.KinematicVelocityBased {
		return bodyErr(h, dynamo.ErrIncompatibleKinematicTarget)
	}
	if !finite3(v.Linear) || !finite3(v.Angular) {
		return bodyErr(h, fmt.Errorf("%w: velocity target %v", dynamo.ErrNonFiniteState, v))
	}
	b.vel = v
	return nil
}

func (w *World) SetKinematicPositionTarget(h BodyHandle, p Pose) error {
	b, err := w.BodyMut(h)
	if err != nil {
		return err
	}
	if b.bodyType != dynamo.KinematicPositionBased {
		return bodyErr(h, dynamo.ErrIncompatibleKinematicTarget)
	}
	if !p.finite() {
		return bodyErr(h, fmt.Errorf("%w: pose target %v", dynamo.ErrNonFiniteState, p))
	}
	b.nextPose = p.normalized()
	b.hasNextPose = true
	return nil
}

func (w *World) NewCollider(s Shape, m dynamo.Material, parent BodyHandle) (ColliderHandle, error) {
	d := NewColliderDesc(s)
	d.Material = m
	return w.InsertCollider(d, parent)
}

// InsertCollider attaches a collider and recomputes the parent's mass. A
// degenerate dynamic parent still gets the collider and the handle is
// returned with dynamo.ErrDegenerateMassProperties.
func (w *World) InsertCollider(d ColliderDesc, parent BodyHandle) (ColliderHandle, error) {
	if err := d.Material.Validate(); err != nil {
		return ColliderHandle{}, err
	}
	if !d.LocalPose.finite() {
		return ColliderHandle{}, fmt.Errorf("%w: collider local pose %v", dynamo.ErrNonFiniteState, d.LocalPose)
	}
	b, err := w.BodyMut(parent)
	if err != nil {
		return ColliderHandle{}, err
	}
	c := Collider{shape: d.Shape, material: d.Material, localPose: d.LocalPose.normalized(), parent: parent}
	c.pose = b.pose.Mul(c.localPose)
	c.aabb = c.shape.computeAABB(c.pose)
	h, err := w.colliders.Insert(c)
	if err != nil {
		return ColliderHandle{}, err
	}
	ch := ColliderHandle{h}
	b.colliders = append(b.colliders, ch)
	b.WakeUp()
	if err := w.updateMass(b); err != nil {
		return ch, bodyErr(parent, err)
	}
	return ch, nil
}

func (w *World) RemoveCollider(h ColliderHandle) (Collider, error) {
	c, ok := w.colliders.Remove(h.Handle)
	if !ok {
		return Collider{}, &dynamo.EntityError{Entity: "collider " + h.String(), Wrapped: dynamo.ErrInvalidHandle}
	}
	b, ok := w.bodies.Get(c.parent.Handle)
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
	if err := w.updateMass(b); err != nil && len(b.colliders) > 0 {
		return c, bodyErr(c.parent, err)
	}
	return c, nil
}

func (w *World) Collider(h ColliderHandle) (Collider, error) {
	c, ok := w.colliders.Get(h.Handle)
	if !ok {
		return Collider{}, &dynamo.EntityError{Entity: "collider " + h.String(), Wrapped: dynamo.ErrInvalidHandle}
	}
	return *c, nil
}

func (w *World) updateMass(b *Body) error {
	cs := make([]*Collider, 0, len(b.colliders))
	for _, ch := range b.colliders {
		if c, ok := w.colliders.Get(ch.Handle); ok {
			cs = append(cs, c)
		}
	}
	m, center, inertia := aggregateMass(cs)
	return b.setMass(m, center, inertia)
}

// Contacts returns the manifolds of the last published step.
func (w *World) Contacts() []ContactManifold {
	out := make([]ContactManifold, len(w.contacts))
	copy(out, w.contacts)
	return out
}
