package dynamo

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/arena"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/integrators"
)

// BodyType classifies how a body moves.
type BodyType int

const (
	// Fixed bodies never move.
	Fixed BodyType = iota
	// Dynamic bodies are moved by forces, contacts and joints.
	Dynamic
	// KinematicVelocityBased bodies follow an externally set velocity.
	KinematicVelocityBased
	// KinematicPositionBased bodies follow an externally set next pose.
	KinematicPositionBased
)

var bodyTypeNames = map[BodyType]string{
	Fixed:                  "fixed",
	Dynamic:                "dynamic",
	KinematicVelocityBased: "kinematic_velocity",
	KinematicPositionBased: "kinematic_position",
}

func (t BodyType) String() string {
	if n, ok := bodyTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("BodyType(%d)", int(t))
}

func (t BodyType) IsKinematic() bool {
	return t == KinematicVelocityBased || t == KinematicPositionBased
}

func ParseBodyType(s string) (BodyType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range bodyTypeNames {
		if n == s {
			return t, nil
		}
	}
	return Fixed, fmt.Errorf("unknown body type %q", s)
}

// Velocity is a planar velocity measured at the centre of mass.
type Velocity = integrators.Velocity

// RigidBody is the state of one body. Mutate it through its methods, which
// keep the classification rules (fixed bodies never move, kinematic bodies
// only follow their targets).
type RigidBody struct {
	bodyType BodyType
	pose     geom.Pose
	vel      Velocity

	nextPose    geom.Pose
	hasNextPose bool

	mass         geom.MassProperties
	massOverride *geom.MassProperties
	invMass      float64
	invInertia   float64
	nonPhysical  bool

	canSleep   bool
	sleeping   bool
	sleepTimer float64

	linearDamping  float64
	angularDamping float64
	gravityScale   float64

	force  mgl64.Vec2
	torque float64

	colliders []ColliderHandle
}

// BodyDesc describes a body to insert.
type BodyDesc struct {
	Type           BodyType
	Pose           geom.Pose
	Velocity       Velocity
	CanSleep       bool
	Sleeping       bool
	LinearDamping  float64
	AngularDamping float64
	GravityScale   float64
	// MassOverride replaces the mass computed from colliders.
	MassOverride *geom.MassProperties
}

func NewBodyDesc(t BodyType) BodyDesc {
	return BodyDesc{Type: t, CanSleep: true, GravityScale: 1}
}

func newRigidBody(d BodyDesc) RigidBody {
	b := RigidBody{
		bodyType:       d.Type,
		pose:           d.Pose,
		canSleep:       d.CanSleep,
		linearDamping:  d.LinearDamping,
		angularDamping: d.AngularDamping,
		gravityScale:   d.GravityScale,
		massOverride:   d.MassOverride,
	}
	if d.Type != Fixed {
		b.vel = d.Velocity
	}
	if d.Sleeping && d.CanSleep && d.Type == Dynamic {
		b.Sleep()
	}
	return b
}

func (b *RigidBody) BodyType() BodyType           { return b.bodyType }
func (b *RigidBody) IsDynamic() bool              { return b.bodyType == Dynamic }
func (b *RigidBody) Pose() geom.Pose              { return b.pose }
func (b *RigidBody) Velocity() Velocity           { return b.vel }
func (b *RigidBody) LinearVelocity() mgl64.Vec2   { return b.vel.Linear }
func (b *RigidBody) AngularVelocity() float64     { return b.vel.Angular }
func (b *RigidBody) Mass() float64                { return b.mass.Mass }
func (b *RigidBody) Inertia() float64             { return b.mass.Inertia }
func (b *RigidBody) LocalCenter() mgl64.Vec2      { return b.mass.LocalCenter }
func (b *RigidBody) WorldCenter() mgl64.Vec2      { return b.pose.Apply(b.mass.LocalCenter) }
func (b *RigidBody) IsSleeping() bool             { return b.sleeping }
func (b *RigidBody) CanSleep() bool               { return b.canSleep }
func (b *RigidBody) GravityScale() float64        { return b.gravityScale }
func (b *RigidBody) LinearDamping() float64       { return b.linearDamping }
func (b *RigidBody) AngularDamping() float64      { return b.angularDamping }
func (b *RigidBody) Force() (mgl64.Vec2, float64) { return b.force, b.torque }

// NonPhysical reports a dynamic body with degenerate mass. It keeps its
// velocity but is not affected by forces, contacts or joints.
func (b *RigidBody) NonPhysical() bool { return b.nonPhysical }

// NextKinematicPose returns the pending target of a position-based body.
func (b *RigidBody) NextKinematicPose() (geom.Pose, bool) { return b.nextPose, b.hasNextPose }

// Colliders returns a copy of the attached collider handles.
func (b *RigidBody) Colliders() []ColliderHandle {
	out := make([]ColliderHandle, len(b.colliders))
	copy(out, b.colliders)
	return out
}

func (b *RigidBody) KineticEnergy() float64 {
	if b.bodyType != Dynamic {
		return 0
	}
	return 0.5*b.mass.Mass*b.vel.Linear.Dot(b.vel.Linear) + 0.5*b.mass.Inertia*b.vel.Angular*b.vel.Angular
}

func (b *RigidBody) WakeUp() {
	b.sleeping = false
	b.sleepTimer = 0
}

// Sleep puts a dynamic body to sleep and zeroes its velocity.
func (b *RigidBody) Sleep() {
	if b.bodyType != Dynamic || !b.canSleep {
		return
	}
	b.sleeping = true
	b.sleepTimer = 0
	b.vel = Velocity{}
	b.force = mgl64.Vec2{}
	b.torque = 0
}

func (b *RigidBody) SetCanSleep(v bool) {
	b.canSleep = v
	if !v {
		b.WakeUp()
	}
}

// SetPose teleports the body. For position-based bodies the pending target is dropped.
func (b *RigidBody) SetPose(p geom.Pose) {
	if b.bodyType == Fixed {
		return
	}
	b.pose = p
	b.hasNextPose = false
	b.WakeUp()
}

func (b *RigidBody) SetLinearVelocity(v mgl64.Vec2) {
	if b.bodyType == Fixed || b.bodyType == KinematicPositionBased {
		return
	}
	b.vel.Linear = v
	b.WakeUp()
}

func (b *RigidBody) SetAngularVelocity(w float64) {
	if b.bodyType == Fixed || b.bodyType == KinematicPositionBased {
		return
	}
	b.vel.Angular = w
	b.WakeUp()
}

func (b *RigidBody) SetDamping(linear, angular float64) {
	b.linearDamping = linear
	b.angularDamping = angular
}

func (b *RigidBody) SetGravityScale(s float64) {
	b.gravityScale = s
	b.WakeUp()
}

// AddForce accumulates a force at the centre of mass until the end of the next step.
func (b *RigidBody) AddForce(f mgl64.Vec2) {
	if b.bodyType != Dynamic {
		return
	}
	b.force = b.force.Add(f)
	b.WakeUp()
}

func (b *RigidBody) AddTorque(t float64) {
	if b.bodyType != Dynamic {
		return
	}
	b.torque += t
	b.WakeUp()
}

// AddForceAtPoint accumulates a force applied at a world point.
func (b *RigidBody) AddForceAtPoint(f, point mgl64.Vec2) {
	if b.bodyType != Dynamic {
		return
	}
	b.force = b.force.Add(f)
	b.torque += geom.Cross(point.Sub(b.WorldCenter()), f)
	b.WakeUp()
}

// ApplyImpulse changes the velocity immediately.
func (b *RigidBody) ApplyImpulse(impulse mgl64.Vec2) {
	if b.bodyType != Dynamic {
		return
	}
	b.vel.Linear = b.vel.Linear.Add(impulse.Mul(b.invMass))
	b.WakeUp()
}

func (b *RigidBody) ApplyTorqueImpulse(impulse float64) {
	if b.bodyType != Dynamic {
		return
	}
	b.vel.Angular += impulse * b.invInertia
	b.WakeUp()
}

func (b *RigidBody) ApplyImpulseAtPoint(impulse, point mgl64.Vec2) {
	if b.bodyType != Dynamic {
		return
	}
	b.vel.Linear = b.vel.Linear.Add(impulse.Mul(b.invMass))
	b.vel.Angular += geom.Cross(point.Sub(b.WorldCenter()), impulse) * b.invInertia
	b.WakeUp()
}

func (b *RigidBody) setKinematicVelocity(v Velocity) error {
	if b.bodyType != KinematicVelocityBased {
		return ErrIncompatibleKinematicTarget
	}
	if !finiteVelocity(v) {
		return fmt.Errorf("%w: velocity target %v", ErrNonFiniteState, v)
	}
	b.vel = v
	return nil
}

func (b *RigidBody) setKinematicPose(p geom.Pose) error {
	if b.bodyType != KinematicPositionBased {
		return ErrIncompatibleKinematicTarget
	}
	if !finitePose(p) {
		return fmt.Errorf("%w: pose target %v", ErrNonFiniteState, p)
	}
	b.nextPose = p
	b.hasNextPose = true
	return nil
}

// setMass installs mass properties and reports ErrDegenerateMassProperties
// for a dynamic body that cannot be integrated physically.
func (b *RigidBody) setMass(mp geom.MassProperties) error {
	b.mass = mp
	b.invMass, b.invInertia = 0, 0
	b.nonPhysical = false
	if b.bodyType != Dynamic {
		return nil
	}
	if !(mp.Mass > 0) || !(mp.Inertia > 0) {
		b.nonPhysical = true
		return ErrDegenerateMassProperties
	}
	b.invMass = 1 / mp.Mass
	b.invInertia = 1 / mp.Inertia
	return nil
}

func (b *RigidBody) clearForces() {
	b.force = mgl64.Vec2{}
	b.torque = 0
}

// BodySet stores the bodies of a world.
type BodySet struct {
	arena *arena.Arena[RigidBody]
}

func newBodySet() *BodySet {
	return &BodySet{arena: arena.New[RigidBody](16)}
}

// Get returns a snapshot of the body.
func (s *BodySet) Get(h BodyHandle) (RigidBody, bool) {
	b, ok := s.arena.Get(h.Handle)
	if !ok {
		return RigidBody{}, false
	}
	return *b, true
}

// GetMut returns the stored body. The pointer is invalidated by insertions.
func (s *BodySet) GetMut(h BodyHandle) (*RigidBody, bool) {
	return s.arena.Get(h.Handle)
}

func (s *BodySet) Contains(h BodyHandle) bool { return s.arena.Contains(h.Handle) }
func (s *BodySet) Len() int                   { return s.arena.Len() }

// Iter visits live bodies in slot order until fn returns false.
func (s *BodySet) Iter(fn func(BodyHandle, *RigidBody) bool) {
	s.arena.Iter(func(h arena.Handle, b *RigidBody) bool {
		return fn(BodyHandle{h}, b)
	})
}

func (s *BodySet) Handles() []BodyHandle {
	hs := s.arena.Handles()
	out := make([]BodyHandle, len(hs))
	for i, h := range hs {
		out[i] = BodyHandle{h}
	}
	return out
}
