package dynamo3d

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/arena"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/integrators"
)

type BodyHandle struct{ arena.Handle }

type ColliderHandle struct{ arena.Handle }

type Velocity = integrators.Velocity3

// Body is a 3D rigid body. Classification and sleeping follow the 2D engine.
type Body struct {
	bodyType dynamo.BodyType
	pose     Pose
	vel      Velocity

	mass        float64
	localCenter mgl64.Vec3
	inertia     mgl64.Mat3 // local frame, about the centre of mass
	invMass     float64
	invInertia  mgl64.Mat3
	nonPhysical bool

	gravityScale   float64
	linearDamping  float64
	angularDamping float64
	force          mgl64.Vec3
	torque         mgl64.Vec3

	canSleep   bool
	sleeping   bool
	sleepTimer float64

	nextPose    Pose
	hasNextPose bool

	colliders []ColliderHandle
}

type BodyDesc struct {
	Type           dynamo.BodyType
	Pose           Pose
	Velocity       Velocity
	CanSleep       bool
	GravityScale   float64
	LinearDamping  float64
	AngularDamping float64
}

func NewBodyDesc(t dynamo.BodyType) BodyDesc {
	return BodyDesc{Type: t, Pose: Identity(), CanSleep: true, GravityScale: 1}
}

func (b *Body) BodyType() dynamo.BodyType { return b.bodyType }
func (b *Body) Pose() Pose                { return b.pose }
func (b *Body) Velocity() Velocity        { return b.vel }
func (b *Body) Mass() float64             { return b.mass }
func (b *Body) LocalCenter() mgl64.Vec3   { return b.localCenter }
func (b *Body) IsSleeping() bool          { return b.sleeping }
func (b *Body) NonPhysical() bool         { return b.nonPhysical }
func (b *Body) GravityScale() float64     { return b.gravityScale }
func (b *Body) CanSleep() bool            { return b.canSleep }

func (b *Body) WorldCenter() mgl64.Vec3 { return b.pose.Apply(b.localCenter) }

func (b *Body) Colliders() []ColliderHandle {
	out := make([]ColliderHandle, len(b.colliders))
	copy(out, b.colliders)
	return out
}

// worldInvInertia rotates the local inverse inertia into the world frame.
func (b *Body) worldInvInertia(q mgl64.Quat) mgl64.Mat3 {
	r := q.Mat4().Mat3()
	return r.Mul3(b.invInertia).Mul3(r.Transpose())
}

func (b *Body) KineticEnergy() float64 {
	if b.bodyType != dynamo.Dynamic {
		return 0
	}
	r := b.pose.Rotation.Mat4().Mat3()
	iw := r.Mul3(b.inertia).Mul3(r.Transpose())
	w := b.vel.Angular
	return 0.5*b.mass*b.vel.Linear.Dot(b.vel.Linear) + 0.5*w.Dot(iw.Mul3x1(w))
}

func (b *Body) WakeUp() {
	b.sleeping = false
	b.sleepTimer = 0
}

func (b *Body) Sleep() {
	if b.bodyType != dynamo.Dynamic || !b.canSleep {
		return
	}
	b.sleeping = true
	b.sleepTimer = 0
	b.vel = Velocity{}
	b.force, b.torque = mgl64.Vec3{}, mgl64.Vec3{}
}

func (b *Body) SetLinearVelocity(v mgl64.Vec3) {
	if b.bodyType == dynamo.Fixed || b.bodyType == dynamo.KinematicPositionBased {
		return
	}
	b.vel.Linear = v
	b.WakeUp()
}

func (b *Body) SetAngularVelocity(w mgl64.Vec3) {
	if b.bodyType == dynamo.Fixed || b.bodyType == dynamo.KinematicPositionBased {
		return
	}
	b.vel.Angular = w
	b.WakeUp()
}

func (b *Body) SetGravityScale(s float64) {
	b.gravityScale = s
	b.WakeUp()
}

func (b *Body) SetDamping(linear, angular float64) {
	b.linearDamping, b.angularDamping = linear, angular
}

func (b *Body) AddForce(f mgl64.Vec3) {
	if b.bodyType != dynamo.Dynamic {
		return
	}
	b.force = b.force.Add(f)
	b.WakeUp()
}

func (b *Body) AddTorque(t mgl64.Vec3) {
	if b.bodyType != dynamo.Dynamic {
		return
	}
	b.torque = b.torque.Add(t)
	b.WakeUp()
}

func (b *Body) ApplyImpulse(p mgl64.Vec3) {
	if b.bodyType != dynamo.Dynamic {
		return
	}
	b.vel.Linear = b.vel.Linear.Add(p.Mul(b.invMass))
	b.WakeUp()
}

func (b *Body) setMass(mass float64, center mgl64.Vec3, inertia mgl64.Mat3) error {
	b.mass, b.localCenter, b.inertia = mass, center, inertia
	b.invMass, b.invInertia = 0, mgl64.Mat3{}
	b.nonPhysical = false
	if b.bodyType != dynamo.Dynamic {
		return nil
	}
	if !(mass > 0) || !(inertia.Det() > 0) {
		b.nonPhysical = true
		return dynamo.ErrDegenerateMassProperties
	}
	b.invMass = 1 / mass
	b.invInertia = inertia.Inv()
	return nil
}
