// Package integrators holds the time-stepping kernels used by the 2D and 3D
// engines. Both use semi-implicit Euler: velocities are advanced from forces
// first, poses are then advanced with the solved velocities.
package integrators

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// Velocity is a planar body velocity measured at the centre of mass.
type Velocity struct {
	Linear  mgl64.Vec2
	Angular float64
}

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

// Accelerate applies linear and angular acceleration followed by damping.
// Damping uses the implicit form 1/(1+dt·d) so it is stable for any dt.
func (e *Euler) Accelerate(v Velocity, acc mgl64.Vec2, angAcc, linearDamping, angularDamping, dt float64) Velocity {
	v.Linear = v.Linear.Add(acc.Mul(dt))
	v.Angular += angAcc * dt
	v.Linear = v.Linear.Mul(1 / (1 + dt*linearDamping))
	v.Angular *= 1 / (1 + dt*angularDamping)
	return v
}

// Advance moves the pose by v over dt. The rotation is applied about the
// centre of mass, given in the body frame by localCenter.
func (e *Euler) Advance(p geom.Pose, localCenter mgl64.Vec2, v Velocity, dt float64) geom.Pose {
	com := p.Apply(localCenter).Add(v.Linear.Mul(dt))
	angle := p.Rotation + v.Angular*dt
	return geom.Pose{
		Translation: com.Sub(geom.NewRot(angle).Apply(localCenter)),
		Rotation:    angle,
	}
}

// ImpliedVelocity is the velocity that carries the pose from cur to next in dt.
func (e *Euler) ImpliedVelocity(cur, next geom.Pose, localCenter mgl64.Vec2, dt float64) Velocity {
	c0 := cur.Apply(localCenter)
	c1 := next.Apply(localCenter)
	return Velocity{
		Linear:  c1.Sub(c0).Mul(1 / dt),
		Angular: geom.WrapAngle(next.Rotation-cur.Rotation) / dt,
	}
}
