package integrators

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Velocity3 is a spatial body velocity measured at the centre of mass.
type Velocity3 struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

func (e *Euler) Accelerate3(v Velocity3, acc, angAcc mgl64.Vec3, linearDamping, angularDamping, dt float64) Velocity3 {
	v.Linear = v.Linear.Add(acc.Mul(dt)).Mul(1 / (1 + dt*linearDamping))
	v.Angular = v.Angular.Add(angAcc.Mul(dt)).Mul(1 / (1 + dt*angularDamping))
	return v
}

// Orientation integrates q by the world angular velocity w over dt using
// q' = q + dt/2·(0,w)·q and re-normalizes the result.
func (e *Euler) Orientation(q mgl64.Quat, w mgl64.Vec3, dt float64) mgl64.Quat {
	spin := mgl64.Quat{W: 0, V: w}.Mul(q).Scale(0.5 * dt)
	next := q.Add(spin)
	if next.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return next.Normalize()
}

// Position3 advances a centre of mass.
func (e *Euler) Position3(p mgl64.Vec3, v mgl64.Vec3, dt float64) mgl64.Vec3 {
	return p.Add(v.Mul(dt))
}

// ImpliedVelocity3 returns the velocity that carries a body from (c0, q0)
// to (c1, q1) in dt, taking the shorter rotation.
func (e *Euler) ImpliedVelocity3(c0, c1 mgl64.Vec3, q0, q1 mgl64.Quat, dt float64) Velocity3 {
	v := Velocity3{Linear: c1.Sub(c0).Mul(1 / dt)}
	dq := q1.Mul(q0.Inverse()).Normalize()
	if dq.W < 0 {
		dq = dq.Scale(-1)
	}
	s := dq.V.Len()
	if s < 1e-12 {
		// small angle: 2·V/dt
		v.Angular = dq.V.Mul(2 / dt)
		return v
	}
	angle := 2 * math.Atan2(s, dq.W)
	v.Angular = dq.V.Mul(angle / (s * dt))
	return v
}
