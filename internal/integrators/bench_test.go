package integrators

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

func BenchmarkEulerAdvance(b *testing.B) {
	integrator := NewEuler()
	pose := geom.NewPose(0, 10, 0.3)
	v := Velocity{Linear: mgl64.Vec2{1, 0}, Angular: 2}
	g := mgl64.Vec2{0, -9.81}
	center := mgl64.Vec2{0.1, 0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v = integrator.Accelerate(v, g, 0, 0.1, 0.1, 0.01)
		pose = integrator.Advance(pose, center, v, 0.01)
	}
}

func BenchmarkOrientation(b *testing.B) {
	integrator := NewEuler()
	q := mgl64.QuatIdent()
	w := mgl64.Vec3{0.3, 1, -2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q = integrator.Orientation(q, w, 0.01)
	}
}

func BenchmarkImpliedVelocity3(b *testing.B) {
	integrator := NewEuler()
	q0 := mgl64.QuatIdent()
	q1 := mgl64.QuatRotate(0.05, mgl64.Vec3{0, 1, 0})
	c0, c1 := mgl64.Vec3{}, mgl64.Vec3{0.01, 0, 0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = integrator.ImpliedVelocity3(c0, c1, q0, q1, 0.01)
	}
}
