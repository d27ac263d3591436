package integrators

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

func TestEulerFreeFall(t *testing.T) {
	integ := NewEuler()
	dt := 0.01
	steps := 100
	g := mgl64.Vec2{0, -9.81}

	pose := geom.NewPose(0, 10, 0)
	var v Velocity
	for i := 0; i < steps; i++ {
		v = integ.Accelerate(v, g, 0, 0, 0, dt)
		pose = integ.Advance(pose, mgl64.Vec2{}, v, dt)
	}

	T := float64(steps) * dt
	if math.Abs(v.Linear[1]-g[1]*T) > 1e-9 {
		t.Errorf("velocity error: got %.6f, expected %.6f", v.Linear[1], g[1]*T)
	}
	// semi-implicit Euler overshoots the analytic drop by g·dt·T/2
	expected := 10 + 0.5*g[1]*T*T + 0.5*g[1]*dt*T
	if math.Abs(pose.Translation[1]-expected) > 1e-9 {
		t.Errorf("position error: got %.6f, expected %.6f", pose.Translation[1], expected)
	}
}

func TestEulerDamping(t *testing.T) {
	integ := NewEuler()
	v := Velocity{Linear: mgl64.Vec2{2, 0}, Angular: 3}
	v = integ.Accelerate(v, mgl64.Vec2{}, 0, 1, 2, 0.5)

	if math.Abs(v.Linear[0]-2/1.5) > 1e-12 {
		t.Errorf("expected linear %.6f, got %.6f", 2/1.5, v.Linear[0])
	}
	if math.Abs(v.Angular-1.5) > 1e-12 {
		t.Errorf("expected angular 1.5, got %.6f", v.Angular)
	}
}

func TestEulerRotatesAboutCenter(t *testing.T) {
	integ := NewEuler()
	center := mgl64.Vec2{1, 0}
	pose := geom.NewPose(2, 3, 0)
	before := pose.Apply(center)

	v := Velocity{Angular: math.Pi / 2}
	pose = integ.Advance(pose, center, v, 1)

	after := pose.Apply(center)
	if after.Sub(before).Len() > 1e-12 {
		t.Errorf("centre of mass moved from %v to %v", before, after)
	}
	if math.Abs(pose.Rotation-math.Pi/2) > 1e-12 {
		t.Errorf("expected rotation pi/2, got %v", pose.Rotation)
	}
}

func TestImpliedVelocity(t *testing.T) {
	integ := NewEuler()
	cur := geom.NewPose(0, 0, 0)
	next := geom.NewPose(0.1, -0.2, 0.05)

	v := integ.ImpliedVelocity(cur, next, mgl64.Vec2{}, 0.1)
	if math.Abs(v.Linear[0]-1) > 1e-12 || math.Abs(v.Linear[1]+2) > 1e-12 {
		t.Errorf("expected linear (1,-2), got %v", v.Linear)
	}
	if math.Abs(v.Angular-0.5) > 1e-12 {
		t.Errorf("expected angular 0.5, got %v", v.Angular)
	}

	// advancing by the implied velocity lands on the target
	got := integ.Advance(cur, mgl64.Vec2{}, v, 0.1)
	if got.Translation.Sub(next.Translation).Len() > 1e-12 || math.Abs(got.Rotation-next.Rotation) > 1e-12 {
		t.Errorf("expected %v, got %v", next, got)
	}
}

func TestOrientationStaysUnit(t *testing.T) {
	integ := NewEuler()
	q := mgl64.QuatIdent()
	w := mgl64.Vec3{0.3, -1.2, 2.5}

	for i := 0; i < 1000; i++ {
		q = integ.Orientation(q, w, 1.0/60)
		if math.Abs(q.Len()-1) > 1e-12 {
			t.Fatalf("step %d: quaternion norm drifted to %v", i, q.Len())
		}
	}
}

func TestOrientationAboutAxis(t *testing.T) {
	integ := NewEuler()
	q := mgl64.QuatIdent()
	w := mgl64.Vec3{0, 0, 1}
	dt := 1e-4

	for i := 0; i < 10000; i++ {
		q = integ.Orientation(q, w, dt)
	}

	// one radian about z
	x := q.Rotate(mgl64.Vec3{1, 0, 0})
	if math.Abs(x[0]-math.Cos(1)) > 1e-3 || math.Abs(x[1]-math.Sin(1)) > 1e-3 {
		t.Errorf("expected (cos 1, sin 1, 0), got %v", x)
	}
}

func TestImpliedVelocity3(t *testing.T) {
	integ := NewEuler()
	dt := 0.1
	q0 := mgl64.QuatRotate(0.3, mgl64.Vec3{0, 0, 1})
	q1 := mgl64.QuatRotate(0.5, mgl64.Vec3{0, 0, 1})

	v := integ.ImpliedVelocity3(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{1, 2.5, 3}, q0, q1, dt)
	if v.Linear.Sub(mgl64.Vec3{0, 5, 0}).Len() > 1e-12 {
		t.Errorf("expected linear (0,5,0), got %v", v.Linear)
	}
	if v.Angular.Sub(mgl64.Vec3{0, 0, 2}).Len() > 1e-9 {
		t.Errorf("expected angular (0,0,2), got %v", v.Angular)
	}

	// a double cover flip of the target is the same rotation
	v = integ.ImpliedVelocity3(mgl64.Vec3{}, mgl64.Vec3{}, q0, q1.Scale(-1), dt)
	if v.Angular.Sub(mgl64.Vec3{0, 0, 2}).Len() > 1e-9 {
		t.Errorf("expected shortest rotation (0,0,2), got %v", v.Angular)
	}
}
