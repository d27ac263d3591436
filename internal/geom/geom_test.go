package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPoseRoundTrip(t *testing.T) {
	p := NewPose(1, -2, 0.7)
	local := mgl64.Vec2{0.3, 1.5}

	back := p.ApplyInverse(p.Apply(local))
	if !back.ApproxEqualThreshold(local, 1e-12) {
		t.Errorf("expected %v, got %v", local, back)
	}
}

func TestPoseMul(t *testing.T) {
	parent := NewPose(2, 0, math.Pi/2)
	child := NewPose(1, 0, 0.1)
	x := mgl64.Vec2{0.5, 0.25}

	got := parent.Mul(child).Apply(x)
	want := parent.Apply(child.Apply(x))
	if !got.ApproxEqualThreshold(want, 1e-12) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{4*math.Pi + 0.5, 0.5},
	}
	for _, tt := range tests {
		if got := WrapAngle(tt.in); !near(got, tt.want, 1e-12) {
			t.Errorf("WrapAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewShapeValidation(t *testing.T) {
	if _, err := NewBall(0); err == nil {
		t.Error("expected error for zero radius")
	}
	if _, err := NewCuboid(1, -1); err == nil {
		t.Error("expected error for negative half extent")
	}
	if _, err := NewCuboid(math.NaN(), 1); err == nil {
		t.Error("expected error for NaN half extent")
	}
	if s, err := NewBall(0.5); err != nil || s.Kind != ShapeBall {
		t.Errorf("unexpected result %v, %v", s, err)
	}
}

func TestCuboidAABBRotated(t *testing.T) {
	s := Cuboid(1, 0.5)
	box := s.ComputeAABB(NewPose(0, 0, math.Pi/2))

	if !near(box.Max[0], 0.5, 1e-12) || !near(box.Max[1], 1, 1e-12) {
		t.Errorf("unexpected rotated aabb %v", box)
	}
}

func TestAABBOverlap(t *testing.T) {
	a := AABB{Min: mgl64.Vec2{0, 0}, Max: mgl64.Vec2{1, 1}}
	b := AABB{Min: mgl64.Vec2{1.5, 0}, Max: mgl64.Vec2{2, 1}}

	if a.Overlaps(b) {
		t.Error("disjoint boxes reported overlapping")
	}
	if !a.Expand(0.5).Overlaps(b) {
		t.Error("expanded box should overlap")
	}
	u := a.Union(b)
	if u.Min[0] != 0 || u.Max[0] != 2 {
		t.Errorf("unexpected union %v", u)
	}
}

func TestMassProperties(t *testing.T) {
	ball := Ball(1).MassProperties(2)
	if !near(ball.Mass, 2*math.Pi, 1e-12) {
		t.Errorf("expected ball mass %v, got %v", 2*math.Pi, ball.Mass)
	}
	if !near(ball.Inertia, 0.5*ball.Mass, 1e-12) {
		t.Errorf("unexpected ball inertia %v", ball.Inertia)
	}

	box := Cuboid(1, 0.5).MassProperties(1)
	if !near(box.Mass, 2, 1e-12) {
		t.Errorf("expected box mass 2, got %v", box.Mass)
	}
	if !near(box.Inertia, 2*(4+1)/12.0, 1e-12) {
		t.Errorf("unexpected box inertia %v", box.Inertia)
	}
}

func TestAggregateParallelAxis(t *testing.T) {
	part := Ball(1).MassProperties(1)
	left := part.Transformed(NewPose(-1, 0, 0))
	right := part.Transformed(NewPose(1, 0, 0))

	agg := Aggregate([]MassProperties{left, right})
	if !agg.LocalCenter.ApproxEqualThreshold(mgl64.Vec2{}, 1e-12) {
		t.Errorf("expected centre at origin, got %v", agg.LocalCenter)
	}
	want := 2 * (part.Inertia + part.Mass)
	if !near(agg.Inertia, want, 1e-12) {
		t.Errorf("expected inertia %v, got %v", want, agg.Inertia)
	}

	if empty := Aggregate(nil); empty.Mass != 0 || empty.InvMass() != 0 {
		t.Errorf("expected empty mass properties, got %+v", empty)
	}
}

func TestSolve22(t *testing.T) {
	m := mgl64.Mat2{2, 1, 1, 3} // columns (2,1) and (1,3)
	x := mgl64.Vec2{1, -2}
	b := m.Mul2x1(x)

	got := Solve22(m, b)
	if !got.ApproxEqualThreshold(x, 1e-12) {
		t.Errorf("expected %v, got %v", x, got)
	}
}

func TestSolve33(t *testing.T) {
	m := mgl64.Mat3{4, 1, 0, 1, 3, -1, 0, -1, 2}
	x := mgl64.Vec3{1, -2, 0.5}
	b := m.Mul3x1(x)

	got := Solve33(m, b)
	if !got.ApproxEqualThreshold(x, 1e-12) {
		t.Errorf("expected %v, got %v", x, got)
	}
	if got := Solve33(mgl64.Mat3{}, b); got != (mgl64.Vec3{}) {
		t.Errorf("expected zero for a singular matrix, got %v", got)
	}
}
