package dynamo3d

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type ShapeKind int

const (
	ShapeBall ShapeKind = iota
	ShapeCuboid
)

func (k ShapeKind) String() string {
	if k == ShapeCuboid {
		return "cuboid"
	}
	return "ball"
}

type Shape struct {
	Kind        ShapeKind
	Radius      float64    // ball
	HalfExtents mgl64.Vec3 // cuboid
}

func NewBall(radius float64) (Shape, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Shape{}, fmt.Errorf("ball radius must be positive, got %v", radius)
	}
	return Ball(radius), nil
}

func NewCuboid(hx, hy, hz float64) (Shape, error) {
	for _, h := range []float64{hx, hy, hz} {
		if !(h > 0) || math.IsInf(h, 0) {
			return Shape{}, fmt.Errorf("cuboid half extents must be positive, got (%v, %v, %v)", hx, hy, hz)
		}
	}
	return Cuboid(hx, hy, hz), nil
}

func Ball(radius float64) Shape { return Shape{Kind: ShapeBall, Radius: radius} }

func Cuboid(hx, hy, hz float64) Shape {
	return Shape{Kind: ShapeCuboid, HalfExtents: mgl64.Vec3{hx, hy, hz}}
}

// massProperties returns mass and the inertia tensor about the shape centre
// in the shape frame.
func (s Shape) massProperties(density float64) (float64, mgl64.Mat3) {
	if s.Kind == ShapeBall {
		r := s.Radius
		m := density * 4.0 / 3.0 * math.Pi * r * r * r
		i := 0.4 * m * r * r
		return m, mgl64.Diag3(mgl64.Vec3{i, i, i})
	}
	x, y, z := 2*s.HalfExtents[0], 2*s.HalfExtents[1], 2*s.HalfExtents[2]
	m := density * x * y * z
	return m, mgl64.Diag3(mgl64.Vec3{m * (y*y + z*z) / 12, m * (x*x + z*z) / 12, m * (x*x + y*y) / 12})
}

// reach is the distance from the shape centre to its farthest point.
func (s Shape) reach() float64 {
	if s.Kind == ShapeBall {
		return s.Radius
	}
	return s.HalfExtents.Len()
}

type AABB struct {
	Min, Max mgl64.Vec3
}

func (a AABB) Overlaps(b AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

func (a AABB) Expand(m float64) AABB {
	d := mgl64.Vec3{m, m, m}
	return AABB{Min: a.Min.Sub(d), Max: a.Max.Add(d)}
}

func (s Shape) computeAABB(p Pose) AABB {
	if s.Kind == ShapeBall {
		r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
		return AABB{Min: p.Translation.Sub(r), Max: p.Translation.Add(r)}
	}
	rot := p.Rotation.Mat4().Mat3()
	var e mgl64.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e[i] += math.Abs(rot.At(i, j)) * s.HalfExtents[j]
		}
	}
	return AABB{Min: p.Translation.Sub(e), Max: p.Translation.Add(e)}
}
