package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrInvalidShape = errors.New("geom: invalid shape dimensions")

// ShapeKind tags the variant held by a Shape.
type ShapeKind int

const (
	ShapeBall ShapeKind = iota
	ShapeCuboid
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBall:
		return "ball"
	case ShapeCuboid:
		return "cuboid"
	default:
		return fmt.Sprintf("shape(%d)", int(k))
	}
}

// Shape is a convex collision shape centred on its local origin.
type Shape struct {
	Kind        ShapeKind
	Radius      float64    // ball
	HalfExtents mgl64.Vec2 // cuboid
}

func NewBall(radius float64) (Shape, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Shape{}, fmt.Errorf("%w: radius %v", ErrInvalidShape, radius)
	}
	return Shape{Kind: ShapeBall, Radius: radius}, nil
}

func NewCuboid(hx, hy float64) (Shape, error) {
	if !(hx > 0) || !(hy > 0) || math.IsInf(hx, 0) || math.IsInf(hy, 0) {
		return Shape{}, fmt.Errorf("%w: half extents (%v, %v)", ErrInvalidShape, hx, hy)
	}
	return Shape{Kind: ShapeCuboid, HalfExtents: mgl64.Vec2{hx, hy}}, nil
}

// Ball is NewBall for sizes known to be valid.
func Ball(radius float64) Shape { return Shape{Kind: ShapeBall, Radius: radius} }

// Cuboid is NewCuboid for sizes known to be valid.
func Cuboid(hx, hy float64) Shape {
	return Shape{Kind: ShapeCuboid, HalfExtents: mgl64.Vec2{hx, hy}}
}

// ComputeAABB returns the world bounding box of the shape at pose.
func (s Shape) ComputeAABB(pose Pose) AABB {
	c := pose.Translation
	switch s.Kind {
	case ShapeBall:
		r := mgl64.Vec2{s.Radius, s.Radius}
		return AABB{Min: c.Sub(r), Max: c.Add(r)}
	default:
		rot := pose.Rot()
		ex := math.Abs(rot.C)*s.HalfExtents[0] + math.Abs(rot.S)*s.HalfExtents[1]
		ey := math.Abs(rot.S)*s.HalfExtents[0] + math.Abs(rot.C)*s.HalfExtents[1]
		e := mgl64.Vec2{ex, ey}
		return AABB{Min: c.Sub(e), Max: c.Add(e)}
	}
}

// Vertices returns the cuboid corners in counter-clockwise order.
func (s Shape) Vertices() [4]mgl64.Vec2 {
	hx, hy := s.HalfExtents[0], s.HalfExtents[1]
	return [4]mgl64.Vec2{{-hx, -hy}, {hx, -hy}, {hx, hy}, {-hx, hy}}
}

// Normals returns the outward face normals matching Vertices: normal i belongs
// to the edge from vertex i to vertex i+1.
func (s Shape) Normals() [4]mgl64.Vec2 {
	return [4]mgl64.Vec2{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
}

// MassProperties computes mass, centre and inertia about the centre for a
// uniform density.
func (s Shape) MassProperties(density float64) MassProperties {
	switch s.Kind {
	case ShapeBall:
		m := density * math.Pi * s.Radius * s.Radius
		return MassProperties{Mass: m, Inertia: 0.5 * m * s.Radius * s.Radius}
	default:
		w, h := 2*s.HalfExtents[0], 2*s.HalfExtents[1]
		m := density * w * h
		return MassProperties{Mass: m, Inertia: m * (w*w + h*h) / 12}
	}
}
