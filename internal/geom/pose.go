// Package geom holds the 2D shape, pose and mass-property primitives shared by
// the collision and dynamics packages.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rot is a 2D rotation stored as cosine/sine.
type Rot struct {
	C, S float64
}

func NewRot(angle float64) Rot {
	s, c := math.Sincos(angle)
	return Rot{C: c, S: s}
}

func (r Rot) Angle() float64 { return math.Atan2(r.S, r.C) }

func (r Rot) Apply(v mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{r.C*v[0] - r.S*v[1], r.S*v[0] + r.C*v[1]}
}

func (r Rot) ApplyInverse(v mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{r.C*v[0] + r.S*v[1], -r.S*v[0] + r.C*v[1]}
}

// Pose is a rigid transform: rotate by Rotation radians, then translate.
type Pose struct {
	Translation mgl64.Vec2
	Rotation    float64
}

// Identity is the identity pose.
var Identity = Pose{}

func NewPose(x, y, angle float64) Pose {
	return Pose{Translation: mgl64.Vec2{x, y}, Rotation: angle}
}

func (p Pose) Rot() Rot { return NewRot(p.Rotation) }

// Apply maps a point from local to world coordinates.
func (p Pose) Apply(local mgl64.Vec2) mgl64.Vec2 {
	return p.Rot().Apply(local).Add(p.Translation)
}

// ApplyInverse maps a world point into local coordinates.
func (p Pose) ApplyInverse(world mgl64.Vec2) mgl64.Vec2 {
	return p.Rot().ApplyInverse(world.Sub(p.Translation))
}

// Rotate rotates a direction without translating it.
func (p Pose) Rotate(v mgl64.Vec2) mgl64.Vec2 { return p.Rot().Apply(v) }

// Mul composes p with child, so that p.Mul(c).Apply(x) == p.Apply(c.Apply(x)).
func (p Pose) Mul(child Pose) Pose {
	return Pose{
		Translation: p.Apply(child.Translation),
		Rotation:    p.Rotation + child.Rotation,
	}
}

// Cross returns the z component of a×b.
func Cross(a, b mgl64.Vec2) float64 { return a[0]*b[1] - a[1]*b[0] }

// CrossSV returns s×v for a scalar (z-axis) s.
func CrossSV(s float64, v mgl64.Vec2) mgl64.Vec2 { return mgl64.Vec2{-s * v[1], s * v[0]} }

// CrossVS returns v×s for a scalar (z-axis) s.
func CrossVS(v mgl64.Vec2, s float64) mgl64.Vec2 { return mgl64.Vec2{s * v[1], -s * v[0]} }

// Perp returns v rotated by +90 degrees.
func Perp(v mgl64.Vec2) mgl64.Vec2 { return mgl64.Vec2{-v[1], v[0]} }

// WrapAngle maps an angle into (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Solve22 solves the 2x2 system m*x = b, returning zero when m is singular.
func Solve22(m mgl64.Mat2, b mgl64.Vec2) mgl64.Vec2 {
	det := m.Det()
	if det != 0 {
		det = 1 / det
	}
	// mgl64 matrices are column-major: m[0],m[1] is the first column.
	return mgl64.Vec2{
		det * (m[3]*b[0] - m[2]*b[1]),
		det * (m[0]*b[1] - m[1]*b[0]),
	}
}

// Solve33 solves the 3x3 system m*x = b, returning zero when m is singular.
func Solve33(m mgl64.Mat3, b mgl64.Vec3) mgl64.Vec3 {
	ex, ey, ez := m.Col(0), m.Col(1), m.Col(2)
	det := ex.Dot(ey.Cross(ez))
	if det != 0 {
		det = 1 / det
	}
	return mgl64.Vec3{
		det * b.Dot(ey.Cross(ez)),
		det * ex.Dot(b.Cross(ez)),
		det * ex.Dot(ey.Cross(b)),
	}
}
