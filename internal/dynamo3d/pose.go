package dynamo3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a rigid transform with a unit quaternion rotation.
type Pose struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
}

func Identity() Pose { return Pose{Rotation: mgl64.QuatIdent()} }

func NewPose(t mgl64.Vec3, q mgl64.Quat) Pose { return Pose{Translation: t, Rotation: q} }

func Translation(x, y, z float64) Pose { return NewPose(mgl64.Vec3{x, y, z}, mgl64.QuatIdent()) }

func (p Pose) Apply(v mgl64.Vec3) mgl64.Vec3 {
	return p.Rotation.Rotate(v).Add(p.Translation)
}

func (p Pose) ApplyInverse(v mgl64.Vec3) mgl64.Vec3 {
	return p.Rotation.Inverse().Rotate(v.Sub(p.Translation))
}

// Mul returns p∘o: o applied first.
func (p Pose) Mul(o Pose) Pose {
	return Pose{Translation: p.Apply(o.Translation), Rotation: p.Rotation.Mul(o.Rotation)}
}

// normalized fixes a zero or drifting quaternion.
func (p Pose) normalized() Pose {
	if p.Rotation.Len() == 0 {
		p.Rotation = mgl64.QuatIdent()
		return p
	}
	p.Rotation = p.Rotation.Normalize()
	return p
}

func finite3(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (p Pose) finite() bool {
	q := p.Rotation
	return finite3(p.Translation) && finite3(q.V) && !math.IsNaN(q.W) && !math.IsInf(q.W, 0)
}
