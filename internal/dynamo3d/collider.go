package dynamo3d

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
)

type Collider struct {
	shape     Shape
	material  dynamo.Material
	localPose Pose
	parent    BodyHandle

	pose Pose
	aabb AABB
}

type ColliderDesc struct {
	Shape     Shape
	Material  dynamo.Material
	LocalPose Pose
}

func NewColliderDesc(s Shape) ColliderDesc {
	return ColliderDesc{Shape: s, Material: dynamo.DefaultMaterial(), LocalPose: Identity()}
}

func (c *Collider) Shape() Shape              { return c.shape }
func (c *Collider) Material() dynamo.Material { return c.material }
func (c *Collider) LocalPose() Pose           { return c.localPose }
func (c *Collider) Parent() BodyHandle        { return c.parent }
func (c *Collider) WorldPose() Pose           { return c.pose }
func (c *Collider) AABB() AABB                { return c.aabb }

// aggregateMass combines collider masses about their common centre in the
// body frame.
func aggregateMass(cs []*Collider) (float64, mgl64.Vec3, mgl64.Mat3) {
	var total float64
	var weighted mgl64.Vec3
	for _, c := range cs {
		m, _ := c.shape.massProperties(c.material.Density)
		total += m
		weighted = weighted.Add(c.localPose.Translation.Mul(m))
	}
	if !(total > 0) {
		return 0, mgl64.Vec3{}, mgl64.Mat3{}
	}
	center := weighted.Mul(1 / total)

	var inertia mgl64.Mat3
	for _, c := range cs {
		m, local := c.shape.massProperties(c.material.Density)
		r := c.localPose.Rotation.Mat4().Mat3()
		rotated := r.Mul3(local).Mul3(r.Transpose())
		d := c.localPose.Translation.Sub(center)
		shift := mgl64.Ident3().Mul(d.Dot(d)).Sub(d.OuterProd3(d)).Mul(m)
		inertia = inertia.Add(rotated).Add(shift)
	}
	return total, center, inertia
}
