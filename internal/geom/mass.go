package geom

import "github.com/go-gl/mathgl/mgl64"

// MassProperties describes mass distribution in a body's local frame.
// Inertia is taken about LocalCenter.
type MassProperties struct {
	LocalCenter mgl64.Vec2
	Mass        float64
	Inertia     float64
}

func (m MassProperties) InvMass() float64 {
	if m.Mass > 0 {
		return 1 / m.Mass
	}
	return 0
}

func (m MassProperties) InvInertia() float64 {
	if m.Inertia > 0 {
		return 1 / m.Inertia
	}
	return 0
}

// Transformed moves the properties by a local pose (rotation does not change
// the scalar 2D inertia).
func (m MassProperties) Transformed(p Pose) MassProperties {
	m.LocalCenter = p.Apply(m.LocalCenter)
	return m
}

// Aggregate combines several mass properties into one about the common centre
// of mass, using the parallel axis theorem.
func Aggregate(parts []MassProperties) MassProperties {
	var total float64
	var weighted mgl64.Vec2
	for _, p := range parts {
		total += p.Mass
		weighted = weighted.Add(p.LocalCenter.Mul(p.Mass))
	}
	if total <= 0 {
		return MassProperties{}
	}
	center := weighted.Mul(1 / total)

	var inertia float64
	for _, p := range parts {
		d := p.LocalCenter.Sub(center)
		inertia += p.Inertia + p.Mass*d.Dot(d)
	}
	return MassProperties{LocalCenter: center, Mass: total, Inertia: inertia}
}
