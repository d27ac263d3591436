package controllers

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/geom"
)

// Oscillator drives kinematic bodies with the velocity
//
//	v(t) = (Ax·sin(fx·t), Ay·sin(fy·t))
//
// Velocity-based bodies get v as their target; position-based bodies get
// their current pose advanced by v·dt.
type Oscillator struct {
	targets   []dynamo.BodyHandle
	amplitude mgl64.Vec2
	frequency mgl64.Vec2
	dt        float64
}

func NewOscillator(targets []dynamo.BodyHandle, amplitude, frequency mgl64.Vec2, dt float64) *Oscillator {
	return &Oscillator{targets: targets, amplitude: amplitude, frequency: frequency, dt: dt}
}

func (o *Oscillator) Velocity(t float64) mgl64.Vec2 {
	return mgl64.Vec2{
		o.amplitude[0] * math.Sin(o.frequency[0]*t),
		o.amplitude[1] * math.Sin(o.frequency[1]*t),
	}
}

func (o *Oscillator) Drive(elapsed float64, m *dynamo.BodyMutator) {
	v := o.Velocity(elapsed)
	for _, h := range o.targets {
		b, ok := m.Body(h)
		if !ok {
			continue
		}
		switch b.BodyType() {
		case dynamo.KinematicVelocityBased:
			m.SetKinematicVelocityTarget(h, dynamo.Velocity{Linear: v})
		case dynamo.KinematicPositionBased:
			p := b.Pose()
			next := geom.Pose{Translation: p.Translation.Add(v.Mul(o.dt)), Rotation: p.Rotation}
			m.SetKinematicPositionTarget(h, next)
		}
	}
}
