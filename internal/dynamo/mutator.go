package dynamo

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// Hook runs at the start of each step with the simulation time before the
// step and a mutator for queuing body changes.
type Hook func(elapsed float64, m *BodyMutator)

type command struct {
	body  BodyHandle
	apply func(b *RigidBody) error
}

// BodyMutator queues body changes requested by hooks. The queue is applied
// in order once every hook has returned; a command that fails is reported
// in the step diagnostics and the remaining commands still run.
type BodyMutator struct {
	bodies *BodySet
	queue  []command
}

// Body returns a snapshot of a body as it was before this step.
func (m *BodyMutator) Body(h BodyHandle) (RigidBody, bool) {
	return m.bodies.Get(h)
}

func (m *BodyMutator) Bodies() []BodyHandle { return m.bodies.Handles() }

func (m *BodyMutator) push(h BodyHandle, fn func(b *RigidBody) error) {
	m.queue = append(m.queue, command{body: h, apply: fn})
}

func (m *BodyMutator) SetKinematicVelocityTarget(h BodyHandle, v Velocity) {
	m.push(h, func(b *RigidBody) error { return b.setKinematicVelocity(v) })
}

func (m *BodyMutator) SetKinematicPositionTarget(h BodyHandle, p geom.Pose) {
	m.push(h, func(b *RigidBody) error { return b.setKinematicPose(p) })
}

func (m *BodyMutator) SetLinearVelocity(h BodyHandle, v mgl64.Vec2) {
	m.push(h, func(b *RigidBody) error { b.SetLinearVelocity(v); return nil })
}

func (m *BodyMutator) SetAngularVelocity(h BodyHandle, w float64) {
	m.push(h, func(b *RigidBody) error { b.SetAngularVelocity(w); return nil })
}

func (m *BodyMutator) AddForce(h BodyHandle, f mgl64.Vec2) {
	m.push(h, func(b *RigidBody) error { b.AddForce(f); return nil })
}

func (m *BodyMutator) AddTorque(h BodyHandle, t float64) {
	m.push(h, func(b *RigidBody) error { b.AddTorque(t); return nil })
}

func (m *BodyMutator) ApplyImpulse(h BodyHandle, impulse mgl64.Vec2) {
	m.push(h, func(b *RigidBody) error { b.ApplyImpulse(impulse); return nil })
}

func (m *BodyMutator) WakeUp(h BodyHandle) {
	m.push(h, func(b *RigidBody) error { b.WakeUp(); return nil })
}

// Len returns the number of queued commands.
func (m *BodyMutator) Len() int { return len(m.queue) }

func (m *BodyMutator) apply() []error {
	var errs []error
	for _, c := range m.queue {
		b, ok := m.bodies.GetMut(c.body)
		if !ok {
			errs = append(errs, entityErr("body", c.body, ErrInvalidHandle))
			continue
		}
		if err := c.apply(b); err != nil {
			errs = append(errs, entityErr("body", c.body, err))
		}
	}
	m.queue = m.queue[:0]
	return errs
}
