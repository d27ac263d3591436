package controllers

import (
	"github.com/san-kum/rigidsim/internal/dynamo"
)

// PID is a single-axis controller. The derivative term acts on the measured
// rate rather than on the error, so setpoint changes do not kick.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   float64
	integral float64
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
	}
}

func (p *PID) Update(measured, rate, dt float64) float64 {
	err := p.Target - measured
	if dt > 0 {
		p.integral += err * dt
	}
	return p.Kp*err + p.Ki*p.integral - p.Kd*rate
}

func (p *PID) Reset() { p.integral = 0 }

// AngleHold applies torques that hold every target body at a fixed angle.
type AngleHold struct {
	targets []dynamo.BodyHandle
	pids    []*PID
	dt      float64
}

func NewAngleHold(targets []dynamo.BodyHandle, kp, ki, kd, angle, dt float64) *AngleHold {
	a := &AngleHold{targets: targets, dt: dt}
	for range targets {
		a.pids = append(a.pids, NewPID(kp, ki, kd, angle))
	}
	return a
}

func (a *AngleHold) Drive(elapsed float64, m *dynamo.BodyMutator) {
	for i, h := range a.targets {
		b, ok := m.Body(h)
		if !ok || !b.IsDynamic() {
			continue
		}
		u := a.pids[i].Update(b.Pose().Rotation, b.AngularVelocity(), a.dt)
		m.AddTorque(h, u)
	}
}
