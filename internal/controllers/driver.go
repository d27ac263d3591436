// Package controllers holds the scripted drivers that run as pre-step hooks:
// kinematic oscillators and PID torque controllers.
package controllers

import (
	"github.com/san-kum/rigidsim/internal/dynamo"
)

// Driver queues body commands before every step. Drive has the signature of
// dynamo.Hook, so a driver is installed with w.AddHook(d.Drive).
type Driver interface {
	Drive(elapsed float64, m *dynamo.BodyMutator)
}

type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Drive(elapsed float64, m *dynamo.BodyMutator) {}
