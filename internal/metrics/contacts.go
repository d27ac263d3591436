package metrics

import (
	"math"

	"github.com/san-kum/rigidsim/internal/sim"
)

// ContactLoad is the mean summed normal impulse per frame.
type ContactLoad struct {
	name    string
	sum     float64
	samples int
}

func NewContactLoad() *ContactLoad {
	return &ContactLoad{name: "contact_load"}
}

func (c *ContactLoad) Name() string {
	return c.name
}

func (c *ContactLoad) Observe(f *sim.Frame) {
	c.sum += f.NormalImpulse
	c.samples++
}

func (c *ContactLoad) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ContactLoad) Reset() {
	c.sum = 0
	c.samples = 0
}

// Penetration is the deepest contact overlap seen in any frame after the
// first skip frames, which lets a scene settle before it is measured.
type Penetration struct {
	name    string
	skip    int
	seen    int
	deepest float64
}

func NewPenetration(skip int) *Penetration {
	return &Penetration{name: "max_penetration", skip: skip}
}

func (p *Penetration) Name() string { return p.name }

func (p *Penetration) Observe(f *sim.Frame) {
	p.seen++
	if p.seen <= p.skip {
		return
	}
	p.deepest = math.Max(p.deepest, f.MaxPenetration)
}

func (p *Penetration) Value() float64 { return p.deepest }

func (p *Penetration) Reset() {
	p.seen = 0
	p.deepest = 0
}
