package dynamo

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/rigidsim/internal/arena"
	"github.com/san-kum/rigidsim/internal/geom"
)

// CombineRule merges the material coefficients of two colliders. When the
// colliders disagree, the rule with the higher value wins
// (Average < Min < Multiply < Max).
type CombineRule int

const (
	CombineAverage CombineRule = iota
	CombineMin
	CombineMultiply
	CombineMax
)

var combineRuleNames = [...]string{"average", "min", "multiply", "max"}

func (r CombineRule) String() string {
	if r >= 0 && int(r) < len(combineRuleNames) {
		return combineRuleNames[r]
	}
	return fmt.Sprintf("CombineRule(%d)", int(r))
}

func ParseCombineRule(s string) (CombineRule, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range combineRuleNames {
		if n == s {
			return CombineRule(i), nil
		}
	}
	return CombineAverage, fmt.Errorf("unknown combine rule %q", s)
}

func (r CombineRule) Combine(a, b float64) float64 {
	switch r {
	case CombineMin:
		return math.Min(a, b)
	case CombineMultiply:
		return a * b
	case CombineMax:
		return math.Max(a, b)
	default:
		return (a + b) / 2
	}
}

// EffectiveRule picks the rule for a pair; override wins when set.
func EffectiveRule(a, b CombineRule, override *CombineRule) CombineRule {
	if override != nil {
		return *override
	}
	if b > a {
		return b
	}
	return a
}

type Material struct {
	Restitution     float64
	Friction        float64
	Density         float64
	RestitutionRule CombineRule
	FrictionRule    CombineRule
}

func DefaultMaterial() Material {
	return Material{Friction: 0.5, Density: 1}
}

func (m Material) Validate() error {
	for _, v := range []float64{m.Restitution, m.Friction, m.Density} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: restitution=%v friction=%v density=%v",
				ErrInvalidMaterial, m.Restitution, m.Friction, m.Density)
		}
	}
	return nil
}

// Collider is a shape with a material attached to exactly one body.
type Collider struct {
	shape     geom.Shape
	material  Material
	localPose geom.Pose
	parent    BodyHandle

	// world placement, refreshed every step
	pose geom.Pose
	aabb geom.AABB
}

type ColliderDesc struct {
	Shape     geom.Shape
	Material  Material
	LocalPose geom.Pose
}

func NewColliderDesc(shape geom.Shape) ColliderDesc {
	return ColliderDesc{Shape: shape, Material: DefaultMaterial()}
}

func (c *Collider) Shape() geom.Shape    { return c.shape }
func (c *Collider) Material() Material   { return c.material }
func (c *Collider) LocalPose() geom.Pose { return c.localPose }
func (c *Collider) Parent() BodyHandle   { return c.parent }
func (c *Collider) WorldPose() geom.Pose { return c.pose }
func (c *Collider) AABB() geom.AABB      { return c.aabb }

func (c *Collider) massProperties() geom.MassProperties {
	return c.shape.MassProperties(c.material.Density).Transformed(c.localPose)
}

// ColliderSet stores the colliders of a world.
type ColliderSet struct {
	arena *arena.Arena[Collider]
}

func newColliderSet() *ColliderSet {
	return &ColliderSet{arena: arena.New[Collider](16)}
}

func (s *ColliderSet) Get(h ColliderHandle) (Collider, bool) {
	c, ok := s.arena.Get(h.Handle)
	if !ok {
		return Collider{}, false
	}
	return *c, true
}

func (s *ColliderSet) get(h ColliderHandle) (*Collider, bool) { return s.arena.Get(h.Handle) }

func (s *ColliderSet) Contains(h ColliderHandle) bool { return s.arena.Contains(h.Handle) }
func (s *ColliderSet) Len() int                       { return s.arena.Len() }

func (s *ColliderSet) Iter(fn func(ColliderHandle, *Collider) bool) {
	s.arena.Iter(func(h arena.Handle, c *Collider) bool {
		return fn(ColliderHandle{h}, c)
	})
}

func (s *ColliderSet) Handles() []ColliderHandle {
	hs := s.arena.Handles()
	out := make([]ColliderHandle, len(hs))
	for i, h := range hs {
		out[i] = ColliderHandle{h}
	}
	return out
}
