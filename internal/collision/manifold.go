// Package collision finds candidate collider pairs and computes contact
// manifolds between 2D shapes.
package collision

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// MaxManifoldPoints is the largest number of points a 2D manifold holds.
const MaxManifoldPoints = 2

type featureType uint8

const (
	featureVertex featureType = iota
	featureFace
)

// FeatureID names the pair of shape features that produced a contact point.
// It is stable while the same features stay in contact and keys warm starting.
type FeatureID struct {
	IndexA, IndexB uint8
	TypeA, TypeB   featureType
}

func (f FeatureID) Key() uint32 {
	return uint32(f.IndexA) | uint32(f.IndexB)<<8 | uint32(f.TypeA)<<16 | uint32(f.TypeB)<<24
}

func (f FeatureID) swapped() FeatureID {
	return FeatureID{IndexA: f.IndexB, IndexB: f.IndexA, TypeA: f.TypeB, TypeB: f.TypeA}
}

// ManifoldKind tells how to interpret the local data of a Manifold.
type ManifoldKind int

const (
	// Circles: LocalPoint is the centre of A, Points[0].LocalPoint the centre of B.
	Circles ManifoldKind = iota
	// FaceA: LocalNormal/LocalPoint describe a face of A; point locals are in B.
	FaceA
	// FaceB: LocalNormal/LocalPoint describe a face of B; point locals are in A.
	FaceB
)

type ManifoldPoint struct {
	LocalPoint mgl64.Vec2
	ID         FeatureID
}

// Manifold stores contact geometry in shape-local frames so it can be
// re-evaluated as the bodies move during position correction.
type Manifold struct {
	Kind        ManifoldKind
	LocalNormal mgl64.Vec2
	LocalPoint  mgl64.Vec2
	Points      [MaxManifoldPoints]ManifoldPoint
	Count       int
}

// Flip swaps the roles of A and B.
func (m Manifold) Flip() Manifold {
	switch m.Kind {
	case Circles:
		m.LocalPoint, m.Points[0].LocalPoint = m.Points[0].LocalPoint, m.LocalPoint
	case FaceA:
		m.Kind = FaceB
	case FaceB:
		m.Kind = FaceA
	}
	for i := 0; i < m.Count; i++ {
		m.Points[i].ID = m.Points[i].ID.swapped()
	}
	return m
}

// WorldManifold is a manifold evaluated at concrete poses. Normal points from A to B.
type WorldManifold struct {
	Normal      mgl64.Vec2
	Points      [MaxManifoldPoints]mgl64.Vec2
	Separations [MaxManifoldPoints]float64
	Count       int
}

// Evaluate places the manifold at the given shape poses. radiusA and radiusB
// are the rounding radii of the shapes (ball radius, zero for cuboids).
func (m *Manifold) Evaluate(poseA geom.Pose, radiusA float64, poseB geom.Pose, radiusB float64) WorldManifold {
	wm := WorldManifold{Count: m.Count}
	if m.Count == 0 {
		return wm
	}

	switch m.Kind {
	case Circles:
		pA := poseA.Apply(m.LocalPoint)
		pB := poseB.Apply(m.Points[0].LocalPoint)
		normal := mgl64.Vec2{1, 0}
		if d := pB.Sub(pA); d.LenSqr() > 1e-24 {
			normal = d.Normalize()
		}
		cA := pA.Add(normal.Mul(radiusA))
		cB := pB.Sub(normal.Mul(radiusB))
		wm.Normal = normal
		wm.Points[0] = cA.Add(cB).Mul(0.5)
		wm.Separations[0] = cB.Sub(cA).Dot(normal)

	case FaceA:
		normal := poseA.Rotate(m.LocalNormal)
		plane := poseA.Apply(m.LocalPoint)
		for i := 0; i < m.Count; i++ {
			clip := poseB.Apply(m.Points[i].LocalPoint)
			cA := clip.Add(normal.Mul(radiusA - clip.Sub(plane).Dot(normal)))
			cB := clip.Sub(normal.Mul(radiusB))
			wm.Points[i] = cA.Add(cB).Mul(0.5)
			wm.Separations[i] = cB.Sub(cA).Dot(normal)
		}
		wm.Normal = normal

	case FaceB:
		normal := poseB.Rotate(m.LocalNormal)
		plane := poseB.Apply(m.LocalPoint)
		for i := 0; i < m.Count; i++ {
			clip := poseA.Apply(m.Points[i].LocalPoint)
			cB := clip.Add(normal.Mul(radiusB - clip.Sub(plane).Dot(normal)))
			cA := clip.Sub(normal.Mul(radiusA))
			wm.Points[i] = cA.Add(cB).Mul(0.5)
			wm.Separations[i] = cA.Sub(cB).Dot(normal)
		}
		wm.Normal = normal.Mul(-1)
	}
	return wm
}

// PairKey identifies an unordered collider pair independent of detection order.
type PairKey struct {
	A, B uint64
}

func NewPairKey(a, b uint64) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}
