package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// RoundingRadius is the radius used when evaluating a manifold for s.
func RoundingRadius(s geom.Shape) float64 {
	if s.Kind == geom.ShapeBall {
		return s.Radius
	}
	return 0
}

// Collide computes the manifold between two shapes. Points whose separation
// is at most margin are kept, so positive margins yield speculative contacts.
func Collide(a geom.Shape, poseA geom.Pose, b geom.Shape, poseB geom.Pose, margin float64) Manifold {
	switch {
	case a.Kind == geom.ShapeBall && b.Kind == geom.ShapeBall:
		return CollideBalls(a, poseA, b, poseB, margin)
	case a.Kind == geom.ShapeCuboid && b.Kind == geom.ShapeBall:
		return CollideCuboidBall(a, poseA, b, poseB, margin)
	case a.Kind == geom.ShapeBall && b.Kind == geom.ShapeCuboid:
		return CollideCuboidBall(b, poseB, a, poseA, margin).Flip()
	default:
		return CollideCuboids(a, poseA, b, poseB, margin)
	}
}

func CollideBalls(a geom.Shape, poseA geom.Pose, b geom.Shape, poseB geom.Pose, margin float64) Manifold {
	var m Manifold
	d := poseB.Translation.Sub(poseA.Translation)
	reach := a.Radius + b.Radius + margin
	if d.LenSqr() > reach*reach {
		return m
	}
	m.Kind = Circles
	m.Count = 1
	return m
}

func CollideCuboidBall(box geom.Shape, poseA geom.Pose, ball geom.Shape, poseB geom.Pose, margin float64) Manifold {
	var m Manifold

	c := poseA.ApplyInverse(poseB.Translation)
	radius := ball.Radius + margin
	verts := box.Vertices()
	normals := box.Normals()

	normalIndex := 0
	separation := -math.MaxFloat64
	for i := range verts {
		s := normals[i].Dot(c.Sub(verts[i]))
		if s > radius {
			return m
		}
		if s > separation {
			separation = s
			normalIndex = i
		}
	}

	v1 := verts[normalIndex]
	v2 := verts[(normalIndex+1)%len(verts)]

	m.Kind = FaceA
	m.Count = 1
	m.Points[0].LocalPoint = mgl64.Vec2{}

	if separation < 1e-12 {
		// centre inside the box
		m.LocalNormal = normals[normalIndex]
		m.LocalPoint = v1.Add(v2).Mul(0.5)
		return m
	}

	u1 := c.Sub(v1).Dot(v2.Sub(v1))
	u2 := c.Sub(v2).Dot(v1.Sub(v2))
	switch {
	case u1 <= 0:
		if c.Sub(v1).LenSqr() > radius*radius {
			return Manifold{}
		}
		m.LocalNormal = c.Sub(v1).Normalize()
		m.LocalPoint = v1
	case u2 <= 0:
		if c.Sub(v2).LenSqr() > radius*radius {
			return Manifold{}
		}
		m.LocalNormal = c.Sub(v2).Normalize()
		m.LocalPoint = v2
	default:
		mid := v1.Add(v2).Mul(0.5)
		if c.Sub(mid).Dot(normals[normalIndex]) > radius {
			return Manifold{}
		}
		m.LocalNormal = normals[normalIndex]
		m.LocalPoint = mid
	}
	return m
}

// findMaxSeparation returns the face of a with the largest separation from b.
func findMaxSeparation(a geom.Shape, poseA geom.Pose, b geom.Shape, poseB geom.Pose) (int, float64) {
	na := a.Normals()
	va := a.Vertices()
	vb := b.Vertices()

	best := 0
	maxSep := -math.MaxFloat64
	for i := range na {
		// face of a expressed in b's frame
		n := poseB.Rot().ApplyInverse(poseA.Rotate(na[i]))
		v := poseB.ApplyInverse(poseA.Apply(va[i]))

		si := math.MaxFloat64
		for j := range vb {
			if s := n.Dot(vb[j].Sub(v)); s < si {
				si = s
			}
		}
		if si > maxSep {
			maxSep = si
			best = i
		}
	}
	return best, maxSep
}

type clipVertex struct {
	v  mgl64.Vec2
	id FeatureID
}

func findIncidentEdge(ref geom.Shape, poseRef geom.Pose, edge int, inc geom.Shape, poseInc geom.Pose) [2]clipVertex {
	refNormal := poseInc.Rot().ApplyInverse(poseRef.Rotate(ref.Normals()[edge]))

	normals := inc.Normals()
	verts := inc.Vertices()
	index := 0
	minDot := math.MaxFloat64
	for i := range normals {
		if d := refNormal.Dot(normals[i]); d < minDot {
			minDot = d
			index = i
		}
	}
	i2 := (index + 1) % len(verts)

	return [2]clipVertex{
		{v: poseInc.Apply(verts[index]), id: FeatureID{IndexA: uint8(edge), IndexB: uint8(index), TypeA: featureFace, TypeB: featureVertex}},
		{v: poseInc.Apply(verts[i2]), id: FeatureID{IndexA: uint8(edge), IndexB: uint8(i2), TypeA: featureFace, TypeB: featureVertex}},
	}
}

// clipSegmentToLine keeps the part of the segment with normal·v <= offset.
func clipSegmentToLine(in [2]clipVertex, normal mgl64.Vec2, offset float64, vertexA int) ([2]clipVertex, int) {
	var out [2]clipVertex
	n := 0

	d0 := normal.Dot(in[0].v) - offset
	d1 := normal.Dot(in[1].v) - offset

	if d0 <= 0 {
		out[n] = in[0]
		n++
	}
	if d1 <= 0 {
		out[n] = in[1]
		n++
	}

	if d0*d1 < 0 && n < 2 {
		t := d0 / (d0 - d1)
		out[n].v = in[0].v.Add(in[1].v.Sub(in[0].v).Mul(t))
		out[n].id = FeatureID{IndexA: uint8(vertexA), IndexB: in[0].id.IndexB, TypeA: featureVertex, TypeB: featureFace}
		n++
	}
	return out, n
}

// CollideCuboids clips the incident face of one cuboid against the reference
// face of the other (the face with the largest separation).
func CollideCuboids(a geom.Shape, poseA geom.Pose, b geom.Shape, poseB geom.Pose, margin float64) Manifold {
	var m Manifold

	edgeA, sepA := findMaxSeparation(a, poseA, b, poseB)
	if sepA > margin {
		return m
	}
	edgeB, sepB := findMaxSeparation(b, poseB, a, poseA)
	if sepB > margin {
		return m
	}

	ref, inc := a, b
	poseRef, poseInc := poseA, poseB
	edge := edgeA
	flip := false
	m.Kind = FaceA

	const tol = 0.1 * 0.005
	if sepB > sepA+tol {
		ref, inc = b, a
		poseRef, poseInc = poseB, poseA
		edge = edgeB
		flip = true
		m.Kind = FaceB
	}

	incident := findIncidentEdge(ref, poseRef, edge, inc, poseInc)

	verts := ref.Vertices()
	iv1 := edge
	iv2 := (edge + 1) % len(verts)
	v11, v12 := verts[iv1], verts[iv2]

	localTangent := v12.Sub(v11).Normalize()
	localNormal := geom.CrossVS(localTangent, 1)
	planePoint := v11.Add(v12).Mul(0.5)

	tangent := poseRef.Rotate(localTangent)
	normal := geom.CrossVS(tangent, 1)

	w11 := poseRef.Apply(v11)
	w12 := poseRef.Apply(v12)

	frontOffset := normal.Dot(w11)
	sideOffset1 := -tangent.Dot(w11)
	sideOffset2 := tangent.Dot(w12)

	clip1, n := clipSegmentToLine(incident, tangent.Mul(-1), sideOffset1, iv1)
	if n < 2 {
		return Manifold{}
	}
	clip2, n := clipSegmentToLine(clip1, tangent, sideOffset2, iv2)
	if n < 2 {
		return Manifold{}
	}

	m.LocalNormal = localNormal
	m.LocalPoint = planePoint

	count := 0
	for i := 0; i < MaxManifoldPoints; i++ {
		sep := normal.Dot(clip2[i].v) - frontOffset
		if sep > margin {
			continue
		}
		p := &m.Points[count]
		p.LocalPoint = poseInc.ApplyInverse(clip2[i].v)
		p.ID = clip2[i].id
		if flip {
			p.ID = p.ID.swapped()
		}
		count++
	}
	m.Count = count
	if count == 0 {
		return Manifold{}
	}
	return m
}
