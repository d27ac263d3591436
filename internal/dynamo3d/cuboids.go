package dynamo3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Feature bits for cuboid pairs. Face points carry the clip vertex id in the
// low five bits and the reference face above it.
const (
	featureCuboid  = 1 << 9
	featureFlipped = 1 << 8
	featureEdge    = 1 << 10

	// a later axis replaces the best one only when it wins by this margin
	relativeTol = 0.98
	absoluteTol = 0.001
)

// box is a cuboid in world space.
type box struct {
	center mgl64.Vec3
	axes   [3]mgl64.Vec3
	half   mgl64.Vec3
}

func newBox(h mgl64.Vec3, pose Pose) box {
	return box{
		center: pose.Translation,
		axes: [3]mgl64.Vec3{
			pose.Rotation.Rotate(mgl64.Vec3{1, 0, 0}),
			pose.Rotation.Rotate(mgl64.Vec3{0, 1, 0}),
			pose.Rotation.Rotate(mgl64.Vec3{0, 0, 1}),
		},
		half: h,
	}
}

// extent is the half length of the box projected on unit axis n.
func (b *box) extent(n mgl64.Vec3) float64 {
	return b.half[0]*math.Abs(b.axes[0].Dot(n)) +
		b.half[1]*math.Abs(b.axes[1].Dot(n)) +
		b.half[2]*math.Abs(b.axes[2].Dot(n))
}

// collideCuboids tests the fifteen separating axes of two cuboids. A face
// axis yields up to four points by clipping the incident face against the
// reference face; an edge axis yields the closest points of the two edges.
func collideCuboids(ha mgl64.Vec3, pa Pose, hb mgl64.Vec3, pb Pose, margin float64) manifold {
	a, b := newBox(ha, pa), newBox(hb, pb)
	d := b.center.Sub(a.center)

	// separation along n, with n turned to point from a to b
	test := func(n mgl64.Vec3) (float64, mgl64.Vec3) {
		dn := d.Dot(n)
		if dn < 0 {
			n, dn = n.Mul(-1), -dn
		}
		return dn - a.extent(n) - b.extent(n), n
	}

	faceA, faceB := 0, 0
	sepA, sepB := math.Inf(-1), math.Inf(-1)
	var nA, nB mgl64.Vec3
	for i := 0; i < 3; i++ {
		s, n := test(a.axes[i])
		if s > margin {
			return manifold{}
		}
		if s > sepA {
			sepA, nA, faceA = s, n, i
		}
		s, n = test(b.axes[i])
		if s > margin {
			return manifold{}
		}
		if s > sepB {
			sepB, nB, faceB = s, n, i
		}
	}

	edgeA, edgeB := -1, -1
	sepE := math.Inf(-1)
	var nE mgl64.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			l := a.axes[i].Cross(b.axes[j])
			ll := l.Len()
			if ll < 1e-6 {
				continue
			}
			s, n := test(l.Mul(1 / ll))
			if s > margin {
				return manifold{}
			}
			if s > sepE {
				sepE, nE, edgeA, edgeB = s, n, i, j
			}
		}
	}

	sepF := math.Max(sepA, sepB)
	switch {
	case edgeA >= 0 && sepE > relativeTol*sepF+absoluteTol:
		return edgeContact(&a, &b, edgeA, edgeB, nE, sepE)
	case sepB > relativeTol*sepA+absoluteTol:
		m := faceContact(&b, &a, faceB, nB.Mul(-1), margin)
		for i := range m.points[:m.count] {
			m.points[i].normal = nB
			m.points[i].feature |= featureFlipped
		}
		return m
	}
	return faceContact(&a, &b, faceA, nA, margin)
}

type clipVertex struct {
	p  mgl64.Vec3
	id uint32
}

// clip keeps the part of poly where p·n <= offset. New vertices are named
// after the clip plane and the edge they cut.
func clip(poly []clipVertex, n mgl64.Vec3, offset float64, plane uint32) []clipVertex {
	out := make([]clipVertex, 0, len(poly)+1)
	for i, v := range poly {
		next := poly[(i+1)%len(poly)]
		dv, dn := v.p.Dot(n)-offset, next.p.Dot(n)-offset
		if dv <= 0 {
			out = append(out, v)
		}
		if (dv < 0 && dn > 0) || (dv > 0 && dn < 0) {
			t := dv / (dv - dn)
			out = append(out, clipVertex{
				p:  v.p.Add(next.p.Sub(v.p).Mul(t)),
				id: 4 + plane*4 + (v.id & 3),
			})
		}
	}
	return out
}

// faceContact clips the face of inc most opposed to n against the side
// planes of the ref face whose outward normal is n. Normals point from ref
// to inc.
func faceContact(ref, inc *box, axis int, n mgl64.Vec3, margin float64) manifold {
	face := uint32(axis * 2)
	if n.Dot(ref.axes[axis]) < 0 {
		face++
	}
	refPoint := ref.center.Add(n.Mul(ref.half[axis]))

	in, best := 0, -1.0
	for i := 0; i < 3; i++ {
		if d := math.Abs(inc.axes[i].Dot(n)); d > best {
			in, best = i, d
		}
	}
	inNormal := inc.axes[in]
	if inNormal.Dot(n) > 0 {
		inNormal = inNormal.Mul(-1)
	}
	fc := inc.center.Add(inNormal.Mul(inc.half[in]))
	iu := inc.axes[(in+1)%3].Mul(inc.half[(in+1)%3])
	iv := inc.axes[(in+2)%3].Mul(inc.half[(in+2)%3])
	poly := []clipVertex{
		{fc.Add(iu).Add(iv), 0},
		{fc.Sub(iu).Add(iv), 1},
		{fc.Sub(iu).Sub(iv), 2},
		{fc.Add(iu).Sub(iv), 3},
	}

	plane := uint32(0)
	for _, k := range [2]int{(axis + 1) % 3, (axis + 2) % 3} {
		side := ref.axes[k]
		c := side.Dot(ref.center)
		poly = clip(poly, side, c+ref.half[k], plane)
		poly = clip(poly, side.Mul(-1), ref.half[k]-c, plane+1)
		plane += 2
		if len(poly) == 0 {
			return manifold{}
		}
	}

	cand := make([]contact, 0, len(poly))
	for _, v := range poly {
		sep := v.p.Sub(refPoint).Dot(n)
		if sep > margin {
			continue
		}
		cand = append(cand, contact{
			normal:     n,
			point:      v.p.Sub(n.Mul(0.5 * sep)),
			separation: sep,
			feature:    featureCuboid | face<<5 | v.id,
		})
	}
	return reduce(cand, n)
}

// reduce keeps at most four points: the deepest, the one farthest from it
// and the two spanning the widest area on either side of that pair.
func reduce(cand []contact, n mgl64.Vec3) manifold {
	var m manifold
	if len(cand) <= len(m.points) {
		for _, c := range cand {
			m.add(c)
		}
		return m
	}

	i0 := 0
	for i, c := range cand {
		if c.separation < cand[i0].separation {
			i0 = i
		}
	}
	p0 := cand[i0].point
	i1, far := -1, -1.0
	for i, c := range cand {
		if d := c.point.Sub(p0).LenSqr(); i != i0 && d > far {
			i1, far = i, d
		}
	}
	e := cand[i1].point.Sub(p0)
	i2, i3 := -1, -1
	hi, lo := 0.0, 0.0
	for i, c := range cand {
		if i == i0 || i == i1 {
			continue
		}
		area := e.Cross(c.point.Sub(p0)).Dot(n)
		if area > hi {
			i2, hi = i, area
		}
		if area < lo {
			i3, lo = i, area
		}
	}
	for _, i := range [4]int{i0, i1, i2, i3} {
		if i >= 0 {
			m.add(cand[i])
		}
	}
	return m
}

// edgeContact joins the edge of a along axis i and the edge of b along axis
// j that face each other across n.
func edgeContact(a, b *box, i, j int, n mgl64.Vec3, sep float64) manifold {
	pa, pb := a.center, b.center
	for k := 0; k < 3; k++ {
		if k != i {
			pa = pa.Add(a.axes[k].Mul(math.Copysign(a.half[k], a.axes[k].Dot(n))))
		}
		if k != j {
			pb = pb.Sub(b.axes[k].Mul(math.Copysign(b.half[k], b.axes[k].Dot(n))))
		}
	}

	da, db := a.axes[i], b.axes[j]
	r := pa.Sub(pb)
	k, c, f := da.Dot(db), da.Dot(r), db.Dot(r)
	s := 0.0
	if denom := 1 - k*k; denom > 1e-12 {
		s = (k*f - c) / denom
	}
	s = max(-a.half[i], min(s, a.half[i]))
	t := max(-b.half[j], min(k*s+f, b.half[j]))
	s = max(-a.half[i], min(k*t-c, a.half[i]))

	qa, qb := pa.Add(da.Mul(s)), pb.Add(db.Mul(t))
	var m manifold
	m.add(contact{
		normal:     n,
		point:      qa.Add(qb).Mul(0.5),
		separation: sep,
		feature:    featureCuboid | featureEdge | uint32(i*3+j),
	})
	return m
}
