package dynamo3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// contact is one manifold point. Normal points from A to B and Point lies
// midway between the two surfaces.
type contact struct {
	normal     mgl64.Vec3
	point      mgl64.Vec3
	separation float64
	feature    uint32
}

// manifold holds up to four points sharing a pair.
type manifold struct {
	points [4]contact
	count  int
}

func (m *manifold) add(c contact) {
	if m.count < len(m.points) {
		m.points[m.count] = c
		m.count++
	}
}

// match returns the point carrying feature. A single-point manifold always
// matches.
func (m *manifold) match(feature uint32) (contact, bool) {
	for _, c := range m.points[:m.count] {
		if c.feature == feature {
			return c, true
		}
	}
	if m.count == 1 {
		return m.points[0], true
	}
	return contact{}, false
}

func single(c contact, ok bool) manifold {
	var m manifold
	if ok {
		m.add(c)
	}
	return m
}

// collide returns the points where two shapes are at most margin apart.
func collide(sa Shape, pa Pose, sb Shape, pb Pose, margin float64) manifold {
	switch {
	case sa.Kind == ShapeBall && sb.Kind == ShapeBall:
		return single(collideBalls(sa.Radius, pa.Translation, sb.Radius, pb.Translation, margin))
	case sa.Kind == ShapeCuboid && sb.Kind == ShapeBall:
		return single(collideCuboidBall(sa.HalfExtents, pa, sb.Radius, pb.Translation, margin))
	case sa.Kind == ShapeBall && sb.Kind == ShapeCuboid:
		c, ok := collideCuboidBall(sb.HalfExtents, pb, sa.Radius, pa.Translation, margin)
		c.normal = c.normal.Mul(-1)
		return single(c, ok)
	}
	return collideCuboids(sa.HalfExtents, pa, sb.HalfExtents, pb, margin)
}

func collideBalls(ra float64, ca mgl64.Vec3, rb float64, cb mgl64.Vec3, margin float64) (contact, bool) {
	d := cb.Sub(ca)
	dist := d.Len()
	sep := dist - ra - rb
	if sep > margin {
		return contact{}, false
	}
	n := mgl64.Vec3{1, 0, 0}
	if dist > 1e-12 {
		n = d.Mul(1 / dist)
	}
	return contact{
		normal:     n,
		point:      ca.Add(n.Mul(ra + 0.5*sep)),
		separation: sep,
	}, true
}

// collideCuboidBall finds the closest cuboid point to the ball centre. A
// centre inside the cuboid is pushed out through the nearest face. The
// feature encodes the clamped faces, or the exit face for a deep centre.
func collideCuboidBall(h mgl64.Vec3, pose Pose, r float64, center mgl64.Vec3, margin float64) (contact, bool) {
	local := pose.ApplyInverse(center)

	var closest mgl64.Vec3
	inside := true
	for i := 0; i < 3; i++ {
		closest[i] = math.Max(-h[i], math.Min(local[i], h[i]))
		if closest[i] != local[i] {
			inside = false
		}
	}

	var n mgl64.Vec3
	var sep float64
	var feature uint32
	if inside {
		axis, depth := 0, math.Inf(1)
		for i := 0; i < 3; i++ {
			if d := h[i] - math.Abs(local[i]); d < depth {
				axis, depth = i, d
			}
		}
		side := 1.0
		if local[axis] < 0 {
			side = -1
		}
		n[axis] = side
		closest[axis] = side * h[axis]
		sep = -depth - r
		feature = 1<<6 | uint32(axis*2)
		if side < 0 {
			feature++
		}
	} else {
		d := local.Sub(closest)
		dist := d.Len()
		n = d.Mul(1 / dist)
		sep = dist - r
		for i := 0; i < 3; i++ {
			if closest[i] == h[i] {
				feature |= 1 << (2 * i)
			} else if closest[i] == -h[i] {
				feature |= 2 << (2 * i)
			}
		}
	}
	if sep > margin {
		return contact{}, false
	}

	wn := pose.Rotation.Rotate(n)
	surface := pose.Apply(closest)
	return contact{
		normal:     wn,
		point:      surface.Add(wn.Mul(0.5 * sep)),
		separation: sep,
		feature:    feature,
	}, true
}
