package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/dynamo3d"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/geom"
)

const circleSegments = 20

// Outline returns the collider outlines of a scene at its current poses.
func Outline(scene experiment.Scene) []Segment {
	switch s := scene.(type) {
	case *experiment.Scene2D:
		return outline2D(s.World)
	case *experiment.Scene3D:
		return outline3D(s.World)
	}
	return nil
}

func outline2D(w *dynamo.World) []Segment {
	var segs []Segment
	w.Colliders().Iter(func(_ dynamo.ColliderHandle, c *dynamo.Collider) bool {
		b, err := w.Body(c.Parent())
		if err != nil {
			return true
		}
		pose := b.Pose().Mul(c.LocalPose())
		segs = appendShape2D(segs, c.Shape(), pose)
		return true
	})
	return segs
}

func lift(v mgl64.Vec2) mgl64.Vec3 { return mgl64.Vec3{v[0], v[1], 0} }

func appendShape2D(segs []Segment, s geom.Shape, pose geom.Pose) []Segment {
	switch s.Kind {
	case geom.ShapeBall:
		var prev mgl64.Vec2
		for i := 0; i <= circleSegments; i++ {
			a := 2 * math.Pi * float64(i) / circleSegments
			p := pose.Apply(mgl64.Vec2{s.Radius * math.Cos(a), s.Radius * math.Sin(a)})
			if i > 0 {
				segs = append(segs, Segment{lift(prev), lift(p)})
			}
			prev = p
		}
		// Spoke so rotation is visible.
		segs = append(segs, Segment{lift(pose.Translation), lift(pose.Apply(mgl64.Vec2{s.Radius, 0}))})
	default:
		vs := s.Vertices()
		for i := range vs {
			a, b := pose.Apply(vs[i]), pose.Apply(vs[(i+1)%len(vs)])
			segs = append(segs, Segment{lift(a), lift(b)})
		}
	}
	return segs
}

func outline3D(w *dynamo3d.World) []Segment {
	var segs []Segment
	for _, h := range w.Bodies() {
		b, err := w.Body(h)
		if err != nil {
			continue
		}
		for _, ch := range b.Colliders() {
			c, err := w.Collider(ch)
			if err != nil {
				continue
			}
			segs = appendShape3D(segs, c.Shape(), b.Pose().Mul(c.LocalPose()))
		}
	}
	return segs
}

var cubeEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func appendShape3D(segs []Segment, s dynamo3d.Shape, pose dynamo3d.Pose) []Segment {
	if s.Kind == dynamo3d.ShapeBall {
		r := s.Radius
		// One great circle per body axis.
		for axis := 0; axis < 3; axis++ {
			var prev mgl64.Vec3
			for i := 0; i <= circleSegments; i++ {
				a := 2 * math.Pi * float64(i) / circleSegments
				u, v := r*math.Cos(a), r*math.Sin(a)
				var local mgl64.Vec3
				switch axis {
				case 0:
					local = mgl64.Vec3{u, v, 0}
				case 1:
					local = mgl64.Vec3{u, 0, v}
				default:
					local = mgl64.Vec3{0, u, v}
				}
				p := pose.Apply(local)
				if i > 0 {
					segs = append(segs, Segment{prev, p})
				}
				prev = p
			}
		}
		return segs
	}

	h := s.HalfExtents
	var corners [8]mgl64.Vec3
	for i := range corners {
		sx, sy := -1.0, -1.0
		if i&1 != i>>1&1 {
			sx = 1
		}
		if i&2 != 0 {
			sy = 1
		}
		sz := -1.0
		if i >= 4 {
			sz = 1
		}
		corners[i] = pose.Apply(mgl64.Vec3{sx * h[0], sy * h[1], sz * h[2]})
	}
	for _, e := range cubeEdges {
		segs = append(segs, Segment{corners[e[0]], corners[e[1]]})
	}
	return segs
}
