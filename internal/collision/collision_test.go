package collision

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

const tol = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < tol }

func TestCollideBalls(t *testing.T) {
	a, b := geom.Ball(0.5), geom.Ball(0.5)
	poseA := geom.NewPose(0, 0, 0)

	tests := []struct {
		name   string
		x      float64
		margin float64
		count  int
		sep    float64
	}{
		{"overlapping", 0.9, 0, 1, -0.1},
		{"touching", 1.0, 0, 1, 0},
		{"outside margin", 1.2, 0.1, 0, 0},
		{"speculative", 1.2, 0.3, 1, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poseB := geom.NewPose(tt.x, 0, 0)
			m := Collide(a, poseA, b, poseB, tt.margin)
			if m.Count != tt.count {
				t.Fatalf("expected %d points, got %d", tt.count, m.Count)
			}
			if m.Count == 0 {
				return
			}
			wm := m.Evaluate(poseA, a.Radius, poseB, b.Radius)
			if !near(wm.Normal[0], 1) || !near(wm.Normal[1], 0) {
				t.Errorf("expected normal (1,0), got %v", wm.Normal)
			}
			if !near(wm.Separations[0], tt.sep) {
				t.Errorf("expected separation %v, got %v", tt.sep, wm.Separations[0])
			}
		})
	}
}

func TestCollideCuboidBall(t *testing.T) {
	box := geom.Cuboid(1, 1)
	ball := geom.Ball(0.5)
	poseBox := geom.NewPose(0, 0, 0)
	poseBall := geom.NewPose(0, 1.4, 0)

	m := Collide(box, poseBox, ball, poseBall, 0)
	if m.Kind != FaceA || m.Count != 1 {
		t.Fatalf("expected FaceA with 1 point, got kind %v count %d", m.Kind, m.Count)
	}
	wm := m.Evaluate(poseBox, 0, poseBall, ball.Radius)
	if !near(wm.Normal[1], 1) {
		t.Errorf("expected normal (0,1), got %v", wm.Normal)
	}
	if !near(wm.Separations[0], -0.1) {
		t.Errorf("expected separation -0.1, got %v", wm.Separations[0])
	}
	if !near(wm.Points[0][1], 0.95) {
		t.Errorf("expected contact at y=0.95, got %v", wm.Points[0])
	}
}

func TestCollideBallCuboidFlipped(t *testing.T) {
	box := geom.Cuboid(1, 1)
	ball := geom.Ball(0.5)
	poseBall := geom.NewPose(0, 1.4, 0)
	poseBox := geom.NewPose(0, 0, 0)

	m := Collide(ball, poseBall, box, poseBox, 0)
	if m.Kind != FaceB || m.Count != 1 {
		t.Fatalf("expected FaceB with 1 point, got kind %v count %d", m.Kind, m.Count)
	}
	wm := m.Evaluate(poseBall, ball.Radius, poseBox, 0)
	if !near(wm.Normal[1], -1) {
		t.Errorf("expected normal pointing from ball to box, got %v", wm.Normal)
	}
	if !near(wm.Separations[0], -0.1) {
		t.Errorf("expected separation -0.1, got %v", wm.Separations[0])
	}
}

func TestCollideBallCuboidCorner(t *testing.T) {
	box := geom.Cuboid(1, 1)
	ball := geom.Ball(0.5)
	poseBox := geom.NewPose(0, 0, 0)

	d := 0.4 / math.Sqrt2
	poseBall := geom.NewPose(1+d, 1+d, 0)

	m := Collide(box, poseBox, ball, poseBall, 0)
	if m.Count != 1 {
		t.Fatalf("expected corner contact, got %d points", m.Count)
	}
	wm := m.Evaluate(poseBox, 0, poseBall, ball.Radius)
	if !near(wm.Separations[0], -0.1) {
		t.Errorf("expected separation -0.1, got %v", wm.Separations[0])
	}
	if !near(wm.Normal[0], wm.Normal[1]) {
		t.Errorf("expected diagonal normal, got %v", wm.Normal)
	}

	far := geom.NewPose(1.5, 1.5, 0)
	if m := Collide(box, poseBox, ball, far, 0); m.Count != 0 {
		t.Errorf("expected no contact past the corner, got %d", m.Count)
	}
}

func TestCollideCuboidsStacked(t *testing.T) {
	ground := geom.Cuboid(1, 1)
	box := geom.Cuboid(0.5, 0.5)
	poseA := geom.NewPose(0, 0, 0)
	poseB := geom.NewPose(0, 1.4, 0)

	m := Collide(ground, poseA, box, poseB, 0)
	if m.Count != 2 {
		t.Fatalf("expected 2 points, got %d", m.Count)
	}
	wm := m.Evaluate(poseA, 0, poseB, 0)
	if !near(wm.Normal[0], 0) || !near(wm.Normal[1], 1) {
		t.Errorf("expected normal (0,1), got %v", wm.Normal)
	}
	for i := 0; i < wm.Count; i++ {
		if !near(wm.Separations[i], -0.1) {
			t.Errorf("point %d: expected separation -0.1, got %v", i, wm.Separations[i])
		}
	}
	if m.Points[0].ID.Key() == m.Points[1].ID.Key() {
		t.Error("expected distinct feature ids")
	}
}

func TestCollideCuboidsFeatureIDsStable(t *testing.T) {
	ground := geom.Cuboid(1, 1)
	box := geom.Cuboid(0.5, 0.5)
	poseA := geom.NewPose(0, 0, 0)

	m1 := Collide(ground, poseA, box, geom.NewPose(0, 1.45, 0), 0)
	m2 := Collide(ground, poseA, box, geom.NewPose(0.05, 1.46, 0), 0)
	if m1.Count != 2 || m2.Count != 2 {
		t.Fatalf("expected 2 points each, got %d and %d", m1.Count, m2.Count)
	}
	for i := 0; i < 2; i++ {
		if m1.Points[i].ID != m2.Points[i].ID {
			t.Errorf("point %d: feature id changed from %v to %v", i, m1.Points[i].ID, m2.Points[i].ID)
		}
	}
}

func TestCollideCuboidsSpeculative(t *testing.T) {
	a := geom.Cuboid(0.5, 0.5)
	b := geom.Cuboid(0.5, 0.5)
	poseA := geom.NewPose(0, 0, 0)
	poseB := geom.NewPose(0, 1.05, 0)

	if m := Collide(a, poseA, b, poseB, 0); m.Count != 0 {
		t.Fatalf("expected no contact without margin, got %d", m.Count)
	}
	m := Collide(a, poseA, b, poseB, 0.1)
	if m.Count != 2 {
		t.Fatalf("expected 2 speculative points, got %d", m.Count)
	}
	wm := m.Evaluate(poseA, 0, poseB, 0)
	for i := 0; i < wm.Count; i++ {
		if math.Abs(wm.Separations[i]-0.05) > 1e-9 {
			t.Errorf("expected separation 0.05, got %v", wm.Separations[i])
		}
	}
}

func TestCollideRotatedCuboidCorner(t *testing.T) {
	ground := geom.Cuboid(5, 0.5)
	box := geom.Cuboid(0.5, 0.5)
	poseA := geom.NewPose(0, 0, 0)
	// corner dips 0.05 below the ground top
	h := 0.5*math.Sqrt2 + 0.5 - 0.05
	poseB := geom.NewPose(0, h, math.Pi/4)

	m := Collide(ground, poseA, box, poseB, 0)
	if m.Count < 1 {
		t.Fatal("expected corner contact")
	}
	wm := m.Evaluate(poseA, 0, poseB, 0)
	if wm.Normal[1] < 0.99 {
		t.Errorf("expected upward normal, got %v", wm.Normal)
	}
	minSep := math.Inf(1)
	for i := 0; i < wm.Count; i++ {
		minSep = math.Min(minSep, wm.Separations[i])
	}
	if math.Abs(minSep+0.05) > 1e-6 {
		t.Errorf("expected deepest separation -0.05, got %v", minSep)
	}
}

func TestPairKeySymmetric(t *testing.T) {
	if NewPairKey(3, 7) != NewPairKey(7, 3) {
		t.Error("expected pair key to ignore order")
	}
	if !NewPairKey(1, 9).Less(NewPairKey(2, 3)) {
		t.Error("expected (1,9) < (2,3)")
	}
}

func TestSweepAndPrune(t *testing.T) {
	box := func(x0, x1 float64) geom.AABB {
		return geom.AABB{Min: mgl64.Vec2{x0, 0}, Max: mgl64.Vec2{x1, 1}}
	}
	proxies := []Proxy{
		{ID: 0, Key: 10, AABB: box(0, 1)},
		{ID: 1, Key: 11, AABB: box(0.5, 2)},
		{ID: 2, Key: 12, AABB: box(3, 4)},
		{ID: 3, Key: 13, AABB: box(1.5, 3.5)},
	}

	pairs := SweepAndPrune(proxies, nil)
	want := []PairKey{{10, 11}, {11, 13}, {12, 13}}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d: %v", len(want), len(pairs), pairs)
	}
	for i, p := range pairs {
		if p.Key != want[i] {
			t.Errorf("pair %d: expected %v, got %v", i, want[i], p.Key)
		}
	}

	reversed := []Proxy{proxies[3], proxies[2], proxies[1], proxies[0]}
	again := SweepAndPrune(reversed, nil)
	for i := range pairs {
		if again[i] != pairs[i] {
			t.Errorf("expected order independent result, pair %d differs: %v vs %v", i, again[i], pairs[i])
		}
	}

	filtered := SweepAndPrune(proxies, func(a, b int) bool { return a != 3 && b != 3 })
	if len(filtered) != 1 || filtered[0].Key != (PairKey{10, 11}) {
		t.Errorf("expected only (10,11) after filtering, got %v", filtered)
	}
}
