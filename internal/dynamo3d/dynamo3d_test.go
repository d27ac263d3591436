package dynamo3d

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
)

func newWorld(t *testing.T) *World {
	t.Helper()
	w, err := NewWorld(dynamo.DefaultIntegrationParameters())
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func addGround(t *testing.T, w *World, m dynamo.Material) BodyHandle {
	t.Helper()
	g, err := w.NewBody(dynamo.Fixed, Translation(0, -0.5, 0), Velocity{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.NewCollider(Cuboid(10, 0.5, 10), m, g); err != nil {
		t.Fatal(err)
	}
	return g
}

func addBall(t *testing.T, w *World, m dynamo.Material, x, y, z float64) BodyHandle {
	t.Helper()
	h, err := w.NewBody(dynamo.Dynamic, Translation(x, y, z), Velocity{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.NewCollider(Ball(0.5), m, h); err != nil {
		t.Fatal(err)
	}
	return h
}

func run(t *testing.T, w *World, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := w.StepDefault(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

// one returns the only point of a single-point manifold.
func one(m manifold) (contact, bool) {
	if m.count != 1 {
		return contact{}, false
	}
	return m.points[0], true
}

func TestCollideBalls(t *testing.T) {
	c, ok := one(collide(Ball(1), Translation(0, 0, 0), Ball(1), Translation(0, 0, 1.5), 0))
	if !ok {
		t.Fatal("expected contact")
	}
	if c.normal.Sub(mgl64.Vec3{0, 0, 1}).Len() > 1e-12 {
		t.Errorf("expected normal +z, got %v", c.normal)
	}
	if math.Abs(c.separation+0.5) > 1e-12 {
		t.Errorf("expected separation -0.5, got %v", c.separation)
	}
	if c.point.Sub(mgl64.Vec3{0, 0, 0.75}).Len() > 1e-12 {
		t.Errorf("expected midpoint (0,0,0.75), got %v", c.point)
	}

	if m := collide(Ball(1), Translation(0, 0, 0), Ball(1), Translation(3, 0, 0), 0.5); m.count != 0 {
		t.Error("expected no contact beyond margin")
	}
}

func TestCollideCuboidBall(t *testing.T) {
	tests := []struct {
		name   string
		center mgl64.Vec3
		normal mgl64.Vec3
		sep    float64
	}{
		{"face", mgl64.Vec3{0.3, 1.4, -0.2}, mgl64.Vec3{0, 1, 0}, -0.1},
		{"edge", mgl64.Vec3{1.3, 1.4, 0}, mgl64.Vec3{0.6, 0.8, 0}, 0},
		{"deep", mgl64.Vec3{0, 0.8, 0}, mgl64.Vec3{0, 1, 0}, -0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := one(collide(Cuboid(1, 1, 1), Identity(), Ball(0.5), Translation(tt.center[0], tt.center[1], tt.center[2]), 0.01))
			if !ok {
				t.Fatal("expected contact")
			}
			if c.normal.Sub(tt.normal).Len() > 1e-9 {
				t.Errorf("expected normal %v, got %v", tt.normal, c.normal)
			}
			if math.Abs(c.separation-tt.sep) > 1e-9 {
				t.Errorf("expected separation %v, got %v", tt.sep, c.separation)
			}
		})
	}
}

func TestCollideBallCuboidFlipsNormal(t *testing.T) {
	rot := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	c, ok := one(collide(Ball(0.5), Translation(0, 1.4, 0), Cuboid(1, 1, 1), NewPose(mgl64.Vec3{}, rot), 0))
	if !ok {
		t.Fatal("expected contact")
	}
	if c.normal.Sub(mgl64.Vec3{0, -1, 0}).Len() > 1e-9 {
		t.Errorf("expected normal pointing from ball to cuboid, got %v", c.normal)
	}
}

func TestCollideCuboidsFace(t *testing.T) {
	// unit cube sunk 0.1 into a wide slab
	m := collide(Cuboid(5, 0.5, 5), Translation(0, -0.5, 0), Cuboid(0.5, 0.5, 0.5), Translation(1, 0.4, 2), 0)
	if m.count != 4 {
		t.Fatalf("expected 4 points, got %d", m.count)
	}
	seen := map[uint32]bool{}
	for _, c := range m.points[:m.count] {
		if c.normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-9 {
			t.Errorf("expected normal +y, got %v", c.normal)
		}
		if math.Abs(c.separation+0.1) > 1e-9 {
			t.Errorf("expected separation -0.1, got %v", c.separation)
		}
		if math.Abs(c.point[1]+0.05) > 1e-9 {
			t.Errorf("expected point midway at y=-0.05, got %v", c.point)
		}
		if math.Abs(math.Abs(c.point[0]-1)-0.5) > 1e-9 || math.Abs(math.Abs(c.point[2]-2)-0.5) > 1e-9 {
			t.Errorf("expected a cube corner, got %v", c.point)
		}
		seen[c.feature] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected distinct features, got %v", seen)
	}

	// swapping the pair flips the normal and keeps the depth
	m = collide(Cuboid(0.5, 0.5, 0.5), Translation(1, 0.4, 2), Cuboid(5, 0.5, 5), Translation(0, -0.5, 0), 0)
	if m.count != 4 {
		t.Fatalf("expected 4 points after swap, got %d", m.count)
	}
	for _, c := range m.points[:m.count] {
		if c.normal.Sub(mgl64.Vec3{0, -1, 0}).Len() > 1e-9 || math.Abs(c.separation+0.1) > 1e-9 {
			t.Errorf("unexpected swapped point %+v", c)
		}
	}

	if m := collide(Cuboid(1, 1, 1), Identity(), Cuboid(1, 1, 1), Translation(0, 2.5, 0), 0.4); m.count != 0 {
		t.Errorf("expected no contact beyond margin, got %d", m.count)
	}
	if m := collide(Cuboid(1, 1, 1), Identity(), Cuboid(1, 1, 1), Translation(0, 2.5, 0), 0.6); m.count != 4 {
		t.Errorf("expected speculative points inside margin, got %d", m.count)
	}
}

func TestCollideCuboidsClipsToReferenceFace(t *testing.T) {
	// a wide plate resting on a small cube: points lie on the cube's top face
	m := collide(Cuboid(0.5, 0.5, 0.5), Identity(), Cuboid(3, 0.2, 3), Translation(0, 0.65, 0), 0)
	if m.count != 4 {
		t.Fatalf("expected 4 points, got %d", m.count)
	}
	for _, c := range m.points[:m.count] {
		if c.normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-9 {
			t.Errorf("expected normal +y, got %v", c.normal)
		}
		if math.Abs(c.point[0]) > 0.5+1e-9 || math.Abs(c.point[2]) > 0.5+1e-9 {
			t.Errorf("point outside the cube face: %v", c.point)
		}
		if math.Abs(c.separation+0.05) > 1e-9 {
			t.Errorf("expected separation -0.05, got %v", c.separation)
		}
	}
}

func TestCollideCuboidsEdges(t *testing.T) {
	// two cubes crossed edge to edge: a is turned about z, b about x
	qa := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1})
	qb := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{1, 0, 0})
	reach := 0.5 * math.Sqrt2
	m := collide(Cuboid(0.5, 0.5, 0.5), NewPose(mgl64.Vec3{}, qa), Cuboid(0.5, 0.5, 0.5), NewPose(mgl64.Vec3{0, 2*reach - 0.1, 0}, qb), 0)
	c, ok := one(m)
	if !ok {
		t.Fatalf("expected one edge point, got %d", m.count)
	}
	if c.feature&featureEdge == 0 {
		t.Errorf("expected an edge feature, got %b", c.feature)
	}
	if c.normal.Sub(mgl64.Vec3{0, 1, 0}).Len() > 1e-9 {
		t.Errorf("expected normal +y, got %v", c.normal)
	}
	if math.Abs(c.separation+0.1) > 1e-9 {
		t.Errorf("expected separation -0.1, got %v", c.separation)
	}
	if c.point.Sub(mgl64.Vec3{0, reach - 0.05, 0}).Len() > 1e-9 {
		t.Errorf("expected point between the edges, got %v", c.point)
	}
}

func addCube(t *testing.T, w *World, m dynamo.Material, pose Pose) BodyHandle {
	t.Helper()
	h, err := w.NewBody(dynamo.Dynamic, pose, Velocity{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.NewCollider(Cuboid(0.5, 0.5, 0.5), m, h); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestCubeRestsOnGround(t *testing.T) {
	w := newWorld(t)
	m := dynamo.DefaultMaterial()
	addGround(t, w, m)
	h := addCube(t, w, m, Translation(0, 2, 0))

	run(t, w, 300)
	b, _ := w.Body(h)
	p := b.Pose()
	if math.Abs(p.Translation[1]-0.5) > 0.02 {
		t.Errorf("expected the cube to rest at y=0.5, got %v", p.Translation)
	}
	if math.Abs(p.Translation[0]) > 1e-3 || math.Abs(p.Translation[2]) > 1e-3 {
		t.Errorf("cube drifted sideways: %v", p.Translation)
	}
	if v := b.Velocity(); v.Linear.Len() > 1e-2 || v.Angular.Len() > 1e-2 {
		t.Errorf("expected the cube at rest, got %+v", v)
	}
	if n := len(w.Contacts()); n != 4 {
		t.Errorf("expected 4 published points, got %d", n)
	}
}

func TestTiltedCubeSettlesFlat(t *testing.T) {
	w := newWorld(t)
	m := dynamo.DefaultMaterial()
	addGround(t, w, m)
	q := mgl64.QuatRotate(0.4, mgl64.Vec3{0, 0, 1}).Mul(mgl64.QuatRotate(0.3, mgl64.Vec3{1, 0, 0}))
	h := addCube(t, w, m, NewPose(mgl64.Vec3{0, 1.5, 0}, q))

	run(t, w, 600)
	b, _ := w.Body(h)
	p := b.Pose()
	if math.Abs(p.Translation[1]-0.5) > 0.02 {
		t.Errorf("expected the cube to settle on a face at y=0.5, got %v", p.Translation)
	}
	// some cube axis ends up vertical
	up := 0.0
	for _, a := range []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		up = math.Max(up, math.Abs(p.Rotation.Rotate(a)[1]))
	}
	if up < 0.99 {
		t.Errorf("expected a face down, best vertical alignment %v", up)
	}
}

func TestCubesStack(t *testing.T) {
	w := newWorld(t)
	m := dynamo.DefaultMaterial()
	addGround(t, w, m)
	lower := addCube(t, w, m, Translation(0, 0.5, 0))
	upper := addCube(t, w, m, Translation(0, 1.6, 0))

	run(t, w, 400)
	bl, _ := w.Body(lower)
	bu, _ := w.Body(upper)
	if y := bl.Pose().Translation[1]; math.Abs(y-0.5) > 0.02 {
		t.Errorf("lower cube at y=%v", y)
	}
	if y := bu.Pose().Translation[1]; math.Abs(y-1.5) > 0.03 {
		t.Errorf("upper cube at y=%v", y)
	}
}

func TestMassProperties(t *testing.T) {
	w := newWorld(t)
	h := addBall(t, w, dynamo.DefaultMaterial(), 0, 0, 0)
	b, _ := w.Body(h)
	want := 4.0 / 3.0 * math.Pi * 0.125
	if math.Abs(b.Mass()-want) > 1e-12 {
		t.Errorf("expected mass %v, got %v", want, b.Mass())
	}

	// a second ball offset along x shifts the centre halfway
	d := NewColliderDesc(Ball(0.5))
	d.LocalPose = Translation(2, 0, 0)
	if _, err := w.InsertCollider(d, h); err != nil {
		t.Fatal(err)
	}
	b, _ = w.Body(h)
	if b.LocalCenter().Sub(mgl64.Vec3{1, 0, 0}).Len() > 1e-12 {
		t.Errorf("expected centre (1,0,0), got %v", b.LocalCenter())
	}
	m := want
	ixx := 2 * 0.4 * m * 0.25
	iyy := ixx + 2*m
	if math.Abs(b.inertia.At(0, 0)-ixx) > 1e-12 || math.Abs(b.inertia.At(1, 1)-iyy) > 1e-12 {
		t.Errorf("unexpected inertia %v", b.inertia)
	}
}

func TestDegenerateMass(t *testing.T) {
	w := newWorld(t)
	h, _ := w.NewBody(dynamo.Dynamic, Identity(), Velocity{}, false)
	m := dynamo.DefaultMaterial()
	m.Density = 0
	if _, err := w.NewCollider(Ball(1), m, h); !errors.Is(err, dynamo.ErrDegenerateMassProperties) {
		t.Errorf("expected ErrDegenerateMassProperties, got %v", err)
	}
	b, _ := w.Body(h)
	if !b.NonPhysical() {
		t.Error("expected non-physical body")
	}
}

func TestFixedGroundBitIdentical(t *testing.T) {
	w := newWorld(t)
	g := addGround(t, w, dynamo.DefaultMaterial())
	before, _ := w.Pose(g)
	for i := 0; i < 4; i++ {
		addBall(t, w, dynamo.DefaultMaterial(), float64(i), 1+float64(i), 0)
	}
	run(t, w, 180)
	if after, _ := w.Pose(g); after != before {
		t.Errorf("fixed body moved from %v to %v", before, after)
	}
}

func TestBallRestsWithoutRestitution(t *testing.T) {
	w := newWorld(t)
	addGround(t, w, dynamo.DefaultMaterial())
	h := addBall(t, w, dynamo.DefaultMaterial(), 0, 3, 0)
	run(t, w, 240)

	p, _ := w.Pose(h)
	v, _ := w.Velocity(h)
	if math.Abs(p.Translation[1]-0.5) > 1e-2 {
		t.Errorf("expected ball resting at y=0.5, got %v", p.Translation)
	}
	if v.Linear.Len() > 1e-2 {
		t.Errorf("expected ball at rest, got %v", v.Linear)
	}
	if math.Abs(p.Rotation.Len()-1) > 1e-12 {
		t.Errorf("expected unit orientation, got %v", p.Rotation.Len())
	}
}

// apex drops a ball from height h above the ground and returns the height
// of the first rebound.
func apex(t *testing.T, restitution, h float64) float64 {
	t.Helper()
	w := newWorld(t)
	addGround(t, w, dynamo.Material{Restitution: 1, Density: 1})
	ball := addBall(t, w, dynamo.Material{Restitution: restitution, Density: 1}, 0, 0.5+h, 0)

	bounced := false
	best := 0.0
	for i := 0; i < 300; i++ {
		run(t, w, 1)
		p, _ := w.Pose(ball)
		v, _ := w.Velocity(ball)
		if !bounced {
			bounced = v.Linear[1] > 0
			continue
		}
		best = math.Max(best, p.Translation[1]-0.5)
		if v.Linear[1] <= 0 {
			break
		}
	}
	if !bounced {
		t.Fatalf("restitution %v: ball never bounced", restitution)
	}
	return best
}

func TestRestitutionApex(t *testing.T) {
	if got := apex(t, 1, 2); math.Abs(got-2) > 0.05 {
		t.Errorf("expected elastic rebound to 2, got %v", got)
	}

	// ground restitution is 1 and rules average, so more bounce in the
	// ball always means a higher rebound
	prev := 0.0
	for _, e := range []float64{0.2, 0.5, 0.8} {
		got := apex(t, e, 2)
		if got <= prev {
			t.Errorf("restitution %v: apex %v not above %v", e, got, prev)
		}
		prev = got
	}
}

func TestSlidingBallStartsRolling(t *testing.T) {
	w := newWorld(t)
	addGround(t, w, dynamo.DefaultMaterial())
	h := addBall(t, w, dynamo.DefaultMaterial(), 0, 0.5, 0)
	b, _ := w.BodyMut(h)
	b.SetLinearVelocity(mgl64.Vec3{2, 0, 0})

	run(t, w, 120)
	v, _ := w.Velocity(h)
	// a solid sphere ends up rolling at 5/7 of its sliding speed
	if math.Abs(v.Linear[0]-2*5.0/7.0) > 0.03 {
		t.Errorf("expected rolling speed %v, got %v", 2*5.0/7.0, v.Linear[0])
	}
	if math.Abs(v.Angular[2]+v.Linear[0]/0.5) > 0.05 {
		t.Errorf("expected rolling without slip, got w=%v v=%v", v.Angular, v.Linear)
	}
	if math.Abs(v.Linear[2]) > 1e-9 {
		t.Errorf("expected no sideways drift, got %v", v.Linear[2])
	}
}

func TestBallsCollideHeadOn(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl64.Vec3{})
	elastic := dynamo.Material{Restitution: 1, Density: 1}
	a := addBall(t, w, elastic, -1, 0, 0)
	b := addBall(t, w, elastic, 1, 0, 0)
	ba, _ := w.BodyMut(a)
	ba.SetLinearVelocity(mgl64.Vec3{2, 0, 0})

	run(t, w, 60)
	va, _ := w.Velocity(a)
	vb, _ := w.Velocity(b)
	if va.Linear.Len() > 1e-6 || math.Abs(vb.Linear[0]-2) > 1e-6 {
		t.Errorf("expected momentum exchange, got %v and %v", va.Linear, vb.Linear)
	}
}

func TestStaleColliderAbandonsStep(t *testing.T) {
	w := newWorld(t)
	addGround(t, w, dynamo.DefaultMaterial())
	h := addBall(t, w, dynamo.DefaultMaterial(), 0, 2, 0)
	other := addBall(t, w, dynamo.DefaultMaterial(), 3, 2, 0)
	run(t, w, 1)
	before, _ := w.Pose(other)

	cs, err := w.RemoveBody(h, false)
	if err != nil || len(cs) != 1 {
		t.Fatalf("RemoveBody: %v %v", cs, err)
	}
	_, err = w.StepDefault()
	if !errors.Is(err, dynamo.ErrStaleReference) || !errors.Is(err, dynamo.ErrInvalidHandle) {
		t.Fatalf("expected stale reference, got %v", err)
	}
	if after, _ := w.Pose(other); after != before {
		t.Error("abandoned step moved a body")
	}
	if _, err := w.RemoveCollider(cs[0]); err != nil {
		t.Fatal(err)
	}
	run(t, w, 1)
}

func TestKinematicTargets(t *testing.T) {
	w := newWorld(t)
	pb, _ := w.NewBody(dynamo.KinematicPositionBased, Identity(), Velocity{}, false)
	vb, _ := w.NewBody(dynamo.KinematicVelocityBased, Identity(), Velocity{}, false)

	if err := w.SetKinematicVelocityTarget(pb, Velocity{}); !errors.Is(err, dynamo.ErrIncompatibleKinematicTarget) {
		t.Errorf("expected ErrIncompatibleKinematicTarget, got %v", err)
	}
	if err := w.SetKinematicPositionTarget(vb, Identity()); !errors.Is(err, dynamo.ErrIncompatibleKinematicTarget) {
		t.Errorf("expected ErrIncompatibleKinematicTarget, got %v", err)
	}

	target := NewPose(mgl64.Vec3{0.1, 0.2, 0.3}, mgl64.QuatRotate(0.2, mgl64.Vec3{0, 1, 0}))
	if err := w.SetKinematicPositionTarget(pb, target); err != nil {
		t.Fatal(err)
	}
	run(t, w, 1)
	if p, _ := w.Pose(pb); p != target.normalized() {
		t.Errorf("expected pose %v, got %v", target, p)
	}
	v, _ := w.Velocity(pb)
	if v.Angular.Sub(mgl64.Vec3{0, 0.2 * 60, 0}).Len() > 1e-6 {
		t.Errorf("expected implied angular velocity (0,12,0), got %v", v.Angular)
	}
	nan := math.NaN()
	if err := w.SetKinematicPositionTarget(pb, Translation(nan, 0, 0)); !errors.Is(err, dynamo.ErrNonFiniteState) {
		t.Errorf("expected ErrNonFiniteState for pose target, got %v", err)
	}
	if err := w.SetKinematicVelocityTarget(vb, Velocity{Angular: mgl64.Vec3{0, math.Inf(1), 0}}); !errors.Is(err, dynamo.ErrNonFiniteState) {
		t.Errorf("expected ErrNonFiniteState for velocity target, got %v", err)
	}
	d := NewColliderDesc(Ball(0.5))
	d.LocalPose = Translation(0, nan, 0)
	if _, err := w.InsertCollider(d, vb); !errors.Is(err, dynamo.ErrNonFiniteState) {
		t.Errorf("expected ErrNonFiniteState for local pose, got %v", err)
	}
	run(t, w, 1)
	if p, _ := w.Pose(pb); !p.finite() {
		t.Errorf("rejected target leaked into pose %v", p)
	}
}

func TestSleepingBall(t *testing.T) {
	w := newWorld(t)
	addGround(t, w, dynamo.DefaultMaterial())
	h, _ := w.NewBody(dynamo.Dynamic, Translation(0, 0.5, 0), Velocity{}, true)
	if _, err := w.NewCollider(Ball(0.5), dynamo.DefaultMaterial(), h); err != nil {
		t.Fatal(err)
	}
	run(t, w, 90)
	b, _ := w.Body(h)
	if !b.IsSleeping() {
		t.Error("expected resting ball asleep")
	}
}
