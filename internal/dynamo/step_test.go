package dynamo

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/geom"
)

// addGround inserts a fixed slab whose top face sits at y=0.
func addGround(t *testing.T, w *World, m Material) BodyHandle {
	t.Helper()
	g := mustBody(t, w, Fixed, 0, -0.5)
	mustCollider(t, w, geom.Cuboid(10, 0.5), m, g)
	return g
}

func stepN(t *testing.T, w *World, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := w.StepDefault(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestStepRejectsBadDt(t *testing.T) {
	w := newTestWorld(t)
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := w.Step(dt, w.Gravity())
		if !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("dt=%v: expected ErrInvalidParameters, got %v", dt, err)
		}
	}
	if w.StepCount() != 0 || w.Time() != 0 {
		t.Error("rejected step advanced the clock")
	}
}

func TestFreeFall(t *testing.T) {
	w := newTestWorld(t)
	h := mustBody(t, w, Dynamic, 0, 10)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), h)

	stepN(t, w, 60)
	v, _ := w.Velocity(h)
	if math.Abs(v.Linear[1]+9.81) > 1e-9 {
		t.Errorf("expected vy=-9.81 after 1s, got %v", v.Linear[1])
	}
	if math.Abs(w.Time()-1) > 1e-12 {
		t.Errorf("expected time 1, got %v", w.Time())
	}
}

func TestSpinAboutCentreOfMass(t *testing.T) {
	w := newTestWorld(t)
	w.SetGravity(mgl64.Vec2{})
	h, err := w.NewBody(Dynamic, geom.NewPose(1, 2, 0), Velocity{Linear: mgl64.Vec2{0.5, 0}, Angular: 2}, false)
	if err != nil {
		t.Fatal(err)
	}
	d := ColliderDesc{Shape: geom.Ball(0.5), Material: DefaultMaterial(), LocalPose: geom.NewPose(1, 0, 0)}
	if _, err := w.InsertCollider(d, h); err != nil {
		t.Fatal(err)
	}

	stepN(t, w, 60)
	b, _ := w.Body(h)
	if c := b.WorldCenter(); c.Sub(mgl64.Vec2{2.5, 2}).Len() > 1e-9 {
		t.Errorf("expected the centre of mass to drift to (2.5, 2), got %v", c)
	}
	if math.Abs(b.Pose().Rotation-2) > 1e-9 {
		t.Errorf("expected rotation 2 after 1s, got %v", b.Pose().Rotation)
	}
	if v := b.LinearVelocity(); v.Sub(mgl64.Vec2{0.5, 0}).Len() > 1e-12 {
		t.Errorf("expected constant velocity, got %v", v)
	}
}

func TestFixedBodyNeverMoves(t *testing.T) {
	w := newTestWorld(t)
	g := addGround(t, w, DefaultMaterial())
	before, _ := w.Pose(g)

	for i := 0; i < 5; i++ {
		h := mustBody(t, w, Dynamic, float64(i)-2, 1+float64(i))
		mustCollider(t, w, geom.Cuboid(0.4, 0.4), DefaultMaterial(), h)
	}
	stepN(t, w, 240)

	after, _ := w.Pose(g)
	if after != before {
		t.Errorf("fixed body moved from %v to %v", before, after)
	}
	if v, _ := w.Velocity(g); v != (Velocity{}) {
		t.Errorf("fixed body gained velocity %v", v)
	}
}

func TestCuboidDropComesToRest(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	box, _ := w.NewBody(Dynamic, geom.NewPose(0, 2, 0), Velocity{}, true)
	mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), box)

	stepN(t, w, 300)
	p, _ := w.Pose(box)
	if math.Abs(p.Translation[1]-0.5) > 1e-2 {
		t.Errorf("expected box at rest on ground (y=0.5), got %v", p.Translation)
	}
	if math.Abs(p.Rotation) > 1e-2 {
		t.Errorf("expected box to stay level, got rotation %v", p.Rotation)
	}
	b, _ := w.Body(box)
	if !b.IsSleeping() {
		t.Error("expected box asleep after settling")
	}
}

func TestContactsPublished(t *testing.T) {
	w := newTestWorld(t)
	g := addGround(t, w, DefaultMaterial())
	ball := mustBody(t, w, Dynamic, 0, 0.5)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), ball)

	stepN(t, w, 2)
	cs := w.Contacts()
	if len(cs) != 1 {
		t.Fatalf("expected 1 manifold, got %d", len(cs))
	}
	c := cs[0]
	if c.BodyA != g || c.BodyB != ball {
		t.Errorf("expected ground/ball pair, got %v/%v", c.BodyA, c.BodyB)
	}
	if c.Normal.Sub(mgl64.Vec2{0, 1}).Len() > 1e-9 {
		t.Errorf("expected normal +y, got %v", c.Normal)
	}
	if len(c.Points) != 1 || c.Points[0].NormalImpulse <= 0 {
		t.Errorf("expected one supporting point, got %+v", c.Points)
	}
}

func TestRestingBallWithoutRestitution(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	ball := mustBody(t, w, Dynamic, 0, 3)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), ball)

	stepN(t, w, 240)
	p, _ := w.Pose(ball)
	v, _ := w.Velocity(ball)
	if math.Abs(p.Translation[1]-0.5) > 1e-2 {
		t.Errorf("expected ball resting at y=0.5, got %v", p.Translation[1])
	}
	if v.Linear.Len() > 1e-2 {
		t.Errorf("expected ball at rest, got velocity %v", v.Linear)
	}
}

func TestRestitutionBounceApex(t *testing.T) {
	w := newTestWorld(t)
	bouncy := Material{Restitution: 1, Density: 1}
	addGround(t, w, bouncy)

	const drop = 2.0
	ball := mustBody(t, w, Dynamic, 0, 0.5+drop)
	mustCollider(t, w, geom.Ball(0.5), bouncy, ball)

	bounced := false
	apex := 0.0
	for i := 0; i < 240; i++ {
		stepN(t, w, 1)
		p, _ := w.Pose(ball)
		v, _ := w.Velocity(ball)
		if !bounced {
			bounced = v.Linear[1] > 0
			continue
		}
		if v.Linear[1] <= 0 {
			apex = math.Max(apex, p.Translation[1]-0.5)
			break
		}
		apex = math.Max(apex, p.Translation[1]-0.5)
	}
	if !bounced {
		t.Fatal("ball never bounced")
	}
	if math.Abs(apex-drop) > 0.05 {
		t.Errorf("expected bounce apex near %v, got %v", drop, apex)
	}
}

func TestSlowImpactDoesNotBounce(t *testing.T) {
	w := newTestWorld(t)
	bouncy := Material{Restitution: 1, Density: 1}
	addGround(t, w, bouncy)

	// falls 1cm: impact speed is far below the restitution threshold
	ball := mustBody(t, w, Dynamic, 0, 0.51)
	mustCollider(t, w, geom.Ball(0.5), bouncy, ball)
	stepN(t, w, 30)
	p, _ := w.Pose(ball)
	if p.Translation[1] > 0.51 {
		t.Errorf("expected no bounce, got y=%v", p.Translation[1])
	}
}

// pinned returns a world with a fixed anchor body and a dynamic body joined
// at the dynamic body's centre of mass.
func pinned(t *testing.T, motor *Motor, limits *Limits) (*World, BodyHandle, JointHandle) {
	t.Helper()
	w := newTestWorld(t)
	anchor := mustBody(t, w, Fixed, 0, 0)
	wheel := mustBody(t, w, Dynamic, 0, 0)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), wheel)
	j, err := w.NewJoint(anchor, wheel, mgl64.Vec2{}, mgl64.Vec2{}, motor, limits)
	if err != nil {
		t.Fatal(err)
	}
	return w, wheel, j
}

func TestPositionMotorConverges(t *testing.T) {
	w, _, j := pinned(t, PositionMotor(1, 1000, 150), nil)
	stepN(t, w, 240)

	angle, err := w.JointAngle(j)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(angle-1) > 1e-3 {
		t.Errorf("expected joint angle 1, got %v", angle)
	}
	speed, _ := w.JointSpeed(j)
	if math.Abs(speed) > 1e-2 {
		t.Errorf("expected motor to settle, got speed %v", speed)
	}
}

func TestVelocityMotorRespectsMaxForce(t *testing.T) {
	const maxForce = 0.5
	const load = 1.0
	w, wheel, _ := pinned(t, VelocityMotor(100, 30).WithMaxForce(maxForce), nil)
	w.AddHook(func(_ float64, m *BodyMutator) { m.AddTorque(wheel, -load) })

	b, _ := w.Body(wheel)
	inertia := b.Inertia()
	dt := w.Params().Dt
	prev := 0.0
	for i := 0; i < 120; i++ {
		stepN(t, w, 1)
		v, _ := w.Velocity(wheel)
		motorTorque := (v.Angular-prev)/dt*inertia + load
		if math.Abs(motorTorque) > maxForce*(1+1e-6)+1e-9 {
			t.Fatalf("step %d: motor torque %v exceeds %v", i, motorTorque, maxForce)
		}
		prev = v.Angular
	}
	// the load wins against the capped motor
	if prev >= 0 {
		t.Errorf("expected the load to drive the wheel backwards, got %v", prev)
	}
}

func TestLimitsHold(t *testing.T) {
	tests := []struct {
		name  string
		motor *Motor
		bound float64
	}{
		{"motor pushes into upper", PositionMotor(2, 1000, 100), 0.5},
		{"soft motor far past upper", PositionMotor(3, 1000, 10), 0.5},
		{"stiff motor far past upper", PositionMotor(3, 1e4, 10), 0.5},
		{"very stiff motor far past upper", PositionMotor(3, 1e5, 10), 0.5},
		{"gravity pulls into lower", nil, -0.5},
	}
	const tol = 1e-3
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t)
			anchor := mustBody(t, w, Fixed, 0, 0)
			arm := mustBody(t, w, Dynamic, 0.5, 0)
			mustCollider(t, w, geom.Cuboid(0.5, 0.05), DefaultMaterial(), arm)
			j, err := w.NewJoint(anchor, arm, mgl64.Vec2{}, mgl64.Vec2{-0.5, 0}, tt.motor, &Limits{Lower: -0.5, Upper: 0.5})
			if err != nil {
				t.Fatal(err)
			}

			var angle float64
			for i := 0; i < 240; i++ {
				stepN(t, w, 1)
				angle, _ = w.JointAngle(j)
				if angle > 0.5+tol || angle < -0.5-tol {
					t.Fatalf("step %d: angle %v outside limits", i, angle)
				}
			}
			if math.Abs(angle-tt.bound) > tol {
				t.Errorf("expected arm resting on %v, got %v", tt.bound, angle)
			}
		})
	}
}

func TestJointKeepsAnchorsTogether(t *testing.T) {
	w := newTestWorld(t)
	anchor := mustBody(t, w, Fixed, 0, 0)
	arm := mustBody(t, w, Dynamic, 1, 0)
	mustCollider(t, w, geom.Cuboid(1, 0.1), DefaultMaterial(), arm)
	if _, err := w.NewJoint(anchor, arm, mgl64.Vec2{}, mgl64.Vec2{-1, 0}, nil, nil); err != nil {
		t.Fatal(err)
	}

	stepN(t, w, 180)
	p, _ := w.Pose(arm)
	end := p.Apply(mgl64.Vec2{-1, 0})
	if end.Len() > 1e-2 {
		t.Errorf("expected pendulum end pinned at origin, got %v", end)
	}
}

func TestKinematicPositionTargetExact(t *testing.T) {
	w := newTestWorld(t)
	platform := mustBody(t, w, KinematicPositionBased, 0, 0)
	mustCollider(t, w, geom.Cuboid(1, 0.1), DefaultMaterial(), platform)

	target := func(elapsed float64) geom.Pose {
		return geom.NewPose(math.Sin(elapsed), 0.5*elapsed, 0.1*elapsed)
	}
	w.AddHook(func(elapsed float64, m *BodyMutator) {
		m.SetKinematicPositionTarget(platform, target(elapsed))
	})

	for i := 0; i < 30; i++ {
		elapsed := w.Time()
		stepN(t, w, 1)
		p, _ := w.Pose(platform)
		if p != target(elapsed) {
			t.Fatalf("step %d: expected pose %v, got %v", i, target(elapsed), p)
		}
	}
	b, _ := w.Body(platform)
	if _, ok := b.NextKinematicPose(); ok {
		t.Error("expected target consumed by the step")
	}
}

func TestKinematicPlatformCarriesBox(t *testing.T) {
	w := newTestWorld(t)
	platform := mustBody(t, w, KinematicVelocityBased, 0, 0)
	mustCollider(t, w, geom.Cuboid(2, 0.1), DefaultMaterial(), platform)
	if err := w.SetKinematicVelocityTarget(platform, Velocity{Linear: mgl64.Vec2{0, 1}}); err != nil {
		t.Fatal(err)
	}
	box := mustBody(t, w, Dynamic, 0, 0.35)
	mustCollider(t, w, geom.Cuboid(0.25, 0.25), DefaultMaterial(), box)

	stepN(t, w, 60)
	pp, _ := w.Pose(platform)
	bp, _ := w.Pose(box)
	if math.Abs(pp.Translation[1]-1) > 1e-9 {
		t.Errorf("expected platform at y=1, got %v", pp.Translation[1])
	}
	if gap := bp.Translation[1] - pp.Translation[1]; math.Abs(gap-0.35) > 0.02 {
		t.Errorf("expected box riding on platform, gap %v", gap)
	}
	v, _ := w.Velocity(box)
	if math.Abs(v.Linear[1]-1) > 0.05 {
		t.Errorf("expected box moving with platform, got %v", v.Linear)
	}
}

func TestHookCommandsAndDiagnostics(t *testing.T) {
	w := newTestWorld(t)
	ground := addGround(t, w, DefaultMaterial())
	platform := mustBody(t, w, KinematicVelocityBased, 0, 5)

	var seen []float64
	w.AddHook(func(elapsed float64, m *BodyMutator) {
		seen = append(seen, elapsed)
		m.SetKinematicVelocityTarget(platform, Velocity{Linear: mgl64.Vec2{2, 0}})
		m.SetKinematicVelocityTarget(ground, Velocity{Linear: mgl64.Vec2{1, 0}})
		if b, _ := m.Body(platform); elapsed == 0 && b.LinearVelocity().Len() != 0 {
			t.Error("mutator snapshot saw a queued command")
		}
	})

	r, err := w.StepDefault()
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Diagnostics) != 1 || !errors.Is(r.Diagnostics[0], ErrIncompatibleKinematicTarget) {
		t.Fatalf("expected one incompatible-target diagnostic, got %v", r.Diagnostics)
	}
	var ee *EntityError
	if !errors.As(r.Diagnostics[0], &ee) {
		t.Errorf("expected EntityError, got %T", r.Diagnostics[0])
	}
	p, _ := w.Pose(platform)
	if math.Abs(p.Translation[0]-2*w.Params().Dt) > 1e-12 {
		t.Errorf("expected platform moved by the valid command, got %v", p.Translation)
	}

	stepN(t, w, 1)
	if len(seen) != 2 || seen[0] != 0 || seen[1] != w.Params().Dt {
		t.Errorf("expected hooks to see elapsed [0 dt], got %v", seen)
	}
}

type recorder struct {
	states  []StepState
	reports []StepReport
}

func (r *recorder) OnStep(w *World, rep *StepReport) {
	r.states = append(r.states, w.State())
	r.reports = append(r.reports, *rep)
}

func TestObserverSeesPublishedState(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	ball := mustBody(t, w, Dynamic, 0, 0.5)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), ball)

	rec := &recorder{}
	w.AddObserver(rec)
	stepN(t, w, 3)

	if len(rec.reports) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(rec.reports))
	}
	for i, s := range rec.states {
		if s != Published {
			t.Errorf("notification %d: expected Published, got %v", i, s)
		}
		if rec.reports[i].Step != i+1 {
			t.Errorf("notification %d: expected step %d, got %d", i, i+1, rec.reports[i].Step)
		}
	}
	if rec.reports[2].Contacts != 1 {
		t.Errorf("expected 1 contact, got %d", rec.reports[2].Contacts)
	}
	if w.State() != Idle {
		t.Errorf("expected Idle between steps, got %v", w.State())
	}
}

func TestSleepAndWake(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	box, _ := w.NewBody(Dynamic, geom.NewPose(0, 0.5, 0), Velocity{}, true)
	mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), box)

	rec := &recorder{}
	w.AddObserver(rec)
	stepN(t, w, 120)
	b, _ := w.Body(box)
	if !b.IsSleeping() {
		t.Fatal("expected box asleep")
	}
	if last := rec.reports[len(rec.reports)-1]; last.Sleeping != 1 {
		t.Errorf("expected report to count 1 sleeping body, got %d", last.Sleeping)
	}
	asleep, _ := w.Pose(box)
	stepN(t, w, 10)
	if p, _ := w.Pose(box); p != asleep {
		t.Error("sleeping body moved")
	}

	mb, _ := w.Bodies().GetMut(box)
	mb.ApplyImpulse(mgl64.Vec2{0, 5})
	stepN(t, w, 1)
	b, _ = w.Body(box)
	if b.IsSleeping() {
		t.Error("expected impulse to wake the box")
	}
	if p, _ := w.Pose(box); p.Translation[1] <= asleep.Translation[1] {
		t.Error("expected box to move up after impulse")
	}
}

func TestFallingBodyWakesSleeper(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	low, _ := w.NewBody(Dynamic, geom.NewPose(0, 0.5, 0), Velocity{}, true)
	mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), low)
	stepN(t, w, 60)
	if b, _ := w.Body(low); !b.IsSleeping() {
		t.Fatal("expected lower box asleep")
	}

	high, _ := w.NewBody(Dynamic, geom.NewPose(0, 3, 0), Velocity{}, true)
	mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), high)

	woke := false
	for i := 0; i < 120 && !woke; i++ {
		stepN(t, w, 1)
		b, _ := w.Body(low)
		woke = !b.IsSleeping()
	}
	if !woke {
		t.Error("expected falling box to wake the sleeper")
	}
	stepN(t, w, 240)
	p, _ := w.Pose(high)
	if math.Abs(p.Translation[1]-1.5) > 2e-2 {
		t.Errorf("expected stacked box at y=1.5, got %v", p.Translation[1])
	}
}

func TestWarmStartCacheEvicted(t *testing.T) {
	w := newTestWorld(t)
	addGround(t, w, DefaultMaterial())
	ball := mustBody(t, w, Dynamic, 0, 0.5)
	mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), ball)

	stepN(t, w, 5)
	if len(w.cache) == 0 {
		t.Fatal("expected cached impulses for resting contact")
	}
	mb, _ := w.Bodies().GetMut(ball)
	mb.SetPose(geom.NewPose(0, 10, 0))
	stepN(t, w, 1)
	if len(w.cache) != 0 {
		t.Errorf("expected cache cleared after separation, got %d entries", len(w.cache))
	}
	if len(w.Contacts()) != 0 {
		t.Errorf("expected no published contacts, got %d", len(w.Contacts()))
	}
}

func TestSolverDivergenceClamped(t *testing.T) {
	p := DefaultIntegrationParameters()
	p.MaxImpulse = 1e-4
	w, err := NewWorld(p)
	if err != nil {
		t.Fatal(err)
	}
	addGround(t, w, DefaultMaterial())
	box := mustBody(t, w, Dynamic, 0, 0.5)
	mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), box)

	r, err := w.StepDefault()
	if err != nil {
		t.Fatalf("expected the step to complete, got %v", err)
	}
	found := false
	for _, d := range r.Diagnostics {
		found = found || errors.Is(d, ErrSolverDivergence)
	}
	if !found {
		t.Errorf("expected ErrSolverDivergence diagnostic, got %v", r.Diagnostics)
	}
	for _, c := range w.Contacts() {
		for _, pt := range c.Points {
			if pt.NormalImpulse > p.MaxImpulse {
				t.Errorf("impulse %v exceeds bound %v", pt.NormalImpulse, p.MaxImpulse)
			}
		}
	}
}

func TestNonPhysicalBodyKeepsVelocity(t *testing.T) {
	w := newTestWorld(t)
	h, _ := w.NewBody(Dynamic, geom.Identity, Velocity{Linear: mgl64.Vec2{1, 0}}, false)
	stepN(t, w, 60)
	v, _ := w.Velocity(h)
	if v.Linear != (mgl64.Vec2{1, 0}) {
		t.Errorf("expected massless body to coast at (1,0), got %v", v.Linear)
	}
	p, _ := w.Pose(h)
	if math.Abs(p.Translation[0]-1) > 1e-9 {
		t.Errorf("expected x=1 after 1s, got %v", p.Translation[0])
	}
}

func buildStack(t *testing.T, workers int) (*World, []BodyHandle) {
	t.Helper()
	p := DefaultIntegrationParameters()
	p.Workers = workers
	w, err := NewWorld(p)
	if err != nil {
		t.Fatal(err)
	}
	addGround(t, w, DefaultMaterial())
	var hs []BodyHandle
	for i := 0; i < 40; i++ {
		x := float64(i%8)*1.1 - 4
		y := 0.5 + float64(i/8)*1.05
		h, _ := w.NewBody(Dynamic, geom.NewPose(x, y, 0.01*float64(i%3)), Velocity{}, true)
		if i%2 == 0 {
			mustCollider(t, w, geom.Cuboid(0.5, 0.5), DefaultMaterial(), h)
		} else {
			mustCollider(t, w, geom.Ball(0.5), DefaultMaterial(), h)
		}
		hs = append(hs, h)
	}
	return w, hs
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	w1, hs1 := buildStack(t, 1)
	w8, hs8 := buildStack(t, 8)
	stepN(t, w1, 120)
	stepN(t, w8, 120)

	for i := range hs1 {
		p1, _ := w1.Pose(hs1[i])
		p8, _ := w8.Pose(hs8[i])
		if p1 != p8 {
			t.Fatalf("body %d diverged: %v vs %v", i, p1, p8)
		}
	}
}
