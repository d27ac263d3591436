package experiment

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/dynamo3d"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/sim"
)

// Scene is a world built from a config, stepped by the simulator.
type Scene interface {
	sim.Stepper
	BodyNames() []string
}

type namedBody struct {
	name string
	h    dynamo.BodyHandle
}

type namedJoint struct {
	name string
	h    dynamo.JointHandle
}

// Scene2D is a planar world together with the config names of its entities.
type Scene2D struct {
	World  *dynamo.World
	bodies []namedBody
	joints []namedJoint
}

// Build builds the world described by cfg and installs its driver.
func Build(cfg *config.Config, reg *Registry, log logr.Logger) (Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dimension == 3 {
		return Build3D(cfg, log)
	}
	return Build2D(cfg, reg, log)
}

// tolerate keeps degenerate-mass errors as warnings: such bodies stay in the
// world as non-physical bodies.
func tolerate(log logr.Logger, name string, err error) error {
	if errors.Is(err, dynamo.ErrDegenerateMassProperties) {
		log.Info("body has degenerate mass properties", "body", name)
		return nil
	}
	return err
}

func Build2D(cfg *config.Config, reg *Registry, log logr.Logger) (*Scene2D, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	w, err := dynamo.NewWorld(params)
	if err != nil {
		return nil, err
	}
	w.SetLogger(log)
	w.SetGravity(mgl64.Vec2{config.Component(cfg.Gravity, 0), config.Component(cfg.Gravity, 1)})

	s := &Scene2D{World: w}
	for i := range cfg.Bodies {
		bc := &cfg.Bodies[i]
		if err := s.addBody(bc, log); err != nil {
			return nil, fmt.Errorf("body %q: %w", bc.Name, err)
		}
	}

	for _, jc := range cfg.Joints {
		a, _ := s.Body(jc.BodyA)
		b, _ := s.Body(jc.BodyB)
		motor, err := jc.Motor.Motor()
		if err != nil {
			return nil, fmt.Errorf("joint %q: %w", jc.Name, err)
		}
		h, err := w.InsertJoint(dynamo.JointDesc{
			BodyA:          a,
			BodyB:          b,
			LocalAnchorA:   mgl64.Vec2{config.Component(jc.AnchorA, 0), config.Component(jc.AnchorA, 1)},
			LocalAnchorB:   mgl64.Vec2{config.Component(jc.AnchorB, 0), config.Component(jc.AnchorB, 1)},
			ReferenceAngle: jc.ReferenceAngle,
			Motor:          motor,
			Limits:         jc.Limits.Limits(),
		})
		if err != nil {
			return nil, fmt.Errorf("joint %q: %w", jc.Name, err)
		}
		s.joints = append(s.joints, namedJoint{jc.Name, h})
	}

	if cfg.Scenario.Driver != "" {
		if reg == nil {
			reg = NewRegistry()
		}
		factory, err := reg.GetDriver(cfg.Scenario.Driver)
		if err != nil {
			return nil, err
		}
		targets := make([]dynamo.BodyHandle, 0, len(cfg.Scenario.Targets))
		for _, name := range cfg.Scenario.Targets {
			h, _ := s.Body(name)
			targets = append(targets, h)
		}
		d, err := factory(cfg, targets)
		if err != nil {
			return nil, err
		}
		w.AddHook(d.Drive)
	}

	log.V(1).Info("scene built", "scene", cfg.Scene, "bodies", w.Bodies().Len(),
		"colliders", w.Colliders().Len(), "joints", w.Joints().Len())
	return s, nil
}

func (s *Scene2D) addBody(bc *config.BodyConfig, log logr.Logger) error {
	t, err := bc.BodyType()
	if err != nil {
		return err
	}
	d := dynamo.NewBodyDesc(t)
	d.Pose = geom.NewPose(config.Component(bc.Position, 0), config.Component(bc.Position, 1), bc.Angle)
	d.Velocity = dynamo.Velocity{
		Linear:  mgl64.Vec2{config.Component(bc.Velocity, 0), config.Component(bc.Velocity, 1)},
		Angular: bc.AngularVelocity,
	}
	d.CanSleep = bc.Sleepable()
	d.GravityScale = bc.GravityFactor()
	d.LinearDamping = bc.LinearDamping
	d.AngularDamping = bc.AngularDamping

	h, err := s.World.InsertBody(d)
	if err != nil {
		return err
	}
	s.bodies = append(s.bodies, namedBody{bc.Name, h})

	for _, cc := range bc.Colliders {
		var shape geom.Shape
		switch cc.Shape {
		case "ball":
			shape, err = geom.NewBall(cc.Radius)
		default:
			shape, err = geom.NewCuboid(config.Component(cc.HalfExtents, 0), config.Component(cc.HalfExtents, 1))
		}
		if err != nil {
			return err
		}
		mat, err := cc.Material()
		if err != nil {
			return err
		}
		cd := dynamo.NewColliderDesc(shape)
		cd.Material = mat
		cd.LocalPose = geom.NewPose(config.Component(cc.Offset, 0), config.Component(cc.Offset, 1), 0)
		if _, err := s.World.InsertCollider(cd, h); tolerate(log, bc.Name, err) != nil {
			return err
		}
	}
	return nil
}

func (s *Scene2D) Body(name string) (dynamo.BodyHandle, bool) {
	for _, b := range s.bodies {
		if b.name == name {
			return b.h, true
		}
	}
	return dynamo.BodyHandle{}, false
}

func (s *Scene2D) Joint(name string) (dynamo.JointHandle, bool) {
	for _, j := range s.joints {
		if j.name == name {
			return j.h, true
		}
	}
	return dynamo.JointHandle{}, false
}

func (s *Scene2D) BodyNames() []string {
	names := make([]string, len(s.bodies))
	for i, b := range s.bodies {
		names[i] = b.name
	}
	return names
}

func (s *Scene2D) Dt() float64 { return s.World.Params().Dt }

func (s *Scene2D) Step() (*dynamo.StepReport, error) { return s.World.StepDefault() }

func (s *Scene2D) Snapshot(f *sim.Frame) {
	w := s.World
	g := w.Gravity()

	f.Step = w.StepCount()
	f.Time = w.Time()
	f.Bodies = f.Bodies[:0]
	f.Joints = f.Joints[:0]
	f.Kinetic, f.Potential, f.Sleeping = 0, 0, 0

	for _, nb := range s.bodies {
		b, err := w.Body(nb.h)
		if err != nil {
			continue
		}
		p, v := b.Pose(), b.Velocity()
		f.Bodies = append(f.Bodies, sim.BodyState{
			Name:     nb.name,
			Type:     b.BodyType().String(),
			X:        p.Translation[0],
			Y:        p.Translation[1],
			Angle:    p.Rotation,
			VX:       v.Linear[0],
			VY:       v.Linear[1],
			Omega:    v.Angular,
			Sleeping: b.IsSleeping(),
		})
		if b.IsSleeping() {
			f.Sleeping++
		}
		if b.IsDynamic() && !b.NonPhysical() {
			f.Kinetic += b.KineticEnergy()
			f.Potential -= b.Mass() * b.GravityScale() * g.Dot(b.WorldCenter())
		}
	}

	for _, nj := range s.joints {
		j, err := w.Joint(nj.h)
		if err != nil {
			continue
		}
		angle, err := w.JointAngle(nj.h)
		if err != nil {
			continue
		}
		speed, _ := w.JointSpeed(nj.h)
		js := sim.JointState{Name: nj.name, Angle: angle, Speed: speed}
		if j.Limits != nil {
			js.HasLimits = true
			js.Lower, js.Upper = j.Limits.Lower, j.Limits.Upper
		}
		f.Joints = append(f.Joints, js)
	}

	f.Contacts, f.MaxPenetration, f.NormalImpulse = 0, 0, 0
	for _, m := range w.Contacts() {
		for _, cp := range m.Points {
			f.Contacts++
			f.MaxPenetration = math.Max(f.MaxPenetration, -cp.Separation)
			f.NormalImpulse += cp.NormalImpulse
		}
	}
}

// Scene3D is a 3D world together with the config names of its bodies.
type Scene3D struct {
	World  *dynamo3d.World
	bodies []namedBody3
}

type namedBody3 struct {
	name string
	h    dynamo3d.BodyHandle
}

// Build3D builds a 3D world. Scripted drivers and joints are planar only.
func Build3D(cfg *config.Config, log logr.Logger) (*Scene3D, error) {
	if d := cfg.Scenario.Driver; d != "" && d != "none" {
		return nil, fmt.Errorf("driver %q is not available in 3D scenes", d)
	}
	if len(cfg.Joints) > 0 {
		return nil, errors.New("joints are not available in 3D scenes")
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	w, err := dynamo3d.NewWorld(params)
	if err != nil {
		return nil, err
	}
	w.SetLogger(log)
	w.SetGravity(vec3(cfg.Gravity))

	s := &Scene3D{World: w}
	for i := range cfg.Bodies {
		bc := &cfg.Bodies[i]
		if err := s.addBody(bc, log); err != nil {
			return nil, fmt.Errorf("body %q: %w", bc.Name, err)
		}
	}
	log.V(1).Info("scene built", "scene", cfg.Scene, "bodies", len(s.bodies))
	return s, nil
}

func vec3(v []float64) mgl64.Vec3 {
	return mgl64.Vec3{config.Component(v, 0), config.Component(v, 1), config.Component(v, 2)}
}

func (s *Scene3D) addBody(bc *config.BodyConfig, log logr.Logger) error {
	t, err := bc.BodyType()
	if err != nil {
		return err
	}
	d := dynamo3d.NewBodyDesc(t)
	d.Pose = dynamo3d.NewPose(vec3(bc.Position), mgl64.QuatRotate(bc.Angle, mgl64.Vec3{0, 0, 1}))
	d.Velocity = dynamo3d.Velocity{Linear: vec3(bc.Velocity), Angular: mgl64.Vec3{0, 0, bc.AngularVelocity}}
	d.CanSleep = bc.Sleepable()
	d.GravityScale = bc.GravityFactor()
	d.LinearDamping = bc.LinearDamping
	d.AngularDamping = bc.AngularDamping

	h, err := s.World.InsertBody(d)
	if err != nil {
		return err
	}
	s.bodies = append(s.bodies, namedBody3{bc.Name, h})

	for _, cc := range bc.Colliders {
		var shape dynamo3d.Shape
		switch cc.Shape {
		case "ball":
			shape, err = dynamo3d.NewBall(cc.Radius)
		default:
			he := vec3(cc.HalfExtents)
			shape, err = dynamo3d.NewCuboid(he[0], he[1], he[2])
		}
		if err != nil {
			return err
		}
		mat, err := cc.Material()
		if err != nil {
			return err
		}
		cd := dynamo3d.NewColliderDesc(shape)
		cd.Material = mat
		cd.LocalPose = dynamo3d.NewPose(vec3(cc.Offset), mgl64.QuatIdent())
		if _, err := s.World.InsertCollider(cd, h); tolerate(log, bc.Name, err) != nil {
			return err
		}
	}
	return nil
}

func (s *Scene3D) Body(name string) (dynamo3d.BodyHandle, bool) {
	for _, b := range s.bodies {
		if b.name == name {
			return b.h, true
		}
	}
	return dynamo3d.BodyHandle{}, false
}

func (s *Scene3D) BodyNames() []string {
	names := make([]string, len(s.bodies))
	for i, b := range s.bodies {
		names[i] = b.name
	}
	return names
}

func (s *Scene3D) Dt() float64 { return s.World.Params().Dt }

func (s *Scene3D) Step() (*dynamo.StepReport, error) { return s.World.StepDefault() }

func (s *Scene3D) Snapshot(f *sim.Frame) {
	w := s.World
	g := w.Gravity()

	f.Step = w.StepCount()
	f.Time = w.Time()
	f.Bodies = f.Bodies[:0]
	f.Joints = f.Joints[:0]
	f.Kinetic, f.Potential, f.Sleeping = 0, 0, 0

	for _, nb := range s.bodies {
		b, err := w.Body(nb.h)
		if err != nil {
			continue
		}
		p, v := b.Pose(), b.Velocity()
		f.Bodies = append(f.Bodies, sim.BodyState{
			Name:     nb.name,
			Type:     b.BodyType().String(),
			X:        p.Translation[0],
			Y:        p.Translation[1],
			Z:        p.Translation[2],
			Angle:    rotationAngle(p.Rotation),
			VX:       v.Linear[0],
			VY:       v.Linear[1],
			VZ:       v.Linear[2],
			Omega:    v.Angular.Len(),
			Sleeping: b.IsSleeping(),
		})
		if b.IsSleeping() {
			f.Sleeping++
		}
		if b.BodyType() == dynamo.Dynamic && !b.NonPhysical() {
			f.Kinetic += b.KineticEnergy()
			f.Potential -= b.Mass() * b.GravityScale() * g.Dot(b.WorldCenter())
		}
	}

	contacts := w.Contacts()
	f.Contacts = len(contacts)
	f.MaxPenetration, f.NormalImpulse = 0, 0
	for _, m := range contacts {
		f.MaxPenetration = math.Max(f.MaxPenetration, -m.Separation)
		f.NormalImpulse += m.NormalImpulse
	}
}

// rotationAngle is the angle of the rotation q represents, in [0, π].
func rotationAngle(q mgl64.Quat) float64 {
	w := math.Min(math.Abs(q.W), 1)
	return 2 * math.Acos(w)
}
