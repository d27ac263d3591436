package experiment_test

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/sim"
)

func preset(scene, variant string) *config.Config {
	cfg := config.GetPreset(scene, variant)
	Expect(cfg).NotTo(BeNil(), "preset %s/%s", scene, variant)
	return cfg
}

func run(cfg *config.Config) (*experiment.Experiment, *sim.Result) {
	reg := experiment.NewRegistry()
	exp := experiment.New(cfg, reg)
	Expect(exp.Setup(reg.DefaultMetrics(cfg))).To(Succeed())
	res, err := exp.Run(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return exp, res
}

func body(f sim.Frame, name string) sim.BodyState {
	b, ok := f.Body(name)
	Expect(ok).To(BeTrue(), "body %s missing from frame", name)
	return b
}

var _ = Describe("drop scene", func() {
	It("brings the cuboid to rest on the ground", func() {
		cfg := preset("drop", "default")
		Expect(cfg.Duration).To(Equal(5.0))

		_, res := run(cfg)
		final, ok := res.Final()
		Expect(ok).To(BeTrue())

		box := body(final, "box")
		Expect(box.Y).To(BeNumerically("~", 0.5, 1e-2))
		Expect(math.Abs(box.VY)).To(BeNumerically("<", 1e-2))
		Expect(res.Metrics["max_penetration"]).To(BeNumerically("<", 0.02))
		Expect(res.Metrics["rest_time"]).To(BeNumerically(">", 0))
	})

	It("keeps the fixed ground bit-identical", func() {
		_, res := run(preset("drop", "tilted"))
		first := body(res.Frames[0], "ground")
		for _, f := range res.Frames[1:] {
			g := body(f, "ground")
			Expect(g.X).To(Equal(first.X))
			Expect(g.Y).To(Equal(first.Y))
			Expect(g.Angle).To(Equal(first.Angle))
			Expect(g.VX).To(BeZero())
			Expect(g.VY).To(BeZero())
		}
	})

	It("settles a ball without restitution", func() {
		_, res := run(preset("drop", "ball"))
		final, _ := res.Final()
		ball := body(final, "box")
		Expect(ball.Y).To(BeNumerically("~", 0.5, 1e-2))
		Expect(math.Abs(ball.VY)).To(BeNumerically("<", 1e-2))
	})
})

var _ = Describe("platform scene", func() {
	It("moves both kinematic platforms along the same path", func() {
		cfg := preset("platform", "default")
		cfg.Duration = 2

		_, res := run(cfg)
		for _, f := range res.Frames {
			v := body(f, "platform_velocity")
			p := body(f, "platform_position")
			Expect(p.X - v.X).To(BeNumerically("~", 0, 1e-9))
			Expect(p.Y - v.Y).To(BeNumerically("~", 2, 1e-9))
		}
		final, _ := res.Final()
		Expect(body(final, "platform_velocity").X).NotTo(Equal(-2.0))
		Expect(res.Metrics["stability"]).To(Equal(1.0))
	})
})

var _ = Describe("joint scenes", func() {
	It("drives a YAML-configured position motor to its target", func() {
		cfg, err := config.Parse([]byte(`
scene: custom
duration: 4
gravity: [0, 0]
bodies:
  - name: anchor
    type: fixed
    position: [0, 0]
  - name: arm
    type: dynamic
    position: [0, 0.5]
    can_sleep: false
    colliders:
      - shape: cuboid
        half_extents: [0.1, 0.5]
joints:
  - name: hinge
    body_a: anchor
    body_b: arm
    anchor_b: [0, -0.5]
    motor:
      mode: position
      target: 1
      stiffness: 1000
      damping: 150
`))
		Expect(err).NotTo(HaveOccurred())

		_, res := run(cfg)
		Expect(res.Metrics["angle:hinge"]).To(BeNumerically("~", 1, 1e-2))
	})

	It("keeps the limited velocity motor inside its limits", func() {
		cfg := preset("joint_motor", "limited")
		cfg.Duration = 5

		exp, res := run(cfg)
		Expect(res.Metrics["limit_violation"]).To(BeNumerically("<", 0.05))

		final, _ := res.Final()
		Expect(final.Joints).To(HaveLen(1))
		Expect(final.Joints[0].Angle).To(BeNumerically("~", math.Pi/2, 0.05))

		scene := exp.Scene().(*experiment.Scene2D)
		_, ok := scene.Joint("limited")
		Expect(ok).To(BeTrue())
	})

	It("keeps the pendulum link pinned to its pivot", func() {
		cfg := preset("pendulum", "default")
		cfg.Duration = 3

		_, res := run(cfg)
		for _, f := range res.Frames {
			link := body(f, "link0")
			end := geom.NewPose(link.X, link.Y, link.Angle).Apply(mgl64.Vec2{-0.5, 0})
			Expect(math.Hypot(end[0], end[1]-4)).To(BeNumerically("<", 0.02))
		}
	})
})

var _ = Describe("restitution scene", func() {
	It("bounces a perfectly elastic ball back to its drop height", func() {
		cfg := preset("restitution", "apex")
		reg := experiment.NewRegistry()
		scene, err := experiment.Build(cfg, reg, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		bounced := false
		apex := 0.0
		err = sim.New().RunWithCallback(context.Background(), scene, sim.Config{Duration: cfg.Duration}, func(f *sim.Frame) bool {
			b, _ := f.Body("ball")
			if !bounced {
				bounced = b.VY > 0
				return true
			}
			apex = math.Max(apex, b.Y)
			return b.VY > 0
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(bounced).To(BeTrue())
		Expect(apex).To(BeNumerically("~", 2.5, 0.05))
	})

	It("builds the default rows in 3D", func() {
		cfg := preset("restitution", "default")
		Expect(cfg.Dimension).To(Equal(3))
		scene, err := experiment.Build(cfg, nil, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(scene.BodyNames()).To(HaveLen(23))
	})
})

var _ = Describe("experiment setup", func() {
	It("rejects running before setup", func() {
		_, err := experiment.New(preset("drop", "default"), nil).Run(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown drivers", func() {
		cfg := preset("platform", "default")
		cfg.Scenario.Driver = "teleport"
		Expect(experiment.New(cfg, nil).Setup(nil)).NotTo(Succeed())
	})

	It("rejects drivers in 3D scenes", func() {
		cfg := preset("restitution", "apex")
		cfg.Scenario.Driver = "oscillate"
		_, err := experiment.Build(cfg, nil, logr.Discard())
		Expect(err).To(HaveOccurred())
	})

	It("rejects invalid configs", func() {
		cfg := preset("drop", "default")
		cfg.Dt = -1
		_, err := experiment.Build(cfg, nil, logr.Discard())
		Expect(err).To(MatchError(config.ErrInvalid))
	})

	It("stops on cancellation", func() {
		cfg := preset("stack", "default")
		exp := experiment.New(cfg, nil)
		Expect(exp.Setup(nil)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := exp.Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(res.StepsTaken).To(BeZero())
	})

	It("lists the bundled drivers", func() {
		Expect(experiment.NewRegistry().ListDrivers()).To(Equal([]string{"hold", "none", "oscillate"}))
	})

	DescribeTable("builds every preset",
		func(scene string) {
			for _, variant := range config.ListPresets(scene) {
				cfg := preset(scene, variant)
				s, err := experiment.Build(cfg, nil, logr.Discard())
				Expect(err).NotTo(HaveOccurred(), "%s/%s", scene, variant)
				Expect(s.BodyNames()).To(HaveLen(len(cfg.Bodies)))
				_, err = s.Step()
				Expect(err).NotTo(HaveOccurred(), "%s/%s", scene, variant)
			}
		},
		Entry("drop", "drop"),
		Entry("stack", "stack"),
		Entry("platform", "platform"),
		Entry("joint_motor", "joint_motor"),
		Entry("restitution", "restitution"),
		Entry("pendulum", "pendulum"),
	)
})

var _ = Describe("ensemble jobs", func() {
	It("gives identical results for identical configs run in parallel", func() {
		reg := experiment.NewRegistry()
		var jobs []sim.Job
		for _, name := range []string{"a", "b", "c"} {
			cfg := preset("stack", "default")
			cfg.Duration = 1
			job, err := experiment.NewJob(name, cfg, reg, logr.Discard())
			Expect(err).NotTo(HaveOccurred())
			jobs = append(jobs, job)
		}

		results, err := sim.NewEnsemble(sim.New(), 3).Run(context.Background(), jobs)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
		for _, r := range results[1:] {
			Expect(r.Frames).To(Equal(results[0].Frames))
			Expect(r.Metrics).To(Equal(results[0].Metrics))
		}
	})

	It("names the job in build errors", func() {
		cfg := preset("drop", "default")
		cfg.Bodies[1].Colliders[0].Shape = "capsule"
		_, err := experiment.NewJob("broken", cfg, nil, logr.Discard())
		Expect(err).To(MatchError(ContainSubstring("broken")))
	})
})
