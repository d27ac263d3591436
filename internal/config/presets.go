package config

import (
	"fmt"
	"math"
	"sort"
)

// Presets builds the bundled scenes, keyed by scene then variant. Every call
// returns a fresh Config that the caller may modify.
var Presets = map[string]map[string]func() *Config{
	"drop": {
		"default": func() *Config { return dropScene(cuboid(0.5, 0.5), 0) },
		"ball":    func() *Config { return dropScene(ball(0.5), 0) },
		"tilted":  func() *Config { return dropScene(cuboid(0.5, 0.25), 0.4) },
	},
	"stack": {
		"default": func() *Config { return stackScene(5, false) },
		"tall":    func() *Config { return stackScene(10, false) },
		"pyramid": func() *Config { return stackScene(6, true) },
	},
	"platform": {
		"default": platformScene,
	},
	"joint_motor": {
		"default": func() *Config { return jointMotorScene(9, true) },
		"limited": func() *Config { return jointMotorScene(0, true) },
		"motors":  func() *Config { return jointMotorScene(9, false) },
	},
	"restitution": {
		"default": func() *Config { return restitutionScene(10, 2) },
		"apex":    restitutionApexScene,
	},
	"pendulum": {
		"default": func() *Config { return pendulumScene(1) },
		"chain":   func() *Config { return pendulumScene(4) },
		"held":    heldPendulumScene,
	},
}

func GetPreset(scene, variant string) *Config {
	variants, ok := Presets[scene]
	if !ok {
		return nil
	}
	build, ok := variants[variant]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets(scene string) []string {
	variants, ok := Presets[scene]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListScenes() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ptr[T any](v T) *T { return &v }

func ball(r float64) ColliderConfig { return ColliderConfig{Shape: "ball", Radius: r} }

func cuboid(h ...float64) ColliderConfig {
	return ColliderConfig{Shape: "cuboid", HalfExtents: h}
}

func body(name, typ string, pos []float64, cols ...ColliderConfig) BodyConfig {
	return BodyConfig{Name: name, Type: typ, Position: pos, Colliders: cols}
}

func scene(name, variant string, duration float64) *Config {
	c := DefaultConfig()
	c.Scene = name
	c.Variant = variant
	c.Duration = duration
	return c
}

// ground is a fixed slab whose top face lies at y = 0.
func ground(halfWidth, halfHeight float64) BodyConfig {
	return body("ground", "fixed", []float64{0, -halfHeight}, cuboid(halfWidth, halfHeight))
}

func dropScene(shape ColliderConfig, angle float64) *Config {
	variant := "default"
	switch {
	case shape.Shape == "ball":
		variant = "ball"
	case angle != 0:
		variant = "tilted"
	}
	c := scene("drop", variant, 5)
	box := body("box", "dynamic", []float64{0, 2}, shape)
	box.Angle = angle
	c.Bodies = []BodyConfig{ground(10, 0.1), box}
	return c
}

func stackScene(n int, pyramid bool) *Config {
	variant := "default"
	switch {
	case pyramid:
		variant = "pyramid"
	case n > 5:
		variant = "tall"
	}
	c := scene("stack", variant, 5)
	c.Bodies = []BodyConfig{ground(10, 0.1)}

	const h = 0.25
	if !pyramid {
		for i := 0; i < n; i++ {
			y := h + float64(i)*2*h
			c.Bodies = append(c.Bodies, body(fmt.Sprintf("box%d", i), "dynamic", []float64{0, y}, cuboid(h, h)))
		}
		return c
	}
	for row := 0; row < n; row++ {
		count := n - row
		x0 := -float64(count-1) * h * 1.05
		for i := 0; i < count; i++ {
			x := x0 + float64(i)*2*h*1.05
			y := h + float64(row)*2*h
			c.Bodies = append(c.Bodies, body(fmt.Sprintf("box%d_%d", row, i), "dynamic", []float64{x, y}, cuboid(h, h)))
		}
	}
	return c
}

// platformScene drops a 6x6 block of boxes onto two kinematic platforms, one
// driven by velocity and one by position targets.
func platformScene() *Config {
	c := scene("platform", "default", 10)
	c.Bodies = []BodyConfig{ground(10, 0.1)}

	const (
		num = 6
		rad = 0.2
	)
	shift := rad * 2
	centerx := shift * num / 2
	centery := shift/2 + 3.04
	for i := 0; i < num; i++ {
		for j := 0; j < num; j++ {
			x := float64(i)*shift - centerx
			y := float64(j)*shift + centery
			c.Bodies = append(c.Bodies, body(fmt.Sprintf("box%d_%d", i, j), "dynamic", []float64{x, y}, cuboid(rad, rad)))
		}
	}

	c.Bodies = append(c.Bodies,
		body("platform_velocity", "kinematic_velocity", []float64{-10 * rad, 1.5 + 0.8}, cuboid(rad*10, rad)),
		body("platform_position", "kinematic_position", []float64{-10 * rad, 2 + 1.5 + 0.8}, cuboid(rad*10, rad)),
	)
	c.Scenario = ScenarioConfig{
		Driver:    "oscillate",
		Targets:   []string{"platform_velocity", "platform_position"},
		Amplitude: []float64{5, 1},
		Frequency: []float64{1, 5},
	}
	return c
}

// jointMotorScene hangs n arms on position motors plus one arm on a
// force-limited velocity motor with limits, in zero gravity.
func jointMotorScene(n int, limited bool) *Config {
	variant := "default"
	switch {
	case n == 0:
		variant = "limited"
	case !limited:
		variant = "motors"
	}
	c := scene("joint_motor", variant, 10)
	c.Gravity = []float64{0, 0}
	c.Bodies = []BodyConfig{ground(5, 0.1)}

	for k := 0; k < n; k++ {
		x := -6 + 1.5*float64(k)
		arm := body(fmt.Sprintf("arm%d", k), "dynamic", []float64{x, 2}, cuboid(0.1, 0.5))
		arm.Angle = math.Pi
		arm.CanSleep = ptr(false)
		c.Bodies = append(c.Bodies, arm)
		c.Joints = append(c.Joints, JointConfig{
			Name:    fmt.Sprintf("motor%d", k),
			BodyA:   "ground",
			BodyB:   arm.Name,
			AnchorA: []float64{x, 1.5},
			AnchorB: []float64{0, -0.5},
			Motor: &MotorConfig{
				Mode:      "position",
				Target:    math.Pi - math.Pi/4*float64(k),
				Stiffness: 1000,
				Damping:   150,
			},
		})
	}

	if limited {
		const k = 2
		x := -6 + 1.5*float64(k)
		arm := body("limited_arm", "dynamic", []float64{x, 5}, cuboid(0.1, 0.5))
		arm.AngularVelocity = 4
		arm.CanSleep = ptr(false)
		c.Bodies = append(c.Bodies, arm)
		c.Joints = append(c.Joints, JointConfig{
			Name:    "limited",
			BodyA:   "ground",
			BodyB:   arm.Name,
			AnchorA: []float64{x, 5},
			AnchorB: []float64{0, -0.5},
			Motor: &MotorConfig{
				Mode:     "velocity",
				Speed:    1.5,
				Damping:  30,
				MaxForce: ptr(100.0),
			},
			Limits: &LimitsConfig{Lower: -math.Pi, Upper: math.Pi / 4 * k},
		})
	}
	return c
}

// restitutionScene drops rows of balls whose restitution grows from 0 to 1
// onto a perfectly elastic 3D ground.
func restitutionScene(num, rows int) *Config {
	c := scene("restitution", "default", 10)
	c.Dimension = 3
	c.Gravity = []float64{0, -9.81, 0}

	g := body("ground", "fixed", []float64{0, -1, 0}, cuboid(20, 1, 2))
	g.Colliders[0].Restitution = 1
	c.Bodies = []BodyConfig{g}

	for j := 0; j < rows; j++ {
		for i := 0; i <= num; i++ {
			x := float64(i) - float64(num)/2
			b := body(fmt.Sprintf("ball%d_%d", j, i), "dynamic", []float64{x * 2, 10 * float64(j+1), 0}, ball(0.5))
			b.Colliders[0].Restitution = float64(i) / float64(num)
			c.Bodies = append(c.Bodies, b)
		}
	}
	return c
}

// restitutionApexScene drops a single perfectly elastic ball from 2 m.
func restitutionApexScene() *Config {
	c := restitutionScene(0, 0)
	c.Variant = "apex"
	c.Duration = 3
	b := body("ball", "dynamic", []float64{0, 2.5, 0}, ball(0.5))
	b.Colliders[0].Restitution = 1
	c.Bodies = append(c.Bodies, b)
	return c
}

// pendulumScene hangs a chain of n links from a fixed pivot, released
// horizontally. Link colliders stop short of the hinges.
func pendulumScene(n int) *Config {
	variant := "default"
	if n > 1 {
		variant = "chain"
	}
	c := scene("pendulum", variant, 10)
	pivot := body("pivot", "fixed", []float64{0, 4}, ball(0.05))
	c.Bodies = []BodyConfig{pivot}

	const half = 0.5
	prev := pivot.Name
	prevAnchor := []float64{0, 0}
	for i := 0; i < n; i++ {
		link := body(fmt.Sprintf("link%d", i), "dynamic", []float64{half + float64(i)*2*half, 4}, cuboid(half-0.1, 0.05))
		link.CanSleep = ptr(false)
		c.Bodies = append(c.Bodies, link)
		c.Joints = append(c.Joints, JointConfig{
			Name:    fmt.Sprintf("hinge%d", i),
			BodyA:   prev,
			BodyB:   link.Name,
			AnchorA: prevAnchor,
			AnchorB: []float64{-half, 0},
		})
		prev = link.Name
		prevAnchor = []float64{half, 0}
	}
	return c
}

// heldPendulumScene holds a single link level with a PID torque.
func heldPendulumScene() *Config {
	c := pendulumScene(1)
	c.Variant = "held"
	c.Scenario = ScenarioConfig{
		Driver:  "hold",
		Targets: []string{"link0"},
		Gains:   []float64{2, 1, 0.1},
	}
	return c
}
