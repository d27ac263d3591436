package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/san-kum/rigidsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt       = 1.0 / 60.0
	DefaultDuration = 5.0
	DefaultScene    = "drop"
	DefaultVariant  = "default"
	DefaultFriction = 0.5
	DefaultDensity  = 1.0
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid scene")

// Config is a complete scene: world parameters, bodies with their
// colliders, joints and the scripted driver.
type Config struct {
	Scene       string         `yaml:"scene"`
	Variant     string         `yaml:"variant,omitempty"`
	Dimension   int            `yaml:"dimension"`
	Dt          float64        `yaml:"dt"`
	Duration    float64        `yaml:"duration"`
	SampleEvery int            `yaml:"sample_every"`
	Gravity     []float64      `yaml:"gravity,flow"`
	Solver      SolverConfig   `yaml:"solver"`
	Scenario    ScenarioConfig `yaml:"scenario,omitempty"`
	Bodies      []BodyConfig   `yaml:"bodies"`
	Joints      []JointConfig  `yaml:"joints,omitempty"`
}

type SolverConfig struct {
	VelocityIterations    int     `yaml:"velocity_iterations"`
	PositionIterations    int     `yaml:"position_iterations"`
	WarmStarting          bool    `yaml:"warm_starting"`
	Baumgarte             float64 `yaml:"baumgarte"`
	LinearSlop            float64 `yaml:"linear_slop"`
	AngularSlop           float64 `yaml:"angular_slop"`
	MaxLinearCorrection   float64 `yaml:"max_linear_correction"`
	MaxAngularCorrection  float64 `yaml:"max_angular_correction"`
	RestitutionThreshold  float64 `yaml:"restitution_threshold"`
	PredictionDistance    float64 `yaml:"prediction_distance"`
	MaxImpulse            float64 `yaml:"max_impulse"`
	LinearSleepTolerance  float64 `yaml:"linear_sleep_tolerance"`
	AngularSleepTolerance float64 `yaml:"angular_sleep_tolerance"`
	TimeToSleep           float64 `yaml:"time_to_sleep"`
	// RestitutionRule and FrictionRule override the per-collider rules.
	RestitutionRule string `yaml:"restitution_rule,omitempty"`
	FrictionRule    string `yaml:"friction_rule,omitempty"`
	// Workers of zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// ScenarioConfig names a scripted driver and the bodies it moves.
type ScenarioConfig struct {
	Driver    string    `yaml:"driver,omitempty"`
	Targets   []string  `yaml:"targets,flow,omitempty"`
	Amplitude []float64 `yaml:"amplitude,flow,omitempty"`
	Frequency []float64 `yaml:"frequency,flow,omitempty"`
	// Gains are the kp, ki and kd of the hold driver.
	Gains    []float64 `yaml:"gains,flow,omitempty"`
	Setpoint float64   `yaml:"setpoint,omitempty"`
}

type BodyConfig struct {
	Name            string           `yaml:"name"`
	Type            string           `yaml:"type"`
	Position        []float64        `yaml:"position,flow"`
	Angle           float64          `yaml:"angle,omitempty"`
	Velocity        []float64        `yaml:"velocity,flow,omitempty"`
	AngularVelocity float64          `yaml:"angular_velocity,omitempty"`
	CanSleep        *bool            `yaml:"can_sleep,omitempty"`
	GravityScale    *float64         `yaml:"gravity_scale,omitempty"`
	LinearDamping   float64          `yaml:"linear_damping,omitempty"`
	AngularDamping  float64          `yaml:"angular_damping,omitempty"`
	Colliders       []ColliderConfig `yaml:"colliders"`
}

type ColliderConfig struct {
	Shape           string    `yaml:"shape"`
	Radius          float64   `yaml:"radius,omitempty"`
	HalfExtents     []float64 `yaml:"half_extents,flow,omitempty"`
	Offset          []float64 `yaml:"offset,flow,omitempty"`
	Friction        *float64  `yaml:"friction,omitempty"`
	Restitution     float64   `yaml:"restitution,omitempty"`
	Density         *float64  `yaml:"density,omitempty"`
	FrictionRule    string    `yaml:"friction_rule,omitempty"`
	RestitutionRule string    `yaml:"restitution_rule,omitempty"`
}

type JointConfig struct {
	Name           string        `yaml:"name"`
	BodyA          string        `yaml:"body_a"`
	BodyB          string        `yaml:"body_b"`
	AnchorA        []float64     `yaml:"anchor_a,flow,omitempty"`
	AnchorB        []float64     `yaml:"anchor_b,flow,omitempty"`
	ReferenceAngle float64       `yaml:"reference_angle,omitempty"`
	Motor          *MotorConfig  `yaml:"motor,omitempty"`
	Limits         *LimitsConfig `yaml:"limits,omitempty"`
}

type MotorConfig struct {
	// Mode is "position" or "velocity".
	Mode      string   `yaml:"mode"`
	Target    float64  `yaml:"target,omitempty"`
	Speed     float64  `yaml:"speed,omitempty"`
	Stiffness float64  `yaml:"stiffness,omitempty"`
	Damping   float64  `yaml:"damping"`
	MaxForce  *float64 `yaml:"max_force,omitempty"`
	// Model is "acceleration" (default) or "force".
	Model string `yaml:"model,omitempty"`
}

type LimitsConfig struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

func DefaultSolver() SolverConfig {
	p := dynamo.DefaultIntegrationParameters()
	return SolverConfig{
		VelocityIterations:    p.VelocityIterations,
		PositionIterations:    p.PositionIterations,
		WarmStarting:          p.WarmStarting,
		Baumgarte:             p.Baumgarte,
		LinearSlop:            p.LinearSlop,
		AngularSlop:           p.AngularSlop,
		MaxLinearCorrection:   p.MaxLinearCorrection,
		MaxAngularCorrection:  p.MaxAngularCorrection,
		RestitutionThreshold:  p.RestitutionThreshold,
		PredictionDistance:    p.PredictionDistance,
		MaxImpulse:            p.MaxImpulse,
		LinearSleepTolerance:  p.LinearSleepTolerance,
		AngularSleepTolerance: p.AngularSleepTolerance,
		TimeToSleep:           p.TimeToSleep,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Scene:     DefaultScene,
		Variant:   DefaultVariant,
		Dimension: 2,
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
		Gravity:   []float64{0, -9.81},
		Solver:    DefaultSolver(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML scene on top of DefaultConfig and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Params converts the solver section into engine parameters.
func (c *Config) Params() (dynamo.IntegrationParameters, error) {
	p := dynamo.DefaultIntegrationParameters()
	s := c.Solver
	p.Dt = c.Dt
	p.VelocityIterations = s.VelocityIterations
	p.PositionIterations = s.PositionIterations
	p.WarmStarting = s.WarmStarting
	p.Baumgarte = s.Baumgarte
	p.LinearSlop = s.LinearSlop
	p.AngularSlop = s.AngularSlop
	p.MaxLinearCorrection = s.MaxLinearCorrection
	p.MaxAngularCorrection = s.MaxAngularCorrection
	p.RestitutionThreshold = s.RestitutionThreshold
	p.PredictionDistance = s.PredictionDistance
	p.MaxImpulse = s.MaxImpulse
	p.LinearSleepTolerance = s.LinearSleepTolerance
	p.AngularSleepTolerance = s.AngularSleepTolerance
	p.TimeToSleep = s.TimeToSleep
	if s.Workers > 0 {
		p.Workers = s.Workers
	}

	var err error
	if p.RestitutionRule, err = parseRuleOverride(s.RestitutionRule); err != nil {
		return p, err
	}
	if p.FrictionRule, err = parseRuleOverride(s.FrictionRule); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func parseRuleOverride(s string) (*dynamo.CombineRule, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	r, err := dynamo.ParseCombineRule(s)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Body returns the body with the given name.
func (c *Config) Body(name string) (*BodyConfig, bool) {
	for i := range c.Bodies {
		if c.Bodies[i].Name == name {
			return &c.Bodies[i], true
		}
	}
	return nil, false
}

func (b *BodyConfig) BodyType() (dynamo.BodyType, error) {
	return dynamo.ParseBodyType(b.Type)
}

func (b *BodyConfig) Sleepable() bool {
	return b.CanSleep == nil || *b.CanSleep
}

func (b *BodyConfig) GravityFactor() float64 {
	if b.GravityScale == nil {
		return 1
	}
	return *b.GravityScale
}

// Material resolves the collider material, filling in the default friction
// and density.
func (c *ColliderConfig) Material() (dynamo.Material, error) {
	m := dynamo.DefaultMaterial()
	if c.Friction != nil {
		m.Friction = *c.Friction
	}
	if c.Density != nil {
		m.Density = *c.Density
	}
	m.Restitution = c.Restitution

	var err error
	if c.FrictionRule != "" {
		if m.FrictionRule, err = dynamo.ParseCombineRule(c.FrictionRule); err != nil {
			return m, err
		}
	}
	if c.RestitutionRule != "" {
		if m.RestitutionRule, err = dynamo.ParseCombineRule(c.RestitutionRule); err != nil {
			return m, err
		}
	}
	return m, m.Validate()
}

// Motor converts the motor section; a nil section yields a nil motor.
func (m *MotorConfig) Motor() (*dynamo.Motor, error) {
	if m == nil {
		return nil, nil
	}
	var motor *dynamo.Motor
	switch strings.ToLower(strings.TrimSpace(m.Mode)) {
	case "position":
		motor = dynamo.PositionMotor(m.Target, m.Stiffness, m.Damping)
	case "velocity":
		motor = dynamo.VelocityMotor(m.Speed, m.Damping)
		motor.Stiffness = m.Stiffness
	default:
		return nil, fmt.Errorf("unknown motor mode %q", m.Mode)
	}
	if m.MaxForce != nil {
		motor.WithMaxForce(*m.MaxForce)
	}
	model, err := dynamo.ParseMotorModel(m.Model)
	if err != nil {
		return nil, err
	}
	motor.WithModel(model)
	return motor, motor.Validate()
}

func (l *LimitsConfig) Limits() *dynamo.Limits {
	if l == nil {
		return nil
	}
	return &dynamo.Limits{Lower: l.Lower, Upper: l.Upper}
}

// Component returns v[i], or zero when v is shorter.
func Component(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkVec(what string, v []float64, dim int, optional bool) error {
	if len(v) == 0 && optional {
		return nil
	}
	if len(v) != dim {
		return invalid("%s: expected %d components, got %d", what, dim, len(v))
	}
	for _, x := range v {
		if !finite(x) {
			return invalid("%s: non-finite component", what)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Dimension != 2 && c.Dimension != 3 {
		return invalid("dimension must be 2 or 3, got %d", c.Dimension)
	}
	if !(c.Dt > 0) || !finite(c.Dt) {
		return invalid("dt must be positive, got %v", c.Dt)
	}
	if !(c.Duration > 0) || !finite(c.Duration) {
		return invalid("duration must be positive, got %v", c.Duration)
	}
	if c.SampleEvery < 0 {
		return invalid("sample_every must not be negative")
	}
	if err := checkVec("gravity", c.Gravity, c.Dimension, false); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return fmt.Errorf("%w: solver: %w", ErrInvalid, err)
	}

	names := make(map[string]bool, len(c.Bodies))
	for i := range c.Bodies {
		if err := c.validateBody(&c.Bodies[i], names); err != nil {
			return err
		}
	}

	if len(c.Joints) > 0 && c.Dimension != 2 {
		return invalid("joints are only supported in 2D scenes")
	}
	for i := range c.Joints {
		if err := c.validateJoint(&c.Joints[i], names); err != nil {
			return err
		}
	}

	for _, target := range c.Scenario.Targets {
		if !names[target] {
			return invalid("scenario target %q is not a body", target)
		}
	}
	return nil
}

func (c *Config) validateBody(b *BodyConfig, names map[string]bool) error {
	if b.Name == "" {
		return invalid("body without a name")
	}
	if names[b.Name] {
		return invalid("duplicate body %q", b.Name)
	}
	names[b.Name] = true

	if _, err := b.BodyType(); err != nil {
		return invalid("body %q: %v", b.Name, err)
	}
	if err := checkVec("body "+b.Name+" position", b.Position, c.Dimension, true); err != nil {
		return err
	}
	if err := checkVec("body "+b.Name+" velocity", b.Velocity, c.Dimension, true); err != nil {
		return err
	}
	if !finite(b.Angle) || !finite(b.AngularVelocity) || !finite(b.GravityFactor()) {
		return invalid("body %q: non-finite angle, angular velocity or gravity scale", b.Name)
	}
	if b.LinearDamping < 0 || b.AngularDamping < 0 {
		return invalid("body %q: negative damping", b.Name)
	}

	for j := range b.Colliders {
		if err := c.validateCollider(b.Name, &b.Colliders[j]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCollider(body string, col *ColliderConfig) error {
	switch col.Shape {
	case "ball":
		if !(col.Radius > 0) || !finite(col.Radius) {
			return invalid("body %q: ball radius must be positive, got %v", body, col.Radius)
		}
	case "cuboid":
		if err := checkVec("body "+body+" half_extents", col.HalfExtents, c.Dimension, false); err != nil {
			return err
		}
		for _, h := range col.HalfExtents {
			if !(h > 0) {
				return invalid("body %q: cuboid half extents must be positive", body)
			}
		}
	default:
		return invalid("body %q: unknown shape %q", body, col.Shape)
	}
	if err := checkVec("body "+body+" collider offset", col.Offset, c.Dimension, true); err != nil {
		return err
	}
	if _, err := col.Material(); err != nil {
		return fmt.Errorf("%w: body %q: %w", ErrInvalid, body, err)
	}
	return nil
}

func (c *Config) validateJoint(j *JointConfig, names map[string]bool) error {
	if !names[j.BodyA] || !names[j.BodyB] {
		return invalid("joint %q: unknown body", j.Name)
	}
	if j.BodyA == j.BodyB {
		return invalid("joint %q: connects %q to itself", j.Name, j.BodyA)
	}
	if err := checkVec("joint "+j.Name+" anchor_a", j.AnchorA, 2, true); err != nil {
		return err
	}
	if err := checkVec("joint "+j.Name+" anchor_b", j.AnchorB, 2, true); err != nil {
		return err
	}
	if _, err := j.Motor.Motor(); err != nil {
		return fmt.Errorf("%w: joint %q: %w", ErrInvalid, j.Name, err)
	}
	if err := j.Limits.Limits().Validate(); err != nil {
		return fmt.Errorf("%w: joint %q: %w", ErrInvalid, j.Name, err)
	}
	return nil
}

// Clone returns a deep copy made by a YAML round trip.
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrUnknownParam is returned by SetParam for names it does not recognise.
var ErrUnknownParam = errors.New("config: unknown parameter")

// ParamNames lists the names SetParam accepts.
func ParamNames() []string {
	return []string{
		"dt", "duration",
		"velocity_iterations", "position_iterations", "warm_starting",
		"baumgarte", "linear_slop", "angular_slop",
		"max_linear_correction", "max_angular_correction",
		"restitution_threshold", "prediction_distance", "max_impulse",
		"linear_sleep_tolerance", "angular_sleep_tolerance", "time_to_sleep",
	}
}

// SetParam assigns a numeric scene or solver parameter by its YAML name.
// Integer parameters are rounded; warm_starting is enabled for any
// non-zero value.
func (c *Config) SetParam(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s = %v", ErrInvalid, name, v)
	}
	s := &c.Solver
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "solver.") {
	case "dt":
		c.Dt = v
	case "duration":
		c.Duration = v
	case "velocity_iterations":
		s.VelocityIterations = int(math.Round(v))
	case "position_iterations":
		s.PositionIterations = int(math.Round(v))
	case "warm_starting":
		s.WarmStarting = v != 0
	case "baumgarte":
		s.Baumgarte = v
	case "linear_slop":
		s.LinearSlop = v
	case "angular_slop":
		s.AngularSlop = v
	case "max_linear_correction":
		s.MaxLinearCorrection = v
	case "max_angular_correction":
		s.MaxAngularCorrection = v
	case "restitution_threshold":
		s.RestitutionThreshold = v
	case "prediction_distance":
		s.PredictionDistance = v
	case "max_impulse":
		s.MaxImpulse = v
	case "linear_sleep_tolerance":
		s.LinearSleepTolerance = v
	case "angular_sleep_tolerance":
		s.AngularSleepTolerance = v
	case "time_to_sleep":
		s.TimeToSleep = v
	default:
		return fmt.Errorf("%w %q", ErrUnknownParam, name)
	}
	return nil
}
