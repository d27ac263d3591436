package dynamo

import (
	"fmt"
	"math"
	"runtime"
)

// IntegrationParameters tune the step pipeline and the solver.
type IntegrationParameters struct {
	Dt                 float64
	VelocityIterations int
	PositionIterations int
	WarmStarting       bool

	// Baumgarte is the fraction of penetration resolved per position iteration.
	Baumgarte            float64
	LinearSlop           float64
	AngularSlop          float64
	MaxLinearCorrection  float64
	MaxAngularCorrection float64

	// RestitutionThreshold is the approach speed below which contacts do not bounce.
	RestitutionThreshold float64
	// PredictionDistance is added to every contact margin so resting
	// contacts stay in the manifold set.
	PredictionDistance float64
	// MaxImpulse bounds every accumulated impulse; larger values are clamped
	// and reported as ErrSolverDivergence.
	MaxImpulse float64

	LinearSleepTolerance  float64
	AngularSleepTolerance float64
	TimeToSleep           float64

	// RestitutionRule and FrictionRule override the per-collider rules when set.
	RestitutionRule *CombineRule
	FrictionRule    *CombineRule

	// Workers bounds the goroutines used by broad and narrow phase.
	Workers int
}

func DefaultIntegrationParameters() IntegrationParameters {
	return IntegrationParameters{
		Dt:                    1.0 / 60.0,
		VelocityIterations:    8,
		PositionIterations:    3,
		WarmStarting:          true,
		Baumgarte:             0.2,
		LinearSlop:            0.005,
		AngularSlop:           2.0 / 180.0 * math.Pi,
		MaxLinearCorrection:   0.2,
		MaxAngularCorrection:  8.0 / 180.0 * math.Pi,
		RestitutionThreshold:  1.0,
		PredictionDistance:    0.002,
		MaxImpulse:            1e8,
		LinearSleepTolerance:  0.01,
		AngularSleepTolerance: 2.0 / 180.0 * math.Pi,
		TimeToSleep:           0.5,
		Workers:               runtime.GOMAXPROCS(0),
	}
}

func (p IntegrationParameters) Validate() error {
	switch {
	case !(p.Dt > 0) || math.IsInf(p.Dt, 0):
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidParameters, p.Dt)
	case p.VelocityIterations < 1:
		return fmt.Errorf("%w: velocity iterations must be at least 1", ErrInvalidParameters)
	case p.PositionIterations < 0:
		return fmt.Errorf("%w: position iterations must not be negative", ErrInvalidParameters)
	case p.Baumgarte < 0 || p.Baumgarte > 1:
		return fmt.Errorf("%w: baumgarte must be in [0,1]", ErrInvalidParameters)
	case p.LinearSlop < 0 || p.AngularSlop < 0:
		return fmt.Errorf("%w: slop must not be negative", ErrInvalidParameters)
	case p.MaxLinearCorrection < 0 || p.MaxAngularCorrection < 0:
		return fmt.Errorf("%w: max correction must not be negative", ErrInvalidParameters)
	case p.RestitutionThreshold < 0 || p.PredictionDistance < 0:
		return fmt.Errorf("%w: restitution threshold and prediction distance must not be negative", ErrInvalidParameters)
	case !(p.MaxImpulse > 0):
		return fmt.Errorf("%w: max impulse must be positive", ErrInvalidParameters)
	case p.TimeToSleep < 0:
		return fmt.Errorf("%w: time to sleep must not be negative", ErrInvalidParameters)
	}
	return nil
}

func (p IntegrationParameters) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}
