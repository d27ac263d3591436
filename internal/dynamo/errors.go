package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for world operations.
var (
	// ErrInvalidHandle indicates an unknown slot or a stale generation.
	ErrInvalidHandle = errors.New("dynamo: invalid or stale handle")

	// ErrIncompatibleKinematicTarget indicates a velocity target on a
	// position-based body, a position target on a velocity-based body, or
	// any kinematic target on a non-kinematic body.
	ErrIncompatibleKinematicTarget = errors.New("dynamo: kinematic target incompatible with body type")

	// ErrDegenerateMassProperties indicates a dynamic body whose mass or
	// inertia is not positive. The body stays usable but is non-physical.
	ErrDegenerateMassProperties = errors.New("dynamo: dynamic body has degenerate mass properties")

	// ErrSolverDivergence indicates an accumulated impulse exceeded the safety bound and was clamped.
	ErrSolverDivergence = errors.New("dynamo: solver impulse exceeded safety bound")

	// ErrStaleReference indicates a collider or joint referencing a removed body.
	ErrStaleReference = errors.New("dynamo: stale body reference")

	ErrInvalidMaterial   = errors.New("dynamo: invalid material (negative restitution, friction or density)")
	ErrInvalidMotor      = errors.New("dynamo: invalid motor (negative stiffness, damping or max force)")
	ErrInvalidLimits     = errors.New("dynamo: invalid limits (lower above upper)")
	ErrInvalidJoint      = errors.New("dynamo: joint must connect two distinct bodies")
	ErrInvalidParameters = errors.New("dynamo: invalid integration parameters")

	// ErrNonFiniteState indicates a body pose or velocity containing NaN or Inf.
	ErrNonFiniteState = errors.New("dynamo: non-finite body state")

	// ErrMalformedContact indicates a manifold with non-finite geometry; the contact is skipped.
	ErrMalformedContact = errors.New("dynamo: malformed contact skipped")
)

// StepError wraps an error that abandoned a step.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// EntityError attaches the offending entity to a per-entity diagnostic.
type EntityError struct {
	Entity  string
	Wrapped error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Entity, e.Wrapped)
}

func (e *EntityError) Unwrap() error {
	return e.Wrapped
}

func entityErr(kind string, h fmt.Stringer, err error) error {
	return &EntityError{Entity: kind + " " + h.String(), Wrapped: err}
}
