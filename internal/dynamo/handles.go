package dynamo

import "github.com/san-kum/rigidsim/internal/arena"

// Typed handles keep bodies, colliders and joints from being confused.
type (
	BodyHandle     struct{ arena.Handle }
	ColliderHandle struct{ arena.Handle }
	JointHandle    struct{ arena.Handle }
)
