// Package dynamo is a fixed-step 2D rigid-body engine.
//
// A [World] owns three handle-addressed stores:
//
//   - [BodySet]: rigid bodies, classified as [Fixed], [Dynamic],
//     [KinematicVelocityBased] or [KinematicPositionBased]
//   - [ColliderSet]: shapes with a [Material], each attached to one body
//   - [JointSet]: revolute joints with optional [Motor] and [Limits]
//
// Handles carry a generation, so a handle to a removed entity fails every
// lookup with [ErrInvalidHandle] instead of reaching whatever reuses its slot.
//
// Each call to [World.Step] runs hooks, applies the commands they queued,
// detects contacts (sweep and prune, then narrow phase), solves joints and
// contacts with warm-started sequential impulses, integrates, corrects
// positions and publishes the new state.
//
// # Example
//
//	w, _ := dynamo.NewWorld(dynamo.DefaultIntegrationParameters())
//	ground, _ := w.NewBody(dynamo.Fixed, geom.Identity, dynamo.Velocity{}, false)
//	w.NewCollider(geom.Cuboid(10, 0.1), dynamo.DefaultMaterial(), ground)
//	box, _ := w.NewBody(dynamo.Dynamic, geom.NewPose(0, 2, 0), dynamo.Velocity{}, true)
//	w.NewCollider(geom.Cuboid(0.5, 0.5), dynamo.DefaultMaterial(), box)
//	for i := 0; i < 300; i++ {
//		w.StepDefault()
//	}
//
// # Thread Safety
//
// A World is NOT safe for concurrent use. Broad and narrow phase fan out
// over worker goroutines internally, but every Step joins them before the
// solver runs.
package dynamo
