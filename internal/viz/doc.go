// Package viz provides terminal visualization for rigid-body scenes.
//
// The package implements a live monitor on the Bubble Tea framework:
//
//   - [Monitor]: steps a scene in real time and draws collider outlines
//   - [Canvas]: Braille-based pixel canvas for high-fidelity rendering
//   - [Camera]: orthographic camera shared by planar and 3D scenes
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	.     - Single step while paused
//	R     - Rebuild the scene from its config
//	T     - Cycle color themes
//	[ ]   - Slower/faster (steps per frame)
//	+ -   - Zoom
//	x y   - Rotate the camera (3D scenes)
//	?     - Show help overlay
package viz
