// Package dynamo3d is a 3D variant of the dynamo engine for balls and
// cuboids. Poses carry unit quaternions that are re-normalized after every
// integration. It shares handles, body types, materials, parameters and
// errors with dynamo and solves contacts the same way: warm-started
// sequential impulses with speculative contacts, restitution from the
// pre-step approach speed and a nonlinear position pass. Friction acts in
// two tangent directions clamped to the friction disc.
//
// Every shape pair collides. Cuboid pairs are found with a separating axis
// test and report up to four points, clipped from the incident face. Joints
// are not supported.
package dynamo3d
