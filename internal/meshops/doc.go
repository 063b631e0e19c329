// Package meshops post-processes reconstructed meshes: density trimming,
// topological cleanup, quadric edge-collapse simplification and Taubin
// smoothing.
//
// Every operation returns a new mesh and leaves its input untouched.
package meshops
